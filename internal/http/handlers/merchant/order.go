package merchant

import (
	"time"

	"github.com/paygate-next/internal/constants"
	"github.com/paygate-next/internal/gateway"
	handlershared "github.com/paygate-next/internal/http/handlers/shared"
	"github.com/paygate-next/internal/http/response"
	"github.com/paygate-next/internal/models"
	"github.com/paygate-next/internal/service"

	"github.com/gin-gonic/gin"
)

const bizTimeLayout = "2006-01-02 15:04:05"

// CreateOrder 商户下单：创建订单并换取渠道支付凭据。
func (h *Handler) CreateOrder(c *gin.Context) {
	m, ok := getMerchant(c)
	if !ok {
		return
	}
	biz, ok := getBizParams(c)
	if !ok {
		return
	}

	input := service.CreateOrderInput{
		OutTradeNo:  bizString(biz, "out_trade_no"),
		TotalAmount: bizString(biz, "total_amount"),
		Subject:     bizString(biz, "subject"),
		NotifyURL:   bizString(biz, "notify_url"),
		ReturnURL:   bizString(biz, "return_url"),
		ChannelCode: bizString(biz, "channel_code"),
		ClientIP:    c.ClientIP(),
		UserAgent:   c.Request.UserAgent(),
		CertType:    bizString(biz, "cert_type"),
		CertNo:      bizString(biz, "cert_no"),
		BuyerName:   bizString(biz, "buyer_name"),
	}
	if raw := bizString(biz, "close_time"); raw != "" {
		closeTime, err := time.ParseInLocation(bizTimeLayout, raw, time.Local)
		if err != nil {
			respondError(c, response.CodeBadRequest, "close_time format invalid", nil)
			return
		}
		input.CloseTime = &closeTime
	}

	order, err := h.OrderService.Create(m, input)
	if err != nil {
		respondOrderCreateError(c, err)
		return
	}

	submit, err := h.OrderService.Submit(c.Request.Context(), order.TradeNo)
	if err != nil {
		// 订单已落库，回传交易号便于商户关单或重查
		handlershared.RespondErrorWithData(c, response.CodeBadRequest, "gateway submit failed", err, gin.H{
			"trade_no":     order.TradeNo,
			"out_trade_no": order.OutTradeNo,
		})
		return
	}

	data := gin.H{
		"trade_no":     order.TradeNo,
		"out_trade_no": order.OutTradeNo,
		"channel_code": order.ChannelCode,
		"total_amount": order.TotalAmount.String(),
		"trade_state":  order.TradeState,
		"close_time":   formatBizTime(order.CloseTime),
		"pay":          submitView(submit),
	}
	response.Success(c, data)
}

// QueryOrder 商户查单：按平台交易号或商户订单号查询。
func (h *Handler) QueryOrder(c *gin.Context) {
	m, ok := getMerchant(c)
	if !ok {
		return
	}
	biz, ok := getBizParams(c)
	if !ok {
		return
	}

	tradeNo := bizString(biz, "trade_no")
	outTradeNo := bizString(biz, "out_trade_no")
	if tradeNo == "" && outTradeNo == "" {
		respondError(c, response.CodeBadRequest, "trade_no or out_trade_no required", nil)
		return
	}

	order, err := h.OrderService.GetForMerchant(m.ID, tradeNo, outTradeNo)
	if err != nil {
		respondOrderQueryError(c, err)
		return
	}
	response.Success(c, orderView(order))
}

// CloseOrder 商户关单：仅待支付订单可关。
func (h *Handler) CloseOrder(c *gin.Context) {
	m, ok := getMerchant(c)
	if !ok {
		return
	}
	biz, ok := getBizParams(c)
	if !ok {
		return
	}

	tradeNo := bizString(biz, "trade_no")
	outTradeNo := bizString(biz, "out_trade_no")
	if tradeNo == "" && outTradeNo == "" {
		respondError(c, response.CodeBadRequest, "trade_no or out_trade_no required", nil)
		return
	}

	order, err := h.OrderService.GetForMerchant(m.ID, tradeNo, outTradeNo)
	if err != nil {
		respondOrderCloseError(c, err)
		return
	}
	closed, err := h.OrderService.Close(order.TradeNo)
	if err != nil {
		respondOrderCloseError(c, err)
		return
	}
	response.Success(c, orderView(closed))
}

// ListOrders 商户订单列表：按状态与创建时间分页查询。
func (h *Handler) ListOrders(c *gin.Context) {
	m, ok := getMerchant(c)
	if !ok {
		return
	}
	biz, ok := getBizParams(c)
	if !ok {
		return
	}

	input := service.OrderListInput{
		TradeState:  bizString(biz, "trade_state"),
		SettleState: bizString(biz, "settle_state"),
		ChannelCode: bizString(biz, "channel_code"),
		Page:        bizInt(biz, "page"),
		PageSize:    bizInt(biz, "page_size"),
	}
	if raw := bizString(biz, "created_from"); raw != "" {
		from, err := time.ParseInLocation(bizTimeLayout, raw, time.Local)
		if err != nil {
			respondError(c, response.CodeBadRequest, "created_from format invalid", nil)
			return
		}
		input.CreatedFrom = &from
	}
	if raw := bizString(biz, "created_to"); raw != "" {
		to, err := time.ParseInLocation(bizTimeLayout, raw, time.Local)
		if err != nil {
			respondError(c, response.CodeBadRequest, "created_to format invalid", nil)
			return
		}
		input.CreatedTo = &to
	}

	orders, total, err := h.OrderService.ListForMerchant(m.ID, input)
	if err != nil {
		respondOrderQueryError(c, err)
		return
	}
	views := make([]gin.H, 0, len(orders))
	for i := range orders {
		views = append(views, orderView(&orders[i]))
	}
	response.Success(c, gin.H{
		"total":  total,
		"count":  len(views),
		"orders": views,
	})
}

func orderView(order *models.Order) gin.H {
	return gin.H{
		"trade_no":         order.TradeNo,
		"out_trade_no":     order.OutTradeNo,
		"channel_code":     order.ChannelCode,
		"subject":          order.Subject,
		"total_amount":     order.TotalAmount.String(),
		"buyer_pay_amount": order.BuyerPayAmount.String(),
		"receipt_amount":   order.ReceiptAmount.String(),
		"fee_amount":       order.FeeAmount.String(),
		"trade_state":      order.TradeState,
		"settle_state":     order.SettleState,
		"notify_state":     order.NotifyState,
		"api_trade_no":     order.APITradeNo,
		"buyer_identifier": order.BuyerIdentifier,
		"close_time":       formatBizTime(order.CloseTime),
		"payment_time":     formatBizTime(order.PaymentTime),
		"created_at":       order.CreatedAt.Format(bizTimeLayout),
	}
}

func submitView(result *gateway.SubmitResult) gin.H {
	view := gin.H{"kind": result.Kind}
	switch result.Kind {
	case constants.SubmitKindRedirect:
		view["redirect_url"] = result.RedirectURL
	case constants.SubmitKindQRCode:
		view["qr_content"] = result.QRContent
	case constants.SubmitKindForm:
		view["form_html"] = result.FormHTML
	}
	if result.APITradeNo != "" {
		view["api_trade_no"] = result.APITradeNo
	}
	return view
}

func formatBizTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(bizTimeLayout)
}
