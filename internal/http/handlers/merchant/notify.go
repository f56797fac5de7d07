package merchant

import (
	"github.com/paygate-next/internal/http/response"
	"github.com/paygate-next/internal/models"

	"github.com/gin-gonic/gin"
)

// RedeliverNotify 手动补发订单通知：不计入自动重试次数，不限次数。
func (h *Handler) RedeliverNotify(c *gin.Context) {
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
		respondNotifyRedeliverError(c, err)
		return
	}
	if err := h.NotifyService.Redeliver(c.Request.Context(), order.TradeNo); err != nil {
		respondNotifyRedeliverError(c, err)
		return
	}

	current, err := h.OrderService.GetByTradeNo(order.TradeNo)
	if err != nil {
		respondNotifyRedeliverError(c, err)
		return
	}
	response.Success(c, gin.H{
		"trade_no":     current.TradeNo,
		"out_trade_no": current.OutTradeNo,
		"notify_state": current.NotifyState,
	})
}

// QueryNotifications 通知投递留痕查询：给退款号查退款通知，否则查订单通知。
func (h *Handler) QueryNotifications(c *gin.Context) {
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
	refundNo := bizString(biz, "refund_no")
	if tradeNo == "" && outTradeNo == "" && refundNo == "" {
		respondError(c, response.CodeBadRequest, "trade_no, out_trade_no or refund_no required", nil)
		return
	}
	if refundNo == "" && tradeNo == "" {
		order, err := h.OrderService.GetForMerchant(m.ID, "", outTradeNo)
		if err != nil {
			respondNotifyQueryError(c, err)
			return
		}
		tradeNo = order.TradeNo
	}

	records, total, err := h.NotifyService.ListAttempts(m.ID, tradeNo, refundNo, bizInt(biz, "page"), bizInt(biz, "page_size"))
	if err != nil {
		respondNotifyQueryError(c, err)
		return
	}
	views := make([]gin.H, 0, len(records))
	for i := range records {
		views = append(views, notificationView(&records[i]))
	}
	response.Success(c, gin.H{
		"total":         total,
		"count":         len(views),
		"notifications": views,
	})
}

func notificationView(record *models.OrderNotification) gin.H {
	return gin.H{
		"trade_no":    record.TradeNo,
		"biz_type":    record.BizType,
		"refund_no":   record.RefundNo,
		"attempt_no":  record.AttemptNo,
		"succeeded":   record.Succeeded,
		"http_status": record.HTTPStatus,
		"response":    record.ResponseBody,
		"duration_ms": record.DurationMS,
		"created_at":  record.CreatedAt.Format(bizTimeLayout),
	}
}
