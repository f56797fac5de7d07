package merchant

import (
	handlershared "github.com/paygate-next/internal/http/handlers/shared"
	"github.com/paygate-next/internal/http/response"
	"github.com/paygate-next/internal/models"
	"github.com/paygate-next/internal/service"

	"github.com/gin-gonic/gin"
)

// CreateRefund 商户退款：受理后同步执行渠道退款并返回终态。
func (h *Handler) CreateRefund(c *gin.Context) {
	m, ok := getMerchant(c)
	if !ok {
		return
	}
	biz, ok := getBizParams(c)
	if !ok {
		return
	}

	refund, err := h.RefundService.Create(m, service.CreateRefundInput{
		TradeNo:     bizString(biz, "trade_no"),
		OutRefundNo: bizString(biz, "out_refund_no"),
		Amount:      bizString(biz, "refund_amount"),
		Reason:      bizString(biz, "reason"),
		Initiator:   "merchant",
	})
	if err != nil {
		respondRefundError(c, err)
		return
	}

	if err := h.RefundService.Execute(c.Request.Context(), refund.RefundNo); err != nil {
		// 退款单已留存，回传退款号便于商户重查
		handlershared.RespondErrorWithData(c, response.CodeBadRequest, "refund execute failed", err, gin.H{
			"refund_no":     refund.RefundNo,
			"out_refund_no": refund.OutRefundNo,
		})
		return
	}

	current, err := h.RefundService.GetForMerchant(m.ID, refund.RefundNo, "")
	if err != nil {
		respondRefundError(c, err)
		return
	}
	response.Success(c, refundView(current))
}

// QueryRefund 商户退款查询：按平台退款号或商户退款单号。
func (h *Handler) QueryRefund(c *gin.Context) {
	m, ok := getMerchant(c)
	if !ok {
		return
	}
	biz, ok := getBizParams(c)
	if !ok {
		return
	}

	refundNo := bizString(biz, "refund_no")
	outRefundNo := bizString(biz, "out_refund_no")
	if refundNo == "" && outRefundNo == "" {
		respondError(c, response.CodeBadRequest, "refund_no or out_refund_no required", nil)
		return
	}

	refund, err := h.RefundService.GetForMerchant(m.ID, refundNo, outRefundNo)
	if err != nil {
		respondRefundError(c, err)
		return
	}
	response.Success(c, refundView(refund))
}

// ListRefunds 商户退款单列表：可按交易号与状态过滤。
func (h *Handler) ListRefunds(c *gin.Context) {
	m, ok := getMerchant(c)
	if !ok {
		return
	}
	biz, ok := getBizParams(c)
	if !ok {
		return
	}

	refunds, total, err := h.RefundService.ListForMerchant(
		m.ID,
		bizString(biz, "trade_no"),
		bizString(biz, "state"),
		bizInt(biz, "page"),
		bizInt(biz, "page_size"),
	)
	if err != nil {
		respondRefundError(c, err)
		return
	}
	views := make([]gin.H, 0, len(refunds))
	for i := range refunds {
		views = append(views, refundView(&refunds[i]))
	}
	response.Success(c, gin.H{
		"total":   total,
		"count":   len(views),
		"refunds": views,
	})
}

func refundView(refund *models.OrderRefund) gin.H {
	return gin.H{
		"refund_no":     refund.RefundNo,
		"trade_no":      refund.TradeNo,
		"out_refund_no": refund.OutRefundNo,
		"refund_amount": refund.Amount.String(),
		"state":         refund.State,
		"reason":        refund.Reason,
		"api_refund_no": refund.APIRefundNo,
		"notify_state":  refund.NotifyState,
		"finish_time":   formatBizTime(refund.FinishTime),
		"created_at":    refund.CreatedAt.Format(bizTimeLayout),
	}
}
