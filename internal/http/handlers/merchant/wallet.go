package merchant

import (
	"time"

	"github.com/paygate-next/internal/http/response"
	"github.com/paygate-next/internal/models"
	"github.com/paygate-next/internal/service"

	"github.com/gin-gonic/gin"
)

// ListWalletRecords 商户钱包流水查询：对账用，可按类型、交易号、时间过滤。
func (h *Handler) ListWalletRecords(c *gin.Context) {
	m, ok := getMerchant(c)
	if !ok {
		return
	}
	biz, ok := getBizParams(c)
	if !ok {
		return
	}

	input := service.WalletRecordListInput{
		Type:     bizString(biz, "type"),
		TradeNo:  bizString(biz, "trade_no"),
		Page:     bizInt(biz, "page"),
		PageSize: bizInt(biz, "page_size"),
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

	records, total, err := h.SettleService.ListWalletRecords(m.ID, input)
	if err != nil {
		respondError(c, response.CodeInternal, "wallet record query failed", err)
		return
	}
	views := make([]gin.H, 0, len(records))
	for i := range records {
		views = append(views, walletRecordView(&records[i]))
	}
	response.Success(c, gin.H{
		"total":   total,
		"count":   len(views),
		"records": views,
	})
}

func walletRecordView(record *models.MerchantWalletRecord) gin.H {
	return gin.H{
		"type":           record.Type,
		"amount":         record.Amount.String(),
		"freeze_amount":  record.FreezeAmount.String(),
		"balance_before": record.BalanceBefore.String(),
		"balance_after":  record.BalanceAfter.String(),
		"trade_no":       record.TradeNo,
		"reference":      record.Reference,
		"note":           record.Note,
		"created_at":     record.CreatedAt.Format(bizTimeLayout),
	}
}
