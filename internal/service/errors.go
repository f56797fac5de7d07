package service

import "errors"

// 服务层哨兵错误，HTTP 层按映射表转换为响应码
var (
	ErrMerchantNotFound   = errors.New("merchant not found")
	ErrMerchantDisabled   = errors.New("merchant disabled")
	ErrMerchantNoPerm     = errors.New("merchant permission denied")
	ErrSignatureRejected  = errors.New("signature verification failed")
	ErrReplayRejected     = errors.New("request replay rejected")
	ErrOrderNotFound      = errors.New("order not found")
	ErrOrderInvalid       = errors.New("order params invalid")
	ErrOrderDuplicate     = errors.New("out_trade_no already used")
	ErrOrderStateInvalid  = errors.New("order state does not allow this operation")
	ErrOrderAmountInvalid = errors.New("order amount out of bounds")
	ErrSubjectInvalid     = errors.New("order subject invalid")
	ErrBuyerIdentInvalid  = errors.New("buyer identity invalid")
	ErrCloseTimeInvalid   = errors.New("close time out of range")
	ErrURLInvalid         = errors.New("url invalid")
	ErrChannelUnavailable = errors.New("no usable payment channel")
	ErrGatewayFailed      = errors.New("gateway call failed")
	ErrSettleStateInvalid = errors.New("settle state does not allow this operation")
	ErrSettleFailed       = errors.New("settlement failed")
	ErrWalletBusy         = errors.New("wallet update failed")
	ErrWalletInsufficient = errors.New("wallet balance insufficient")
	ErrRefundNotFound     = errors.New("refund not found")
	ErrRefundInvalid      = errors.New("refund params invalid")
	ErrRefundDuplicate    = errors.New("out_refund_no already used")
	ErrRefundStateInvalid = errors.New("refund state does not allow this operation")
	ErrRefundExceeded     = errors.New("refund amount exceeds remainder")
	ErrNotifyNotFound     = errors.New("nothing to notify")
)
