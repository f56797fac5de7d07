package constants

// 订单交易状态常量
const (
	TradeStateWaitPay  = "WAIT_PAY"
	TradeStateSuccess  = "SUCCESS"
	TradeStateClosed   = "CLOSED"
	TradeStateFinished = "FINISHED"
	TradeStateFrozen   = "FROZEN"
)

// 结算状态常量
const (
	SettleStatePending    = "PENDING"
	SettleStateProcessing = "PROCESSING"
	SettleStateCompleted  = "COMPLETED"
	SettleStateFailed     = "FAILED"
)

// 商户通知状态常量
const (
	NotifyStatePending = "PENDING"
	NotifyStateSuccess = "SUCCESS"
	NotifyStateFailed  = "FAILED"
)

// 退款状态常量
const (
	RefundStatePending    = "PENDING"
	RefundStateProcessing = "PROCESSING"
	RefundStateCompleted  = "COMPLETED"
	RefundStateFailed     = "FAILED"
	RefundStateRejected   = "REJECTED"
	RefundStateCanceled   = "CANCELED"
)

// 签名方式常量
const (
	SignModeMD5  = "md5"
	SignModeSHA3 = "sha3"
	SignModeSM3  = "sm3"
	SignModeRSA2 = "rsa2"
	SignModeOpen = "open"
)

// 报文加密方式常量
const (
	EncryptionParamSM4 = "SM4"
)

// 商户状态常量
const (
	MerchantStatusActive   = "active"
	MerchantStatusDisabled = "disabled"
)

// 渠道账户状态常量
const (
	ChannelAccountStatusEnabled     = "enabled"
	ChannelAccountStatusDisabled    = "disabled"
	ChannelAccountStatusMaintenance = "maintenance"
)

// 支付渠道编码常量
const (
	ChannelCodeCertPay = "certpay"
	ChannelCodeKeyPay  = "keypay"
)

// 支付提交结果形态常量
const (
	SubmitKindRedirect = "redirect"
	SubmitKindQRCode   = "qrcode"
	SubmitKindForm     = "form"
)

// 钱包流水类型常量
const (
	WalletRecordTypeSettle       = "order_settle"
	WalletRecordTypeRefund       = "order_refund"
	WalletRecordTypeAdminAdjust  = "admin_adjust"
	WalletRecordTypeFreezeAdjust = "freeze_adjust"
)

// 回调入口方法常量
const (
	CallbackMethodNotify = "notify"
	CallbackMethodReturn = "return"
	CallbackMethodRefund = "refund"
)

// 通知业务类型常量
const (
	NotifyBizTypeOrder  = "order"
	NotifyBizTypeRefund = "refund"
)

// 队列常量
const (
	QueueDefault         = "default"
	TaskOrderSettle      = "order:settle"
	TaskOrderNotify      = "order:notify"
	TaskOrderExpireClose = "order:expire_close"
	TaskRefundNotify     = "refund:notify"
)

// 缓存默认配置常量
const (
	RedisPrefixDefault = "pg"
)

// 交易号常量
const (
	TradeNoPrefix = "P"
	TradeNoLength = 23
)

// 平台订单金额边界（元）
const (
	PlatformAmountMin = "0.01"
	PlatformAmountMax = "100000000"
)

// 订单标题约束常量
const (
	SubjectMaxLength = 128
)

// 证件类型常量
const (
	CertTypeIDCard = "ID_CARD"
)

// 商户通知最大投递次数（含首次）
const NotifyMaxAttempts = 8

// 重放窗口（秒），协议硬约束，不可配置
const ReplayWindowSeconds = 600
