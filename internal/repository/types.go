package repository

import "time"

// OrderListFilter 查询订单列表的过滤条件
type OrderListFilter struct {
	Page        int
	PageSize    int
	MerchantID  uint
	TradeNo     string
	OutTradeNo  string
	TradeState  string
	SettleState string
	ChannelCode string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

// RefundListFilter 查询退款单列表的过滤条件
type RefundListFilter struct {
	Page       int
	PageSize   int
	MerchantID uint
	TradeNo    string
	State      string
}

// WalletRecordListFilter 查询钱包流水的过滤条件
type WalletRecordListFilter struct {
	Page        int
	PageSize    int
	MerchantID  uint
	Type        string
	TradeNo     string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

// NotificationListFilter 查询通知投递记录的过滤条件
type NotificationListFilter struct {
	Page     int
	PageSize int
	TradeNo  string
	BizType  string
	RefundNo string
}
