package models

import (
	"time"
)

// Order 平台订单（只增不删，状态由订单状态机唯一驱动）
type Order struct {
	ID                  uint       `gorm:"primarykey" json:"id"`                                                    // 主键
	TradeNo             string     `gorm:"uniqueIndex;not null" json:"trade_no"`                                    // 平台交易号（创建时分配，永不复用）
	MerchantID          uint       `gorm:"index;not null;uniqueIndex:idx_merchant_out_trade_no" json:"merchant_id"` // 商户ID
	OutTradeNo          string     `gorm:"not null;uniqueIndex:idx_merchant_out_trade_no" json:"out_trade_no"`      // 商户订单号（商户内唯一）
	ChannelAccountID    *uint      `gorm:"index" json:"channel_account_id,omitempty"`                               // 渠道账户ID（延迟选择时为空）
	ChannelCode         string     `gorm:"index" json:"channel_code,omitempty"`                                     // 渠道编码
	Subject             string     `gorm:"type:varchar(128);not null" json:"subject"`                               // 订单标题
	TotalAmount         Money      `gorm:"type:decimal(20,2);not null;default:0" json:"total_amount"`               // 订单金额
	BuyerPayAmount      Money      `gorm:"type:decimal(20,2);not null;default:0" json:"buyer_pay_amount"`           // 买家实付金额
	ReceiptAmount       Money      `gorm:"type:decimal(20,2);not null;default:0" json:"receipt_amount"`             // 商户入账金额（实付减手续费）
	FeeAmount           Money      `gorm:"type:decimal(20,2);not null;default:0" json:"fee_amount"`                 // 手续费
	TradeState          string     `gorm:"index;not null" json:"trade_state"`                                       // 交易状态
	SettleState         string     `gorm:"index;not null" json:"settle_state"`                                      // 结算状态
	SettleTime          *time.Time `gorm:"index" json:"settle_time"`                                                // 结算完成时间
	NotifyURL           string     `gorm:"type:varchar(512)" json:"notify_url"`                                     // 异步通知地址
	ReturnURL           string     `gorm:"type:varchar(512)" json:"return_url,omitempty"`                           // 同步跳转地址
	NotifyState         string     `gorm:"index" json:"notify_state"`                                               // 商户通知状态
	NotifyRetryCount    int        `gorm:"not null;default:0" json:"notify_retry_count"`                            // 已投递次数
	NotifyNextRetryTime *time.Time `gorm:"index" json:"notify_next_retry_time"`                                     // 下次投递时间（终态为空）
	CloseTime           *time.Time `gorm:"index" json:"close_time"`                                                 // 关单时间（绝对过期点）
	PaymentTime         *time.Time `gorm:"index" json:"payment_time"`                                               // 支付时间
	ClosedAt            *time.Time `gorm:"index" json:"closed_at"`                                                  // 实际关闭时间
	APITradeNo          string     `gorm:"index" json:"api_trade_no,omitempty"`                                     // 渠道侧交易号
	BuyerIdentifier     string     `gorm:"type:varchar(128)" json:"buyer_identifier,omitempty"`                     // 渠道返回的买家标识
	ExtensionData       JSON       `gorm:"type:json" json:"extension_data,omitempty"`                               // 网关扩展数据（带版本号的 JSON）
	CreatedAt           time.Time  `gorm:"index" json:"created_at"`                                                 // 创建时间
	UpdatedAt           time.Time  `gorm:"index" json:"updated_at"`                                                 // 更新时间

	Buyer          *OrderBuyer            `gorm:"foreignKey:OrderID" json:"buyer,omitempty"`                    // 买家快照
	ChannelAccount *PaymentChannelAccount `gorm:"foreignKey:ChannelAccountID" json:"channel_account,omitempty"` // 渠道账户
}

// TableName 指定表名
func (Order) TableName() string {
	return "orders"
}

// OrderBuyer 下单时的买家与环境快照（创建后不再修改）
type OrderBuyer struct {
	ID        uint      `gorm:"primarykey" json:"id"`                         // 主键
	OrderID   uint      `gorm:"uniqueIndex;not null" json:"order_id"`         // 订单ID
	TradeNo   string    `gorm:"index;not null" json:"trade_no"`               // 平台交易号
	ClientIP  string    `gorm:"type:varchar(64)" json:"client_ip"`            // 下单客户端IP
	UserAgent string    `gorm:"type:varchar(512)" json:"user_agent"`          // 下单 User-Agent
	CertType  string    `gorm:"type:varchar(32)" json:"cert_type,omitempty"`  // 证件类型
	CertNo    string    `gorm:"type:varchar(64)" json:"-"`                    // 证件号
	BuyerName string    `gorm:"type:varchar(64)" json:"buyer_name,omitempty"` // 买家姓名
	CreatedAt time.Time `gorm:"index" json:"created_at"`                      // 创建时间
}

// TableName 指定表名
func (OrderBuyer) TableName() string {
	return "order_buyers"
}
