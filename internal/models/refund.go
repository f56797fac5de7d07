package models

import (
	"time"
)

// OrderRefund 退款单（订单的一对多子记录，独立状态机与独立通知计数）
type OrderRefund struct {
	ID                  uint       `gorm:"primarykey" json:"id"`                                                     // 主键
	RefundNo            string     `gorm:"uniqueIndex;not null" json:"refund_no"`                                    // 平台退款号
	TradeNo             string     `gorm:"index;not null" json:"trade_no"`                                           // 平台交易号
	MerchantID          uint       `gorm:"index;not null;uniqueIndex:idx_merchant_out_refund_no" json:"merchant_id"` // 商户ID
	OutRefundNo         string     `gorm:"not null;uniqueIndex:idx_merchant_out_refund_no" json:"out_refund_no"`     // 商户退款单号
	Amount              Money      `gorm:"type:decimal(20,2);not null;default:0" json:"amount"`                      // 退款金额
	State               string     `gorm:"index;not null" json:"state"`                                              // 退款状态
	Reason              string     `gorm:"type:varchar(255)" json:"reason,omitempty"`                                // 退款原因
	Initiator           string     `gorm:"type:varchar(32)" json:"initiator"`                                        // 发起方（merchant/admin）
	APIRefundNo         string     `gorm:"index" json:"api_refund_no,omitempty"`                                     // 渠道侧退款号
	NotifyState         string     `gorm:"index" json:"notify_state"`                                                // 商户通知状态
	NotifyRetryCount    int        `gorm:"not null;default:0" json:"notify_retry_count"`                             // 已投递次数
	NotifyNextRetryTime *time.Time `gorm:"index" json:"notify_next_retry_time"`                                      // 下次投递时间
	FinishTime          *time.Time `gorm:"index" json:"finish_time"`                                                 // 终态时间
	CreatedAt           time.Time  `gorm:"index" json:"created_at"`                                                  // 创建时间
	UpdatedAt           time.Time  `gorm:"index" json:"updated_at"`                                                  // 更新时间
}

// TableName 指定表名
func (OrderRefund) TableName() string {
	return "order_refunds"
}
