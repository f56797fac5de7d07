package models

import (
	"time"
)

// OrderNotification 商户通知投递记录（每次尝试一行，插入后不再修改）
type OrderNotification struct {
	ID           uint      `gorm:"primarykey" json:"id"`                   // 主键
	TradeNo      string    `gorm:"index;not null" json:"trade_no"`         // 平台交易号
	BizType      string    `gorm:"index;not null" json:"biz_type"`         // 业务类型（order/refund）
	RefundNo     string    `gorm:"index" json:"refund_no,omitempty"`       // 退款号（退款通知时填写）
	AttemptNo    int       `gorm:"not null" json:"attempt_no"`             // 第几次投递（从 1 开始）
	URL          string    `gorm:"type:varchar(512);not null" json:"url"`  // 投递地址
	Succeeded    bool      `gorm:"index;not null" json:"succeeded"`        // 是否成功应答
	HTTPStatus   int       `gorm:"not null;default:0" json:"http_status"`  // HTTP 状态码（网络失败为 0）
	ResponseBody string    `gorm:"type:varchar(512)" json:"response_body"` // 应答正文（截断至 512 字节）
	DurationMS   int64     `gorm:"not null;default:0" json:"duration_ms"`  // 耗时（毫秒）
	CreatedAt    time.Time `gorm:"index" json:"created_at"`                // 创建时间
}

// TableName 指定表名
func (OrderNotification) TableName() string {
	return "order_notifications"
}
