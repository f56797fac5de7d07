package models

import (
	"time"

	"gorm.io/gorm"
)

// PaymentChannel 支付渠道（一个支付方式族）
type PaymentChannel struct {
	ID          uint           `gorm:"primarykey" json:"id"`                                    // 主键
	Code        string         `gorm:"uniqueIndex;not null" json:"code"`                        // 渠道编码（商户下单时指定）
	Name        string         `gorm:"not null" json:"name"`                                    // 渠道名称
	GatewayCode string         `gorm:"index;not null" json:"gateway_code"`                      // 网关插件编码
	FeeRate     Money          `gorm:"type:decimal(6,2);not null;default:0" json:"fee_rate"`    // 手续费比例（百分比）
	MinAmount   Money          `gorm:"type:decimal(20,2);not null;default:0" json:"min_amount"` // 单笔下限
	MaxAmount   Money          `gorm:"type:decimal(20,2);not null;default:0" json:"max_amount"` // 单笔上限（0 表示不限）
	Enabled     bool           `gorm:"not null;default:true" json:"enabled"`                    // 是否启用
	Maintenance bool           `gorm:"not null;default:false" json:"maintenance"`               // 是否维护中
	SortOrder   int            `gorm:"not null;default:0" json:"sort_order"`                    // 自动选择时的优先级
	CreatedAt   time.Time      `gorm:"index" json:"created_at"`                                 // 创建时间
	UpdatedAt   time.Time      `gorm:"index" json:"updated_at"`                                 // 更新时间
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`                                          // 软删除时间

	Accounts []PaymentChannelAccount `gorm:"foreignKey:ChannelID" json:"accounts,omitempty"` // 渠道账户
}

// TableName 指定表名
func (PaymentChannel) TableName() string {
	return "payment_channels"
}

// PaymentChannelAccount 渠道账户（一套具体的渠道凭证）
type PaymentChannelAccount struct {
	ID         uint           `gorm:"primarykey" json:"id"`                 // 主键
	ChannelID  uint           `gorm:"index;not null" json:"channel_id"`     // 渠道ID
	Name       string         `gorm:"not null" json:"name"`                 // 账户名称
	Status     string         `gorm:"index;not null" json:"status"`         // 账户状态（enabled/disabled/maintenance）
	ConfigJSON JSON           `gorm:"type:json" json:"config_json"`         // 账户凭证配置
	MinAmount  *Money         `gorm:"type:decimal(20,2)" json:"min_amount"` // 单笔下限覆盖（null 继承渠道）
	MaxAmount  *Money         `gorm:"type:decimal(20,2)" json:"max_amount"` // 单笔上限覆盖（null 继承渠道）
	SortOrder  int            `gorm:"not null;default:0" json:"sort_order"` // 同渠道内优先级
	CreatedAt  time.Time      `gorm:"index" json:"created_at"`              // 创建时间
	UpdatedAt  time.Time      `gorm:"index" json:"updated_at"`              // 更新时间
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`                       // 软删除时间

	Channel *PaymentChannel `gorm:"foreignKey:ChannelID" json:"channel,omitempty"` // 所属渠道
}

// TableName 指定表名
func (PaymentChannelAccount) TableName() string {
	return "payment_channel_accounts"
}
