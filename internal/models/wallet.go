package models

import (
	"time"
)

// MerchantWallet 商户钱包（每商户一行，流水表为对账依据）
type MerchantWallet struct {
	ID            uint      `gorm:"primarykey" json:"id"`                                        // 主键
	MerchantID    uint      `gorm:"uniqueIndex;not null" json:"merchant_id"`                     // 商户ID
	Balance       Money     `gorm:"type:decimal(20,2);not null;default:0" json:"balance"`        // 可用余额
	FreezeBalance Money     `gorm:"type:decimal(20,2);not null;default:0" json:"freeze_balance"` // 冻结余额
	Margin        Money     `gorm:"type:decimal(20,2);not null;default:0" json:"margin"`         // 保证金
	Prepaid       Money     `gorm:"type:decimal(20,2);not null;default:0" json:"prepaid"`        // 预付金
	CreatedAt     time.Time `gorm:"index" json:"created_at"`                                     // 创建时间
	UpdatedAt     time.Time `gorm:"index" json:"updated_at"`                                     // 更新时间
}

// TableName 指定表名
func (MerchantWallet) TableName() string {
	return "merchant_wallets"
}

// MerchantWalletRecord 商户钱包流水（每次变动一行，含前后快照）
type MerchantWalletRecord struct {
	ID            uint      `gorm:"primarykey" json:"id"`                                        // 主键
	MerchantID    uint      `gorm:"index;not null" json:"merchant_id"`                           // 商户ID
	Type          string    `gorm:"index;not null" json:"type"`                                  // 流水类型
	Amount        Money     `gorm:"type:decimal(20,2);not null;default:0" json:"amount"`         // 可用余额变动（正入负出）
	FreezeAmount  Money     `gorm:"type:decimal(20,2);not null;default:0" json:"freeze_amount"`  // 冻结余额变动
	BalanceBefore Money     `gorm:"type:decimal(20,2);not null;default:0" json:"balance_before"` // 变动前可用余额
	BalanceAfter  Money     `gorm:"type:decimal(20,2);not null;default:0" json:"balance_after"`  // 变动后可用余额
	FreezeBefore  Money     `gorm:"type:decimal(20,2);not null;default:0" json:"freeze_before"`  // 变动前冻结余额
	FreezeAfter   Money     `gorm:"type:decimal(20,2);not null;default:0" json:"freeze_after"`   // 变动后冻结余额
	TradeNo       string    `gorm:"index" json:"trade_no,omitempty"`                             // 关联交易号
	Reference     string    `gorm:"uniqueIndex;not null" json:"reference"`                       // 幂等引用（同一业务动作只记一次）
	Note          string    `gorm:"type:varchar(255)" json:"note,omitempty"`                     // 备注
	CreatedAt     time.Time `gorm:"index" json:"created_at"`                                     // 创建时间
}

// TableName 指定表名
func (MerchantWalletRecord) TableName() string {
	return "merchant_wallet_records"
}
