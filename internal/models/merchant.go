package models

import (
	"time"

	"gorm.io/gorm"
)

// Merchant 商户表
type Merchant struct {
	ID              uint           `gorm:"primarykey" json:"id"`                                          // 主键
	MerchantNo      string         `gorm:"uniqueIndex;not null" json:"merchant_no"`                       // 商户号
	Name            string         `gorm:"not null" json:"name"`                                          // 商户名称
	Status          string         `gorm:"index;not null" json:"status"`                                  // 商户状态（active/disabled）
	OrderMinAmount  Money          `gorm:"type:decimal(20,2);not null;default:0" json:"order_min_amount"` // 单笔下限（0 表示仅受平台下限约束）
	OrderMaxAmount  Money          `gorm:"type:decimal(20,2);not null;default:0" json:"order_max_amount"` // 单笔上限（0 表示仅受平台上限约束）
	SettleCycleDays int            `gorm:"not null;default:0" json:"settle_cycle_days"`                   // 结算周期（天，0 表示实时结算）
	CanSettle       bool           `gorm:"not null;default:true" json:"can_settle"`                       // 是否具备结算权限
	CanRefund       bool           `gorm:"not null;default:true" json:"can_refund"`                       // 是否具备退款权限
	CreatedAt       time.Time      `gorm:"index" json:"created_at"`                                       // 创建时间
	UpdatedAt       time.Time      `gorm:"index" json:"updated_at"`                                       // 更新时间
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`                                                // 软删除时间

	Encryption *MerchantEncryption `gorm:"foreignKey:MerchantID" json:"encryption,omitempty"` // 签名/加密材料
}

// TableName 指定表名
func (Merchant) TableName() string {
	return "merchants"
}

// MerchantEncryption 商户签名与加密材料
type MerchantEncryption struct {
	ID                 uint      `gorm:"primarykey" json:"id"`                    // 主键
	MerchantID         uint      `gorm:"uniqueIndex;not null" json:"merchant_id"` // 商户ID
	SignMode           string    `gorm:"not null" json:"sign_mode"`               // 签名方式（md5/sha3/sm3/rsa2/open）
	HashKey            string    `gorm:"type:varchar(256)" json:"-"`              // 摘要签名密钥
	SymmetricKey       string    `gorm:"type:varchar(256)" json:"-"`              // 报文对称加密密钥（SM4，hex）
	PublicKeyPEM       string    `gorm:"type:text" json:"-"`                      // 商户验签公钥
	PlatformPrivateKey string    `gorm:"type:text" json:"-"`                      // 平台对该商户的签名私钥
	CreatedAt          time.Time `gorm:"index" json:"created_at"`                 // 创建时间
	UpdatedAt          time.Time `gorm:"index" json:"updated_at"`                 // 更新时间
}

// TableName 指定表名
func (MerchantEncryption) TableName() string {
	return "merchant_encryptions"
}
