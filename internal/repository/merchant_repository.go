package repository

import (
	"errors"
	"strings"

	"github.com/paygate-next/internal/models"

	"gorm.io/gorm"
)

// MerchantRepository 商户数据访问接口
type MerchantRepository interface {
	GetByID(id uint) (*models.Merchant, error)
	GetByMerchantNo(merchantNo string) (*models.Merchant, error)
	GetEncryptionByMerchantID(merchantID uint) (*models.MerchantEncryption, error)
	Create(merchant *models.Merchant) error
	Update(merchant *models.Merchant) error
	CreateEncryption(encryption *models.MerchantEncryption) error
	UpdateEncryption(encryption *models.MerchantEncryption) error
	WithTx(tx *gorm.DB) *GormMerchantRepository
}

// GormMerchantRepository GORM 商户仓储实现
type GormMerchantRepository struct {
	db *gorm.DB
}

// NewMerchantRepository 创建商户仓储
func NewMerchantRepository(db *gorm.DB) *GormMerchantRepository {
	return &GormMerchantRepository{db: db}
}

// WithTx 绑定事务
func (r *GormMerchantRepository) WithTx(tx *gorm.DB) *GormMerchantRepository {
	if tx == nil {
		return r
	}
	return &GormMerchantRepository{db: tx}
}

// GetByID 按ID获取商户
func (r *GormMerchantRepository) GetByID(id uint) (*models.Merchant, error) {
	if id == 0 {
		return nil, nil
	}
	var merchant models.Merchant
	if err := r.db.Preload("Encryption").First(&merchant, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &merchant, nil
}

// GetByMerchantNo 按商户号获取商户（含签名材料）
func (r *GormMerchantRepository) GetByMerchantNo(merchantNo string) (*models.Merchant, error) {
	merchantNo = strings.TrimSpace(merchantNo)
	if merchantNo == "" {
		return nil, nil
	}
	var merchant models.Merchant
	if err := r.db.Preload("Encryption").
		Where("merchant_no = ?", merchantNo).
		First(&merchant).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &merchant, nil
}

// GetEncryptionByMerchantID 按商户ID获取签名材料
func (r *GormMerchantRepository) GetEncryptionByMerchantID(merchantID uint) (*models.MerchantEncryption, error) {
	if merchantID == 0 {
		return nil, nil
	}
	var encryption models.MerchantEncryption
	if err := r.db.Where("merchant_id = ?", merchantID).First(&encryption).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &encryption, nil
}

// Create 创建商户
func (r *GormMerchantRepository) Create(merchant *models.Merchant) error {
	return r.db.Create(merchant).Error
}

// Update 更新商户
func (r *GormMerchantRepository) Update(merchant *models.Merchant) error {
	return r.db.Save(merchant).Error
}

// CreateEncryption 创建签名材料
func (r *GormMerchantRepository) CreateEncryption(encryption *models.MerchantEncryption) error {
	return r.db.Create(encryption).Error
}

// UpdateEncryption 更新签名材料
func (r *GormMerchantRepository) UpdateEncryption(encryption *models.MerchantEncryption) error {
	return r.db.Save(encryption).Error
}
