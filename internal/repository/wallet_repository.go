package repository

import (
	"errors"
	"strings"

	"github.com/paygate-next/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// WalletRepository 商户钱包数据访问接口
type WalletRepository interface {
	GetByMerchantID(merchantID uint) (*models.MerchantWallet, error)
	GetByMerchantIDForUpdate(merchantID uint) (*models.MerchantWallet, error)
	Create(wallet *models.MerchantWallet) error
	Update(wallet *models.MerchantWallet) error
	CreateRecord(record *models.MerchantWalletRecord) error
	GetRecordByReference(reference string) (*models.MerchantWalletRecord, error)
	ListRecords(filter WalletRecordListFilter) ([]models.MerchantWalletRecord, int64, error)
	WithTx(tx *gorm.DB) *GormWalletRepository
}

// GormWalletRepository GORM 商户钱包仓储实现
type GormWalletRepository struct {
	db *gorm.DB
}

// NewWalletRepository 创建钱包仓储
func NewWalletRepository(db *gorm.DB) *GormWalletRepository {
	return &GormWalletRepository{db: db}
}

// WithTx 绑定事务
func (r *GormWalletRepository) WithTx(tx *gorm.DB) *GormWalletRepository {
	if tx == nil {
		return r
	}
	return &GormWalletRepository{db: tx}
}

// GetByMerchantID 按商户ID获取钱包
func (r *GormWalletRepository) GetByMerchantID(merchantID uint) (*models.MerchantWallet, error) {
	if merchantID == 0 {
		return nil, nil
	}
	var wallet models.MerchantWallet
	if err := r.db.Where("merchant_id = ?", merchantID).First(&wallet).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &wallet, nil
}

// GetByMerchantIDForUpdate 按商户ID加锁获取钱包
func (r *GormWalletRepository) GetByMerchantIDForUpdate(merchantID uint) (*models.MerchantWallet, error) {
	if merchantID == 0 {
		return nil, nil
	}
	var wallet models.MerchantWallet
	if err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("merchant_id = ?", merchantID).
		First(&wallet).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &wallet, nil
}

// Create 创建钱包
func (r *GormWalletRepository) Create(wallet *models.MerchantWallet) error {
	return r.db.Create(wallet).Error
}

// Update 更新钱包
func (r *GormWalletRepository) Update(wallet *models.MerchantWallet) error {
	return r.db.Save(wallet).Error
}

// CreateRecord 创建钱包流水
func (r *GormWalletRepository) CreateRecord(record *models.MerchantWalletRecord) error {
	return r.db.Create(record).Error
}

// GetRecordByReference 按幂等引用获取流水
func (r *GormWalletRepository) GetRecordByReference(reference string) (*models.MerchantWalletRecord, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, nil
	}
	var record models.MerchantWalletRecord
	if err := r.db.Where("reference = ?", reference).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// ListRecords 分页查询钱包流水
func (r *GormWalletRepository) ListRecords(filter WalletRecordListFilter) ([]models.MerchantWalletRecord, int64, error) {
	query := r.db.Model(&models.MerchantWalletRecord{})
	if filter.MerchantID != 0 {
		query = query.Where("merchant_id = ?", filter.MerchantID)
	}
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	if filter.TradeNo != "" {
		query = query.Where("trade_no = ?", filter.TradeNo)
	}
	if filter.CreatedFrom != nil {
		query = query.Where("created_at >= ?", *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		query = query.Where("created_at <= ?", *filter.CreatedTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = applyPagination(query, filter.Page, filter.PageSize)

	var records []models.MerchantWalletRecord
	if err := query.Order("id desc").Find(&records).Error; err != nil {
		return nil, 0, err
	}
	return records, total, nil
}
