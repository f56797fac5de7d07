package repository

import (
	"errors"
	"strings"

	"github.com/paygate-next/internal/models"

	"gorm.io/gorm"
)

// ChannelRepository 支付渠道数据访问接口
type ChannelRepository interface {
	GetChannelByID(id uint) (*models.PaymentChannel, error)
	GetChannelByCode(code string) (*models.PaymentChannel, error)
	ListEnabledChannels() ([]models.PaymentChannel, error)
	GetAccountByID(id uint) (*models.PaymentChannelAccount, error)
	ListAccountsByChannelID(channelID uint) ([]models.PaymentChannelAccount, error)
	CreateChannel(channel *models.PaymentChannel) error
	CreateAccount(account *models.PaymentChannelAccount) error
	UpdateAccount(account *models.PaymentChannelAccount) error
	WithTx(tx *gorm.DB) *GormChannelRepository
}

// GormChannelRepository GORM 支付渠道仓储实现
type GormChannelRepository struct {
	db *gorm.DB
}

// NewChannelRepository 创建渠道仓储
func NewChannelRepository(db *gorm.DB) *GormChannelRepository {
	return &GormChannelRepository{db: db}
}

// WithTx 绑定事务
func (r *GormChannelRepository) WithTx(tx *gorm.DB) *GormChannelRepository {
	if tx == nil {
		return r
	}
	return &GormChannelRepository{db: tx}
}

// GetChannelByID 按ID获取渠道
func (r *GormChannelRepository) GetChannelByID(id uint) (*models.PaymentChannel, error) {
	if id == 0 {
		return nil, nil
	}
	var channel models.PaymentChannel
	if err := r.db.First(&channel, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &channel, nil
}

// GetChannelByCode 按渠道编码获取渠道
func (r *GormChannelRepository) GetChannelByCode(code string) (*models.PaymentChannel, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, nil
	}
	var channel models.PaymentChannel
	if err := r.db.Where("code = ?", code).First(&channel).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &channel, nil
}

// ListEnabledChannels 按优先级列出可用渠道（不含维护中）
func (r *GormChannelRepository) ListEnabledChannels() ([]models.PaymentChannel, error) {
	var channels []models.PaymentChannel
	if err := r.db.Where("enabled = ? AND maintenance = ?", true, false).
		Order("sort_order asc, id asc").
		Find(&channels).Error; err != nil {
		return nil, err
	}
	return channels, nil
}

// GetAccountByID 按ID获取渠道账户（含所属渠道）
func (r *GormChannelRepository) GetAccountByID(id uint) (*models.PaymentChannelAccount, error) {
	if id == 0 {
		return nil, nil
	}
	var account models.PaymentChannelAccount
	if err := r.db.Preload("Channel").First(&account, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

// ListAccountsByChannelID 按优先级列出渠道下可用账户
func (r *GormChannelRepository) ListAccountsByChannelID(channelID uint) ([]models.PaymentChannelAccount, error) {
	if channelID == 0 {
		return []models.PaymentChannelAccount{}, nil
	}
	var accounts []models.PaymentChannelAccount
	if err := r.db.Where("channel_id = ?", channelID).
		Order("sort_order asc, id asc").
		Find(&accounts).Error; err != nil {
		return nil, err
	}
	return accounts, nil
}

// CreateChannel 创建渠道
func (r *GormChannelRepository) CreateChannel(channel *models.PaymentChannel) error {
	return r.db.Create(channel).Error
}

// CreateAccount 创建渠道账户
func (r *GormChannelRepository) CreateAccount(account *models.PaymentChannelAccount) error {
	return r.db.Create(account).Error
}

// UpdateAccount 更新渠道账户
func (r *GormChannelRepository) UpdateAccount(account *models.PaymentChannelAccount) error {
	return r.db.Save(account).Error
}
