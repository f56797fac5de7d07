package repository

import (
	"github.com/paygate-next/internal/models"

	"gorm.io/gorm"
)

// NotificationRepository 通知投递记录数据访问接口
type NotificationRepository interface {
	Create(notification *models.OrderNotification) error
	List(filter NotificationListFilter) ([]models.OrderNotification, int64, error)
	WithTx(tx *gorm.DB) *GormNotificationRepository
}

// GormNotificationRepository GORM 通知记录仓储实现
type GormNotificationRepository struct {
	db *gorm.DB
}

// NewNotificationRepository 创建通知记录仓储
func NewNotificationRepository(db *gorm.DB) *GormNotificationRepository {
	return &GormNotificationRepository{db: db}
}

// WithTx 绑定事务
func (r *GormNotificationRepository) WithTx(tx *gorm.DB) *GormNotificationRepository {
	if tx == nil {
		return r
	}
	return &GormNotificationRepository{db: tx}
}

// Create 追加一条投递记录（只增不改）
func (r *GormNotificationRepository) Create(notification *models.OrderNotification) error {
	return r.db.Create(notification).Error
}

// List 分页查询投递记录
func (r *GormNotificationRepository) List(filter NotificationListFilter) ([]models.OrderNotification, int64, error) {
	query := r.db.Model(&models.OrderNotification{})
	if filter.TradeNo != "" {
		query = query.Where("trade_no = ?", filter.TradeNo)
	}
	if filter.BizType != "" {
		query = query.Where("biz_type = ?", filter.BizType)
	}
	if filter.RefundNo != "" {
		query = query.Where("refund_no = ?", filter.RefundNo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = applyPagination(query, filter.Page, filter.PageSize)

	var notifications []models.OrderNotification
	if err := query.Order("id desc").Find(&notifications).Error; err != nil {
		return nil, 0, err
	}
	return notifications, total, nil
}
