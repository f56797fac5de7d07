package repository

import (
	"errors"
	"strings"
	"time"

	"github.com/paygate-next/internal/constants"
	"github.com/paygate-next/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OrderRepository 订单数据访问接口
type OrderRepository interface {
	Create(order *models.Order) error
	CreateBuyer(buyer *models.OrderBuyer) error
	Update(order *models.Order) error
	GetByTradeNo(tradeNo string) (*models.Order, error)
	GetByTradeNoForUpdate(tradeNo string) (*models.Order, error)
	GetByMerchantOutTradeNo(merchantID uint, outTradeNo string) (*models.Order, error)
	GetBuyerByOrderID(orderID uint) (*models.OrderBuyer, error)
	ListExpiredWaitPay(now time.Time, limit int) ([]models.Order, error)
	ListFailedSettles(since time.Time, limit int) ([]models.Order, error)
	List(filter OrderListFilter) ([]models.Order, int64, error)
	WithTx(tx *gorm.DB) *GormOrderRepository
}

// GormOrderRepository GORM 订单仓储实现
type GormOrderRepository struct {
	db *gorm.DB
}

// NewOrderRepository 创建订单仓储
func NewOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

// WithTx 绑定事务
func (r *GormOrderRepository) WithTx(tx *gorm.DB) *GormOrderRepository {
	if tx == nil {
		return r
	}
	return &GormOrderRepository{db: tx}
}

// Create 创建订单
func (r *GormOrderRepository) Create(order *models.Order) error {
	return r.db.Create(order).Error
}

// CreateBuyer 创建买家快照
func (r *GormOrderRepository) CreateBuyer(buyer *models.OrderBuyer) error {
	return r.db.Create(buyer).Error
}

// Update 更新订单
func (r *GormOrderRepository) Update(order *models.Order) error {
	return r.db.Save(order).Error
}

// GetByTradeNo 按交易号获取订单
func (r *GormOrderRepository) GetByTradeNo(tradeNo string) (*models.Order, error) {
	tradeNo = strings.TrimSpace(tradeNo)
	if tradeNo == "" {
		return nil, nil
	}
	var order models.Order
	if err := r.db.Where("trade_no = ?", tradeNo).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

// GetByTradeNoForUpdate 按交易号加锁获取订单
func (r *GormOrderRepository) GetByTradeNoForUpdate(tradeNo string) (*models.Order, error) {
	tradeNo = strings.TrimSpace(tradeNo)
	if tradeNo == "" {
		return nil, nil
	}
	var order models.Order
	if err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("trade_no = ?", tradeNo).
		First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

// GetByMerchantOutTradeNo 按商户订单号获取订单
func (r *GormOrderRepository) GetByMerchantOutTradeNo(merchantID uint, outTradeNo string) (*models.Order, error) {
	outTradeNo = strings.TrimSpace(outTradeNo)
	if merchantID == 0 || outTradeNo == "" {
		return nil, nil
	}
	var order models.Order
	if err := r.db.Where("merchant_id = ? AND out_trade_no = ?", merchantID, outTradeNo).
		First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

// GetBuyerByOrderID 按订单ID获取买家快照
func (r *GormOrderRepository) GetBuyerByOrderID(orderID uint) (*models.OrderBuyer, error) {
	if orderID == 0 {
		return nil, nil
	}
	var buyer models.OrderBuyer
	if err := r.db.Where("order_id = ?", orderID).First(&buyer).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &buyer, nil
}

// ListExpiredWaitPay 列出已到关单时间的待支付订单（限定批量）
func (r *GormOrderRepository) ListExpiredWaitPay(now time.Time, limit int) ([]models.Order, error) {
	if limit <= 0 {
		limit = 200
	}
	var orders []models.Order
	if err := r.db.Where("trade_state = ? AND close_time IS NOT NULL AND close_time <= ?",
		constants.TradeStateWaitPay, now).
		Order("close_time asc").
		Limit(limit).
		Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

// ListFailedSettles 列出指定时间之后结算失败的订单（限定批量）
func (r *GormOrderRepository) ListFailedSettles(since time.Time, limit int) ([]models.Order, error) {
	if limit <= 0 {
		limit = 200
	}
	var orders []models.Order
	if err := r.db.Where("settle_state = ? AND payment_time IS NOT NULL AND payment_time >= ?",
		constants.SettleStateFailed, since).
		Order("payment_time asc").
		Limit(limit).
		Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

// List 分页查询订单
func (r *GormOrderRepository) List(filter OrderListFilter) ([]models.Order, int64, error) {
	query := r.db.Model(&models.Order{})
	if filter.MerchantID != 0 {
		query = query.Where("merchant_id = ?", filter.MerchantID)
	}
	if filter.TradeNo != "" {
		query = query.Where("trade_no = ?", filter.TradeNo)
	}
	if filter.OutTradeNo != "" {
		query = query.Where("out_trade_no = ?", filter.OutTradeNo)
	}
	if filter.TradeState != "" {
		query = query.Where("trade_state = ?", filter.TradeState)
	}
	if filter.SettleState != "" {
		query = query.Where("settle_state = ?", filter.SettleState)
	}
	if filter.ChannelCode != "" {
		query = query.Where("channel_code = ?", filter.ChannelCode)
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

	var orders []models.Order
	if err := query.Order("id desc").Find(&orders).Error; err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}
