package repository

import (
	"errors"
	"strings"

	"github.com/paygate-next/internal/constants"
	"github.com/paygate-next/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RefundRepository 退款单数据访问接口
type RefundRepository interface {
	Create(refund *models.OrderRefund) error
	Update(refund *models.OrderRefund) error
	GetByRefundNo(refundNo string) (*models.OrderRefund, error)
	GetByRefundNoForUpdate(refundNo string) (*models.OrderRefund, error)
	GetByMerchantOutRefundNo(merchantID uint, outRefundNo string) (*models.OrderRefund, error)
	SumActiveAmountByTradeNo(tradeNo string) (models.Money, error)
	List(filter RefundListFilter) ([]models.OrderRefund, int64, error)
	WithTx(tx *gorm.DB) *GormRefundRepository
}

// GormRefundRepository GORM 退款仓储实现
type GormRefundRepository struct {
	db *gorm.DB
}

// NewRefundRepository 创建退款仓储
func NewRefundRepository(db *gorm.DB) *GormRefundRepository {
	return &GormRefundRepository{db: db}
}

// WithTx 绑定事务
func (r *GormRefundRepository) WithTx(tx *gorm.DB) *GormRefundRepository {
	if tx == nil {
		return r
	}
	return &GormRefundRepository{db: tx}
}

// Create 创建退款单
func (r *GormRefundRepository) Create(refund *models.OrderRefund) error {
	return r.db.Create(refund).Error
}

// Update 更新退款单
func (r *GormRefundRepository) Update(refund *models.OrderRefund) error {
	return r.db.Save(refund).Error
}

// GetByRefundNo 按退款号获取退款单
func (r *GormRefundRepository) GetByRefundNo(refundNo string) (*models.OrderRefund, error) {
	refundNo = strings.TrimSpace(refundNo)
	if refundNo == "" {
		return nil, nil
	}
	var refund models.OrderRefund
	if err := r.db.Where("refund_no = ?", refundNo).First(&refund).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &refund, nil
}

// GetByRefundNoForUpdate 按退款号加锁获取退款单
func (r *GormRefundRepository) GetByRefundNoForUpdate(refundNo string) (*models.OrderRefund, error) {
	refundNo = strings.TrimSpace(refundNo)
	if refundNo == "" {
		return nil, nil
	}
	var refund models.OrderRefund
	if err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("refund_no = ?", refundNo).
		First(&refund).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &refund, nil
}

// GetByMerchantOutRefundNo 按商户退款单号获取退款单
func (r *GormRefundRepository) GetByMerchantOutRefundNo(merchantID uint, outRefundNo string) (*models.OrderRefund, error) {
	outRefundNo = strings.TrimSpace(outRefundNo)
	if merchantID == 0 || outRefundNo == "" {
		return nil, nil
	}
	var refund models.OrderRefund
	if err := r.db.Where("merchant_id = ? AND out_refund_no = ?", merchantID, outRefundNo).
		First(&refund).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &refund, nil
}

// SumActiveAmountByTradeNo 统计订单未终结退款占用金额（待处理、处理中、已完成）
func (r *GormRefundRepository) SumActiveAmountByTradeNo(tradeNo string) (models.Money, error) {
	tradeNo = strings.TrimSpace(tradeNo)
	if tradeNo == "" {
		return models.Money{}, nil
	}
	var refunds []models.OrderRefund
	if err := r.db.Where("trade_no = ? AND state IN ?", tradeNo, []string{
		constants.RefundStatePending,
		constants.RefundStateProcessing,
		constants.RefundStateCompleted,
	}).Find(&refunds).Error; err != nil {
		return models.Money{}, err
	}
	sum := decimal.Zero
	for _, refund := range refunds {
		sum = sum.Add(refund.Amount.Decimal)
	}
	return models.NewMoneyFromDecimal(sum), nil
}

// List 分页查询退款单
func (r *GormRefundRepository) List(filter RefundListFilter) ([]models.OrderRefund, int64, error) {
	query := r.db.Model(&models.OrderRefund{})
	if filter.MerchantID != 0 {
		query = query.Where("merchant_id = ?", filter.MerchantID)
	}
	if filter.TradeNo != "" {
		query = query.Where("trade_no = ?", filter.TradeNo)
	}
	if filter.State != "" {
		query = query.Where("state = ?", filter.State)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = applyPagination(query, filter.Page, filter.PageSize)

	var refunds []models.OrderRefund
	if err := query.Order("id desc").Find(&refunds).Error; err != nil {
		return nil, 0, err
	}
	return refunds, total, nil
}
