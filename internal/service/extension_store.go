package service

import (
	"context"

	"github.com/paygate-next/internal/models"
	"github.com/paygate-next/internal/repository"

	"gorm.io/gorm"
)

// OrderExtensionStore 订单扩展数据存取，实现网关插件的幂等锁：
// 行锁内读取已有扩展数据，插件只在为空时调渠道并写回。
type OrderExtensionStore struct {
	orderRepo *repository.GormOrderRepository
}

// NewOrderExtensionStore 创建扩展数据存取
func NewOrderExtensionStore(orderRepo *repository.GormOrderRepository) *OrderExtensionStore {
	return &OrderExtensionStore{orderRepo: orderRepo}
}

// WithOrderLock 在订单行锁内执行 fn，fn 返回非 nil 数据时写回订单
func (s *OrderExtensionStore) WithOrderLock(ctx context.Context, tradeNo string, fn func(existing models.JSON) (models.JSON, error)) (models.JSON, error) {
	var result models.JSON
	err := models.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		orderRepo := s.orderRepo.WithTx(tx)
		order, err := orderRepo.GetByTradeNoForUpdate(tradeNo)
		if err != nil {
			return err
		}
		if order == nil {
			return ErrOrderNotFound
		}
		updated, err := fn(order.ExtensionData)
		if err != nil {
			return err
		}
		if updated == nil {
			result = order.ExtensionData
			return nil
		}
		order.ExtensionData = updated
		if err := orderRepo.Update(order); err != nil {
			return err
		}
		result = updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
