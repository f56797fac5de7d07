package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/paygate-next/internal/constants"
	"github.com/paygate-next/internal/gateway"
	"github.com/paygate-next/internal/logger"
	"github.com/paygate-next/internal/models"
	"github.com/paygate-next/internal/queue"
	"github.com/paygate-next/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const refundNoPrefix = "R"

// RefundService 退款状态机：余额校验、渠道退款、钱包回冲
type RefundService struct {
	orderRepo    *repository.GormOrderRepository
	refundRepo   *repository.GormRefundRepository
	merchantRepo *repository.GormMerchantRepository
	channelRepo  *repository.GormChannelRepository
	registry     *gateway.Registry
	settle       *SettleService
	queueClient  TaskEnqueuer
}

// NewRefundService 创建退款服务
func NewRefundService(
	orderRepo *repository.GormOrderRepository,
	refundRepo *repository.GormRefundRepository,
	merchantRepo *repository.GormMerchantRepository,
	channelRepo *repository.GormChannelRepository,
	registry *gateway.Registry,
	settle *SettleService,
	queueClient TaskEnqueuer,
) *RefundService {
	return &RefundService{
		orderRepo:    orderRepo,
		refundRepo:   refundRepo,
		merchantRepo: merchantRepo,
		channelRepo:  channelRepo,
		registry:     registry,
		settle:       settle,
		queueClient:  queueClient,
	}
}

// CreateRefundInput 退款申请输入
type CreateRefundInput struct {
	TradeNo     string
	OutRefundNo string
	Amount      string
	Reason      string
	Initiator   string // merchant / admin
}

// Create 受理退款申请。可退余额在订单行锁内复核，
// 未完结（待处理/处理中/已完成）退款之和不得超过订单金额。
func (s *RefundService) Create(merchant *models.Merchant, input CreateRefundInput) (*models.OrderRefund, error) {
	if merchant == nil {
		return nil, ErrMerchantNotFound
	}
	if merchant.Status != constants.MerchantStatusActive {
		return nil, ErrMerchantDisabled
	}
	if !merchant.CanRefund {
		return nil, ErrMerchantNoPerm
	}
	outRefundNo := strings.TrimSpace(input.OutRefundNo)
	if outRefundNo == "" || len(outRefundNo) > 64 {
		return nil, fmt.Errorf("%w: out_refund_no", ErrRefundInvalid)
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(input.Amount))
	if err != nil {
		return nil, fmt.Errorf("%w: amount", ErrRefundInvalid)
	}
	amount = amount.Round(2)
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: amount", ErrRefundInvalid)
	}

	var refund *models.OrderRefund
	err = models.DB.Transaction(func(tx *gorm.DB) error {
		orderRepo := s.orderRepo.WithTx(tx)
		refundRepo := s.refundRepo.WithTx(tx)

		order, err := orderRepo.GetByTradeNoForUpdate(input.TradeNo)
		if err != nil {
			return err
		}
		if order == nil || order.MerchantID != merchant.ID {
			return ErrOrderNotFound
		}
		if order.TradeState != constants.TradeStateSuccess &&
			order.TradeState != constants.TradeStateFinished {
			return fmt.Errorf("%w: %s", ErrOrderStateInvalid, order.TradeState)
		}

		existing, err := refundRepo.GetByMerchantOutRefundNo(merchant.ID, outRefundNo)
		if err != nil {
			return err
		}
		if existing != nil {
			return ErrRefundDuplicate
		}

		active, err := refundRepo.SumActiveAmountByTradeNo(order.TradeNo)
		if err != nil {
			return err
		}
		if active.Decimal.Add(amount).GreaterThan(order.TotalAmount.Decimal) {
			return ErrRefundExceeded
		}

		refundNo, err := s.allocateRefundNo(refundRepo, time.Now())
		if err != nil {
			return err
		}
		refund = &models.OrderRefund{
			RefundNo:    refundNo,
			TradeNo:     order.TradeNo,
			MerchantID:  merchant.ID,
			OutRefundNo: outRefundNo,
			Amount:      models.NewMoneyFromDecimal(amount),
			State:       constants.RefundStatePending,
			Reason:      strings.TrimSpace(input.Reason),
			Initiator:   strings.TrimSpace(input.Initiator),
			NotifyState: constants.NotifyStatePending,
		}
		return refundRepo.Create(refund)
	})
	if err != nil {
		return nil, err
	}
	logger.Infow("refund_created",
		"refund_no", refund.RefundNo,
		"trade_no", refund.TradeNo,
		"amount", refund.Amount.String(),
	)
	return refund, nil
}

// Execute 执行退款：PENDING→PROCESSING，调用渠道退款，
// 成功则回冲商户钱包并进入 COMPLETED，失败进入 FAILED。
func (s *RefundService) Execute(ctx context.Context, refundNo string) error {
	refund, err := s.claimProcessing(refundNo)
	if err != nil {
		return err
	}
	if refund == nil {
		return nil
	}

	order, err := s.orderRepo.GetByTradeNo(refund.TradeNo)
	if err != nil {
		return err
	}
	if order == nil || order.ChannelAccountID == nil {
		return s.markFailed(refundNo, fmt.Errorf("order channel unavailable"))
	}
	account, err := s.channelRepo.GetAccountByID(*order.ChannelAccountID)
	if err != nil {
		return err
	}
	if account == nil || account.Channel == nil {
		return s.markFailed(refundNo, fmt.Errorf("channel account missing"))
	}
	plugin, err := s.registry.Resolve(account.Channel.GatewayCode)
	if err != nil {
		return s.markFailed(refundNo, err)
	}

	result, err := plugin.Refund(ctx, &gateway.RefundRequest{
		TradeNo:    refund.TradeNo,
		RefundNo:   refund.RefundNo,
		APITradeNo: order.APITradeNo,
		Amount:     refund.Amount.String(),
		Reason:     refund.Reason,
		Config:     account.ConfigJSON,
	})
	if err != nil {
		logger.Warnw("refund_gateway_failed", "refund_no", refundNo, "error", err)
		return s.markFailed(refundNo, err)
	}
	if !result.Succeeded {
		return s.markFailed(refundNo, fmt.Errorf("gateway declined refund"))
	}

	return s.complete(refundNo, order.MerchantID, result.APIRefundNo)
}

// Reject 驳回待处理的退款申请
func (s *RefundService) Reject(refundNo string) error {
	return s.finishFromPending(refundNo, constants.RefundStateRejected)
}

// Cancel 撤销待处理的退款申请
func (s *RefundService) Cancel(refundNo string) error {
	return s.finishFromPending(refundNo, constants.RefundStateCanceled)
}

// GetForMerchant 按商户退款单号或平台退款号查询，校验归属
func (s *RefundService) GetForMerchant(merchantID uint, refundNo, outRefundNo string) (*models.OrderRefund, error) {
	var refund *models.OrderRefund
	var err error
	if strings.TrimSpace(refundNo) != "" {
		refund, err = s.refundRepo.GetByRefundNo(refundNo)
	} else {
		refund, err = s.refundRepo.GetByMerchantOutRefundNo(merchantID, outRefundNo)
	}
	if err != nil {
		return nil, err
	}
	if refund == nil || refund.MerchantID != merchantID {
		return nil, ErrRefundNotFound
	}
	return refund, nil
}

// ListForMerchant 分页查询商户自身的退款单
func (s *RefundService) ListForMerchant(merchantID uint, tradeNo, state string, page, pageSize int) ([]models.OrderRefund, int64, error) {
	return s.refundRepo.List(repository.RefundListFilter{
		Page:       normalizePage(page),
		PageSize:   normalizePageSize(pageSize),
		MerchantID: merchantID,
		TradeNo:    strings.TrimSpace(tradeNo),
		State:      strings.TrimSpace(state),
	})
}

// claimProcessing 抢占退款单：已在途或已终态返回 nil 幂等跳过
func (s *RefundService) claimProcessing(refundNo string) (*models.OrderRefund, error) {
	var claimed *models.OrderRefund
	err := models.DB.Transaction(func(tx *gorm.DB) error {
		refundRepo := s.refundRepo.WithTx(tx)
		refund, err := refundRepo.GetByRefundNoForUpdate(refundNo)
		if err != nil {
			return err
		}
		if refund == nil {
			return ErrRefundNotFound
		}
		if refund.State != constants.RefundStatePending {
			logger.Infow("refund_execute_skipped", "refund_no", refundNo, "state", refund.State)
			return nil
		}
		refund.State = constants.RefundStateProcessing
		if err := refundRepo.Update(refund); err != nil {
			return err
		}
		claimed = refund
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// complete 完成退款：钱包回冲与终态写入同一事务，回冲按退款号幂等
func (s *RefundService) complete(refundNo string, merchantID uint, apiRefundNo string) error {
	err := models.DB.Transaction(func(tx *gorm.DB) error {
		refundRepo := s.refundRepo.WithTx(tx)
		refund, err := refundRepo.GetByRefundNoForUpdate(refundNo)
		if err != nil {
			return err
		}
		if refund == nil {
			return ErrRefundNotFound
		}
		if refund.State != constants.RefundStateProcessing {
			return fmt.Errorf("%w: %s", ErrRefundStateInvalid, refund.State)
		}

		if _, err := s.settle.changeTx(tx, ChangeInput{
			MerchantID: merchantID,
			Delta:      refund.Amount.Decimal.Neg(),
			Type:       constants.WalletRecordTypeRefund,
			TradeNo:    refund.TradeNo,
			Reference:  "refund:" + refund.RefundNo,
			Note:       "order refund",
		}); err != nil {
			return err
		}

		now := time.Now()
		refund.State = constants.RefundStateCompleted
		refund.APIRefundNo = apiRefundNo
		refund.FinishTime = &now
		return refundRepo.Update(refund)
	})
	if err != nil {
		logger.Errorw("refund_complete_failed", "refund_no", refundNo, "error", err)
		return err
	}
	logger.Infow("refund_completed", "refund_no", refundNo)
	if err := s.queueClient.EnqueueRefundNotify(queue.RefundNotifyPayload{RefundNo: refundNo}, 0); err != nil {
		logger.Errorw("refund_notify_enqueue_failed", "refund_no", refundNo, "error", err)
	}
	return nil
}

func (s *RefundService) markFailed(refundNo string, cause error) error {
	err := models.DB.Transaction(func(tx *gorm.DB) error {
		refundRepo := s.refundRepo.WithTx(tx)
		refund, err := refundRepo.GetByRefundNoForUpdate(refundNo)
		if err != nil {
			return err
		}
		if refund == nil || refund.State != constants.RefundStateProcessing {
			return nil
		}
		now := time.Now()
		refund.State = constants.RefundStateFailed
		refund.FinishTime = &now
		return refundRepo.Update(refund)
	})
	if err != nil {
		return err
	}
	logger.Warnw("refund_failed", "refund_no", refundNo, "cause", cause)
	if err := s.queueClient.EnqueueRefundNotify(queue.RefundNotifyPayload{RefundNo: refundNo}, 0); err != nil {
		logger.Errorw("refund_notify_enqueue_failed", "refund_no", refundNo, "error", err)
	}
	return nil
}

func (s *RefundService) finishFromPending(refundNo, target string) error {
	err := models.DB.Transaction(func(tx *gorm.DB) error {
		refundRepo := s.refundRepo.WithTx(tx)
		refund, err := refundRepo.GetByRefundNoForUpdate(refundNo)
		if err != nil {
			return err
		}
		if refund == nil {
			return ErrRefundNotFound
		}
		if refund.State != constants.RefundStatePending {
			return fmt.Errorf("%w: %s", ErrRefundStateInvalid, refund.State)
		}
		now := time.Now()
		refund.State = target
		refund.FinishTime = &now
		return refundRepo.Update(refund)
	})
	if err != nil {
		return err
	}
	logger.Infow("refund_finished", "refund_no", refundNo, "state", target)
	return nil
}

func (s *RefundService) allocateRefundNo(refundRepo *repository.GormRefundRepository, now time.Time) (string, error) {
	for attempt := 0; attempt < tradeNoMaxAttempts; attempt++ {
		candidate := refundNoPrefix + now.Format("20060102150405") + randomDigits(8)
		existing, err := refundRepo.GetByRefundNo(candidate)
		if err != nil {
			return "", err
		}
		if existing == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: refund_no allocation exhausted", ErrRefundInvalid)
}
