package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/paygate-next/internal/constants"
	"github.com/paygate-next/internal/logger"
	"github.com/paygate-next/internal/models"
	"github.com/paygate-next/internal/queue"
	"github.com/paygate-next/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// 结算失败重试只回看最近 7 天
const settleRetryLookbackDays = 7

// SettleService 结算与商户钱包账务
type SettleService struct {
	orderRepo        *repository.GormOrderRepository
	walletRepo       *repository.GormWalletRepository
	merchantRepo     *repository.GormMerchantRepository
	queueClient      TaskEnqueuer
	defaultCycleDays int
}

// NewSettleService 创建结算服务
func NewSettleService(
	orderRepo *repository.GormOrderRepository,
	walletRepo *repository.GormWalletRepository,
	merchantRepo *repository.GormMerchantRepository,
	queueClient TaskEnqueuer,
	defaultCycleDays int,
) *SettleService {
	return &SettleService{
		orderRepo:        orderRepo,
		walletRepo:       walletRepo,
		merchantRepo:     merchantRepo,
		queueClient:      queueClient,
		defaultCycleDays: defaultCycleDays,
	}
}

// ChangeInput 钱包变动输入
type ChangeInput struct {
	MerchantID  uint
	Delta       decimal.Decimal // 可用余额变动（正入负出）
	FreezeDelta decimal.Decimal // 冻结余额变动
	Type        string          // 流水类型
	TradeNo     string          // 关联交易号
	Reference   string          // 幂等引用，同一引用只记一次账
	Note        string
}

// Change 原子变动商户钱包：锁行、改余额、记流水在同一事务内完成。
// 同一 Reference 的重复调用直接返回已有流水，不再动账。
func (s *SettleService) Change(input ChangeInput) (*models.MerchantWalletRecord, error) {
	if input.MerchantID == 0 || input.Reference == "" {
		return nil, ErrWalletBusy
	}
	var record *models.MerchantWalletRecord
	err := models.DB.Transaction(func(tx *gorm.DB) error {
		var txErr error
		record, txErr = s.changeTx(tx, input)
		return txErr
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (s *SettleService) changeTx(tx *gorm.DB, input ChangeInput) (*models.MerchantWalletRecord, error) {
	walletRepo := s.walletRepo.WithTx(tx)

	existing, err := walletRepo.GetRecordByReference(input.Reference)
	if err != nil {
		return nil, ErrWalletBusy
	}
	if existing != nil {
		logger.Infow("wallet_change_idempotent_hit",
			"merchant_id", input.MerchantID,
			"reference", input.Reference,
		)
		return existing, nil
	}

	wallet, err := walletRepo.GetByMerchantIDForUpdate(input.MerchantID)
	if err != nil {
		return nil, ErrWalletBusy
	}
	if wallet == nil {
		// 首次动账时建行，再锁定
		wallet = &models.MerchantWallet{MerchantID: input.MerchantID}
		if err := walletRepo.Create(wallet); err != nil {
			return nil, ErrWalletBusy
		}
		wallet, err = walletRepo.GetByMerchantIDForUpdate(input.MerchantID)
		if err != nil || wallet == nil {
			return nil, ErrWalletBusy
		}
	}

	balanceBefore := wallet.Balance
	freezeBefore := wallet.FreezeBalance
	newBalance := balanceBefore.Decimal.Add(input.Delta)
	newFreeze := freezeBefore.Decimal.Add(input.FreezeDelta)
	if newBalance.IsNegative() || newFreeze.IsNegative() {
		return nil, ErrWalletInsufficient
	}

	wallet.Balance = models.NewMoneyFromDecimal(newBalance)
	wallet.FreezeBalance = models.NewMoneyFromDecimal(newFreeze)
	if err := walletRepo.Update(wallet); err != nil {
		return nil, ErrWalletBusy
	}

	record := &models.MerchantWalletRecord{
		MerchantID:    input.MerchantID,
		Type:          input.Type,
		Amount:        models.NewMoneyFromDecimal(input.Delta),
		FreezeAmount:  models.NewMoneyFromDecimal(input.FreezeDelta),
		BalanceBefore: balanceBefore,
		BalanceAfter:  wallet.Balance,
		FreezeBefore:  freezeBefore,
		FreezeAfter:   wallet.FreezeBalance,
		TradeNo:       input.TradeNo,
		Reference:     input.Reference,
		Note:          input.Note,
	}
	if err := walletRepo.CreateRecord(record); err != nil {
		return nil, ErrWalletBusy
	}
	return record, nil
}

// WalletRecordListInput 商户侧钱包流水查询条件
type WalletRecordListInput struct {
	Type        string
	TradeNo     string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Page        int
	PageSize    int
}

// ListWalletRecords 分页查询商户自身的钱包流水
func (s *SettleService) ListWalletRecords(merchantID uint, input WalletRecordListInput) ([]models.MerchantWalletRecord, int64, error) {
	return s.walletRepo.ListRecords(repository.WalletRecordListFilter{
		Page:        normalizePage(input.Page),
		PageSize:    normalizePageSize(input.PageSize),
		MerchantID:  merchantID,
		Type:        input.Type,
		TradeNo:     input.TradeNo,
		CreatedFrom: input.CreatedFrom,
		CreatedTo:   input.CreatedTo,
	})
}

// ScheduleSettle 订单支付成功后安排结算：PENDING→PROCESSING 并按商户周期
// 立即结算或入队延迟结算。无结算权限的商户停在 PENDING。
func (s *SettleService) ScheduleSettle(tradeNo string) error {
	order, err := s.orderRepo.GetByTradeNo(tradeNo)
	if err != nil {
		return err
	}
	if order == nil {
		return ErrOrderNotFound
	}
	if order.SettleState != constants.SettleStatePending {
		return nil
	}
	if order.PaymentTime == nil {
		return ErrSettleStateInvalid
	}

	merchant, err := s.merchantRepo.GetByID(order.MerchantID)
	if err != nil {
		return err
	}
	if merchant == nil {
		return ErrMerchantNotFound
	}
	if !merchant.CanSettle {
		logger.Infow("settle_skipped_no_permission",
			"trade_no", order.TradeNo,
			"merchant_id", merchant.ID,
		)
		return nil
	}
	if order.TradeState == constants.TradeStateFrozen {
		logger.Infow("settle_blocked_order_frozen", "trade_no", order.TradeNo)
		return nil
	}

	order.SettleState = constants.SettleStateProcessing
	if err := s.orderRepo.Update(order); err != nil {
		return err
	}

	delay := s.settleDelay(merchant, *order.PaymentTime, time.Now())
	if delay <= 0 {
		return s.SettleOrder(order.TradeNo)
	}
	if err := s.queueClient.EnqueueOrderSettle(queue.OrderSettlePayload{TradeNo: order.TradeNo}, delay); err != nil {
		logger.Errorw("settle_enqueue_failed", "trade_no", order.TradeNo, "error", err)
		s.markSettleFailed(order.TradeNo)
		return err
	}
	logger.Infow("settle_scheduled",
		"trade_no", order.TradeNo,
		"delay_seconds", int64(delay.Seconds()),
	)
	return nil
}

// ResumeSettle 恢复停在 PROCESSING 的结算：排程后订单被冻结时，
// 延迟任务触发会因冻结中止且不再有后续任务，解冻后由此按原定
// 结算时间重算剩余延迟，已到期立即结算。
func (s *SettleService) ResumeSettle(tradeNo string) error {
	order, err := s.orderRepo.GetByTradeNo(tradeNo)
	if err != nil {
		return err
	}
	if order == nil {
		return ErrOrderNotFound
	}
	if order.SettleState != constants.SettleStateProcessing {
		return nil
	}
	if order.TradeState != constants.TradeStateSuccess || order.PaymentTime == nil {
		return fmt.Errorf("%w: trade_state=%s", ErrSettleStateInvalid, order.TradeState)
	}
	merchant, err := s.merchantRepo.GetByID(order.MerchantID)
	if err != nil {
		return err
	}
	if merchant == nil {
		return ErrMerchantNotFound
	}

	delay := s.settleDelay(merchant, *order.PaymentTime, time.Now())
	if delay <= 0 {
		return s.SettleOrder(order.TradeNo)
	}
	if err := s.queueClient.EnqueueOrderSettle(queue.OrderSettlePayload{TradeNo: order.TradeNo}, delay); err != nil {
		logger.Errorw("settle_resume_enqueue_failed", "trade_no", order.TradeNo, "error", err)
		s.markSettleFailed(order.TradeNo)
		return err
	}
	logger.Infow("settle_resumed",
		"trade_no", order.TradeNo,
		"delay_seconds", int64(delay.Seconds()),
	)
	return nil
}

// SettleOrder 执行单笔结算。行锁下复核前置状态，任何不满足都不动账。
func (s *SettleService) SettleOrder(tradeNo string) error {
	err := models.DB.Transaction(func(tx *gorm.DB) error {
		orderRepo := s.orderRepo.WithTx(tx)
		order, err := orderRepo.GetByTradeNoForUpdate(tradeNo)
		if err != nil {
			return err
		}
		if order == nil {
			return ErrOrderNotFound
		}
		if order.TradeState != constants.TradeStateSuccess {
			return fmt.Errorf("%w: trade_state=%s", ErrSettleStateInvalid, order.TradeState)
		}
		if order.SettleState != constants.SettleStateProcessing {
			return fmt.Errorf("%w: settle_state=%s", ErrSettleStateInvalid, order.SettleState)
		}

		if _, err := s.changeTx(tx, ChangeInput{
			MerchantID: order.MerchantID,
			Delta:      order.ReceiptAmount.Decimal,
			Type:       constants.WalletRecordTypeSettle,
			TradeNo:    order.TradeNo,
			Reference:  "settle:" + order.TradeNo,
			Note:       "order settlement",
		}); err != nil {
			return err
		}

		now := time.Now()
		order.SettleState = constants.SettleStateCompleted
		order.SettleTime = &now
		return orderRepo.Update(order)
	})
	if err != nil {
		if isSettleAbort(err) {
			logger.Infow("settle_aborted", "trade_no", tradeNo, "reason", err.Error())
			return err
		}
		logger.Errorw("settle_failed", "trade_no", tradeNo, "error", err)
		s.markSettleFailed(tradeNo)
		return fmt.Errorf("%w: %v", ErrSettleFailed, err)
	}
	logger.Infow("settle_completed", "trade_no", tradeNo)
	return nil
}

// RetrySweep 结算失败重试：按支付时间加周期重算原定结算时间，
// 已过期立即结算，未到期按剩余延迟重新入队。单笔失败只告警，批次继续。
func (s *SettleService) RetrySweep(now time.Time) {
	since := now.AddDate(0, 0, -settleRetryLookbackDays)
	orders, err := s.orderRepo.ListFailedSettles(since, 200)
	if err != nil {
		logger.Errorw("settle_retry_sweep_list_failed", "error", err)
		return
	}
	for i := range orders {
		order := &orders[i]
		if err := s.retryOne(order, now); err != nil {
			// 行保持 FAILED，下一轮继续重试
			logger.Warnw("settle_retry_failed",
				"trade_no", order.TradeNo,
				"error", err,
			)
		}
	}
}

func (s *SettleService) retryOne(order *models.Order, now time.Time) error {
	if order.PaymentTime == nil {
		return ErrSettleStateInvalid
	}
	if order.TradeState == constants.TradeStateFrozen {
		return nil
	}
	merchant, err := s.merchantRepo.GetByID(order.MerchantID)
	if err != nil {
		return err
	}
	if merchant == nil {
		return ErrMerchantNotFound
	}

	order.SettleState = constants.SettleStateProcessing
	if err := s.orderRepo.Update(order); err != nil {
		return err
	}

	// 从原定结算时间重算延迟，而不是从当前时间重新起算
	delay := s.settleDelay(merchant, *order.PaymentTime, now)
	if delay <= 0 {
		return s.SettleOrder(order.TradeNo)
	}
	if err := s.queueClient.EnqueueOrderSettle(queue.OrderSettlePayload{TradeNo: order.TradeNo}, delay); err != nil {
		s.markSettleFailed(order.TradeNo)
		return err
	}
	logger.Infow("settle_retry_rescheduled",
		"trade_no", order.TradeNo,
		"delay_seconds", int64(delay.Seconds()),
	)
	return nil
}

// SettleDelay 返回距原定结算时间的剩余延迟
func (s *SettleService) settleDelay(merchant *models.Merchant, paymentTime, now time.Time) time.Duration {
	cycleDays := merchant.SettleCycleDays
	if cycleDays < 0 {
		cycleDays = s.defaultCycleDays
	}
	due := paymentTime.AddDate(0, 0, cycleDays)
	return due.Sub(now)
}

func (s *SettleService) markSettleFailed(tradeNo string) {
	if err := models.DB.Model(&models.Order{}).
		Where("trade_no = ? AND settle_state = ?", tradeNo, constants.SettleStateProcessing).
		Update("settle_state", constants.SettleStateFailed).Error; err != nil {
		logger.Errorw("settle_mark_failed_error", "trade_no", tradeNo, "error", err)
	}
}

func isSettleAbort(err error) bool {
	return errors.Is(err, ErrOrderNotFound) || errors.Is(err, ErrSettleStateInvalid)
}
