package service

import (
	"errors"
	"testing"
	"time"

	"github.com/paygate-next/internal/constants"
	"github.com/paygate-next/internal/gateway"
	"github.com/paygate-next/internal/models"
	"github.com/paygate-next/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func newSettleServiceForTest(t *testing.T, db *gorm.DB, defaultCycleDays int) *SettleService {
	t.Helper()
	return NewSettleService(
		repository.NewOrderRepository(db),
		repository.NewWalletRepository(db),
		repository.NewMerchantRepository(db),
		disabledQueueClient(t),
		defaultCycleDays,
	)
}

func seedPaidOrder(t *testing.T, db *gorm.DB, merchantID uint, tradeNo string, receipt decimal.Decimal, paymentTime time.Time) *models.Order {
	t.Helper()
	order := &models.Order{
		TradeNo:       tradeNo,
		MerchantID:    merchantID,
		OutTradeNo:    "OUT-" + tradeNo,
		Subject:       "测试商品",
		TotalAmount:   models.NewMoneyFromDecimal(receipt),
		ReceiptAmount: models.NewMoneyFromDecimal(receipt),
		TradeState:    constants.TradeStateSuccess,
		SettleState:   constants.SettleStatePending,
		NotifyState:   constants.NotifyStatePending,
		PaymentTime:   &paymentTime,
	}
	if err := db.Create(order).Error; err != nil {
		t.Fatalf("create order failed: %v", err)
	}
	return order
}

func walletBalance(t *testing.T, db *gorm.DB, merchantID uint) decimal.Decimal {
	t.Helper()
	var wallet models.MerchantWallet
	if err := db.Where("merchant_id = ?", merchantID).First(&wallet).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero
		}
		t.Fatalf("load wallet failed: %v", err)
	}
	return wallet.Balance.Decimal
}

func TestWalletChangeIdempotentByReference(t *testing.T) {
	db := newServiceTestDB(t, "settle_change")
	svc := newSettleServiceForTest(t, db, 1)
	merchant := seedMerchant(t, db, "M2001")

	input := ChangeInput{
		MerchantID: merchant.ID,
		Delta:      decimal.NewFromInt(100),
		Type:       constants.WalletRecordTypeSettle,
		TradeNo:    "P20260101120000000001",
		Reference:  "settle:P20260101120000000001",
	}
	first, err := svc.Change(input)
	if err != nil {
		t.Fatalf("change failed: %v", err)
	}
	second, err := svc.Change(input)
	if err != nil {
		t.Fatalf("repeated change failed: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected same record, got %d and %d", first.ID, second.ID)
	}
	if got := walletBalance(t, db, merchant.ID); !got.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("unexpected balance: %s", got)
	}
}

func TestWalletChangeInsufficient(t *testing.T) {
	db := newServiceTestDB(t, "settle_insufficient")
	svc := newSettleServiceForTest(t, db, 1)
	merchant := seedMerchant(t, db, "M2002")

	if _, err := svc.Change(ChangeInput{
		MerchantID: merchant.ID,
		Delta:      decimal.NewFromInt(10),
		Type:       constants.WalletRecordTypeSettle,
		Reference:  "settle:seed",
	}); err != nil {
		t.Fatalf("seed change failed: %v", err)
	}

	_, err := svc.Change(ChangeInput{
		MerchantID: merchant.ID,
		Delta:      decimal.NewFromInt(-20),
		Type:       constants.WalletRecordTypeRefund,
		Reference:  "refund:over",
	})
	if !errors.Is(err, ErrWalletInsufficient) {
		t.Fatalf("expected insufficient, got: %v", err)
	}
	if got := walletBalance(t, db, merchant.ID); !got.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("failed change mutated balance: %s", got)
	}
}

func TestScheduleSettleRealtime(t *testing.T) {
	db := newServiceTestDB(t, "settle_realtime")
	svc := newSettleServiceForTest(t, db, 0)
	merchant := seedMerchant(t, db, "M2003")
	order := seedPaidOrder(t, db, merchant.ID, "P20260101120000000002", decimal.NewFromFloat(98.50), time.Now())

	if err := svc.ScheduleSettle(order.TradeNo); err != nil {
		t.Fatalf("schedule settle failed: %v", err)
	}

	var got models.Order
	if err := db.Where("trade_no = ?", order.TradeNo).First(&got).Error; err != nil {
		t.Fatalf("load order failed: %v", err)
	}
	if got.SettleState != constants.SettleStateCompleted {
		t.Fatalf("unexpected settle_state: %s", got.SettleState)
	}
	if got.SettleTime == nil {
		t.Fatal("settle_time not stamped")
	}
	if balance := walletBalance(t, db, merchant.ID); !balance.Equal(decimal.NewFromFloat(98.50)) {
		t.Fatalf("unexpected balance: %s", balance)
	}
}

func TestScheduleSettleSkipsFrozen(t *testing.T) {
	db := newServiceTestDB(t, "settle_frozen")
	svc := newSettleServiceForTest(t, db, 0)
	merchant := seedMerchant(t, db, "M2004")
	order := seedPaidOrder(t, db, merchant.ID, "P20260101120000000003", decimal.NewFromInt(50), time.Now())
	if err := db.Model(&models.Order{}).
		Where("trade_no = ?", order.TradeNo).
		Update("trade_state", constants.TradeStateFrozen).Error; err != nil {
		t.Fatalf("freeze order failed: %v", err)
	}

	if err := svc.ScheduleSettle(order.TradeNo); err != nil {
		t.Fatalf("schedule settle failed: %v", err)
	}
	var got models.Order
	db.Where("trade_no = ?", order.TradeNo).First(&got)
	if got.SettleState != constants.SettleStatePending {
		t.Fatalf("frozen order should stay pending, got: %s", got.SettleState)
	}
	if balance := walletBalance(t, db, merchant.ID); !balance.IsZero() {
		t.Fatalf("frozen order must not settle: %s", balance)
	}
}

func TestSettleOrderRejectsWrongState(t *testing.T) {
	db := newServiceTestDB(t, "settle_wrong_state")
	svc := newSettleServiceForTest(t, db, 0)
	merchant := seedMerchant(t, db, "M2005")
	order := seedPaidOrder(t, db, merchant.ID, "P20260101120000000004", decimal.NewFromInt(50), time.Now())

	// 未先进入 PROCESSING，消费端直接结算应中止且不动账
	if err := svc.SettleOrder(order.TradeNo); !errors.Is(err, ErrSettleStateInvalid) {
		t.Fatalf("expected settle state invalid, got: %v", err)
	}
	if balance := walletBalance(t, db, merchant.ID); !balance.IsZero() {
		t.Fatalf("aborted settle must not credit wallet: %s", balance)
	}
}

func TestSettleRetrySweepRecovers(t *testing.T) {
	db := newServiceTestDB(t, "settle_retry")
	svc := newSettleServiceForTest(t, db, 0)
	merchant := seedMerchant(t, db, "M2006")
	paymentTime := time.Now().Add(-48 * time.Hour)
	order := seedPaidOrder(t, db, merchant.ID, "P20260101120000000005", decimal.NewFromInt(70), paymentTime)
	if err := db.Model(&models.Order{}).
		Where("trade_no = ?", order.TradeNo).
		Update("settle_state", constants.SettleStateFailed).Error; err != nil {
		t.Fatalf("mark failed failed: %v", err)
	}

	svc.RetrySweep(time.Now())

	var got models.Order
	db.Where("trade_no = ?", order.TradeNo).First(&got)
	if got.SettleState != constants.SettleStateCompleted {
		t.Fatalf("retry should settle, got: %s", got.SettleState)
	}
	if balance := walletBalance(t, db, merchant.ID); !balance.Equal(decimal.NewFromInt(70)) {
		t.Fatalf("unexpected balance: %s", balance)
	}
}

func TestSettleRetrySweepIgnoresOld(t *testing.T) {
	db := newServiceTestDB(t, "settle_retry_old")
	svc := newSettleServiceForTest(t, db, 0)
	merchant := seedMerchant(t, db, "M2007")
	paymentTime := time.Now().AddDate(0, 0, -10)
	order := seedPaidOrder(t, db, merchant.ID, "P20260101120000000006", decimal.NewFromInt(70), paymentTime)
	if err := db.Model(&models.Order{}).
		Where("trade_no = ?", order.TradeNo).
		Updates(map[string]interface{}{
			"settle_state": constants.SettleStateFailed,
			"updated_at":   paymentTime,
		}).Error; err != nil {
		t.Fatalf("backdate failed: %v", err)
	}

	svc.RetrySweep(time.Now())

	var got models.Order
	db.Where("trade_no = ?", order.TradeNo).First(&got)
	if got.SettleState != constants.SettleStateFailed {
		t.Fatalf("order outside lookback should stay failed, got: %s", got.SettleState)
	}
}

func TestUnfreezeResumesScheduledSettlement(t *testing.T) {
	db := newServiceTestDB(t, "settle_unfreeze_resume")
	rec := &recordingEnqueuer{}
	orderRepo := repository.NewOrderRepository(db)
	merchantRepo := repository.NewMerchantRepository(db)
	walletRepo := repository.NewWalletRepository(db)
	settle := NewSettleService(orderRepo, walletRepo, merchantRepo, rec, 1)
	svc := NewOrderService(
		orderRepo,
		merchantRepo,
		repository.NewChannelRepository(db),
		gateway.NewRegistry(),
		NewOrderExtensionStore(orderRepo),
		settle,
		rec,
		OrderOptions{DefaultExpireMinutes: 120, CallbackBaseURL: "http://gateway.local"},
	)

	merchant := seedMerchant(t, db, "M2101")
	merchant.SettleCycleDays = 1
	if err := db.Save(merchant).Error; err != nil {
		t.Fatalf("update merchant failed: %v", err)
	}
	seedChannelAccount(t, db, "keypay", "keypay", decimal.Zero)

	order, err := svc.Create(merchant, CreateOrderInput{
		OutTradeNo:  "OUT-1",
		TotalAmount: "100.00",
		Subject:     "测试商品",
		NotifyURL:   "https://merchant.example.com/notify",
	})
	if err != nil {
		t.Fatalf("create order failed: %v", err)
	}
	if err := svc.MarkSuccess(order.TradeNo, MarkSuccessInput{}); err != nil {
		t.Fatalf("mark success failed: %v", err)
	}
	if got := rec.byKind("order_settle"); len(got) != 1 || got[0].delay <= 0 {
		t.Fatalf("expected one delayed settle task, got %+v", got)
	}

	// 排程之后才冻结：延迟任务触发时结算中止
	if _, err := svc.Freeze(order.TradeNo); err != nil {
		t.Fatalf("freeze failed: %v", err)
	}
	if err := settle.SettleOrder(order.TradeNo); !errors.Is(err, ErrSettleStateInvalid) {
		t.Fatalf("expected settle abort on frozen order, got: %v", err)
	}
	if got := walletBalance(t, db, merchant.ID); !got.IsZero() {
		t.Fatalf("frozen order mutated wallet: %s", got)
	}

	// 解冻要把中断的结算续上
	if _, err := svc.Unfreeze(order.TradeNo); err != nil {
		t.Fatalf("unfreeze failed: %v", err)
	}
	settles := rec.byKind("order_settle")
	if len(settles) != 2 {
		t.Fatalf("unfreeze did not reschedule settlement, tasks: %+v", settles)
	}
	if settles[1].key != order.TradeNo || settles[1].delay <= 0 {
		t.Fatalf("unexpected resume task: %+v", settles[1])
	}

	// 到期任务触发后入账一次，重复触发不再动账
	if err := settle.SettleOrder(order.TradeNo); err != nil {
		t.Fatalf("settle after unfreeze failed: %v", err)
	}
	var got models.Order
	db.Where("trade_no = ?", order.TradeNo).First(&got)
	if got.SettleState != constants.SettleStateCompleted {
		t.Fatalf("unexpected settle_state: %s", got.SettleState)
	}
	balance := walletBalance(t, db, merchant.ID)
	if !balance.Equal(got.ReceiptAmount.Decimal) {
		t.Fatalf("unexpected balance: %s", balance)
	}
	if err := settle.SettleOrder(order.TradeNo); !errors.Is(err, ErrSettleStateInvalid) {
		t.Fatalf("expected repeat settle rejected, got: %v", err)
	}
	if again := walletBalance(t, db, merchant.ID); !again.Equal(balance) {
		t.Fatalf("repeat settle mutated wallet: %s", again)
	}
}

func TestRetrySweepReenqueuesRemainingDelay(t *testing.T) {
	db := newServiceTestDB(t, "settle_retry_delay")
	rec := &recordingEnqueuer{}
	settle := NewSettleService(
		repository.NewOrderRepository(db),
		repository.NewWalletRepository(db),
		repository.NewMerchantRepository(db),
		rec,
		1,
	)
	merchant := seedMerchant(t, db, "M2102")
	merchant.SettleCycleDays = 3
	if err := db.Save(merchant).Error; err != nil {
		t.Fatalf("update merchant failed: %v", err)
	}

	now := time.Now()
	paymentTime := now.AddDate(0, 0, -1)
	order := seedPaidOrder(t, db, merchant.ID, "P20260101120000000021", decimal.NewFromInt(50), paymentTime)
	if err := db.Model(&models.Order{}).
		Where("trade_no = ?", order.TradeNo).
		Update("settle_state", constants.SettleStateFailed).Error; err != nil {
		t.Fatalf("preset settle_state failed: %v", err)
	}

	settle.RetrySweep(now)

	var got models.Order
	db.Where("trade_no = ?", order.TradeNo).First(&got)
	if got.SettleState != constants.SettleStateProcessing {
		t.Fatalf("unexpected settle_state: %s", got.SettleState)
	}
	tasks := rec.byKind("order_settle")
	if len(tasks) != 1 {
		t.Fatalf("expected one re-enqueued settle task, got %d", len(tasks))
	}
	// 支付后 1 天、周期 3 天，剩余延迟应在 2 天附近
	if tasks[0].delay < 47*time.Hour || tasks[0].delay > 49*time.Hour {
		t.Fatalf("unexpected remaining delay: %s", tasks[0].delay)
	}
}
