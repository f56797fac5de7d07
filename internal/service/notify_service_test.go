package service

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/paygate-next/internal/constants"
	"github.com/paygate-next/internal/models"
	"github.com/paygate-next/internal/repository"
	"github.com/paygate-next/internal/sign"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func newNotifyServiceForTest(t *testing.T, db *gorm.DB) *NotifyService {
	t.Helper()
	return NewNotifyService(
		repository.NewOrderRepository(db),
		repository.NewRefundRepository(db),
		repository.NewMerchantRepository(db),
		repository.NewNotificationRepository(db),
		disabledQueueClient(t),
		5*time.Second,
	)
}

func seedNotifiableOrder(t *testing.T, db *gorm.DB, merchantID uint, tradeNo, notifyURL string) *models.Order {
	t.Helper()
	now := time.Now()
	order := &models.Order{
		TradeNo:        tradeNo,
		MerchantID:     merchantID,
		OutTradeNo:     "OUT-" + tradeNo,
		Subject:        "测试商品",
		TotalAmount:    models.NewMoneyFromDecimal(decimal.NewFromInt(100)),
		BuyerPayAmount: models.NewMoneyFromDecimal(decimal.NewFromInt(100)),
		ReceiptAmount:  models.NewMoneyFromDecimal(decimal.NewFromFloat(98.50)),
		FeeAmount:      models.NewMoneyFromDecimal(decimal.NewFromFloat(1.50)),
		TradeState:     constants.TradeStateSuccess,
		SettleState:    constants.SettleStateCompleted,
		NotifyState:    constants.NotifyStatePending,
		NotifyURL:      notifyURL,
		PaymentTime:    &now,
	}
	if err := db.Create(order).Error; err != nil {
		t.Fatalf("create order failed: %v", err)
	}
	return order
}

func TestNotifyDeliverOrderSuccess(t *testing.T) {
	db := newServiceTestDB(t, "notify_success")
	merchant := seedMerchant(t, db, "M3001")

	var received map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &received); err != nil {
			t.Errorf("bad notify body: %v", err)
		}
		w.Write([]byte("success"))
	}))
	defer server.Close()

	order := seedNotifiableOrder(t, db, merchant.ID, "P20260101120000000010", server.URL)
	svc := newNotifyServiceForTest(t, db)

	if err := svc.DeliverOrder(context.Background(), order.TradeNo); err != nil {
		t.Fatalf("deliver failed: %v", err)
	}

	var got models.Order
	db.Where("trade_no = ?", order.TradeNo).First(&got)
	if got.NotifyState != constants.NotifyStateSuccess {
		t.Fatalf("unexpected notify_state: %s", got.NotifyState)
	}
	if got.NotifyRetryCount != 1 {
		t.Fatalf("unexpected retry count: %d", got.NotifyRetryCount)
	}
	if got.NotifyNextRetryTime != nil {
		t.Fatal("next retry time should be cleared")
	}

	// 投递报文必须带可验证的签名
	if received["trade_no"] != order.TradeNo || received["trade_state"] != constants.TradeStateSuccess {
		t.Fatalf("unexpected payload: %+v", received)
	}
	signature := received["sign"]
	signType := received["sign_type"]
	params := map[string]string{}
	for k, v := range received {
		params[k] = v
	}
	content := sign.BuildSignableString(params)
	if err := sign.VerifyWith(signType, content, signature, sign.Material{HashKey: "test-hash-key"}); err != nil {
		t.Fatalf("notify signature invalid: %v", err)
	}

	var record models.OrderNotification
	if err := db.Where("trade_no = ?", order.TradeNo).First(&record).Error; err != nil {
		t.Fatalf("notification record missing: %v", err)
	}
	if !record.Succeeded || record.AttemptNo != 1 || record.HTTPStatus != http.StatusOK {
		t.Fatalf("unexpected record: %+v", record)
	}
}

func TestNotifyDeliverOrderNonAckSchedulesRetry(t *testing.T) {
	db := newServiceTestDB(t, "notify_retry")
	merchant := seedMerchant(t, db, "M3002")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok")) // 非 success 应答视为失败
	}))
	defer server.Close()

	order := seedNotifiableOrder(t, db, merchant.ID, "P20260101120000000011", server.URL)
	svc := newNotifyServiceForTest(t, db)

	if err := svc.DeliverOrder(context.Background(), order.TradeNo); err != nil {
		t.Fatalf("deliver failed: %v", err)
	}

	var got models.Order
	db.Where("trade_no = ?", order.TradeNo).First(&got)
	if got.NotifyState != constants.NotifyStatePending {
		t.Fatalf("unexpected notify_state: %s", got.NotifyState)
	}
	if got.NotifyRetryCount != 1 {
		t.Fatalf("unexpected retry count: %d", got.NotifyRetryCount)
	}
	if got.NotifyNextRetryTime == nil {
		t.Fatal("next retry time not scheduled")
	}
}

func TestNotifyDeliverOrderExhausted(t *testing.T) {
	db := newServiceTestDB(t, "notify_exhausted")
	merchant := seedMerchant(t, db, "M3003")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	order := seedNotifiableOrder(t, db, merchant.ID, "P20260101120000000012", server.URL)
	if err := db.Model(&models.Order{}).
		Where("trade_no = ?", order.TradeNo).
		Update("notify_retry_count", constants.NotifyMaxAttempts-1).Error; err != nil {
		t.Fatalf("preset retry count failed: %v", err)
	}
	svc := newNotifyServiceForTest(t, db)

	if err := svc.DeliverOrder(context.Background(), order.TradeNo); err != nil {
		t.Fatalf("deliver failed: %v", err)
	}

	var got models.Order
	db.Where("trade_no = ?", order.TradeNo).First(&got)
	if got.NotifyState != constants.NotifyStateFailed {
		t.Fatalf("unexpected notify_state: %s", got.NotifyState)
	}
	if got.NotifyRetryCount != constants.NotifyMaxAttempts {
		t.Fatalf("unexpected retry count: %d", got.NotifyRetryCount)
	}
	if got.NotifyNextRetryTime != nil {
		t.Fatal("terminal state must clear next retry time")
	}
}

func TestNotifyDeliverOrderTerminalSkipped(t *testing.T) {
	db := newServiceTestDB(t, "notify_skip")
	merchant := seedMerchant(t, db, "M3004")
	order := seedNotifiableOrder(t, db, merchant.ID, "P20260101120000000013", "http://unreachable.invalid/notify")
	if err := db.Model(&models.Order{}).
		Where("trade_no = ?", order.TradeNo).
		Update("notify_state", constants.NotifyStateSuccess).Error; err != nil {
		t.Fatalf("preset notify state failed: %v", err)
	}
	svc := newNotifyServiceForTest(t, db)

	if err := svc.DeliverOrder(context.Background(), order.TradeNo); err != nil {
		t.Fatalf("deliver failed: %v", err)
	}
	var count int64
	db.Model(&models.OrderNotification{}).Where("trade_no = ?", order.TradeNo).Count(&count)
	if count != 0 {
		t.Fatalf("terminal order must not deliver, got %d records", count)
	}
}

func TestNotifyRedeliverIgnoresCounters(t *testing.T) {
	db := newServiceTestDB(t, "notify_redeliver")
	merchant := seedMerchant(t, db, "M3005")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(" success \n"))
	}))
	defer server.Close()

	order := seedNotifiableOrder(t, db, merchant.ID, "P20260101120000000014", server.URL)
	if err := db.Model(&models.Order{}).
		Where("trade_no = ?", order.TradeNo).
		Updates(map[string]interface{}{
			"notify_state":       constants.NotifyStateFailed,
			"notify_retry_count": constants.NotifyMaxAttempts,
		}).Error; err != nil {
		t.Fatalf("preset failed state failed: %v", err)
	}
	svc := newNotifyServiceForTest(t, db)

	if err := svc.Redeliver(context.Background(), order.TradeNo); err != nil {
		t.Fatalf("redeliver failed: %v", err)
	}

	var got models.Order
	db.Where("trade_no = ?", order.TradeNo).First(&got)
	if got.NotifyState != constants.NotifyStateSuccess {
		t.Fatalf("unexpected notify_state: %s", got.NotifyState)
	}
	if got.NotifyRetryCount != constants.NotifyMaxAttempts {
		t.Fatalf("redeliver must not change counters: %d", got.NotifyRetryCount)
	}
}

func TestNotifyDeliverRefund(t *testing.T) {
	db := newServiceTestDB(t, "notify_refund")
	merchant := seedMerchant(t, db, "M3006")

	var received map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &received)
		w.Write([]byte("success"))
	}))
	defer server.Close()

	order := seedNotifiableOrder(t, db, merchant.ID, "P20260101120000000015", server.URL)
	now := time.Now()
	refund := &models.OrderRefund{
		RefundNo:    "R20260101120000000001",
		TradeNo:     order.TradeNo,
		MerchantID:  merchant.ID,
		OutRefundNo: "ROUT-1",
		Amount:      models.NewMoneyFromDecimal(decimal.NewFromInt(40)),
		State:       constants.RefundStateCompleted,
		NotifyState: constants.NotifyStatePending,
		FinishTime:  &now,
	}
	if err := db.Create(refund).Error; err != nil {
		t.Fatalf("create refund failed: %v", err)
	}
	svc := newNotifyServiceForTest(t, db)

	if err := svc.DeliverRefund(context.Background(), refund.RefundNo); err != nil {
		t.Fatalf("deliver refund failed: %v", err)
	}

	var got models.OrderRefund
	db.Where("refund_no = ?", refund.RefundNo).First(&got)
	if got.NotifyState != constants.NotifyStateSuccess || got.NotifyRetryCount != 1 {
		t.Fatalf("unexpected refund notify: state=%s count=%d", got.NotifyState, got.NotifyRetryCount)
	}
	if received["refund_no"] != refund.RefundNo || received["state"] != constants.RefundStateCompleted {
		t.Fatalf("unexpected refund payload: %+v", received)
	}

	var record models.OrderNotification
	if err := db.Where("refund_no = ?", refund.RefundNo).First(&record).Error; err != nil {
		t.Fatalf("refund notification record missing: %v", err)
	}
	if record.BizType != constants.NotifyBizTypeRefund {
		t.Fatalf("unexpected biz_type: %s", record.BizType)
	}
}

func TestNotifyRetryDelaySequence(t *testing.T) {
	db := newServiceTestDB(t, "notify_delay_seq")
	merchant := seedMerchant(t, db, "M3005")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	order := seedNotifiableOrder(t, db, merchant.ID, "P20260101120000000015", server.URL)
	rec := &recordingEnqueuer{}
	svc := NewNotifyService(
		repository.NewOrderRepository(db),
		repository.NewRefundRepository(db),
		repository.NewMerchantRepository(db),
		repository.NewNotificationRepository(db),
		rec,
		5*time.Second,
	)

	for attempt := 1; attempt <= constants.NotifyMaxAttempts; attempt++ {
		// 把下次重试时间拨到过去，让本次投递立即执行
		if err := db.Model(&models.Order{}).
			Where("trade_no = ?", order.TradeNo).
			Update("notify_next_retry_time", time.Now().Add(-time.Minute)).Error; err != nil {
			t.Fatalf("reset retry time failed: %v", err)
		}
		if err := svc.DeliverOrder(context.Background(), order.TradeNo); err != nil {
			t.Fatalf("deliver attempt %d failed: %v", attempt, err)
		}
	}

	expected := []time.Duration{
		0,
		10 * time.Second,
		20 * time.Second,
		30 * time.Second,
		60 * time.Second,
		60 * time.Second,
		120 * time.Second,
	}
	tasks := rec.byKind("order_notify")
	if len(tasks) != len(expected) {
		t.Fatalf("expected %d retry tasks, got %d", len(expected), len(tasks))
	}
	for i, task := range tasks {
		if task.delay != expected[i] {
			t.Fatalf("retry %d: expected delay %s, got %s", i+1, expected[i], task.delay)
		}
	}

	var got models.Order
	db.Where("trade_no = ?", order.TradeNo).First(&got)
	if got.NotifyState != constants.NotifyStateFailed {
		t.Fatalf("unexpected notify_state: %s", got.NotifyState)
	}
	if got.NotifyNextRetryTime != nil {
		t.Fatal("exhausted order still has retry time")
	}
	if got.NotifyRetryCount != constants.NotifyMaxAttempts {
		t.Fatalf("unexpected retry count: %d", got.NotifyRetryCount)
	}
}
