package callback

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/paygate-next/internal/constants"
	"github.com/paygate-next/internal/gateway"
	"github.com/paygate-next/internal/models"
	"github.com/paygate-next/internal/provider"
	"github.com/paygate-next/internal/queue"
	"github.com/paygate-next/internal/repository"
	"github.com/paygate-next/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// callbackStubGateway 按表单 status 字段决定验真结果的网关桩
type callbackStubGateway struct{}

func (g *callbackStubGateway) Code() string             { return "stubpay" }
func (g *callbackStubGateway) RequiredConfig() []string { return nil }

func (g *callbackStubGateway) Submit(ctx context.Context, req *gateway.SubmitRequest) (*gateway.SubmitResult, error) {
	return &gateway.SubmitResult{Kind: constants.SubmitKindQRCode, QRContent: "qr"}, nil
}

func (g *callbackStubGateway) Notify(ctx context.Context, req *gateway.NotifyRequest) (*gateway.NotifyResult, error) {
	status := ""
	if values, ok := req.Form["status"]; ok && len(values) > 0 {
		status = values[0]
	}
	if status != "paid" {
		return &gateway.NotifyResult{Succeeded: false, TradeStatus: status, AckBody: "success"}, nil
	}
	return &gateway.NotifyResult{
		Succeeded:  true,
		APITradeNo: "RAIL-CB-1",
		Amount:     req.Amount,
		AckBody:    "success",
	}, nil
}

func (g *callbackStubGateway) Refund(ctx context.Context, req *gateway.RefundRequest) (*gateway.RefundResult, error) {
	return &gateway.RefundResult{Succeeded: true}, nil
}

func newCallbackTestEnv(t *testing.T) (*gorm.DB, *provider.Container) {
	t.Helper()
	dsn := fmt.Sprintf("file:callback_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(
		&models.Merchant{},
		&models.MerchantEncryption{},
		&models.MerchantWallet{},
		&models.MerchantWalletRecord{},
		&models.PaymentChannel{},
		&models.PaymentChannelAccount{},
		&models.Order{},
		&models.OrderBuyer{},
		&models.OrderRefund{},
		&models.OrderNotification{},
	); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	models.DB = db

	orderRepo := repository.NewOrderRepository(db)
	merchantRepo := repository.NewMerchantRepository(db)
	channelRepo := repository.NewChannelRepository(db)
	walletRepo := repository.NewWalletRepository(db)

	queueClient, err := queue.NewClient(nil)
	if err != nil {
		t.Fatalf("new queue client failed: %v", err)
	}
	registry := gateway.NewRegistry()
	if err := registry.Register(&callbackStubGateway{}); err != nil {
		t.Fatalf("register stub gateway failed: %v", err)
	}

	settle := service.NewSettleService(orderRepo, walletRepo, merchantRepo, queueClient, 1)
	orderService := service.NewOrderService(
		orderRepo,
		merchantRepo,
		channelRepo,
		registry,
		service.NewOrderExtensionStore(orderRepo),
		settle,
		queueClient,
		service.OrderOptions{DefaultExpireMinutes: 120, CallbackBaseURL: "http://gateway.local"},
	)

	return db, &provider.Container{
		QueueClient:   queueClient,
		Registry:      registry,
		MerchantRepo:  merchantRepo,
		ChannelRepo:   channelRepo,
		OrderRepo:     orderRepo,
		WalletRepo:    walletRepo,
		SettleService: settle,
		OrderService:  orderService,
	}
}

func seedCallbackOrder(t *testing.T, db *gorm.DB, container *provider.Container) *models.Order {
	t.Helper()
	merchant := &models.Merchant{
		MerchantNo: "M4001",
		Name:       "回调测试商户",
		Status:     constants.MerchantStatusActive,
		CanSettle:  true,
		CanRefund:  true,
	}
	if err := db.Create(merchant).Error; err != nil {
		t.Fatalf("create merchant failed: %v", err)
	}
	channel := &models.PaymentChannel{
		Code:        "stubpay",
		Name:        "stubpay",
		GatewayCode: "stubpay",
		FeeRate:     models.NewMoneyFromDecimal(decimal.NewFromFloat(1.5)),
		Enabled:     true,
	}
	if err := db.Create(channel).Error; err != nil {
		t.Fatalf("create channel failed: %v", err)
	}
	account := &models.PaymentChannelAccount{
		ChannelID:  channel.ID,
		Name:       "stubpay-1",
		Status:     constants.ChannelAccountStatusEnabled,
		ConfigJSON: models.JSON{"gateway_url": "http://rail.local"},
	}
	if err := db.Create(account).Error; err != nil {
		t.Fatalf("create channel account failed: %v", err)
	}

	order, err := container.OrderService.Create(merchant, service.CreateOrderInput{
		OutTradeNo:  "OUT-CB-1",
		TotalAmount: "100.00",
		Subject:     "回调测试",
		NotifyURL:   "https://shop.example.com/notify",
		ChannelCode: "stubpay",
	})
	if err != nil {
		t.Fatalf("create order failed: %v", err)
	}
	return order
}

func newCallbackRouter(container *provider.Container) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := New(container)
	r := gin.New()
	r.POST("/callback/:tradeNo/:method", h.Entry)
	r.GET("/callback/:tradeNo/:method", h.Entry)
	return r
}

func postCallbackForm(r *gin.Engine, path string, form url.Values) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r.ServeHTTP(w, req)
	return w
}

func TestCallbackEntryMarksOrderSuccess(t *testing.T) {
	db, container := newCallbackTestEnv(t)
	order := seedCallbackOrder(t, db, container)
	r := newCallbackRouter(container)

	form := url.Values{}
	form.Set("status", "paid")
	w := postCallbackForm(r, "/callback/"+order.TradeNo+"/notify", form)

	if w.Code != http.StatusOK {
		t.Fatalf("status want 200 got %d: %s", w.Code, w.Body.String())
	}
	if strings.TrimSpace(w.Body.String()) != "success" {
		t.Fatalf("ack body want success got %q", w.Body.String())
	}

	var stored models.Order
	if err := db.Where("trade_no = ?", order.TradeNo).First(&stored).Error; err != nil {
		t.Fatalf("load order failed: %v", err)
	}
	if stored.TradeState != constants.TradeStateSuccess {
		t.Fatalf("trade_state want SUCCESS got %s", stored.TradeState)
	}
	if stored.APITradeNo != "RAIL-CB-1" {
		t.Fatalf("api_trade_no want RAIL-CB-1 got %s", stored.APITradeNo)
	}
}

func TestCallbackEntryNonSuccessLeavesOrderUntouched(t *testing.T) {
	db, container := newCallbackTestEnv(t)
	order := seedCallbackOrder(t, db, container)
	r := newCallbackRouter(container)

	form := url.Values{}
	form.Set("status", "pending")
	w := postCallbackForm(r, "/callback/"+order.TradeNo+"/notify", form)

	if w.Code != http.StatusOK {
		t.Fatalf("status want 200 got %d", w.Code)
	}

	var stored models.Order
	if err := db.Where("trade_no = ?", order.TradeNo).First(&stored).Error; err != nil {
		t.Fatalf("load order failed: %v", err)
	}
	if stored.TradeState != constants.TradeStateWaitPay {
		t.Fatalf("non-success callback should keep WAIT_PAY, got %s", stored.TradeState)
	}
}

func TestCallbackEntryUnknownMethod(t *testing.T) {
	_, container := newCallbackTestEnv(t)
	r := newCallbackRouter(container)

	w := postCallbackForm(r, "/callback/P20240101120000123456780/unknown", url.Values{})
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown method want 404 got %d", w.Code)
	}
}

func TestCallbackEntryUnknownOrder(t *testing.T) {
	_, container := newCallbackTestEnv(t)
	r := newCallbackRouter(container)

	form := url.Values{}
	form.Set("status", "paid")
	w := postCallbackForm(r, "/callback/P20240101120000123456780/notify", form)
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown order want 404 got %d", w.Code)
	}
}
