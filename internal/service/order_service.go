package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode"

	"github.com/paygate-next/internal/constants"
	"github.com/paygate-next/internal/gateway"
	"github.com/paygate-next/internal/logger"
	"github.com/paygate-next/internal/models"
	"github.com/paygate-next/internal/queue"
	"github.com/paygate-next/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	expirySweepBatchSize = 200
	tradeNoMaxAttempts   = 5
)

var (
	platformAmountMin = decimal.RequireFromString(constants.PlatformAmountMin)
	platformAmountMax = decimal.RequireFromString(constants.PlatformAmountMax)
)

// OrderOptions 订单业务配置
type OrderOptions struct {
	DefaultExpireMinutes int      // 未指定关单时间时的默认时长
	SubjectBlocklist     []string // 订单标题违禁词
	CallbackBaseURL      string   // 渠道回调回到平台的对外地址
}

// OrderService 订单状态机：创建、支付成功、关闭、冻结的唯一入口
type OrderService struct {
	orderRepo    *repository.GormOrderRepository
	merchantRepo *repository.GormMerchantRepository
	channelRepo  *repository.GormChannelRepository
	registry     *gateway.Registry
	extensions   *OrderExtensionStore
	settle       *SettleService
	queueClient  TaskEnqueuer
	options      OrderOptions
}

// NewOrderService 创建订单服务
func NewOrderService(
	orderRepo *repository.GormOrderRepository,
	merchantRepo *repository.GormMerchantRepository,
	channelRepo *repository.GormChannelRepository,
	registry *gateway.Registry,
	extensions *OrderExtensionStore,
	settle *SettleService,
	queueClient TaskEnqueuer,
	options OrderOptions,
) *OrderService {
	if options.DefaultExpireMinutes <= 0 {
		options.DefaultExpireMinutes = 120
	}
	return &OrderService{
		orderRepo:    orderRepo,
		merchantRepo: merchantRepo,
		channelRepo:  channelRepo,
		registry:     registry,
		extensions:   extensions,
		settle:       settle,
		queueClient:  queueClient,
		options:      options,
	}
}

// CreateOrderInput 商户下单输入
type CreateOrderInput struct {
	OutTradeNo  string
	TotalAmount string
	Subject     string
	NotifyURL   string
	ReturnURL   string
	ChannelCode string     // 为空时自动选择
	CloseTime   *time.Time // 为空时按默认时长
	ClientIP    string
	UserAgent   string
	CertType    string
	CertNo      string
	BuyerName   string
}

// Create 校验并落库新订单，分配交易号、选定渠道账户、安排到期关单
func (s *OrderService) Create(merchant *models.Merchant, input CreateOrderInput) (*models.Order, error) {
	if merchant == nil {
		return nil, ErrMerchantNotFound
	}
	if merchant.Status != constants.MerchantStatusActive {
		return nil, ErrMerchantDisabled
	}
	outTradeNo := strings.TrimSpace(input.OutTradeNo)
	if outTradeNo == "" || len(outTradeNo) > 64 {
		return nil, fmt.Errorf("%w: out_trade_no", ErrOrderInvalid)
	}
	amount, err := s.validateAmount(merchant, input.TotalAmount)
	if err != nil {
		return nil, err
	}
	if err := s.validateSubject(input.Subject); err != nil {
		return nil, err
	}
	if err := validateHTTPURL(input.NotifyURL); err != nil {
		return nil, fmt.Errorf("%w: notify_url", ErrURLInvalid)
	}
	if strings.TrimSpace(input.ReturnURL) != "" {
		if err := validateHTTPURL(input.ReturnURL); err != nil {
			return nil, fmt.Errorf("%w: return_url", ErrURLInvalid)
		}
	}
	now := time.Now()
	closeTime, err := s.resolveCloseTime(input.CloseTime, now)
	if err != nil {
		return nil, err
	}
	if err := validateBuyerIdentity(input.CertType, input.CertNo); err != nil {
		return nil, err
	}

	existing, err := s.orderRepo.GetByMerchantOutTradeNo(merchant.ID, outTradeNo)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrOrderDuplicate
	}

	account, channel, err := s.selectChannelAccount(input.ChannelCode, amount)
	if err != nil {
		return nil, err
	}

	tradeNo, err := s.allocateTradeNo(now)
	if err != nil {
		return nil, err
	}

	order := &models.Order{
		TradeNo:     tradeNo,
		MerchantID:  merchant.ID,
		OutTradeNo:  outTradeNo,
		Subject:     strings.TrimSpace(input.Subject),
		TotalAmount: models.NewMoneyFromDecimal(amount),
		TradeState:  constants.TradeStateWaitPay,
		SettleState: constants.SettleStatePending,
		NotifyState: constants.NotifyStatePending,
		NotifyURL:   strings.TrimSpace(input.NotifyURL),
		ReturnURL:   strings.TrimSpace(input.ReturnURL),
		CloseTime:   &closeTime,
	}
	if account != nil {
		order.ChannelAccountID = &account.ID
		order.ChannelCode = channel.Code
	}

	err = models.DB.Transaction(func(tx *gorm.DB) error {
		orderRepo := s.orderRepo.WithTx(tx)
		if err := orderRepo.Create(order); err != nil {
			return err
		}
		buyer := &models.OrderBuyer{
			OrderID:   order.ID,
			TradeNo:   order.TradeNo,
			ClientIP:  strings.TrimSpace(input.ClientIP),
			UserAgent: strings.TrimSpace(input.UserAgent),
			CertType:  strings.TrimSpace(input.CertType),
			CertNo:    strings.TrimSpace(input.CertNo),
			BuyerName: strings.TrimSpace(input.BuyerName),
		}
		return orderRepo.CreateBuyer(buyer)
	})
	if err != nil {
		return nil, err
	}

	if err := s.queueClient.EnqueueOrderExpireClose(
		queue.OrderExpireClosePayload{TradeNo: order.TradeNo},
		closeTime.Sub(now),
	); err != nil {
		// 到期关单有定时扫描兜底
		logger.Warnw("order_expire_enqueue_failed", "trade_no", order.TradeNo, "error", err)
	}

	logger.Infow("order_created",
		"trade_no", order.TradeNo,
		"merchant_id", merchant.ID,
		"out_trade_no", outTradeNo,
		"amount", order.TotalAmount.String(),
		"channel_code", order.ChannelCode,
	)
	return order, nil
}

// Submit 将订单递交到所选渠道，返回归一化的支付引导结果
func (s *OrderService) Submit(ctx context.Context, tradeNo string) (*gateway.SubmitResult, error) {
	order, err := s.orderRepo.GetByTradeNo(tradeNo)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	if order.TradeState != constants.TradeStateWaitPay {
		return nil, ErrOrderStateInvalid
	}
	if order.ChannelAccountID == nil {
		return nil, ErrChannelUnavailable
	}
	account, err := s.channelRepo.GetAccountByID(*order.ChannelAccountID)
	if err != nil {
		return nil, err
	}
	if account == nil || account.Channel == nil {
		return nil, ErrChannelUnavailable
	}
	plugin, err := s.registry.Resolve(account.Channel.GatewayCode)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrChannelUnavailable, err)
	}

	buyer, err := s.orderRepo.GetBuyerByOrderID(order.ID)
	if err != nil {
		return nil, err
	}
	clientIP := ""
	if buyer != nil {
		clientIP = buyer.ClientIP
	}

	result, err := plugin.Submit(ctx, &gateway.SubmitRequest{
		TradeNo:    order.TradeNo,
		OutTradeNo: order.OutTradeNo,
		Amount:     order.TotalAmount.String(),
		Subject:    order.Subject,
		ClientIP:   clientIP,
		NotifyURL:  s.callbackURL(order.TradeNo, constants.CallbackMethodNotify),
		ReturnURL:  order.ReturnURL,
		Config:     account.ConfigJSON,
		Extensions: s.extensions,
	})
	if err != nil {
		logger.Errorw("order_submit_gateway_failed",
			"trade_no", order.TradeNo,
			"gateway_code", account.Channel.GatewayCode,
			"error", err,
		)
		return nil, fmt.Errorf("%w: %v", ErrGatewayFailed, err)
	}
	return result, nil
}

// Close 关闭待支付订单。渠道侧撤单尽力而为，失败不阻塞本地关闭。
func (s *OrderService) Close(tradeNo string) (*models.Order, error) {
	s.closeUpstream(tradeNo)

	var closed *models.Order
	err := models.DB.Transaction(func(tx *gorm.DB) error {
		orderRepo := s.orderRepo.WithTx(tx)
		order, err := orderRepo.GetByTradeNoForUpdate(tradeNo)
		if err != nil {
			return err
		}
		if order == nil {
			return ErrOrderNotFound
		}
		if order.TradeState == constants.TradeStateClosed {
			closed = order
			return nil
		}
		if !CanTransitionTrade(order.TradeState, constants.TradeStateClosed) {
			return fmt.Errorf("%w: %s", ErrOrderStateInvalid, order.TradeState)
		}
		now := time.Now()
		order.TradeState = constants.TradeStateClosed
		order.ClosedAt = &now
		if err := orderRepo.Update(order); err != nil {
			return err
		}
		closed = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Infow("order_closed", "trade_no", tradeNo)
	return closed, nil
}

// closeUpstream 渠道侧撤单，仅在插件声明 Closer 能力时发起
func (s *OrderService) closeUpstream(tradeNo string) {
	order, err := s.orderRepo.GetByTradeNo(tradeNo)
	if err != nil || order == nil || order.ChannelAccountID == nil {
		return
	}
	if order.TradeState != constants.TradeStateWaitPay {
		return
	}
	account, err := s.channelRepo.GetAccountByID(*order.ChannelAccountID)
	if err != nil || account == nil || account.Channel == nil {
		return
	}
	plugin, err := s.registry.Resolve(account.Channel.GatewayCode)
	if err != nil {
		return
	}
	closer, ok := plugin.(gateway.Closer)
	if !ok {
		return
	}
	if err := closer.Close(context.Background(), &gateway.CloseRequest{
		TradeNo:    order.TradeNo,
		APITradeNo: order.APITradeNo,
		Config:     account.ConfigJSON,
	}); err != nil {
		logger.Warnw("order_upstream_close_failed", "trade_no", tradeNo, "error", err)
	}
}

// Freeze 风控冻结：SUCCESS→FROZEN，冻结期间结算被阻断
func (s *OrderService) Freeze(tradeNo string) (*models.Order, error) {
	return s.transition(tradeNo, constants.TradeStateFrozen, func(order *models.Order) {})
}

// Unfreeze 人工解冻：FROZEN→SUCCESS，待结算的订单重新安排结算
func (s *OrderService) Unfreeze(tradeNo string) (*models.Order, error) {
	order, err := s.transition(tradeNo, constants.TradeStateSuccess, func(order *models.Order) {})
	if err != nil {
		return nil, err
	}
	switch order.SettleState {
	case constants.SettleStatePending:
		if err := s.settle.ScheduleSettle(order.TradeNo); err != nil {
			logger.Warnw("order_unfreeze_settle_schedule_failed", "trade_no", tradeNo, "error", err)
		}
	case constants.SettleStateProcessing:
		// 冻结发生在排程之后：延迟任务已因冻结中止，这里续上
		if err := s.settle.ResumeSettle(order.TradeNo); err != nil {
			logger.Warnw("order_unfreeze_settle_resume_failed", "trade_no", tradeNo, "error", err)
		}
	}
	return order, nil
}

// Finish 完结订单：结算完成后 SUCCESS→FINISHED
func (s *OrderService) Finish(tradeNo string) (*models.Order, error) {
	return s.transition(tradeNo, constants.TradeStateFinished, func(order *models.Order) {})
}

func (s *OrderService) transition(tradeNo, target string, mutate func(*models.Order)) (*models.Order, error) {
	var result *models.Order
	err := models.DB.Transaction(func(tx *gorm.DB) error {
		orderRepo := s.orderRepo.WithTx(tx)
		order, err := orderRepo.GetByTradeNoForUpdate(tradeNo)
		if err != nil {
			return err
		}
		if order == nil {
			return ErrOrderNotFound
		}
		if !CanTransitionTrade(order.TradeState, target) {
			return fmt.Errorf("%w: %s -> %s", ErrOrderStateInvalid, order.TradeState, target)
		}
		order.TradeState = target
		mutate(order)
		if err := orderRepo.Update(order); err != nil {
			return err
		}
		result = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Infow("order_state_transitioned", "trade_no", tradeNo, "target", target)
	return result, nil
}

// ExpirySweep 批量关闭已到期的待支付订单，单笔失败记录后继续
func (s *OrderService) ExpirySweep(now time.Time) int {
	orders, err := s.orderRepo.ListExpiredWaitPay(now, expirySweepBatchSize)
	if err != nil {
		logger.Errorw("order_expiry_sweep_list_failed", "error", err)
		return 0
	}
	closed := 0
	for i := range orders {
		if _, err := s.Close(orders[i].TradeNo); err != nil {
			logger.Warnw("order_expiry_close_failed",
				"trade_no", orders[i].TradeNo,
				"error", err,
			)
			continue
		}
		closed++
	}
	if closed > 0 {
		logger.Infow("order_expiry_sweep_done", "closed", closed)
	}
	return closed
}

// GetByTradeNo 查询订单
func (s *OrderService) GetByTradeNo(tradeNo string) (*models.Order, error) {
	order, err := s.orderRepo.GetByTradeNo(tradeNo)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

// GetForMerchant 按商户订单号或交易号查询，校验归属
func (s *OrderService) GetForMerchant(merchantID uint, tradeNo, outTradeNo string) (*models.Order, error) {
	var order *models.Order
	var err error
	if strings.TrimSpace(tradeNo) != "" {
		order, err = s.orderRepo.GetByTradeNo(tradeNo)
	} else {
		order, err = s.orderRepo.GetByMerchantOutTradeNo(merchantID, outTradeNo)
	}
	if err != nil {
		return nil, err
	}
	if order == nil || order.MerchantID != merchantID {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

// OrderListInput 商户侧订单列表查询条件
type OrderListInput struct {
	TradeState  string
	SettleState string
	ChannelCode string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Page        int
	PageSize    int
}

// ListForMerchant 分页查询商户自身的订单
func (s *OrderService) ListForMerchant(merchantID uint, input OrderListInput) ([]models.Order, int64, error) {
	return s.orderRepo.List(repository.OrderListFilter{
		Page:        normalizePage(input.Page),
		PageSize:    normalizePageSize(input.PageSize),
		MerchantID:  merchantID,
		TradeState:  input.TradeState,
		SettleState: input.SettleState,
		ChannelCode: input.ChannelCode,
		CreatedFrom: input.CreatedFrom,
		CreatedTo:   input.CreatedTo,
	})
}

func (s *OrderService) validateAmount(merchant *models.Merchant, raw string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: total_amount", ErrOrderInvalid)
	}
	amount = amount.Round(2)
	if amount.LessThan(platformAmountMin) || amount.GreaterThan(platformAmountMax) {
		return decimal.Zero, ErrOrderAmountInvalid
	}
	if !merchant.OrderMinAmount.Decimal.IsZero() && amount.LessThan(merchant.OrderMinAmount.Decimal) {
		return decimal.Zero, ErrOrderAmountInvalid
	}
	if !merchant.OrderMaxAmount.Decimal.IsZero() && amount.GreaterThan(merchant.OrderMaxAmount.Decimal) {
		return decimal.Zero, ErrOrderAmountInvalid
	}
	return amount, nil
}

func (s *OrderService) validateSubject(subject string) error {
	subject = strings.TrimSpace(subject)
	if subject == "" || len(subject) > constants.SubjectMaxLength {
		return ErrSubjectInvalid
	}
	for _, r := range subject {
		if unicode.IsControl(r) {
			return ErrSubjectInvalid
		}
	}
	lower := strings.ToLower(subject)
	for _, word := range s.options.SubjectBlocklist {
		word = strings.ToLower(strings.TrimSpace(word))
		if word != "" && strings.Contains(lower, word) {
			return ErrSubjectInvalid
		}
	}
	return nil
}

func (s *OrderService) resolveCloseTime(requested *time.Time, now time.Time) (time.Time, error) {
	if requested == nil {
		return now.Add(time.Duration(s.options.DefaultExpireMinutes) * time.Minute), nil
	}
	value := *requested
	if value.Before(now.Add(time.Minute)) || value.After(now.Add(24*time.Hour)) {
		return time.Time{}, ErrCloseTimeInvalid
	}
	return value, nil
}

// selectChannelAccount 选渠道账户：指定编码只在该渠道内找，
// 否则按渠道优先级自动挑选；账户限额覆盖渠道限额（null 继承）。
func (s *OrderService) selectChannelAccount(channelCode string, amount decimal.Decimal) (*models.PaymentChannelAccount, *models.PaymentChannel, error) {
	var channels []models.PaymentChannel
	if strings.TrimSpace(channelCode) != "" {
		channel, err := s.channelRepo.GetChannelByCode(channelCode)
		if err != nil {
			return nil, nil, err
		}
		if channel == nil || !channel.Enabled || channel.Maintenance {
			return nil, nil, ErrChannelUnavailable
		}
		channels = []models.PaymentChannel{*channel}
	} else {
		list, err := s.channelRepo.ListEnabledChannels()
		if err != nil {
			return nil, nil, err
		}
		channels = list
	}

	for i := range channels {
		channel := &channels[i]
		if !channelAmountAllowed(channel, amount) {
			continue
		}
		accounts, err := s.channelRepo.ListAccountsByChannelID(channel.ID)
		if err != nil {
			return nil, nil, err
		}
		for j := range accounts {
			account := &accounts[j]
			if account.Status != constants.ChannelAccountStatusEnabled {
				continue
			}
			if !accountAmountAllowed(channel, account, amount) {
				continue
			}
			return account, channel, nil
		}
	}
	return nil, nil, ErrChannelUnavailable
}

func channelAmountAllowed(channel *models.PaymentChannel, amount decimal.Decimal) bool {
	if !channel.MinAmount.Decimal.IsZero() && amount.LessThan(channel.MinAmount.Decimal) {
		return false
	}
	if !channel.MaxAmount.Decimal.IsZero() && amount.GreaterThan(channel.MaxAmount.Decimal) {
		return false
	}
	return true
}

func accountAmountAllowed(channel *models.PaymentChannel, account *models.PaymentChannelAccount, amount decimal.Decimal) bool {
	min := channel.MinAmount
	if account.MinAmount != nil {
		min = *account.MinAmount
	}
	max := channel.MaxAmount
	if account.MaxAmount != nil {
		max = *account.MaxAmount
	}
	if !min.Decimal.IsZero() && amount.LessThan(min.Decimal) {
		return false
	}
	if !max.Decimal.IsZero() && amount.GreaterThan(max.Decimal) {
		return false
	}
	return true
}

// allocateTradeNo 分配交易号：P + 秒级时间戳 + 8 位加密随机数字。
// 撞号概率极低，仍复核唯一性并限次重试。
func (s *OrderService) allocateTradeNo(now time.Time) (string, error) {
	for attempt := 0; attempt < tradeNoMaxAttempts; attempt++ {
		candidate := constants.TradeNoPrefix + now.Format("20060102150405") + randomDigits(8)
		existing, err := s.orderRepo.GetByTradeNo(candidate)
		if err != nil {
			return "", err
		}
		if existing == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: trade_no allocation exhausted", ErrOrderInvalid)
}

func randomDigits(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand 失败属于环境故障，退回时间熵
		nano := time.Now().UnixNano()
		digits := make([]byte, n)
		for i := range digits {
			digits[i] = byte('0' + nano%10)
			nano /= 10
			if nano == 0 {
				nano = time.Now().UnixNano()
			}
		}
		return string(digits)
	}
	digits := make([]byte, n)
	for i, b := range buf {
		digits[i] = byte('0' + int(b)%10)
	}
	return string(digits)
}

func (s *OrderService) callbackURL(tradeNo, method string) string {
	base := strings.TrimRight(strings.TrimSpace(s.options.CallbackBaseURL), "/")
	return fmt.Sprintf("%s/callback/%s/%s", base, tradeNo, method)
}

func validateHTTPURL(raw string) error {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}

// 居民身份证校验位权重与映射（ISO 7064 MOD 11-2）
var (
	residentIDWeights  = []int{7, 9, 10, 5, 8, 4, 2, 1, 6, 3, 7, 9, 10, 5, 8, 4, 2}
	residentIDCheckMap = []byte("10X98765432")
)

func validateBuyerIdentity(certType, certNo string) error {
	certType = strings.TrimSpace(certType)
	certNo = strings.TrimSpace(certNo)
	if certType == "" {
		return nil
	}
	if certNo == "" {
		return ErrBuyerIdentInvalid
	}
	if certType != constants.CertTypeIDCard {
		// 其它证件类型只做非空校验
		return nil
	}
	if len(certNo) != 18 {
		return ErrBuyerIdentInvalid
	}
	sum := 0
	for i := 0; i < 17; i++ {
		c := certNo[i]
		if c < '0' || c > '9' {
			return ErrBuyerIdentInvalid
		}
		sum += int(c-'0') * residentIDWeights[i]
	}
	check := residentIDCheckMap[sum%11]
	last := certNo[17]
	if last == 'x' {
		last = 'X'
	}
	if last != check {
		return ErrBuyerIdentInvalid
	}
	return nil
}
