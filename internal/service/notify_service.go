package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/paygate-next/internal/constants"
	"github.com/paygate-next/internal/logger"
	"github.com/paygate-next/internal/models"
	"github.com/paygate-next/internal/queue"
	"github.com/paygate-next/internal/repository"
	"github.com/paygate-next/internal/sign"
)

const (
	notifyAckBody          = "success"
	notifyResponseMaxBytes = 512
)

// 第 n 次投递距上一次的间隔；首次立即投递
var notifyRetryDelays = []time.Duration{
	0,
	10 * time.Second,
	20 * time.Second,
	30 * time.Second,
	60 * time.Second,
	60 * time.Second,
	120 * time.Second,
}

// NotifyService 商户异步通知投递：重试排程、投递留痕、终态判定
type NotifyService struct {
	orderRepo        *repository.GormOrderRepository
	refundRepo       *repository.GormRefundRepository
	merchantRepo     *repository.GormMerchantRepository
	notificationRepo *repository.GormNotificationRepository
	queueClient      TaskEnqueuer
	httpClient       *http.Client
}

// NewNotifyService 创建通知服务，timeout 为单次投递的 HTTP 超时
func NewNotifyService(
	orderRepo *repository.GormOrderRepository,
	refundRepo *repository.GormRefundRepository,
	merchantRepo *repository.GormMerchantRepository,
	notificationRepo *repository.GormNotificationRepository,
	queueClient TaskEnqueuer,
	timeout time.Duration,
) *NotifyService {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &NotifyService{
		orderRepo:        orderRepo,
		refundRepo:       refundRepo,
		merchantRepo:     merchantRepo,
		notificationRepo: notificationRepo,
		queueClient:      queueClient,
		httpClient:       &http.Client{Timeout: timeout},
	}
}

// EncryptionMaterial 将商户加密材料转为签名材料
func EncryptionMaterial(enc *models.MerchantEncryption) sign.Material {
	if enc == nil {
		return sign.Material{}
	}
	return sign.Material{
		Mode:         enc.SignMode,
		HashKey:      enc.HashKey,
		SymmetricKey: enc.SymmetricKey,
		PublicKeyPEM: enc.PublicKeyPEM,
		PrivateKey:   enc.PlatformPrivateKey,
	}
}

// DeliverOrder 投递一次订单通知。已终态幂等跳过；
// 早到的任务按剩余时间重新入队。
func (s *NotifyService) DeliverOrder(ctx context.Context, tradeNo string) error {
	order, err := s.orderRepo.GetByTradeNo(tradeNo)
	if err != nil {
		return err
	}
	if order == nil {
		logger.Warnw("notify_order_missing", "trade_no", tradeNo)
		return nil
	}
	if order.NotifyState != constants.NotifyStatePending {
		return nil
	}
	if order.NotifyURL == "" {
		order.NotifyState = constants.NotifyStateFailed
		order.NotifyNextRetryTime = nil
		return s.orderRepo.Update(order)
	}
	if remaining := untilRetry(order.NotifyNextRetryTime); remaining > time.Second {
		return s.queueClient.EnqueueOrderNotify(queue.OrderNotifyPayload{TradeNo: tradeNo}, remaining)
	}

	params, err := s.orderNotifyParams(order)
	if err != nil {
		return err
	}
	attemptNo := order.NotifyRetryCount + 1
	record := s.deliver(ctx, order.NotifyURL, params)
	record.TradeNo = order.TradeNo
	record.BizType = constants.NotifyBizTypeOrder
	record.AttemptNo = attemptNo
	if err := s.notificationRepo.Create(record); err != nil {
		logger.Errorw("notify_record_create_failed", "trade_no", tradeNo, "error", err)
	}

	order.NotifyRetryCount = attemptNo
	if record.Succeeded {
		order.NotifyState = constants.NotifyStateSuccess
		order.NotifyNextRetryTime = nil
		if err := s.orderRepo.Update(order); err != nil {
			return err
		}
		logger.Infow("notify_delivered", "trade_no", tradeNo, "attempt", attemptNo)
		return nil
	}

	if attemptNo >= constants.NotifyMaxAttempts {
		order.NotifyState = constants.NotifyStateFailed
		order.NotifyNextRetryTime = nil
		if err := s.orderRepo.Update(order); err != nil {
			return err
		}
		logger.Warnw("notify_exhausted", "trade_no", tradeNo, "attempts", attemptNo)
		return nil
	}

	delay := notifyRetryDelays[attemptNo-1]
	next := time.Now().Add(delay)
	order.NotifyNextRetryTime = &next
	if err := s.orderRepo.Update(order); err != nil {
		return err
	}
	logger.Infow("notify_retry_scheduled",
		"trade_no", tradeNo,
		"attempt", attemptNo,
		"next_delay", delay.String(),
	)
	return s.queueClient.EnqueueOrderNotify(queue.OrderNotifyPayload{TradeNo: tradeNo}, delay)
}

// DeliverRefund 投递一次退款通知，重试机制与订单通知一致，计数独立
func (s *NotifyService) DeliverRefund(ctx context.Context, refundNo string) error {
	refund, err := s.refundRepo.GetByRefundNo(refundNo)
	if err != nil {
		return err
	}
	if refund == nil {
		logger.Warnw("notify_refund_missing", "refund_no", refundNo)
		return nil
	}
	if refund.NotifyState != constants.NotifyStatePending {
		return nil
	}
	order, err := s.orderRepo.GetByTradeNo(refund.TradeNo)
	if err != nil {
		return err
	}
	if order == nil || order.NotifyURL == "" {
		refund.NotifyState = constants.NotifyStateFailed
		refund.NotifyNextRetryTime = nil
		return s.refundRepo.Update(refund)
	}
	if remaining := untilRetry(refund.NotifyNextRetryTime); remaining > time.Second {
		return s.queueClient.EnqueueRefundNotify(queue.RefundNotifyPayload{RefundNo: refundNo}, remaining)
	}

	params, err := s.refundNotifyParams(order, refund)
	if err != nil {
		return err
	}
	attemptNo := refund.NotifyRetryCount + 1
	record := s.deliver(ctx, order.NotifyURL, params)
	record.TradeNo = refund.TradeNo
	record.BizType = constants.NotifyBizTypeRefund
	record.RefundNo = refund.RefundNo
	record.AttemptNo = attemptNo
	if err := s.notificationRepo.Create(record); err != nil {
		logger.Errorw("notify_record_create_failed", "refund_no", refundNo, "error", err)
	}

	refund.NotifyRetryCount = attemptNo
	if record.Succeeded {
		refund.NotifyState = constants.NotifyStateSuccess
		refund.NotifyNextRetryTime = nil
		if err := s.refundRepo.Update(refund); err != nil {
			return err
		}
		logger.Infow("refund_notify_delivered", "refund_no", refundNo, "attempt", attemptNo)
		return nil
	}

	if attemptNo >= constants.NotifyMaxAttempts {
		refund.NotifyState = constants.NotifyStateFailed
		refund.NotifyNextRetryTime = nil
		if err := s.refundRepo.Update(refund); err != nil {
			return err
		}
		logger.Warnw("refund_notify_exhausted", "refund_no", refundNo, "attempts", attemptNo)
		return nil
	}

	delay := notifyRetryDelays[attemptNo-1]
	next := time.Now().Add(delay)
	refund.NotifyNextRetryTime = &next
	if err := s.refundRepo.Update(refund); err != nil {
		return err
	}
	return s.queueClient.EnqueueRefundNotify(queue.RefundNotifyPayload{RefundNo: refundNo}, delay)
}

// Redeliver 人工补发订单通知：不受次数限制，不改动重试计数
func (s *NotifyService) Redeliver(ctx context.Context, tradeNo string) error {
	order, err := s.orderRepo.GetByTradeNo(tradeNo)
	if err != nil {
		return err
	}
	if order == nil {
		return ErrOrderNotFound
	}
	if order.NotifyURL == "" {
		return ErrNotifyNotFound
	}
	params, err := s.orderNotifyParams(order)
	if err != nil {
		return err
	}
	record := s.deliver(ctx, order.NotifyURL, params)
	record.TradeNo = order.TradeNo
	record.BizType = constants.NotifyBizTypeOrder
	record.AttemptNo = order.NotifyRetryCount + 1
	if err := s.notificationRepo.Create(record); err != nil {
		logger.Errorw("notify_record_create_failed", "trade_no", tradeNo, "error", err)
	}
	if record.Succeeded && order.NotifyState != constants.NotifyStateSuccess {
		order.NotifyState = constants.NotifyStateSuccess
		order.NotifyNextRetryTime = nil
		return s.orderRepo.Update(order)
	}
	if !record.Succeeded {
		return fmt.Errorf("%w: redeliver got http %d", ErrNotifyNotFound, record.HTTPStatus)
	}
	return nil
}

// ListAttempts 查询一笔订单或退款的通知投递留痕，校验归属。
// 给了退款号按退款通知过滤，否则按订单通知过滤。
func (s *NotifyService) ListAttempts(merchantID uint, tradeNo, refundNo string, page, pageSize int) ([]models.OrderNotification, int64, error) {
	filter := repository.NotificationListFilter{
		Page:     normalizePage(page),
		PageSize: normalizePageSize(pageSize),
	}
	if refundNo != "" {
		refund, err := s.refundRepo.GetByRefundNo(refundNo)
		if err != nil {
			return nil, 0, err
		}
		if refund == nil || refund.MerchantID != merchantID {
			return nil, 0, ErrRefundNotFound
		}
		filter.RefundNo = refund.RefundNo
		filter.BizType = constants.NotifyBizTypeRefund
	} else {
		order, err := s.orderRepo.GetByTradeNo(tradeNo)
		if err != nil {
			return nil, 0, err
		}
		if order == nil || order.MerchantID != merchantID {
			return nil, 0, ErrOrderNotFound
		}
		filter.TradeNo = order.TradeNo
		filter.BizType = constants.NotifyBizTypeOrder
	}
	return s.notificationRepo.List(filter)
}

// deliver 执行一次 HTTP 投递并返回留痕记录（不含业务外键）
func (s *NotifyService) deliver(ctx context.Context, targetURL string, params map[string]string) *models.OrderNotification {
	record := &models.OrderNotification{URL: targetURL}
	body, err := json.Marshal(params)
	if err != nil {
		record.ResponseBody = truncateResponse(err.Error())
		return record
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, targetURL, bytes.NewReader(body))
	if err != nil {
		record.ResponseBody = truncateResponse(err.Error())
		return record
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := s.httpClient.Do(req)
	record.DurationMS = time.Since(start).Milliseconds()
	if err != nil {
		record.ResponseBody = truncateResponse(err.Error())
		return record
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, notifyResponseMaxBytes+1))
	record.HTTPStatus = resp.StatusCode
	record.ResponseBody = truncateResponse(string(raw))
	record.Succeeded = resp.StatusCode == http.StatusOK &&
		strings.TrimSpace(string(raw)) == notifyAckBody
	return record
}

func (s *NotifyService) orderNotifyParams(order *models.Order) (map[string]string, error) {
	merchant, err := s.merchantRepo.GetByID(order.MerchantID)
	if err != nil {
		return nil, err
	}
	if merchant == nil {
		return nil, ErrMerchantNotFound
	}
	params := map[string]string{
		"merchant_no":      merchant.MerchantNo,
		"trade_no":         order.TradeNo,
		"out_trade_no":     order.OutTradeNo,
		"subject":          order.Subject,
		"total_amount":     order.TotalAmount.String(),
		"buyer_pay_amount": order.BuyerPayAmount.String(),
		"receipt_amount":   order.ReceiptAmount.String(),
		"fee_amount":       order.FeeAmount.String(),
		"trade_state":      order.TradeState,
		"settle_state":     order.SettleState,
		"api_trade_no":     order.APITradeNo,
		"buyer_identifier": order.BuyerIdentifier,
		"channel_code":     order.ChannelCode,
		"timestamp":        strconv.FormatInt(time.Now().Unix(), 10),
	}
	if order.PaymentTime != nil {
		params["payment_time"] = order.PaymentTime.Format("2006-01-02 15:04:05")
	}
	return s.signParams(params, merchant.Encryption)
}

func (s *NotifyService) refundNotifyParams(order *models.Order, refund *models.OrderRefund) (map[string]string, error) {
	merchant, err := s.merchantRepo.GetByID(order.MerchantID)
	if err != nil {
		return nil, err
	}
	if merchant == nil {
		return nil, ErrMerchantNotFound
	}
	params := map[string]string{
		"merchant_no":   merchant.MerchantNo,
		"refund_no":     refund.RefundNo,
		"out_refund_no": refund.OutRefundNo,
		"trade_no":      refund.TradeNo,
		"out_trade_no":  order.OutTradeNo,
		"amount":        refund.Amount.String(),
		"state":         refund.State,
		"reason":        refund.Reason,
		"timestamp":     strconv.FormatInt(time.Now().Unix(), 10),
	}
	if refund.FinishTime != nil {
		params["finish_time"] = refund.FinishTime.Format("2006-01-02 15:04:05")
	}
	return s.signParams(params, merchant.Encryption)
}

// signParams 用商户材料重新出签，签名随每次投递刷新
func (s *NotifyService) signParams(params map[string]string, enc *models.MerchantEncryption) (map[string]string, error) {
	mode, signature, err := sign.SignParams(params, EncryptionMaterial(enc))
	if err != nil {
		return nil, err
	}
	params["sign_type"] = mode
	params["sign"] = signature
	return params, nil
}

func untilRetry(next *time.Time) time.Duration {
	if next == nil {
		return 0
	}
	return time.Until(*next)
}

func truncateResponse(body string) string {
	if len(body) > notifyResponseMaxBytes {
		return body[:notifyResponseMaxBytes]
	}
	return body
}
