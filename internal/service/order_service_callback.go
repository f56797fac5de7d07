package service

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/paygate-next/internal/constants"
	"github.com/paygate-next/internal/gateway"
	"github.com/paygate-next/internal/logger"
	"github.com/paygate-next/internal/models"
	"github.com/paygate-next/internal/queue"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CallbackInput 渠道回调原始内容
type CallbackInput struct {
	Method string // notify / return
	Form   url.Values
	Body   []byte
}

// HandleCallback 处理渠道异步通知：验签、核对金额、推进订单状态。
// 返回应答给渠道的原文。
func (s *OrderService) HandleCallback(ctx context.Context, tradeNo string, input CallbackInput) (string, error) {
	order, err := s.orderRepo.GetByTradeNo(tradeNo)
	if err != nil {
		return "", err
	}
	if order == nil {
		return "", ErrOrderNotFound
	}
	if order.ChannelAccountID == nil {
		return "", ErrChannelUnavailable
	}
	account, err := s.channelRepo.GetAccountByID(*order.ChannelAccountID)
	if err != nil {
		return "", err
	}
	if account == nil || account.Channel == nil {
		return "", ErrChannelUnavailable
	}
	plugin, err := s.registry.Resolve(account.Channel.GatewayCode)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrChannelUnavailable, err)
	}

	result, err := plugin.Notify(ctx, &gateway.NotifyRequest{
		TradeNo: order.TradeNo,
		Amount:  order.TotalAmount.String(),
		Method:  input.Method,
		Form:    input.Form,
		Body:    input.Body,
		Config:  account.ConfigJSON,
	})
	if err != nil {
		logger.Warnw("order_callback_rejected",
			"trade_no", tradeNo,
			"gateway_code", account.Channel.GatewayCode,
			"error", err,
		)
		return "", fmt.Errorf("%w: %v", ErrGatewayFailed, err)
	}
	if !result.Succeeded {
		// 非成功态的合法通知：只应答，不推进状态
		logger.Infow("order_callback_not_success",
			"trade_no", tradeNo,
			"trade_status", result.TradeStatus,
		)
		return result.AckBody, nil
	}

	if err := s.MarkSuccess(order.TradeNo, MarkSuccessInput{
		APITradeNo:      result.APITradeNo,
		BuyerIdentifier: result.BuyerID,
		PaidAmount:      result.Amount,
	}); err != nil {
		return "", err
	}
	return result.AckBody, nil
}

// MarkSuccessInput 支付成功入账参数
type MarkSuccessInput struct {
	APITradeNo      string
	BuyerIdentifier string
	PaidAmount      string // 为空时按订单金额
	PaymentTime     *time.Time
}

// MarkSuccess 将订单推进到支付成功。重复通知幂等返回；
// 成功后分摊手续费并触发结算与商户通知。
func (s *OrderService) MarkSuccess(tradeNo string, input MarkSuccessInput) error {
	var already bool
	var feeRate decimal.Decimal

	err := models.DB.Transaction(func(tx *gorm.DB) error {
		orderRepo := s.orderRepo.WithTx(tx)
		order, err := orderRepo.GetByTradeNoForUpdate(tradeNo)
		if err != nil {
			return err
		}
		if order == nil {
			return ErrOrderNotFound
		}
		if order.TradeState == constants.TradeStateSuccess ||
			order.TradeState == constants.TradeStateFinished ||
			order.TradeState == constants.TradeStateFrozen {
			already = true
			return nil
		}
		if !CanTransitionTrade(order.TradeState, constants.TradeStateSuccess) {
			return fmt.Errorf("%w: %s", ErrOrderStateInvalid, order.TradeState)
		}

		feeRate = decimal.Zero
		if order.ChannelAccountID != nil {
			account, err := s.channelRepo.WithTx(tx).GetAccountByID(*order.ChannelAccountID)
			if err != nil {
				return err
			}
			if account != nil && account.Channel != nil {
				feeRate = account.Channel.FeeRate.Decimal
			}
		}

		paid := order.TotalAmount.Decimal
		if input.PaidAmount != "" {
			parsed, err := decimal.NewFromString(input.PaidAmount)
			if err != nil {
				return fmt.Errorf("%w: paid amount", ErrOrderAmountInvalid)
			}
			paid = parsed.Round(2)
		}

		fee := order.TotalAmount.Decimal.Mul(feeRate).Div(decimal.NewFromInt(100)).Round(2)
		receipt := order.TotalAmount.Decimal.Sub(fee)

		now := time.Now()
		paymentTime := now
		if input.PaymentTime != nil {
			paymentTime = *input.PaymentTime
		}

		order.TradeState = constants.TradeStateSuccess
		order.PaymentTime = &paymentTime
		order.BuyerPayAmount = models.NewMoneyFromDecimal(paid)
		order.FeeAmount = models.NewMoneyFromDecimal(fee)
		order.ReceiptAmount = models.NewMoneyFromDecimal(receipt)
		order.APITradeNo = input.APITradeNo
		order.BuyerIdentifier = input.BuyerIdentifier
		return orderRepo.Update(order)
	})
	if err != nil {
		return err
	}
	if already {
		logger.Infow("order_success_idempotent_hit", "trade_no", tradeNo)
		return nil
	}

	logger.Infow("order_paid",
		"trade_no", tradeNo,
		"api_trade_no", input.APITradeNo,
	)

	if err := s.settle.ScheduleSettle(tradeNo); err != nil {
		logger.Errorw("order_settle_schedule_failed", "trade_no", tradeNo, "error", err)
	}
	if err := s.queueClient.EnqueueOrderNotify(queue.OrderNotifyPayload{TradeNo: tradeNo}, 0); err != nil {
		logger.Errorw("order_notify_enqueue_failed", "trade_no", tradeNo, "error", err)
	}
	return nil
}
