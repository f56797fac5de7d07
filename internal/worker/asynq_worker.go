package worker

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/paygate-next/internal/constants"
	"github.com/paygate-next/internal/logger"
	"github.com/paygate-next/internal/provider"
	"github.com/paygate-next/internal/queue"
	"github.com/paygate-next/internal/service"

	"github.com/hibiken/asynq"
)

// Consumer 异步任务消费者
type Consumer struct {
	*provider.Container
}

// NewConsumer 创建消费者
func NewConsumer(c *provider.Container) *Consumer {
	return &Consumer{
		Container: c,
	}
}

// Register 注册消费者
func (c *Consumer) Register(mux *asynq.ServeMux) {
	if c == nil || mux == nil {
		logger.Debugw("worker_register_skip_nil", "consumer_nil", c == nil, "mux_nil", mux == nil)
		return
	}
	mux.HandleFunc(queue.TaskOrderSettle, c.handleOrderSettle)
	mux.HandleFunc(queue.TaskOrderNotify, c.handleOrderNotify)
	mux.HandleFunc(queue.TaskOrderExpireClose, c.handleOrderExpireClose)
	mux.HandleFunc(queue.TaskRefundNotify, c.handleRefundNotify)
}

func (c *Consumer) handleOrderSettle(_ context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		return nil
	}
	var payload queue.OrderSettlePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_order_settle_unmarshal_failed", "error", err)
		return err
	}
	if payload.TradeNo == "" {
		logger.Debugw("worker_order_settle_skip_empty_trade_no")
		return nil
	}
	if err := c.SettleService.SettleOrder(payload.TradeNo); err != nil {
		switch {
		case errors.Is(err, service.ErrOrderNotFound):
			logger.Debugw("worker_order_settle_skip_order_not_found", "trade_no", payload.TradeNo)
			return nil
		case errors.Is(err, service.ErrSettleStateInvalid):
			// 已被其它路径处理则到此为止；冻结中止的由解冻时恢复结算
			logger.Debugw("worker_order_settle_skip_state", "trade_no", payload.TradeNo, "reason", err.Error())
			return nil
		default:
			logger.Warnw("worker_order_settle_failed", "trade_no", payload.TradeNo, "error", err)
			return err
		}
	}
	return nil
}

func (c *Consumer) handleOrderNotify(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		return nil
	}
	var payload queue.OrderNotifyPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_order_notify_unmarshal_failed", "error", err)
		return err
	}
	if payload.TradeNo == "" {
		logger.Debugw("worker_order_notify_skip_empty_trade_no")
		return nil
	}
	if err := c.NotifyService.DeliverOrder(ctx, payload.TradeNo); err != nil {
		logger.Warnw("worker_order_notify_failed", "trade_no", payload.TradeNo, "error", err)
		return err
	}
	return nil
}

func (c *Consumer) handleOrderExpireClose(_ context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		return nil
	}
	var payload queue.OrderExpireClosePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_order_expire_close_unmarshal_failed", "error", err)
		return err
	}
	if payload.TradeNo == "" {
		logger.Debugw("worker_order_expire_close_skip_empty_trade_no")
		return nil
	}
	order, err := c.OrderService.GetByTradeNo(payload.TradeNo)
	if err != nil {
		if errors.Is(err, service.ErrOrderNotFound) {
			logger.Debugw("worker_order_expire_close_skip_not_found", "trade_no", payload.TradeNo)
			return nil
		}
		return err
	}
	// 已支付或已关闭的订单直接跳过
	if order.TradeState != constants.TradeStateWaitPay {
		logger.Debugw("worker_order_expire_close_skip_state", "trade_no", payload.TradeNo, "state", order.TradeState)
		return nil
	}
	if _, err := c.OrderService.Close(payload.TradeNo); err != nil {
		if errors.Is(err, service.ErrOrderStateInvalid) {
			logger.Debugw("worker_order_expire_close_skip_state", "trade_no", payload.TradeNo)
			return nil
		}
		logger.Warnw("worker_order_expire_close_failed", "trade_no", payload.TradeNo, "error", err)
		return err
	}
	return nil
}

func (c *Consumer) handleRefundNotify(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		return nil
	}
	var payload queue.RefundNotifyPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_refund_notify_unmarshal_failed", "error", err)
		return err
	}
	if payload.RefundNo == "" {
		logger.Debugw("worker_refund_notify_skip_empty_refund_no")
		return nil
	}
	if err := c.NotifyService.DeliverRefund(ctx, payload.RefundNo); err != nil {
		logger.Warnw("worker_refund_notify_failed", "refund_no", payload.RefundNo, "error", err)
		return err
	}
	return nil
}
