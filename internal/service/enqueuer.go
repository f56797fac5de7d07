package service

import (
	"time"

	"github.com/paygate-next/internal/queue"
)

// TaskEnqueuer 异步任务入队能力，生产实现为 queue.Client
type TaskEnqueuer interface {
	EnqueueOrderSettle(payload queue.OrderSettlePayload, delay time.Duration) error
	EnqueueOrderNotify(payload queue.OrderNotifyPayload, delay time.Duration) error
	EnqueueOrderExpireClose(payload queue.OrderExpireClosePayload, delay time.Duration) error
	EnqueueRefundNotify(payload queue.RefundNotifyPayload, delay time.Duration) error
}
