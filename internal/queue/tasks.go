package queue

import (
	"encoding/json"

	"github.com/paygate-next/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// TaskOrderSettle 延迟结算任务
	TaskOrderSettle = constants.TaskOrderSettle
	// TaskOrderNotify 商户通知投递任务
	TaskOrderNotify = constants.TaskOrderNotify
	// TaskOrderExpireClose 到期关单任务
	TaskOrderExpireClose = constants.TaskOrderExpireClose
	// TaskRefundNotify 退款通知投递任务
	TaskRefundNotify = constants.TaskRefundNotify
)

// OrderSettlePayload 结算任务载荷
type OrderSettlePayload struct {
	TradeNo string `json:"trade_no"`
}

// OrderNotifyPayload 订单通知任务载荷（签名在投递时重算，不随载荷入队）
type OrderNotifyPayload struct {
	TradeNo string `json:"trade_no"`
}

// OrderExpireClosePayload 到期关单任务载荷
type OrderExpireClosePayload struct {
	TradeNo string `json:"trade_no"`
}

// RefundNotifyPayload 退款通知任务载荷
type RefundNotifyPayload struct {
	RefundNo string `json:"refund_no"`
}

// NewOrderSettleTask 创建结算任务
func NewOrderSettleTask(payload OrderSettlePayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOrderSettle, body), nil
}

// NewOrderNotifyTask 创建订单通知任务
func NewOrderNotifyTask(payload OrderNotifyPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOrderNotify, body), nil
}

// NewOrderExpireCloseTask 创建到期关单任务
func NewOrderExpireCloseTask(payload OrderExpireClosePayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOrderExpireClose, body), nil
}

// NewRefundNotifyTask 创建退款通知任务
func NewRefundNotifyTask(payload RefundNotifyPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRefundNotify, body), nil
}
