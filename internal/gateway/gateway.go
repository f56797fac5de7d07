package gateway

import (
	"context"
	"errors"

	"github.com/paygate-next/internal/models"
)

var (
	ErrUnknownGateway = errors.New("unknown gateway code")
	ErrConfigInvalid  = errors.New("gateway config invalid")
	ErrRequestFailed  = errors.New("gateway request failed")
)

// SubmitRequest 发起支付的输入
type SubmitRequest struct {
	TradeNo    string                 // 平台交易号
	OutTradeNo string                 // 商户订单号
	Amount     string                 // 订单金额（2 位小数字符串）
	Subject    string                 // 订单标题
	ClientIP   string                 // 买家IP
	NotifyURL  string                 // 平台回调地址（渠道异步通知打回平台）
	ReturnURL  string                 // 同步跳转地址
	Config     map[string]interface{} // 渠道账户配置
	Extensions ExtensionStore         // 订单扩展数据（行锁幂等）
}

// SubmitResult 发起支付的归一化结果，调用方只按 Kind 分支
type SubmitResult struct {
	Kind        string                 // redirect / qrcode / form
	RedirectURL string                 // Kind=redirect
	QRContent   string                 // Kind=qrcode
	FormHTML    string                 // Kind=form（自动提交表单）
	APITradeNo  string                 // 渠道侧交易号（如已返回）
	Raw         map[string]interface{} // 渠道原始应答
}

// NotifyRequest 渠道回调的输入：原始报文加订单公开上下文
type NotifyRequest struct {
	TradeNo string                 // 平台交易号
	Amount  string                 // 订单金额，插件须核对
	Method  string                 // notify / return / refund
	Form    map[string][]string    // 表单型回调参数
	Body    []byte                 // 原始请求体（JSON 型回调）
	Config  map[string]interface{} // 渠道账户配置
}

// NotifyResult 渠道回调的归一化结果。
// 插件必须先完成渠道自有的报文验真再置 Succeeded。
type NotifyResult struct {
	Succeeded   bool                   // 验真且支付成功
	TradeStatus string                 // 渠道侧状态
	APITradeNo  string                 // 渠道侧交易号
	Amount      string                 // 渠道回报金额
	BuyerID     string                 // 渠道回报的买家标识
	AckBody     string                 // 应答给渠道的原文
	Raw         map[string]interface{} // 原始参数
}

// RefundRequest 渠道退款的输入
type RefundRequest struct {
	TradeNo    string
	RefundNo   string
	APITradeNo string
	Amount     string
	Reason     string
	Config     map[string]interface{}
}

// RefundResult 渠道退款的归一化结果
type RefundResult struct {
	Succeeded   bool
	APIRefundNo string
	Raw         map[string]interface{}
}

// ExtensionStore 订单扩展数据访问。实现方在订单行锁内执行 fn：
// 已有数据直接复用，避免重复调渠道造成重复收款。
type ExtensionStore interface {
	WithOrderLock(ctx context.Context, tradeNo string, fn func(existing models.JSON) (models.JSON, error)) (models.JSON, error)
}

// Gateway 支付渠道插件契约
type Gateway interface {
	Code() string
	RequiredConfig() []string
	Submit(ctx context.Context, req *SubmitRequest) (*SubmitResult, error)
	Notify(ctx context.Context, req *NotifyRequest) (*NotifyResult, error)
	Refund(ctx context.Context, req *RefundRequest) (*RefundResult, error)
}

// CloseRequest 渠道侧撤单的输入
type CloseRequest struct {
	TradeNo    string
	APITradeNo string
	Config     map[string]interface{}
}

// Closer 可选能力：支持渠道侧撤单的插件实现此接口。
// 撤单尽力而为，失败不阻塞平台侧关单。
type Closer interface {
	Close(ctx context.Context, req *CloseRequest) error
}
