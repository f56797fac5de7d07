// Package certpay 实现证书（RSA2048-SHA256）协议的跳转渠道插件。
package certpay

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/paygate-next/internal/constants"
	"github.com/paygate-next/internal/gateway"
	"github.com/paygate-next/internal/sign"

	"github.com/shopspring/decimal"
)

const (
	TradeStatusSuccess = "TRADE_SUCCESS"
	AckSuccess         = "SUCCESS"
	AckFail            = "FAIL"
)

// Config 渠道账户配置
type Config struct {
	GatewayURL        string `json:"gateway_url"`         // 渠道网关地址
	PartnerID         string `json:"partner_id"`          // 渠道分配的合作方号
	PrivateKey        string `json:"private_key"`         // 平台在该渠道的签名私钥
	PlatformPublicKey string `json:"platform_public_key"` // 渠道验签公钥
	PayPath           string `json:"pay_path"`            // 收银台路径
	RefundPath        string `json:"refund_path"`         // 退款接口路径
}

// CertPay 证书跳转渠道
type CertPay struct {
	httpClient *http.Client
}

// New 创建插件实例
func New() *CertPay {
	return &CertPay{
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Code 渠道插件编码
func (g *CertPay) Code() string {
	return constants.ChannelCodeCertPay
}

// RequiredConfig 账户启用前必须配齐的字段
func (g *CertPay) RequiredConfig() []string {
	return []string{"gateway_url", "partner_id", "private_key", "platform_public_key"}
}

// ParseConfig 解析渠道账户配置
func ParseConfig(raw map[string]interface{}) (*Config, error) {
	if raw == nil {
		return nil, fmt.Errorf("%w: empty config", gateway.ErrConfigInvalid)
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal config failed", gateway.ErrConfigInvalid)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: unmarshal config failed", gateway.ErrConfigInvalid)
	}
	cfg.normalize()
	if cfg.GatewayURL == "" || cfg.PartnerID == "" || cfg.PrivateKey == "" || cfg.PlatformPublicKey == "" {
		return nil, fmt.Errorf("%w: gateway_url/partner_id/private_key/platform_public_key required", gateway.ErrConfigInvalid)
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	c.GatewayURL = strings.TrimSpace(c.GatewayURL)
	c.PartnerID = strings.TrimSpace(c.PartnerID)
	if c.PayPath == "" {
		c.PayPath = "/gateway/pay"
	}
	if c.RefundPath == "" {
		c.RefundPath = "/gateway/refund"
	}
}

// Submit 构造去渠道收银台的自动提交表单。买家浏览器直接提交，
// 平台侧无外呼，不需要扩展数据缓存。
func (g *CertPay) Submit(ctx context.Context, req *gateway.SubmitRequest) (*gateway.SubmitResult, error) {
	cfg, err := ParseConfig(req.Config)
	if err != nil {
		return nil, err
	}
	params := map[string]string{
		"partner_id":   cfg.PartnerID,
		"out_trade_no": req.TradeNo,
		"amount":       req.Amount,
		"subject":      req.Subject,
		"notify_url":   req.NotifyURL,
		"return_url":   req.ReturnURL,
		"timestamp":    strconv.FormatInt(time.Now().Unix(), 10),
	}
	signature, err := sign.Sign(constants.SignModeRSA2,
		sign.BuildSignableString(params),
		sign.Material{PrivateKey: cfg.PrivateKey})
	if err != nil {
		return nil, err
	}
	params["sign"] = signature
	params["sign_type"] = "RSA2"

	return &gateway.SubmitResult{
		Kind:     constants.SubmitKindForm,
		FormHTML: buildAutoSubmitForm(buildEndpoint(cfg.GatewayURL, cfg.PayPath), params),
	}, nil
}

// Notify 用渠道公钥验真回调并归一化结果
func (g *CertPay) Notify(ctx context.Context, req *gateway.NotifyRequest) (*gateway.NotifyResult, error) {
	cfg, err := ParseConfig(req.Config)
	if err != nil {
		return nil, err
	}
	params := flattenForm(req.Form)
	signature := strings.TrimSpace(params["sign"])
	if signature == "" {
		return nil, sign.ErrSignatureInvalid
	}
	content := sign.BuildSignableString(params)
	if err := sign.VerifyWith(constants.SignModeRSA2, content, signature,
		sign.Material{PublicKeyPEM: cfg.PlatformPublicKey}); err != nil {
		return nil, err
	}

	result := &gateway.NotifyResult{
		TradeStatus: params["trade_status"],
		APITradeNo:  params["trade_no"],
		Amount:      params["amount"],
		BuyerID:     params["buyer_id"],
		AckBody:     AckSuccess,
		Raw:         rawMap(params),
	}
	if params["trade_status"] != TradeStatusSuccess {
		return result, nil
	}
	if !amountEqual(params["amount"], req.Amount) {
		return nil, fmt.Errorf("%w: amount mismatch", gateway.ErrRequestFailed)
	}
	result.Succeeded = true
	return result, nil
}

// Refund 请求渠道退款
func (g *CertPay) Refund(ctx context.Context, req *gateway.RefundRequest) (*gateway.RefundResult, error) {
	cfg, err := ParseConfig(req.Config)
	if err != nil {
		return nil, err
	}
	params := map[string]string{
		"partner_id":    cfg.PartnerID,
		"out_trade_no":  req.TradeNo,
		"trade_no":      req.APITradeNo,
		"out_refund_no": req.RefundNo,
		"amount":        req.Amount,
		"reason":        req.Reason,
		"timestamp":     strconv.FormatInt(time.Now().Unix(), 10),
	}
	signature, err := sign.Sign(constants.SignModeRSA2,
		sign.BuildSignableString(params),
		sign.Material{PrivateKey: cfg.PrivateKey})
	if err != nil {
		return nil, err
	}
	params["sign"] = signature
	params["sign_type"] = "RSA2"

	respBytes, err := g.postForm(ctx, buildEndpoint(cfg.GatewayURL, cfg.RefundPath), params)
	if err != nil {
		return nil, gateway.ErrRequestFailed
	}
	var raw map[string]interface{}
	_ = json.Unmarshal(respBytes, &raw)
	var resp struct {
		Code     int    `json:"code"`
		Msg      string `json:"msg"`
		RefundNo string `json:"refund_no"`
	}
	if err := json.Unmarshal(respBytes, &resp); err != nil {
		return nil, fmt.Errorf("%w: bad response", gateway.ErrRequestFailed)
	}
	if resp.Code != 0 {
		return &gateway.RefundResult{Succeeded: false, Raw: raw}, nil
	}
	return &gateway.RefundResult{
		Succeeded:   true,
		APIRefundNo: strings.TrimSpace(resp.RefundNo),
		Raw:         raw,
	}, nil
}

func (g *CertPay) postForm(ctx context.Context, endpoint string, params map[string]string) ([]byte, error) {
	values := url.Values{}
	for k, v := range params {
		if v == "" {
			continue
		}
		values.Set(k, v)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(values.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, gateway.ErrRequestFailed
	}
	return io.ReadAll(resp.Body)
}

func buildAutoSubmitForm(action string, params map[string]string) string {
	var b strings.Builder
	b.WriteString(`<form id="certpay_submit" method="post" action="`)
	b.WriteString(html.EscapeString(action))
	b.WriteString(`">`)
	for k, v := range params {
		if v == "" {
			continue
		}
		b.WriteString(`<input type="hidden" name="`)
		b.WriteString(html.EscapeString(k))
		b.WriteString(`" value="`)
		b.WriteString(html.EscapeString(v))
		b.WriteString(`"/>`)
	}
	b.WriteString(`</form><script>document.getElementById("certpay_submit").submit();</script>`)
	return b.String()
}

func buildEndpoint(gatewayURL, apiPath string) string {
	base := strings.TrimRight(strings.TrimSpace(gatewayURL), "/")
	path := strings.TrimSpace(apiPath)
	if path == "" {
		return base
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path
}

func flattenForm(form map[string][]string) map[string]string {
	params := make(map[string]string, len(form))
	for key, values := range form {
		if len(values) == 0 {
			continue
		}
		params[key] = values[0]
	}
	return params
}

func rawMap(params map[string]string) map[string]interface{} {
	raw := make(map[string]interface{}, len(params))
	for k, v := range params {
		raw[k] = v
	}
	return raw
}

func amountEqual(a, b string) bool {
	da, err := decimal.NewFromString(strings.TrimSpace(a))
	if err != nil {
		return false
	}
	db, err := decimal.NewFromString(strings.TrimSpace(b))
	if err != nil {
		return false
	}
	return da.Equal(db)
}
