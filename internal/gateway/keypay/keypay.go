// Package keypay 实现对称密钥（MD5 摘要）协议的扫码渠道插件。
package keypay

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/paygate-next/internal/constants"
	"github.com/paygate-next/internal/gateway"
	"github.com/paygate-next/internal/models"
	"github.com/paygate-next/internal/sign"

	"github.com/shopspring/decimal"
)

const (
	TradeStatusSuccess = "TRADE_SUCCESS"
	AckSuccess         = "success"
	AckFail            = "fail"
)

// Config 渠道账户配置
type Config struct {
	GatewayURL string `json:"gateway_url"` // 渠道网关地址
	PartnerID  string `json:"partner_id"`  // 渠道分配的合作方号
	SecretKey  string `json:"secret_key"`  // 摘要密钥
	APIPath    string `json:"api_path"`    // 下单接口路径
	RefundPath string `json:"refund_path"` // 退款接口路径
}

// KeyPay 对称密钥扫码渠道
type KeyPay struct {
	httpClient *http.Client
}

// New 创建插件实例
func New() *KeyPay {
	return &KeyPay{
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Code 渠道插件编码
func (g *KeyPay) Code() string {
	return constants.ChannelCodeKeyPay
}

// RequiredConfig 账户启用前必须配齐的字段
func (g *KeyPay) RequiredConfig() []string {
	return []string{"gateway_url", "partner_id", "secret_key"}
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
	if cfg.GatewayURL == "" || cfg.PartnerID == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("%w: gateway_url/partner_id/secret_key required", gateway.ErrConfigInvalid)
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	c.GatewayURL = strings.TrimSpace(c.GatewayURL)
	c.PartnerID = strings.TrimSpace(c.PartnerID)
	c.SecretKey = strings.TrimSpace(c.SecretKey)
	if c.APIPath == "" {
		c.APIPath = "/api/precreate"
	}
	if c.RefundPath == "" {
		c.RefundPath = "/api/refund"
	}
}

// Submit 发起扫码支付。二维码内容在订单行锁内只取一次，
// 重复提交（买家刷新收银页）复用已缓存的扩展数据，不会二次请求渠道。
func (g *KeyPay) Submit(ctx context.Context, req *gateway.SubmitRequest) (*gateway.SubmitResult, error) {
	cfg, err := ParseConfig(req.Config)
	if err != nil {
		return nil, err
	}

	fetch := func(existing models.JSON) (models.JSON, error) {
		if existing != nil {
			if qr, ok := existing["qr_content"].(string); ok && qr != "" {
				return nil, nil
			}
		}
		qrContent, apiTradeNo, err := g.precreate(ctx, cfg, req)
		if err != nil {
			return nil, err
		}
		return models.JSON{
			"v":            1,
			"qr_content":   qrContent,
			"api_trade_no": apiTradeNo,
		}, nil
	}

	var data models.JSON
	if req.Extensions != nil {
		data, err = req.Extensions.WithOrderLock(ctx, req.TradeNo, fetch)
		if err != nil {
			return nil, err
		}
	} else {
		data, err = fetch(nil)
		if err != nil {
			return nil, err
		}
	}

	result := &gateway.SubmitResult{Kind: constants.SubmitKindQRCode}
	if data != nil {
		if qr, ok := data["qr_content"].(string); ok {
			result.QRContent = qr
		}
		if apiTradeNo, ok := data["api_trade_no"].(string); ok {
			result.APITradeNo = apiTradeNo
		}
	}
	if result.QRContent == "" {
		return nil, fmt.Errorf("%w: empty qr content", gateway.ErrRequestFailed)
	}
	return result, nil
}

func (g *KeyPay) precreate(ctx context.Context, cfg *Config, req *gateway.SubmitRequest) (qrContent, apiTradeNo string, err error) {
	params := map[string]string{
		"pid":          cfg.PartnerID,
		"out_trade_no": req.TradeNo,
		"money":        req.Amount,
		"name":         req.Subject,
		"notify_url":   req.NotifyURL,
		"clientip":     req.ClientIP,
	}
	signature, err := sign.Sign(constants.SignModeMD5,
		sign.BuildSignableString(params),
		sign.Material{HashKey: cfg.SecretKey})
	if err != nil {
		return "", "", err
	}
	params["sign"] = signature
	params["sign_type"] = "MD5"

	respBytes, err := g.postForm(ctx, buildEndpoint(cfg.GatewayURL, cfg.APIPath), params)
	if err != nil {
		return "", "", gateway.ErrRequestFailed
	}
	var resp struct {
		Code    int    `json:"code"`
		Msg     string `json:"msg"`
		QRCode  string `json:"qr_code"`
		TradeNo string `json:"trade_no"`
	}
	if err := json.Unmarshal(respBytes, &resp); err != nil {
		return "", "", fmt.Errorf("%w: bad response", gateway.ErrRequestFailed)
	}
	if resp.Code != 1 {
		return "", "", fmt.Errorf("%w: %s", gateway.ErrRequestFailed, resp.Msg)
	}
	return strings.TrimSpace(resp.QRCode), strings.TrimSpace(resp.TradeNo), nil
}

// Notify 验真并归一化渠道回调。签名不合法直接报错；
// 验真通过但状态非成功时 Succeeded=false，应答仍为 success（已收到）。
func (g *KeyPay) Notify(ctx context.Context, req *gateway.NotifyRequest) (*gateway.NotifyResult, error) {
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
	if err := sign.VerifyWith(constants.SignModeMD5, content, signature,
		sign.Material{HashKey: cfg.SecretKey}); err != nil {
		return nil, err
	}

	result := &gateway.NotifyResult{
		TradeStatus: params["trade_status"],
		APITradeNo:  params["trade_no"],
		Amount:      params["money"],
		BuyerID:     params["buyer_id"],
		AckBody:     AckSuccess,
		Raw:         rawMap(params),
	}
	if params["trade_status"] != TradeStatusSuccess {
		return result, nil
	}
	if !amountEqual(params["money"], req.Amount) {
		return nil, fmt.Errorf("%w: amount mismatch", gateway.ErrRequestFailed)
	}
	result.Succeeded = true
	return result, nil
}

// Refund 请求渠道退款
func (g *KeyPay) Refund(ctx context.Context, req *gateway.RefundRequest) (*gateway.RefundResult, error) {
	cfg, err := ParseConfig(req.Config)
	if err != nil {
		return nil, err
	}
	params := map[string]string{
		"pid":           cfg.PartnerID,
		"out_trade_no":  req.TradeNo,
		"trade_no":      req.APITradeNo,
		"out_refund_no": req.RefundNo,
		"money":         req.Amount,
	}
	signature, err := sign.Sign(constants.SignModeMD5,
		sign.BuildSignableString(params),
		sign.Material{HashKey: cfg.SecretKey})
	if err != nil {
		return nil, err
	}
	params["sign"] = signature
	params["sign_type"] = "MD5"

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
	if resp.Code != 1 {
		return &gateway.RefundResult{Succeeded: false, Raw: raw}, nil
	}
	return &gateway.RefundResult{
		Succeeded:   true,
		APIRefundNo: strings.TrimSpace(resp.RefundNo),
		Raw:         raw,
	}, nil
}

func (g *KeyPay) postForm(ctx context.Context, endpoint string, params map[string]string) ([]byte, error) {
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
