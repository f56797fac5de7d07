package certpay

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"net/url"
	"strings"
	"testing"

	"github.com/paygate-next/internal/constants"
	"github.com/paygate-next/internal/gateway"
	"github.com/paygate-next/internal/sign"
)

func testKeyPair(t *testing.T) (privatePEM, publicPEM string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key failed: %v", err)
	}
	privatePEM = string(pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	}))
	pubBytes, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("marshal public key failed: %v", err)
	}
	publicPEM = string(pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: pubBytes,
	}))
	return privatePEM, publicPEM
}

func TestCertPaySubmitBuildsSignedForm(t *testing.T) {
	privatePEM, publicPEM := testKeyPair(t)
	result, err := New().Submit(context.Background(), &gateway.SubmitRequest{
		TradeNo:   "P20250101120000003",
		Amount:    "66.00",
		Subject:   "demo",
		NotifyURL: "https://platform.example/callback/P20250101120000003/notify",
		ReturnURL: "https://shop.example/return",
		Config: map[string]interface{}{
			"gateway_url":         "https://rail.example",
			"partner_id":          "C456",
			"private_key":         privatePEM,
			"platform_public_key": publicPEM,
		},
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if result.Kind != constants.SubmitKindForm {
		t.Fatalf("kind = %q", result.Kind)
	}
	if !strings.Contains(result.FormHTML, `action="https://rail.example/gateway/pay"`) {
		t.Fatalf("form action missing: %s", result.FormHTML)
	}
	if !strings.Contains(result.FormHTML, `name="sign"`) {
		t.Fatal("form carries no signature")
	}
}

func TestCertPayNotify(t *testing.T) {
	// 渠道侧用自己的私钥出签，插件用配置的渠道公钥验真
	railPrivate, railPublic := testKeyPair(t)
	config := map[string]interface{}{
		"gateway_url":         "https://rail.example",
		"partner_id":          "C456",
		"private_key":         railPrivate,
		"platform_public_key": railPublic,
	}
	params := map[string]string{
		"out_trade_no": "P20250101120000003",
		"trade_no":     "RAIL-777",
		"trade_status": TradeStatusSuccess,
		"amount":       "66.00",
	}
	signature, err := sign.Sign(constants.SignModeRSA2,
		sign.BuildSignableString(params),
		sign.Material{PrivateKey: railPrivate})
	if err != nil {
		t.Fatalf("rail sign failed: %v", err)
	}
	form := url.Values{}
	for k, v := range params {
		form.Set(k, v)
	}
	form.Set("sign", signature)
	form.Set("sign_type", "RSA2")

	result, err := New().Notify(context.Background(), &gateway.NotifyRequest{
		TradeNo: "P20250101120000003",
		Amount:  "66.00",
		Method:  constants.CallbackMethodNotify,
		Form:    form,
		Config:  config,
	})
	if err != nil {
		t.Fatalf("notify failed: %v", err)
	}
	if !result.Succeeded || result.APITradeNo != "RAIL-777" || result.AckBody != AckSuccess {
		t.Fatalf("notify result = %+v", result)
	}

	form.Set("amount", "1.00")
	if _, err := New().Notify(context.Background(), &gateway.NotifyRequest{
		TradeNo: "P20250101120000003",
		Amount:  "66.00",
		Form:    form,
		Config:  config,
	}); err == nil {
		t.Fatal("tampered notify accepted")
	}
}
