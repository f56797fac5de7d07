package sign

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/paygate-next/internal/constants"
)

func testRSAKeyPair(t *testing.T) (privatePEM, publicPEM string) {
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

func TestBuildSignableString(t *testing.T) {
	params := map[string]string{
		"b":         "2",
		"a":         "1",
		"empty":     "",
		"sign":      "x",
		"sign_type": "md5",
		"c":         "3",
	}
	got := BuildSignableString(params)
	want := "a=1&b=2&c=3"
	if got != want {
		t.Fatalf("signable string = %q, want %q", got, want)
	}
}

func TestKeyedSignRoundTrip(t *testing.T) {
	material := Material{Mode: constants.SignModeOpen, HashKey: "test-hash-key"}
	content := "amount=100.00&out_trade_no=M001&subject=demo"

	for _, mode := range []string{constants.SignModeMD5, constants.SignModeSHA3, constants.SignModeSM3} {
		signature, err := Sign(mode, content, material)
		if err != nil {
			t.Fatalf("%s sign failed: %v", mode, err)
		}
		if err := Verify(mode, content, signature, material); err != nil {
			t.Fatalf("%s verify failed: %v", mode, err)
		}
		if err := Verify(mode, content+"&x=1", signature, material); err == nil {
			t.Fatalf("%s verify accepted tampered content", mode)
		}
		wrongKey := Material{Mode: constants.SignModeOpen, HashKey: "other-key"}
		if err := Verify(mode, content, signature, wrongKey); err == nil {
			t.Fatalf("%s verify accepted wrong key", mode)
		}
	}
}

func TestRSASignRoundTrip(t *testing.T) {
	privatePEM, publicPEM := testRSAKeyPair(t)
	material := Material{
		Mode:         constants.SignModeRSA2,
		PublicKeyPEM: publicPEM,
		PrivateKey:   privatePEM,
	}
	content := "amount=9.99&out_trade_no=M002"

	signature, err := Sign(constants.SignModeRSA2, content, material)
	if err != nil {
		t.Fatalf("rsa2 sign failed: %v", err)
	}
	if err := Verify(constants.SignModeRSA2, content, signature, material); err != nil {
		t.Fatalf("rsa2 verify failed: %v", err)
	}
	if err := Verify(constants.SignModeRSA2, content+"x", signature, material); err == nil {
		t.Fatal("rsa2 verify accepted tampered content")
	}
}

func TestVerifyModePinning(t *testing.T) {
	material := Material{Mode: constants.SignModeSM3, HashKey: "pinned-key"}
	content := "a=1"

	signature, err := Sign(constants.SignModeMD5, content, material)
	if err != nil {
		t.Fatalf("md5 sign failed: %v", err)
	}
	err = Verify(constants.SignModeMD5, content, signature, material)
	if !errors.Is(err, ErrSignModeMismatch) {
		t.Fatalf("pinned sm3 merchant accepted md5 request: %v", err)
	}

	if err := Verify("hmac-sha1", content, signature, material); !errors.Is(err, ErrSignModeUnsupported) {
		t.Fatalf("unknown mode not hard-rejected: %v", err)
	}
}

func TestCheckTimestampBoundary(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	cases := []struct {
		skew    int64
		wantErr bool
	}{
		{599, false},
		{600, false},
		{601, true},
		{-601, true},
	}
	for _, tc := range cases {
		ts := strconv.FormatInt(now.Unix()-tc.skew, 10)
		err := CheckTimestamp(ts, now)
		if tc.wantErr && err == nil {
			t.Fatalf("skew %d accepted, want reject", tc.skew)
		}
		if !tc.wantErr && err != nil {
			t.Fatalf("skew %d rejected: %v", tc.skew, err)
		}
	}

	if err := CheckTimestamp("not-a-number", now); !errors.Is(err, ErrTimestampInvalid) {
		t.Fatalf("malformed timestamp: %v", err)
	}
}

func TestSM4CipherRoundTrip(t *testing.T) {
	key := hex.EncodeToString([]byte("0123456789abcdef"))
	plaintext := []byte(`{"out_trade_no":"M003","total_amount":"12.50"}`)

	envelope, err := EncryptSM4(plaintext, key)
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	decrypted, err := DecryptSM4(envelope, key)
	if err != nil {
		t.Fatalf("decrypt failed: %v", err)
	}
	if string(decrypted) != string(plaintext) {
		t.Fatalf("round trip mismatch: %s", decrypted)
	}

	otherKey := hex.EncodeToString([]byte("fedcba9876543210"))
	if _, err := DecryptSM4(envelope, otherKey); err == nil {
		t.Fatal("decrypt with wrong key succeeded")
	}
}

func TestVerifyRequestPlainAndEncrypted(t *testing.T) {
	symmetricKey := hex.EncodeToString([]byte("0123456789abcdef"))
	material := Material{
		Mode:         constants.SignModeOpen,
		HashKey:      "merchant-hash-key",
		SymmetricKey: symmetricKey,
	}
	now := time.Now()
	biz := map[string]interface{}{
		"out_trade_no": "M004",
		"total_amount": "88.00",
	}
	bizJSON, _ := json.Marshal(biz)

	buildRequest := func(bizContent, encryptionParam string) Request {
		req := Request{
			MerchantNo:      "MCH001",
			Timestamp:       strconv.FormatInt(now.Unix(), 10),
			SignType:        constants.SignModeMD5,
			BizContent:      bizContent,
			EncryptionParam: encryptionParam,
		}
		content := BuildSignableString(map[string]string{
			"merchant_no":      req.MerchantNo,
			"timestamp":        req.Timestamp,
			"biz_content":      req.BizContent,
			"encryption_param": req.EncryptionParam,
		})
		signature, err := Sign(constants.SignModeMD5, content, material)
		if err != nil {
			t.Fatalf("sign failed: %v", err)
		}
		req.Sign = signature
		return req
	}

	plain := buildRequest(base64.StdEncoding.EncodeToString(bizJSON), "")
	got, err := VerifyRequest(plain, material, now)
	if err != nil {
		t.Fatalf("verify plain request failed: %v", err)
	}
	if got["out_trade_no"] != "M004" {
		t.Fatalf("plain biz content = %v", got)
	}

	envelope, err := EncryptSM4(bizJSON, symmetricKey)
	if err != nil {
		t.Fatalf("encrypt biz content failed: %v", err)
	}
	encrypted := buildRequest(envelope, constants.EncryptionParamSM4)
	got, err = VerifyRequest(encrypted, material, now)
	if err != nil {
		t.Fatalf("verify encrypted request failed: %v", err)
	}
	if got["total_amount"] != "88.00" {
		t.Fatalf("encrypted biz content = %v", got)
	}

	tampered := plain
	tampered.BizContent = base64.StdEncoding.EncodeToString([]byte(`{"out_trade_no":"EVIL"}`))
	if _, err := VerifyRequest(tampered, material, now); err == nil {
		t.Fatal("tampered biz_content accepted")
	}

	stale := buildRequest(base64.StdEncoding.EncodeToString(bizJSON), "")
	stale.Timestamp = strconv.FormatInt(now.Unix()-601, 10)
	if _, err := VerifyRequest(stale, material, now); !errors.Is(err, ErrReplayWindow) {
		t.Fatalf("stale timestamp: %v", err)
	}
}
