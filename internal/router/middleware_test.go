package router

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/paygate-next/internal/constants"
	"github.com/paygate-next/internal/http/response"
	"github.com/paygate-next/internal/models"
	"github.com/paygate-next/internal/repository"
	"github.com/paygate-next/internal/sign"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func TestResolveAllowedOrigin(t *testing.T) {
	got := resolveAllowedOrigin("https://example.com", []string{"*"}, false)
	if got != "*" {
		t.Fatalf("wildcard without credentials should return *, got %s", got)
	}

	got = resolveAllowedOrigin("https://example.com", []string{"*"}, true)
	if got != "https://example.com" {
		t.Fatalf("wildcard with credentials should echo origin, got %s", got)
	}

	got = resolveAllowedOrigin("https://a.example.com", []string{"https://a.example.com", "https://b.example.com"}, false)
	if got != "https://a.example.com" {
		t.Fatalf("allow-list should return matched origin, got %s", got)
	}

	got = resolveAllowedOrigin("https://x.example.com", []string{"https://a.example.com"}, false)
	if got != "" {
		t.Fatalf("unmatched origin should be empty, got %s", got)
	}
}

func TestTraceIDMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(TraceIDMiddleware())
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"trace_id": getTraceID(c)})
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(traceIDHeader, "trace-123")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status want 200 got %d", w.Code)
	}
	if w.Header().Get(traceIDHeader) != "trace-123" {
		t.Fatalf("response trace id want trace-123 got %s", w.Header().Get(traceIDHeader))
	}
	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response failed: %v", err)
	}
	if resp["trace_id"] != "trace-123" {
		t.Fatalf("context trace id want trace-123 got %s", resp["trace_id"])
	}

	w2 := httptest.NewRecorder()
	req2 := httptest.NewRequest(http.MethodGet, "/ping", nil)
	r.ServeHTTP(w2, req2)
	if strings.TrimSpace(w2.Header().Get(traceIDHeader)) == "" {
		t.Fatalf("generated trace id should not be empty")
	}
}

func newAuthTestRepo(t *testing.T) *repository.GormMerchantRepository {
	t.Helper()
	dsn := fmt.Sprintf("file:router_auth_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(&models.Merchant{}, &models.MerchantEncryption{}); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	return repository.NewMerchantRepository(db)
}

func seedAuthMerchant(t *testing.T, repo *repository.GormMerchantRepository, merchantNo, hashKey string) {
	t.Helper()
	merchant := &models.Merchant{
		MerchantNo: merchantNo,
		Name:       "验签测试商户",
		Status:     constants.MerchantStatusActive,
	}
	if err := repo.Create(merchant); err != nil {
		t.Fatalf("create merchant failed: %v", err)
	}
	if err := repo.CreateEncryption(&models.MerchantEncryption{
		MerchantID: merchant.ID,
		SignMode:   constants.SignModeMD5,
		HashKey:    hashKey,
	}); err != nil {
		t.Fatalf("create encryption failed: %v", err)
	}
}

func signedAuthForm(t *testing.T, merchantNo, hashKey string, timestamp int64, biz map[string]interface{}) url.Values {
	t.Helper()
	raw, err := json.Marshal(biz)
	if err != nil {
		t.Fatalf("marshal biz failed: %v", err)
	}
	bizContent := base64.StdEncoding.EncodeToString(raw)
	params := map[string]string{
		"merchant_no":      merchantNo,
		"timestamp":        fmt.Sprintf("%d", timestamp),
		"biz_content":      bizContent,
		"encryption_param": "",
	}
	signature, err := sign.Sign(constants.SignModeMD5, sign.BuildSignableString(params), sign.Material{HashKey: hashKey})
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}

	form := url.Values{}
	form.Set("merchant_no", merchantNo)
	form.Set("timestamp", fmt.Sprintf("%d", timestamp))
	form.Set("sign_type", constants.SignModeMD5)
	form.Set("sign", signature)
	form.Set("biz_content", bizContent)
	return form
}

func newAuthTestRouter(repo *repository.GormMerchantRepository) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/order/query", MerchantAuthMiddleware(repo), func(c *gin.Context) {
		merchant, ok := c.Get("merchant")
		if !ok {
			c.JSON(http.StatusOK, gin.H{"merchant_no": ""})
			return
		}
		biz, _ := c.Get("biz_params")
		c.JSON(http.StatusOK, gin.H{
			"merchant_no": merchant.(*models.Merchant).MerchantNo,
			"trade_no":    biz.(map[string]interface{})["trade_no"],
		})
	})
	return r
}

func postForm(r *gin.Engine, path string, form url.Values) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r.ServeHTTP(w, req)
	return w
}

func TestMerchantAuthMiddlewarePassesVerifiedRequest(t *testing.T) {
	repo := newAuthTestRepo(t)
	seedAuthMerchant(t, repo, "M2001", "router-test-key")
	r := newAuthTestRouter(repo)

	form := signedAuthForm(t, "M2001", "router-test-key", time.Now().Unix(), map[string]interface{}{
		"trade_no": "P2024010112000012345678",
	})
	w := postForm(r, "/order/query", form)

	if w.Code != http.StatusOK {
		t.Fatalf("status want 200 got %d", w.Code)
	}
	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response failed: %v", err)
	}
	if resp["merchant_no"] != "M2001" {
		t.Fatalf("merchant_no want M2001 got %v", resp["merchant_no"])
	}
	if resp["trade_no"] != "P2024010112000012345678" {
		t.Fatalf("biz trade_no not passed through, got %v", resp["trade_no"])
	}
}

func TestMerchantAuthMiddlewareRejectsBadSignature(t *testing.T) {
	repo := newAuthTestRepo(t)
	seedAuthMerchant(t, repo, "M2002", "router-test-key")
	r := newAuthTestRouter(repo)

	form := signedAuthForm(t, "M2002", "wrong-key", time.Now().Unix(), map[string]interface{}{})
	w := postForm(r, "/order/query", form)

	var resp struct {
		State string `json:"state"`
		Code  int    `json:"code"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response failed: %v", err)
	}
	if resp.State != response.StateFail || resp.Code != response.CodeUnauthorized {
		t.Fatalf("bad signature should be rejected with 401, got state=%s code=%d", resp.State, resp.Code)
	}
}

func TestMerchantAuthMiddlewareRejectsStaleTimestamp(t *testing.T) {
	repo := newAuthTestRepo(t)
	seedAuthMerchant(t, repo, "M2003", "router-test-key")
	r := newAuthTestRouter(repo)

	stale := time.Now().Add(-time.Duration(constants.ReplayWindowSeconds+5) * time.Second).Unix()
	form := signedAuthForm(t, "M2003", "router-test-key", stale, map[string]interface{}{})
	w := postForm(r, "/order/query", form)

	var resp struct {
		Code int `json:"code"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response failed: %v", err)
	}
	if resp.Code != response.CodeBadRequest {
		t.Fatalf("stale timestamp should be rejected with 400, got code=%d", resp.Code)
	}
}

func TestMerchantAuthMiddlewareRejectsUnknownMerchant(t *testing.T) {
	repo := newAuthTestRepo(t)
	r := newAuthTestRouter(repo)

	form := signedAuthForm(t, "M9999", "router-test-key", time.Now().Unix(), map[string]interface{}{})
	w := postForm(r, "/order/query", form)

	var resp struct {
		Code int `json:"code"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response failed: %v", err)
	}
	if resp.Code != response.CodeUnauthorized {
		t.Fatalf("unknown merchant should be rejected with 401, got code=%d", resp.Code)
	}
}
