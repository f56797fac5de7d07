package router

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/paygate-next/internal/cache"
	"github.com/paygate-next/internal/config"
	"github.com/paygate-next/internal/constants"
	"github.com/paygate-next/internal/http/response"
	"github.com/paygate-next/internal/logger"
	"github.com/paygate-next/internal/repository"
	"github.com/paygate-next/internal/service"
	"github.com/paygate-next/internal/sign"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const traceIDKey = "trace_id"
const traceIDHeader = "X-Trace-ID"

// CORSMiddleware 跨域中间件
func CORSMiddleware(cfg config.CORSConfig) gin.HandlerFunc {
	allowedOrigins := cfg.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	allowedMethods := cfg.AllowedMethods
	if len(allowedMethods) == 0 {
		allowedMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	}
	allowedHeaders := cfg.AllowedHeaders
	if len(allowedHeaders) == 0 {
		allowedHeaders = []string{
			"Content-Type",
			"Content-Length",
			"Accept-Encoding",
			"Authorization",
			"Cache-Control",
			"X-Requested-With",
		}
	}
	methodsHeader := strings.Join(allowedMethods, ", ")
	headersHeader := strings.Join(allowedHeaders, ", ")

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		allowedOrigin := resolveAllowedOrigin(origin, allowedOrigins, cfg.AllowCredentials)
		if allowedOrigin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
			if allowedOrigin != "*" {
				c.Writer.Header().Add("Vary", "Origin")
			}
		}
		if cfg.AllowCredentials {
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		}
		c.Writer.Header().Set("Access-Control-Allow-Headers", headersHeader)
		c.Writer.Header().Set("Access-Control-Allow-Methods", methodsHeader)
		if cfg.MaxAge > 0 {
			c.Writer.Header().Set("Access-Control-Max-Age", strconv.Itoa(cfg.MaxAge))
		}

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

func resolveAllowedOrigin(origin string, allowedOrigins []string, allowCredentials bool) string {
	if len(allowedOrigins) == 0 {
		return ""
	}
	for _, allowed := range allowedOrigins {
		if allowed == "*" {
			if allowCredentials && origin != "" {
				return origin
			}
			return "*"
		}
	}
	if origin == "" {
		return ""
	}
	for _, allowed := range allowedOrigins {
		if strings.EqualFold(allowed, origin) {
			return origin
		}
	}
	return ""
}

// TraceIDMiddleware 请求追踪 ID 中间件
func TraceIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := strings.TrimSpace(c.GetHeader(traceIDHeader))
		if traceID == "" {
			traceID = uuid.NewString()
		}
		c.Set(traceIDKey, traceID)
		c.Writer.Header().Set(traceIDHeader, traceID)
		c.Next()
	}
}

// LoggerMiddleware 结构化请求日志中间件
func LoggerMiddleware(log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.L()
	}
	sugar := log.Sugar()
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := sugar.With(
			"trace_id", getTraceID(c),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		)
		if len(c.Errors) > 0 {
			entry.Errorw("request", "errors", c.Errors.String())
			return
		}
		entry.Infow("request")
	}
}

func getTraceID(c *gin.Context) string {
	value, ok := c.Get(traceIDKey)
	if !ok {
		return ""
	}
	if traceID, ok := value.(string); ok {
		return traceID
	}
	return ""
}

// MerchantAuthMiddleware 商户签名鉴权中间件。
// 校验顺序：公共参数 → 商户状态 → 重放窗口/验签/解码 → 防重放缓存，
// 通过后将商户与业务参数放入上下文。
func MerchantAuthMiddleware(merchantRepo *repository.GormMerchantRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req sign.Request
		if err := bindSignRequest(c, &req); err != nil {
			response.BadRequest(c, "request params invalid")
			c.Abort()
			return
		}
		if strings.TrimSpace(req.MerchantNo) == "" || strings.TrimSpace(req.Sign) == "" {
			response.BadRequest(c, "merchant_no and sign required")
			c.Abort()
			return
		}

		merchant, err := merchantRepo.GetByMerchantNo(req.MerchantNo)
		if err != nil {
			logger.Errorw("merchant_auth_load_failed",
				"merchant_no", req.MerchantNo,
				"error", err,
			)
			response.Internal(c, "merchant lookup failed")
			c.Abort()
			return
		}
		if merchant == nil {
			response.Unauthorized(c, "merchant not found")
			c.Abort()
			return
		}
		if merchant.Status != constants.MerchantStatusActive {
			response.Forbidden(c, "merchant disabled")
			c.Abort()
			return
		}
		if merchant.Encryption == nil {
			response.Forbidden(c, "merchant encryption material missing")
			c.Abort()
			return
		}

		biz, err := sign.VerifyRequest(req, service.EncryptionMaterial(merchant.Encryption), time.Now())
		if err != nil {
			logger.Warnw("merchant_auth_verify_failed",
				"merchant_no", req.MerchantNo,
				"sign_type", req.SignType,
				"error", err,
			)
			switch {
			case errors.Is(err, sign.ErrTimestampInvalid), errors.Is(err, sign.ErrReplayWindow):
				response.BadRequest(c, "timestamp outside replay window")
			case errors.Is(err, sign.ErrBizContentInvalid):
				response.BadRequest(c, "biz_content invalid")
			default:
				response.Unauthorized(c, "signature verification failed")
			}
			c.Abort()
			return
		}

		if !cache.MarkReplay(c.Request.Context(), req.ReplayKey()) {
			logger.Warnw("merchant_auth_replay_rejected",
				"merchant_no", req.MerchantNo,
				"timestamp", req.Timestamp,
			)
			response.Error(c, response.CodeTooManyRequests, "request replay rejected")
			c.Abort()
			return
		}

		c.Set("merchant", merchant)
		c.Set("biz_params", biz)
		c.Next()
	}
}

func bindSignRequest(c *gin.Context, req *sign.Request) error {
	contentType := strings.ToLower(c.ContentType())
	if strings.Contains(contentType, "application/json") {
		return c.ShouldBindJSON(req)
	}
	return c.ShouldBind(req)
}
