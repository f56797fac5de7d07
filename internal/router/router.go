package router

import (
	"fmt"
	"strings"

	"github.com/paygate-next/internal/cache"
	"github.com/paygate-next/internal/config"
	callbackhandlers "github.com/paygate-next/internal/http/handlers/callback"
	merchanthandlers "github.com/paygate-next/internal/http/handlers/merchant"
	"github.com/paygate-next/internal/logger"
	"github.com/paygate-next/internal/provider"

	"github.com/gin-gonic/gin"
)

// SetupRouter 初始化路由
func SetupRouter(cfg *config.Config, c *provider.Container) *gin.Engine {
	log := logger.Z()
	r := gin.New()

	merchantHandler := merchanthandlers.New(c)
	callbackHandler := callbackhandlers.New(c)

	redisPrefix := strings.TrimSpace(cfg.Redis.Prefix)
	if redisPrefix == "" {
		redisPrefix = "pg"
	}
	apiRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:api", redisPrefix),
		WindowSeconds: cfg.Security.APIRateLimit.WindowSeconds,
		MaxRequests:   cfg.Security.APIRateLimit.MaxRequests,
	}

	r.Use(gin.Recovery())
	r.Use(TraceIDMiddleware())
	r.Use(LoggerMiddleware(log))
	r.Use(CORSMiddleware(cfg.CORS))

	// 商户开放接口：限流 → 验签
	apiV1 := r.Group("/api/v1")
	apiV1.Use(RateLimitMiddleware(cache.Client(), apiRule, KeyByMerchantNo))
	apiV1.Use(MerchantAuthMiddleware(c.MerchantRepo))
	{
		order := apiV1.Group("/order")
		{
			order.POST("/create", merchantHandler.CreateOrder)
			order.POST("/query", merchantHandler.QueryOrder)
			order.POST("/close", merchantHandler.CloseOrder)
			order.POST("/refund", merchantHandler.CreateRefund)
			order.POST("/list", merchantHandler.ListOrders)
		}
		apiV1.POST("/refund/query", merchantHandler.QueryRefund)
		apiV1.POST("/refund/list", merchantHandler.ListRefunds)
		apiV1.POST("/notify/redeliver", merchantHandler.RedeliverNotify)
		apiV1.POST("/notify/query", merchantHandler.QueryNotifications)
		apiV1.POST("/wallet/records", merchantHandler.ListWalletRecords)
	}

	// 渠道回调入口：渠道侧验签由网关插件完成，不走商户鉴权
	r.POST("/callback/:tradeNo/:method", callbackHandler.Entry)
	r.GET("/callback/:tradeNo/:method", callbackHandler.Entry)

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
