package main

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/paygate-next/internal/config"
	"github.com/paygate-next/internal/constants"
	"github.com/paygate-next/internal/gateway"
	"github.com/paygate-next/internal/gateway/certpay"
	"github.com/paygate-next/internal/gateway/keypay"
	"github.com/paygate-next/internal/logger"
	"github.com/paygate-next/internal/models"

	"github.com/shopspring/decimal"
)

func main() {
	// 连接数据库
	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	stdLog := logger.StdLogger()
	if err := models.InitDB(cfg.Database.Driver, cfg.Database.DSN, models.DBPoolConfig{
		MaxOpenConns:           cfg.Database.Pool.MaxOpenConns,
		MaxIdleConns:           cfg.Database.Pool.MaxIdleConns,
		ConnMaxLifetimeSeconds: cfg.Database.Pool.ConnMaxLifetimeSeconds,
		ConnMaxIdleTimeSeconds: cfg.Database.Pool.ConnMaxIdleTimeSeconds,
	}); err != nil {
		stdLog.Fatalf("Failed to connect database: %v", err)
	}

	// 自动迁移
	if err := models.AutoMigrate(); err != nil {
		stdLog.Fatalf("Failed to migrate database: %v", err)
	}

	// 演示商户
	merchantNo := "M1001"
	var merchant models.Merchant
	if err := models.DB.Where("merchant_no = ?", merchantNo).First(&merchant).Error; err != nil {
		merchant = models.Merchant{
			MerchantNo:      merchantNo,
			Name:            "演示商户",
			Status:          constants.MerchantStatusActive,
			SettleCycleDays: 1,
			CanSettle:       true,
			CanRefund:       true,
		}
		if err := models.DB.Create(&merchant).Error; err != nil {
			stdLog.Fatalf("Failed to create merchant: %v", err)
		}
		hashKey := randomHex(16)
		symmetricKey := randomHex(16)
		encryption := models.MerchantEncryption{
			MerchantID:   merchant.ID,
			SignMode:     constants.SignModeOpen,
			HashKey:      hashKey,
			SymmetricKey: symmetricKey,
		}
		if err := models.DB.Create(&encryption).Error; err != nil {
			stdLog.Fatalf("Failed to create merchant encryption: %v", err)
		}
		stdLog.Printf("Created merchant %s", merchantNo)
		stdLog.Printf("  hash_key:      %s", hashKey)
		stdLog.Printf("  symmetric_key: %s", symmetricKey)
	} else {
		stdLog.Printf("Merchant already exists: %s", merchantNo)
	}

	// 演示渠道与账户
	channels := []struct {
		channel models.PaymentChannel
		account models.PaymentChannelAccount
	}{
		{
			channel: models.PaymentChannel{
				Code:        "keypay_qr",
				Name:        "KeyPay 扫码",
				GatewayCode: constants.ChannelCodeKeyPay,
				FeeRate:     models.NewMoneyFromDecimal(decimal.RequireFromString("0.60")),
				SortOrder:   10,
				Enabled:     true,
			},
			account: models.PaymentChannelAccount{
				Name:   "keypay-demo",
				Status: constants.ChannelAccountStatusEnabled,
				ConfigJSON: models.JSON(map[string]interface{}{
					"gateway_url": "https://keypay.example.com/gateway",
					"partner_id":  "demo-partner",
					"secret_key":  randomHex(16),
				}),
			},
		},
		{
			channel: models.PaymentChannel{
				Code:        "certpay_web",
				Name:        "CertPay 网页",
				GatewayCode: constants.ChannelCodeCertPay,
				FeeRate:     models.NewMoneyFromDecimal(decimal.RequireFromString("1.20")),
				SortOrder:   20,
				Enabled:     true,
			},
			account: models.PaymentChannelAccount{
				Name:   "certpay-demo",
				Status: constants.ChannelAccountStatusEnabled,
				ConfigJSON: models.JSON(map[string]interface{}{
					"gateway_url":         "https://certpay.example.com/gateway",
					"partner_id":          "demo-partner",
					"private_key":         "REPLACE-WITH-MERCHANT-PRIVATE-KEY-PEM",
					"platform_public_key": "REPLACE-WITH-PLATFORM-PUBLIC-KEY-PEM",
				}),
			},
		},
	}

	// 账户配置先过插件的必填项校验，再落库
	registry := gateway.NewRegistry()
	if err := registry.Register(keypay.New()); err != nil {
		stdLog.Fatalf("Failed to register keypay: %v", err)
	}
	if err := registry.Register(certpay.New()); err != nil {
		stdLog.Fatalf("Failed to register certpay: %v", err)
	}

	for _, item := range channels {
		var existing models.PaymentChannel
		if err := models.DB.Where("code = ?", item.channel.Code).First(&existing).Error; err == nil {
			stdLog.Printf("Channel already exists: %s", item.channel.Code)
			continue
		}
		if err := registry.ValidateAccountConfig(item.channel.GatewayCode, item.account.ConfigJSON); err != nil {
			stdLog.Fatalf("Invalid account config for %s: %v", item.channel.Code, err)
		}
		channel := item.channel
		if err := models.DB.Create(&channel).Error; err != nil {
			stdLog.Printf("Failed to create channel %s: %v", channel.Code, err)
			continue
		}
		account := item.account
		account.ChannelID = channel.ID
		if err := models.DB.Create(&account).Error; err != nil {
			stdLog.Printf("Failed to create channel account %s: %v", account.Name, err)
			continue
		}
		stdLog.Printf("Created channel %s with account %s", channel.Code, account.Name)
	}

	stdLog.Printf("Seed finished")
}

func randomHex(bytes int) string {
	buf := make([]byte, bytes)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return hex.EncodeToString(buf)
}
