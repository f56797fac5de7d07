package provider

import (
	"time"

	"github.com/paygate-next/internal/cache"
	"github.com/paygate-next/internal/config"
	"github.com/paygate-next/internal/gateway"
	"github.com/paygate-next/internal/gateway/certpay"
	"github.com/paygate-next/internal/gateway/keypay"
	"github.com/paygate-next/internal/logger"
	"github.com/paygate-next/internal/models"
	"github.com/paygate-next/internal/queue"
	"github.com/paygate-next/internal/repository"
	"github.com/paygate-next/internal/service"
)

// Container 依赖注入容器
type Container struct {
	Config      *config.Config
	QueueClient *queue.Client
	Registry    *gateway.Registry

	// Repositories
	MerchantRepo     *repository.GormMerchantRepository
	WalletRepo       *repository.GormWalletRepository
	ChannelRepo      *repository.GormChannelRepository
	OrderRepo        *repository.GormOrderRepository
	RefundRepo       *repository.GormRefundRepository
	NotificationRepo *repository.GormNotificationRepository

	// Services
	SettleService *service.SettleService
	OrderService  *service.OrderService
	NotifyService *service.NotifyService
	RefundService *service.RefundService
}

// NewContainer 初始化容器
func NewContainer(cfg *config.Config) *Container {
	// 初始化缓存
	if err := cache.InitRedis(&cfg.Redis); err != nil {
		logger.Warnw("provider_init_redis_failed", "error", err)
	}

	// 初始化队列客户端
	var queueClient *queue.Client
	if cfg.Queue.Enabled {
		qc, err := queue.NewClient(&cfg.Queue)
		if err != nil {
			logger.Errorw("provider_init_queue_client_failed", "error", err)
		} else {
			queueClient = qc
		}
	}

	c := &Container{
		Config:      cfg,
		QueueClient: queueClient,
	}

	// 1. 初始化 Repositories
	c.initRepositories()

	// 2. 注册支付渠道插件
	c.initGateways()

	// 3. 初始化 Services
	c.initServices()

	return c
}

func (c *Container) initRepositories() {
	db := models.DB
	c.MerchantRepo = repository.NewMerchantRepository(db)
	c.WalletRepo = repository.NewWalletRepository(db)
	c.ChannelRepo = repository.NewChannelRepository(db)
	c.OrderRepo = repository.NewOrderRepository(db)
	c.RefundRepo = repository.NewRefundRepository(db)
	c.NotificationRepo = repository.NewNotificationRepository(db)
}

func (c *Container) initGateways() {
	c.Registry = gateway.NewRegistry()
	if err := c.Registry.Register(keypay.New()); err != nil {
		logger.Errorw("provider_register_gateway_failed", "code", "keypay", "error", err)
		panic(err)
	}
	if err := c.Registry.Register(certpay.New()); err != nil {
		logger.Errorw("provider_register_gateway_failed", "code", "certpay", "error", err)
		panic(err)
	}
}

func (c *Container) initServices() {
	c.SettleService = service.NewSettleService(
		c.OrderRepo,
		c.WalletRepo,
		c.MerchantRepo,
		c.QueueClient,
		c.Config.Settle.DefaultCycleDays,
	)
	c.OrderService = service.NewOrderService(
		c.OrderRepo,
		c.MerchantRepo,
		c.ChannelRepo,
		c.Registry,
		service.NewOrderExtensionStore(c.OrderRepo),
		c.SettleService,
		c.QueueClient,
		service.OrderOptions{
			DefaultExpireMinutes: c.Config.Order.DefaultExpireMinutes,
			SubjectBlocklist:     c.Config.Order.SubjectBlocklist,
			CallbackBaseURL:      c.Config.Gateway.CallbackBaseURL,
		},
	)
	c.NotifyService = service.NewNotifyService(
		c.OrderRepo,
		c.RefundRepo,
		c.MerchantRepo,
		c.NotificationRepo,
		c.QueueClient,
		time.Duration(c.Config.Notify.TimeoutSeconds)*time.Second,
	)
	c.RefundService = service.NewRefundService(
		c.OrderRepo,
		c.RefundRepo,
		c.MerchantRepo,
		c.ChannelRepo,
		c.Registry,
		c.SettleService,
		c.QueueClient,
	)
}
