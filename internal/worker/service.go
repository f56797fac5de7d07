package worker

import (
	"context"
	"errors"
	"time"

	"github.com/paygate-next/internal/config"
	"github.com/paygate-next/internal/queue"

	"github.com/hibiken/asynq"
)

const (
	expirySweepInterval      = time.Minute
	settleRetrySweepInterval = 5 * time.Minute
)

// Service 异步队列服务
type Service struct {
	name     string
	server   *asynq.Server
	mux      *asynq.ServeMux
	consumer *Consumer
}

// NewService 创建异步队列服务
func NewService(cfg *config.QueueConfig, consumer *Consumer) (*Service, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, errors.New("queue disabled")
	}
	if consumer == nil {
		return nil, errors.New("consumer is nil")
	}
	opt, serverCfg := queue.BuildServerConfig(cfg)
	server := asynq.NewServer(opt, serverCfg)
	mux := asynq.NewServeMux()
	consumer.Register(mux)
	return &Service{
		name:     "worker",
		server:   server,
		mux:      mux,
		consumer: consumer,
	}, nil
}

// Name 服务名称
func (s *Service) Name() string {
	if s == nil || s.name == "" {
		return "worker"
	}
	return s.name
}

// Start 启动服务
func (s *Service) Start(ctx context.Context) error {
	if s == nil || s.server == nil || s.mux == nil {
		return errors.New("worker not initialized")
	}
	if s.consumer != nil && s.consumer.OrderService != nil {
		go s.runExpirySweepLoop(ctx)
	}
	if s.consumer != nil && s.consumer.SettleService != nil {
		go s.runSettleRetryLoop(ctx)
	}
	return s.server.Run(s.mux)
}

// Stop 停止服务
func (s *Service) Stop(ctx context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}
	_ = ctx
	s.server.Shutdown()
	return nil
}

// runExpirySweepLoop 到期关单兜底扫描：延迟任务丢失也能关单
func (s *Service) runExpirySweepLoop(ctx context.Context) {
	runOnce := func() {
		s.consumer.OrderService.ExpirySweep(time.Now())
	}
	runOnce()

	ticker := time.NewTicker(expirySweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runOnce()
		}
	}
}

// runSettleRetryLoop 结算失败重试扫描
func (s *Service) runSettleRetryLoop(ctx context.Context) {
	runOnce := func() {
		s.consumer.SettleService.RetrySweep(time.Now())
	}
	runOnce()

	ticker := time.NewTicker(settleRetrySweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runOnce()
		}
	}
}
