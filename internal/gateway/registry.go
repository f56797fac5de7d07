package gateway

import (
	"fmt"
	"strings"
	"sync"
)

// Registry 渠道编码到插件实例的静态映射。
// 启动时注册完成后只读，解析失败属于配置错误，在任何资金动作之前暴露。
type Registry struct {
	mu       sync.RWMutex
	gateways map[string]Gateway
}

// NewRegistry 创建插件注册表
func NewRegistry() *Registry {
	return &Registry{gateways: make(map[string]Gateway)}
}

// Register 注册插件，编码冲突返回错误
func (r *Registry) Register(g Gateway) error {
	if g == nil {
		return fmt.Errorf("%w: nil gateway", ErrConfigInvalid)
	}
	code := strings.ToLower(strings.TrimSpace(g.Code()))
	if code == "" {
		return fmt.Errorf("%w: empty gateway code", ErrConfigInvalid)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.gateways[code]; exists {
		return fmt.Errorf("%w: duplicate gateway code %s", ErrConfigInvalid, code)
	}
	r.gateways[code] = g
	return nil
}

// Resolve 按编码解析插件
func (r *Registry) Resolve(code string) (Gateway, error) {
	code = strings.ToLower(strings.TrimSpace(code))
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.gateways[code]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownGateway, code)
	}
	return g, nil
}

// Codes 列出已注册的编码
func (r *Registry) Codes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	codes := make([]string, 0, len(r.gateways))
	for code := range r.gateways {
		codes = append(codes, code)
	}
	return codes
}

// ValidateAccountConfig 校验渠道账户配置是否包含插件声明的必填项，
// 用于账户启用前的检查。
func (r *Registry) ValidateAccountConfig(code string, config map[string]interface{}) error {
	g, err := r.Resolve(code)
	if err != nil {
		return err
	}
	for _, field := range g.RequiredConfig() {
		value, ok := config[field]
		if !ok {
			return fmt.Errorf("%w: missing %s", ErrConfigInvalid, field)
		}
		if s, isString := value.(string); isString && strings.TrimSpace(s) == "" {
			return fmt.Errorf("%w: empty %s", ErrConfigInvalid, field)
		}
	}
	return nil
}
