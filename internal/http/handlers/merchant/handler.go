package merchant

import "github.com/paygate-next/internal/provider"

// Handler 商户开放接口处理器入口
// 说明：所有路由均经过签名中间件，商户与业务参数从上下文读取。
type Handler struct {
	*provider.Container
}

// New 创建商户接口处理器
func New(c *provider.Container) *Handler {
	return &Handler{Container: c}
}
