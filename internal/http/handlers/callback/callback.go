package callback

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/paygate-next/internal/constants"
	handlershared "github.com/paygate-next/internal/http/handlers/shared"
	"github.com/paygate-next/internal/provider"
	"github.com/paygate-next/internal/service"

	"github.com/gin-gonic/gin"
)

const callbackBodyMaxBytes = 1 << 20

// Handler 渠道回调入口处理器
type Handler struct {
	*provider.Container
}

// New 创建回调处理器
func New(c *provider.Container) *Handler {
	return &Handler{Container: c}
}

// Entry 渠道回调统一入口：/callback/:tradeNo/:method
// 应答原文由网关插件声明，平台不改写。
func (h *Handler) Entry(c *gin.Context) {
	tradeNo := c.Param("tradeNo")
	method := strings.ToLower(c.Param("method"))
	switch method {
	case constants.CallbackMethodNotify, constants.CallbackMethodReturn, constants.CallbackMethodRefund:
	default:
		c.String(http.StatusNotFound, "not found")
		return
	}

	log := handlershared.RequestLog(c)
	log.Infow("gateway_callback_received",
		"trade_no", tradeNo,
		"callback_method", method,
		"http_method", c.Request.Method,
		"client_ip", c.ClientIP(),
	)

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, callbackBodyMaxBytes))
	if err != nil {
		c.String(http.StatusBadRequest, "fail")
		return
	}
	// ParseForm 会消费请求体，先还原再解析
	c.Request.Body = io.NopCloser(bytes.NewReader(body))
	if err := c.Request.ParseForm(); err != nil {
		log.Warnw("gateway_callback_form_invalid", "trade_no", tradeNo, "error", err)
		c.String(http.StatusBadRequest, "fail")
		return
	}
	form := c.Request.Form
	if len(c.Request.PostForm) > 0 {
		form = c.Request.PostForm
	}

	ack, err := h.OrderService.HandleCallback(c.Request.Context(), tradeNo, service.CallbackInput{
		Method: method,
		Form:   form,
		Body:   body,
	})
	if err != nil {
		if errors.Is(err, service.ErrOrderNotFound) {
			c.String(http.StatusNotFound, "fail")
			return
		}
		log.Warnw("gateway_callback_failed",
			"trade_no", tradeNo,
			"callback_method", method,
			"error", err,
		)
		c.String(http.StatusBadRequest, "fail")
		return
	}

	if method == constants.CallbackMethodReturn {
		if order, err := h.OrderService.GetByTradeNo(tradeNo); err == nil && order.ReturnURL != "" {
			c.Redirect(http.StatusFound, order.ReturnURL)
			return
		}
	}
	c.String(http.StatusOK, ack)
}
