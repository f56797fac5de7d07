package merchant

import (
	"fmt"
	"strconv"
	"strings"

	handlershared "github.com/paygate-next/internal/http/handlers/shared"
	"github.com/paygate-next/internal/http/response"
	"github.com/paygate-next/internal/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func requestLog(c *gin.Context) *zap.SugaredLogger {
	return handlershared.RequestLog(c)
}

func respondError(c *gin.Context, code int, msg string, err error) {
	handlershared.RespondError(c, code, msg, err)
}

// getMerchant 读取签名中间件放入上下文的商户。
func getMerchant(c *gin.Context) (*models.Merchant, bool) {
	value, ok := c.Get("merchant")
	if !ok {
		respondError(c, response.CodeUnauthorized, "merchant context missing", nil)
		return nil, false
	}
	m, ok := value.(*models.Merchant)
	if !ok || m == nil {
		respondError(c, response.CodeInternal, "merchant context invalid", nil)
		return nil, false
	}
	return m, true
}

// getBizParams 读取签名中间件解出的业务参数表。
func getBizParams(c *gin.Context) (map[string]interface{}, bool) {
	value, ok := c.Get("biz_params")
	if !ok {
		respondError(c, response.CodeBadRequest, "biz_content missing", nil)
		return nil, false
	}
	biz, ok := value.(map[string]interface{})
	if !ok {
		respondError(c, response.CodeInternal, "biz_content context invalid", nil)
		return nil, false
	}
	return biz, true
}

// bizInt 按键取出业务参数的整数形式，缺失或无法解析为 0。
func bizInt(biz map[string]interface{}, key string) int {
	value, ok := biz[key]
	if !ok || value == nil {
		return 0
	}
	switch v := value.(type) {
	case float64:
		return int(v)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

// bizString 按键取出业务参数的字符串形式，数字类型原样格式化。
func bizString(biz map[string]interface{}, key string) string {
	value, ok := biz[key]
	if !ok || value == nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%f", v), "0"), ".")
	case bool:
		if v {
			return "true"
		}
		return "false"
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", v))
	}
}
