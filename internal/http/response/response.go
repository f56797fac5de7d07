package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response 统一响应结构
type Response struct {
	State   string      `json:"state"`   // success / fail
	Code    int         `json:"code"`    // 业务状态码
	Message string      `json:"message"` // 提示消息
	Data    interface{} `json:"data"`    // 数据内容
}

// PageResponse 分页响应结构
type PageResponse struct {
	State      string      `json:"state"`
	Code       int         `json:"code"`
	Message    string      `json:"message"`
	Data       interface{} `json:"data"`
	Pagination Pagination  `json:"pagination"`
}

// Pagination 分页信息
type Pagination struct {
	Page      int   `json:"page"`
	PageSize  int   `json:"page_size"`
	Total     int64 `json:"total"`
	TotalPage int64 `json:"total_page"`
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		State:   StateSuccess,
		Code:    CodeOK,
		Message: "success",
		Data:    data,
	})
}

// SuccessWithPage 分页成功响应
func SuccessWithPage(c *gin.Context, data interface{}, pagination Pagination) {
	c.JSON(http.StatusOK, PageResponse{
		State:      StateSuccess,
		Code:       CodeOK,
		Message:    "success",
		Data:       data,
		Pagination: pagination,
	})
}

// Error 错误响应
func Error(c *gin.Context, code int, message string) {
	c.JSON(http.StatusOK, Response{
		State:   StateFail,
		Code:    code,
		Message: message,
		Data:    attachTraceID(c, nil),
	})
}

// ErrorWithData 错误响应（带数据）
func ErrorWithData(c *gin.Context, code int, message string, data interface{}) {
	c.JSON(http.StatusOK, Response{
		State:   StateFail,
		Code:    code,
		Message: message,
		Data:    attachTraceID(c, data),
	})
}

// NotFound 404响应
func NotFound(c *gin.Context, message string) {
	Error(c, CodeNotFound, message)
}

// Unauthorized 401响应
func Unauthorized(c *gin.Context, message string) {
	Error(c, CodeUnauthorized, message)
}

// Forbidden 403响应
func Forbidden(c *gin.Context, message string) {
	Error(c, CodeForbidden, message)
}

// BadRequest 400响应
func BadRequest(c *gin.Context, message string) {
	Error(c, CodeBadRequest, message)
}

// Internal 500响应
func Internal(c *gin.Context, message string) {
	Error(c, CodeInternal, message)
}

func attachTraceID(c *gin.Context, data interface{}) interface{} {
	traceID := ""
	if c != nil {
		if value, ok := c.Get("trace_id"); ok {
			if id, ok := value.(string); ok {
				traceID = id
			}
		}
	}
	if traceID == "" {
		return data
	}
	if data == nil {
		return gin.H{"trace_id": traceID}
	}
	switch v := data.(type) {
	case gin.H:
		if _, ok := v["trace_id"]; !ok {
			v["trace_id"] = traceID
		}
		return v
	case map[string]interface{}:
		if _, ok := v["trace_id"]; !ok {
			v["trace_id"] = traceID
		}
		return v
	default:
		return gin.H{
			"trace_id": traceID,
			"data":     data,
		}
	}
}
