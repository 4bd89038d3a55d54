package common

import (
	"net/http"

	"actionflow/internal/middleware"

	"github.com/gin-gonic/gin"
)

// APIResponse 统一响应信封
// 调用失败时 Error 为错误码，Stage 标明失败发生在参数解析还是远程执行
type APIResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	Data      any    `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
	Stage     string `json:"stage,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

// ErrorResponse 错误响应
type ErrorResponse struct {
	Success   bool   `json:"success"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`
}

// Fail 构造错误响应，附带当前请求 ID
func Fail(c *gin.Context, code, message string) ErrorResponse {
	return ErrorResponse{
		Success:   false,
		Code:      code,
		Message:   message,
		RequestID: middleware.GetRequestIDFromGin(c),
	}
}

// RespondNotFound 资源不存在
func RespondNotFound(c *gin.Context, message string) {
	c.JSON(http.StatusNotFound, Fail(c, CodeNotFound, message))
}

// RespondUnavailable 依赖组件未启用
func RespondUnavailable(c *gin.Context, message string) {
	c.JSON(http.StatusServiceUnavailable, Fail(c, CodeUnavailable, message))
}

// RespondStageFailure 调用已结束但失败，返回调用详情与失败阶段
func RespondStageFailure(c *gin.Context, status int, code, stage string, err error, data any) {
	c.JSON(status, APIResponse{
		Success:   false,
		Message:   err.Error(),
		Data:      data,
		Error:     code,
		Stage:     stage,
		RequestID: middleware.GetRequestIDFromGin(c),
	})
}
