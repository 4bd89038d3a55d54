package common

import (
	"errors"
	"net/http"

	"actionflow/internal/panel"
	"actionflow/internal/tools"

	"github.com/gin-gonic/gin"
)

// 错误码
const (
	CodeNotFound       = "NOT_FOUND"
	CodeInvalidRequest = "INVALID_REQUEST"
	CodeResolution     = "RESOLUTION_FAILED"
	CodeRemote         = "REMOTE_FAILED"
	CodeNotEditable    = "NOT_EDITABLE"
	CodeConfiguration  = "CONFIGURATION_ERROR"
	CodeInternal       = "INTERNAL_ERROR"
	CodeUnavailable    = "SERVICE_UNAVAILABLE"
)

// StatusFromError 将领域错误映射为 HTTP 状态码与错误码
func StatusFromError(err error) (int, string) {
	var cfgErr *tools.ConfigurationError
	switch {
	case err == nil:
		return http.StatusOK, ""
	case tools.IsResolutionError(err):
		return http.StatusUnprocessableEntity, CodeResolution
	case tools.IsRemoteError(err):
		return http.StatusBadGateway, CodeRemote
	case errors.Is(err, panel.ErrNotEditable), errors.Is(err, panel.ErrNotSaveable):
		return http.StatusConflict, CodeNotEditable
	case errors.Is(err, tools.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.As(err, &cfgErr):
		return http.StatusInternalServerError, CodeConfiguration
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

// RespondError 按错误类型写入统一错误响应
func RespondError(c *gin.Context, err error) {
	status, code := StatusFromError(err)
	c.JSON(status, Fail(c, code, err.Error()))
}

// RespondBadRequest 请求参数错误
func RespondBadRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, Fail(c, CodeInvalidRequest, msg))
}
