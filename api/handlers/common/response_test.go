package common

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"actionflow/internal/middleware"
	"actionflow/internal/panel"
	"actionflow/internal/tools"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusFromError(t *testing.T) {
	remote := &tools.RemoteInvocationError{Path: "/f", StatusCode: 500, Message: "boom"}

	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"不存在", fmt.Errorf("函数 f: %w", tools.ErrNotFound), http.StatusNotFound, CodeNotFound},
		{"转换失败", &tools.ResolutionError{Param: "p", FromType: "a", ToType: "b"}, http.StatusUnprocessableEntity, CodeResolution},
		{"转换中的远程失败按转换处理", &tools.ResolutionError{Param: "p", Err: remote}, http.StatusUnprocessableEntity, CodeResolution},
		{"远程失败", remote, http.StatusBadGateway, CodeRemote},
		{"不可编辑", fmt.Errorf("面板 c: %w", panel.ErrNotEditable), http.StatusConflict, CodeNotEditable},
		{"不可保存", fmt.Errorf("面板 c: %w", panel.ErrNotSaveable), http.StatusConflict, CodeNotEditable},
		{"配置错误", &tools.ConfigurationError{Source: "x", Err: errors.New("bad")}, http.StatusInternalServerError, CodeConfiguration},
		{"其他", errors.New("oops"), http.StatusInternalServerError, CodeInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, code := StatusFromError(tc.err)
			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.code, code)
		})
	}
}

func TestRespondError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	RespondError(c, fmt.Errorf("面板 p: %w", tools.ErrNotFound))

	require.Equal(t, http.StatusNotFound, w.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, CodeNotFound, resp.Code)
	assert.Contains(t, resp.Message, "面板 p")
}

func TestErrorResponsesCarryRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(middleware.RequestIDMiddleware())
	router.GET("/missing", func(c *gin.Context) { RespondNotFound(c, "不存在") })
	router.GET("/queue", func(c *gin.Context) { RespondUnavailable(c, "任务队列未启用") })
	router.GET("/failed", func(c *gin.Context) {
		RespondStageFailure(c, http.StatusBadGateway, CodeRemote, "execution", errors.New("boom"), gin.H{"id": "inv-1"})
	})

	serve := func(path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set(middleware.HeaderRequestID, "req-42")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	w := serve("/missing")
	require.Equal(t, http.StatusNotFound, w.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, CodeNotFound, resp.Code)
	assert.Equal(t, "req-42", resp.RequestID)

	w = serve("/queue")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = serve("/failed")
	require.Equal(t, http.StatusBadGateway, w.Code)
	var failed APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &failed))
	assert.False(t, failed.Success)
	assert.Equal(t, CodeRemote, failed.Error)
	assert.Equal(t, "execution", failed.Stage)
	assert.Equal(t, "boom", failed.Message)
	assert.Equal(t, "req-42", failed.RequestID)
}
