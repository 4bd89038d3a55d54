package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"actionflow/internal/config"
	"actionflow/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestIDMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestIDMiddleware())

	var ctxTrace, ginTrace string
	router.GET("/ping", func(c *gin.Context) {
		ctxTrace = logger.GetTraceID(c.Request.Context())
		ginTrace = GetTraceIDFromGin(c)
		c.Status(http.StatusOK)
	})

	t.Run("生成请求 ID", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

		requestID := w.Header().Get(HeaderRequestID)
		require.NotEmpty(t, requestID)
		assert.Equal(t, requestID, w.Header().Get(HeaderTraceID))
		assert.Equal(t, requestID, ctxTrace)
		assert.Equal(t, requestID, ginTrace)
	})

	t.Run("沿用上游追踪 ID", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set(HeaderRequestID, "req-1")
		req.Header.Set(HeaderTraceID, "trace-1")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, "req-1", w.Header().Get(HeaderRequestID))
		assert.Equal(t, "trace-1", ctxTrace)
	})
}

func TestRateLimiterAllow(t *testing.T) {
	rl := NewRateLimiter(config.RateLimitConfig{RequestsPerSecond: 1, BurstSize: 2}, 0)
	defer rl.Stop()

	now := time.Unix(1000, 0)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"))

	now = now.Add(time.Second)
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
}

func TestRateLimiterMinuteCap(t *testing.T) {
	rl := NewRateLimiter(config.RateLimitConfig{RequestsPerSecond: 100, RequestsPerMinute: 2, BurstSize: 10}, 0)
	defer rl.Stop()

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
}

func TestRateLimitByEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := NewRateLimiter(config.RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1}, 0)
	defer rl.Stop()

	router := gin.New()
	router.POST("/invoke", RateLimitByEndpoint(rl), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/invoke", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/invoke", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}
