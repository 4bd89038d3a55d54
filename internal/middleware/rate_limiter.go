package middleware

import (
	"net/http"
	"sync"
	"time"

	"actionflow/internal/config"

	"github.com/gin-gonic/gin"
)

// clientState 客户端令牌桶状态
type clientState struct {
	tokens      float64
	lastUpdate  time.Time
	requests    int64 // 分钟内请求数
	minuteStart time.Time
}

// RateLimiter 令牌桶限流器，附带分钟级上限
type RateLimiter struct {
	cfg     config.RateLimitConfig
	clients map[string]*clientState
	mu      sync.Mutex
	stopCh  chan struct{}
	once    sync.Once
	now     func() time.Time
}

// NewRateLimiter 创建限流器，并启动过期状态清理
func NewRateLimiter(cfg config.RateLimitConfig, cleanupInterval time.Duration) *RateLimiter {
	if cfg.BurstSize <= 0 {
		cfg.BurstSize = cfg.RequestsPerSecond
	}
	rl := &RateLimiter{
		cfg:     cfg,
		clients: make(map[string]*clientState),
		stopCh:  make(chan struct{}),
		now:     time.Now,
	}
	if cleanupInterval > 0 {
		go rl.cleanup(cleanupInterval)
	}
	return rl
}

// Allow 检查是否允许请求
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	state, exists := rl.clients[key]
	if !exists {
		rl.clients[key] = &clientState{
			tokens:      float64(rl.cfg.BurstSize - 1),
			lastUpdate:  now,
			requests:    1,
			minuteStart: now,
		}
		return true
	}

	elapsed := now.Sub(state.lastUpdate).Seconds()
	state.tokens += elapsed * float64(rl.cfg.RequestsPerSecond)
	if state.tokens > float64(rl.cfg.BurstSize) {
		state.tokens = float64(rl.cfg.BurstSize)
	}
	state.lastUpdate = now

	if now.Sub(state.minuteStart) > time.Minute {
		state.requests = 0
		state.minuteStart = now
	}
	if rl.cfg.RequestsPerMinute > 0 && state.requests >= int64(rl.cfg.RequestsPerMinute) {
		return false
	}
	if state.tokens < 1 {
		return false
	}

	state.tokens--
	state.requests++
	return true
}

func (rl *RateLimiter) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.mu.Lock()
			now := rl.now()
			for key, state := range rl.clients {
				if now.Sub(state.lastUpdate) > 10*time.Minute {
					delete(rl.clients, key)
				}
			}
			rl.mu.Unlock()
		case <-rl.stopCh:
			return
		}
	}
}

// Stop 停止清理协程
func (rl *RateLimiter) Stop() {
	rl.once.Do(func() { close(rl.stopCh) })
}

// RateLimitByEndpoint 按端点与客户端 IP 限流，用于会触发远程调用的接口
func RateLimitByEndpoint(limiter *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}
		key := "endpoint:" + c.FullPath() + ":" + c.ClientIP()
		if !limiter.Allow(key) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success":     false,
				"code":        "RATE_LIMIT_EXCEEDED",
				"message":     "该接口请求过于频繁",
				"retry_after": 1,
			})
			return
		}
		c.Next()
	}
}
