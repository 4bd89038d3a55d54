package api

import (
	"time"

	"actionflow/api/handlers/functions"
	notificationHandlers "actionflow/api/handlers/notifications"
	"actionflow/api/handlers/panels"
	middlewarepkg "actionflow/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handlers HTTP 处理器集合
type Handlers struct {
	Functions    *functions.FunctionHandler
	Panels       *panels.PanelHandler
	Notification *notificationHandlers.WebSocketHandler
}

// NewHandlers 基于容器创建处理器
func NewHandlers(c *AppContainer) *Handlers {
	waitTimeout := time.Duration(c.Config.Server.InvokeWaitTimeout) * time.Second
	return &Handlers{
		Functions:    functions.NewFunctionHandler(c.Catalog, c.Orchestrator, c.CallMetrics, waitTimeout),
		Panels:       panels.NewPanelHandler(c.Panels, c.Activity, c.QueueClient),
		Notification: notificationHandlers.NewWebSocketHandler(c.Hub),
	}
}

// RegisterRoutes 注册所有路由
func RegisterRoutes(router *gin.Engine, c *AppContainer, h *Handlers) {
	router.GET("/health", HealthCheck("ActionFlow"))
	router.GET("/ready", ReadinessCheck(c.readinessChecks()))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	apiGroup := router.Group("/api")
	registerAPIRoutes(apiGroup, c, h)
}

// registerAPIRoutes 注册业务 API 路由
func registerAPIRoutes(apiGroup *gin.RouterGroup, c *AppContainer, h *Handlers) {
	limit := middlewarepkg.RateLimitByEndpoint(c.RateLimiter)

	// WebSocket
	apiGroup.GET("/ws/notifications", h.Notification.Connect)
	apiGroup.GET("/ws/notifications/stats", h.Notification.Stats)

	// 动作函数
	fnGroup := apiGroup.Group("/functions")
	{
		fnGroup.GET("", h.Functions.ListFunctions)
		fnGroup.GET("/stats", h.Functions.CallStats)
		fnGroup.GET("/:id", h.Functions.GetFunction)
		fnGroup.POST("/:id/invoke", limit, h.Functions.InvokeFunction)
	}
	apiGroup.GET("/conversions", h.Functions.ListConversions)

	// 调用记录
	invGroup := apiGroup.Group("/invocations")
	{
		invGroup.GET("", h.Functions.ListInvocations)
		invGroup.GET("/:id", h.Functions.GetInvocation)
	}

	// 面板
	panelGroup := apiGroup.Group("/panels")
	{
		panelGroup.GET("", h.Panels.ListPanels)
		panelGroup.GET("/:id", h.Panels.GetPanel)
		panelGroup.PUT("/:id", h.Panels.UpdatePanel)
		panelGroup.POST("/:id/save", h.Panels.SavePanel)
		panelGroup.POST("/:id/buttons/:button/run", limit, h.Panels.RunButton)
	}
}
