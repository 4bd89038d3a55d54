package api

import (
	"context"
	"fmt"
	"time"

	"actionflow/internal/activity"
	"actionflow/internal/config"
	"actionflow/internal/conversion"
	"actionflow/internal/infra"
	"actionflow/internal/infra/queue"
	"actionflow/internal/invocation"
	"actionflow/internal/logger"
	"actionflow/internal/metrics"
	middlewarepkg "actionflow/internal/middleware"
	"actionflow/internal/notification"
	"actionflow/internal/panel"
	"actionflow/internal/tools"
	"actionflow/internal/worker"
	"actionflow/pkg/httputil"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AppContainer 应用依赖容器
type AppContainer struct {
	Config      *config.Config
	DB          *gorm.DB
	RedisClient redis.UniversalClient
	QueueClient queue.Client
	Worker      *worker.Server

	Catalog         *tools.Catalog
	CallMetrics     *tools.CallMetrics
	Activity        *activity.Activity
	Panels          *panel.Manager
	Hub             *notification.WebSocketHub
	Notifier        notification.Notifier
	Orchestrator    *invocation.Orchestrator
	InvocationStore invocation.Store
	RateLimiter     *middlewarepkg.RateLimiter
}

// NewAppContainer 加载活动与工具配置，组装面板、转换与调用编排
// db 与 redisClient 可为 nil，此时使用内存实现
func NewAppContainer(ctx context.Context, cfg *config.Config, db *gorm.DB, redisClient redis.UniversalClient) (*AppContainer, error) {
	log := logger.Get()
	cfg.Redis = normalizeRedisConfig(cfg.Redis)

	actCfg := &activity.Config{}
	if cfg.Activity.Path != "" {
		loaded, err := activity.LoadFile(cfg.Activity.Path)
		if err != nil {
			// 活动配置错误不阻止启动，以空活动或剩余有效项继续
			log.Warn("活动配置加载失败", zap.String("path", cfg.Activity.Path), zap.Error(err))
		}
		if loaded != nil {
			actCfg = loaded
		}
	}

	client := httputil.NewClient(
		httputil.WithTimeout(cfg.Tools.RequestTimeout),
		httputil.WithRetries(cfg.Tools.MaxRetries),
	)

	loader := tools.NewLoader(client, log.Named("tools"), cfg.Tools.MaxConcurrency)
	catalog, err := loader.Load(ctx, toolSources(cfg.Tools.Sources, actCfg.Tools))
	if err != nil {
		// 单个工具配置失败不阻止启动，相关函数不可用
		log.Warn("部分工具配置加载失败", zap.Error(err))
	}

	act, err := activity.Build(actCfg, catalog, log.Named("activity"))
	if err != nil {
		log.Warn("活动配置存在无效项", zap.String("activity", actCfg.ID), zap.Error(err))
	}

	var panelStore panel.Store = panel.NewMemoryStore()
	if redisClient != nil {
		panelStore = panel.NewRedisStore(redisClient, cfg.Redis.KeyPrefix+"panel:", 0)
	}
	panels := panel.NewManager(panelStore, log.Named("panel"))
	for _, p := range act.Panels() {
		if err := panels.Add(ctx, p); err != nil {
			log.Warn("注册面板失败", zap.String("panel_id", p.ID()), zap.Error(err))
		}
	}

	var store invocation.Store = invocation.NewMemoryStore()
	if db != nil {
		gormStore := invocation.NewGormStore(db)
		if cfg.Database.AutoMigrate {
			if err := gormStore.AutoMigrate(); err != nil {
				return nil, fmt.Errorf("迁移调用记录表失败: %w", err)
			}
		}
		store = gormStore
	}

	hub := notification.NewWebSocketHub(notification.WithHubLogger(log.Named("ws")))
	notifier := notification.NewMultiNotifier(
		notification.NewLogNotifier(log.Named("notification")),
		notification.NewWebSocketNotifier(hub),
	)

	callMetrics := tools.NewCallMetrics(metrics.RemoteCallRecorder{})
	caller := tools.NewHTTPCaller(client,
		tools.WithBaseURL(cfg.Tools.BaseURL),
		tools.WithCallMetrics(callMetrics),
	)
	serviceName := cfg.Tracing.ServiceName
	if serviceName == "" {
		serviceName = "actionflow"
	}
	converter := conversion.NewRemoteConverter(catalog.Registry, catalog.Descriptors, caller, log.Named("conversion"),
		conversion.WithTracer(otel.Tracer(serviceName+"/conversion")),
	)
	resolver := conversion.NewResolver(converter, log.Named("conversion"))

	orchestrator := invocation.NewOrchestrator(catalog.Descriptors, resolver, caller,
		invocation.WithActivity(act, panels),
		invocation.WithNotifier(notifier),
		invocation.WithResponseHandler(invocation.NewPanelResponseHandler(panels, notifier)),
		invocation.WithStore(store),
		invocation.WithLogger(log.Named("invocation")),
		invocation.WithTracer(otel.Tracer(serviceName+"/invocation")),
	)

	act.Bind(func(ctx context.Context, panelID, buttonID string) (string, error) {
		pending, err := orchestrator.RunAction(ctx, panelID, buttonID)
		if err != nil {
			return "", err
		}
		return pending.ID(), nil
	})

	container := &AppContainer{
		Config:          cfg,
		DB:              db,
		RedisClient:     redisClient,
		Catalog:         catalog,
		CallMetrics:     callMetrics,
		Activity:        act,
		Panels:          panels,
		Hub:             hub,
		Notifier:        notifier,
		Orchestrator:    orchestrator,
		InvocationStore: store,
	}

	if rl := cfg.Server.RateLimit; rl.RequestsPerSecond > 0 {
		container.RateLimiter = middlewarepkg.NewRateLimiter(rl, 5*time.Minute)
	}

	if cfg.Queue.Enabled {
		redisOpt, err := infra.AsynqRedisOpt(&cfg.Redis)
		if err != nil {
			log.Warn("任务队列 Redis 配置无效，异步执行不可用", zap.Error(err))
		} else {
			container.QueueClient = queue.NewClient(redisOpt)
			container.Worker = worker.NewServer(redisOpt, cfg.Queue, container.runAndWait, log.Named("worker"))
		}
	}

	log.Info("应用组件初始化完成",
		zap.String("activity", act.ID()),
		zap.Int("panels", len(act.Panels())),
		zap.Int("functions", catalog.Descriptors.Count()),
		zap.Int("conversions", catalog.Registry.Count()),
		zap.Bool("queue", cfg.Queue.Enabled),
	)
	return container, nil
}

// runAndWait 异步任务中执行按钮动作并等待结束
func (c *AppContainer) runAndWait(ctx context.Context, panelID, buttonID string) error {
	pending, err := c.Orchestrator.RunAction(ctx, panelID, buttonID)
	if err != nil {
		return err
	}
	_, err = pending.Wait(ctx)
	return err
}

// Close 释放容器持有的资源
func (c *AppContainer) Close() {
	if c.RateLimiter != nil {
		c.RateLimiter.Stop()
	}
	if c.QueueClient != nil {
		if err := c.QueueClient.Close(); err != nil {
			logger.Warn("关闭队列客户端失败", zap.Error(err))
		}
	}
	c.Hub.Close()
}

// readinessChecks 就绪检查项
func (c *AppContainer) readinessChecks() map[string]func() error {
	checks := map[string]func() error{}
	if c.DB != nil {
		checks["database"] = func() error { return infra.HealthCheck(c.DB) }
	}
	if c.RedisClient != nil {
		checks["redis"] = func() error { return infra.PingRedis(context.Background(), c.RedisClient) }
	}
	return checks
}

// SetupRouter 设置并返回 Gin 路由
func SetupRouter(container *AppContainer) *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middlewarepkg.RequestIDMiddleware())
	router.Use(RequestLogger())
	router.Use(CORS())
	router.Use(metrics.PrometheusMiddleware())

	RegisterRoutes(router, container, NewHandlers(container))
	return router
}

// toolSources 合并全局与活动声明的工具来源，去重并保持顺序
func toolSources(lists ...[]string) []string {
	seen := make(map[string]struct{})
	var sources []string
	for _, list := range lists {
		for _, s := range list {
			if _, ok := seen[s]; ok || s == "" {
				continue
			}
			seen[s] = struct{}{}
			sources = append(sources, s)
		}
	}
	return sources
}
