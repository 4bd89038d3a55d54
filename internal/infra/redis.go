package infra

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"actionflow/internal/config"
	"actionflow/internal/logger"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Redis 部署模式
const (
	RedisStandalone = "standalone"
	RedisSentinel   = "sentinel"
	RedisCluster    = "cluster"
)

// ErrRedisDisabled 配置中未启用 Redis
var ErrRedisDisabled = errors.New("Redis 未启用")

// RedisMode 规范化部署模式，空值视为单节点
func RedisMode(cfg *config.RedisConfig) string {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		return RedisStandalone
	}
	return mode
}

// RedisOptions 将配置转换为 go-redis 通用选项，并校验各模式的必填项
func RedisOptions(cfg *config.RedisConfig) (*redis.UniversalOptions, error) {
	opts := &redis.UniversalOptions{
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	}

	switch RedisMode(cfg) {
	case RedisStandalone:
		opts.Addrs = []string{cfg.Addr()}
	case RedisSentinel:
		if cfg.MasterName == "" || len(cfg.SentinelAddrs) == 0 {
			return nil, fmt.Errorf("哨兵模式需要配置 master_name 和 sentinel_addrs")
		}
		opts.MasterName = cfg.MasterName
		opts.Addrs = cfg.SentinelAddrs
		opts.SentinelPassword = cfg.SentinelPassword
	case RedisCluster:
		if len(cfg.ClusterAddrs) == 0 {
			return nil, fmt.Errorf("集群模式需要配置 cluster_addrs")
		}
		// 集群不支持选库
		opts.Addrs = cfg.ClusterAddrs
		opts.DB = 0
	default:
		return nil, fmt.Errorf("不支持的 Redis 模式: %s (可选: standalone, sentinel, cluster)", cfg.Mode)
	}
	return opts, nil
}

// InitRedis 按部署模式创建 Redis 客户端并验证连通性（面板共享存储）
func InitRedis(ctx context.Context, cfg *config.RedisConfig) (redis.UniversalClient, error) {
	if !cfg.Enabled {
		return nil, ErrRedisDisabled
	}
	opts, err := RedisOptions(cfg)
	if err != nil {
		return nil, err
	}

	var rdb redis.UniversalClient
	mode := RedisMode(cfg)
	switch mode {
	case RedisSentinel:
		rdb = redis.NewFailoverClient(opts.Failover())
	case RedisCluster:
		rdb = redis.NewClusterClient(opts.Cluster())
	default:
		rdb = redis.NewClient(opts.Simple())
	}

	if err := PingRedis(ctx, rdb); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("Redis 连接失败: %w", err)
	}

	logger.Info("Redis 连接成功", zap.String("mode", mode), zap.Strings("addrs", opts.Addrs))
	return rdb, nil
}

// AsynqRedisOpt 任务队列使用与面板存储相同的 Redis 部署
func AsynqRedisOpt(cfg *config.RedisConfig) (asynq.RedisConnOpt, error) {
	opts, err := RedisOptions(cfg)
	if err != nil {
		return nil, err
	}
	switch RedisMode(cfg) {
	case RedisSentinel:
		return asynq.RedisFailoverClientOpt{
			MasterName:       opts.MasterName,
			SentinelAddrs:    opts.Addrs,
			SentinelPassword: opts.SentinelPassword,
			Password:         opts.Password,
			DB:               opts.DB,
			PoolSize:         opts.PoolSize,
		}, nil
	case RedisCluster:
		return asynq.RedisClusterClientOpt{
			Addrs:    opts.Addrs,
			Password: opts.Password,
		}, nil
	default:
		return asynq.RedisClientOpt{
			Addr:     opts.Addrs[0],
			Password: opts.Password,
			DB:       opts.DB,
			PoolSize: opts.PoolSize,
		}, nil
	}
}

// PingRedis 连通性检查，rdb 为 nil 时视为未启用
func PingRedis(ctx context.Context, rdb redis.UniversalClient) error {
	if rdb == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return rdb.Ping(ctx).Err()
}
