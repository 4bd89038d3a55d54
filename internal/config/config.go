package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用配置
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Log      LogConfig      `mapstructure:"log"`
	Tools    ToolsConfig    `mapstructure:"tools"`
	Activity ActivityConfig `mapstructure:"activity"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port         int    `mapstructure:"port"`
	Mode         string `mapstructure:"mode"` // debug, release, test
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`

	// 调用类接口限流，RequestsPerSecond 为 0 时关闭
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	// InvokeWaitTimeout ?wait=true 时的最长等待秒数
	InvokeWaitTimeout int `mapstructure:"invoke_wait_timeout"`
}

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	RequestsPerSecond int `mapstructure:"requests_per_second"`
	RequestsPerMinute int `mapstructure:"requests_per_minute"`
	BurstSize         int `mapstructure:"burst_size"`
}

// DatabaseConfig 数据库配置（调用记录持久化）
type DatabaseConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Driver  string `mapstructure:"driver"` // sqlite, postgres

	// sqlite
	Path string `mapstructure:"path"`

	// postgres
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`

	MaxOpenConns    int  `mapstructure:"max_open_conns"`
	MaxIdleConns    int  `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int  `mapstructure:"conn_max_lifetime"` // 秒
	AutoMigrate     bool `mapstructure:"auto_migrate"`
	LogSQL          bool `mapstructure:"log_sql"`
}

// RedisConfig Redis 配置（共享面板存储）
type RedisConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// 部署模式: standalone(默认), sentinel, cluster
	Mode string `mapstructure:"mode"`

	// 单节点模式配置
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`

	// 哨兵模式配置
	MasterName       string   `mapstructure:"master_name"`
	SentinelAddrs    []string `mapstructure:"sentinel_addrs"`
	SentinelPassword string   `mapstructure:"sentinel_password"`

	// 集群模式配置
	ClusterAddrs []string `mapstructure:"cluster_addrs"`

	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
	KeyPrefix    string `mapstructure:"key_prefix"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, /path/to/log
}

// ToolsConfig 工具配置来源与远程调用参数
type ToolsConfig struct {
	Sources        []string      `mapstructure:"sources"` // 工具配置 URL 或文件路径
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	MaxConcurrency int           `mapstructure:"max_concurrency"`
}

// ActivityConfig 活动配置
type ActivityConfig struct {
	Path string `mapstructure:"path"` // YAML 或 JSON
}

// QueueConfig 异步动作队列配置
type QueueConfig struct {
	Enabled     bool `mapstructure:"enabled"`
	Concurrency int  `mapstructure:"concurrency"`
}

// TracingConfig 链路追踪配置
type TracingConfig struct {
	ServiceName string `mapstructure:"service_name"`
}

var globalConfig *Config

// Load 加载配置
// env: dev, test, prod
// configPath: 配置文件路径（可选，默认 ./config/{env}.yaml）
func Load(env string, configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath == "" {
		v.SetConfigName(env)
		v.AddConfigPath("./config")
		v.AddConfigPath("../config")
		v.AddConfigPath("../../config")
	} else {
		v.SetConfigFile(configPath)
	}
	v.SetConfigType("yaml")

	v.SetEnvPrefix("APP") // APP_SERVER_PORT
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	globalConfig = &cfg
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.read_timeout", 30)
	v.SetDefault("server.write_timeout", 60)
	v.SetDefault("server.rate_limit.requests_per_second", 10)
	v.SetDefault("server.rate_limit.requests_per_minute", 300)
	v.SetDefault("server.rate_limit.burst_size", 20)
	v.SetDefault("server.invoke_wait_timeout", 60)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output_path", "stdout")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "actionflow.db")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 3600)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("redis.mode", "standalone")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.key_prefix", "actionflow:")

	v.SetDefault("tools.request_timeout", 30*time.Second)
	v.SetDefault("tools.max_retries", 0)
	v.SetDefault("tools.max_concurrency", 4)

	v.SetDefault("queue.concurrency", 5)
	v.SetDefault("tracing.service_name", "actionflow")
}

// Validate 校验配置
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("不支持的数据库驱动: %s (可选: sqlite, postgres)", c.Database.Driver)
	}
	if c.Queue.Enabled && !c.Redis.Enabled {
		return fmt.Errorf("启用异步队列需要同时启用 Redis")
	}
	return nil
}

// Get 获取全局配置
func Get() *Config {
	if globalConfig == nil {
		panic("配置未初始化，请先调用 Load()")
	}
	return globalConfig
}

// GetDSN 获取 PostgreSQL 连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// Addr Redis 单节点地址
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
