package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"actionflow/pkg/httputil"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Catalog 启动时加载的工具目录：函数注册表、函数描述与面板定义
type Catalog struct {
	Registry    *FunctionRegistry
	Descriptors *DescriptorSet
	PanelDefs   map[string]PanelDef
	Tools       []*ToolConfig
}

// NewCatalog 创建空目录
func NewCatalog() *Catalog {
	return &Catalog{
		Registry:    NewFunctionRegistry(),
		Descriptors: NewDescriptorSet(),
		PanelDefs:   make(map[string]PanelDef),
	}
}

// Loader 工具配置加载器
type Loader struct {
	client         *httputil.Client
	logger         *zap.Logger
	maxConcurrency int
}

// NewLoader 创建加载器
func NewLoader(client *httputil.Client, logger *zap.Logger, maxConcurrency int) *Loader {
	if client == nil {
		client = httputil.NewClient()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxConcurrency <= 0 {
		maxConcurrency = 4
	}
	return &Loader{client: client, logger: logger, maxConcurrency: maxConcurrency}
}

// Load 并发拉取所有工具配置并按来源顺序注册
// 单个来源失败不会中断加载，所有配置错误合并后返回
func (l *Loader) Load(ctx context.Context, sources []string) (*Catalog, error) {
	configs := make([]*ToolConfig, len(sources))
	fetchErrs := make([]error, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.maxConcurrency)
	for i, source := range sources {
		i, source := i, source
		g.Go(func() error {
			cfg, err := l.fetch(gctx, source)
			if err != nil {
				fetchErrs[i] = &ConfigurationError{Source: source, Err: err}
				return nil
			}
			configs[i] = cfg
			return nil
		})
	}
	_ = g.Wait()

	catalog := NewCatalog()
	var errs []error
	for i, cfg := range configs {
		if fetchErrs[i] != nil {
			l.logger.Error("加载工具配置失败", zap.String("source", sources[i]), zap.Error(fetchErrs[i]))
			errs = append(errs, fetchErrs[i])
			continue
		}
		errs = append(errs, l.register(catalog, sources[i], cfg)...)
	}

	l.logger.Info("工具配置加载完成",
		zap.Int("tools", len(catalog.Tools)),
		zap.Int("functions", catalog.Descriptors.Count()),
		zap.Int("errors", len(errs)),
	)
	return catalog, errors.Join(errs...)
}

func (l *Loader) fetch(ctx context.Context, source string) (*ToolConfig, error) {
	var data []byte
	var err error
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		data, err = l.client.Get(ctx, source)
	} else {
		data, err = os.ReadFile(source)
	}
	if err != nil {
		return nil, err
	}

	var cfg ToolConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("解析工具配置失败: %w", err)
	}
	return &cfg, nil
}

// register 注册单个工具的函数与面板定义，无效函数跳过
func (l *Loader) register(catalog *Catalog, source string, cfg *ToolConfig) []error {
	var errs []error
	catalog.Tools = append(catalog.Tools, cfg)

	for _, fn := range cfg.Functions {
		desc, err := fn.ToDescriptor(ResolvePath(source, fn.Path))
		if err == nil {
			err = catalog.Descriptors.Add(desc)
		}
		if err != nil {
			cfgErr := &ConfigurationError{Source: source, Err: err}
			l.logger.Warn("跳过无效函数声明", zap.String("function", fn.ID), zap.Error(err))
			errs = append(errs, cfgErr)
			continue
		}
		catalog.Registry.RegisterFunction(fn.InputTypes(), desc.ReturnType().Type, desc.ID())
	}

	for _, def := range cfg.PanelDefs {
		if def.ID == "" {
			errs = append(errs, &ConfigurationError{Source: source, Err: errors.New("面板定义缺少 id")})
			continue
		}
		catalog.PanelDefs[def.ID] = def
	}
	return errs
}
