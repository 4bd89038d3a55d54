package conversion

import (
	"context"
	"sync"

	"actionflow/internal/tools"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Resolver 为目标函数的每个声明参数决定直传、简单转换、元模型转换或占位
type Resolver struct {
	converter Converter
	logger    *zap.Logger
}

// NewResolver 创建解析器
func NewResolver(converter Converter, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{converter: converter, logger: logger}
}

// Session 单次调用内的解析上下文，同一参数的普通转换只执行一次
type Session struct {
	resolver   *Resolver
	descriptor *tools.ActionFunctionDescriptor
	params     ParameterMap

	mu   sync.Mutex
	memo map[string]*memoEntry
}

type memoEntry struct {
	once   sync.Once
	result ResolvedParameter
	typ    string
	err    error
}

// NewSession 为一次调用创建解析会话
func (r *Resolver) NewSession(descriptor *tools.ActionFunctionDescriptor, params ParameterMap) *Session {
	if params == nil {
		params = ParameterMap{}
	}
	return &Session{
		resolver:   r,
		descriptor: descriptor,
		params:     params,
		memo:       make(map[string]*memoEntry),
	}
}

// ResolveAll 并发解析所有声明参数并组装载荷，任一参数失败即返回错误
func (r *Resolver) ResolveAll(ctx context.Context, descriptor *tools.ActionFunctionDescriptor, params ParameterMap) (map[string]any, error) {
	session := r.NewSession(descriptor, params)
	declared := descriptor.Parameters()
	results := make([]ResolvedParameter, len(declared))

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range declared {
		i, p := i, p
		g.Go(func() error {
			resolved, err := session.Resolve(gctx, p)
			if err != nil {
				return err
			}
			results[i] = resolved
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	payload := make(map[string]any, len(results))
	for _, res := range results {
		payload[res.Name] = res.Data
	}
	return payload, nil
}

// Resolve 解析单个声明参数
func (s *Session) Resolve(ctx context.Context, p tools.Parameter) (ResolvedParameter, error) {
	if p.Name == LanguageParam {
		if v, ok := s.params[LanguageParam]; ok {
			return ResolvedParameter{Name: p.Name, Data: v.Value}, nil
		}
		return ResolvedParameter{Name: p.Name, Data: Placeholder}, nil
	}

	supplied, ok := s.params[p.Name]
	if !ok {
		return ResolvedParameter{Name: p.Name, Data: Placeholder}, nil
	}
	if supplied.Type == p.Type {
		return ResolvedParameter{Name: p.Name, Data: supplied.Value}, nil
	}

	instanceName, hasInstance := s.descriptor.InstanceOfParamName(p.Name)
	if hasInstance {
		if _, present := s.params[instanceName]; present {
			return s.resolveMetamodel(ctx, p, supplied, instanceName)
		}
		s.resolver.logger.Debug("instanceOf 参数未提供，按简单转换处理",
			zap.String("param", p.Name),
			zap.String("instance_of", instanceName),
		)
	}

	res, _, err := s.resolvePlain(ctx, p.Name)
	return res, err
}

func (s *Session) resolveMetamodel(ctx context.Context, p tools.Parameter, supplied ParameterValue, instanceName string) (ResolvedParameter, error) {
	instance, instanceType, err := s.resolvePlain(ctx, instanceName)
	if err != nil {
		return ResolvedParameter{}, err
	}
	return s.resolver.converter.ConvertMetamodel(ctx,
		supplied.Value, supplied.Type,
		instance.Data, instanceType,
		p.Type, p.Name,
	)
}

// resolvePlain 普通解析（直传或简单转换），按参数名记忆结果
// 返回值类型：发生转换时为声明类型，否则为调用方提供的类型
func (s *Session) resolvePlain(ctx context.Context, name string) (ResolvedParameter, string, error) {
	s.mu.Lock()
	entry, ok := s.memo[name]
	if !ok {
		entry = &memoEntry{}
		s.memo[name] = entry
	}
	s.mu.Unlock()

	entry.once.Do(func() {
		supplied := s.params[name]
		declaredType, err := s.descriptor.ParameterType(name)
		if err != nil {
			s.resolver.logger.Warn("instanceOf 指向未声明的参数，按原值传递",
				zap.String("function_id", s.descriptor.ID()),
				zap.String("param", name),
			)
			declaredType = supplied.Type
		}

		if supplied.Type == declaredType {
			entry.result = ResolvedParameter{Name: name, Data: supplied.Value}
			entry.typ = supplied.Type
			return
		}
		entry.result, entry.err = s.resolver.converter.Convert(ctx, supplied.Value, supplied.Type, declaredType, name)
		entry.typ = declaredType
	})
	return entry.result, entry.typ, entry.err
}
