package conversion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"actionflow/internal/metrics"
	"actionflow/internal/tools"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Converter 执行参数类型转换
type Converter interface {
	// Convert 简单转换 (value, fromType, toType, paramName)
	Convert(ctx context.Context, value any, fromType, toType, paramName string) (ResolvedParameter, error)
	// ConvertMetamodel 借助 instanceOf 辅助值的元模型转换
	ConvertMetamodel(ctx context.Context, value any, fromType string, instanceValue any, instanceType, toType, paramName string) (ResolvedParameter, error)
}

// RemoteConverter 通过注册表查找转换函数并远程调用
type RemoteConverter struct {
	registry    tools.FunctionLookup
	descriptors tools.DescriptorProvider
	caller      tools.RemoteCaller
	logger      *zap.Logger
	tracer      trace.Tracer
}

// ConverterOption 配置 RemoteConverter
type ConverterOption func(*RemoteConverter)

// WithTracer 使用指定的 tracer 记录转换调用
func WithTracer(t trace.Tracer) ConverterOption {
	return func(c *RemoteConverter) {
		if t != nil {
			c.tracer = t
		}
	}
}

// NewRemoteConverter 创建远程转换器
func NewRemoteConverter(registry tools.FunctionLookup, descriptors tools.DescriptorProvider, caller tools.RemoteCaller, logger *zap.Logger, opts ...ConverterOption) *RemoteConverter {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &RemoteConverter{
		registry:    registry,
		descriptors: descriptors,
		caller:      caller,
		logger:      logger,
		tracer:      otel.Tracer("actionflow/internal/conversion"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Convert 查找 [fromType] -> toType 的转换函数并调用
func (c *RemoteConverter) Convert(ctx context.Context, value any, fromType, toType, paramName string) (ResolvedParameter, error) {
	req := Request{Value: value, FromType: fromType, ToType: toType, ParamName: paramName}
	functionID, ok := c.registry.LookupFunction([]string{fromType}, toType)
	if !ok {
		metrics.RecordConversion(fromType, toType, KindSimple, false)
		return ResolvedParameter{}, &tools.ResolutionError{
			Param: paramName, FromType: fromType, ToType: toType,
			Err: errors.New("未找到转换函数"),
		}
	}
	return c.call(ctx, functionID, KindSimple, req)
}

// ConvertMetamodel 优先查找 [fromType, instanceType] -> toType，找不到时退回单输入转换函数
func (c *RemoteConverter) ConvertMetamodel(ctx context.Context, value any, fromType string, instanceValue any, instanceType, toType, paramName string) (ResolvedParameter, error) {
	req := Request{
		Value: value, FromType: fromType, ToType: toType, ParamName: paramName,
		InstanceValue: instanceValue, InstanceType: instanceType,
	}
	functionID, ok := c.registry.LookupFunction([]string{fromType, instanceType}, toType)
	if !ok {
		functionID, ok = c.registry.LookupFunction([]string{fromType}, toType)
	}
	if !ok {
		metrics.RecordConversion(fromType, toType, KindMetamodel, false)
		return ResolvedParameter{}, &tools.ResolutionError{
			Param: paramName, FromType: fromType, ToType: toType,
			Err: fmt.Errorf("未找到转换函数 (instanceOf %s)", instanceType),
		}
	}
	return c.call(ctx, functionID, KindMetamodel, req)
}

func (c *RemoteConverter) call(ctx context.Context, functionID, kind string, req Request) (ResolvedParameter, error) {
	ctx, span := c.tracer.Start(ctx, "RemoteConverter.Convert")
	defer span.End()
	span.SetAttributes(
		attribute.String("function_id", functionID),
		attribute.String("param", req.ParamName),
		attribute.String("from_type", req.FromType),
		attribute.String("to_type", req.ToType),
		attribute.String("kind", kind),
	)

	fail := func(err error) (ResolvedParameter, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.RecordConversion(req.FromType, req.ToType, kind, false)
		return ResolvedParameter{}, &tools.ResolutionError{
			Param: req.ParamName, FromType: req.FromType, ToType: req.ToType, Err: err,
		}
	}

	desc, ok := c.descriptors.Get(functionID)
	if !ok {
		return fail(fmt.Errorf("转换函数 %s: %w", functionID, tools.ErrNotFound))
	}

	start := time.Now()
	out, err := c.caller.Call(ctx, desc.Path(), conversionPayload(desc, req, kind))
	if err != nil {
		c.logger.Warn("类型转换调用失败",
			zap.String("function_id", functionID),
			zap.String("param", req.ParamName),
			zap.Error(err),
		)
		return fail(err)
	}

	metrics.RecordConversion(req.FromType, req.ToType, kind, true)
	c.logger.Debug("类型转换完成",
		zap.String("function_id", functionID),
		zap.String("param", req.ParamName),
		zap.String("from_type", req.FromType),
		zap.String("to_type", req.ToType),
		zap.Duration("duration", time.Since(start)),
	)
	return ResolvedParameter{Name: req.ParamName, Data: extractOutput(out)}, nil
}

// conversionPayload 按转换函数声明的参数名构造请求体
func conversionPayload(desc *tools.ActionFunctionDescriptor, req Request, kind string) map[string]any {
	valueKey, instanceKey := "value", "instance"
	params := desc.Parameters()
	if len(params) > 0 {
		valueKey = params[0].Name
	}
	if len(params) > 1 {
		instanceKey = params[1].Name
	}

	payload := map[string]any{valueKey: req.Value}
	if kind == KindMetamodel {
		payload[instanceKey] = req.InstanceValue
	}
	return payload
}

func extractOutput(out map[string]any) any {
	if v, ok := out["output"]; ok {
		return v
	}
	return out
}

var _ Converter = (*RemoteConverter)(nil)
