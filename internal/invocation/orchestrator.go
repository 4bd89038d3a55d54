package invocation

import (
	"context"
	"fmt"

	"actionflow/internal/activity"
	"actionflow/internal/conversion"
	"actionflow/internal/logger"
	"actionflow/internal/metrics"
	"actionflow/internal/notification"
	"actionflow/internal/panel"
	"actionflow/internal/tools"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ActionSource 按按钮查找动作配置
type ActionSource interface {
	Action(panelID, buttonID string) (*activity.Action, error)
}

// PanelSource 查找面板
type PanelSource interface {
	Get(ctx context.Context, id string) (*panel.Panel, error)
}

// ResponseHandler 处理动作成功返回的结果
type ResponseHandler interface {
	HandleResponse(ctx context.Context, action *activity.Action, p *Pending) error
}

type actionOrigin struct {
	panelID  string
	buttonID string
}

// Orchestrator 解析参数并调用远程动作函数
type Orchestrator struct {
	descriptors tools.DescriptorProvider
	resolver    *conversion.Resolver
	caller      tools.RemoteCaller

	actions  ActionSource
	panels   PanelSource
	notifier notification.Notifier
	handler  ResponseHandler
	store    Store
	logger   *zap.Logger
	tracer   trace.Tracer
}

// Option 配置 Orchestrator
type Option func(*Orchestrator)

// WithActivity 设置动作与面板来源
func WithActivity(actions ActionSource, panels PanelSource) Option {
	return func(o *Orchestrator) {
		o.actions = actions
		o.panels = panels
	}
}

// WithNotifier 设置通知器
func WithNotifier(n notification.Notifier) Option {
	return func(o *Orchestrator) { o.notifier = n }
}

// WithResponseHandler 设置结果处理器
func WithResponseHandler(h ResponseHandler) Option {
	return func(o *Orchestrator) { o.handler = h }
}

// WithStore 设置调用记录存储
func WithStore(s Store) Option {
	return func(o *Orchestrator) { o.store = s }
}

// WithLogger 设置日志器
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithTracer 设置链路追踪 tracer
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) {
		if t != nil {
			o.tracer = t
		}
	}
}

// NewOrchestrator 创建调用编排器
func NewOrchestrator(descriptors tools.DescriptorProvider, resolver *conversion.Resolver, caller tools.RemoteCaller, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		descriptors: descriptors,
		resolver:    resolver,
		caller:      caller,
		store:       NewMemoryStore(),
		logger:      zap.NewNop(),
		tracer:      otel.Tracer("actionflow/internal/invocation"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	if o.notifier == nil {
		o.notifier = notification.NewLogNotifier(o.logger)
	}
	return o
}

// Store 返回调用记录存储
func (o *Orchestrator) Store() Store { return o.store }

// InvokeActionFunction 解析参数并远程调用动作函数，立即返回未决结果
func (o *Orchestrator) InvokeActionFunction(ctx context.Context, functionID string, params conversion.ParameterMap) (*Pending, error) {
	return o.invoke(ctx, functionID, params, actionOrigin{}, nil)
}

// RunAction 执行按钮绑定的动作：收集面板内容、调用函数并处理结果
func (o *Orchestrator) RunAction(ctx context.Context, panelID, buttonID string) (*Pending, error) {
	log := logger.FromContext(ctx, o.logger)
	if o.actions == nil || o.panels == nil {
		return nil, fmt.Errorf("未加载活动配置: %w", tools.ErrNotFound)
	}

	action, err := o.actions.Action(panelID, buttonID)
	if err != nil {
		log.Warn("未找到按钮对应的动作", zap.String("panel_id", panelID), zap.String("button_id", buttonID), zap.Error(err))
		o.notify(ctx, o.errorNotification("动作不存在", err, StageNone, "", panelID))
		return nil, err
	}

	params := conversion.ParameterMap{}
	for name, id := range action.Parameters {
		p, err := o.panels.Get(ctx, id)
		if err != nil {
			log.Warn("参数绑定的面板不存在", zap.String("param", name), zap.String("panel_id", id), zap.Error(err))
			continue
		}
		params[name] = conversion.ParameterValue{Type: p.Type(), Value: p.Value()}
	}
	if source, err := o.panels.Get(ctx, action.PanelID); err == nil {
		params[conversion.LanguageParam] = conversion.ParameterValue{Type: conversion.LanguageType, Value: source.Language()}
	} else {
		log.Warn("源面板不存在", zap.String("panel_id", action.PanelID), zap.Error(err))
	}

	running := notification.New(notification.LevelRunning, "正在执行", fmt.Sprintf("正在执行 %s", action.FunctionID))
	running.FunctionID = action.FunctionID
	running.PanelID = action.PanelID
	o.notify(ctx, running)

	pending, err := o.invoke(ctx, action.FunctionID, params, actionOrigin{panelID: panelID, buttonID: buttonID}, func(p *Pending) {
		o.settleAction(context.WithoutCancel(ctx), action, p)
	})
	if err != nil {
		o.notify(ctx, o.errorNotification("动作执行失败", err, StageNone, action.FunctionID, action.PanelID))
		return nil, err
	}
	return pending, nil
}

func (o *Orchestrator) invoke(ctx context.Context, functionID string, params conversion.ParameterMap, origin actionOrigin, onSettled func(*Pending)) (*Pending, error) {
	desc, ok := o.descriptors.Get(functionID)
	if !ok {
		err := fmt.Errorf("动作函数 %s: %w", functionID, tools.ErrNotFound)
		o.logger.Warn("动作函数不存在", zap.String("function_id", functionID))
		return nil, err
	}

	pending := newPending(uuid.NewString(), functionID, func(p *Pending) {
		_, err := p.Result()
		metrics.RecordInvocation(functionID, p.Stage().label(), err == nil, p.Duration())
		o.persist(context.WithoutCancel(ctx), p, desc.Path(), origin)
		if onSettled != nil {
			onSettled(p)
		}
	})
	o.persist(ctx, pending, desc.Path(), origin)

	runCtx := logger.WithInvocationID(context.WithoutCancel(ctx), pending.ID())
	go o.run(runCtx, desc, params, pending, origin)
	return pending, nil
}

func (o *Orchestrator) run(ctx context.Context, desc *tools.ActionFunctionDescriptor, params conversion.ParameterMap, p *Pending, origin actionOrigin) {
	log := logger.FromContext(ctx, o.logger).With(zap.String("function_id", desc.ID()))

	ctx, span := o.tracer.Start(ctx, "Orchestrator.InvokeActionFunction")
	defer span.End()
	span.SetAttributes(
		attribute.String("invocation_id", p.ID()),
		attribute.String("function_id", desc.ID()),
		attribute.Int("parameters", len(desc.Parameters())),
	)

	metrics.InvocationsRunning.Inc()
	defer metrics.InvocationsRunning.Dec()

	fail := func(err error, stage Stage) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Warn("动作函数调用失败", zap.String("stage", string(stage)), zap.Error(err))
		p.settle(nil, err, stage)
	}

	step := func(to State) bool {
		if err := p.transition(to); err != nil {
			fail(err, StageNone)
			return false
		}
		log.Debug("调用状态迁移", zap.String("state", string(to)))
		o.persist(ctx, p, desc.Path(), origin)
		return true
	}

	if !step(StateResolving) {
		return
	}
	payload, err := o.resolver.ResolveAll(ctx, desc, params)
	if err != nil {
		fail(err, StageResolution)
		return
	}
	p.setPayload(payload)

	if !step(StateParametersReady) || !step(StateInvoking) {
		return
	}
	result, err := o.caller.Call(ctx, desc.Path(), payload)
	if err != nil {
		fail(err, StageExecution)
		return
	}

	p.settle(result, nil, StageNone)
	log.Info("动作函数调用完成", zap.Duration("duration", p.Duration()))
}

// settleAction 将终止结果路由到结果处理器或错误通知
func (o *Orchestrator) settleAction(ctx context.Context, action *activity.Action, p *Pending) {
	_, err := p.Result()
	if err == nil {
		if o.handler == nil {
			return
		}
		if herr := o.handler.HandleResponse(ctx, action, p); herr != nil {
			o.logger.Error("处理动作结果失败", zap.String("invocation_id", p.ID()), zap.Error(herr))
			o.notify(ctx, o.errorNotification("处理结果失败", herr, StageNone, action.FunctionID, action.PanelID))
		}
		return
	}

	title := "动作执行失败"
	if p.Stage() == StageResolution {
		title = "类型转换失败"
	}
	n := o.errorNotification(title, err, p.Stage(), action.FunctionID, action.PanelID)
	n.InvocationID = p.ID()
	o.notify(ctx, n)
}

func (o *Orchestrator) errorNotification(title string, err error, stage Stage, functionID, panelID string) *notification.Notification {
	n := notification.New(notification.LevelError, title, err.Error())
	n.Stage = string(stage)
	n.FunctionID = functionID
	n.PanelID = panelID
	return n
}

func (o *Orchestrator) notify(ctx context.Context, n *notification.Notification) {
	if err := o.notifier.Notify(ctx, n); err != nil {
		o.logger.Warn("发送通知失败", zap.String("title", n.Title), zap.Error(err))
	}
}

func (o *Orchestrator) persist(ctx context.Context, p *Pending, path string, origin actionOrigin) {
	if o.store == nil {
		return
	}
	if err := o.store.Save(ctx, snapshotRecord(p, path, origin)); err != nil {
		o.logger.Warn("保存调用记录失败", zap.String("invocation_id", p.ID()), zap.Error(err))
	}
}
