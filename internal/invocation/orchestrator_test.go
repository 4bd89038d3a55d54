package invocation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"actionflow/internal/activity"
	"actionflow/internal/conversion"
	"actionflow/internal/notification"
	"actionflow/internal/panel"
	"actionflow/internal/tools"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

type call struct {
	path    string
	payload map[string]any
}

// scriptedCaller 按路径返回预设结果，并记录调用顺序
type scriptedCaller struct {
	mu        sync.Mutex
	calls     []call
	responses map[string]map[string]any
	errs      map[string]error
	gates     map[string]chan struct{}
}

func (c *scriptedCaller) Call(_ context.Context, path string, payload map[string]any) (map[string]any, error) {
	if gate, ok := c.gates[path]; ok {
		<-gate
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, call{path: path, payload: payload})
	if err := c.errs[path]; err != nil {
		return nil, err
	}
	return c.responses[path], nil
}

func (c *scriptedCaller) paths() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	paths := make([]string, len(c.calls))
	for i, cl := range c.calls {
		paths[i] = cl.path
	}
	return paths
}

func (c *scriptedCaller) last() call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[len(c.calls)-1]
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []*notification.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n *notification.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return nil
}

func (r *recordingNotifier) all() []*notification.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*notification.Notification(nil), r.sent...)
}

func addFunction(t *testing.T, catalog *tools.Catalog, id, path, ret string, params ...tools.Parameter) {
	t.Helper()
	d, err := tools.NewActionFunctionDescriptor(id, id, path, tools.TypeRef{Type: ret}, params)
	require.NoError(t, err)
	require.NoError(t, catalog.Descriptors.Add(d))
	inputs := make([]string, len(params))
	for i, p := range params {
		inputs[i] = p.Type
	}
	catalog.Registry.RegisterFunction(inputs, ret, id)
}

func newTestOrchestrator(t *testing.T, catalog *tools.Catalog, caller tools.RemoteCaller, opts ...Option) *Orchestrator {
	t.Helper()
	converter := conversion.NewRemoteConverter(catalog.Registry, catalog.Descriptors, caller, nil)
	return NewOrchestrator(catalog.Descriptors, conversion.NewResolver(converter, nil), caller, opts...)
}

func waitPending(t *testing.T, p *Pending) (map[string]any, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	result, err := p.Wait(ctx)
	require.False(t, errors.Is(err, context.DeadlineExceeded), "调用未在期限内结束")
	return result, err
}

func TestInvokePassThrough(t *testing.T) {
	catalog := tools.NewCatalog()
	addFunction(t, catalog, "target", "/target", "text",
		tools.Parameter{Name: "model", Type: "t1"},
		tools.Parameter{Name: "language", Type: "text"},
	)
	caller := &scriptedCaller{responses: map[string]map[string]any{"/target": {"output": "ok"}}}
	o := newTestOrchestrator(t, catalog, caller)

	p, err := o.InvokeActionFunction(context.Background(), "target", conversion.ParameterMap{
		"model":    {Type: "t1", Value: "X"},
		"language": {Type: "text", Value: "L"},
	})
	require.NoError(t, err)

	result, err := waitPending(t, p)
	require.NoError(t, err)
	assert.Equal(t, "ok", result["output"])
	assert.Equal(t, StateCompleted, p.State())
	assert.Equal(t, []string{"/target"}, caller.paths())
	assert.Equal(t, map[string]any{"model": "X", "language": "L"}, caller.last().payload)
}

func TestInvokeConversionSettlesBeforeTarget(t *testing.T) {
	catalog := tools.NewCatalog()
	addFunction(t, catalog, "fn1", "/fn1", "t2", tools.Parameter{Name: "input", Type: "t1"})
	addFunction(t, catalog, "target", "/target", "text", tools.Parameter{Name: "p", Type: "t2"})

	gate := make(chan struct{})
	caller := &scriptedCaller{
		responses: map[string]map[string]any{
			"/fn1":    {"output": "fn1-out"},
			"/target": {"output": "done"},
		},
		gates: map[string]chan struct{}{"/fn1": gate},
	}
	o := newTestOrchestrator(t, catalog, caller)

	p, err := o.InvokeActionFunction(context.Background(), "target", conversion.ParameterMap{"p": {Type: "t1", Value: "raw"}})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return p.State() == StateResolving }, time.Second, 5*time.Millisecond)
	assert.Empty(t, caller.paths())

	close(gate)
	_, err = waitPending(t, p)
	require.NoError(t, err)

	assert.Equal(t, []string{"/fn1", "/target"}, caller.paths())
	assert.Equal(t, map[string]any{"p": "fn1-out"}, caller.last().payload)
	assert.Equal(t, map[string]any{"p": "fn1-out"}, p.Payload())
}

func TestInvokeMetamodelConversion(t *testing.T) {
	catalog := tools.NewCatalog()
	addFunction(t, catalog, "x2a", "/x2a", "A",
		tools.Parameter{Name: "model", Type: "X"},
		tools.Parameter{Name: "metamodel", Type: "Y"},
	)
	addFunction(t, catalog, "target", "/target", "text",
		tools.Parameter{Name: "p1", Type: "A", InstanceOf: "p2"},
		tools.Parameter{Name: "p2", Type: "Y"},
	)
	caller := &scriptedCaller{responses: map[string]map[string]any{
		"/x2a":    {"output": "A-value"},
		"/target": {"output": "ok"},
	}}
	o := newTestOrchestrator(t, catalog, caller)

	p, err := o.InvokeActionFunction(context.Background(), "target", conversion.ParameterMap{
		"p1": {Type: "X", Value: "p1Value"},
		"p2": {Type: "Y", Value: "p2Value"},
	})
	require.NoError(t, err)
	_, err = waitPending(t, p)
	require.NoError(t, err)

	require.Equal(t, []string{"/x2a", "/target"}, caller.paths())
	caller.mu.Lock()
	assert.Equal(t, map[string]any{"model": "p1Value", "metamodel": "p2Value"}, caller.calls[0].payload)
	caller.mu.Unlock()
	assert.Equal(t, map[string]any{"p1": "A-value", "p2": "p2Value"}, caller.last().payload)
}

func TestInvokeMissingParameterPlaceholder(t *testing.T) {
	catalog := tools.NewCatalog()
	addFunction(t, catalog, "target", "/target", "text",
		tools.Parameter{Name: "program", Type: "eol"},
		tools.Parameter{Name: "model", Type: "xmi"},
	)
	caller := &scriptedCaller{responses: map[string]map[string]any{"/target": {}}}
	o := newTestOrchestrator(t, catalog, caller)

	p, err := o.InvokeActionFunction(context.Background(), "target", conversion.ParameterMap{
		"program": {Type: "eol", Value: "print();"},
	})
	require.NoError(t, err)
	_, err = waitPending(t, p)
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"program": "print();", "model": "undefined"}, caller.last().payload)
}

func TestInvokeUnknownFunction(t *testing.T) {
	o := newTestOrchestrator(t, tools.NewCatalog(), &scriptedCaller{})

	p, err := o.InvokeActionFunction(context.Background(), "missing", nil)
	assert.Nil(t, p)
	assert.True(t, errors.Is(err, tools.ErrNotFound))
}

func TestInvokeFailureStages(t *testing.T) {
	t.Run("转换失败属于解析阶段", func(t *testing.T) {
		catalog := tools.NewCatalog()
		addFunction(t, catalog, "target", "/target", "text", tools.Parameter{Name: "p", Type: "t2"})
		caller := &scriptedCaller{}
		o := newTestOrchestrator(t, catalog, caller)

		p, err := o.InvokeActionFunction(context.Background(), "target", conversion.ParameterMap{"p": {Type: "t1", Value: "v"}})
		require.NoError(t, err)
		_, err = waitPending(t, p)

		assert.True(t, tools.IsResolutionError(err))
		assert.Equal(t, StateFailed, p.State())
		assert.Equal(t, StageResolution, p.Stage())
		assert.Empty(t, caller.paths())
	})

	t.Run("远程调用失败属于执行阶段", func(t *testing.T) {
		catalog := tools.NewCatalog()
		addFunction(t, catalog, "target", "/target", "text", tools.Parameter{Name: "p", Type: "t1"})
		caller := &scriptedCaller{errs: map[string]error{
			"/target": &tools.RemoteInvocationError{Path: "/target", StatusCode: 500, Message: "boom"},
		}}
		o := newTestOrchestrator(t, catalog, caller)

		p, err := o.InvokeActionFunction(context.Background(), "target", conversion.ParameterMap{"p": {Type: "t1", Value: "v"}})
		require.NoError(t, err)
		_, err = waitPending(t, p)

		assert.True(t, tools.IsRemoteError(err))
		assert.False(t, tools.IsResolutionError(err))
		assert.Equal(t, StageExecution, p.Stage())

		rec, err := o.Store().Get(context.Background(), p.ID())
		require.NoError(t, err)
		assert.Equal(t, StateFailed, rec.State)
		assert.Equal(t, StageExecution, rec.Stage)
		require.NotNil(t, rec.ErrorMessage)
		assert.Contains(t, *rec.ErrorMessage, "boom")
	})
}

func TestInvokeNotCancelledByCaller(t *testing.T) {
	catalog := tools.NewCatalog()
	addFunction(t, catalog, "target", "/target", "text", tools.Parameter{Name: "p", Type: "t1"})
	gate := make(chan struct{})
	caller := &scriptedCaller{
		responses: map[string]map[string]any{"/target": {"output": "late"}},
		gates:     map[string]chan struct{}{"/target": gate},
	}
	o := newTestOrchestrator(t, catalog, caller)

	ctx, cancel := context.WithCancel(context.Background())
	p, err := o.InvokeActionFunction(ctx, "target", conversion.ParameterMap{"p": {Type: "t1", Value: "v"}})
	require.NoError(t, err)
	cancel()
	close(gate)

	result, err := waitPending(t, p)
	require.NoError(t, err)
	assert.Equal(t, "late", result["output"])
}

// 活动：emfatic 面板按钮调用 ecore 校验函数，结果写入 console
func newActionFixture(t *testing.T, caller *scriptedCaller) (*Orchestrator, *panel.Manager, *recordingNotifier) {
	t.Helper()
	catalog := tools.NewCatalog()
	addFunction(t, catalog, "emfatic2ecore", "/emfatic2ecore", "ecore", tools.Parameter{Name: "emfatic", Type: "emfatic"})
	addFunction(t, catalog, "validate", "/validate", "text",
		tools.Parameter{Name: "metamodel", Type: "ecore"},
		tools.Parameter{Name: "language", Type: "text"},
	)
	catalog.PanelDefs["emfatic-def"] = tools.PanelDef{
		ID: "emfatic-def", PanelClass: "ProgramPanel", Language: "emfatic", Type: "emfatic",
		Buttons: []tools.ButtonDef{{ID: "validate", ActionFunction: "validate"}},
	}
	catalog.PanelDefs["console-def"] = tools.PanelDef{ID: "console-def", PanelClass: "ConsolePanel"}

	cfg, err := activity.Parse([]byte(`
id: demo
panels:
  - id: emfatic
    ref: emfatic-def
    value: "class A {}"
  - id: console
    ref: console-def
actions:
  - source: emfatic
    sourceButton: validate
    parameters:
      metamodel: emfatic
    output: console
`), ".yaml")
	require.NoError(t, err)
	act, err := activity.Build(cfg, catalog, nil)
	require.NoError(t, err)

	panels := panel.NewManager(panel.NewMemoryStore(), nil)
	for _, p := range act.Panels() {
		require.NoError(t, panels.Add(context.Background(), p))
	}

	notifier := &recordingNotifier{}
	o := newTestOrchestrator(t, catalog, caller,
		WithActivity(act, panels),
		WithNotifier(notifier),
		WithResponseHandler(NewPanelResponseHandler(panels, notifier)),
	)
	return o, panels, notifier
}

func TestRunActionWritesOutputPanel(t *testing.T) {
	caller := &scriptedCaller{responses: map[string]map[string]any{
		"/emfatic2ecore": {"output": "<ecore/>"},
		"/validate":      {"output": "模型有效"},
	}}
	o, panels, notifier := newActionFixture(t, caller)

	p, err := o.RunAction(context.Background(), "emfatic", "validate")
	require.NoError(t, err)
	_, err = waitPending(t, p)
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"metamodel": "<ecore/>", "language": "emfatic"}, caller.last().payload)

	console, err := panels.Get(context.Background(), "console")
	require.NoError(t, err)
	assert.Equal(t, "模型有效", console.Value())

	sent := notifier.all()
	require.Len(t, sent, 2)
	assert.Equal(t, notification.LevelRunning, sent[0].Level)
	assert.Equal(t, notification.LevelSuccess, sent[1].Level)
	assert.Equal(t, p.ID(), sent[1].InvocationID)
}

func TestRunActionResolutionFailureNotified(t *testing.T) {
	caller := &scriptedCaller{errs: map[string]error{
		"/emfatic2ecore": &tools.RemoteInvocationError{Path: "/emfatic2ecore", Message: "语法错误"},
	}}
	o, panels, notifier := newActionFixture(t, caller)

	p, err := o.RunAction(context.Background(), "emfatic", "validate")
	require.NoError(t, err)
	_, err = waitPending(t, p)
	require.Error(t, err)

	sent := notifier.all()
	require.Len(t, sent, 2)
	assert.Equal(t, notification.LevelError, sent[1].Level)
	assert.Equal(t, "类型转换失败", sent[1].Title)
	assert.Equal(t, string(StageResolution), sent[1].Stage)
	assert.NotContains(t, caller.paths(), "/validate")

	console, err := panels.Get(context.Background(), "console")
	require.NoError(t, err)
	assert.Empty(t, console.Value())
}

func TestRunActionUnknownButton(t *testing.T) {
	o, _, notifier := newActionFixture(t, &scriptedCaller{})

	p, err := o.RunAction(context.Background(), "emfatic", "missing")
	assert.Nil(t, p)
	assert.True(t, errors.Is(err, tools.ErrNotFound))

	sent := notifier.all()
	require.Len(t, sent, 1)
	assert.Equal(t, notification.LevelError, sent[0].Level)
}

func TestFormatOutput(t *testing.T) {
	cases := []struct {
		name   string
		result map[string]any
		want   string
	}{
		{"output 字段", map[string]any{"output": "text", "generatedText": "other"}, "text"},
		{"generatedText 字段", map[string]any{"generatedText": "gen"}, "gen"},
		{"diagram 字段", map[string]any{"diagram": "@startuml"}, "@startuml"},
		{"generatedFiles 编码为 JSON", map[string]any{"generatedFiles": []any{"a.java"}}, "[\n  \"a.java\"\n]"},
		{"整个结果", map[string]any{"x": 1.0}, "{\n  \"x\": 1\n}"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := FormatOutput(tc.result)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

type spanRecorder struct {
	noop.Tracer
	mu    sync.Mutex
	names []string
}

func (r *spanRecorder) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	r.mu.Lock()
	r.names = append(r.names, name)
	r.mu.Unlock()
	return r.Tracer.Start(ctx, name, opts...)
}

func (r *spanRecorder) started() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.names...)
}

func TestInvokeUsesConfiguredTracer(t *testing.T) {
	catalog := tools.NewCatalog()
	addFunction(t, catalog, "target", "/target", "text", tools.Parameter{Name: "model", Type: "t1"})
	caller := &scriptedCaller{responses: map[string]map[string]any{"/target": {"output": "ok"}}}
	tracer := &spanRecorder{}
	o := newTestOrchestrator(t, catalog, caller, WithTracer(tracer))

	p, err := o.InvokeActionFunction(context.Background(), "target", conversion.ParameterMap{
		"model": {Type: "t1", Value: "X"},
	})
	require.NoError(t, err)
	_, err = waitPending(t, p)
	require.NoError(t, err)

	assert.Contains(t, tracer.started(), "Orchestrator.InvokeActionFunction")
}
