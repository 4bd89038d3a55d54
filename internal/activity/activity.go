package activity

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"actionflow/internal/panel"
	"actionflow/internal/tools"

	"go.uber.org/zap"
)

// Action 解析后的动作
type Action struct {
	PanelID     string
	ButtonID    string
	FunctionID  string
	Parameters  map[string]string // 参数名 -> 面板 id
	OutputPanel string
}

// Button 面板按钮
type Button struct {
	PanelID        string `json:"panelId"`
	ID             string `json:"id"`
	Icon           string `json:"icon,omitempty"`
	Hint           string `json:"hint,omitempty"`
	ActionFunction string `json:"actionFunction"`
}

// RunFunc 按钮触发的回调，返回调用 id
type RunFunc func(ctx context.Context) (string, error)

// Binding 按钮与回调的绑定
type Binding struct {
	Button Button
	Run    RunFunc
}

type buttonKey struct {
	panelID  string
	buttonID string
}

// Activity 活动：面板、按钮与动作
type Activity struct {
	id       string
	title    string
	panels   []*panel.Panel
	buttons  map[buttonKey]Button
	actions  map[buttonKey]*Action
	bindings map[buttonKey]*Binding
}

// Build 基于工具目录解析活动配置
// 无效的面板、按钮或动作会被跳过，错误合并后返回
func Build(cfg *Config, catalog *tools.Catalog, logger *zap.Logger) (*Activity, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Activity{
		id:       cfg.ID,
		title:    cfg.Title,
		buttons:  make(map[buttonKey]Button),
		actions:  make(map[buttonKey]*Action),
		bindings: make(map[buttonKey]*Binding),
	}

	var errs []error
	known := make(map[string]struct{}, len(cfg.Panels))
	for _, pc := range cfg.Panels {
		if _, dup := known[pc.ID]; dup {
			logger.Warn("跳过重复面板", zap.String("panel_id", pc.ID))
			errs = append(errs, &tools.ConfigurationError{Source: cfg.ID, Err: fmt.Errorf("面板 id 重复: %s", pc.ID)})
			continue
		}
		p, buttons, err := buildPanel(pc, catalog)
		if err != nil {
			logger.Warn("跳过无效面板", zap.String("panel_id", pc.ID), zap.Error(err))
			errs = append(errs, &tools.ConfigurationError{Source: cfg.ID, Err: err})
			continue
		}
		a.panels = append(a.panels, p)
		known[p.ID()] = struct{}{}
		for _, b := range buttons {
			a.buttons[buttonKey{p.ID(), b.ID}] = b
		}
	}

	for _, ac := range cfg.Actions {
		action, err := a.buildAction(ac, known)
		if err != nil {
			logger.Warn("跳过无效动作",
				zap.String("source", ac.Source),
				zap.String("button", ac.SourceButton),
				zap.Error(err),
			)
			errs = append(errs, &tools.ConfigurationError{Source: cfg.ID, Err: err})
			continue
		}
		a.actions[buttonKey{action.PanelID, action.ButtonID}] = action
	}
	return a, errors.Join(errs...)
}

func buildPanel(pc PanelConfig, catalog *tools.Catalog) (*panel.Panel, []Button, error) {
	if pc.ID == "" {
		return nil, nil, errors.New("面板缺少 id")
	}

	def, ok := catalog.PanelDefs[pc.Ref]
	if !ok {
		return nil, nil, fmt.Errorf("面板 %s 引用的定义 %s: %w", pc.ID, pc.Ref, tools.ErrNotFound)
	}
	kind, err := panel.ParseKind(def.PanelClass)
	if err != nil {
		return nil, nil, fmt.Errorf("面板 %s: %w", pc.ID, err)
	}

	name := firstNonEmpty(pc.Name, def.Name, pc.ID)
	p := panel.New(pc.ID, name, kind, firstNonEmpty(pc.Language, def.Language))
	p.SetIcon(def.Icon)
	if t := firstNonEmpty(pc.Type, def.Type); t != "" {
		p.SetType(t)
	}
	if pc.Value != "" {
		p.Display(pc.Value)
	}

	buttons := make([]Button, 0, len(def.Buttons)+len(pc.Buttons))
	for _, b := range def.Buttons {
		buttons = append(buttons, Button{PanelID: pc.ID, ID: b.ID, Icon: b.Icon, Hint: b.Hint, ActionFunction: b.ActionFunction})
	}
	for _, b := range pc.Buttons {
		buttons = append(buttons, Button{PanelID: pc.ID, ID: b.ID, Icon: b.Icon, Hint: b.Hint, ActionFunction: b.ActionFunction})
	}
	return p, buttons, nil
}

func (a *Activity) buildAction(ac ActionConfig, known map[string]struct{}) (*Action, error) {
	button, ok := a.buttons[buttonKey{ac.Source, ac.SourceButton}]
	if !ok {
		return nil, fmt.Errorf("按钮 %s/%s: %w", ac.Source, ac.SourceButton, tools.ErrNotFound)
	}
	if button.ActionFunction == "" {
		return nil, fmt.Errorf("按钮 %s/%s 未声明动作函数", ac.Source, ac.SourceButton)
	}
	for name, panelID := range ac.Parameters {
		if _, ok := known[panelID]; !ok {
			return nil, fmt.Errorf("参数 %s 绑定的面板 %s: %w", name, panelID, tools.ErrNotFound)
		}
	}
	if ac.Output != "" {
		if _, ok := known[ac.Output]; !ok {
			return nil, fmt.Errorf("输出面板 %s: %w", ac.Output, tools.ErrNotFound)
		}
	}

	params := make(map[string]string, len(ac.Parameters))
	for k, v := range ac.Parameters {
		params[k] = v
	}
	return &Action{
		PanelID:     ac.Source,
		ButtonID:    ac.SourceButton,
		FunctionID:  button.ActionFunction,
		Parameters:  params,
		OutputPanel: ac.Output,
	}, nil
}

// ID 活动 id
func (a *Activity) ID() string { return a.id }

// Title 活动标题
func (a *Activity) Title() string { return a.title }

// Panels 活动中的面板（配置顺序）
func (a *Activity) Panels() []*panel.Panel { return a.panels }

// Action 查找按钮对应的动作
func (a *Activity) Action(panelID, buttonID string) (*Action, error) {
	action, ok := a.actions[buttonKey{panelID, buttonID}]
	if !ok {
		return nil, fmt.Errorf("动作 %s/%s: %w", panelID, buttonID, tools.ErrNotFound)
	}
	return action, nil
}

// Bind 为每个配置了动作的按钮绑定回调
func (a *Activity) Bind(run func(ctx context.Context, panelID, buttonID string) (string, error)) {
	for key := range a.actions {
		button := a.buttons[key]
		a.bindings[key] = &Binding{
			Button: button,
			Run: func(ctx context.Context) (string, error) {
				return run(ctx, button.PanelID, button.ID)
			},
		}
	}
}

// Binding 查找按钮绑定
func (a *Activity) Binding(panelID, buttonID string) (*Binding, bool) {
	b, ok := a.bindings[buttonKey{panelID, buttonID}]
	return b, ok
}

// Buttons 返回面板的按钮（按 id 排序）
func (a *Activity) Buttons(panelID string) []Button {
	var buttons []Button
	for key, b := range a.buttons {
		if key.panelID == panelID {
			buttons = append(buttons, b)
		}
	}
	sort.Slice(buttons, func(i, j int) bool { return buttons[i].ID < buttons[j].ID })
	return buttons
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
