package panel

import (
	"fmt"
	"sync"
	"time"
)

// Kind 面板种类，决定面板具备的能力
type Kind string

const (
	KindProgram Kind = "ProgramPanel" // 可编辑、可保存
	KindBlank   Kind = "BlankPanel"   // 可编辑
	KindConsole Kind = "ConsolePanel" // 只读
	KindOutput  Kind = "OutputPanel"  // 只读，接收动作结果
)

type capabilities struct {
	editable bool
	saveable bool
}

var kindCapabilities = map[Kind]capabilities{
	KindProgram: {editable: true, saveable: true},
	KindBlank:   {editable: true},
	KindConsole: {},
	KindOutput:  {},
}

// ParseKind 解析面板种类，未知种类返回错误
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if _, ok := kindCapabilities[k]; !ok {
		return "", fmt.Errorf("未知面板种类: %s", s)
	}
	return k, nil
}

// Viewer 所有面板都具备的只读视图
type Viewer interface {
	ID() string
	Kind() Kind
	Language() string
	Type() string
	Value() string
}

// Editable 可由用户编辑内容的面板
type Editable interface {
	Viewer
	SetValue(value string)
}

// Saveable 可保存的面板，跟踪未保存的修改
type Saveable interface {
	Editable
	Dirty() bool
	MarkSaved()
}

// Panel 面板，能力由 Kind 决定
type Panel struct {
	id       string
	name     string
	kind     Kind
	language string
	icon     string

	mu         sync.RWMutex
	typ        string
	value      string
	savedValue string
	updatedAt  time.Time
}

// New 创建面板
func New(id, name string, kind Kind, language string) *Panel {
	return &Panel{id: id, name: name, kind: kind, language: language}
}

func (p *Panel) ID() string       { return p.id }
func (p *Panel) Name() string     { return p.name }
func (p *Panel) Kind() Kind       { return p.kind }
func (p *Panel) Language() string { return p.language }
func (p *Panel) Icon() string     { return p.icon }

// SetIcon 设置图标
func (p *Panel) SetIcon(icon string) { p.icon = icon }

// Type 面板内容的参数类型
func (p *Panel) Type() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.typ
}

// SetType 设置内容类型，只能设置一次
func (p *Panel) SetType(t string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.typ != "" {
		panic(fmt.Sprintf("面板 %s 的类型已设置为 %s", p.id, p.typ))
	}
	p.typ = t
}

// Value 当前内容
func (p *Panel) Value() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.value
}

// UpdatedAt 最近一次内容变更时间
func (p *Panel) UpdatedAt() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.updatedAt
}

// Display 写入展示内容（动作结果），不受编辑能力限制
func (p *Panel) Display(value string) {
	p.setValue(value)
}

func (p *Panel) setValue(value string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.value = value
	p.updatedAt = time.Now()
}

// AsEditable 按种类返回可编辑视图
func AsEditable(p *Panel) (Editable, bool) {
	if !kindCapabilities[p.kind].editable {
		return nil, false
	}
	return editablePanel{p}, true
}

// AsSaveable 按种类返回可保存视图
func AsSaveable(p *Panel) (Saveable, bool) {
	if !kindCapabilities[p.kind].saveable {
		return nil, false
	}
	return saveablePanel{editablePanel{p}}, true
}

type editablePanel struct {
	*Panel
}

func (e editablePanel) SetValue(value string) {
	e.setValue(value)
}

type saveablePanel struct {
	editablePanel
}

func (s saveablePanel) Dirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value != s.savedValue
}

func (s saveablePanel) MarkSaved() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.savedValue = s.value
}

// Snapshot 面板状态快照
type Snapshot struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Kind      Kind      `json:"kind"`
	Language  string    `json:"language,omitempty"`
	Icon      string    `json:"icon,omitempty"`
	Type      string    `json:"type"`
	Value     string    `json:"value"`
	Editable  bool      `json:"editable"`
	Saveable  bool      `json:"saveable"`
	Dirty     bool      `json:"dirty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Snapshot 获取当前状态
func (p *Panel) Snapshot() Snapshot {
	caps := kindCapabilities[p.kind]
	p.mu.RLock()
	defer p.mu.RUnlock()
	return Snapshot{
		ID:        p.id,
		Name:      p.name,
		Kind:      p.kind,
		Language:  p.language,
		Icon:      p.icon,
		Type:      p.typ,
		Value:     p.value,
		Editable:  caps.editable,
		Saveable:  caps.saveable,
		Dirty:     caps.saveable && p.value != p.savedValue,
		UpdatedAt: p.updatedAt,
	}
}
