package panel

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"actionflow/internal/tools"

	"go.uber.org/zap"
)

// ErrNotEditable 面板不支持编辑
var ErrNotEditable = errors.New("面板不可编辑")

// ErrNotSaveable 面板不支持保存
var ErrNotSaveable = errors.New("面板不支持保存")

// Manager 管理活动中的面板，并将内容同步到 Store
type Manager struct {
	mu     sync.RWMutex
	panels map[string]*Panel
	store  Store
	logger *zap.Logger
}

// NewManager 创建面板管理器
func NewManager(store Store, logger *zap.Logger) *Manager {
	if store == nil {
		store = NewMemoryStore()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		panels: make(map[string]*Panel),
		store:  store,
		logger: logger,
	}
}

// Add 注册面板，初始内容在 Store 中没有记录时写入
func (m *Manager) Add(ctx context.Context, p *Panel) error {
	m.mu.Lock()
	if _, exists := m.panels[p.ID()]; exists {
		m.mu.Unlock()
		return fmt.Errorf("面板 %s 已存在", p.ID())
	}
	m.panels[p.ID()] = p
	m.mu.Unlock()

	_, found, err := m.store.Load(ctx, p.ID())
	if err != nil {
		return err
	}
	if !found {
		return m.store.Save(ctx, p.ID(), State{Value: p.Value(), UpdatedAt: time.Now()})
	}
	return nil
}

// Get 获取面板并同步 Store 中的最新内容
func (m *Manager) Get(ctx context.Context, id string) (*Panel, error) {
	m.mu.RLock()
	p, ok := m.panels[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("面板 %s: %w", id, tools.ErrNotFound)
	}

	st, found, err := m.store.Load(ctx, id)
	if err != nil {
		m.logger.Warn("读取面板存储失败，使用本地内容", zap.String("panel_id", id), zap.Error(err))
		return p, nil
	}
	if found && st.UpdatedAt.After(p.UpdatedAt()) {
		p.setValue(st.Value)
	}
	return p, nil
}

// List 按 id 排序列出面板
func (m *Manager) List() []*Panel {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := make([]*Panel, 0, len(m.panels))
	for _, p := range m.panels {
		list = append(list, p)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID() < list[j].ID() })
	return list
}

// Update 用户编辑面板内容
func (m *Manager) Update(ctx context.Context, id, value string) (*Panel, error) {
	p, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	editable, ok := AsEditable(p)
	if !ok {
		return nil, fmt.Errorf("面板 %s (%s): %w", id, p.Kind(), ErrNotEditable)
	}
	editable.SetValue(value)
	return p, m.persist(ctx, p)
}

// Save 标记可保存面板的内容已保存
func (m *Manager) Save(ctx context.Context, id string) error {
	p, err := m.Get(ctx, id)
	if err != nil {
		return err
	}
	saveable, ok := AsSaveable(p)
	if !ok {
		return fmt.Errorf("面板 %s (%s): %w", id, p.Kind(), ErrNotSaveable)
	}
	saveable.MarkSaved()
	return nil
}

// Display 将动作结果写入面板
func (m *Manager) Display(ctx context.Context, id, value string) error {
	p, err := m.Get(ctx, id)
	if err != nil {
		return err
	}
	p.Display(value)
	return m.persist(ctx, p)
}

func (m *Manager) persist(ctx context.Context, p *Panel) error {
	if err := m.store.Save(ctx, p.ID(), State{Value: p.Value(), UpdatedAt: p.UpdatedAt()}); err != nil {
		m.logger.Error("保存面板内容失败", zap.String("panel_id", p.ID()), zap.Error(err))
		return err
	}
	return nil
}
