package invocation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"actionflow/internal/infra"
	"actionflow/internal/tools"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Record 调用记录
type Record struct {
	ID           string            `json:"id" gorm:"primaryKey;size:36"`
	FunctionID   string            `json:"functionId" gorm:"size:200;not null;index"`
	Path         string            `json:"path" gorm:"size:500"`
	PanelID      string            `json:"panelId,omitempty" gorm:"size:200"`
	ButtonID     string            `json:"buttonId,omitempty" gorm:"size:200"`
	State        State             `json:"state" gorm:"size:50;not null;index"`
	Stage        Stage             `json:"stage,omitempty" gorm:"size:50"`
	Payload      datatypes.JSONMap `json:"payload,omitempty"`
	Result       datatypes.JSON    `json:"result,omitempty"`
	ErrorMessage *string           `json:"errorMessage,omitempty" gorm:"type:text"`
	StartedAt    time.Time         `json:"startedAt" gorm:"not null"`
	CompletedAt  *time.Time        `json:"completedAt,omitempty"`
	Duration     int64             `json:"duration"` // 毫秒
	CreatedAt    time.Time         `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt    time.Time         `json:"updatedAt" gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (Record) TableName() string {
	return "invocation_records"
}

// Store 调用记录存储
type Store interface {
	Save(ctx context.Context, rec *Record) error
	Get(ctx context.Context, id string) (*Record, error)
	List(ctx context.Context, functionID string, limit int) ([]*Record, error)
}

// GormStore 基于 GORM 的调用记录存储
type GormStore struct {
	db *gorm.DB
}

// NewGormStore 创建存储
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// AutoMigrate 迁移调用记录表
func (s *GormStore) AutoMigrate() error {
	return infra.AutoMigrate(s.db, &Record{})
}

// Save 创建或更新记录
func (s *GormStore) Save(ctx context.Context, rec *Record) error {
	if err := s.db.WithContext(ctx).Save(rec).Error; err != nil {
		return fmt.Errorf("保存调用记录失败: %w", err)
	}
	return nil
}

// Get 查询记录
func (s *GormStore) Get(ctx context.Context, id string) (*Record, error) {
	var rec Record
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("调用记录 %s: %w", id, tools.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("查询调用记录失败: %w", err)
	}
	return &rec, nil
}

// List 按开始时间倒序列出记录，functionID 为空时不过滤
func (s *GormStore) List(ctx context.Context, functionID string, limit int) ([]*Record, error) {
	query := s.db.WithContext(ctx).Model(&Record{})
	if functionID != "" {
		query = query.Where("function_id = ?", functionID)
	}
	if limit <= 0 {
		limit = 50
	}

	var records []*Record
	if err := query.Order("started_at DESC").Limit(limit).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("查询调用记录失败: %w", err)
	}
	return records, nil
}

// MemoryStore 进程内调用记录存储
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

func (s *MemoryStore) Save(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.records[rec.ID] = &cp
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("调用记录 %s: %w", id, tools.ErrNotFound)
	}
	cp := *rec
	return &cp, nil
}

func (s *MemoryStore) List(_ context.Context, functionID string, limit int) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := make([]*Record, 0, len(s.records))
	for _, rec := range s.records {
		if functionID != "" && rec.FunctionID != functionID {
			continue
		}
		cp := *rec
		list = append(list, &cp)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].StartedAt.After(list[j].StartedAt) })
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

// snapshotRecord 根据未决调用生成记录
func snapshotRecord(p *Pending, path string, origin actionOrigin) *Record {
	p.mu.RLock()
	defer p.mu.RUnlock()

	rec := &Record{
		ID:         p.id,
		FunctionID: p.functionID,
		Path:       path,
		PanelID:    origin.panelID,
		ButtonID:   origin.buttonID,
		State:      p.state,
		Stage:      p.stage,
		StartedAt:  p.startedAt,
	}
	if p.payload != nil {
		rec.Payload = datatypes.JSONMap(p.payload)
	}
	if p.result != nil {
		if data, err := json.Marshal(p.result); err == nil {
			rec.Result = datatypes.JSON(data)
		}
	}
	if p.err != nil {
		msg := p.err.Error()
		rec.ErrorMessage = &msg
	}
	if !p.completedAt.IsZero() {
		completed := p.completedAt
		rec.CompletedAt = &completed
		rec.Duration = completed.Sub(p.startedAt).Milliseconds()
	}
	return rec
}

var (
	_ Store = (*GormStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
