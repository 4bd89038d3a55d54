package notification

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Level 通知级别
type Level string

const (
	LevelRunning Level = "running"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelInfo    Level = "info"
)

// Notification 推送给用户的通知
type Notification struct {
	ID           string         `json:"id"`
	Level        Level          `json:"level"`
	Title        string         `json:"title"`
	Message      string         `json:"message"`
	InvocationID string         `json:"invocationId,omitempty"`
	FunctionID   string         `json:"functionId,omitempty"`
	PanelID      string         `json:"panelId,omitempty"`
	Stage        string         `json:"stage,omitempty"` // resolution, execution
	Data         map[string]any `json:"data,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
}

// New 创建通知
func New(level Level, title, message string) *Notification {
	return &Notification{
		ID:        uuid.NewString(),
		Level:     level,
		Title:     title,
		Message:   message,
		CreatedAt: time.Now(),
	}
}

// Notifier 通知器接口
type Notifier interface {
	Notify(ctx context.Context, n *Notification) error
}

// LogNotifier 将通知写入日志
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier 创建日志通知器
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

func (l *LogNotifier) Notify(_ context.Context, n *Notification) error {
	fields := []zap.Field{
		zap.String("notification_id", n.ID),
		zap.String("level", string(n.Level)),
		zap.String("message", n.Message),
	}
	if n.InvocationID != "" {
		fields = append(fields, zap.String("invocation_id", n.InvocationID))
	}
	if n.Stage != "" {
		fields = append(fields, zap.String("stage", n.Stage))
	}
	if n.Level == LevelError {
		l.logger.Warn(n.Title, fields...)
	} else {
		l.logger.Info(n.Title, fields...)
	}
	return nil
}

// MultiNotifier 多通道通知器，逐个发送并合并错误
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier 创建多通道通知器
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	list := make([]Notifier, 0, len(notifiers))
	for _, n := range notifiers {
		if n != nil {
			list = append(list, n)
		}
	}
	return &MultiNotifier{notifiers: list}
}

func (m *MultiNotifier) Notify(ctx context.Context, n *Notification) error {
	var errs []error
	for _, notifier := range m.notifiers {
		if err := notifier.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// WebSocketNotifier 通过 Hub 广播通知
type WebSocketNotifier struct {
	hub *WebSocketHub
}

// NewWebSocketNotifier 创建 WebSocket 通知器
func NewWebSocketNotifier(hub *WebSocketHub) *WebSocketNotifier {
	return &WebSocketNotifier{hub: hub}
}

func (w *WebSocketNotifier) Notify(_ context.Context, n *Notification) error {
	if w.hub == nil {
		return nil
	}
	return w.hub.Broadcast(n)
}

var (
	_ Notifier = (*LogNotifier)(nil)
	_ Notifier = (*MultiNotifier)(nil)
	_ Notifier = (*WebSocketNotifier)(nil)
)
