package notification

import (
	"encoding/json"
	"sync"
	"time"

	"actionflow/internal/metrics"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type clientConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// WebSocketHub 管理通知订阅连接，并保留最近的通知供新连接重放
type WebSocketHub struct {
	mu                sync.RWMutex
	clients           map[*websocket.Conn]*clientConn
	history           [][]byte
	historyLimit      int
	keepAliveInterval time.Duration
	logger            *zap.Logger
}

// HubOption 配置 hub
type HubOption func(*WebSocketHub)

// WithHistoryLimit 设置重放的历史通知数量
func WithHistoryLimit(limit int) HubOption {
	return func(h *WebSocketHub) { h.historyLimit = limit }
}

// WithKeepAliveInterval 设置心跳间隔
func WithKeepAliveInterval(interval time.Duration) HubOption {
	return func(h *WebSocketHub) { h.keepAliveInterval = interval }
}

// WithHubLogger 设置日志器
func WithHubLogger(l *zap.Logger) HubOption {
	return func(h *WebSocketHub) { h.logger = l }
}

// NewWebSocketHub 创建 Hub
func NewWebSocketHub(opts ...HubOption) *WebSocketHub {
	hub := &WebSocketHub{
		clients:           make(map[*websocket.Conn]*clientConn),
		historyLimit:      20,
		keepAliveInterval: 30 * time.Second,
		logger:            zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(hub)
		}
	}
	return hub
}

// Register 注册连接并重放历史通知
func (h *WebSocketHub) Register(conn *websocket.Conn) {
	client := &clientConn{conn: conn}

	h.mu.Lock()
	h.clients[conn] = client
	history := make([][]byte, len(h.history))
	copy(history, h.history)
	h.mu.Unlock()

	metrics.WebSocketConnectionsGauge.Inc()
	for _, msg := range history {
		if err := client.write(msg); err != nil {
			h.logger.Debug("重放历史通知失败", zap.Error(err))
			break
		}
	}
	h.startKeepAlive(client)
}

// Unregister 移除连接
func (h *WebSocketHub) Unregister(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		metrics.WebSocketConnectionsGauge.Dec()
	}
}

// Broadcast 向所有连接推送消息
func (h *WebSocketHub) Broadcast(payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	h.mu.Lock()
	h.history = append(h.history, data)
	if over := len(h.history) - h.historyLimit; over > 0 {
		h.history = h.history[over:]
	}
	clients := make([]*clientConn, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	var firstErr error
	for _, client := range clients {
		if err := client.write(data); err != nil {
			h.Unregister(client.conn)
			_ = client.conn.Close()
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// ConnectedCount 当前连接数
func (h *WebSocketHub) ConnectedCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close 关闭所有连接
func (h *WebSocketHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		_ = conn.Close()
		delete(h.clients, conn)
		metrics.WebSocketConnectionsGauge.Dec()
	}
}

func (c *clientConn) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (h *WebSocketHub) startKeepAlive(client *clientConn) {
	if h.keepAliveInterval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(h.keepAliveInterval)
		defer ticker.Stop()
		for range ticker.C {
			client.mu.Lock()
			err := client.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			client.mu.Unlock()
			if err != nil {
				h.Unregister(client.conn)
				_ = client.conn.Close()
				return
			}
		}
	}()
}
