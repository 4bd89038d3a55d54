package notifications

import (
	"net/http"
	"time"

	response "actionflow/api/handlers/common"
	"actionflow/internal/notification"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// WebSocketHandler 管理动作状态通知的 WebSocket 连接
type WebSocketHandler struct {
	hub      *notification.WebSocketHub
	upgrader websocket.Upgrader
}

// NewWebSocketHandler 创建处理器
func NewWebSocketHandler(hub *notification.WebSocketHub) *WebSocketHandler {
	return &WebSocketHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: 5 * time.Second,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Connect 升级连接并注册客户端
// @Summary 订阅动作通知
// @Tags Notifications
// @Router /api/ws/notifications [get]
func (h *WebSocketHandler) Connect(c *gin.Context) {
	if h == nil || h.hub == nil {
		response.RespondUnavailable(c, "WebSocket 服务未就绪")
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	conn.SetReadLimit(1024)
	conn.SetReadDeadline(time.Now().Add(2 * time.Minute))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(2 * time.Minute))
	})

	// 注册前写入，避免与广播并发写
	if err := conn.WriteJSON(gin.H{"type": "connected", "message": "WebSocket 已连接"}); err != nil {
		_ = conn.Close()
		return
	}
	h.hub.Register(conn)

	go h.readLoop(conn)
}

// Stats 当前通知连接数
// @Summary 查询通知连接状态
// @Tags Notifications
// @Produce json
// @Success 200 {object} response.APIResponse
// @Router /api/ws/notifications/stats [get]
func (h *WebSocketHandler) Stats(c *gin.Context) {
	if h == nil || h.hub == nil {
		response.RespondUnavailable(c, "WebSocket 服务未就绪")
		return
	}
	c.JSON(http.StatusOK, response.APIResponse{Success: true, Data: gin.H{"connections": h.hub.ConnectedCount()}})
}

func (h *WebSocketHandler) readLoop(conn *websocket.Conn) {
	defer func() {
		h.hub.Unregister(conn)
		_ = conn.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
