package panels

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	response "actionflow/api/handlers/common"
	"actionflow/internal/activity"
	"actionflow/internal/infra/queue"
	"actionflow/internal/middleware"
	"actionflow/internal/panel"
	"actionflow/internal/tools"
	"actionflow/internal/worker/tasks"

	"github.com/gin-gonic/gin"
)

// PanelManager 面板读写
type PanelManager interface {
	List() []*panel.Panel
	Get(ctx context.Context, id string) (*panel.Panel, error)
	Update(ctx context.Context, id, value string) (*panel.Panel, error)
	Save(ctx context.Context, id string) error
}

// ButtonSource 面板按钮与绑定
type ButtonSource interface {
	Buttons(panelID string) []activity.Button
	Binding(panelID, buttonID string) (*activity.Binding, bool)
}

// PanelHandler 面板与按钮 Handler
type PanelHandler struct {
	panels  PanelManager
	buttons ButtonSource
	queue   queue.Client // 为 nil 时不支持异步执行
}

// NewPanelHandler 创建 PanelHandler
func NewPanelHandler(panels PanelManager, buttons ButtonSource, queueClient queue.Client) *PanelHandler {
	return &PanelHandler{panels: panels, buttons: buttons, queue: queueClient}
}

// ListPanels 查询面板列表
// @Summary 查询面板列表
// @Tags Panels
// @Produce json
// @Success 200 {object} response.APIResponse{data=[]panelDTO}
// @Router /api/panels [get]
func (h *PanelHandler) ListPanels(c *gin.Context) {
	list := h.panels.List()
	items := make([]panelDTO, 0, len(list))
	for _, p := range list {
		items = append(items, h.toDTO(p))
	}
	c.JSON(http.StatusOK, response.APIResponse{
		Success: true,
		Data: gin.H{
			"panels": items,
			"count":  len(items),
		},
	})
}

// GetPanel 查询面板详情
// @Summary 获取面板
// @Tags Panels
// @Produce json
// @Param id path string true "面板 id"
// @Success 200 {object} response.APIResponse{data=panelDTO}
// @Failure 404 {object} response.ErrorResponse
// @Router /api/panels/{id} [get]
func (h *PanelHandler) GetPanel(c *gin.Context) {
	p, err := h.panels.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.APIResponse{Success: true, Data: h.toDTO(p)})
}

// UpdatePanel 编辑面板内容
// @Summary 更新面板内容
// @Tags Panels
// @Accept json
// @Produce json
// @Param id path string true "面板 id"
// @Param request body updatePanelRequest true "面板内容"
// @Success 200 {object} response.APIResponse{data=panelDTO}
// @Failure 404 {object} response.ErrorResponse
// @Failure 409 {object} response.ErrorResponse
// @Router /api/panels/{id} [put]
func (h *PanelHandler) UpdatePanel(c *gin.Context) {
	var req updatePanelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondBadRequest(c, "请求参数错误: "+err.Error())
		return
	}
	p, err := h.panels.Update(c.Request.Context(), c.Param("id"), *req.Value)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.APIResponse{Success: true, Data: h.toDTO(p)})
}

// SavePanel 标记面板内容已保存
// @Summary 保存面板
// @Tags Panels
// @Produce json
// @Param id path string true "面板 id"
// @Success 200 {object} response.APIResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /api/panels/{id}/save [post]
func (h *PanelHandler) SavePanel(c *gin.Context) {
	if err := h.panels.Save(c.Request.Context(), c.Param("id")); err != nil {
		response.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.APIResponse{Success: true, Message: "面板已保存"})
}

// RunButton 触发面板按钮绑定的动作
// @Summary 执行按钮动作
// @Tags Panels
// @Produce json
// @Param id path string true "面板 id"
// @Param button path string true "按钮 id"
// @Param async query bool false "是否投递到任务队列"
// @Success 202 {object} response.APIResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /api/panels/{id}/buttons/{button}/run [post]
func (h *PanelHandler) RunButton(c *gin.Context) {
	panelID, buttonID := c.Param("id"), c.Param("button")
	binding, ok := h.buttons.Binding(panelID, buttonID)
	if !ok {
		response.RespondError(c, fmt.Errorf("按钮 %s/%s: %w", panelID, buttonID, tools.ErrNotFound))
		return
	}

	if async, _ := strconv.ParseBool(c.Query("async")); async {
		if h.queue == nil {
			response.RespondUnavailable(c, "任务队列未启用")
			return
		}
		taskID, err := h.queue.EnqueueRunAction(c.Request.Context(), tasks.RunActionPayload{
			PanelID:   panelID,
			ButtonID:  buttonID,
			RequestID: middleware.GetTraceIDFromGin(c),
		})
		if err != nil {
			response.RespondError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, response.APIResponse{Success: true, Message: "动作已入队", Data: gin.H{"taskId": taskID}})
		return
	}

	invocationID, err := binding.Run(c.Request.Context())
	if err != nil {
		response.RespondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, response.APIResponse{Success: true, Message: "动作已开始执行", Data: gin.H{"invocationId": invocationID}})
}

func (h *PanelHandler) toDTO(p *panel.Panel) panelDTO {
	dto := panelDTO{Snapshot: p.Snapshot(), Buttons: []activity.Button{}}
	if h.buttons != nil {
		if buttons := h.buttons.Buttons(p.ID()); len(buttons) > 0 {
			dto.Buttons = buttons
		}
	}
	return dto
}
