package functions

import (
	"context"
	"net/http"
	"strconv"
	"time"

	response "actionflow/api/handlers/common"
	"actionflow/internal/conversion"
	"actionflow/internal/invocation"
	"actionflow/internal/tools"

	"github.com/gin-gonic/gin"
)

// Invoker 动作函数调用入口
type Invoker interface {
	InvokeActionFunction(ctx context.Context, functionID string, params conversion.ParameterMap) (*invocation.Pending, error)
	Store() invocation.Store
}

// FunctionHandler 动作函数与调用记录 Handler
type FunctionHandler struct {
	catalog     *tools.Catalog
	invoker     Invoker
	stats       *tools.CallMetrics
	waitTimeout time.Duration
}

// NewFunctionHandler 创建 FunctionHandler，stats 为 nil 时统计接口不可用
func NewFunctionHandler(catalog *tools.Catalog, invoker Invoker, stats *tools.CallMetrics, waitTimeout time.Duration) *FunctionHandler {
	if waitTimeout <= 0 {
		waitTimeout = 60 * time.Second
	}
	return &FunctionHandler{catalog: catalog, invoker: invoker, stats: stats, waitTimeout: waitTimeout}
}

// ListFunctions 查询动作函数列表
// @Summary 查询动作函数列表
// @Tags Functions
// @Produce json
// @Success 200 {object} response.APIResponse{data=[]functionDTO}
// @Router /api/functions [get]
func (h *FunctionHandler) ListFunctions(c *gin.Context) {
	descriptors := h.catalog.Descriptors.List()
	items := make([]functionDTO, 0, len(descriptors))
	for _, d := range descriptors {
		items = append(items, toFunctionDTO(d))
	}
	c.JSON(http.StatusOK, response.APIResponse{
		Success: true,
		Data: gin.H{
			"functions": items,
			"count":     len(items),
		},
	})
}

// GetFunction 查询动作函数详情
// @Summary 获取动作函数详情
// @Tags Functions
// @Produce json
// @Param id path string true "函数 id"
// @Success 200 {object} response.APIResponse{data=functionDTO}
// @Failure 404 {object} response.ErrorResponse
// @Router /api/functions/{id} [get]
func (h *FunctionHandler) GetFunction(c *gin.Context) {
	d, ok := h.catalog.Descriptors.Get(c.Param("id"))
	if !ok {
		response.RespondNotFound(c, "动作函数不存在")
		return
	}
	c.JSON(http.StatusOK, response.APIResponse{Success: true, Data: toFunctionDTO(d)})
}

// CallStats 远程调用统计
// @Summary 查询远程调用统计
// @Tags Functions
// @Produce json
// @Param path query string false "调用路径"
// @Success 200 {object} response.APIResponse{data=[]tools.CallStatsSnapshot}
// @Failure 404 {object} response.ErrorResponse
// @Router /api/functions/stats [get]
func (h *FunctionHandler) CallStats(c *gin.Context) {
	if h.stats == nil {
		response.RespondUnavailable(c, "调用统计未启用")
		return
	}

	if path := c.Query("path"); path != "" {
		snapshot := h.stats.GetStats(path)
		if snapshot == nil {
			response.RespondNotFound(c, "该路径暂无调用记录")
			return
		}
		c.JSON(http.StatusOK, response.APIResponse{Success: true, Data: snapshot})
		return
	}

	items := h.stats.GetAllStats()
	c.JSON(http.StatusOK, response.APIResponse{
		Success: true,
		Data: gin.H{
			"calls": items,
			"count": len(items),
		},
	})
}

// ListConversions 查询注册的类型转换
// @Summary 查询类型转换注册表
// @Tags Functions
// @Produce json
// @Success 200 {object} response.APIResponse
// @Router /api/conversions [get]
func (h *FunctionHandler) ListConversions(c *gin.Context) {
	entries := h.catalog.Registry.Entries()
	items := make([]conversionDTO, 0, len(entries))
	for _, e := range entries {
		items = append(items, conversionDTO{InputTypes: e.InputTypes, OutputType: e.OutputType, FunctionID: e.ID})
	}
	c.JSON(http.StatusOK, response.APIResponse{
		Success: true,
		Data: gin.H{
			"conversions": items,
			"count":       len(items),
		},
	})
}

// InvokeFunction 调用动作函数
// @Summary 调用动作函数
// @Tags Functions
// @Accept json
// @Produce json
// @Param id path string true "函数 id"
// @Param wait query bool false "是否等待调用结束"
// @Param request body invokeRequest true "参数"
// @Success 200 {object} response.APIResponse{data=invocationDTO}
// @Success 202 {object} response.APIResponse{data=invocationDTO}
// @Failure 404 {object} response.ErrorResponse
// @Router /api/functions/{id}/invoke [post]
func (h *FunctionHandler) InvokeFunction(c *gin.Context) {
	var req invokeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondBadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	params := make(conversion.ParameterMap, len(req.Parameters))
	for name, p := range req.Parameters {
		params[name] = conversion.ParameterValue{Type: p.Type, Value: p.Value}
	}

	pending, err := h.invoker.InvokeActionFunction(c.Request.Context(), c.Param("id"), params)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	wait, _ := strconv.ParseBool(c.Query("wait"))
	if !wait {
		c.JSON(http.StatusAccepted, response.APIResponse{Success: true, Data: fromPending(pending)})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.waitTimeout)
	defer cancel()
	if _, err := pending.Wait(ctx); err != nil && !pending.State().Terminal() {
		c.JSON(http.StatusAccepted, response.APIResponse{Success: true, Message: "调用仍在进行", Data: fromPending(pending)})
		return
	}

	dto := fromPending(pending)
	if _, err := pending.Result(); err != nil {
		status, code := statusFromStage(pending.Stage(), err)
		response.RespondStageFailure(c, status, code, string(pending.Stage()), err, dto)
		return
	}
	c.JSON(http.StatusOK, response.APIResponse{Success: true, Data: dto})
}

// ListInvocations 查询调用记录
// @Summary 查询调用记录
// @Tags Invocations
// @Produce json
// @Param function query string false "函数 id"
// @Param limit query int false "条数上限"
// @Success 200 {object} response.APIResponse{data=[]invocation.Record}
// @Router /api/invocations [get]
func (h *FunctionHandler) ListInvocations(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if limit <= 0 || limit > 200 {
		limit = 20
	}
	records, err := h.invoker.Store().List(c.Request.Context(), c.Query("function"), limit)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.APIResponse{
		Success: true,
		Data: gin.H{
			"invocations": records,
			"count":       len(records),
		},
	})
}

// GetInvocation 查询调用记录详情
// @Summary 获取调用记录
// @Tags Invocations
// @Produce json
// @Param id path string true "调用 id"
// @Success 200 {object} response.APIResponse{data=invocation.Record}
// @Failure 404 {object} response.ErrorResponse
// @Router /api/invocations/{id} [get]
func (h *FunctionHandler) GetInvocation(c *gin.Context) {
	rec, err := h.invoker.Store().Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.APIResponse{Success: true, Data: rec})
}
