package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"actionflow/internal/logger"
	"actionflow/internal/worker/tasks"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// ActionRunner 执行按钮动作并等待其结束
type ActionRunner func(ctx context.Context, panelID, buttonID string) error

// ActionHandler 处理异步动作任务
type ActionHandler struct {
	run    ActionRunner
	logger *zap.Logger
}

// NewActionHandler 创建处理器
func NewActionHandler(run ActionRunner, logger *zap.Logger) *ActionHandler {
	return &ActionHandler{run: run, logger: logger}
}

// HandleRunAction 执行动作；动作失败已通知用户，不再重试
func (h *ActionHandler) HandleRunAction(ctx context.Context, t *asynq.Task) error {
	var p tasks.RunActionPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("json unmarshal failed: %w: %w", err, asynq.SkipRetry)
	}
	if p.RequestID != "" {
		ctx = logger.WithTraceID(ctx, p.RequestID)
	}
	log := logger.FromContext(ctx, h.logger)

	log.Info("开始执行异步动作",
		zap.String("panel_id", p.PanelID),
		zap.String("button_id", p.ButtonID),
	)
	if err := h.run(ctx, p.PanelID, p.ButtonID); err != nil {
		log.Error("异步动作执行失败",
			zap.String("panel_id", p.PanelID),
			zap.String("button_id", p.ButtonID),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}

	log.Info("异步动作执行完成", zap.String("panel_id", p.PanelID), zap.String("button_id", p.ButtonID))
	return nil
}
