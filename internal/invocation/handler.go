package invocation

import (
	"context"
	"encoding/json"
	"fmt"

	"actionflow/internal/activity"
	"actionflow/internal/notification"
)

// PanelWriter 将内容写入面板
type PanelWriter interface {
	Display(ctx context.Context, id, value string) error
}

// outputKeys 结果中按优先级取值的字段
var outputKeys = []string{"output", "generatedText", "diagram", "generatedFiles"}

// PanelResponseHandler 默认结果处理器：写入动作的输出面板并通知成功
type PanelResponseHandler struct {
	panels   PanelWriter
	notifier notification.Notifier
}

// NewPanelResponseHandler 创建默认结果处理器
func NewPanelResponseHandler(panels PanelWriter, notifier notification.Notifier) *PanelResponseHandler {
	return &PanelResponseHandler{panels: panels, notifier: notifier}
}

func (h *PanelResponseHandler) HandleResponse(ctx context.Context, action *activity.Action, p *Pending) error {
	result, _ := p.Result()
	if action.OutputPanel != "" {
		text, err := FormatOutput(result)
		if err != nil {
			return err
		}
		if err := h.panels.Display(ctx, action.OutputPanel, text); err != nil {
			return fmt.Errorf("写入输出面板 %s 失败: %w", action.OutputPanel, err)
		}
	}

	if h.notifier == nil {
		return nil
	}
	n := notification.New(notification.LevelSuccess, "执行完成", fmt.Sprintf("%s 执行完成", action.FunctionID))
	n.InvocationID = p.ID()
	n.FunctionID = action.FunctionID
	n.PanelID = action.OutputPanel
	return h.notifier.Notify(ctx, n)
}

// FormatOutput 提取结果中的展示内容，非字符串值编码为 JSON
func FormatOutput(result map[string]any) (string, error) {
	var value any = result
	for _, key := range outputKeys {
		if v, ok := result[key]; ok {
			value = v
			break
		}
	}
	if s, ok := value.(string); ok {
		return s, nil
	}
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return "", fmt.Errorf("编码结果失败: %w", err)
	}
	return string(data), nil
}

var _ ResponseHandler = (*PanelResponseHandler)(nil)
