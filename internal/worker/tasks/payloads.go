package tasks

// Task Types
const (
	TypeRunAction = "action:run"
)

// QueueActions 动作执行队列
const QueueActions = "actions"

// RunActionPayload 按钮动作异步执行任务载荷
type RunActionPayload struct {
	PanelID   string `json:"panel_id"`
	ButtonID  string `json:"button_id"`
	RequestID string `json:"request_id,omitempty"`
}
