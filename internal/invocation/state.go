package invocation

import "fmt"

// State 调用状态
type State string

const (
	StatePending         State = "PENDING"
	StateResolving       State = "RESOLVING_PARAMETERS"
	StateParametersReady State = "PARAMETERS_READY"
	StateInvoking        State = "INVOKING_REMOTE"
	StateCompleted       State = "COMPLETED"
	StateFailed          State = "FAILED"
)

// Stage 失败阶段
type Stage string

const (
	StageNone       Stage = ""
	StageResolution Stage = "resolution" // 参数类型转换
	StageExecution  Stage = "execution"  // 远程调用目标函数
)

var transitions = map[State][]State{
	StatePending:         {StateResolving, StateFailed},
	StateResolving:       {StateParametersReady, StateFailed},
	StateParametersReady: {StateInvoking, StateFailed},
	StateInvoking:        {StateCompleted, StateFailed},
}

// Terminal 是否为终止状态
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// CanTransition 是否允许迁移到目标状态
func (s State) CanTransition(to State) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// TransitionError 非法状态迁移
type TransitionError struct {
	From State
	To   State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("非法状态迁移: %s -> %s", e.From, e.To)
}

func (s Stage) label() string {
	if s == StageNone {
		return "none"
	}
	return string(s)
}
