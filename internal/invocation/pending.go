package invocation

import (
	"context"
	"sync"
	"time"
)

// Pending 一次调用的未决结果，创建后立即返回给调用方
type Pending struct {
	id         string
	functionID string
	startedAt  time.Time

	mu          sync.RWMutex
	state       State
	stage       Stage
	payload     map[string]any
	result      map[string]any
	err         error
	completedAt time.Time

	done      chan struct{}
	once      sync.Once
	onSettled func(*Pending)
}

func newPending(id, functionID string, onSettled func(*Pending)) *Pending {
	return &Pending{
		id:         id,
		functionID: functionID,
		startedAt:  time.Now(),
		state:      StatePending,
		done:       make(chan struct{}),
		onSettled:  onSettled,
	}
}

func (p *Pending) ID() string           { return p.id }
func (p *Pending) FunctionID() string   { return p.functionID }
func (p *Pending) StartedAt() time.Time { return p.startedAt }

// State 当前状态
func (p *Pending) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// Stage 失败阶段，未失败时为空
func (p *Pending) Stage() Stage {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.stage
}

// Payload 解析完成的参数载荷
func (p *Pending) Payload() map[string]any {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.payload
}

// Done 终止时关闭
func (p *Pending) Done() <-chan struct{} { return p.done }

// Result 终止后的结果与错误
func (p *Pending) Result() (map[string]any, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.result, p.err
}

// Wait 等待调用终止；ctx 取消只结束等待，不影响调用本身
func (p *Pending) Wait(ctx context.Context) (map[string]any, error) {
	select {
	case <-p.done:
		return p.Result()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *Pending) transition(to State) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.state.CanTransition(to) {
		return &TransitionError{From: p.state, To: to}
	}
	p.state = to
	return nil
}

func (p *Pending) setPayload(payload map[string]any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.payload = payload
}

// settle 进入终止状态，回调只触发一次且先于 Done 关闭
func (p *Pending) settle(result map[string]any, err error, stage Stage) bool {
	settled := false
	p.once.Do(func() {
		p.mu.Lock()
		if err != nil {
			p.state = StateFailed
			p.stage = stage
		} else {
			p.state = StateCompleted
		}
		p.result = result
		p.err = err
		p.completedAt = time.Now()
		p.mu.Unlock()

		if p.onSettled != nil {
			p.onSettled(p)
		}
		close(p.done)
		settled = true
	})
	return settled
}

// Duration 已耗时（终止后为总耗时）
func (p *Pending) Duration() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.completedAt.IsZero() {
		return time.Since(p.startedAt)
	}
	return p.completedAt.Sub(p.startedAt)
}
