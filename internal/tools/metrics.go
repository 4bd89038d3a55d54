package tools

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// CallMetrics 远程函数调用统计
type CallMetrics struct {
	calls    map[string]*CallStats
	mu       sync.RWMutex
	recorder MetricsRecorder
}

// CallStats 单个调用路径的统计数据
type CallStats struct {
	Path          string
	TotalCalls    atomic.Int64
	SuccessCalls  atomic.Int64
	FailedCalls   atomic.Int64
	TotalDuration atomic.Int64 // 纳秒
	MaxDuration   atomic.Int64
	LastCalled    atomic.Int64 // Unix 时间戳
	LastError     atomic.Value // string
}

// MetricsRecorder 指标记录接口（对接 Prometheus）
type MetricsRecorder interface {
	RecordRemoteCall(path string, success bool, duration time.Duration)
}

// NewCallMetrics 创建调用统计
func NewCallMetrics(recorder MetricsRecorder) *CallMetrics {
	return &CallMetrics{
		calls:    make(map[string]*CallStats),
		recorder: recorder,
	}
}

func (m *CallMetrics) getOrCreateStats(path string) *CallStats {
	m.mu.RLock()
	stats, ok := m.calls[path]
	m.mu.RUnlock()

	if ok {
		return stats
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// 双重检查
	if stats, ok = m.calls[path]; ok {
		return stats
	}
	stats = &CallStats{Path: path}
	m.calls[path] = stats
	return stats
}

// RecordCall 记录一次调用
func (m *CallMetrics) RecordCall(path string, success bool, duration time.Duration, err error) {
	stats := m.getOrCreateStats(path)

	stats.TotalCalls.Add(1)
	if success {
		stats.SuccessCalls.Add(1)
	} else {
		stats.FailedCalls.Add(1)
		if err != nil {
			stats.LastError.Store(err.Error())
		}
	}

	durationNs := duration.Nanoseconds()
	stats.TotalDuration.Add(durationNs)
	stats.LastCalled.Store(time.Now().Unix())
	for {
		old := stats.MaxDuration.Load()
		if durationNs <= old || stats.MaxDuration.CompareAndSwap(old, durationNs) {
			break
		}
	}

	if m.recorder != nil {
		m.recorder.RecordRemoteCall(path, success, duration)
	}
}

// CallStatsSnapshot 统计快照
type CallStatsSnapshot struct {
	Path         string        `json:"path"`
	TotalCalls   int64         `json:"total_calls"`
	SuccessCalls int64         `json:"success_calls"`
	FailedCalls  int64         `json:"failed_calls"`
	SuccessRate  float64       `json:"success_rate"`
	AvgDuration  time.Duration `json:"avg_duration"`
	MaxDuration  time.Duration `json:"max_duration"`
	LastCalled   *time.Time    `json:"last_called,omitempty"`
	LastError    string        `json:"last_error,omitempty"`
}

// GetStats 获取单个路径统计
func (m *CallMetrics) GetStats(path string) *CallStatsSnapshot {
	m.mu.RLock()
	stats, ok := m.calls[path]
	m.mu.RUnlock()
	if !ok {
		return nil
	}
	return snapshotStats(stats)
}

// GetAllStats 获取全部统计（按路径排序）
func (m *CallMetrics) GetAllStats() []*CallStatsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*CallStatsSnapshot, 0, len(m.calls))
	for _, stats := range m.calls {
		result = append(result, snapshotStats(stats))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Path < result[j].Path })
	return result
}

func snapshotStats(stats *CallStats) *CallStatsSnapshot {
	total := stats.TotalCalls.Load()
	success := stats.SuccessCalls.Load()

	snapshot := &CallStatsSnapshot{
		Path:         stats.Path,
		TotalCalls:   total,
		SuccessCalls: success,
		FailedCalls:  stats.FailedCalls.Load(),
		MaxDuration:  time.Duration(stats.MaxDuration.Load()),
	}
	if total > 0 {
		snapshot.SuccessRate = float64(success) / float64(total)
		snapshot.AvgDuration = time.Duration(stats.TotalDuration.Load() / total)
	}
	if lastCalled := stats.LastCalled.Load(); lastCalled > 0 {
		t := time.Unix(lastCalled, 0)
		snapshot.LastCalled = &t
	}
	if lastErr, ok := stats.LastError.Load().(string); ok {
		snapshot.LastError = lastErr
	}
	return snapshot
}
