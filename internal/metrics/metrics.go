package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// API 指标
var (
	// APIRequestsTotal API 请求总数
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "actionflow_api_requests_total",
			Help: "API 请求总数",
		},
		[]string{"method", "path", "status"},
	)

	// APIRequestDuration API 请求延迟（秒）
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "actionflow_api_request_duration_seconds",
			Help:    "API 请求延迟分布",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// 动作函数调用指标
var (
	// InvocationsTotal 动作函数调用总数（stage: none/resolution/execution）
	InvocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "actionflow_invocations_total",
			Help: "动作函数调用总数",
		},
		[]string{"function", "status", "stage"},
	)

	// InvocationDuration 动作函数调用耗时（秒）
	InvocationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "actionflow_invocation_duration_seconds",
			Help:    "动作函数调用耗时分布",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"function"},
	)

	// InvocationsRunning 正在执行的调用数
	InvocationsRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "actionflow_invocations_running",
			Help: "正在执行的动作函数调用数",
		},
	)
)

// 类型转换指标
var (
	// ConversionsTotal 转换调用总数（kind: simple/metamodel）
	ConversionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "actionflow_conversions_total",
			Help: "参数类型转换总数",
		},
		[]string{"from", "to", "kind", "status"},
	)

	// RemoteCallsTotal 远程函数 HTTP 调用总数
	RemoteCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "actionflow_remote_calls_total",
			Help: "远程函数调用总数",
		},
		[]string{"path", "status"},
	)

	// RemoteCallDuration 远程函数调用耗时（秒）
	RemoteCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "actionflow_remote_call_duration_seconds",
			Help:    "远程函数调用耗时分布",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		},
		[]string{"path"},
	)
)

// WebSocketConnectionsGauge WebSocket 在线连接数
var WebSocketConnectionsGauge = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "actionflow_ws_connections",
		Help: "WebSocket 在线连接数",
	},
)

// RemoteCallRecorder 将远程调用统计写入 Prometheus
type RemoteCallRecorder struct{}

// RecordRemoteCall 实现 tools.MetricsRecorder
func (RemoteCallRecorder) RecordRemoteCall(path string, success bool, duration time.Duration) {
	RemoteCallsTotal.WithLabelValues(path, statusLabel(success)).Inc()
	RemoteCallDuration.WithLabelValues(path).Observe(duration.Seconds())
}

// RecordConversion 记录一次类型转换
func RecordConversion(from, to, kind string, success bool) {
	ConversionsTotal.WithLabelValues(from, to, kind, statusLabel(success)).Inc()
}

// RecordInvocation 记录一次动作函数调用结果
func RecordInvocation(function, stage string, success bool, duration time.Duration) {
	InvocationsTotal.WithLabelValues(function, statusLabel(success), stage).Inc()
	InvocationDuration.WithLabelValues(function).Observe(duration.Seconds())
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "failed"
}
