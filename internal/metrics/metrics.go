// Package metrics 提供 Prometheus 指标采集功能
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "idolchat"

// 消息提交结果
const (
	OutcomeSuccess       = "success"
	OutcomeFallback      = "fallback"
	OutcomeEmpty         = "rejected_empty"
	OutcomeBusy          = "rejected_busy"
	OutcomeDiscarded     = "discarded"
	OutcomeHistoryRemote = "remote"
	OutcomeHistoryLocal  = "local"
)

var (
	// 会话控制器指标
	SubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "submissions_total",
			Help:      "Chat submissions by outcome",
		},
		[]string{"outcome"},
	)

	GatewayErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "errors_total",
			Help:      "Chat gateway failures by kind",
		},
		[]string{"kind"},
	)

	GatewayDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "request_duration_seconds",
			Help:      "Chat gateway round trip in seconds",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)

	FallbackWriteErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "history",
			Name:      "fallback_write_errors_total",
			Help:      "Failed local history appends on the fallback path",
		},
	)

	HistoryReadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "history",
			Name:      "reads_total",
			Help:      "History retrievals by source",
		},
		[]string{"source"},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "active",
			Help:      "Sessions currently held by the client app",
		},
	)

	// 后端聊天服务指标
	BackendRepliesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "replies_total",
			Help:      "Backend replies by emotion label",
		},
		[]string{"emotion"},
	)

	BackendErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "errors_total",
			Help:      "Backend reply generation failures",
		},
	)

	BackendPrunedTurnsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "pruned_turns_total",
			Help:      "History turns removed by the retention sweep",
		},
	)

	BackendMoodTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "mood_transitions_total",
			Help:      "Trigger-driven mood transitions by trigger",
		},
		[]string{"trigger"},
	)
)
