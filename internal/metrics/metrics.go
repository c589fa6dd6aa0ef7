package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// API 指标
var (
	// APIRequestsTotal API 请求总数
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_api_requests_total",
			Help: "API 请求总数",
		},
		[]string{"method", "path", "status"},
	)

	// APIRequestDuration API 请求延迟（秒）
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_api_request_duration_seconds",
			Help:    "API 请求延迟分布",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// 流水线业务指标
var (
	// OpportunitiesDiscovered 发现的机会总数
	OpportunitiesDiscovered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_opportunities_discovered_total",
			Help: "发现的机会总数",
		},
		[]string{"source"},
	)

	// EvaluationsTotal 机会评估总数
	EvaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_evaluations_total",
			Help: "机会评估总数",
		},
		[]string{"decision"}, // approved / rejected / error
	)

	// EvaluationDuration 单次评估耗时（秒）
	EvaluationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pipeline_evaluation_duration_seconds",
			Help:    "单次评估耗时分布",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
		},
	)

	// ProductsBuilt 构建完成的产品总数
	ProductsBuilt = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_products_built_total",
			Help: "构建完成的产品总数",
		},
		[]string{"status"}, // success / failed
	)

	// BuildDuration 构建全流程耗时（秒）
	BuildDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pipeline_build_duration_seconds",
			Help:    "构建全流程耗时分布",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	// HealthChecksTotal 健康探测总数
	HealthChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_health_checks_total",
			Help: "健康探测总数",
		},
		[]string{"status"}, // healthy / degraded / down
	)

	// PostsRecorded 已记录的发布表现总数
	PostsRecorded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pipeline_posts_recorded_total",
			Help: "已记录的发布表现总数",
		},
	)

	// ToolInvocationsTotal 工具调用总数
	ToolInvocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_tool_invocations_total",
			Help: "工具调用总数",
		},
		[]string{"worker", "operation", "status"},
	)
)
