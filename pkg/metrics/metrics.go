package metrics

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// 全局 Registry，供 API 注册与暴露
var DefaultRegistry = prometheus.NewRegistry()

func init() {
	DefaultRegistry.MustRegister(
		RouterRequests, RouterLatency, RouterConfidence, CalibrationECE,
		ContextFuseLatency, SummarizeTotal, BudgetTrimSteps, BudgetExceededTotal,
		SnapshotTotal, RehydrateTotal,
		OfferCacheTotal, OfferQueryLatency,
		TurnDuration, BreakerState,
	)
}

// RouterRequests 路由请求总数（按 domain 与 policy action）
var RouterRequests = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ichat_router_requests_total",
		Help: "路由请求总数（按 domain 与 action）",
	},
	[]string{"domain", "action"}, // action: dispatch | clarify | stick
)

// RouterLatency 路由分类耗时（秒）
var RouterLatency = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "ichat_router_latency_seconds",
		Help:    "路由分类耗时（秒）",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"domain"},
)

// RouterConfidence 校准后置信度分布（按 domain）
var RouterConfidence = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "ichat_router_confidence",
		Help:    "校准后置信度分布",
		Buckets: prometheus.LinearBuckets(0, 0.1, 11),
	},
	[]string{"domain"},
)

// CalibrationECE 最近一次重校准的 Expected Calibration Error
var CalibrationECE = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "ichat_calibration_ece",
		Help: "最近一次重校准的 ECE",
	},
)

// ContextFuseLatency 上下文融合耗时（秒）
var ContextFuseLatency = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "ichat_context_fuse_latency_seconds",
		Help:    "上下文融合耗时（秒）",
		Buckets: prometheus.DefBuckets,
	},
)

// SummarizeTotal 滚动摘要触发次数
var SummarizeTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "ichat_summarize_total",
		Help: "滚动摘要触发次数",
	},
)

// BudgetTrimSteps Token 预算裁剪各步骤触发次数
var BudgetTrimSteps = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ichat_budget_trim_steps_total",
		Help: "Token 预算裁剪步骤触发次数",
	},
	[]string{"step"}, // halve_recall | summarize_history | truncate_scratch
)

// BudgetExceededTotal 裁剪后仍超预算的次数（非致命告警）
var BudgetExceededTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "ichat_budget_exceeded_total",
		Help: "裁剪后仍超 Token 预算的次数",
	},
)

// SnapshotTotal 快照写入次数（按结果）
var SnapshotTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ichat_snapshot_total",
		Help: "会话快照写入次数",
	},
	[]string{"status"}, // ok | error
)

// RehydrateTotal 快照恢复次数（按结果）
var RehydrateTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ichat_rehydrate_total",
		Help: "会话快照恢复次数",
	},
	[]string{"status"}, // ok | miss | corrupt | error
)

// OfferCacheTotal 报盘缓存查询次数（按结果）
var OfferCacheTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ichat_offer_cache_total",
		Help: "库存摘要缓存查询次数",
	},
	[]string{"result"}, // hit | miss | error
)

// OfferQueryLatency 库存聚合查询耗时（秒，仅 cache miss 路径）
var OfferQueryLatency = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "ichat_offer_query_latency_seconds",
		Help:    "库存聚合查询耗时（秒）",
		Buckets: prometheus.DefBuckets,
	},
)

// TurnDuration 单轮编排总耗时（秒，按 domain）
var TurnDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "ichat_turn_duration_seconds",
		Help:    "单轮编排总耗时（秒）",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"domain"},
)

// BreakerState 熔断器状态（0=closed 1=half-open 2=open）
var BreakerState = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "ichat_breaker_state",
		Help: "熔断器状态（0=closed 1=half-open 2=open）",
	},
	[]string{"name"},
)

// WritePrometheus 将 Prometheus 文本格式写入 w（供 Hertz 复用）
func WritePrometheus(w io.Writer) error {
	metrics, err := DefaultRegistry.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.FmtText)
	for _, mf := range metrics {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
