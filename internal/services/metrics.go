package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// cacheLookups counts cache reads by kind and result (hit, miss, error)
	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "insight_cache_lookups_total",
		Help: "Insight cache lookups by kind and result",
	}, []string{"kind", "result"})

	// cacheWrites counts cache writes by kind and result (ok, error)
	cacheWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "insight_cache_writes_total",
		Help: "Insight cache writes by kind and result",
	}, []string{"kind", "result"})

	// insightGenerations counts generated insight texts by source
	insightGenerations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "insight_text_generations_total",
		Help: "Insight texts produced, labelled by source (model, template)",
	}, []string{"source"})

	// insightFallbacks counts model failures that fell back to the template
	insightFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "insight_model_fallbacks_total",
		Help: "Model-backed insight failures recovered by the template",
	}, []string{"provider"})

	// advisoryDuration tracks advisory evaluation latency
	advisoryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "insight_advisory_duration_seconds",
		Help:    "Advisory evaluation duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~16s
	}, []string{"kind"})

	// reportRenders counts report render attempts by result
	reportRenders = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "insight_report_renders_total",
		Help: "Report render attempts by result",
	}, []string{"result"})

	// deltaPublishes counts notifier deliveries by transport and result
	deltaPublishes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "insight_delta_publishes_total",
		Help: "Delta publishes by transport and result",
	}, []string{"transport", "result"})

	// deltaDrops counts deltas dropped for slow subscribers
	deltaDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "insight_delta_drops_total",
		Help: "Deltas dropped because a subscriber buffer was full",
	}, []string{"transport"})

	// statusTransitions counts committed work item transitions
	statusTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "insight_status_transitions_total",
		Help: "Committed work item status transitions by target status",
	}, []string{"status"})
)
