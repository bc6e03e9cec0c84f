package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	AskOutcomeCached    = "cached"
	AskOutcomeGenerated = "generated"
	AskOutcomeMeta      = "meta"
	AskOutcomeFollowUp  = "follow_up_guard"

	StageGenerate = "generate"
	StageInsight  = "insight"
	StageEmbed    = "embed"
)

var (
	askTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insightbot_ask_total",
			Help: "Total number of answered questions by outcome.",
		},
		[]string{"outcome"},
	)
	askLatencyMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "insightbot_ask_latency_ms",
			Help:    "End-to-end question answering latency in milliseconds.",
			Buckets: []float64{5, 25, 100, 250, 500, 1000, 2000, 5000, 10000, 30000},
		},
	)
	cacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insightbot_cache_lookups_total",
			Help: "Semantic cache lookups by result (hit, miss, error).",
		},
		[]string{"result"},
	)
	cacheEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "insightbot_cache_entries",
			Help: "Current number of semantic cache entries.",
		},
	)
	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "insightbot_active_sessions",
			Help: "Current number of sessions held in conversation memory.",
		},
	)
	modelFallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insightbot_model_fallbacks_total",
			Help: "Total number of degraded results substituted for failed model or embedding calls.",
		},
		[]string{"stage"},
	)
	queryExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insightbot_query_executions_total",
			Help: "Generated query executions by result (ok, error, rejected, skipped).",
		},
		[]string{"result"},
	)
	queryLatencyMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "insightbot_query_latency_ms",
			Help:    "Generated query execution latency in milliseconds.",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
		},
	)
	datasetReloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insightbot_dataset_reloads_total",
			Help: "Dataset reloads by result (ok, error).",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(
		askTotal,
		askLatencyMs,
		cacheLookupsTotal,
		cacheEntries,
		activeSessions,
		modelFallbacksTotal,
		queryExecutionsTotal,
		queryLatencyMs,
		datasetReloadsTotal,
	)
}

func ObserveAsk(outcome string, elapsed time.Duration) {
	askTotal.WithLabelValues(outcome).Inc()
	askLatencyMs.Observe(float64(elapsed.Milliseconds()))
}

func ObserveCacheLookup(result string) {
	cacheLookupsTotal.WithLabelValues(result).Inc()
}

func ObserveModelFallback(stage string) {
	modelFallbacksTotal.WithLabelValues(stage).Inc()
}

func ObserveQueryExecution(result string, elapsed time.Duration) {
	queryExecutionsTotal.WithLabelValues(result).Inc()
	if elapsed > 0 {
		queryLatencyMs.Observe(float64(elapsed.Milliseconds()))
	}
}

func ObserveDatasetReload(err error) {
	if err != nil {
		datasetReloadsTotal.WithLabelValues("error").Inc()
		return
	}
	datasetReloadsTotal.WithLabelValues("ok").Inc()
}

func SetMemoryGauges(entries, sessions int) {
	if entries < 0 {
		entries = 0
	}
	if sessions < 0 {
		sessions = 0
	}
	cacheEntries.Set(float64(entries))
	activeSessions.Set(float64(sessions))
}
