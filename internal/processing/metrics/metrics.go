package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ItemsProcessed tracks terminal outcomes per status and error kind
	ItemsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviewer_items_processed_total",
			Help: "Total number of work items that reached a terminal outcome",
		},
		[]string{"status", "kind"},
	)

	// ClassifyAttempts tracks classifier calls per result kind ("ok" on success)
	ClassifyAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviewer_classify_attempts_total",
			Help: "Total number of classification calls",
		},
		[]string{"model", "result"},
	)

	// ClassifyLatency tracks classification call latency
	ClassifyLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reviewer_classify_latency_seconds",
			Help:    "Classification call latency in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 160},
		},
		[]string{"model"},
	)

	// InFlight tracks classification calls currently holding a permit
	InFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reviewer_classify_in_flight",
			Help: "Classification calls currently in flight",
		},
	)

	// LLMCost tracks spend in USD
	LLMCost = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviewer_llm_cost_usd_total",
			Help: "Accumulated LLM spend in USD",
		},
		[]string{"model"},
	)

	// CycleDuration tracks full cycle wall-clock time
	CycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reviewer_cycle_duration_seconds",
			Help:    "Duration of a fetch-dispatch-persist cycle",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
	)

	// CycleBatchSize tracks the number of items fetched by the last cycle
	CycleBatchSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reviewer_cycle_batch_size",
			Help: "Number of pending items fetched by the last cycle",
		},
	)

	// StoreErrors tracks fetch and write-back failures
	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviewer_store_errors_total",
			Help: "Total number of store failures",
		},
		[]string{"op"},
	)

	// DBConnectionPoolUsage tracks the percentage of used connections in the pool
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reviewer_db_connection_pool_usage_percent",
			Help: "Percentage of open connections relative to the maximum",
		},
	)
)
