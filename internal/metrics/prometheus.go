package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logsmith_runs_total",
			Help: "Total pipeline runs by terminal status",
		},
		[]string{"status"},
	)

	RunDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "logsmith_run_duration_seconds",
			Help:    "End-to-end duration of one group run",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300},
		},
		[]string{"status"},
	)

	DocumentsIndexed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logsmith_documents_indexed_total",
			Help: "Documents routed to sinks by outcome",
		},
		[]string{"outcome"},
	)

	SinkErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "logsmith_sink_errors_total",
			Help: "Documents lost to sink transport or index errors",
		},
	)

	OracleCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logsmith_oracle_calls_total",
			Help: "Pattern oracle calls by result",
		},
		[]string{"result"},
	)

	GenerationAttempts = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "logsmith_generation_attempts",
			Help:    "Generation attempts consumed per accepted pattern",
			Buckets: []float64{1, 2, 3, 4, 5},
		},
	)

	ValidationScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "logsmith_validation_score",
			Help:    "Candidate pattern validation scores",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
	)

	BatchFlushDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "logsmith_batch_flush_duration_seconds",
			Help:    "Bulk sink write duration per batch",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"sink_kind"},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logsmith_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logsmith_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)

	GroupsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "logsmith_groups_in_flight",
			Help: "Group pipelines currently running",
		},
	)
)

func Init() {
	prometheus.MustRegister(RunsTotal)
	prometheus.MustRegister(RunDuration)
	prometheus.MustRegister(DocumentsIndexed)
	prometheus.MustRegister(SinkErrors)
	prometheus.MustRegister(OracleCalls)
	prometheus.MustRegister(GenerationAttempts)
	prometheus.MustRegister(ValidationScore)
	prometheus.MustRegister(BatchFlushDuration)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
	prometheus.MustRegister(GroupsInFlight)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
