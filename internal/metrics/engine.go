package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Engine Prometheus metrics.
var (
	QueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dmodel",
			Name:      "queries_total",
			Help:      "Total number of executed queries",
		},
		[]string{"status"},
	)

	QueryDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "dmodel",
			Name:      "query_duration_seconds",
			Help:      "Query execution duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
	)

	ObjectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dmodel",
			Name:      "objects_total",
			Help:      "Total number of object lookups",
		},
		[]string{"status"}, // "ok" / "not_found" / "error"
	)

	ShardOpenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dmodel",
			Name:      "shard_open_total",
			Help:      "Shard open attempts by format",
		},
		[]string{"format", "status"},
	)

	ResultCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dmodel",
			Name:      "result_cache_total",
			Help:      "Query result cache hits and misses",
		},
		[]string{"result"}, // "hit" / "miss"
	)
)

var engineMetricsRegistered bool

// RegisterEngineMetrics registers Prometheus engine metrics. Must be called once from main.
func RegisterEngineMetrics() {
	if engineMetricsRegistered {
		return
	}
	prometheus.MustRegister(QueriesTotal)
	prometheus.MustRegister(QueryDuration)
	prometheus.MustRegister(ObjectsTotal)
	prometheus.MustRegister(ShardOpenTotal)
	prometheus.MustRegister(ResultCacheTotal)
	engineMetricsRegistered = true
}

// Status maps an operation error to a metric status label.
func Status(err, notFound error) string {
	switch {
	case err == nil:
		return "ok"
	case notFound != nil && errors.Is(err, notFound):
		return "not_found"
	default:
		return "error"
	}
}
