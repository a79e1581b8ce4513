package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// QueryMetrics contains Prometheus metrics for the dashboard fan-out engine.
type QueryMetrics struct {
	QueriesTotal    *prometheus.CounterVec
	QueryDuration   *prometheus.HistogramVec
	FetchesTotal    *prometheus.CounterVec
	PartialFailures prometheus.Counter
	DevicesPerQuery prometheus.Histogram
}

// NewQueryMetrics creates and registers fan-out engine metrics.
func NewQueryMetrics(namespace string) *QueryMetrics {
	m := &QueryMetrics{
		QueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "query",
				Name:      "queries_total",
				Help:      "Total number of dashboard queries",
			},
			[]string{"operation", "status"},
		),
		QueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "query",
				Name:      "query_duration_seconds",
				Help:      "Duration of dashboard queries",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		FetchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "query",
				Name:      "device_fetches_total",
				Help:      "Total number of per-device sample fetches",
			},
			[]string{"status"},
		),
		PartialFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "query",
				Name:      "partial_failures_total",
				Help:      "Dashboard queries that returned at least one device with degraded data",
			},
		),
		DevicesPerQuery: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "query",
				Name:      "devices_per_query",
				Help:      "Number of authorized devices joined per dashboard query",
				Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100},
			},
		),
	}

	MustRegister(
		m.QueriesTotal,
		m.QueryDuration,
		m.FetchesTotal,
		m.PartialFailures,
		m.DevicesPerQuery,
	)

	return m
}
