package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// StoreMetrics contains Prometheus metrics for the telemetry store.
type StoreMetrics struct {
	AppendsTotal          *prometheus.CounterVec
	AppendDuration        prometheus.Histogram
	PartitionsProvisioned prometheus.Counter
	SweepsTotal           prometheus.Counter
	SamplesExpired        prometheus.Counter
}

// NewStoreMetrics creates and registers telemetry store metrics.
func NewStoreMetrics(namespace string) *StoreMetrics {
	m := &StoreMetrics{
		AppendsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "appends_total",
				Help:      "Total number of sample appends",
			},
			[]string{"status"},
		),
		AppendDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "append_duration_seconds",
				Help:      "Duration of sample append operations",
				Buckets:   prometheus.DefBuckets,
			},
		),
		PartitionsProvisioned: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "partitions_provisioned_total",
				Help:      "Total number of per-device partitions created",
			},
		),
		SweepsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "retention_sweeps_total",
				Help:      "Total number of retention sweep runs",
			},
		),
		SamplesExpired: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "samples_expired_total",
				Help:      "Total number of samples removed past the retention horizon",
			},
		),
	}

	MustRegister(
		m.AppendsTotal,
		m.AppendDuration,
		m.PartitionsProvisioned,
		m.SweepsTotal,
		m.SamplesExpired,
	)

	return m
}
