package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// ConsumerMetrics contains Prometheus metrics for the MQ ingest consumer.
type ConsumerMetrics struct {
	MessagesTotal      *prometheus.CounterVec
	Errors             *prometheus.CounterVec
	ProcessingDuration *prometheus.HistogramVec
}

// NewConsumerMetrics creates and registers ingest consumer metrics.
func NewConsumerMetrics(namespace string) *ConsumerMetrics {
	m := &ConsumerMetrics{
		MessagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "consumer",
				Name:      "messages_total",
				Help:      "Total number of messages consumed",
			},
			[]string{"queue", "status"},
		),
		Errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "consumer",
				Name:      "errors_total",
				Help:      "Total number of consumer errors",
			},
			[]string{"queue", "error_type"},
		),
		ProcessingDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "consumer",
				Name:      "processing_duration_seconds",
				Help:      "Duration of message processing",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"queue"},
		),
	}

	MustRegister(m.MessagesTotal, m.Errors, m.ProcessingDuration)

	return m
}
