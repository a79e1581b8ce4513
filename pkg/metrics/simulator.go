package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// SimulatorMetrics contains Prometheus metrics for the device simulator.
type SimulatorMetrics struct {
	DevicesRegistered prometheus.Counter
	SamplesPublished  prometheus.Counter
	PublishFailures   *prometheus.CounterVec
}

// NewSimulatorMetrics creates and registers simulator metrics.
func NewSimulatorMetrics(namespace string) *SimulatorMetrics {
	m := &SimulatorMetrics{
		DevicesRegistered: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "simulator",
				Name:      "devices_registered_total",
				Help:      "Total number of simulated devices registered",
			},
		),
		SamplesPublished: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "simulator",
				Name:      "samples_published_total",
				Help:      "Total number of simulated samples published",
			},
		),
		PublishFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "simulator",
				Name:      "publish_failures_total",
				Help:      "Total number of failed sample publishes",
			},
			[]string{"reason"},
		),
	}

	MustRegister(m.DevicesRegistered, m.SamplesPublished, m.PublishFailures)

	return m
}
