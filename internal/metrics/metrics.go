// Package metrics keeps wgbox's Prometheus collectors and writes them to a
// node-exporter textfile; there is no HTTP listener.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "wgbox"

type Metrics struct {
	registry *prometheus.Registry

	Peers         prometheus.Gauge
	Regenerations prometheus.Counter
	Up            prometheus.Gauge
	AddressDrift  prometheus.Gauge
	StepDuration  *prometheus.HistogramVec
	StepFailures  *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Peers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "peers",
			Help:      "Number of provisioned peers.",
		}),
		Regenerations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "regenerations_total",
			Help:      "Provisioning runs that rewrote keys or configs.",
		}),
		Up: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "up",
			Help:      "1 while the interface, NAT and DNS are applied.",
		}),
		AddressDrift: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "address_drift_peers",
			Help:      "Peers whose client config addresses changed without a config change.",
		}),
		StepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "step_duration_seconds",
			Help:      "Duration of lifecycle steps.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"step", "phase"}),
		StepFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "step_failures_total",
			Help:      "Failed lifecycle steps.",
		}, []string{"step", "phase"}),
	}
	m.registry.MustRegister(m.Peers, m.Regenerations, m.Up, m.AddressDrift, m.StepDuration, m.StepFailures)
	return m
}

// ObserveStep matches lifecycle.Observer.
func (m *Metrics) ObserveStep(step, phase string, elapsed time.Duration, err error) {
	m.StepDuration.WithLabelValues(step, phase).Observe(elapsed.Seconds())
	if err != nil {
		m.StepFailures.WithLabelValues(step, phase).Inc()
	}
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// WriteTextfile atomically replaces path with the current metric values.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
