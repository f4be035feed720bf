package statesync

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics names as constants for consistency.
const (
	MetricFacts         = "statesync_facts_total"
	MetricWriteFailures = "statesync_durable_write_failures_total"
	MetricPending       = "statesync_pending_writes"
	MetricReconciled    = "statesync_reconciled_writes_total"
)

const (
	outcomeDelivered = "delivered"
	outcomeDuplicate = "duplicate"
)

// Metrics contains Prometheus metrics for the state sync bus.
type Metrics struct {
	facts         *prometheus.CounterVec
	writeFailures prometheus.Counter
	pending       prometheus.Gauge
	reconciled    prometheus.Counter
}

// NewMetrics creates and returns a new Metrics instance with all collectors initialized.
func NewMetrics() *Metrics {
	return &Metrics{
		facts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricFacts,
			Help: "Total number of published facts by outcome (delivered, duplicate)",
		}, []string{"outcome"}),
		writeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricWriteFailures,
			Help: "Total number of failed durable broadcast status writes",
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricPending,
			Help: "Number of durable writes awaiting reconciliation",
		}),
		reconciled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricReconciled,
			Help: "Total number of durable writes that succeeded on reconciliation",
		}),
	}
}

// Collectors returns all collectors for registration.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.facts, m.writeFailures, m.pending, m.reconciled}
}

// Register registers all metrics with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// IncFacts increments the fact counter for an outcome.
func (m *Metrics) IncFacts(outcome string) {
	m.facts.WithLabelValues(outcome).Inc()
}

// IncWriteFailures increments the durable write failure counter.
func (m *Metrics) IncWriteFailures() {
	m.writeFailures.Inc()
}

// SetPending sets the pending write gauge.
func (m *Metrics) SetPending(n int) {
	m.pending.Set(float64(n))
}

// AddReconciled adds to the reconciled write counter.
func (m *Metrics) AddReconciled(n int) {
	m.reconciled.Add(float64(n))
}
