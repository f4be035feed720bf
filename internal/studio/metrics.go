package studio

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics names as constants for consistency.
const (
	MetricTransitions        = "studio_session_transitions_total"
	MetricGoLiveFailures     = "studio_go_live_failures_total"
	MetricCapacityRejections = "studio_capacity_rejections_total"
	MetricTransportLatency   = "studio_transport_call_duration_seconds"
	MetricOpenSessions       = "studio_open_sessions"
)

// Metrics contains Prometheus metrics for studio sessions.
type Metrics struct {
	transitions        *prometheus.CounterVec
	goLiveFailures     prometheus.Counter
	capacityRejections *prometheus.CounterVec
	transportLatency   *prometheus.HistogramVec
	openSessions       prometheus.Gauge
}

// NewMetrics creates and returns a new Metrics instance with all collectors initialized.
// The metrics are not registered; call Register to register them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricTransitions,
			Help: "Total number of session state transitions, by target state",
		}, []string{"state"}),
		goLiveFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricGoLiveFailures,
			Help: "Total number of go-live attempts that failed closed on a transport error",
		}),
		capacityRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricCapacityRejections,
			Help: "Total number of participants rejected for capacity, by role",
		}, []string{"role"}),
		transportLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    MetricTransportLatency,
			Help:    "Duration of media transport calls in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation", "outcome"}),
		openSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricOpenSessions,
			Help: "Number of open studio sessions",
		}),
	}
}

// Collectors returns all collectors for registration.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.transitions,
		m.goLiveFailures,
		m.capacityRejections,
		m.transportLatency,
		m.openSessions,
	}
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

// IncTransitions counts a transition into state.
func (m *Metrics) IncTransitions(state State) {
	m.transitions.WithLabelValues(string(state)).Inc()
}

// IncGoLiveFailures counts a failed go-live.
func (m *Metrics) IncGoLiveFailures() {
	m.goLiveFailures.Inc()
}

// IncCapacityRejections counts a capacity rejection for role.
func (m *Metrics) IncCapacityRejections(role Role) {
	m.capacityRejections.WithLabelValues(string(role)).Inc()
}

// ObserveTransport records the duration of a transport call.
func (m *Metrics) ObserveTransport(op string, d time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.transportLatency.WithLabelValues(op, outcome).Observe(d.Seconds())
}

// SetOpenSessions sets the open session gauge.
func (m *Metrics) SetOpenSessions(n int) {
	m.openSessions.Set(float64(n))
}
