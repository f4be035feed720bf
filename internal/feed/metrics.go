package feed

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics names as constants for consistency.
const (
	MetricEventsReceived  = "feed_events_received_total"
	MetricEventsMalformed = "feed_events_malformed_total"
	MetricEventsPublished = "feed_events_published_total"
	MetricConnects        = "feed_connects_total"
	MetricReconnects      = "feed_reconnects_total"
	MetricExhausted       = "feed_reconnect_exhausted_total"
	MetricClients         = "feed_clients"
)

// Metrics contains Prometheus metrics for the feed client and hub.
type Metrics struct {
	eventsReceived  *prometheus.CounterVec
	eventsMalformed prometheus.Counter
	eventsPublished *prometheus.CounterVec
	connects        prometheus.Counter
	reconnects      prometheus.Counter
	exhausted       prometheus.Counter
	clients         prometheus.Gauge
}

// NewMetrics creates and returns a new Metrics instance with all collectors initialized.
// The metrics are not registered; call Register to register them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		eventsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricEventsReceived,
			Help: "Total number of complete feed events received, by event name",
		}, []string{"event"}),
		eventsMalformed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricEventsMalformed,
			Help: "Total number of feed frames dropped as malformed",
		}),
		eventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricEventsPublished,
			Help: "Total number of feed events fanned out to subscribers, by event name",
		}, []string{"event"}),
		connects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricConnects,
			Help: "Total number of successful feed connections",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricReconnects,
			Help: "Total number of scheduled feed reconnects",
		}),
		exhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricExhausted,
			Help: "Total number of times the feed stream gave up reconnecting",
		}),
		clients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricClients,
			Help: "Number of websocket clients subscribed to the feed",
		}),
	}
}

// Collectors returns all collectors for registration.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.eventsReceived,
		m.eventsMalformed,
		m.eventsPublished,
		m.connects,
		m.reconnects,
		m.exhausted,
		m.clients,
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

// IncEventsReceived increments the received counter for an event name.
func (m *Metrics) IncEventsReceived(event string) {
	m.eventsReceived.WithLabelValues(event).Inc()
}

// IncMalformed increments the malformed frame counter.
func (m *Metrics) IncMalformed() {
	m.eventsMalformed.Inc()
}

// IncEventsPublished increments the fan-out counter for an event name.
func (m *Metrics) IncEventsPublished(event string) {
	m.eventsPublished.WithLabelValues(event).Inc()
}

// IncConnects increments the successful connection counter.
func (m *Metrics) IncConnects() {
	m.connects.Inc()
}

// IncReconnects increments the scheduled reconnect counter.
func (m *Metrics) IncReconnects() {
	m.reconnects.Inc()
}

// IncExhausted increments the exhaustion counter.
func (m *Metrics) IncExhausted() {
	m.exhausted.Inc()
}

// SetClients sets the subscriber gauge.
func (m *Metrics) SetClients(n int) {
	m.clients.Set(float64(n))
}
