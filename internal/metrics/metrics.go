package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the prometheus collectors for the presence subsystem. A nil
// *Metrics is valid and records nothing, which keeps unit tests free of
// collector plumbing.
type Metrics struct {
	connectionsOpen   prometheus.Gauge
	deliveries        *prometheus.CounterVec
	evictions         prometheus.Counter
	handshakeFailures prometheus.Counter
}

// New registers the collectors with the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		connectionsOpen: factory.NewGauge(prometheus.GaugeOpts{
			Name: "presence_connections_open",
			Help: "Number of live websocket connections.",
		}),
		deliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "presence_deliveries_total",
			Help: "Event deliveries attempted per connection, by result.",
		}, []string{"result"}),
		evictions: factory.NewCounter(prometheus.CounterOpts{
			Name: "presence_evictions_total",
			Help: "Connections evicted by the liveness monitor.",
		}),
		handshakeFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "presence_handshake_failures_total",
			Help: "Websocket handshakes rejected before registration.",
		}),
	}
}

func (m *Metrics) ConnOpened() {
	if m == nil {
		return
	}
	m.connectionsOpen.Inc()
}

func (m *Metrics) ConnClosed() {
	if m == nil {
		return
	}
	m.connectionsOpen.Dec()
}

func (m *Metrics) DeliveryOK() {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues("ok").Inc()
}

func (m *Metrics) DeliveryDropped() {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues("dropped").Inc()
}

func (m *Metrics) Evicted() {
	if m == nil {
		return
	}
	m.evictions.Inc()
}

func (m *Metrics) HandshakeRejected() {
	if m == nil {
		return
	}
	m.handshakeFailures.Inc()
}
