package bridge

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts bridge traffic. A nil *Metrics records nothing.
type Metrics struct {
	outbound  *prometheus.CounterVec
	inbound   *prometheus.CounterVec
	replies   *prometheus.CounterVec
	lifecycle *prometheus.CounterVec
	connected prometheus.Gauge
}

// NewMetrics creates the collectors and registers them on reg when non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		outbound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatbridge",
			Name:      "outbound_events_total",
			Help:      "Local events relayed to the remote party, by event and result.",
		}, []string{"event", "result"}),
		inbound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatbridge",
			Name:      "inbound_events_total",
			Help:      "Remote events handled, by kind and result.",
		}, []string{"kind", "result"}),
		replies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatbridge",
			Name:      "replies_total",
			Help:      "Replies to remote requests, by result.",
		}, []string{"result"}),
		lifecycle: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatbridge",
			Name:      "lifecycle_notifications_total",
			Help:      "Transport lifecycle notifications, by kind.",
		}, []string{"kind"}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chatbridge",
			Name:      "connected",
			Help:      "1 while the transport is connected.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.outbound, m.inbound, m.replies, m.lifecycle, m.connected)
	}
	return m
}

func (m *Metrics) outboundEvent(event, result string) {
	if m == nil {
		return
	}
	m.outbound.WithLabelValues(event, result).Inc()
}

func (m *Metrics) inboundEvent(kind, result string) {
	if m == nil {
		return
	}
	m.inbound.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) reply(result string) {
	if m == nil {
		return
	}
	m.replies.WithLabelValues(result).Inc()
}

func (m *Metrics) lifecycleEvent(kind string) {
	if m == nil {
		return
	}
	m.lifecycle.WithLabelValues(kind).Inc()
}

func (m *Metrics) setConnected(up bool) {
	if m == nil {
		return
	}
	if up {
		m.connected.Set(1)
		return
	}
	m.connected.Set(0)
}
