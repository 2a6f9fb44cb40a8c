package relay

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts relayed events and rejected joins. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	events     *prometheus.CounterVec
	rejections *prometheus.CounterVec
}

// NewMetrics creates the relay counters and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_events_total",
			Help: "Events broadcast to rooms, by event name.",
		}, []string{"event"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_join_rejections_total",
			Help: "Rejected join-room requests, by error code.",
		}, []string{"code"}),
	}
	reg.MustRegister(m.events, m.rejections)
	return m
}

func (m *Metrics) eventRelayed(event string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(event).Inc()
}

func (m *Metrics) joinRejected(code string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(code).Inc()
}
