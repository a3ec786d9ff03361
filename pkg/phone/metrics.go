package phone

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts user actions, their failures and client events.
type Metrics struct {
	actions  *prometheus.CounterVec
	failures *prometheus.CounterVec
	events   *prometheus.CounterVec
}

// NewMetrics creates the phone counters and registers them with reg when
// it is not nil.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "webphone",
			Name:      "actions_total",
			Help:      "User actions handled by the phone.",
		}, []string{"action"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "webphone",
			Name:      "failures_total",
			Help:      "User actions that ended in an error.",
		}, []string{"action"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "webphone",
			Name:      "events_total",
			Help:      "Lifecycle events received from the signaling client.",
		}, []string{"event"}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.actions, m.failures, m.events} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) action(name string) {
	m.actions.WithLabelValues(name).Inc()
}

func (m *Metrics) failure(name string) {
	m.failures.WithLabelValues(name).Inc()
}

func (m *Metrics) event(name string) {
	m.events.WithLabelValues(name).Inc()
}
