package bridge

import "github.com/prometheus/client_golang/prometheus"

// metrics are ambient observability beyond spec.md's explicit scope,
// carried in the teacher's idiom (the teacher wires prometheus/client_golang
// app-wide). Each Bridge registers its own metrics against the Registerer
// supplied in Config — never the global DefaultRegisterer directly — so
// that multiple Bridges (as in tests) never collide on duplicate
// registration.
type metrics struct {
	connected    prometheus.Gauge
	reconnects   prometheus.Counter
	pendingCalls prometheus.Gauge
	callsTotal   *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "silly",
			Subsystem: "bridge",
			Name:      "connected",
			Help:      "1 if the bridge currently holds a live connection to the aria2 daemon.",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "silly",
			Subsystem: "bridge",
			Name:      "reconnect_attempts_total",
			Help:      "Total connection attempts made to the aria2 daemon, including the first.",
		}),
		pendingCalls: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "silly",
			Subsystem: "bridge",
			Name:      "pending_calls",
			Help:      "In-flight RPC calls awaiting a response from the daemon.",
		}),
		callsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "silly",
			Subsystem: "bridge",
			Name:      "calls_total",
			Help:      "RPC responses by outcome (ok or daemon_error); the method label is left empty.",
		}, []string{"method", "outcome"}),
	}

	reg.MustRegister(m.connected, m.reconnects, m.pendingCalls, m.callsTotal)
	return m
}
