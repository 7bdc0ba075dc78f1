// Package metrics defines the daemon's prometheus instrumentation.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles the collectors exposed on /metrics. A private registry
// keeps the endpoint free of default Go runtime noise from dependencies.
type Metrics struct {
	Registry *prometheus.Registry

	// Sends counts transport publishes by priority: normal, emergency,
	// redundant (the delayed emergency copies), retry.
	Sends *prometheus.CounterVec
	// TransportEvents counts inbound events by kind.
	TransportEvents *prometheus.CounterVec
	// StatusChanges counts applied delivery transitions by target status.
	StatusChanges *prometheus.CounterVec
	// ConnectedPeers tracks current mesh peer count.
	ConnectedPeers prometheus.Gauge
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "beacon",
			Name:      "sends_total",
			Help:      "Transport publishes issued, by priority.",
		}, []string{"priority"}),
		TransportEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "beacon",
			Name:      "transport_events_total",
			Help:      "Inbound transport events, by kind.",
		}, []string{"kind"}),
		StatusChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "beacon",
			Name:      "status_changes_total",
			Help:      "Applied delivery status transitions, by target status.",
		}, []string{"to"}),
		ConnectedPeers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "beacon",
			Name:      "connected_peers",
			Help:      "Currently connected mesh peers.",
		}),
	}
	m.Registry.MustRegister(m.Sends, m.TransportEvents, m.StatusChanges, m.ConnectedPeers)
	return m
}
