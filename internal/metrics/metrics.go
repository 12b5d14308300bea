// Package metrics exposes the informational counters spec §7/§8 call
// for (orphan_packets, lost_packets) plus reply-registry and discovery
// housekeeping stats as Prometheus collectors, following the counter
// set and /metrics HTTP handler pattern used by the DMRHub and
// facebook-time packs.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector the facade registers. A nil *Metrics is
// a safe no-op receiver for every method, so callers that run without
// metrics enabled don't need to branch.
type Metrics struct {
	OrphanPacketsTotal  *prometheus.CounterVec
	LostPacketsTotal    *prometheus.CounterVec
	ReplyTimeoutsTotal  prometheus.Counter
	RadiosDiscovered    prometheus.Gauge
	SessionsConnected   prometheus.Gauge

	registry *prometheus.Registry
}

// New constructs a Metrics instance registered against a private
// registry (not the global default registry), so a process embedding
// this library as one component among several never collides with
// another package's collector names.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		OrphanPacketsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flexsdr",
			Name:      "orphan_packets_total",
			Help:      "VITA packets dropped because their stream id had no object-graph entry.",
		}, []string{"radio"}),
		LostPacketsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flexsdr",
			Name:      "lost_packets_total",
			Help:      "Packet-count gaps observed on a stream id (spec §4.6 gap detection).",
		}, []string{"radio"}),
		ReplyTimeoutsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flexsdr",
			Name:      "reply_timeouts_total",
			Help:      "Reply-registry entries evicted by the sweep timeout (spec §4.3).",
		}),
		RadiosDiscovered: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "flexsdr",
			Name:      "radios_discovered",
			Help:      "Current size of the discovery service's live radio set.",
		}),
		SessionsConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "flexsdr",
			Name:      "sessions_connected",
			Help:      "Number of radio sessions currently in the Connected state.",
		}),
		registry: reg,
	}
	reg.MustRegister(
		m.OrphanPacketsTotal,
		m.LostPacketsTotal,
		m.ReplyTimeoutsTotal,
		m.RadiosDiscovered,
		m.SessionsConnected,
	)
	return m
}

// Handler returns the /metrics HTTP handler serving this instance's
// private registry, matching the DMRHub CreateMetricsServer pattern but
// left to the caller to mount (the facade has no opinion on HTTP mux
// ownership).
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) AddOrphanPackets(radio string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.OrphanPacketsTotal.WithLabelValues(radio).Add(float64(n))
}

func (m *Metrics) AddLostPackets(radio string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.LostPacketsTotal.WithLabelValues(radio).Add(float64(n))
}

func (m *Metrics) AddReplyTimeouts(n int) {
	if m == nil || n == 0 {
		return
	}
	m.ReplyTimeoutsTotal.Add(float64(n))
}

func (m *Metrics) SetRadiosDiscovered(n int) {
	if m == nil {
		return
	}
	m.RadiosDiscovered.Set(float64(n))
}

func (m *Metrics) SetSessionsConnected(n int) {
	if m == nil {
		return
	}
	m.SessionsConnected.Set(float64(n))
}
