// Package metrics exposes upstream, gate, read and quota counters in the
// Prometheus format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "fixturegate"

// Metrics holds the collectors. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	upstreamCalls *prometheus.CounterVec
	gateDecisions *prometheus.CounterVec
	reads         *prometheus.CounterVec
	warmRuns      *prometheus.CounterVec

	quotaCalls  prometheus.Gauge
	quotaMax    prometheus.Gauge
	quotaLocked prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		upstreamCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_calls_total",
			Help:      "Upstream provider calls by snapshot kind and result class.",
		}, []string{"kind", "class"}),
		gateDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_decisions_total",
			Help:      "Fetch gate decisions by reason (allowed for issued permits).",
		}, []string{"reason"}),
		reads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_reads_total",
			Help:      "Snapshot reads by served source and state.",
		}, []string{"source", "state"}),
		warmRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "warm_keys_total",
			Help:      "Keys visited by warm runs, by whether they were refreshed.",
		}, []string{"refreshed"}),
		quotaCalls: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "quota_calls_made",
			Help:      "Upstream calls made today.",
		}),
		quotaMax: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "quota_max_calls",
			Help:      "Daily upstream call ceiling.",
		}),
		quotaLocked: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "quota_locked",
			Help:      "1 when the provider's daily limit locked today's budget.",
		}),
	}
	reg.MustRegister(
		m.upstreamCalls, m.gateDecisions, m.reads, m.warmRuns,
		m.quotaCalls, m.quotaMax, m.quotaLocked,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) UpstreamCall(kind, class string) {
	if m == nil {
		return
	}
	m.upstreamCalls.WithLabelValues(kind, class).Inc()
}

// GateDecision records a gate outcome; an empty reason counts as allowed.
func (m *Metrics) GateDecision(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "allowed"
	}
	m.gateDecisions.WithLabelValues(reason).Inc()
}

func (m *Metrics) Read(source, state string) {
	if m == nil {
		return
	}
	m.reads.WithLabelValues(source, state).Inc()
}

func (m *Metrics) WarmKey(refreshed bool) {
	if m == nil {
		return
	}
	label := "false"
	if refreshed {
		label = "true"
	}
	m.warmRuns.WithLabelValues(label).Inc()
}

func (m *Metrics) Quota(callsMade, maxCalls int, locked bool) {
	if m == nil {
		return
	}
	m.quotaCalls.Set(float64(callsMade))
	m.quotaMax.Set(float64(maxCalls))
	if locked {
		m.quotaLocked.Set(1)
	} else {
		m.quotaLocked.Set(0)
	}
}
