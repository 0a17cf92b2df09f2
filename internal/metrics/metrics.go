// Package metrics exposes gateway counters for scraping.
package metrics

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the gateway collectors on their own registry.
type Metrics struct {
	Registry *prometheus.Registry

	ActionsTotal     *prometheus.CounterVec
	CustodyTotal     *prometheus.CounterVec
	CommitsTotal     *prometheus.CounterVec
	MonitorChecks    *prometheus.CounterVec
	VenueCallSeconds *prometheus.HistogramVec
}

// New registers the collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		ActionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sessiongate",
			Name:      "actions_total",
			Help:      "Actions evaluated, by operation and outcome code.",
		}, []string{"operation", "code"}),
		CustodyTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sessiongate",
			Name:      "custody_transitions_total",
			Help:      "Custody transitions, by target state.",
		}, []string{"state"}),
		CommitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sessiongate",
			Name:      "commits_total",
			Help:      "Fast-layer commits, by whether the base layer changed.",
		}, []string{"changed"}),
		MonitorChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sessiongate",
			Name:      "monitor_checks_total",
			Help:      "Monitor checkpoints, by range transition.",
		}, []string{"transition"}),
		VenueCallSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sessiongate",
			Name:      "venue_call_seconds",
			Help:      "Venue call latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation", "result"}),
	}
	reg.MustRegister(
		m.ActionsTotal,
		m.CustodyTotal,
		m.CommitsTotal,
		m.MonitorChecks,
		m.VenueCallSeconds,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveWatchers reports the number of open watch connections at scrape time.
func (m *Metrics) ObserveWatchers(count func() int) {
	m.Registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "sessiongate",
		Name:      "watch_connections",
		Help:      "Open event-stream connections.",
	}, func() float64 { return float64(count()) }))
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
}
