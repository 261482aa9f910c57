package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Prom bundles the Prometheus collectors exported by the serve command.
// Each instance owns its registry so tests can create independent sets.
type Prom struct {
	Registry *prometheus.Registry

	fetchTotal      *prometheus.CounterVec
	refreshDuration prometheus.Histogram
	staleDiscarded  prometheus.Counter
	skippedTicks    prometheus.Counter
	insights        *prometheus.GaugeVec
	records         *prometheus.GaugeVec
}

// NewProm creates and registers the collectors on a fresh registry.
func NewProm() *Prom {
	p := &Prom{
		Registry: prometheus.NewRegistry(),
		fetchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bmo_fetch_total",
			Help: "Module fetches by outcome.",
		}, []string{"module", "outcome"}),
		refreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bmo_refresh_duration_seconds",
			Help:    "Time to fetch and analyze all modules.",
			Buckets: prometheus.DefBuckets,
		}),
		staleDiscarded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bmo_stale_responses_discarded_total",
			Help: "Refresh results dropped because a newer request was issued.",
		}),
		skippedTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bmo_refresh_ticks_skipped_total",
			Help: "Polling ticks skipped while a fetch was in flight.",
		}),
		insights: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bmo_insights",
			Help: "Current insights by module and kind.",
		}, []string{"module", "kind"}),
		records: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bmo_records",
			Help: "Records in the latest snapshot by module.",
		}, []string{"module"}),
	}
	p.Registry.MustRegister(p.fetchTotal, p.refreshDuration, p.staleDiscarded, p.skippedTicks, p.insights, p.records)
	return p
}

// ObserveFetch counts one module fetch. outcome is "ok", "error" or "cached".
func (p *Prom) ObserveFetch(module, outcome string) {
	if p == nil {
		return
	}
	p.fetchTotal.WithLabelValues(module, outcome).Inc()
}

// ObserveRefresh records one full refresh cycle.
func (p *Prom) ObserveRefresh(d time.Duration) {
	if p == nil {
		return
	}
	p.refreshDuration.Observe(d.Seconds())
}

// StaleDiscarded counts a dropped out-of-order result.
func (p *Prom) StaleDiscarded() {
	if p == nil {
		return
	}
	p.staleDiscarded.Inc()
}

// TickSkipped counts a polling tick skipped because of an in-flight fetch.
func (p *Prom) TickSkipped() {
	if p == nil {
		return
	}
	p.skippedTicks.Inc()
}

// SetInsights replaces the insight gauge for one module.
func (p *Prom) SetInsights(module string, byKind map[string]int) {
	if p == nil {
		return
	}
	p.insights.DeletePartialMatch(prometheus.Labels{"module": module})
	for kind, n := range byKind {
		p.insights.WithLabelValues(module, kind).Set(float64(n))
	}
}

// SetRecords sets the record gauge for one module.
func (p *Prom) SetRecords(module string, n int) {
	if p == nil {
		return
	}
	p.records.WithLabelValues(module).Set(float64(n))
}
