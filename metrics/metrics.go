// Package metrics exposes Prometheus collectors for report runs.
//
// Usage:
//
//	m := metrics.New()
//	m.RecordRun("completed", 3*time.Second)
//	m.AddPagesSaved(2)
//	http.Handle("/metrics", m.Handler())
//
// All methods are safe to call on a nil *Metrics, so components can take
// an optional recorder without checks.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a registry with the bot's collectors
type Metrics struct {
	registry *prometheus.Registry

	// RunsTotal counts template runs by outcome.
	RunsTotal *prometheus.CounterVec

	// QueryDuration tracks replica query time, successful or not.
	QueryDuration prometheus.Histogram

	// PagesSaved counts report pages and subpages written.
	PagesSaved prometheus.Counter

	// BatchDue counts templates selected by the batch runner.
	BatchDue prometheus.Counter
}

// New creates the collectors on a fresh registry, together with the Go
// runtime and process collectors
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sdzerobot_report_runs_total",
				Help: "Total number of database report template runs",
			},
			[]string{"outcome"},
		),
		QueryDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name: "sdzerobot_query_duration_seconds",
				Help: "Duration of report queries against the replica in seconds",
				// Report queries range from milliseconds up to the 10 minute limit
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
			},
		),
		PagesSaved: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "sdzerobot_pages_saved_total",
				Help: "Total number of report pages and subpages saved",
			},
		),
		BatchDue: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "sdzerobot_batch_due_total",
				Help: "Total number of templates found due by the batch runner",
			},
		),
	}
	reg.MustRegister(
		m.RunsTotal,
		m.QueryDuration,
		m.PagesSaved,
		m.BatchDue,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// RecordRun counts a finished template run and its query time
func (m *Metrics) RecordRun(outcome string, queryRuntime time.Duration) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(outcome).Inc()
	if queryRuntime > 0 {
		m.QueryDuration.Observe(queryRuntime.Seconds())
	}
}

// AddPagesSaved counts saved pages
func (m *Metrics) AddPagesSaved(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.PagesSaved.Add(float64(n))
}

// AddBatchDue counts templates selected for a batch run
func (m *Metrics) AddBatchDue(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.BatchDue.Add(float64(n))
}

// Registry returns the registry the collectors live on
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
