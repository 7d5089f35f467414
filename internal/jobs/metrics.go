package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for background jobs.
type Metrics struct {
	runs        *prometheus.CounterVec
	failures    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	overdue     prometheus.Gauge
	outstanding prometheus.Gauge
	conflicts   *prometheus.GaugeVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the job metrics against the provided registerer. When the
// registerer is nil the default Prometheus registerer is used.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Tracker provides lifecycle instrumentation helpers for a single job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track spawns a tracker for the given job name.
func (m *Metrics) Track(job string) *Tracker {
	if m == nil {
		return &Tracker{job: job, start: time.Now()}
	}
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End finalises the tracker, recording duration and run counts, and
// returns the provided error untouched.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	status := "success"
	if err != nil {
		status = "failure"
		t.metrics.failures.WithLabelValues(t.job).Inc()
	}
	t.metrics.runs.WithLabelValues(t.job, status).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}

// SetOverdue publishes the latest overdue scan totals.
func (m *Metrics) SetOverdue(count int, outstanding float64) {
	if m == nil {
		return
	}
	m.overdue.Set(float64(count))
	m.outstanding.Set(outstanding)
}

// SetPreflightConflicts publishes the conflict count of the last preflight
// run for a stocktaking.
func (m *Metrics) SetPreflightConflicts(stocktakingID string, count int) {
	if m == nil || stocktakingID == "" {
		return
	}
	m.conflicts.WithLabelValues(stocktakingID).Set(float64(count))
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mrp_jobs_total",
		Help: "Total job executions partitioned by job name and status.",
	}, []string{"job", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mrp_jobs_failures_total",
		Help: "Total failures observed for background jobs.",
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mrp_job_duration_seconds",
		Help:    "Duration in seconds of background job executions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	overdue := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mrp_settlement_overdue_invoices",
		Help: "Overdue invoices found by the last overdue scan.",
	})
	outstanding := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mrp_settlement_overdue_outstanding",
		Help: "Outstanding amount of overdue invoices found by the last overdue scan.",
	})
	conflicts := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mrp_stocktaking_preflight_conflicts",
		Help: "Reservation conflicts found by the last preflight per stocktaking.",
	}, []string{"stocktaking"})
	registerer.MustRegister(runs, failures, duration, overdue, outstanding, conflicts)
	return &Metrics{
		runs:        runs,
		failures:    failures,
		duration:    duration,
		overdue:     overdue,
		outstanding: outstanding,
		conflicts:   conflicts,
	}
}
