package jobmetrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Reconciliation actions recorded by AddReconciled.
const (
	ActionValidated = "validated"
	ActionCreated   = "created"
	ActionDeleted   = "deleted"
)

// Metrics exposes Prometheus collectors for background jobs.
type Metrics struct {
	runs       *prometheus.CounterVec
	failures   *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	reconciled *prometheus.CounterVec
	alerts     *prometheus.CounterVec
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

// End finalises the tracker, recording duration, success/failure counts and
// returning the provided error untouched.
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

// AddReconciled counts filings touched by a reconciliation run.
func (m *Metrics) AddReconciled(action string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.reconciled.WithLabelValues(action).Add(float64(count))
}

// AddAlerts counts deadline alerts emitted at the given threshold.
func (m *Metrics) AddAlerts(daysLeft int, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.alerts.WithLabelValues(strconv.Itoa(daysLeft)).Add(float64(count))
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fiscal_jobs_total",
		Help: "Total job executions partitioned by job name and status.",
	}, []string{"job", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fiscal_jobs_failures_total",
		Help: "Total failures observed for background jobs.",
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fiscal_job_duration_seconds",
		Help:    "Duration in seconds of background job executions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	reconciled := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fiscal_filings_reconciled_total",
		Help: "Filings validated, created or deleted by reconciliation.",
	}, []string{"action"})
	alerts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fiscal_deadline_alerts_total",
		Help: "Deadline alerts emitted grouped by days left.",
	}, []string{"days_left"})
	registerer.MustRegister(runs, failures, duration, reconciled, alerts)
	return &Metrics{runs: runs, failures: failures, duration: duration, reconciled: reconciled, alerts: alerts}
}
