package jobmetrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the worker's job and ledger sweep collectors.
type Metrics struct {
	runs       *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	mismatches *prometheus.CounterVec
	repairs    *prometheus.CounterVec
	lastRun    *prometheus.GaugeVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the collectors on registerer, or once on the default
// registerer when it is nil.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Tracker times one job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track starts timing a run of job.
func (m *Metrics) Track(job string) *Tracker {
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End records the outcome of the run and returns err unchanged.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	t.metrics.runs.WithLabelValues(t.job, status).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	if err == nil {
		t.metrics.lastRun.WithLabelValues(t.job).SetToCurrentTime()
	}
	return err
}

// AddMismatches counts stored balances found out of sync in an organization.
func (m *Metrics) AddMismatches(organizationID int64, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.mismatches.WithLabelValues(orgLabel(organizationID)).Add(float64(count))
}

// AddRepair counts a pair whose balances were rewritten by a sweep.
func (m *Metrics) AddRepair(organizationID int64) {
	if m == nil {
		return
	}
	m.repairs.WithLabelValues(orgLabel(organizationID)).Inc()
}

func orgLabel(organizationID int64) string {
	if organizationID <= 0 {
		return "0"
	}
	return strconv.FormatInt(organizationID, 10)
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "odyssey_jobs_total",
			Help: "Job executions by job type and status.",
		}, []string{"job", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "odyssey_job_duration_seconds",
			Help:    "Job execution time in seconds.",
			Buckets: []float64{.05, .1, .5, 1, 5, 15, 60, 300},
		}, []string{"job"}),
		mismatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "odyssey_ledger_balance_mismatches_total",
			Help: "Stored running balances found out of sync, by organization.",
		}, []string{"organization"}),
		repairs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "odyssey_ledger_balance_repairs_total",
			Help: "Pairs recalculated by integrity sweeps, by organization.",
		}, []string{"organization"}),
		lastRun: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "odyssey_job_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run per job type.",
		}, []string{"job"}),
	}
	registerer.MustRegister(m.runs, m.duration, m.mismatches, m.repairs, m.lastRun)
	return m
}
