package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// LedgerMetrics mencatat metrik mesin buku besar.
type LedgerMetrics struct {
	builds             *prometheus.CounterVec
	buildDuration      prometheus.Histogram
	buildRows          prometheus.Histogram
	recalculations     *prometheus.CounterVec
	balancesRewritten  prometheus.Counter
	illegalTransitions *prometheus.CounterVec
}

// NewLedgerMetrics mendaftarkan metrik buku besar pada registerer.
func NewLedgerMetrics(registerer prometheus.Registerer) *LedgerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	m := &LedgerMetrics{
		builds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "odyssey_ledger_builds_total",
			Help: "Jumlah penyusunan buku besar berdasarkan sumber (cache/db) dan hasil.",
		}, []string{"source", "result"}),
		buildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "odyssey_ledger_build_duration_seconds",
			Help:    "Durasi penyusunan buku besar.",
			Buckets: prometheus.DefBuckets,
		}),
		buildRows: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "odyssey_ledger_build_rows",
			Help:    "Jumlah baris per buku besar yang disusun.",
			Buckets: prometheus.ExponentialBuckets(4, 4, 8),
		}),
		recalculations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "odyssey_ledger_recalculations_total",
			Help: "Jumlah rekalkulasi saldo per pemicu dan hasil.",
		}, []string{"trigger", "result"}),
		balancesRewritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "odyssey_ledger_balances_rewritten_total",
			Help: "Jumlah saldo entri yang ditulis ulang oleh rekalkulasi.",
		}),
		illegalTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "odyssey_workflow_illegal_transitions_total",
			Help: "Jumlah transisi status yang ditolak per entitas.",
		}, []string{"entity"}),
	}
	registerer.MustRegister(m.builds, m.buildDuration, m.buildRows, m.recalculations, m.balancesRewritten, m.illegalTransitions)
	return m
}

// ObserveBuild mencatat satu penyusunan buku besar.
func (m *LedgerMetrics) ObserveBuild(cached bool, rows int, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	source := "db"
	if cached {
		source = "cache"
	}
	m.builds.WithLabelValues(source, result(err)).Inc()
	if err != nil {
		return
	}
	m.buildDuration.Observe(elapsed.Seconds())
	m.buildRows.Observe(float64(rows))
}

// ObserveRecalculation mencatat rekalkulasi saldo.
func (m *LedgerMetrics) ObserveRecalculation(trigger string, rewritten int, err error) {
	if m == nil {
		return
	}
	m.recalculations.WithLabelValues(trigger, result(err)).Inc()
	if err == nil && rewritten > 0 {
		m.balancesRewritten.Add(float64(rewritten))
	}
}

// IllegalTransition mencatat transisi status yang ditolak.
func (m *LedgerMetrics) IllegalTransition(entity string) {
	if m == nil {
		return
	}
	m.illegalTransitions.WithLabelValues(entity).Inc()
}

func result(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
