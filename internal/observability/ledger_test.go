package observability

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestLedgerMetricsRecordOutcomes(t *testing.T) {
	m := NewLedgerMetrics(prometheus.NewRegistry())

	m.ObserveBuild(false, 6, 20*time.Millisecond, nil)
	m.ObserveBuild(true, 6, time.Millisecond, nil)
	m.ObserveBuild(false, 0, 0, errors.New("timeout"))
	require.Equal(t, 1.0, testutil.ToFloat64(m.builds.WithLabelValues("db", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.builds.WithLabelValues("cache", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.builds.WithLabelValues("db", "failure")))

	m.ObserveRecalculation("insert", 3, nil)
	m.ObserveRecalculation("manual", 0, nil)
	m.ObserveRecalculation("status", 5, errors.New("rollback"))
	require.Equal(t, 3.0, testutil.ToFloat64(m.balancesRewritten))
	require.Equal(t, 1.0, testutil.ToFloat64(m.recalculations.WithLabelValues("status", "failure")))

	m.IllegalTransition("accounting_entry")
	m.IllegalTransition("accounting_entry")
	require.Equal(t, 2.0, testutil.ToFloat64(m.illegalTransitions.WithLabelValues("accounting_entry")))
}

func TestLedgerMetricsNilSafe(t *testing.T) {
	var m *LedgerMetrics
	m.ObserveBuild(true, 1, time.Second, nil)
	m.ObserveRecalculation("insert", 1, nil)
	m.IllegalTransition("purchase_requisition")
}
