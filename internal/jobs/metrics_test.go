package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	boom := errors.New("boom")

	require.NoError(t, m.Track("ledger:integrity").End(nil))
	require.ErrorIs(t, m.Track("ledger:integrity").End(boom), boom)

	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("ledger:integrity", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("ledger:integrity", "failure")))
	require.Positive(t, testutil.ToFloat64(m.lastRun.WithLabelValues("ledger:integrity")))
	require.Zero(t, testutil.ToFloat64(m.lastRun.WithLabelValues("ledger:recalculate")))
}

func TestSweepCountersPerOrganization(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.AddMismatches(7, 3)
	m.AddMismatches(7, 0)
	m.AddMismatches(0, 1)
	m.AddRepair(7)
	require.Equal(t, 3.0, testutil.ToFloat64(m.mismatches.WithLabelValues("7")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.mismatches.WithLabelValues("0")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.repairs.WithLabelValues("7")))

	var nilMetrics *Metrics
	nilMetrics.AddMismatches(7, 3)
	nilMetrics.AddRepair(7)
	require.NoError(t, nilMetrics.Track("x").End(nil))
}
