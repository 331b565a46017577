package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRecordEntityCounters(t *testing.T) {
	before := testutil.ToFloat64(entitiesProcessed.WithLabelValues("user"))
	RecordEntityProcessed("user")
	RecordEntityProcessed("user")
	require.Equal(t, before+2, testutil.ToFloat64(entitiesProcessed.WithLabelValues("user")))

	beforeFail := testutil.ToFloat64(entityFailures.WithLabelValues("circle"))
	RecordEntityFailure("circle")
	require.Equal(t, beforeFail+1, testutil.ToFloat64(entityFailures.WithLabelValues("circle")))
}

func TestRecordRunSetsOutcomeAndWatermark(t *testing.T) {
	started := time.Date(2024, time.January, 12, 9, 0, 0, 0, time.UTC)

	clean := testutil.ToFloat64(runsCompleted.WithLabelValues("clean"))
	degraded := testutil.ToFloat64(runsCompleted.WithLabelValues("degraded"))

	RecordRun(true, started, 3*time.Second)
	RecordRun(false, started.Add(time.Hour), 5*time.Second)

	require.Equal(t, clean+1, testutil.ToFloat64(runsCompleted.WithLabelValues("clean")))
	require.Equal(t, degraded+1, testutil.ToFloat64(runsCompleted.WithLabelValues("degraded")))
	require.Equal(t, float64(started.Add(time.Hour).Unix()), testutil.ToFloat64(lastRunGauge))
}
