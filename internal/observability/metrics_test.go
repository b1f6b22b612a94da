package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRecordActivityFinished(t *testing.T) {
	before := testutil.ToFloat64(activitiesFinishedCounter.WithLabelValues("hiking"))
	finishedAt := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

	RecordActivityFinished("hiking", finishedAt)

	require.InDelta(t, before+1, testutil.ToFloat64(activitiesFinishedCounter.WithLabelValues("hiking")), 1e-9)
	require.InDelta(t, float64(finishedAt.Unix()), testutil.ToFloat64(lastFinishedGauge), 1e-9)
}

func TestRecordEvaluationAndConflicts(t *testing.T) {
	applied := testutil.ToFloat64(evaluationsCounter.WithLabelValues("applied"))
	conflicts := testutil.ToFloat64(versionConflictCounter.WithLabelValues("challenge"))
	completions := testutil.ToFloat64(completionsCounter)

	RecordEvaluation("applied")
	RecordVersionConflict("challenge")
	RecordVersionConflict("challenge")
	RecordCompletion()

	require.InDelta(t, applied+1, testutil.ToFloat64(evaluationsCounter.WithLabelValues("applied")), 1e-9)
	require.InDelta(t, conflicts+2, testutil.ToFloat64(versionConflictCounter.WithLabelValues("challenge")), 1e-9)
	require.InDelta(t, completions+1, testutil.ToFloat64(completionsCounter), 1e-9)
}
