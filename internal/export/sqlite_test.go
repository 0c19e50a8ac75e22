package export

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoSim-25-26J-441/contact-calibration/internal/calibration"
	"github.com/GoSim-25-26J-441/contact-calibration/pkg/models"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "calibration.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteRunLifecycle(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	start := time.Unix(1700000000, 0)
	run := &models.Run{ID: "run-1", Status: models.RunStatusRunning, ConfigYAML: "model:\n  kind: ball\n", StartTime: start}
	require.NoError(t, store.SaveRun(ctx, run))

	got, err := store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusRunning, got.Status)
	assert.Nil(t, got.Result)
	assert.True(t, got.StartTime.Equal(start))
	assert.True(t, got.EndTime.IsZero())

	run.Status = models.RunStatusConverged
	run.EndTime = start.Add(2 * time.Second)
	run.Result = &models.RunResult{BestValue: 0.01, BestVariables: []float64{0.5, 0.4}, Iterations: 12, Converged: true}
	require.NoError(t, store.SaveRun(ctx, run))

	got, err = store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusConverged, got.Status)
	require.NotNil(t, got.Result)
	assert.Equal(t, 12, got.Result.Iterations)
	assert.Equal(t, []float64{0.5, 0.4}, got.Result.BestVariables)
	assert.Equal(t, 2*time.Second, got.Duration)

	_, err = store.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, ErrRunNotStored)
}

func TestSQLiteListRuns(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	require.NoError(t, store.SaveRun(ctx, &models.Run{ID: "b", Status: models.RunStatusFailed, StartTime: time.Unix(20, 0), Error: "boom"}))
	require.NoError(t, store.SaveRun(ctx, &models.Run{ID: "a", Status: models.RunStatusPending, StartTime: time.Unix(10, 0)}))

	runs, err := store.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "a", runs[0].ID)
	assert.Equal(t, "boom", runs[1].Error)
}

func TestSQLiteProgress(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	for i := 0; i < 3; i++ {
		require.NoError(t, store.RecordProgress(ctx, "run-1", calibration.ProgressRecord{
			Iteration:     i,
			BestValue:     float64(3 - i),
			BestVariables: []float64{0.1 * float64(i)},
			Evaluations:   int64(6 * (i + 1)),
			Elapsed:       time.Duration(i) * time.Millisecond,
		}))
	}
	require.NoError(t, store.RecordProgress(ctx, "run-2", calibration.ProgressRecord{Iteration: 0, BestValue: 9}))

	records, err := store.LoadProgress(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, 2, records[2].Iteration)
	assert.Equal(t, float64(1), records[2].BestValue)
	assert.Equal(t, int64(18), records[2].Evaluations)
	assert.Equal(t, 2*time.Millisecond, records[2].Elapsed)
	assert.InDeltaSlice(t, []float64{0.2}, records[2].BestVariables, 1e-15)
}

func TestSQLiteComparisonSinkReplacesRows(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	sink := store.ComparisonSink("run-1")

	require.NoError(t, sink.WriteComparison(ctx, sampleRows()))
	require.NoError(t, sink.WriteComparison(ctx, sampleRows()[:2]))

	rows, err := store.LoadComparison(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, sampleRows()[:2], rows)

	empty, err := store.LoadComparison(ctx, "run-2")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestOpenSQLiteInMemory(t *testing.T) {
	store, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.SaveRun(context.Background(), &models.Run{ID: "m", Status: models.RunStatusPending}))
	runs, err := store.ListRuns(context.Background())
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}
