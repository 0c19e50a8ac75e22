package calibd

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoSim-25-26J-441/contact-calibration/internal/export"
	"github.com/GoSim-25-26J-441/contact-calibration/internal/metrics"
	"github.com/GoSim-25-26J-441/contact-calibration/pkg/models"
)

func TestExecutorRunsCalibrationToCompletion(t *testing.T) {
	store, executor := newTestExecutor(t)
	_, err := store.Create("quick", parseConfig(t, quickConfig), quickConfig, Callback{})
	require.NoError(t, err)

	started, err := executor.Start("quick")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusRunning, started.Run.Status)

	rec := waitForRun(t, store, executor, "quick")
	assert.Contains(t, []models.RunStatus{models.RunStatusConverged, models.RunStatusMaxIterations}, rec.Run.Status)
	require.NotNil(t, rec.Run.Result)
	assert.Len(t, rec.Run.Result.BestVariables, 2)
	assert.Len(t, rec.Run.Result.Heights, 1)
	assert.Equal(t, rec.Run.Result.Iterations, rec.Progress.Len())
	assert.NotEmpty(t, rec.Comparison)
	assert.False(t, rec.Run.EndTime.IsZero())

	best := rec.Collector.Series(metrics.SeriesBestObjective)
	require.Len(t, best, rec.Run.Result.Iterations)
	assert.Equal(t, rec.Run.Result.BestValue, best[len(best)-1])
}

func TestExecutorStartErrors(t *testing.T) {
	store, executor := newTestExecutor(t)

	_, err := executor.Start("")
	assert.True(t, errors.Is(err, ErrRunIDMissing))

	_, err = executor.Start("ghost")
	assert.True(t, errors.Is(err, ErrRunNotFound))

	_, err = store.Create("done", parseConfig(t, quickConfig), quickConfig, Callback{})
	require.NoError(t, err)
	_, err = store.SetStatus("done", models.RunStatusFailed, "x")
	require.NoError(t, err)
	_, err = executor.Start("done")
	assert.True(t, errors.Is(err, ErrRunTerminal))
}

func TestExecutorStopCancelsRun(t *testing.T) {
	store, executor := newTestExecutor(t)
	_, err := store.Create("long", parseConfig(t, longConfig), longConfig, Callback{})
	require.NoError(t, err)
	_, err = executor.Start("long")
	require.NoError(t, err)

	stopped, err := executor.Stop("long")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCancelled, stopped.Run.Status)

	rec := waitForRun(t, store, executor, "long")
	assert.Equal(t, models.RunStatusCancelled, rec.Run.Status)
	assert.Nil(t, rec.Run.Result)

	_, err = executor.Stop("long")
	assert.True(t, errors.Is(err, ErrRunTerminal))
	_, err = executor.Stop("ghost")
	assert.True(t, errors.Is(err, ErrRunNotFound))
}

func TestExecutorMarksBadProblemFailed(t *testing.T) {
	store, executor := newTestExecutor(t)
	_, err := store.Create("bad", parseConfig(t, missingDataConfig), missingDataConfig, Callback{})
	require.NoError(t, err)
	_, err = executor.Start("bad")
	require.NoError(t, err)

	rec := waitForRun(t, store, executor, "bad")
	assert.Equal(t, models.RunStatusFailed, rec.Run.Status)
	assert.Contains(t, rec.Run.Error, "invalid calibration problem")
}

func TestExecutorPersistsToSQLite(t *testing.T) {
	db, err := export.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, executor := newTestExecutor(t, WithPersistence(db))
	_, err = store.Create("persisted", parseConfig(t, quickConfig), quickConfig, Callback{})
	require.NoError(t, err)
	_, err = executor.Start("persisted")
	require.NoError(t, err)
	rec := waitForRun(t, store, executor, "persisted")
	require.NotNil(t, rec.Run.Result)

	ctx := context.Background()
	run, err := db.GetRun(ctx, "persisted")
	require.NoError(t, err)
	assert.Equal(t, rec.Run.Status, run.Status)
	require.NotNil(t, run.Result)
	assert.Equal(t, rec.Run.Result.BestValue, run.Result.BestValue)

	progress, err := db.LoadProgress(ctx, "persisted")
	require.NoError(t, err)
	assert.Len(t, progress, rec.Run.Result.Iterations)

	rows, err := db.LoadComparison(ctx, "persisted")
	require.NoError(t, err)
	assert.Len(t, rows, len(rec.Comparison))
}

func TestExecutorWaitUnknownRun(t *testing.T) {
	store, executor := newTestExecutor(t)
	err := executor.Wait(context.Background(), "never")
	assert.True(t, errors.Is(err, ErrRunNotFound))

	_, err = store.Create("pending", parseConfig(t, quickConfig), quickConfig, Callback{})
	require.NoError(t, err)
	err = executor.Wait(context.Background(), "pending")
	assert.True(t, errors.Is(err, ErrRunNotFound), "a created but unstarted run has nothing to wait for")
}

func TestExecutorForgetsFinishedRuns(t *testing.T) {
	store, executor := newTestExecutor(t)
	for _, id := range []string{"first", "second", "third"} {
		_, err := store.Create(id, parseConfig(t, quickConfig), quickConfig, Callback{})
		require.NoError(t, err)
		_, err = executor.Start(id)
		require.NoError(t, err)
		waitForRun(t, store, executor, id)
	}

	executor.mu.Lock()
	tracked, active := len(executor.done), len(executor.cancels)
	executor.mu.Unlock()
	assert.Zero(t, tracked, "finished runs must not keep a done channel")
	assert.Zero(t, active)

	// finished runs can still be waited on
	assert.NoError(t, executor.Wait(context.Background(), "second"))
}
