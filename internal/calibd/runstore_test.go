package calibd

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoSim-25-26J-441/contact-calibration/pkg/models"
)

func TestRunStoreCreateAndGet(t *testing.T) {
	store := NewRunStore()
	cfg := parseConfig(t, quickConfig)

	rec, err := store.Create("run-a", cfg, quickConfig, Callback{})
	require.NoError(t, err)
	assert.Equal(t, "run-a", rec.Run.ID)
	assert.Equal(t, models.RunStatusPending, rec.Run.Status)
	assert.Equal(t, "ball", rec.Run.Metadata["model"])

	got, ok := store.Get("run-a")
	require.True(t, ok)
	assert.Equal(t, quickConfig, got.Run.ConfigYAML)

	_, ok = store.Get("missing")
	assert.False(t, ok)
}

func TestRunStoreGeneratesID(t *testing.T) {
	store := NewRunStore()
	rec, err := store.Create("", parseConfig(t, quickConfig), quickConfig, Callback{})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(rec.Run.ID, "run-"), rec.Run.ID)
}

func TestRunStoreRejectsDuplicateAndInvalidIDs(t *testing.T) {
	store := NewRunStore()
	cfg := parseConfig(t, quickConfig)
	_, err := store.Create("dup", cfg, quickConfig, Callback{})
	require.NoError(t, err)

	_, err = store.Create("dup", cfg, quickConfig, Callback{})
	assert.True(t, errors.Is(err, ErrRunExists), "got %v", err)

	_, err = store.Create("bad/id", cfg, quickConfig, Callback{})
	assert.True(t, errors.Is(err, ErrInvalidRunID), "got %v", err)
}

func TestRunStoreSnapshotsAreIsolated(t *testing.T) {
	store := NewRunStore()
	rec, err := store.Create("iso", parseConfig(t, quickConfig), quickConfig, Callback{})
	require.NoError(t, err)

	rec.Run.Status = models.RunStatusFailed
	rec.Run.Metadata["model"] = "foot"

	got, _ := store.Get("iso")
	assert.Equal(t, models.RunStatusPending, got.Run.Status)
	assert.Equal(t, "ball", got.Run.Metadata["model"])
}

func TestRunStoreStatusTransitions(t *testing.T) {
	store := NewRunStore()
	_, err := store.Create("st", parseConfig(t, quickConfig), quickConfig, Callback{})
	require.NoError(t, err)

	running, err := store.SetStatus("st", models.RunStatusRunning, "")
	require.NoError(t, err)
	assert.False(t, running.Run.StartTime.IsZero())
	assert.True(t, running.Run.EndTime.IsZero())

	done, err := store.SetStatus("st", models.RunStatusConverged, "")
	require.NoError(t, err)
	assert.False(t, done.Run.EndTime.IsZero())
	assert.GreaterOrEqual(t, done.Run.Duration.Nanoseconds(), int64(0))

	_, err = store.SetStatus("st", models.RunStatusCancelled, "")
	assert.True(t, errors.Is(err, ErrRunTerminal), "got %v", err)
	got, _ := store.Get("st")
	assert.Equal(t, models.RunStatusConverged, got.Run.Status)

	_, err = store.SetStatus("nope", models.RunStatusRunning, "")
	assert.True(t, errors.Is(err, ErrRunNotFound), "got %v", err)
}

func TestRunStoreListPagination(t *testing.T) {
	store := NewRunStore()
	cfg := parseConfig(t, quickConfig)
	for _, id := range []string{"r1", "r2", "r3", "r4"} {
		_, err := store.Create(id, cfg, quickConfig, Callback{})
		require.NoError(t, err)
	}
	_, err := store.SetStatus("r2", models.RunStatusFailed, "boom")
	require.NoError(t, err)

	ids := func(recs []*RunRecord) []string {
		out := make([]string, len(recs))
		for i, r := range recs {
			out[i] = r.Run.ID
		}
		return out
	}
	assert.Equal(t, []string{"r1", "r2", "r3", "r4"}, ids(store.List(0, 0, "")))
	assert.Equal(t, []string{"r2", "r3"}, ids(store.List(2, 1, "")))
	assert.Equal(t, []string{"r2"}, ids(store.List(10, 0, models.RunStatusFailed)))
	assert.Equal(t, []string{"r3", "r4"}, ids(store.List(10, 2, models.RunStatusPending)))
	assert.Equal(t, 4, store.Len())
}

func TestParseRunStatus(t *testing.T) {
	assert.Equal(t, models.RunStatusRunning, ParseRunStatus("RUNNING"))
	assert.Equal(t, models.RunStatusMaxIterations, ParseRunStatus(" max_iterations_reached "))
	assert.Equal(t, models.RunStatus(""), ParseRunStatus("completed"))
}
