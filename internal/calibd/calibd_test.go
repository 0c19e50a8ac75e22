package calibd

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/GoSim-25-26J-441/contact-calibration/pkg/config"
	"github.com/GoSim-25-26J-441/contact-calibration/pkg/logger"
)

// quickConfig finishes in a handful of iterations
const quickConfig = `
model:
  kind: ball
optimizer:
  max_iterations: 5
  mode: serial
  seed: 2
`

// longConfig keeps iterating until it is stopped
const longConfig = `
model:
  kind: ball
optimizer:
  max_iterations: 100000
  stall_iterations: 100000
  mode: serial
`

const missingDataConfig = `
model:
  kind: ball
data:
  states_file: /nonexistent/states.sto
  reference_file: /nonexistent/reference.sto
`

func parseConfig(t *testing.T, yamlText string) *config.Config {
	t.Helper()
	cfg, err := config.ParseConfigYAMLString(yamlText)
	require.NoError(t, err)
	return cfg
}

func newTestExecutor(t *testing.T, opts ...ExecutorOption) (*RunStore, *RunExecutor) {
	t.Helper()
	store := NewRunStore()
	opts = append([]ExecutorOption{WithExecutorLogger(logger.Discard())}, opts...)
	executor := NewRunExecutor(store, opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = executor.Shutdown(ctx)
	})
	return store, executor
}

// waitForRun blocks until the run goroutine returns and yields the final record
func waitForRun(t *testing.T, store *RunStore, executor *RunExecutor, runID string) *RunRecord {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	require.NoError(t, executor.Wait(ctx, runID))
	rec, ok := store.Get(runID)
	require.True(t, ok)
	return rec
}
