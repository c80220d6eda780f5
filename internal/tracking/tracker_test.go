package tracking

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/taskengine/internal/engine"
	"github.com/mattjoyce/taskengine/internal/queue"
	"github.com/mattjoyce/taskengine/internal/storage"
)

func TestTrackerRecordsSteps(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	db, err := storage.OpenSQLite(ctx, filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	jobID, err := queue.New(db).Submit(ctx, queue.SubmitRequest{Document: []byte("graph: {}"), SubmittedBy: "test"})
	require.NoError(t, err)

	tr := New(db)
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, tr.StepFinished(ctx, engine.StepReport{
		JobID: jobID, Step: "step_a", Task: "add_noise", Plugin: "builtins.add_noise", Tier: 0,
		Status: engine.StatusSucceeded, Outputs: map[string]any{"noisy": []any{1.5, 2.5}},
		StartedAt: start, FinishedAt: start.Add(time.Second),
	}))
	require.NoError(t, tr.StepFinished(ctx, engine.StepReport{
		JobID: jobID, Step: "step_b", Task: "print_stats", Plugin: "builtins.print_stats", Tier: 1,
		Status: engine.StatusBlocked, BlockedBy: "step_a",
	}))
	// A retried report overwrites the earlier row.
	require.NoError(t, tr.StepFinished(ctx, engine.StepReport{
		JobID: jobID, Step: "step_b", Task: "print_stats", Plugin: "builtins.print_stats", Tier: 1,
		Status: engine.StatusFailed, Error: "boom",
	}))
	// In-process runs carry no job id.
	require.NoError(t, tr.StepFinished(ctx, engine.StepReport{Step: "ignored", Status: engine.StatusSucceeded}))

	steps, err := tr.Steps(ctx, jobID)
	require.NoError(t, err)
	require.Len(t, steps, 2)

	a := steps[0]
	assert.Equal(t, "step_a", a.Step)
	assert.Equal(t, engine.StatusSucceeded, a.Status)
	assert.Equal(t, map[string]any{"noisy": []any{1.5, 2.5}}, a.Outputs)
	assert.True(t, start.Equal(a.StartedAt))
	assert.Equal(t, time.Second, a.Duration())

	b := steps[1]
	assert.Equal(t, engine.StatusFailed, b.Status)
	assert.Equal(t, "boom", b.Error)
	assert.Empty(t, b.BlockedBy)
	assert.True(t, b.StartedAt.IsZero())
}

func TestTrackerRejectsUnknownJob(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	db, err := storage.OpenSQLite(ctx, filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	err = New(db).StepFinished(ctx, engine.StepReport{JobID: "nope", Step: "a", Status: engine.StatusSucceeded})
	assert.Error(t, err)
}
