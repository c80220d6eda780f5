package inspect

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/taskengine/internal/engine"
	"github.com/mattjoyce/taskengine/internal/queue"
	"github.com/mattjoyce/taskengine/internal/storage"
	"github.com/mattjoyce/taskengine/internal/tracking"
)

func TestBuildReportRendersLineage(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	db, err := storage.OpenSQLite(ctx, filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	q := queue.New(db)
	tr := tracking.New(db)

	submit := func(doc string, deps ...string) string {
		t.Helper()
		id, err := q.Submit(ctx, queue.SubmitRequest{
			Document:    []byte(doc),
			Fingerprint: "blake3:" + doc,
			SubmittedBy: "test",
			DependsOn:   deps,
		})
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
		return id
	}

	train := submit("train")
	attack := submit("attack", train)
	eval := submit("eval", attack, train)

	// Run the first job and record its steps.
	j, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, train, j.ID)
	now := time.Now().UTC()
	require.NoError(t, tr.StepFinished(ctx, engine.StepReport{
		JobID: train, Step: "fit", Task: "fit_model", Tier: 0,
		Status: engine.StatusSucceeded, StartedAt: now, FinishedAt: now.Add(time.Second),
	}))
	require.NoError(t, tr.StepFinished(ctx, engine.StepReport{
		JobID: train, Step: "export", Task: "export_model", Tier: 1,
		Status: engine.StatusFailed, Error: "disk full",
	}))
	msg := "1 step(s) failed, 0 blocked\nstep export (task export_model): disk full"
	require.NoError(t, q.Complete(ctx, train, queue.StatusFailed, &msg))

	out, err := BuildReport(ctx, q, tr, eval[:8])
	require.NoError(t, err)

	assert.Contains(t, out, "Job ID      : "+eval+"\n")
	assert.Contains(t, out, "Status      : queued\n")
	assert.Contains(t, out, "Hops        : 3\n")
	assert.Contains(t, out, "[1] "+train+" (failed, depth 1)")
	assert.Contains(t, out, "[2] "+attack+" (queued, depth 1)")
	assert.Contains(t, out, "[3] "+eval+" (queued, depth 0)")
	assert.Contains(t, out, "    steps       : 1 failed, 1 succeeded\n")
	assert.Contains(t, out, "      - export (export_model) FAILED\n")
	assert.Contains(t, out, "    error       : 1 step(s) failed, 0 blocked\n")
	assert.Contains(t, out, "                  step export (task export_model): disk full\n")
	assert.Contains(t, out, "    depends_on  : <none>\n")
	assert.Contains(t, out, "    steps       : <none recorded>\n")
	assert.True(t, strings.HasSuffix(out, "\n"))
	assert.False(t, strings.HasSuffix(out, "\n\n"))

	jsonOut, err := BuildJSONReport(ctx, q, tr, eval)
	require.NoError(t, err)
	var report Report
	require.NoError(t, json.Unmarshal([]byte(jsonOut), &report))
	assert.Equal(t, eval, report.JobID)
	require.Len(t, report.Jobs, 3)
	assert.Equal(t, train, report.Jobs[0].JobID)
	assert.Equal(t, 1, report.Jobs[0].StepCounts["FAILED"])
	assert.Equal(t, []string{attack, train}, report.Jobs[2].DependsOn)
}

func TestGatherErrors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	db, err := storage.OpenSQLite(ctx, filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	q := queue.New(db)

	_, err = Gather(ctx, q, tracking.New(db), "  ")
	require.Error(t, err)

	_, err = Gather(ctx, q, tracking.New(db), "does-not-exist")
	require.ErrorIs(t, err, queue.ErrJobNotFound)
}
