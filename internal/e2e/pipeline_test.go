package e2e

import (
	"context"
	"io"
	"math"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/taskengine/internal/config"
	"github.com/mattjoyce/taskengine/internal/engine"
	"github.com/mattjoyce/taskengine/internal/inspect"
	"github.com/mattjoyce/taskengine/internal/log"
	"github.com/mattjoyce/taskengine/internal/metrics"
	"github.com/mattjoyce/taskengine/internal/plugin"
	"github.com/mattjoyce/taskengine/internal/queue"
	"github.com/mattjoyce/taskengine/internal/storage"
	"github.com/mattjoyce/taskengine/internal/tracking"
	"github.com/mattjoyce/taskengine/internal/worker"
)

const experiment = `
parameters:
  eps: {type: float, default: 0.5}
tasks:
  fgm:
    plugin: attacks.fgm
    inputs: [{name: inputs, type: list}, {name: eps, type: float}]
    outputs: {adversarial: list}
  noise:
    plugin: builtins.add_noise
    inputs: [{name: array, type: list}, {name: scale, type: float}, {name: seed, type: integer}]
    outputs: {noisy: list}
  accuracy:
    plugin: eval.accuracy
    inputs: [{name: predictions, type: list}, {name: threshold, type: float}]
    outputs: [accuracy: float, correct: integer]
graph:
  perturb:
    ?attack:
      fgm: {inputs: [0.2, 0.4, 0.6, 0.8], eps: $eps}
      noise: {array: [0.2, 0.4, 0.6, 0.8], scale: $eps, seed: 7}
  evaluate:
    accuracy:
      predictions: $perturb.outputs.adversarial
      threshold: 1.0
`

// fgm shifts every value by eps in the direction of its sign.
func fgm(_ context.Context, args plugin.Args) (any, error) {
	xs, err := args.Floats("inputs")
	if err != nil {
		return nil, err
	}
	eps, err := args.Float("eps", 0)
	if err != nil {
		return nil, err
	}
	out := make([]any, len(xs))
	for i, x := range xs {
		out[i] = x + eps*math.Copysign(1, x)
	}
	return map[string]any{"adversarial": out}, nil
}

// accuracy counts predictions below the threshold.
func accuracy(_ context.Context, args plugin.Args) (any, error) {
	xs, err := args.Floats("predictions")
	if err != nil {
		return nil, err
	}
	threshold, err := args.Float("threshold", 0.5)
	if err != nil {
		return nil, err
	}
	correct := 0
	for _, x := range xs {
		if x < threshold {
			correct++
		}
	}
	return []any{float64(correct) / float64(len(xs)), correct}, nil
}

func TestQueuedExperimentPipeline(t *testing.T) {
	log.Setup("ERROR")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	db, err := storage.OpenSQLite(ctx, filepath.Join(t.TempDir(), "taskengine.db"))
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	reg := plugin.NewRegistry()
	require.NoError(t, plugin.RegisterBuiltins(reg))
	require.NoError(t, reg.Add(&plugin.Plugin{
		Ref:     "attacks.fgm",
		Inputs:  []plugin.Param{{Name: "inputs", Type: "list"}, {Name: "eps", Type: "float"}},
		Outputs: []plugin.Output{{Name: "adversarial", Type: "list"}},
		Fn:      fgm,
	}))
	require.NoError(t, reg.Add(&plugin.Plugin{
		Ref:     "eval.accuracy",
		Inputs:  []plugin.Param{{Name: "predictions", Type: "list"}, {Name: "threshold", Type: "float"}},
		Outputs: []plugin.Output{{Name: "accuracy", Type: "float"}, {Name: "correct", Type: "integer"}},
		Fn:      accuracy,
	}))

	// Submit with the same validation the CLI applies.
	prog, issues, err := engine.Prepare([]byte(experiment), map[string]string{"attack": "fgm"})
	require.NoError(t, err, "%v", issues)

	q := queue.New(db)
	first, err := q.Submit(ctx, queue.SubmitRequest{
		Document:    []byte(experiment),
		Swaps:       prog.Swaps,
		Fingerprint: prog.Plan.Fingerprint,
		SubmittedBy: "e2e",
	})
	require.NoError(t, err)
	second, err := q.Submit(ctx, queue.SubmitRequest{
		Document:    []byte(experiment),
		Swaps:       prog.Swaps,
		Params:      map[string]any{"eps": "0.1"},
		Fingerprint: prog.Plan.Fingerprint,
		SubmittedBy: "e2e",
		DependsOn:   []string{first},
	})
	require.NoError(t, err)

	cfg := config.Defaults()
	cfg.Worker.PollInterval = 10 * time.Millisecond
	cfg.Engine.Concurrency = 2

	tracker := tracking.New(db)
	m := metrics.New()
	w := worker.New(q, reg, cfg, worker.WithSink(tracker), worker.WithSink(m), worker.WithObserver(m))

	runCtx, stop := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- w.Start(runCtx) }()

	require.Eventually(t, func() bool {
		j, err := q.Get(ctx, second)
		return err == nil && j.Status.Terminal()
	}, 10*time.Second, 20*time.Millisecond)
	stop()
	require.ErrorIs(t, <-done, context.Canceled)

	for _, id := range []string{first, second} {
		j, err := q.Get(ctx, id)
		require.NoError(t, err)
		require.Equal(t, queue.StatusSucceeded, j.Status, "job %s: %v", id, j.LastError)
	}

	// eps 0.5 pushes 0.6 and 0.8 past the threshold; eps 0.1 pushes none.
	steps, err := tracker.Steps(ctx, first)
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, "perturb", steps[0].Step)
	assert.Equal(t, "fgm", steps[0].Task)
	assert.Equal(t, "evaluate", steps[1].Step)
	assert.InDelta(t, 0.5, steps[1].Outputs["accuracy"], 1e-9)

	steps, err = tracker.Steps(ctx, second)
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.InDelta(t, 1.0, steps[1].Outputs["accuracy"], 1e-9)

	report, err := inspect.Gather(ctx, q, tracker, second)
	require.NoError(t, err)
	require.Len(t, report.Jobs, 2)
	assert.Equal(t, first, report.Jobs[0].JobID)
	assert.Equal(t, 2, report.Jobs[1].StepCounts[string(engine.StatusSucceeded)])

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), `taskengine_jobs_total{status="succeeded"} 2`)
	assert.Contains(t, string(body), `taskengine_steps_total{status="SUCCEEDED",task="fgm"} 2`)
}
