package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mattjoyce/taskengine/internal/config"
	"github.com/mattjoyce/taskengine/internal/diag"
	"github.com/mattjoyce/taskengine/internal/engine"
	"github.com/mattjoyce/taskengine/internal/log"
	"github.com/mattjoyce/taskengine/internal/queue"
)

// JobObserver is told when jobs start and finish.
type JobObserver interface {
	JobStarted()
	JobFinished(status string, d time.Duration)
}

// Worker dequeues jobs and executes them with the engine.
type Worker struct {
	queue     *queue.Queue
	plugins   engine.PluginRegistry
	sinks     []engine.ResultSink
	observers []JobObserver
	cfg       *config.Config
	logger    *slog.Logger
}

// Option configures a Worker.
type Option func(*Worker)

// WithSink forwards step reports of every job to s.
func WithSink(s engine.ResultSink) Option {
	return func(w *Worker) { w.sinks = append(w.sinks, s) }
}

// WithObserver reports job starts and completions to o.
func WithObserver(o JobObserver) Option {
	return func(w *Worker) { w.observers = append(w.observers, o) }
}

// New creates a new Worker.
func New(q *queue.Queue, plugins engine.PluginRegistry, cfg *config.Config, opts ...Option) *Worker {
	w := &Worker{
		queue:   q,
		plugins: plugins,
		cfg:     cfg,
		logger:  log.WithComponent("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start runs the main loop. It recovers jobs left running by a previous
// worker, then polls the queue until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	if n, err := w.queue.Requeue(ctx); err != nil {
		return err
	} else if n > 0 {
		w.logger.Warn("requeued interrupted jobs", "count", n)
	}

	w.logger.Info("worker loop started", "poll_interval", w.cfg.Worker.PollInterval)
	defer w.logger.Info("worker loop stopped")

	ticker := time.NewTicker(w.cfg.Worker.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			// Drain the queue before waiting for the next tick.
			for {
				ran, err := w.RunOnce(ctx)
				if err != nil {
					w.logger.Error("failed to process job", "error", err)
				}
				if !ran || err != nil || ctx.Err() != nil {
					break
				}
			}
		}
	}
}

// RunOnce claims and executes at most one job. It reports whether a job was
// claimed.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.queue.Dequeue(ctx)
	if err != nil {
		return false, fmt.Errorf("dequeue: %w", err)
	}
	if job == nil {
		return false, nil
	}

	w.executeJob(ctx, job)
	return true, nil
}

func (w *Worker) executeJob(ctx context.Context, job *queue.Job) {
	jobLogger := log.WithJob(job.ID)
	jobLogger.Info("executing job", "digest", job.Digest)

	started := time.Now()
	for _, o := range w.observers {
		o.JobStarted()
	}

	status, lastErr := w.run(ctx, job, jobLogger)

	// Record completion even when the worker is shutting down.
	doneCtx := context.WithoutCancel(ctx)
	if err := w.queue.Complete(doneCtx, job.ID, status, lastErr); err != nil {
		jobLogger.Error("failed to complete job", "error", err)
	}
	for _, o := range w.observers {
		o.JobFinished(string(status), time.Since(started))
	}
	jobLogger.Info("job completed", "status", status, "duration_ms", time.Since(started).Milliseconds())
}

func (w *Worker) run(ctx context.Context, job *queue.Job, jobLogger *slog.Logger) (queue.Status, *string) {
	prog, issues, err := engine.Prepare(job.Document, job.Swaps)
	if err != nil {
		msg := err.Error()
		if engine.IsInvalid(err) {
			msg = fmt.Sprintf("%s\n%s", msg, diag.FormatHuman(diag.NewReport(issues)))
		}
		jobLogger.Error("job document rejected", "error", err)
		return queue.StatusFailed, &msg
	}
	if job.Fingerprint != "" && job.Fingerprint != prog.Plan.Fingerprint {
		jobLogger.Warn("plan fingerprint changed since submit",
			"submitted", job.Fingerprint, "current", prog.Plan.Fingerprint)
	}

	opts := []engine.Option{engine.WithConcurrency(w.cfg.Engine.Concurrency)}
	for _, s := range w.sinks {
		opts = append(opts, engine.WithSink(s))
	}

	jobCtx, cancel := context.WithTimeout(engine.WithJobID(ctx, job.ID), w.cfg.Engine.JobTimeout)
	defer cancel()

	out, err := engine.NewExecutor(w.plugins, opts...).Execute(jobCtx, prog, engine.Params(job.Params))
	if err != nil {
		msg := err.Error()
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			msg = fmt.Sprintf("job timed out after %v", w.cfg.Engine.JobTimeout)
			jobLogger.Warn(msg)
			return queue.StatusFailed, &msg
		}
		jobLogger.Error("job interrupted", "error", err)
		return queue.StatusFailed, &msg
	}

	if out.Status != engine.StatusSucceeded {
		msg := summarize(out)
		return queue.StatusFailed, &msg
	}
	return queue.StatusSucceeded, nil
}

// summarize lists the failed steps of an outcome.
func summarize(out *engine.Outcome) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d step(s) failed, %d blocked", out.Count(engine.StatusFailed), out.Count(engine.StatusBlocked))
	for _, s := range out.Steps {
		if s.Status == engine.StatusFailed {
			fmt.Fprintf(&b, "\nstep %s (task %s): %s", s.Step, s.Task, s.Error)
		}
	}
	return b.String()
}
