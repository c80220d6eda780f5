package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mattjoyce/taskengine/internal/catalog"
	"github.com/mattjoyce/taskengine/internal/document"
	"github.com/mattjoyce/taskengine/internal/log"
	"github.com/mattjoyce/taskengine/internal/model"
	"github.com/mattjoyce/taskengine/internal/plugin"
)

// Executor runs programs. It holds no per-run state and is safe for
// concurrent use.
type Executor struct {
	plugins     PluginRegistry
	sinks       []ResultSink
	concurrency int
	logger      *slog.Logger
	now         func() time.Time
}

// Option configures an Executor.
type Option func(*Executor)

// WithConcurrency bounds how many steps of one tier run at once. Values
// below one mean one.
func WithConcurrency(n int) Option {
	return func(e *Executor) {
		if n < 1 {
			n = 1
		}
		e.concurrency = n
	}
}

// WithSink adds a result sink.
func WithSink(s ResultSink) Option {
	return func(e *Executor) { e.sinks = append(e.sinks, s) }
}

// WithLogger replaces the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// NewExecutor creates an Executor dispatching to plugins.
func NewExecutor(plugins PluginRegistry, opts ...Option) *Executor {
	e := &Executor{
		plugins:     plugins,
		concurrency: 1,
		logger:      log.WithComponent("engine"),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// run is the mutable state of one execution.
type run struct {
	prog    *Program
	params  ParameterValueStore
	store   *ResultStore
	jobID   string
	logger  *slog.Logger
	mu      sync.Mutex
	reports map[string]*StepReport
	notify  sync.Mutex
}

// Execute walks the plan tier by tier. Steps in one tier run on a pool of at
// most the configured concurrency; the next tier starts only when the current
// one is done. A failed step blocks all of its descendants while independent
// steps keep running. When ctx ends, unstarted steps are cancelled, the
// outcome is FAILED, stored results are discarded and ctx's error is
// returned alongside the outcome.
func (e *Executor) Execute(ctx context.Context, prog *Program, params ParameterValueStore) (*Outcome, error) {
	if prog == nil || prog.Plan == nil {
		return nil, fmt.Errorf("%w: nil program", ErrInvalidProgram)
	}
	if params == nil {
		params = Params{}
	}

	r := &run{
		prog:    prog,
		params:  params,
		store:   NewResultStore(),
		jobID:   JobID(ctx),
		reports: make(map[string]*StepReport, len(prog.steps)),
	}
	r.logger = e.logger
	if r.jobID != "" {
		r.logger = r.logger.With(slog.String("job_id", r.jobID))
	}

	for tierIdx, tier := range prog.Plan.Tiers {
		for _, name := range tier {
			cs := prog.steps[name]
			r.reports[name] = &StepReport{
				JobID:  r.jobID,
				Step:   name,
				Task:   cs.task.Name,
				Plugin: cs.task.Plugin,
				Tier:   tierIdx,
				Status: StatusPending,
			}
		}
	}

	r.logger.Info("execution started", "steps", len(r.reports), "tiers", len(prog.Plan.Tiers), "concurrency", e.concurrency)

	for _, tier := range prog.Plan.Tiers {
		if ctx.Err() != nil {
			break
		}

		var g errgroup.Group
		g.SetLimit(e.concurrency)
		for _, name := range tier {
			if ctx.Err() != nil {
				break
			}
			if r.status(name) != StatusPending {
				continue
			}
			g.Go(func() error {
				e.runStep(ctx, r, name)
				return nil
			})
		}
		_ = g.Wait()
	}

	return e.finish(ctx, r)
}

func (e *Executor) finish(ctx context.Context, r *run) (*Outcome, error) {
	out := &Outcome{JobID: r.jobID, Status: StatusSucceeded}

	for _, name := range r.prog.Plan.Steps() {
		if r.status(name) == StatusPending {
			report := r.setStatus(name, StatusCancelled, "", "")
			e.emit(ctx, r, report)
		}
	}

	for _, name := range r.prog.Plan.Steps() {
		r.mu.Lock()
		report := *r.reports[name]
		r.mu.Unlock()
		out.Steps = append(out.Steps, report)
		if report.Status == StatusFailed || report.Status == StatusCancelled {
			out.Status = StatusFailed
		}
	}

	err := ctx.Err()
	if err == nil {
		out.Results = r.store.Snapshot()
	}

	r.logger.Info("execution finished",
		"status", out.Status,
		"succeeded", out.Count(StatusSucceeded),
		"failed", out.Count(StatusFailed),
		"blocked", out.Count(StatusBlocked),
		"cancelled", out.Count(StatusCancelled),
	)
	if err != nil {
		return out, fmt.Errorf("execution interrupted: %w", err)
	}
	return out, nil
}

func (e *Executor) runStep(ctx context.Context, r *run, name string) {
	cs := r.prog.steps[name]
	logger := log.WithStep(r.logger, name, cs.task.Name)

	start := e.now()
	r.mu.Lock()
	r.reports[name].StartedAt = start
	r.mu.Unlock()

	outputs, err := e.invoke(ctx, r, cs)
	finished := e.now()

	r.mu.Lock()
	r.reports[name].FinishedAt = finished
	r.mu.Unlock()

	if err != nil {
		status := StatusFailed
		if ctx.Err() != nil {
			status = StatusCancelled
		}
		logger.Error("step failed", "status", status, "error", err, "duration_ms", finished.Sub(start).Milliseconds())
		report := r.setStatus(name, status, err.Error(), "")
		e.emit(ctx, r, report)
		if status == StatusFailed {
			e.block(ctx, r, name)
		}
		return
	}

	for out, v := range outputs {
		if err := r.store.Put(name, out, v); err != nil {
			logger.Error("store output", "error", err)
		}
	}
	r.mu.Lock()
	r.reports[name].Outputs = outputs
	r.mu.Unlock()

	logger.Info("step succeeded", "duration_ms", finished.Sub(start).Milliseconds())
	report := r.setStatus(name, StatusSucceeded, "", "")
	e.emit(ctx, r, report)
}

// block marks every transitive dependent of failed as BLOCKED.
func (e *Executor) block(ctx context.Context, r *run, failed string) {
	for _, d := range r.prog.Graph.Descendants(failed) {
		if r.status(d) != StatusPending {
			continue
		}
		report := r.setStatus(d, StatusBlocked, "", failed)
		r.logger.Warn("step blocked", "step", d, "blocked_by", failed)
		e.emit(ctx, r, report)
	}
}

func (e *Executor) invoke(ctx context.Context, r *run, cs *compiledStep) (map[string]any, error) {
	p, ok := e.plugins.Lookup(cs.task.Plugin)
	if !ok {
		return nil, fmt.Errorf("%w: %q (task %s)", plugin.ErrPluginNotFound, cs.task.Plugin, cs.task.Name)
	}

	args, err := r.resolveArgs(cs)
	if err != nil {
		return nil, err
	}

	result, err := call(ctx, p, args)
	if err != nil {
		return nil, err
	}
	return mapOutputs(cs.task, result)
}

// call runs a plugin, turning a panic into an error.
func call(ctx context.Context, p *plugin.Plugin, args plugin.Args) (result any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("plugin %s panicked: %v\n%s", p.Ref, rec, debug.Stack())
		}
	}()
	return p.Fn(ctx, args)
}

// mapOutputs assigns a plugin result to the task's declared outputs.
func mapOutputs(task *catalog.Task, result any) (map[string]any, error) {
	switch len(task.Outputs) {
	case 0:
		return map[string]any{}, nil
	case 1:
		return map[string]any{task.Outputs[0].Name: result}, nil
	}

	out := make(map[string]any, len(task.Outputs))
	switch v := result.(type) {
	case map[string]any:
		for _, o := range task.Outputs {
			val, ok := v[o.Name]
			if !ok {
				return nil, fmt.Errorf("task %s: plugin result lacks output %q", task.Name, o.Name)
			}
			out[o.Name] = val
		}
	case []any:
		if len(v) != len(task.Outputs) {
			return nil, fmt.Errorf("task %s declares %d outputs, plugin returned %d values", task.Name, len(task.Outputs), len(v))
		}
		for i, o := range task.Outputs {
			out[o.Name] = v[i]
		}
	default:
		return nil, fmt.Errorf("task %s declares %d outputs, plugin returned %T", task.Name, len(task.Outputs), result)
	}
	return out, nil
}

func (e *Executor) emit(ctx context.Context, r *run, report StepReport) {
	if len(e.sinks) == 0 {
		return
	}
	r.notify.Lock()
	defer r.notify.Unlock()

	// Sinks still hear about steps of a cancelled run.
	sinkCtx := context.WithoutCancel(ctx)
	for _, s := range e.sinks {
		if err := s.StepFinished(sinkCtx, report); err != nil {
			r.logger.Warn("result sink failed", "step", report.Step, "error", err)
		}
	}
}

func (r *run) status(name string) Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reports[name].Status
}

func (r *run) setStatus(name string, status Status, errMsg, blockedBy string) StepReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	rep := r.reports[name]
	rep.Status = status
	rep.Error = errMsg
	rep.BlockedBy = blockedBy
	return *rep
}

// resolveArgs builds the keyword arguments of one step.
func (r *run) resolveArgs(cs *compiledStep) (plugin.Args, error) {
	args := make(plugin.Args, len(cs.task.Inputs))
	reg := r.prog.Types

	for _, ba := range cs.binding.Args {
		in := ba.Input
		if str, ok := ba.Value.(string); ok {
			if ref, isRef := model.ParseRef(str); isRef {
				v, err := r.resolveRef(ref)
				if err != nil {
					return nil, fmt.Errorf("input %q: %w", in.Name, err)
				}
				if ref.Kind == model.RefParam {
					if v, err = reg.Coerce(v, in.Type); err != nil {
						return nil, fmt.Errorf("input %q from %s: %w", in.Name, ref, err)
					}
				}
				args[in.Name] = v
				continue
			}
		}

		if len(model.Refs(ba.Value)) > 0 {
			v, err := r.substitute(ba.Value)
			if err != nil {
				return nil, fmt.Errorf("input %q: %w", in.Name, err)
			}
			args[in.Name] = v
			continue
		}

		v, err := reg.Coerce(ba.Value, in.Type)
		if err != nil {
			return nil, fmt.Errorf("input %q: %w", in.Name, err)
		}
		args[in.Name] = v
	}

	for i := range cs.task.Inputs {
		in := &cs.task.Inputs[i]
		if args.Has(in.Name) || !in.HasDefault {
			continue
		}
		v, err := reg.Coerce(in.Default, in.Type)
		if err != nil {
			return nil, fmt.Errorf("input %q default: %w", in.Name, err)
		}
		args[in.Name] = v
	}
	return args, nil
}

func (r *run) resolveRef(ref model.Ref) (any, error) {
	switch ref.Kind {
	case model.RefParam:
		if v, ok := r.params.Lookup(ref.Param); ok {
			return v, nil
		}
		p, ok := r.prog.Catalog.Parameter(ref.Param)
		if !ok {
			return nil, fmt.Errorf("unknown parameter %q", ref.Param)
		}
		if !p.HasDefault {
			return nil, fmt.Errorf("parameter %q has no value", ref.Param)
		}
		return document.Plain(p.Default), nil
	case model.RefStep:
		v, ok := r.store.Get(ref.Step, ref.Output)
		if !ok {
			return nil, fmt.Errorf("no result for %s", ref)
		}
		return v, nil
	}
	return nil, fmt.Errorf("malformed reference %s", ref)
}

// substitute replaces references nested in list and mapping literals.
func (r *run) substitute(value any) (any, error) {
	switch v := value.(type) {
	case string:
		ref, ok := model.ParseRef(v)
		if !ok {
			return v, nil
		}
		return r.resolveRef(ref)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			s, err := r.substitute(item)
			if err != nil {
				return nil, err
			}
			out[i] = s
		}
		return out, nil
	case document.Mapping:
		out := make(map[string]any, len(v))
		for _, e := range v {
			s, err := r.substitute(e.Value)
			if err != nil {
				return nil, err
			}
			k, _ := e.Key.(string)
			out[k] = s
		}
		return out, nil
	}
	return document.Plain(value), nil
}

// IsInvalid reports whether err came from program preparation.
func IsInvalid(err error) bool {
	return errors.Is(err, ErrInvalidProgram)
}
