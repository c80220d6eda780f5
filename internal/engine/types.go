// Package engine prepares validated programs and executes them tier by tier,
// dispatching each step to its plugin and threading outputs downstream.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/mattjoyce/taskengine/internal/plugin"
)

//go:generate mockgen -destination=mocks/mock_sink.go -package=mocks github.com/mattjoyce/taskengine/internal/engine ResultSink

var (
	ErrInvalidProgram = errors.New("invalid program")
	ErrResultExists   = errors.New("result already stored")
)

// PluginRegistry resolves plugin refs to implementations.
type PluginRegistry interface {
	Lookup(ref string) (*plugin.Plugin, bool)
}

// ParameterValueStore supplies job-specific overrides of global parameters.
type ParameterValueStore interface {
	Lookup(name string) (any, bool)
}

// ResultSink is notified once per step when it reaches a final status.
// Errors are logged and never change the step outcome.
type ResultSink interface {
	StepFinished(ctx context.Context, report StepReport) error
}

// Params is a map-backed ParameterValueStore.
type Params map[string]any

// Lookup implements ParameterValueStore.
func (p Params) Lookup(name string) (any, bool) {
	v, ok := p[name]
	return v, ok
}

// Status is the state of a step or job.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
	StatusBlocked   Status = "BLOCKED"
	StatusCancelled Status = "CANCELLED"
)

// StepReport describes how one step ended.
type StepReport struct {
	JobID      string         `json:"job_id,omitempty"`
	Step       string         `json:"step"`
	Task       string         `json:"task"`
	Plugin     string         `json:"plugin"`
	Tier       int            `json:"tier"`
	Status     Status         `json:"status"`
	Outputs    map[string]any `json:"outputs,omitempty"`
	Error      string         `json:"error,omitempty"`
	BlockedBy  string         `json:"blocked_by,omitempty"`
	StartedAt  time.Time      `json:"started_at,omitzero"`
	FinishedAt time.Time      `json:"finished_at,omitzero"`
}

// Duration returns how long the step ran. Steps never attempted report zero.
func (r StepReport) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Outcome is the result of executing a program.
type Outcome struct {
	JobID  string       `json:"job_id,omitempty"`
	Status Status       `json:"status"`
	Steps  []StepReport `json:"steps"`
	// Results holds every stored output by step and output name. It is nil
	// when the run was cancelled.
	Results map[string]map[string]any `json:"results,omitempty"`
}

// Step returns the report of the named step.
func (o *Outcome) Step(name string) (StepReport, bool) {
	for _, s := range o.Steps {
		if s.Step == name {
			return s, true
		}
	}
	return StepReport{}, false
}

// Count returns how many steps ended with status.
func (o *Outcome) Count(status Status) int {
	n := 0
	for _, s := range o.Steps {
		if s.Status == status {
			n++
		}
	}
	return n
}

type jobKey struct{}

// WithJobID attaches a job id to ctx for reports and logs.
func WithJobID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, jobKey{}, id)
}

// JobID returns the job id carried by ctx.
func JobID(ctx context.Context) string {
	id, _ := ctx.Value(jobKey{}).(string)
	return id
}
