package engine

import (
	"fmt"

	"github.com/mattjoyce/taskengine/internal/catalog"
	"github.com/mattjoyce/taskengine/internal/dag"
	"github.com/mattjoyce/taskengine/internal/diag"
	"github.com/mattjoyce/taskengine/internal/document"
	"github.com/mattjoyce/taskengine/internal/model"
	"github.com/mattjoyce/taskengine/internal/swap"
	"github.com/mattjoyce/taskengine/internal/types"
	"github.com/mattjoyce/taskengine/internal/validate"
)

// Program is a validated, planned document ready for execution. It is
// read-only and may be executed any number of times.
type Program struct {
	Document *document.Document
	Swaps    map[string]string
	Plan     *dag.Plan
	Graph    *dag.Graph
	Types    *types.Registry
	Catalog  *catalog.Catalog
	Warnings []diag.Issue

	steps map[string]*compiledStep
}

type compiledStep struct {
	step    *model.Step
	task    *catalog.Task
	binding *catalog.Binding
}

// Prepare loads text, resolves swaps, validates and plans. Malformed YAML is
// returned as a plain error. When any ERROR issue is found the program is nil
// and the error wraps ErrInvalidProgram; issues are returned in both cases.
func Prepare(text []byte, swaps map[string]string, opts ...validate.Option) (*Program, []diag.Issue, error) {
	doc, issues, err := document.Load(text)
	if err != nil {
		return nil, nil, err
	}
	if diag.HasErrors(issues) {
		return nil, issues, fmt.Errorf("%w: %d issue(s)", ErrInvalidProgram, len(issues))
	}
	return Compile(doc, swaps, opts...)
}

// Compile is Prepare for an already loaded document.
func Compile(doc *document.Document, swaps map[string]string, opts ...validate.Option) (*Program, []diag.Issue, error) {
	resolved, issues := swap.ResolveDocument(doc, swaps)

	res := validate.Check(resolved, append(opts, validate.WithSwapsResolved())...)
	issues = append(issues, res.Issues...)
	if diag.HasErrors(issues) {
		errs, _ := diag.Count(issues)
		return nil, issues, fmt.Errorf("%w: %d error(s)", ErrInvalidProgram, errs)
	}

	plan, err := dag.PlanGraph(res.Graph)
	if err != nil {
		return nil, issues, fmt.Errorf("%w: %w", ErrInvalidProgram, err)
	}

	p := &Program{
		Document: resolved,
		Swaps:    swaps,
		Plan:     plan,
		Graph:    res.Graph,
		Types:    res.Types,
		Catalog:  res.Catalog,
		Warnings: issues,
		steps:    make(map[string]*compiledStep, len(res.Steps)),
	}
	for _, s := range res.Steps {
		if _, dup := p.steps[s.Name]; dup {
			continue
		}
		task, ok := res.Catalog.Task(s.Fixed.Task)
		if !ok {
			return nil, issues, fmt.Errorf("%w: step %q has no task", ErrInvalidProgram, s.Name)
		}
		p.steps[s.Name] = &compiledStep{step: s, task: task, binding: res.Bindings[s.Name]}
	}
	return p, issues, nil
}

// Task returns the task definition bound to a step.
func (p *Program) Task(step string) (*catalog.Task, bool) {
	cs, ok := p.steps[step]
	if !ok {
		return nil, false
	}
	return cs.task, true
}
