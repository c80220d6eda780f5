// Package catalog builds the immutable task and parameter catalog of a
// document.
package catalog

import (
	"fmt"

	"github.com/mattjoyce/taskengine/internal/diag"
	"github.com/mattjoyce/taskengine/internal/document"
	"github.com/mattjoyce/taskengine/internal/types"
)

// ImplicitOutput names the single output of a task declared with a bare type.
const ImplicitOutput = "output"

// Input is one declared task input.
type Input struct {
	Name       string
	Type       types.Expr
	Required   bool
	Default    any
	HasDefault bool
}

// NeedsBinding reports whether a step must bind the input.
func (in *Input) NeedsBinding() bool { return in.Required && !in.HasDefault }

// Output is one declared task output.
type Output struct {
	Name string
	Type types.Expr
}

// Task is a task definition bound to a plugin reference.
type Task struct {
	Name    string
	Plugin  string
	Inputs  []Input
	Outputs []Output
}

// Input returns the declared input with the given name.
func (t *Task) Input(name string) (*Input, bool) {
	for i := range t.Inputs {
		if t.Inputs[i].Name == name {
			return &t.Inputs[i], true
		}
	}
	return nil, false
}

// Output returns the declared output with the given name.
func (t *Task) Output(name string) (*Output, bool) {
	for i := range t.Outputs {
		if t.Outputs[i].Name == name {
			return &t.Outputs[i], true
		}
	}
	return nil, false
}

// Parameter is a global parameter. A zero Type means untyped.
type Parameter struct {
	Name       string
	Type       types.Expr
	Default    any
	HasDefault bool
	Explicit   bool
}

// Catalog holds the tasks and parameters of one document. It is read-only
// once built.
type Catalog struct {
	tasks      map[string]*Task
	taskOrder  []string
	params     map[string]*Parameter
	paramOrder []string
}

// Task looks a task up by name.
func (c *Catalog) Task(name string) (*Task, bool) {
	t, ok := c.tasks[name]
	return t, ok
}

// Tasks returns the tasks in declaration order.
func (c *Catalog) Tasks() []*Task {
	out := make([]*Task, 0, len(c.taskOrder))
	for _, name := range c.taskOrder {
		out = append(out, c.tasks[name])
	}
	return out
}

// Parameter looks a global parameter up by name.
func (c *Catalog) Parameter(name string) (*Parameter, bool) {
	p, ok := c.params[name]
	return p, ok
}

// Parameters returns the parameters in declaration order.
func (c *Catalog) Parameters() []*Parameter {
	out := make([]*Parameter, 0, len(c.paramOrder))
	for _, name := range c.paramOrder {
		out = append(out, c.params[name])
	}
	return out
}

// Build decodes the tasks and parameters sections. Entries whose shape is
// wrong are skipped silently because the schema pass reports them; issues
// returned here cover duplicates and undecodable type expressions.
func Build(doc *document.Document) (*Catalog, []diag.Issue) {
	c := &Catalog{
		tasks:  make(map[string]*Task),
		params: make(map[string]*Parameter),
	}
	var issues []diag.Issue

	for _, e := range doc.Parameters() {
		name, ok := e.Key.(string)
		if !ok || document.IsComment(name) {
			continue
		}
		if _, dup := c.params[name]; dup {
			issues = append(issues, diag.Errorf(diag.Semantic, "duplicate parameter `%s`", name))
			continue
		}
		p, err := parseParameter(name, e.Value)
		if err != nil {
			issues = append(issues, diag.Errorf(diag.TypeErr, "parameter `%s`: %v", name, err))
		}
		c.params[name] = p
		c.paramOrder = append(c.paramOrder, name)
	}

	for _, e := range doc.Tasks() {
		name, ok := e.Key.(string)
		if !ok || document.IsComment(name) {
			continue
		}
		if _, dup := c.tasks[name]; dup {
			issues = append(issues, diag.Errorf(diag.Semantic, "duplicate task `%s`", name))
			continue
		}
		m, ok := e.Value.(document.Mapping)
		if !ok {
			continue
		}
		t, taskIssues := parseTask(name, m)
		issues = append(issues, taskIssues...)
		c.tasks[name] = t
		c.taskOrder = append(c.taskOrder, name)
	}

	return c, issues
}

func parseParameter(name string, raw any) (*Parameter, error) {
	p := &Parameter{Name: name}

	if m, ok := raw.(document.Mapping); ok && isExplicitParameter(m) {
		p.Explicit = true
		typeRaw, _ := m.Get("type")
		if def, ok := m.Get("default"); ok {
			p.Default, p.HasDefault = def, true
		}
		expr, err := types.ParseExpr(typeRaw)
		if err != nil {
			return p, err
		}
		p.Type = expr
		return p, nil
	}

	p.Default, p.HasDefault = raw, raw != nil
	p.Type = types.Infer(raw)
	return p, nil
}

// isExplicitParameter recognises the {type, default} declaration form.
func isExplicitParameter(m document.Mapping) bool {
	if _, ok := m.Get("type"); !ok {
		return false
	}
	for _, e := range m {
		k, ok := e.Key.(string)
		if !ok || (k != "type" && k != "default") {
			return false
		}
	}
	return true
}

func parseTask(name string, m document.Mapping) (*Task, []diag.Issue) {
	t := &Task{Name: name}
	var issues []diag.Issue

	if p, ok := m.Get("plugin"); ok {
		t.Plugin, _ = p.(string)
	}

	if raw, ok := m.Get("inputs"); ok {
		list, _ := raw.([]any)
		seen := make(map[string]bool)
		for _, item := range list {
			decl, ok := item.(document.Mapping)
			if !ok {
				continue
			}
			in, err := parseInput(decl)
			if in == nil {
				continue
			}
			if err != nil {
				issues = append(issues, diag.Errorf(diag.TypeErr, "task `%s` input `%s`: %v", name, in.Name, err))
			}
			if seen[in.Name] {
				issues = append(issues, diag.Errorf(diag.Semantic, "task `%s` declares input `%s` more than once", name, in.Name))
				continue
			}
			seen[in.Name] = true
			t.Inputs = append(t.Inputs, *in)
		}
	}

	if raw, ok := m.Get("outputs"); ok {
		outputs, outIssues := parseOutputs(name, raw)
		t.Outputs = outputs
		issues = append(issues, outIssues...)
	}

	return t, issues
}

func parseInput(decl document.Mapping) (*Input, error) {
	nameRaw, _ := decl.Get("name")
	name, ok := nameRaw.(string)
	if !ok || name == "" {
		return nil, nil
	}
	in := &Input{Name: name, Required: true}

	if r, ok := decl.Get("required"); ok {
		if b, ok := r.(bool); ok {
			in.Required = b
		}
	}
	if def, ok := decl.Get("default"); ok {
		in.Default, in.HasDefault = def, true
	}

	typeRaw, ok := decl.Get("type")
	if !ok {
		return in, nil
	}
	expr, err := types.ParseExpr(typeRaw)
	if err != nil {
		return in, err
	}
	in.Type = expr
	return in, nil
}

func parseOutputs(task string, raw any) ([]Output, []diag.Issue) {
	var (
		out    []Output
		issues []diag.Issue
		seen   = make(map[string]bool)
	)

	add := func(name any, typeRaw any) {
		n, ok := name.(string)
		if !ok {
			return
		}
		if seen[n] {
			issues = append(issues, diag.Errorf(diag.Semantic, "task `%s` declares output `%s` more than once", task, n))
			return
		}
		seen[n] = true
		expr, err := types.ParseExpr(typeRaw)
		if err != nil {
			issues = append(issues, diag.Errorf(diag.TypeErr, "task `%s` output `%s`: %v", task, n, err))
		}
		out = append(out, Output{Name: n, Type: expr})
	}

	switch v := raw.(type) {
	case nil:
	case string:
		add(ImplicitOutput, v)
	case document.Mapping:
		for _, e := range v {
			add(e.Key, e.Value)
		}
	case []any:
		for _, item := range v {
			if m, ok := item.(document.Mapping); ok && len(m) == 1 {
				add(m[0].Key, m[0].Value)
			}
		}
	}
	return out, issues
}

// Describe renders a task signature for listings.
func (t *Task) Describe() string {
	s := t.Name + "("
	for i, in := range t.Inputs {
		if i > 0 {
			s += ", "
		}
		s += fmt.Sprintf("%s: %s", in.Name, in.Type)
		if !in.NeedsBinding() {
			s += "?"
		}
	}
	s += ")"
	if len(t.Outputs) > 0 {
		s += " ->"
		for _, o := range t.Outputs {
			s += fmt.Sprintf(" %s: %s", o.Name, o.Type)
		}
	}
	return s
}
