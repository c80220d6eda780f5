// Package plugin is the explicit registry of task implementations. Plugins are
// plain Go functions registered once at startup under stable string keys; the
// engine looks them up by key and never resolves symbols dynamically.
package plugin

import (
	"context"

	"github.com/mattjoyce/taskengine/internal/document"
)

// Func is a task implementation. args holds resolved inputs keyed by input
// name. A task with several outputs returns map[string]any keyed by output
// name, or []any in declared output order.
type Func func(ctx context.Context, args Args) (any, error)

// Param declares one plugin input.
type Param struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Optional bool   `json:"optional,omitempty"`
	Default  any    `json:"default,omitempty"`
}

// Output declares one plugin output.
type Output struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Plugin is a registered task implementation with its metadata.
type Plugin struct {
	Ref         string   `json:"ref"`
	Description string   `json:"description,omitempty"`
	Inputs      []Param  `json:"inputs"`
	Outputs     []Output `json:"outputs"`
	Fn          Func     `json:"-"`
}

// TaskSpec renders the plugin metadata as a task definition named name.
func (p *Plugin) TaskSpec(name string) document.TaskSpec {
	spec := document.TaskSpec{Name: name, Plugin: p.Ref}
	for _, in := range p.Inputs {
		spec.Inputs = append(spec.Inputs, document.InputSpec{
			Name:     in.Name,
			Type:     in.Type,
			Optional: in.Optional,
			Default:  in.Default,
		})
	}
	for _, out := range p.Outputs {
		spec.Outputs = append(spec.Outputs, document.OutputSpec{Name: out.Name, Type: out.Type})
	}
	return spec
}

// TaskName derives a task name from a plugin ref: the last dotted segment.
func TaskName(ref string) string {
	for i := len(ref) - 1; i >= 0; i-- {
		if ref[i] == '.' {
			return ref[i+1:]
		}
	}
	return ref
}
