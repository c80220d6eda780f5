package plugin

import (
	"errors"
	"fmt"
	"sort"

	"github.com/mattjoyce/taskengine/internal/document"
)

var (
	ErrPluginNotFound  = errors.New("plugin not found")
	ErrDuplicatePlugin = errors.New("plugin already registered")
)

// Registry holds plugins indexed by ref. It is populated at startup and
// read-only afterwards.
type Registry struct {
	plugins map[string]*Plugin
}

// NewRegistry creates an empty plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		plugins: make(map[string]*Plugin),
	}
}

// Add registers a plugin in the registry.
func (r *Registry) Add(p *Plugin) error {
	if p.Ref == "" {
		return errors.New("plugin ref is required")
	}
	if p.Fn == nil {
		return fmt.Errorf("plugin %q has no function", p.Ref)
	}
	if _, exists := r.plugins[p.Ref]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicatePlugin, p.Ref)
	}
	r.plugins[p.Ref] = p
	return nil
}

// Get retrieves a plugin by ref.
func (r *Registry) Get(ref string) (*Plugin, bool) {
	p, ok := r.plugins[ref]
	return p, ok
}

// Lookup is Get under the name the engine expects.
func (r *Registry) Lookup(ref string) (*Plugin, bool) {
	return r.Get(ref)
}

// All returns all registered plugins sorted by ref.
func (r *Registry) All() []*Plugin {
	out := make([]*Plugin, 0, len(r.plugins))
	for _, p := range r.plugins {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ref < out[j].Ref })
	return out
}

// TaskSpecs returns task definitions for the given refs, each named after the
// last segment of its ref.
func (r *Registry) TaskSpecs(refs ...string) ([]document.TaskSpec, error) {
	specs := make([]document.TaskSpec, 0, len(refs))
	for _, ref := range refs {
		p, ok := r.Get(ref)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrPluginNotFound, ref)
		}
		specs = append(specs, p.TaskSpec(TaskName(ref)))
	}
	return specs, nil
}
