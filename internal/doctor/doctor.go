// Package doctor checks taskengine configuration and the plugin registry
// before a worker is started against them.
package doctor

import (
	"encoding/json"
	"fmt"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/mattjoyce/taskengine/internal/config"
	"github.com/mattjoyce/taskengine/internal/plugin"
	"github.com/mattjoyce/taskengine/internal/storage"
	"github.com/mattjoyce/taskengine/internal/types"
)

// Result holds the outcome of a check run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Doctor checks a loaded config against the registered plugins.
type Doctor struct {
	cfg      *config.Config
	registry *plugin.Registry
	types    *types.Registry

	// checkFS is replaced in tests.
	checkFS func(path string) error
}

// New creates a Doctor from a loaded config and plugin registry.
func New(cfg *config.Config, registry *plugin.Registry) *Doctor {
	return &Doctor{
		cfg:      cfg,
		registry: registry,
		types:    types.NewRegistry(),
		checkFS:  storage.CheckLocalFilesystem,
	}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{}

	d.validateServiceConfig(r)
	d.validateStatePath(r)
	d.validateMetricsListen(r)
	d.validatePlugins(r)
	d.warnTaskNameCollisions(r)
	d.warnSuspiciousTimeouts(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) validateServiceConfig(r *Result) {
	if d.cfg.State.Path == "" {
		d.addError(r, "service", "state.path", "state.path is required")
	}
	if d.cfg.Engine.Concurrency < 1 {
		d.addError(r, "service", "engine.concurrency", "concurrency must be at least 1")
	}
	if d.cfg.Engine.JobTimeout <= 0 {
		d.addError(r, "service", "engine.job_timeout", "job_timeout must be positive")
	}
	if d.cfg.Worker.PollInterval <= 0 {
		d.addError(r, "service", "worker.poll_interval", "poll_interval must be positive")
	}
}

func (d *Doctor) validateStatePath(r *Result) {
	if d.cfg.State.Path == "" {
		return
	}
	if err := d.checkFS(d.cfg.State.Path); err != nil {
		d.addError(r, "state", "state.path", err.Error())
	}
}

func (d *Doctor) validateMetricsListen(r *Result) {
	addr := d.cfg.Worker.MetricsListen
	if addr == "" {
		return
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		d.addError(r, "metrics", "worker.metrics_listen", fmt.Sprintf("invalid listen address %q: %v", addr, err))
	}
}

// validatePlugins checks that every plugin declares resolvable types and
// unique input and output names.
func (d *Doctor) validatePlugins(r *Result) {
	for _, p := range d.registry.All() {
		field := "plugins." + p.Ref

		seen := make(map[string]bool, len(p.Inputs))
		for _, in := range p.Inputs {
			if seen[in.Name] {
				d.addError(r, "plugins", field, fmt.Sprintf("input %q declared twice", in.Name))
			}
			seen[in.Name] = true
			d.checkType(r, field, "input "+in.Name, in.Type)
		}

		seen = make(map[string]bool, len(p.Outputs))
		for _, out := range p.Outputs {
			if seen[out.Name] {
				d.addError(r, "plugins", field, fmt.Sprintf("output %q declared twice", out.Name))
			}
			seen[out.Name] = true
			d.checkType(r, field, "output "+out.Name, out.Type)
		}
	}
}

func (d *Doctor) checkType(r *Result, field, what, name string) {
	if name == "" {
		return
	}
	if target, ok := d.types.Retired(name); ok {
		d.addWarning(r, "plugins", field, fmt.Sprintf("%s uses deprecated type %q, treated as %q", what, name, target))
		return
	}
	if !types.IsBuiltin(name) {
		d.addError(r, "plugins", field, fmt.Sprintf("%s has unknown type %q", what, name))
	}
}

// warnTaskNameCollisions flags refs that generate the same task name, which
// would clash in a generated tasks document.
func (d *Doctor) warnTaskNameCollisions(r *Result) {
	byName := make(map[string][]string)
	for _, p := range d.registry.All() {
		name := plugin.TaskName(p.Ref)
		byName[name] = append(byName[name], p.Ref)
	}

	names := make([]string, 0, len(byName))
	for name, refs := range byName {
		if len(refs) > 1 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		d.addWarning(r, "plugins", "", fmt.Sprintf("plugins %s all map to task name %q", strings.Join(byName[name], ", "), name))
	}
}

func (d *Doctor) warnSuspiciousTimeouts(r *Result) {
	if t := d.cfg.Engine.JobTimeout; t > 0 && t < time.Second {
		d.addWarning(r, "service", "engine.job_timeout", fmt.Sprintf("job_timeout %v is very short", t))
	}
	if p := d.cfg.Worker.PollInterval; p > time.Minute {
		d.addWarning(r, "service", "worker.poll_interval", fmt.Sprintf("poll_interval %v delays every queued job", p))
	}
}

// FormatHuman returns a human-readable report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	switch {
	case r.Valid && len(r.Warnings) == 0:
		return "Configuration valid.\n"
	case r.Valid:
		fmt.Fprintf(&b, "Configuration valid (%d warning(s))\n", len(r.Warnings))
	default:
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		writeIssue(&b, "ERROR", e)
	}
	for _, w := range r.Warnings {
		writeIssue(&b, "WARN ", w)
	}
	return b.String()
}

func writeIssue(b *strings.Builder, level string, i Issue) {
	if i.Field != "" {
		fmt.Fprintf(b, "  %s [%s] %s: %s\n", level, i.Category, i.Field, i.Message)
		return
	}
	fmt.Fprintf(b, "  %s [%s] %s\n", level, i.Category, i.Message)
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
