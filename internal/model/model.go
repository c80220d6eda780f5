// Package model holds the parsed form of graph steps: a tagged union of fixed
// invocations and variant groups, plus the bindings and references they carry.
package model

import (
	"fmt"
	"strings"

	"github.com/mattjoyce/taskengine/internal/document"
)

// VariantPrefix marks a variant group key inside a step.
const VariantPrefix = "?"

// Arg is one input binding. Name is empty for positional arguments.
type Arg struct {
	Name  string
	Value any
}

// ArgForm records how bindings were written.
type ArgForm int

const (
	ArgsNone ArgForm = iota
	ArgsKeyword
	ArgsPositional
)

// Invocation is a task name plus its bindings.
type Invocation struct {
	Task string
	Form ArgForm
	Args []Arg
}

// Option is one selectable invocation of a variant group. The option key is
// the task name of its invocation.
type Option struct {
	Key        string
	Invocation Invocation
}

// Variant is an unresolved choice between invocations.
type Variant struct {
	Group   string
	Options []Option
}

// Option returns the option with the given key.
func (v *Variant) Option(key string) (Option, bool) {
	for _, o := range v.Options {
		if o.Key == key {
			return o, true
		}
	}
	return Option{}, false
}

// Step is a graph node. Exactly one of Fixed and Variant is set on a
// well-formed step.
type Step struct {
	Name    string
	Index   int
	Fixed   *Invocation
	Variant *Variant
}

// IsVariant reports whether the step still awaits swap resolution.
func (s *Step) IsVariant() bool { return s.Variant != nil }

// ParseArgs decodes the bindings of one invocation.
func ParseArgs(raw any) (ArgForm, []Arg) {
	switch v := raw.(type) {
	case nil:
		return ArgsNone, nil
	case document.Mapping:
		args := make([]Arg, 0, len(v))
		for _, e := range v {
			name, ok := e.Key.(string)
			if !ok {
				name = fmt.Sprint(e.Key)
			}
			args = append(args, Arg{Name: name, Value: e.Value})
		}
		return ArgsKeyword, args
	case []any:
		args := make([]Arg, 0, len(v))
		for _, item := range v {
			args = append(args, Arg{Value: item})
		}
		return ArgsPositional, args
	default:
		return ArgsPositional, []Arg{{Value: v}}
	}
}

// ParseStep decodes a graph entry. Problems that keep the entry from being a
// single invocation are returned as messages; the step is still returned with
// whatever could be decoded.
func ParseStep(name string, index int, raw any) (*Step, []string) {
	step := &Step{Name: name, Index: index}

	m, ok := raw.(document.Mapping)
	if !ok {
		return step, []string{fmt.Sprintf("step `%s` must be a mapping, got %s", name, document.KindOf(raw))}
	}

	var problems []string
	count := 0
	for _, e := range m {
		key, ok := e.Key.(string)
		if !ok || document.IsComment(key) {
			continue
		}
		count++
		if count > 1 {
			continue
		}

		if group, ok := strings.CutPrefix(key, VariantPrefix); ok {
			v, msgs := parseVariant(name, group, e.Value)
			step.Variant = v
			problems = append(problems, msgs...)
			continue
		}

		form, args := ParseArgs(e.Value)
		step.Fixed = &Invocation{Task: key, Form: form, Args: args}
	}

	switch {
	case count == 0:
		problems = append(problems, fmt.Sprintf("step `%s` has no task invocation", name))
	case count > 1:
		problems = append(problems, fmt.Sprintf("step `%s` must have exactly one task invocation, found %d", name, count))
	}
	return step, problems
}

func parseVariant(step, group string, raw any) (*Variant, []string) {
	v := &Variant{Group: group}
	if group == "" {
		return v, []string{fmt.Sprintf("step `%s` has a variant marker without a group name", step)}
	}

	m, ok := raw.(document.Mapping)
	if !ok {
		return v, []string{fmt.Sprintf("variant group `%s` in step `%s` must map task names to bindings", group, step)}
	}
	for _, e := range m {
		key, ok := e.Key.(string)
		if !ok || document.IsComment(key) {
			continue
		}
		form, args := ParseArgs(e.Value)
		v.Options = append(v.Options, Option{Key: key, Invocation: Invocation{Task: key, Form: form, Args: args}})
	}
	if len(v.Options) == 0 {
		return v, []string{fmt.Sprintf("variant group `%s` in step `%s` has no variants", group, step)}
	}
	return v, nil
}

// ParseGraph decodes every non-comment graph entry in declaration order.
// Problems are keyed by step name in the same order.
func ParseGraph(graph document.Mapping) ([]*Step, []string) {
	var (
		steps    []*Step
		problems []string
	)
	for _, e := range graph {
		name, ok := e.Key.(string)
		if !ok || document.IsComment(name) {
			continue
		}
		step, msgs := ParseStep(name, len(steps), e.Value)
		steps = append(steps, step)
		problems = append(problems, msgs...)
	}
	return steps, problems
}
