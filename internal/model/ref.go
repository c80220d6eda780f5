package model

import (
	"strings"

	"github.com/mattjoyce/taskengine/internal/document"
)

// RefKind classifies a reference binding.
type RefKind int

const (
	RefParam RefKind = iota + 1
	RefStep
	RefInvalid
)

// Ref is a parsed "$param", "$step.output" or "$step.outputs.output" binding.
type Ref struct {
	Kind   RefKind
	Param  string
	Step   string
	Output string
	Raw    string
}

func (r Ref) String() string { return r.Raw }

// ParseRef parses s as a reference. ok is false for strings that are not
// references at all; malformed references come back with Kind RefInvalid.
func ParseRef(s string) (Ref, bool) {
	body, ok := strings.CutPrefix(s, "$")
	if !ok {
		return Ref{}, false
	}

	ref := Ref{Raw: s, Kind: RefInvalid}
	parts := strings.Split(body, ".")
	for _, p := range parts {
		if p == "" {
			return ref, true
		}
	}

	switch {
	case len(parts) == 1:
		ref.Kind, ref.Param = RefParam, parts[0]
	case len(parts) == 2:
		ref.Kind, ref.Step, ref.Output = RefStep, parts[0], parts[1]
	case len(parts) == 3 && parts[1] == "outputs":
		ref.Kind, ref.Step, ref.Output = RefStep, parts[0], parts[2]
	}
	return ref, true
}

// Refs returns every reference found in a binding value, walking nested lists
// and mappings in order.
func Refs(value any) []Ref {
	var out []Ref
	walkRefs(value, &out)
	return out
}

func walkRefs(value any, out *[]Ref) {
	switch v := value.(type) {
	case string:
		if ref, ok := ParseRef(v); ok {
			*out = append(*out, ref)
		}
	case []any:
		for _, item := range v {
			walkRefs(item, out)
		}
	case document.Mapping:
		for _, e := range v {
			walkRefs(e.Value, out)
		}
	}
}

// Refs returns every reference across an invocation's bindings.
func (inv *Invocation) Refs() []Ref {
	var out []Ref
	for _, a := range inv.Args {
		walkRefs(a.Value, &out)
	}
	return out
}

// StepDeps returns the distinct upstream step names of an invocation in first
// reference order.
func (inv *Invocation) StepDeps() []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range inv.Refs() {
		if r.Kind != RefStep || seen[r.Step] {
			continue
		}
		seen[r.Step] = true
		out = append(out, r.Step)
	}
	return out
}
