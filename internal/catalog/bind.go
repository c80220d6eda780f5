package catalog

import "github.com/mattjoyce/taskengine/internal/model"

// BoundArg pairs a declared input with the value a step binds to it.
type BoundArg struct {
	Input *Input
	Value any
}

// Binding is the result of matching an invocation's arguments to a task's
// inputs. Positional arguments follow declared input order.
type Binding struct {
	Args      []BoundArg
	Extra     int
	Unknown   []string
	Duplicate []string
	Missing   []string
}

// Bound reports whether the named input received a value.
func (b *Binding) Bound(name string) bool {
	for _, a := range b.Args {
		if a.Input.Name == name {
			return true
		}
	}
	return false
}

// Bind matches inv's arguments against t's inputs.
func (t *Task) Bind(inv *model.Invocation) *Binding {
	b := &Binding{}
	seen := make(map[string]bool)

	for i, arg := range inv.Args {
		var in *Input
		if arg.Name == "" {
			if i >= len(t.Inputs) {
				b.Extra++
				continue
			}
			in = &t.Inputs[i]
		} else {
			var ok bool
			in, ok = t.Input(arg.Name)
			if !ok {
				b.Unknown = append(b.Unknown, arg.Name)
				continue
			}
		}
		if seen[in.Name] {
			b.Duplicate = append(b.Duplicate, in.Name)
			continue
		}
		seen[in.Name] = true
		b.Args = append(b.Args, BoundArg{Input: in, Value: arg.Value})
	}

	for i := range t.Inputs {
		in := &t.Inputs[i]
		if in.NeedsBinding() && !seen[in.Name] {
			b.Missing = append(b.Missing, in.Name)
		}
	}
	return b
}
