package plugin

import (
	"fmt"
)

// Args are the resolved inputs of one invocation.
type Args map[string]any

// Has reports whether name was supplied.
func (a Args) Has(name string) bool {
	_, ok := a[name]
	return ok
}

// String returns a string argument.
func (a Args) String(name string) (string, error) {
	v, ok := a[name]
	if !ok {
		return "", fmt.Errorf("missing argument %q", name)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("argument %q: expected string, got %T", name, v)
	}
	return s, nil
}

// Float returns a numeric argument, or def when it is absent.
func (a Args) Float(name string, def float64) (float64, error) {
	v, ok := a[name]
	if !ok {
		return def, nil
	}
	f, ok := toFloat(v)
	if !ok {
		return 0, fmt.Errorf("argument %q: expected number, got %T", name, v)
	}
	return f, nil
}

// Int returns an integer argument, or def when it is absent.
func (a Args) Int(name string, def int) (int, error) {
	v, ok := a[name]
	if !ok {
		return def, nil
	}
	switch t := v.(type) {
	case int:
		return t, nil
	case int64:
		return int(t), nil
	}
	return 0, fmt.Errorf("argument %q: expected integer, got %T", name, v)
}

// Floats returns a list argument of numbers.
func (a Args) Floats(name string) ([]float64, error) {
	v, ok := a[name]
	if !ok {
		return nil, fmt.Errorf("missing argument %q", name)
	}
	switch t := v.(type) {
	case []float64:
		return t, nil
	case []any:
		out := make([]float64, len(t))
		for i, item := range t {
			f, ok := toFloat(item)
			if !ok {
				return nil, fmt.Errorf("argument %q[%d]: expected number, got %T", name, i, item)
			}
			out[i] = f
		}
		return out, nil
	}
	return nil, fmt.Errorf("argument %q: expected list, got %T", name, v)
}

// List returns a list argument.
func (a Args) List(name string) ([]any, error) {
	v, ok := a[name]
	if !ok {
		return nil, fmt.Errorf("missing argument %q", name)
	}
	switch t := v.(type) {
	case []any:
		return t, nil
	case []float64:
		out := make([]any, len(t))
		for i, f := range t {
			out[i] = f
		}
		return out, nil
	}
	return nil, fmt.Errorf("argument %q: expected list, got %T", name, v)
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	}
	return 0, false
}
