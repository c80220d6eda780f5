package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/mattjoyce/taskengine/internal/document"
)

// maxDepth bounds alias chains and nesting so a self-referential custom type
// cannot recurse forever.
const maxDepth = 32

var errTooDeep = errors.New("type nesting too deep (self-referential type?)")

// Named returns an expression for a type name.
func Named(name string) Expr { return Expr{Name: name} }

// Untyped is the expression of a parameter declared with a null default.
var Untyped = Expr{}

// IsUntyped reports whether e carries no type.
func (e Expr) IsUntyped() bool { return e.Name == "" && e.Inline == nil }

// Check verifies that a decoded literal conforms to e without coercing
// strings. Integers are accepted where floats are expected.
func (r *Registry) Check(value any, e Expr) error {
	_, err := r.convert(value, e, false, 0)
	return err
}

// Coerce converts value to e. Strings are parsed for boolean, float, integer,
// list and mapping targets; other values are checked and integers widen to
// float. The result uses plain map[string]any / []any containers.
func (r *Registry) Coerce(value any, e Expr) (any, error) {
	return r.convert(value, e, true, 0)
}

func (r *Registry) structureOf(e Expr) (*Structure, string, error) {
	if e.Inline != nil {
		return e.Inline, "", nil
	}
	t, err := r.Resolve(e.Name)
	if err != nil {
		return nil, "", err
	}
	if t.Kind == KindScalar {
		return nil, t.Name, nil
	}
	return t.Structure, "", nil
}

func (r *Registry) convert(value any, e Expr, coerce bool, depth int) (any, error) {
	if depth > maxDepth {
		return nil, errTooDeep
	}
	if e.IsUntyped() {
		return document.Plain(value), nil
	}

	s, builtin, err := r.structureOf(e)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return convertBuiltin(value, builtin, coerce)
	}

	if str, ok := value.(string); ok && coerce && s.Form != FormAlias && s.Form != FormUnion {
		parsed, err := parseJSON(str)
		if err != nil {
			return nil, fmt.Errorf("cannot coerce %q to %s: %w", str, e, err)
		}
		value = parsed
	}

	switch s.Form {
	case FormAlias:
		return r.convert(value, s.Elem, coerce, depth+1)

	case FormList:
		items, ok := asList(value)
		if !ok {
			return nil, mismatch(e.String(), value)
		}
		out := make([]any, len(items))
		for i, item := range items {
			v, err := r.convert(item, s.Elem, coerce, depth+1)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = v
		}
		return out, nil

	case FormFields:
		m, ok := asMap(value)
		if !ok {
			return nil, mismatch(e.String(), value)
		}
		out := make(map[string]any, len(s.Fields))
		for _, f := range s.Fields {
			fv, present := m[f.Name]
			if !present {
				return nil, fmt.Errorf("missing field %q", f.Name)
			}
			v, err := r.convert(fv, f.Type, coerce, depth+1)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", f.Name, err)
			}
			out[f.Name] = v
		}
		for k := range m {
			if !s.hasField(k) {
				return nil, fmt.Errorf("unexpected field %q", k)
			}
		}
		return out, nil

	case FormUnion:
		var errs []string
		// Exact matches first so "42" bound to integer|string stays a string.
		for _, m := range s.Members {
			if v, err := r.convert(value, m, false, depth+1); err == nil {
				return v, nil
			}
		}
		if coerce {
			for _, m := range s.Members {
				v, err := r.convert(value, m, true, depth+1)
				if err == nil {
					return v, nil
				}
				errs = append(errs, err.Error())
			}
		}
		if len(errs) == 0 {
			return nil, mismatch(e.String(), value)
		}
		return nil, fmt.Errorf("no member of %s accepts the value: %s", e, strings.Join(errs, "; "))
	}
	return nil, fmt.Errorf("unsupported structure form %q", s.Form)
}

func (s *Structure) hasField(name string) bool {
	for _, f := range s.Fields {
		if f.Name == name {
			return true
		}
	}
	return false
}

func convertBuiltin(value any, name string, coerce bool) (any, error) {
	if str, ok := value.(string); ok && coerce && name != String {
		return coerceString(str, name)
	}

	switch name {
	case String:
		if s, ok := value.(string); ok {
			return s, nil
		}
	case Boolean:
		if b, ok := value.(bool); ok {
			return b, nil
		}
	case Integer:
		if i, ok := asInt(value); ok {
			return i, nil
		}
	case Float:
		if f, ok := asFloat(value); ok {
			return f, nil
		}
	case List:
		if items, ok := asList(value); ok {
			return document.Plain(items), nil
		}
	case Mapping:
		if m, ok := asMap(value); ok {
			return m, nil
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, name)
	}
	return nil, mismatch(name, value)
}

// coerceString applies the fixed string coercion rules.
func coerceString(s, name string) (any, error) {
	switch name {
	case Boolean:
		switch strings.ToLower(s) {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
		return nil, fmt.Errorf("cannot coerce %q to boolean: expected \"true\" or \"false\"", s)
	case Integer:
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("cannot coerce %q to integer", s)
		}
		return int(i), nil
	case Float:
		// ParseFloat also takes hex literals and Inf/NaN; parameters are decimal and finite.
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || isHex(s) || math.IsInf(f, 0) || math.IsNaN(f) {
			return nil, fmt.Errorf("cannot coerce %q to float", s)
		}
		return f, nil
	case List:
		v, err := parseJSON(s)
		if err != nil {
			return nil, fmt.Errorf("cannot coerce %q to list: %w", s, err)
		}
		if items, ok := v.([]any); ok {
			return items, nil
		}
		return nil, fmt.Errorf("cannot coerce %q to list: JSON value is not an array", s)
	case Mapping:
		v, err := parseJSON(s)
		if err != nil {
			return nil, fmt.Errorf("cannot coerce %q to mapping: %w", s, err)
		}
		if m, ok := v.(map[string]any); ok {
			return m, nil
		}
		return nil, fmt.Errorf("cannot coerce %q to mapping: JSON value is not an object", s)
	}
	return nil, mismatch(name, s)
}

func parseJSON(s string) (any, error) {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	return normalizeJSON(v), nil
}

// normalizeJSON turns integral JSON numbers into ints so decoded containers
// match YAML-decoded literals.
func normalizeJSON(v any) any {
	switch t := v.(type) {
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1<<53 {
			return int(t)
		}
		return t
	case []any:
		for i := range t {
			t[i] = normalizeJSON(t[i])
		}
		return t
	case map[string]any:
		for k := range t {
			t[k] = normalizeJSON(t[k])
		}
		return t
	}
	return v
}

func asInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case int32:
		return int(t), true
	case uint64:
		if t <= math.MaxInt64 {
			return int(t), true
		}
	}
	return 0, false
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	}
	if i, ok := asInt(v); ok {
		return float64(i), true
	}
	return 0, false
}

func asList(v any) ([]any, bool) {
	switch t := v.(type) {
	case []any:
		return t, true
	case []float64:
		out := make([]any, len(t))
		for i, f := range t {
			out[i] = f
		}
		return out, true
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out, true
	}
	return nil, false
}

func asMap(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case document.Mapping:
		m, _ := document.Plain(t).(map[string]any)
		return m, true
	case map[string]any:
		return t, true
	}
	return nil, false
}

func mismatch(want string, got any) error {
	return fmt.Errorf("expected %s, got %s", want, describe(got))
}

func describe(v any) string {
	if s, ok := v.(string); ok {
		return fmt.Sprintf("string %q", s)
	}
	switch v.(type) {
	case nil, document.Mapping, []any, map[string]any:
		return document.KindOf(document.FromPlain(v))
	}
	return fmt.Sprintf("%s %v", document.KindOf(v), v)
}

// Infer returns the builtin type of a bare literal, or Untyped for null.
func Infer(value any) Expr {
	switch value.(type) {
	case nil:
		return Untyped
	case string:
		return Named(String)
	case bool:
		return Named(Boolean)
	case int, int64, uint64:
		return Named(Integer)
	case float64:
		return Named(Float)
	case []any:
		return Named(List)
	default:
		return Named(Mapping)
	}
}

// AcceptsContainer reports whether a list or mapping literal whose members are
// only known at run time can satisfy e. Only the container kind is checked.
func (r *Registry) AcceptsContainer(value any, e Expr) bool {
	return r.acceptsContainer(value, e, 0)
}

func (r *Registry) acceptsContainer(value any, e Expr, depth int) bool {
	if depth > maxDepth {
		return false
	}
	if e.IsUntyped() {
		return true
	}
	_, isList := asList(value)
	_, isMap := asMap(value)

	s, builtin, err := r.structureOf(e)
	if err != nil {
		return true
	}
	if s == nil {
		return (isList && builtin == List) || (isMap && builtin == Mapping)
	}
	switch s.Form {
	case FormAlias:
		return r.acceptsContainer(value, s.Elem, depth+1)
	case FormList:
		return isList
	case FormFields:
		return isMap
	case FormUnion:
		for _, m := range s.Members {
			if r.acceptsContainer(value, m, depth+1) {
				return true
			}
		}
	}
	return false
}

func isHex(s string) bool {
	s = strings.TrimLeft(s, "+-")
	return strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X")
}
