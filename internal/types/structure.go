package types

import (
	"errors"
	"fmt"

	"github.com/mattjoyce/taskengine/internal/document"
)

// Form is the shape of a structured type.
type Form string

const (
	FormAlias  Form = "alias"
	FormFields Form = "fields"
	FormList   Form = "list"
	FormUnion  Form = "union"
)

// Expr is a type reference inside a structure: a name or an inline structure.
type Expr struct {
	Name   string
	Inline *Structure
}

func (e Expr) String() string {
	if e.Inline != nil {
		return e.Inline.String()
	}
	return e.Name
}

// Field is one named, typed member of a fields structure.
type Field struct {
	Name string
	Type Expr
}

// Structure describes a custom type.
type Structure struct {
	Form    Form
	Fields  []Field
	Elem    Expr
	Members []Expr
}

func (s *Structure) String() string {
	switch s.Form {
	case FormAlias:
		return s.Elem.String()
	case FormList:
		return "list of " + s.Elem.String()
	case FormUnion:
		out := "union of "
		for i, m := range s.Members {
			if i > 0 {
				out += "|"
			}
			out += m.String()
		}
		return out
	default:
		out := "{"
		for i, f := range s.Fields {
			if i > 0 {
				out += ", "
			}
			out += f.Name + ": " + f.Type.String()
		}
		return out + "}"
	}
}

// ParseStructure decodes a type declaration. Accepted shapes are a type name
// (alias), {fields: {...}}, {mapping: {...}}, {list: T} and {union: [T...]}.
func ParseStructure(raw any) (*Structure, error) {
	switch v := raw.(type) {
	case string:
		return &Structure{Form: FormAlias, Elem: Expr{Name: v}}, nil
	case document.Mapping:
		if len(v) != 1 {
			return nil, fmt.Errorf("structure must have exactly one of fields, mapping, list or union, got %d keys", len(v))
		}
		key, ok := v[0].Key.(string)
		if !ok {
			return nil, errors.New("structure key must be a string")
		}
		switch key {
		case "fields", "mapping":
			fields, ok := v[0].Value.(document.Mapping)
			if !ok {
				return nil, fmt.Errorf("%s must be a mapping of field name to type", key)
			}
			s := &Structure{Form: FormFields}
			for _, e := range fields {
				name, ok := e.Key.(string)
				if !ok {
					return nil, errors.New("field names must be strings")
				}
				expr, err := parseExpr(e.Value)
				if err != nil {
					return nil, fmt.Errorf("field %s: %w", name, err)
				}
				s.Fields = append(s.Fields, Field{Name: name, Type: expr})
			}
			return s, nil
		case "list":
			expr, err := parseExpr(v[0].Value)
			if err != nil {
				return nil, fmt.Errorf("list: %w", err)
			}
			return &Structure{Form: FormList, Elem: expr}, nil
		case "union":
			members, ok := v[0].Value.([]any)
			if !ok || len(members) == 0 {
				return nil, errors.New("union must be a non-empty list of types")
			}
			s := &Structure{Form: FormUnion}
			for i, m := range members {
				expr, err := parseExpr(m)
				if err != nil {
					return nil, fmt.Errorf("union member %d: %w", i, err)
				}
				s.Members = append(s.Members, expr)
			}
			return s, nil
		default:
			return nil, fmt.Errorf("unknown structure form %q", key)
		}
	default:
		return nil, fmt.Errorf("structure must be a type name or a mapping, got %s", document.KindOf(raw))
	}
}

// ParseExpr decodes a type reference as it appears in task inputs, outputs and
// parameters: a type name or an inline structure.
func ParseExpr(raw any) (Expr, error) {
	return parseExpr(raw)
}

func parseExpr(raw any) (Expr, error) {
	if name, ok := raw.(string); ok {
		if name == "" {
			return Expr{}, errors.New("type name must not be empty")
		}
		return Expr{Name: name}, nil
	}
	s, err := ParseStructure(raw)
	if err != nil {
		return Expr{}, err
	}
	return Expr{Inline: s}, nil
}

// References returns every type name an expression mentions, in order.
func (e Expr) References() []string {
	if e.Inline == nil {
		return []string{e.Name}
	}
	return e.Inline.References()
}

// References returns every type name a structure mentions, in order.
func (s *Structure) References() []string {
	var out []string
	switch s.Form {
	case FormAlias, FormList:
		out = append(out, s.Elem.References()...)
	case FormFields:
		for _, f := range s.Fields {
			out = append(out, f.Type.References()...)
		}
	case FormUnion:
		for _, m := range s.Members {
			out = append(out, m.References()...)
		}
	}
	return out
}
