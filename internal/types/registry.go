// Package types implements the parameter type system: builtin scalar types,
// custom structured types declared per document, value checks and the fixed
// string coercion rules.
package types

import (
	"errors"
	"fmt"
	"sort"
)

// Builtin type names.
const (
	String  = "string"
	Float   = "float"
	Integer = "integer"
	Boolean = "boolean"
	List    = "list"
	Mapping = "mapping"
)

// Builtins lists the builtin types in seeding order.
var Builtins = []string{String, Float, Integer, Boolean, List, Mapping}

// Kind separates builtin scalar types from document-declared structures.
type Kind string

const (
	KindScalar     Kind = "scalar"
	KindStructured Kind = "structured"
)

var (
	ErrDuplicateType = errors.New("duplicate type")
	ErrUnknownType   = errors.New("unknown type")
	ErrFrozen        = errors.New("type registry is frozen")
)

// Migration selects how retired builtin type names are handled.
type Migration int

const (
	// MigrationNone treats retired names as unknown types.
	MigrationNone Migration = iota
	// MigrationV1 maps the retired path and uri types onto string.
	MigrationV1
)

var retiredV1 = map[string]string{
	"path": String,
	"uri":  String,
}

// Type is a resolved parameter type.
type Type struct {
	Name      string
	Kind      Kind
	Structure *Structure
}

// Registry holds the types visible to one document. It is built once, frozen,
// and then shared read-only.
type Registry struct {
	types     map[string]*Type
	custom    []string
	migration Migration
	frozen    bool
}

// Option configures a Registry.
type Option func(*Registry)

// WithMigration sets the retired-type policy. The default is MigrationV1.
func WithMigration(m Migration) Option {
	return func(r *Registry) { r.migration = m }
}

// NewRegistry returns a registry seeded with the builtin types.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		types:     make(map[string]*Type, len(Builtins)),
		migration: MigrationV1,
	}
	for _, opt := range opts {
		opt(r)
	}
	for _, name := range Builtins {
		r.types[name] = &Type{Name: name, Kind: KindScalar}
	}
	return r
}

// Register adds a custom type.
func (r *Registry) Register(name string, kind Kind, s *Structure) error {
	if r.frozen {
		return ErrFrozen
	}
	if _, exists := r.types[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateType, name)
	}
	r.types[name] = &Type{Name: name, Kind: kind, Structure: s}
	r.custom = append(r.custom, name)
	return nil
}

// Freeze rejects further registrations.
func (r *Registry) Freeze() { r.frozen = true }

// Resolve looks a type up by name, applying the migration policy to retired
// names.
func (r *Registry) Resolve(name string) (*Type, error) {
	if t, ok := r.types[name]; ok {
		return t, nil
	}
	if target, ok := r.Retired(name); ok {
		return r.types[target], nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownType, name)
}

// Retired reports whether name is a retired type accepted under the current
// migration policy, and the name it now resolves to.
func (r *Registry) Retired(name string) (string, bool) {
	if _, ok := r.types[name]; ok {
		return "", false
	}
	if r.migration != MigrationV1 {
		return "", false
	}
	target, ok := retiredV1[name]
	return target, ok
}

// Canonical returns the name a type reference resolves to.
func (r *Registry) Canonical(name string) string {
	if target, ok := r.Retired(name); ok {
		return target
	}
	return name
}

// Custom returns the custom type names in registration order.
func (r *Registry) Custom() []string {
	out := make([]string, len(r.custom))
	copy(out, r.custom)
	return out
}

// Names returns every resolvable type name, sorted.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.types))
	for name := range r.types {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// IsBuiltin reports whether name is one of the builtin types.
func IsBuiltin(name string) bool {
	for _, b := range Builtins {
		if b == name {
			return true
		}
	}
	return false
}
