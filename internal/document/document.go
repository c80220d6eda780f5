// Package document loads task engine YAML into an ordered, generic structure.
//
// Nothing here interprets the sections: types, parameters, tasks and graph are
// kept verbatim so the validator can report every problem it finds. Mapping
// order is preserved because step declaration order is the planner's
// tie-break.
package document

import (
	"fmt"
	"os"

	"github.com/mattjoyce/taskengine/internal/diag"
	"gopkg.in/yaml.v3"
)

// Section names recognised at the top level.
const (
	SectionTypes      = "types"
	SectionParameters = "parameters"
	SectionTasks      = "tasks"
	SectionGraph      = "graph"
)

// Sections lists the top-level sections in canonical order.
var Sections = []string{SectionTypes, SectionParameters, SectionTasks, SectionGraph}

// Entry is one key/value pair of a mapping. Key keeps its decoded YAML type so
// non-string keys survive loading.
type Entry struct {
	Key   any
	Value any
	Line  int
}

// Mapping is an ordered YAML mapping.
type Mapping []Entry

// Get returns the value for the first entry whose key is the given string.
func (m Mapping) Get(key string) (any, bool) {
	for _, e := range m {
		if k, ok := e.Key.(string); ok && k == key {
			return e.Value, true
		}
	}
	return nil, false
}

// Keys returns the string keys in declaration order, skipping non-string keys.
func (m Mapping) Keys() []string {
	keys := make([]string, 0, len(m))
	for _, e := range m {
		if k, ok := e.Key.(string); ok {
			keys = append(keys, k)
		}
	}
	return keys
}

// IsComment reports whether a key is a metadata/comment key (leading underscore).
func IsComment(key string) bool {
	return len(key) > 0 && key[0] == '_'
}

// Document is a loaded task engine description.
type Document struct {
	Root Mapping
}

// Section returns the raw value of a top-level section.
func (d *Document) Section(name string) (any, bool) {
	if d == nil {
		return nil, false
	}
	return d.Root.Get(name)
}

// SectionMapping returns a section as a Mapping, or nil when it is absent or
// not a mapping. Shape problems are reported by the validator.
func (d *Document) SectionMapping(name string) Mapping {
	v, ok := d.Section(name)
	if !ok {
		return nil
	}
	m, _ := v.(Mapping)
	return m
}

// Types returns the custom type declarations.
func (d *Document) Types() Mapping { return d.SectionMapping(SectionTypes) }

// Parameters returns the global parameter declarations.
func (d *Document) Parameters() Mapping { return d.SectionMapping(SectionParameters) }

// Tasks returns the task definitions.
func (d *Document) Tasks() Mapping { return d.SectionMapping(SectionTasks) }

// Graph returns the step graph.
func (d *Document) Graph() Mapping { return d.SectionMapping(SectionGraph) }

// WithGraph returns a shallow copy of the document whose graph section is
// replaced. The receiver is left untouched.
func (d *Document) WithGraph(graph Mapping) *Document {
	root := make(Mapping, 0, len(d.Root)+1)
	replaced := false
	for _, e := range d.Root {
		if k, ok := e.Key.(string); ok && k == SectionGraph && !replaced {
			root = append(root, Entry{Key: k, Value: graph, Line: e.Line})
			replaced = true
			continue
		}
		root = append(root, e)
	}
	if !replaced {
		root = append(root, Entry{Key: SectionGraph, Value: graph})
	}
	return &Document{Root: root}
}

// Load parses YAML text. Malformed YAML is returned as an error; a document
// whose top level is not a mapping yields a SYNTAX issue and a nil document.
func Load(text []byte) (*Document, []diag.Issue, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(text, &root); err != nil {
		return nil, nil, fmt.Errorf("parse document: %w", err)
	}

	v, err := convert(&root)
	if err != nil {
		return nil, nil, fmt.Errorf("parse document: %w", err)
	}

	m, ok := v.(Mapping)
	if !ok {
		return nil, []diag.Issue{
			diag.Errorf(diag.Syntax, "top-level structure must be a mapping, got %s", KindOf(v)),
		}, nil
	}
	return &Document{Root: m}, nil, nil
}

// LoadFile reads and parses a document from disk.
func LoadFile(path string) (*Document, []diag.Issue, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read document %q: %w", path, err)
	}
	return Load(data)
}

// KindOf names the generic kind of a decoded value for diagnostics.
func KindOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case int, int64, uint64:
		return "integer"
	case float64:
		return "float"
	case []any:
		return "list"
	case Mapping:
		return "mapping"
	default:
		return fmt.Sprintf("%T", v)
	}
}
