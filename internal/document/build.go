package document

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

// TypeSpec declares a custom type for a built document.
type TypeSpec struct {
	Name      string
	Structure any
}

// ParameterSpec declares a global parameter. An empty Type emits the bare
// default literal; otherwise the explicit {type, default} form is used.
type ParameterSpec struct {
	Name    string
	Type    string
	Default any
}

// InputSpec describes one task input.
type InputSpec struct {
	Name     string
	Type     string
	Optional bool
	Default  any
}

// OutputSpec describes one task output.
type OutputSpec struct {
	Name string
	Type string
}

// TaskSpec is the metadata a plugin contributes to a generated document.
type TaskSpec struct {
	Name    string
	Plugin  string
	Inputs  []InputSpec
	Outputs []OutputSpec
}

// BuildSpec collects everything needed to generate a document.
type BuildSpec struct {
	Types      []TypeSpec
	Parameters []ParameterSpec
	Tasks      []TaskSpec
	Graph      Mapping
}

// BuildDocument assembles a document from plugin metadata, parameters and a
// graph. Sections are emitted in canonical order; empty sections are omitted
// except graph.
func BuildDocument(spec BuildSpec) *Document {
	var root Mapping

	if len(spec.Types) > 0 {
		types := make(Mapping, 0, len(spec.Types))
		for _, t := range spec.Types {
			types = append(types, Entry{Key: t.Name, Value: FromPlain(t.Structure)})
		}
		root = append(root, Entry{Key: SectionTypes, Value: types})
	}

	if len(spec.Parameters) > 0 {
		params := make(Mapping, 0, len(spec.Parameters))
		for _, p := range spec.Parameters {
			var v any = FromPlain(p.Default)
			if p.Type != "" {
				decl := Mapping{{Key: "type", Value: p.Type}}
				if p.Default != nil {
					decl = append(decl, Entry{Key: "default", Value: FromPlain(p.Default)})
				}
				v = decl
			}
			params = append(params, Entry{Key: p.Name, Value: v})
		}
		root = append(root, Entry{Key: SectionParameters, Value: params})
	}

	if len(spec.Tasks) > 0 {
		tasks := make(Mapping, 0, len(spec.Tasks))
		for _, t := range spec.Tasks {
			tasks = append(tasks, Entry{Key: t.Name, Value: taskMapping(t)})
		}
		root = append(root, Entry{Key: SectionTasks, Value: tasks})
	}

	graph := spec.Graph
	if graph == nil {
		graph = Mapping{}
	}
	root = append(root, Entry{Key: SectionGraph, Value: FromPlain(graph)})

	return &Document{Root: root}
}

func taskMapping(t TaskSpec) Mapping {
	m := Mapping{{Key: "plugin", Value: t.Plugin}}

	if len(t.Inputs) > 0 {
		inputs := make([]any, 0, len(t.Inputs))
		for _, in := range t.Inputs {
			decl := Mapping{
				{Key: "name", Value: in.Name},
				{Key: "type", Value: in.Type},
			}
			if in.Optional {
				decl = append(decl, Entry{Key: "required", Value: false})
			}
			if in.Default != nil {
				decl = append(decl, Entry{Key: "default", Value: FromPlain(in.Default)})
			}
			inputs = append(inputs, decl)
		}
		m = append(m, Entry{Key: "inputs", Value: inputs})
	}

	if len(t.Outputs) > 0 {
		outputs := make([]any, 0, len(t.Outputs))
		for _, out := range t.Outputs {
			outputs = append(outputs, Mapping{{Key: out.Name, Value: out.Type}})
		}
		m = append(m, Entry{Key: "outputs", Value: outputs})
	}
	return m
}

// Build generates the YAML text of a document from spec.
func Build(spec BuildSpec) ([]byte, error) {
	return Marshal(BuildDocument(spec).Root)
}

// Marshal renders a Mapping as YAML, keeping entry order.
func Marshal(m Mapping) ([]byte, error) {
	node, err := toNode(m)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(node); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return buf.Bytes(), nil
}

func toNode(v any) (*yaml.Node, error) {
	switch t := v.(type) {
	case Mapping:
		n := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		for _, e := range t {
			k, err := toNode(e.Key)
			if err != nil {
				return nil, err
			}
			val, err := toNode(e.Value)
			if err != nil {
				return nil, err
			}
			n.Content = append(n.Content, k, val)
		}
		return n, nil
	case []any:
		n := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, item := range t {
			c, err := toNode(item)
			if err != nil {
				return nil, err
			}
			n.Content = append(n.Content, c)
		}
		return n, nil
	case map[string]any:
		return toNode(FromPlain(t))
	default:
		n := &yaml.Node{}
		if err := n.Encode(v); err != nil {
			return nil, fmt.Errorf("encode value %v: %w", v, err)
		}
		return n, nil
	}
}
