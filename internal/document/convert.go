package document

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

const mergeTag = "!!merge"

// convert turns a yaml.Node tree into Mapping / []any / scalar values.
func convert(n *yaml.Node) (any, error) {
	switch n.Kind {
	case 0:
		return nil, nil
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil, nil
		}
		return convert(n.Content[0])
	case yaml.AliasNode:
		if n.Alias == nil {
			return nil, fmt.Errorf("line %d: dangling alias", n.Line)
		}
		return convert(n.Alias)
	case yaml.SequenceNode:
		out := make([]any, 0, len(n.Content))
		for _, c := range n.Content {
			v, err := convert(c)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case yaml.MappingNode:
		return convertMapping(n)
	case yaml.ScalarNode:
		var v any
		if err := n.Decode(&v); err != nil {
			return nil, fmt.Errorf("line %d: %w", n.Line, err)
		}
		return v, nil
	default:
		return nil, fmt.Errorf("line %d: unsupported YAML node kind %d", n.Line, n.Kind)
	}
}

func convertMapping(n *yaml.Node) (Mapping, error) {
	out := make(Mapping, 0, len(n.Content)/2)
	var merged Mapping

	for i := 0; i+1 < len(n.Content); i += 2 {
		kn, vn := n.Content[i], n.Content[i+1]
		if kn.Tag == mergeTag {
			m, err := mergeSources(vn)
			if err != nil {
				return nil, err
			}
			merged = append(merged, m...)
			continue
		}

		key, err := convert(kn)
		if err != nil {
			return nil, err
		}
		val, err := convert(vn)
		if err != nil {
			return nil, err
		}
		out = append(out, Entry{Key: key, Value: val, Line: kn.Line})
	}

	// Explicit keys win over merged ones.
	for _, e := range merged {
		if k, ok := e.Key.(string); ok {
			if _, exists := out.Get(k); exists {
				continue
			}
		}
		out = append(out, e)
	}
	return out, nil
}

func mergeSources(n *yaml.Node) (Mapping, error) {
	v, err := convert(n)
	if err != nil {
		return nil, err
	}
	switch src := v.(type) {
	case Mapping:
		return src, nil
	case []any:
		var out Mapping
		for _, item := range src {
			m, ok := item.(Mapping)
			if !ok {
				return nil, fmt.Errorf("line %d: merge sequence must contain mappings", n.Line)
			}
			out = append(out, m...)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("line %d: merge value must be a mapping", n.Line)
	}
}
