package document

import (
	"fmt"
	"sort"
)

// Plain converts loaded values into the map[string]any / []any shapes used by
// encoding/json and by plugins. Non-string keys are rendered with fmt.
func Plain(v any) any {
	switch t := v.(type) {
	case Mapping:
		out := make(map[string]any, len(t))
		for _, e := range t {
			k, ok := e.Key.(string)
			if !ok {
				k = fmt.Sprint(e.Key)
			}
			out[k] = Plain(e.Value)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = Plain(item)
		}
		return out
	default:
		return v
	}
}

// FromPlain converts plain Go values into loaded values so that builder input
// and decoded YAML share one representation. Map keys are sorted because Go
// maps carry no order.
func FromPlain(v any) any {
	switch t := v.(type) {
	case Mapping:
		out := make(Mapping, len(t))
		for i, e := range t {
			out[i] = Entry{Key: e.Key, Value: FromPlain(e.Value), Line: e.Line}
		}
		return out
	case map[string]any:
		keys := sortedKeys(t)
		out := make(Mapping, 0, len(t))
		for _, k := range keys {
			out = append(out, Entry{Key: k, Value: FromPlain(t[k])})
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = FromPlain(item)
		}
		return out
	case []string:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = item
		}
		return out
	case []float64:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = item
		}
		return out
	case float32:
		return float64(t)
	case int32:
		return int(t)
	case int64:
		return int(t)
	default:
		return v
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
