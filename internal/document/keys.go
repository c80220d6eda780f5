package document

import (
	"fmt"

	"github.com/mattjoyce/taskengine/internal/diag"
)

// NonStringKeys reports every mapping key below v that is not a string, one
// issue per occurrence. path names v in messages (e.g. "graph").
func NonStringKeys(path string, v any) []diag.Issue {
	var issues []diag.Issue
	walkKeys(path, v, &issues)
	return issues
}

func walkKeys(path string, v any, issues *[]diag.Issue) {
	switch t := v.(type) {
	case Mapping:
		for _, e := range t {
			k, ok := e.Key.(string)
			if !ok {
				*issues = append(*issues, diag.Errorf(diag.Syntax,
					"%s: key %s (%s, line %d) is not a string", path, formatKey(e.Key), KindOf(e.Key), e.Line))
				k = formatKey(e.Key)
			}
			walkKeys(JoinPath(path, k), e.Value, issues)
		}
	case []any:
		for i, item := range t {
			walkKeys(fmt.Sprintf("%s[%d]", path, i), item, issues)
		}
	}
}

func formatKey(k any) string {
	switch t := k.(type) {
	case nil:
		return "null"
	case string:
		return t
	case Mapping, []any:
		return "<" + KindOf(k) + ">"
	default:
		return fmt.Sprint(k)
	}
}

// JoinPath appends a key to a dotted diagnostic path.
func JoinPath(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}
