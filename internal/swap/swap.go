// Package swap resolves variant groups in a graph using a caller-supplied
// selection of group name to variant key.
package swap

import (
	"sort"
	"strings"

	"github.com/mattjoyce/taskengine/internal/diag"
	"github.com/mattjoyce/taskengine/internal/document"
	"github.com/mattjoyce/taskengine/internal/model"
)

// Resolve replaces every variant group entry with the invocation selected by
// swaps. The input graph is not modified. Every problem is a SEMANTIC error:
// a group without a selection, a selection naming no variant of the group, and
// a selection no step consumed.
func Resolve(graph document.Mapping, swaps map[string]string) (document.Mapping, []diag.Issue) {
	var issues []diag.Issue
	used := make(map[string]bool, len(swaps))

	resolved := make(document.Mapping, 0, len(graph))
	for _, e := range graph {
		name, ok := e.Key.(string)
		stepMap, isMap := e.Value.(document.Mapping)
		if !ok || document.IsComment(name) || !isMap {
			resolved = append(resolved, e)
			continue
		}

		out := make(document.Mapping, 0, len(stepMap))
		for _, entry := range stepMap {
			key, ok := entry.Key.(string)
			group, isVariant := strings.CutPrefix(key, model.VariantPrefix)
			if !ok || !isVariant {
				out = append(out, entry)
				continue
			}

			choice, provided := swaps[group]
			if !provided {
				issues = append(issues, diag.Errorf(diag.Semantic, "swap `%s` needed by graph but not provided", group))
				out = append(out, entry)
				continue
			}
			used[group] = true

			selected, found := selectVariant(entry.Value, choice)
			if !found {
				issues = append(issues, diag.Errorf(diag.Semantic, "task `%s` requested for swap but not found", choice))
				out = append(out, entry)
				continue
			}
			out = append(out, document.Entry{Key: choice, Value: selected, Line: entry.Line})
		}
		resolved = append(resolved, document.Entry{Key: e.Key, Value: out, Line: e.Line})
	}

	unused := make([]string, 0)
	for name := range swaps {
		if !used[name] {
			unused = append(unused, name)
		}
	}
	sort.Strings(unused)
	for _, name := range unused {
		issues = append(issues, diag.Errorf(diag.Semantic, "swap `%s` provided but not used", name))
	}

	return resolved, issues
}

func selectVariant(raw any, choice string) (any, bool) {
	variants, ok := raw.(document.Mapping)
	if !ok {
		return nil, false
	}
	return variants.Get(choice)
}

// Groups returns the variant group names a graph needs, in first-use order.
func Groups(graph document.Mapping) []string {
	steps, _ := model.ParseGraph(graph)
	seen := make(map[string]bool)
	var out []string
	for _, s := range steps {
		if s.Variant == nil || seen[s.Variant.Group] {
			continue
		}
		seen[s.Variant.Group] = true
		out = append(out, s.Variant.Group)
	}
	return out
}

// ResolveDocument resolves the graph section of doc and returns a new
// document carrying the resolved graph.
func ResolveDocument(doc *document.Document, swaps map[string]string) (*document.Document, []diag.Issue) {
	graph, issues := Resolve(doc.Graph(), swaps)
	return doc.WithGraph(graph), issues
}
