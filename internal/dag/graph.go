// Package dag builds the step dependency graph and plans tiered execution.
package dag

import (
	"sort"

	"github.com/mattjoyce/taskengine/internal/model"
)

// Node is one step in the dependency graph.
type Node struct {
	Name  string `json:"name"`
	Index int    `json:"index"`
	Task  string `json:"task"`
}

// Edge runs from a dependency to its dependent.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Graph is the dependency graph of a resolved step set. Nodes keep
// declaration order.
type Graph struct {
	Nodes      []Node
	Edges      []Edge
	index      map[string]int
	deps       map[string][]string
	dependents map[string][]string
}

// Build extracts dependency edges from step-output references. Variant steps,
// repeated step names and references to unknown steps are skipped; the
// validator reports those. Self-references are kept as self-loops so the
// planner refuses them.
func Build(steps []*model.Step) *Graph {
	g := &Graph{
		index:      make(map[string]int, len(steps)),
		deps:       make(map[string][]string, len(steps)),
		dependents: make(map[string][]string, len(steps)),
	}

	var fixed []*model.Step
	for _, s := range steps {
		if s.Fixed == nil {
			continue
		}
		if _, dup := g.index[s.Name]; dup {
			continue
		}
		g.index[s.Name] = len(g.Nodes)
		g.Nodes = append(g.Nodes, Node{Name: s.Name, Index: len(g.Nodes), Task: s.Fixed.Task})
		fixed = append(fixed, s)
	}

	for _, s := range fixed {
		for _, dep := range s.Fixed.StepDeps() {
			if _, ok := g.index[dep]; !ok {
				continue
			}
			g.Edges = append(g.Edges, Edge{From: dep, To: s.Name})
			g.deps[s.Name] = append(g.deps[s.Name], dep)
			g.dependents[dep] = append(g.dependents[dep], s.Name)
		}
	}
	for name := range g.dependents {
		g.sortByIndex(g.dependents[name])
	}
	return g
}

// Has reports whether name is a node.
func (g *Graph) Has(name string) bool {
	_, ok := g.index[name]
	return ok
}

// Index returns the declaration index of a node, or -1.
func (g *Graph) Index(name string) int {
	if i, ok := g.index[name]; ok {
		return i
	}
	return -1
}

// Dependencies returns the direct upstream steps of name.
func (g *Graph) Dependencies(name string) []string {
	return append([]string(nil), g.deps[name]...)
}

// Dependents returns the direct downstream steps of name in declaration order.
func (g *Graph) Dependents(name string) []string {
	return append([]string(nil), g.dependents[name]...)
}

// Descendants returns every step transitively depending on name, in
// declaration order.
func (g *Graph) Descendants(name string) []string {
	seen := map[string]bool{name: true}
	stack := append([]string(nil), g.dependents[name]...)
	var out []string
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
		stack = append(stack, g.dependents[n]...)
	}
	g.sortByIndex(out)
	return out
}

func (g *Graph) sortByIndex(names []string) {
	sort.SliceStable(names, func(i, j int) bool { return g.index[names[i]] < g.index[names[j]] })
}

// FindCycles returns one entry per strongly connected group of two or more
// steps, participants in declaration order, groups ordered by their first
// participant. Self-loops are not included.
func (g *Graph) FindCycles() [][]string {
	var (
		counter  int
		stack    []string
		onStack  = make(map[string]bool)
		indexOf  = make(map[string]int)
		lowlink  = make(map[string]int)
		visited  = make(map[string]bool)
		cycles   [][]string
		strongly func(v string)
	)

	strongly = func(v string) {
		visited[v] = true
		indexOf[v] = counter
		lowlink[v] = counter
		counter++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range g.dependents[v] {
			if !visited[w] {
				strongly(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indexOf[w])
			}
		}

		if lowlink[v] != indexOf[v] {
			return
		}
		var scc []string
		for {
			w := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			onStack[w] = false
			scc = append(scc, w)
			if w == v {
				break
			}
		}
		if len(scc) > 1 {
			g.sortByIndex(scc)
			cycles = append(cycles, scc)
		}
	}

	for _, n := range g.Nodes {
		if !visited[n.Name] {
			strongly(n.Name)
		}
	}

	sort.SliceStable(cycles, func(i, j int) bool {
		return g.index[cycles[i][0]] < g.index[cycles[j][0]]
	})
	return cycles
}

// SelfLoops returns the steps that depend on themselves, in declaration order.
func (g *Graph) SelfLoops() []string {
	var out []string
	for _, n := range g.Nodes {
		for _, d := range g.deps[n.Name] {
			if d == n.Name {
				out = append(out, n.Name)
				break
			}
		}
	}
	return out
}
