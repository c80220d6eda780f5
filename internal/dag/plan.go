package dag

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/zeebo/blake3"
)

// ErrCyclicGraph is returned when the planner cannot place every step.
var ErrCyclicGraph = errors.New("dependency graph contains a cycle")

// Plan is a tiered execution order. Steps in one tier are mutually
// independent; every dependency of a step lies in an earlier tier.
type Plan struct {
	Tiers       [][]string `json:"tiers"`
	Fingerprint string     `json:"fingerprint"` // blake3:<hex> of normalized nodes and edges.
	tierOf      map[string]int
}

// TierOf returns the tier index of a step.
func (p *Plan) TierOf(step string) (int, bool) {
	t, ok := p.tierOf[step]
	return t, ok
}

// Steps returns every planned step, tier by tier.
func (p *Plan) Steps() []string {
	var out []string
	for _, tier := range p.Tiers {
		out = append(out, tier...)
	}
	return out
}

// String renders the plan as "[a, b] -> [c]".
func (p *Plan) String() string {
	parts := make([]string, 0, len(p.Tiers))
	for _, tier := range p.Tiers {
		parts = append(parts, "["+strings.Join(tier, ", ")+"]")
	}
	return strings.Join(parts, " -> ")
}

// PlanGraph orders g into tiers with Kahn's algorithm. Within a tier steps
// keep declaration order.
func PlanGraph(g *Graph) (*Plan, error) {
	inDegree := make(map[string]int, len(g.Nodes))
	for _, n := range g.Nodes {
		inDegree[n.Name] = len(g.deps[n.Name])
	}

	var ready []string
	for _, n := range g.Nodes {
		if inDegree[n.Name] == 0 {
			ready = append(ready, n.Name)
		}
	}

	plan := &Plan{tierOf: make(map[string]int, len(g.Nodes))}
	placed := 0
	for len(ready) > 0 {
		tier := ready
		g.sortByIndex(tier)
		ready = nil

		for _, n := range tier {
			plan.tierOf[n] = len(plan.Tiers)
			placed++
			for _, next := range g.dependents[n] {
				inDegree[next]--
				if inDegree[next] == 0 {
					ready = append(ready, next)
				}
			}
		}
		plan.Tiers = append(plan.Tiers, tier)
	}

	if placed != len(g.Nodes) {
		var stuck []string
		for _, n := range g.Nodes {
			if _, ok := plan.tierOf[n.Name]; !ok {
				stuck = append(stuck, n.Name)
			}
		}
		return nil, fmt.Errorf("%w: unplaceable steps %s", ErrCyclicGraph, strings.Join(stuck, ", "))
	}

	fp, err := fingerprint(g, plan)
	if err != nil {
		return nil, err
	}
	plan.Fingerprint = fp
	return plan, nil
}

func fingerprint(g *Graph, p *Plan) (string, error) {
	type fingerprintShape struct {
		Nodes []Node     `json:"nodes"`
		Edges []Edge     `json:"edges"`
		Tiers [][]string `json:"tiers"`
	}

	shape := fingerprintShape{
		Nodes: append([]Node(nil), g.Nodes...),
		Edges: append([]Edge(nil), g.Edges...),
		Tiers: p.Tiers,
	}
	sort.Slice(shape.Nodes, func(i, j int) bool { return shape.Nodes[i].Name < shape.Nodes[j].Name })
	sort.Slice(shape.Edges, func(i, j int) bool {
		if shape.Edges[i].From == shape.Edges[j].From {
			return shape.Edges[i].To < shape.Edges[j].To
		}
		return shape.Edges[i].From < shape.Edges[j].From
	})

	body, err := json.Marshal(shape)
	if err != nil {
		return "", fmt.Errorf("marshal plan fingerprint input: %w", err)
	}
	sum := blake3.Sum256(body)
	return "blake3:" + hex.EncodeToString(sum[:]), nil
}
