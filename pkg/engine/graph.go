package engine

import (
	"fmt"
	"sort"
	"strings"
)

// GraphBuilder derives the dependency graph from a declaration set. It scans
// every attribute expression for reference tokens, records one edge per
// (dependent, dependency) pair, rejects references to undeclared identities
// and reference cycles, and assigns topological levels.
type GraphBuilder struct{}

// NewGraphBuilder creates a graph builder.
func NewGraphBuilder() *GraphBuilder {
	return &GraphBuilder{}
}

// Build constructs the resource graph. Declaration order is preserved and
// used to break ordering ties, so the same input always yields the same
// graph.
func (b *GraphBuilder) Build(decls []Declaration) (*ResourceGraph, error) {
	graph := &ResourceGraph{
		Declarations: decls,
		byIdentity:   make(map[string]*Declaration, len(decls)),
	}

	for i := range decls {
		d := &decls[i]
		if d.Identity == "" {
			return nil, NewPermanentError(
				fmt.Sprintf("declaration at index %d has no identity", i), nil).
				WithCode(ErrCodeValidation)
		}
		if prev, exists := graph.byIdentity[d.Identity]; exists {
			return nil, NewPermanentError(
				fmt.Sprintf("duplicate identity %q (indexes %d and %d)", d.Identity, prev.Index, d.Index), nil).
				WithCode(ErrCodeValidation).
				WithResource(d.Identity)
		}
		graph.byIdentity[d.Identity] = d
	}

	if err := b.collectEdges(graph); err != nil {
		return nil, err
	}
	if err := b.detectCycles(graph); err != nil {
		return nil, err
	}
	b.assignLevels(graph)
	return graph, nil
}

// collectEdges scans attribute expressions for references. A reference to an
// undeclared identity is fatal.
func (b *GraphBuilder) collectEdges(graph *ResourceGraph) error {
	for i := range graph.Declarations {
		d := &graph.Declarations[i]

		// Collect attribute names sorted so the edge list is stable
		// regardless of map iteration order.
		names := make([]string, 0, len(d.Attributes))
		for name := range d.Attributes {
			names = append(names, name)
		}
		sort.Strings(names)

		seen := make(map[string]bool)
		for _, name := range names {
			for _, ref := range d.Attributes[name].References() {
				if graph.byIdentity[ref.Identity] == nil {
					return NewPermanentError(
						fmt.Sprintf("resource %q attribute %q references undeclared resource %q",
							d.Identity, name, ref.Identity), nil).
						WithCode(ErrCodeUnresolvedReference).
						WithResource(d.Identity)
				}
				if ref.Identity == d.Identity {
					return NewPermanentError(
						fmt.Sprintf("resource %q references itself via attribute %q", d.Identity, name), nil).
						WithCode(ErrCodeCycle).
						WithResource(d.Identity)
				}
				if seen[ref.Identity] {
					continue
				}
				seen[ref.Identity] = true
				graph.Edges = append(graph.Edges, DependencyEdge{
					From: d.Identity,
					To:   ref.Identity,
					Ref:  ref,
				})
			}
		}
	}
	return nil
}

// detectCycles runs a depth-first search over the dependency edges, tracking
// the recursion stack to reconstruct the cycle path for the error message.
func (b *GraphBuilder) detectCycles(graph *ResourceGraph) error {
	adjacency := make(map[string][]string)
	for _, e := range graph.Edges {
		adjacency[e.From] = append(adjacency[e.From], e.To)
	}

	const (
		white = 0 // unvisited
		gray  = 1 // on the recursion stack
		black = 2 // fully explored
	)
	color := make(map[string]int, len(graph.Declarations))
	var stack []string

	var visit func(identity string) error
	visit = func(identity string) error {
		color[identity] = gray
		stack = append(stack, identity)
		for _, next := range adjacency[identity] {
			switch color[next] {
			case white:
				if err := visit(next); err != nil {
					return err
				}
			case gray:
				// Trim the stack to the cycle entry point.
				start := 0
				for i, id := range stack {
					if id == next {
						start = i
						break
					}
				}
				cycle := append(append([]string{}, stack[start:]...), next)
				return NewPermanentError(
					fmt.Sprintf("dependency cycle: %s", strings.Join(cycle, " -> ")), nil).
					WithCode(ErrCodeCycle).
					WithResource(next)
			}
		}
		stack = stack[:len(stack)-1]
		color[identity] = black
		return nil
	}

	for i := range graph.Declarations {
		id := graph.Declarations[i].Identity
		if color[id] == white {
			stack = stack[:0]
			if err := visit(id); err != nil {
				return err
			}
		}
	}
	return nil
}

// assignLevels computes topological levels by repeatedly peeling identities
// whose dependencies are all already assigned. Within a level, identities
// keep declaration order. Requires an acyclic graph.
func (b *GraphBuilder) assignLevels(graph *ResourceGraph) {
	pending := make(map[string][]string, len(graph.Declarations))
	for i := range graph.Declarations {
		id := graph.Declarations[i].Identity
		pending[id] = graph.DependenciesOf(id)
	}

	assigned := make(map[string]bool, len(pending))
	for len(pending) > 0 {
		var level []string
		for i := range graph.Declarations {
			id := graph.Declarations[i].Identity
			deps, ok := pending[id]
			if !ok {
				continue
			}
			ready := true
			for _, dep := range deps {
				if !assigned[dep] {
					ready = false
					break
				}
			}
			if ready {
				level = append(level, id)
			}
		}
		for _, id := range level {
			assigned[id] = true
			delete(pending, id)
		}
		graph.Levels = append(graph.Levels, level)
	}
}

// ToDOT renders the graph in Graphviz DOT format for inspection.
func (g *ResourceGraph) ToDOT() string {
	var sb strings.Builder
	sb.WriteString("digraph resources {\n")
	sb.WriteString("  rankdir=BT;\n")
	sb.WriteString("  node [shape=box, fontname=\"Helvetica\"];\n")
	for i := range g.Declarations {
		d := &g.Declarations[i]
		fmt.Fprintf(&sb, "  %q [label=\"%s\\n%s\"];\n", d.Identity, d.Identity, d.Type)
	}
	for _, e := range g.Edges {
		fmt.Fprintf(&sb, "  %q -> %q [label=%q];\n", e.From, e.To, e.Ref.Attribute)
	}
	sb.WriteString("}\n")
	return sb.String()
}
