// SPDX-License-Identifier: MPL-2.0

// Package dag provides the directed graph operations used by the mod resolver:
// a stable topological sort, strongly connected components and reachability.
//
// Edges mean "must load before": an edge from A to B means A is loaded before B,
// i.e. B depends on A. Every operation is deterministic and breaks ties by the
// order in which nodes were first added.
package dag

import (
	"fmt"
	"slices"
	"strings"
)

type (
	// CycleError indicates that the graph contains a cycle, preventing topological ordering.
	CycleError struct {
		// Cycle lists the nodes left unordered, in insertion order. Every cycle is
		// among them, though nodes downstream of a cycle are included too.
		Cycle []string
	}

	// Graph is a directed graph keyed by string node names.
	Graph struct {
		// adjacency maps each node to its outgoing neighbors (nodes that depend on it).
		adjacency map[string][]string
		// nodes tracks all nodes in insertion order for deterministic output.
		nodes []string
		// index maps a node to its insertion position.
		index map[string]int
		edges map[[2]string]bool
	}
)

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle detected: %s", strings.Join(e.Cycle, " -> "))
}

// New creates an empty Graph.
func New() *Graph {
	return &Graph{
		adjacency: make(map[string][]string),
		index:     make(map[string]int),
		edges:     make(map[[2]string]bool),
	}
}

// AddNode adds a node to the graph. If the node already exists, this is a no-op.
func (g *Graph) AddNode(name string) {
	if _, ok := g.index[name]; ok {
		return
	}
	g.index[name] = len(g.nodes)
	g.nodes = append(g.nodes, name)
}

// AddEdge adds a directed edge from -> to, meaning "from" loads before "to".
// Both nodes are implicitly added. Duplicate edges are ignored.
func (g *Graph) AddEdge(from, to string) {
	g.AddNode(from)
	g.AddNode(to)
	key := [2]string{from, to}
	if g.edges[key] {
		return
	}
	g.edges[key] = true
	g.adjacency[from] = append(g.adjacency[from], to)
}

// HasNode reports whether name is in the graph.
func (g *Graph) HasNode(name string) bool {
	_, ok := g.index[name]
	return ok
}

// HasEdge reports whether the edge from -> to exists.
func (g *Graph) HasEdge(from, to string) bool {
	return g.edges[[2]string{from, to}]
}

// Nodes returns every node in insertion order.
func (g *Graph) Nodes() []string {
	return slices.Clone(g.nodes)
}

// Successors returns the nodes that "from" has edges to, in edge insertion order.
func (g *Graph) Successors(from string) []string {
	return slices.Clone(g.adjacency[from])
}

// Reachable reports whether "to" can be reached from "from" along one or more edges.
func (g *Graph) Reachable(from, to string) bool {
	seen := map[string]bool{from: true}
	stack := slices.Clone(g.adjacency[from])
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == to {
			return true
		}
		if seen[n] {
			continue
		}
		seen[n] = true
		stack = append(stack, g.adjacency[n]...)
	}
	return false
}

// TopologicalSort returns a valid order using Kahn's algorithm.
// Returns CycleError if the graph contains a cycle.
// Among the nodes ready at any step, the one added to the graph first is emitted
// first, so the order only changes where the edges force it to.
func (g *Graph) TopologicalSort() ([]string, error) {
	if len(g.nodes) == 0 {
		return nil, nil
	}

	inDegree := make(map[string]int, len(g.nodes))
	for _, neighbors := range g.adjacency {
		for _, neighbor := range neighbors {
			inDegree[neighbor]++
		}
	}

	// ready holds insertion indices, kept sorted ascending.
	var ready []int
	for i, node := range g.nodes {
		if inDegree[node] == 0 {
			ready = append(ready, i)
		}
	}

	result := make([]string, 0, len(g.nodes))
	for len(ready) > 0 {
		node := g.nodes[ready[0]]
		ready = ready[1:]
		result = append(result, node)

		for _, neighbor := range g.adjacency[node] {
			inDegree[neighbor]--
			if inDegree[neighbor] == 0 {
				idx := g.index[neighbor]
				pos, _ := slices.BinarySearch(ready, idx)
				ready = slices.Insert(ready, pos, idx)
			}
		}
	}

	if len(result) != len(g.nodes) {
		var cycleNodes []string
		for _, node := range g.nodes {
			if inDegree[node] > 0 {
				cycleNodes = append(cycleNodes, node)
			}
		}
		return nil, &CycleError{Cycle: cycleNodes}
	}

	return result, nil
}

// Cycles returns the node sets that take part in a cycle: every strongly connected
// component with more than one node, and every node with an edge to itself.
// Members of each set and the sets themselves are in insertion order.
func (g *Graph) Cycles() [][]string {
	var out [][]string
	for _, comp := range g.StronglyConnected() {
		if len(comp) > 1 || g.HasEdge(comp[0], comp[0]) {
			out = append(out, comp)
		}
	}
	return out
}

// StronglyConnected returns the strongly connected components of the graph
// (Tarjan's algorithm). Each component is sorted by insertion order and the
// components are ordered by their first member.
func (g *Graph) StronglyConnected() [][]string {
	t := tarjan{
		g:       g,
		index:   make(map[string]int, len(g.nodes)),
		lowlink: make(map[string]int, len(g.nodes)),
		onStack: make(map[string]bool, len(g.nodes)),
	}
	for _, n := range g.nodes {
		if _, visited := t.index[n]; !visited {
			t.strongConnect(n)
		}
	}

	for _, comp := range t.components {
		slices.SortFunc(comp, func(a, b string) int { return g.index[a] - g.index[b] })
	}
	slices.SortFunc(t.components, func(a, b []string) int { return g.index[a[0]] - g.index[b[0]] })
	return t.components
}

type tarjan struct {
	g          *Graph
	next       int
	index      map[string]int
	lowlink    map[string]int
	onStack    map[string]bool
	stack      []string
	components [][]string
}

func (t *tarjan) strongConnect(v string) {
	t.index[v] = t.next
	t.lowlink[v] = t.next
	t.next++
	t.stack = append(t.stack, v)
	t.onStack[v] = true

	for _, w := range t.g.adjacency[v] {
		if _, visited := t.index[w]; !visited {
			t.strongConnect(w)
			t.lowlink[v] = min(t.lowlink[v], t.lowlink[w])
		} else if t.onStack[w] {
			t.lowlink[v] = min(t.lowlink[v], t.index[w])
		}
	}

	if t.lowlink[v] != t.index[v] {
		return
	}

	var comp []string
	for {
		w := t.stack[len(t.stack)-1]
		t.stack = t.stack[:len(t.stack)-1]
		t.onStack[w] = false
		comp = append(comp, w)
		if w == v {
			break
		}
	}
	t.components = append(t.components, comp)
}
