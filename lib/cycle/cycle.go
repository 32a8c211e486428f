// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

package cycle

import (
	"slices"
	"strings"

	"github.com/patchbay-collective/patchbay/lib/ref"
)

// Edge is one directed control link from the From object to the To
// object. A self-loop has From == To.
type Edge struct {
	Link ref.Ref
	From ref.Ref
	To   ref.Ref
}

// Cycle is a closed walk of control links. Objects[i] is connected to
// Objects[(i+1)%len(Objects)] by Links[i]. The walk starts at the
// smallest object Ref.
type Cycle struct {
	Objects []ref.Ref
	Links   []ref.Ref
}

// Refs returns the objects and links of the cycle, objects first.
func (c Cycle) Refs() []ref.Ref {
	refs := make([]ref.Ref, 0, len(c.Objects)+len(c.Links))
	refs = append(refs, c.Objects...)
	return append(refs, c.Links...)
}

// Equal reports whether c and other describe the same walk.
func (c Cycle) Equal(other Cycle) bool {
	return slices.Equal(c.Objects, other.Objects) && slices.Equal(c.Links, other.Links)
}

func (c Cycle) String() string {
	var b strings.Builder
	for i, object := range c.Objects {
		if i > 0 {
			b.WriteString(" -> ")
		}
		b.WriteString(object.String())
	}
	if len(c.Objects) > 0 {
		b.WriteString(" -> ")
		b.WriteString(c.Objects[0].String())
	}
	return b.String()
}

// graph is an adjacency list with deterministic iteration order.
type graph struct {
	nodes []ref.Ref
	out   map[ref.Ref][]Edge
}

func newGraph(edges []Edge) *graph {
	g := &graph{out: make(map[ref.Ref][]Edge)}
	seen := make(map[ref.Ref]bool)
	addNode := func(r ref.Ref) {
		if !seen[r] {
			seen[r] = true
			g.nodes = append(g.nodes, r)
		}
	}
	for _, edge := range edges {
		addNode(edge.From)
		addNode(edge.To)
		g.out[edge.From] = append(g.out[edge.From], edge)
	}
	slices.SortFunc(g.nodes, ref.Ref.Compare)
	for _, list := range g.out {
		slices.SortFunc(list, func(a, b Edge) int {
			if c := a.To.Compare(b.To); c != 0 {
				return c
			}
			return a.Link.Compare(b.Link)
		})
	}
	return g
}

// Find returns the shortest cycle of the first strongly connected
// component (ordered by smallest member Ref) that contains a cycle, or
// false when the graph is acyclic. The result depends only on the set
// of edges, not on their order.
func Find(edges []Edge) (Cycle, bool) {
	g := newGraph(edges)
	for _, component := range g.components() {
		if cycle, ok := g.shortestCycle(component); ok {
			return cycle, true
		}
	}
	return Cycle{}, false
}

// components returns the strongly connected components (Tarjan), each
// sorted, ordered by their smallest member.
func (g *graph) components() [][]ref.Ref {
	index := 0
	var stack []ref.Ref
	onStack := make(map[ref.Ref]bool)
	indices := make(map[ref.Ref]int)
	lowlinks := make(map[ref.Ref]int)
	var components [][]ref.Ref

	var strongConnect func(v ref.Ref)
	strongConnect = func(v ref.Ref) {
		indices[v] = index
		lowlinks[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, edge := range g.out[v] {
			w := edge.To
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlinks[v] = min(lowlinks[v], lowlinks[w])
			} else if onStack[w] {
				lowlinks[v] = min(lowlinks[v], indices[w])
			}
		}

		if lowlinks[v] == indices[v] {
			var component []ref.Ref
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				component = append(component, w)
				if w == v {
					break
				}
			}
			slices.SortFunc(component, ref.Ref.Compare)
			components = append(components, component)
		}
	}

	for _, v := range g.nodes {
		if _, visited := indices[v]; !visited {
			strongConnect(v)
		}
	}
	slices.SortFunc(components, func(a, b []ref.Ref) int { return a[0].Compare(b[0]) })
	return components
}

// shortestCycle runs a BFS from every member of component, restricted
// to the component, and keeps the shortest closed walk. Ties go to the
// smallest start, so the walk begins at the smallest object Ref.
func (g *graph) shortestCycle(component []ref.Ref) (Cycle, bool) {
	members := make(map[ref.Ref]bool, len(component))
	for _, r := range component {
		members[r] = true
	}

	var best Cycle
	found := false
	for _, start := range component {
		cycle, ok := g.cycleThrough(start, members)
		if ok && (!found || len(cycle.Objects) < len(best.Objects)) {
			best = cycle
			found = true
		}
		if found && len(best.Objects) == 1 {
			break
		}
	}
	return best, found
}

// cycleThrough finds the shortest walk from start back to start whose
// objects are all in members.
func (g *graph) cycleThrough(start ref.Ref, members map[ref.Ref]bool) (Cycle, bool) {
	type step struct {
		from ref.Ref
		link ref.Ref
	}
	parent := make(map[ref.Ref]step)
	visited := map[ref.Ref]bool{start: true}
	queue := []ref.Ref{start}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, edge := range g.out[current] {
			next := edge.To
			if !members[next] {
				continue
			}
			if next == start {
				var cycle Cycle
				cycle.Links = append(cycle.Links, edge.Link)
				for at := current; at != start; at = parent[at].from {
					cycle.Objects = append(cycle.Objects, at)
					cycle.Links = append(cycle.Links, parent[at].link)
				}
				cycle.Objects = append(cycle.Objects, start)
				slices.Reverse(cycle.Objects)
				slices.Reverse(cycle.Links)
				return cycle, true
			}
			if !visited[next] {
				visited[next] = true
				parent[next] = step{from: current, link: edge.Link}
				queue = append(queue, next)
			}
		}
	}
	return Cycle{}, false
}
