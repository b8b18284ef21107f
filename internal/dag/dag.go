// SPDX-License-Identifier: MPL-2.0

// Package dag schedules the vertices of a dependency graph with Kahn's
// algorithm. Vertices are kept in insertion order, and ties between vertices
// that become ready together are broken by that order, so a fixed input
// always yields the same schedule.
package dag

import (
	"fmt"
	"strings"
)

type (
	// Graph records which vertices require which. A vertex is scheduled
	// only after everything it requires.
	Graph[K comparable] struct {
		ids  map[K]int
		keys []K
		// dependents[i] lists the vertices that require keys[i].
		dependents [][]int
	}

	// CycleError reports the vertices a schedule had to leave out: those on
	// a cycle and those requiring one of them, in insertion order.
	CycleError[K comparable] struct {
		Unscheduled []K
	}
)

func (e *CycleError[K]) Error() string {
	names := make([]string, len(e.Unscheduled))
	for i, k := range e.Unscheduled {
		names[i] = fmt.Sprint(k)
	}
	return "dependency cycle: cannot schedule " + strings.Join(names, ", ")
}

// New returns an empty graph.
func New[K comparable]() *Graph[K] {
	return &Graph[K]{ids: make(map[K]int)}
}

// Add inserts k unless present and returns its position in insertion order.
func (g *Graph[K]) Add(k K) int {
	if id, ok := g.ids[k]; ok {
		return id
	}
	id := len(g.keys)
	g.ids[k] = id
	g.keys = append(g.keys, k)
	g.dependents = append(g.dependents, nil)
	return id
}

// Has reports whether k was added.
func (g *Graph[K]) Has(k K) bool {
	_, ok := g.ids[k]
	return ok
}

// Len returns the number of vertices.
func (g *Graph[K]) Len() int {
	return len(g.keys)
}

// Require records that v cannot be scheduled before prereq. Missing
// vertices are added, prereq first when both are new.
func (g *Graph[K]) Require(v, prereq K) {
	p := g.Add(prereq)
	g.dependents[p] = append(g.dependents[p], g.Add(v))
}

// Sort returns the schedule. On a cycle the schedule holds every vertex
// that could still be placed and the error is a *CycleError[K].
func (g *Graph[K]) Sort() ([]K, error) {
	if len(g.keys) == 0 {
		return nil, nil
	}

	pending := make([]int, len(g.keys))
	for _, deps := range g.dependents {
		for _, d := range deps {
			pending[d]++
		}
	}

	ready := make([]int, 0, len(g.keys))
	for id, n := range pending {
		if n == 0 {
			ready = append(ready, id)
		}
	}

	order := make([]K, 0, len(g.keys))
	for head := 0; head < len(ready); head++ {
		id := ready[head]
		order = append(order, g.keys[id])
		for _, d := range g.dependents[id] {
			if pending[d]--; pending[d] == 0 {
				ready = append(ready, d)
			}
		}
	}

	if len(order) == len(g.keys) {
		return order, nil
	}
	cycle := &CycleError[K]{}
	for id, n := range pending {
		if n > 0 {
			cycle.Unscheduled = append(cycle.Unscheduled, g.keys[id])
		}
	}
	return order, cycle
}
