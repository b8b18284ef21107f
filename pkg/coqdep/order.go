// SPDX-License-Identifier: MPL-2.0

package coqdep

import (
	"errors"
	"slices"

	"coqpkg/internal/dag"
	"coqpkg/pkg/searchpath"
)

// Plan is a compilation schedule.
type Plan struct {
	// Order lists modules so that every prerequisite precedes its dependents.
	Order []searchpath.Module
	// Unresolved names the modules left out because of a cycle.
	Unresolved []string
}

// BuildOrderAll sorts every module of the search path.
func (d *CoqDep) BuildOrderAll() Plan {
	return d.BuildOrder(slices.Collect(d.SearchPath.Modules()))
}

// BuildOrder sorts exactly the given modules by the recorded edges; an
// empty set yields an empty plan. Modules with several files under one
// logical name are scheduled once, preferring the source file. Edges to
// modules outside the set are ignored. A cycle is logged as a warning; the
// returned plan still holds every module that could be scheduled.
func (d *CoqDep) BuildOrder(modules []searchpath.Module) Plan {
	g := dag.New[string]()
	byKey := make(map[string]searchpath.Module, len(modules))
	for _, m := range modules {
		k := m.Key()
		if prev, ok := byKey[k]; ok {
			if !prev.IsSource() && m.IsSource() {
				byKey[k] = m
			}
			continue
		}
		byKey[k] = m
		g.Add(k)
	}

	for _, e := range d.Deps {
		dependent := e.From.Key()
		if !g.Has(dependent) {
			continue
		}
		for _, t := range e.To {
			if prereq := t.Key(); g.Has(prereq) {
				g.Require(dependent, prereq)
			}
		}
	}

	keys, err := g.Sort()
	plan := Plan{Order: make([]searchpath.Module, 0, len(keys))}
	for _, k := range keys {
		plan.Order = append(plan.Order, byKey[k])
	}
	var cycleErr *dag.CycleError[string]
	if errors.As(err, &cycleErr) {
		plan.Unresolved = cycleErr.Unscheduled
		d.logger.Warn("coqdep: cyclic dependency detected", "modules", cycleErr.Unscheduled)
	}
	return plan
}
