// SPDX-License-Identifier: MPL-2.0

package searchpath

// Index is a materialized snapshot of a search path's modules.
type Index struct {
	order    []Module
	byName   map[string][]Module
	bySuffix map[string][]Module
}

// CreateIndex lists every module once and keeps the result, so repeated
// lookups over a large tree avoid re-reading directories. The index is
// dropped whenever a new entry is registered.
func (sp *SearchPath) CreateIndex() *Index {
	sp.index = nil
	idx := &Index{
		byName:   make(map[string][]Module),
		bySuffix: make(map[string][]Module),
	}
	for m := range sp.Modules() {
		idx.order = append(idx.order, m)
		idx.byName[m.Key()] = append(idx.byName[m.Key()], m)
		for i := range m.Logical {
			k := m.Logical[i:].String()
			idx.bySuffix[k] = append(idx.bySuffix[k], m)
		}
	}
	sp.index = idx
	return idx
}

// Len returns the number of indexed module files.
func (idx *Index) Len() int { return len(idx.order) }

// Lookup returns the first module with exactly the given dotted name.
func (idx *Index) Lookup(name string) (Module, bool) {
	ms := idx.byName[name]
	if len(ms) == 0 {
		return Module{}, false
	}
	return ms[0], true
}

func (idx *Index) find(prefix, suffix LogicalName, exact bool) []Module {
	var candidates []Module
	switch {
	case exact:
		candidates = idx.byName[prefix.Append(suffix...).String()]
	case len(suffix) == 0:
		candidates = idx.order
	default:
		candidates = idx.bySuffix[suffix.String()]
	}
	var out []Module
	for _, m := range candidates {
		if m.Logical.Matches(prefix, suffix, exact) {
			out = append(out, m)
		}
	}
	return out
}
