// SPDX-License-Identifier: MPL-2.0

package coqdep

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"coqpkg/pkg/searchpath"
	"coqpkg/pkg/volume"
)

type (
	// Options configures a CoqDep.
	Options struct {
		// Logger receives resolution and cycle warnings. Defaults to slog.Default().
		Logger *slog.Logger
	}

	// Edge records that From requires every module in To.
	Edge struct {
		From searchpath.Module
		To   []searchpath.Module
	}

	// ResolutionWarning describes a reference that matched no module.
	ResolutionWarning struct {
		Module    string
		Reference Reference
	}

	// CoqDep scans proof sources and accumulates dependency edges.
	CoqDep struct {
		// SearchPath resolves references. It may span more modules than are
		// being scanned, e.g. a workspace-wide path.
		SearchPath *searchpath.SearchPath
		// Deps holds one edge per scanned module that required anything.
		Deps []Edge
		// Unresolved collects references that matched no module.
		Unresolved []ResolutionWarning

		logger *slog.Logger
	}
)

// Error implements the error interface.
func (w ResolutionWarning) Error() string {
	return fmt.Sprintf("%s: unresolved reference %s", w.Module, w.Reference)
}

// New returns a CoqDep resolving against sp. A nil sp gets an empty search path.
func New(sp *searchpath.SearchPath, opts Options) *CoqDep {
	if sp == nil {
		sp = searchpath.New()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &CoqDep{SearchPath: sp, logger: logger}
}

// ProcessModule scans m if it is a source file; compiled modules are ignored.
func (d *CoqDep) ProcessModule(m searchpath.Module) error {
	if !m.IsSource() {
		return nil
	}
	text, err := m.Volume.ReadFile(m.Physical)
	if err != nil {
		return volume.Wrap("read source", m.Physical, err)
	}
	d.ProcessVernac(string(text), m)
	return nil
}

// ProcessVernacFile scans a source file identified only by its physical
// path. Files outside every search path entry are skipped.
func (d *CoqDep) ProcessVernacFile(vol volume.Volume, filename string) error {
	logical, ok := d.SearchPath.ToLogicalName(filename)
	if !ok {
		d.logger.Debug("skipping file outside the search path", "file", filename)
		return nil
	}
	return d.ProcessModule(searchpath.Module{Volume: vol, Logical: logical, Physical: volume.Clean(filename)})
}

// ProcessVernac scans source text on behalf of m.
func (d *CoqDep) ProcessVernac(text string, m searchpath.Module) {
	var to []searchpath.Module
	for _, ref := range ExtractReferences(text) {
		dep, ok := d.resolve(ref, m)
		if !ok {
			w := ResolutionWarning{Module: m.Key(), Reference: ref}
			d.Unresolved = append(d.Unresolved, w)
			d.logger.Debug("unresolved reference", "module", w.Module, "reference", ref.String())
			continue
		}
		if !slices.ContainsFunc(to, func(x searchpath.Module) bool { return x.Logical.Equal(dep.Logical) }) {
			to = append(to, dep)
		}
	}
	if len(to) > 0 {
		d.Deps = append(d.Deps, Edge{From: m, To: to})
	}
}

func (d *CoqDep) resolve(ref Reference, from searchpath.Module) (searchpath.Module, bool) {
	for _, cand := range d.SearchPath.FindModules(ref.Prefix, ref.Name, false) {
		if !cand.Logical.Equal(from.Logical) {
			return cand, true
		}
	}
	return searchpath.Module{}, false
}

// ProcessPackage scans every source module owned by pkg. All modules are
// attempted; read failures are joined into the returned error.
func (d *CoqDep) ProcessPackage(pkg string) error {
	var errs []error
	for m := range d.SearchPath.ModulesOfPackage(pkg) {
		if err := d.ProcessModule(m); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// DepsToJSON returns the recorded edges as module name -> required module
// names, the shape stored in package manifests.
func (d *CoqDep) DepsToJSON() map[string][]string {
	out := make(map[string][]string, len(d.Deps))
	for _, e := range d.Deps {
		from := e.From.Key()
		for _, t := range e.To {
			if !slices.Contains(out[from], t.Key()) {
				out[from] = append(out[from], t.Key())
			}
		}
	}
	return out
}
