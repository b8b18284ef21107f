// SPDX-License-Identifier: MPL-2.0

package project

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"coqpkg/pkg/coqpkg"
	"coqpkg/pkg/searchpath"
	"coqpkg/pkg/volume"
)

// Workspace is a set of projects sharing one resolution space.
type Workspace struct {
	// SearchPath spans every opened project and loaded dependency.
	SearchPath *searchpath.SearchPath

	projects map[string]*Project
	order    []string
	deps     []*Project
	opts     Options
}

// NewWorkspace returns an empty workspace. opts is applied to every
// project it opens.
func NewWorkspace(opts Options) *Workspace {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Workspace{
		SearchPath: searchpath.New(),
		projects:   make(map[string]*Project),
		opts:       opts,
	}
}

// LoadDeps opens previously built archives BASEDIR/NAME.coq-pkg from vol
// and adds their modules to the shared search path. Dependencies are
// read-only; they are never rebuilt or saved.
func (w *Workspace) LoadDeps(vol volume.Volume, pkgs []string, baseDir string) error {
	for _, name := range pkgs {
		file := volume.Join(baseDir, name+coqpkg.ArchiveExt)
		data, err := vol.ReadFile(file)
		if err != nil {
			return volume.Wrap("load dependency", file, err)
		}
		pkg, err := coqpkg.OpenArchive(data)
		if err != nil {
			return volume.Wrap("load dependency", file, err)
		}
		p := New(name, w.opts)
		if err := p.FromArchive(pkg); err != nil {
			return err
		}
		w.SearchPath.AddFrom(p.SearchPath)
		w.deps = append(w.deps, p)
		w.opts.Logger.Debug("dependency loaded", "package", name, "file", file)
	}
	return nil
}

// OpenProjects opens one project per spec, in name order, with roots
// relative to baseDir. Each project resolves against the shared path.
func (w *Workspace) OpenProjects(vol volume.Volume, specs map[string]Spec, baseDir string) error {
	for _, name := range slices.Sorted(maps.Keys(specs)) {
		if _, ok := w.projects[name]; ok {
			return fmt.Errorf("project %s opened twice", name)
		}
		p := New(name, w.opts)
		if err := p.FromSpec(vol, specs[name], baseDir); err != nil {
			return err
		}
		w.Add(p)
	}
	return nil
}

// Add attaches an already populated project to the workspace.
func (w *Workspace) Add(p *Project) {
	w.projects[p.Name] = p
	w.order = append(w.order, p.Name)
	w.SearchPath.AddFrom(p.SearchPath)
	p.Resolver = w.SearchPath
}

// CreateIndex indexes the shared search path. Call it after every project
// and dependency has been registered.
func (w *Workspace) CreateIndex() *searchpath.Index {
	return w.SearchPath.CreateIndex()
}

// Names returns the opened project names in opening order.
func (w *Workspace) Names() []string {
	return slices.Clone(w.order)
}

// Project returns an opened project.
func (w *Workspace) Project(name string) (*Project, bool) {
	p, ok := w.projects[name]
	return p, ok
}

// Dependencies returns the loaded dependency packages.
func (w *Workspace) Dependencies() []*Project {
	return slices.Clone(w.deps)
}
