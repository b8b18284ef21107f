// SPDX-License-Identifier: MPL-2.0

package project

import (
	"bytes"
	"cmp"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"coqpkg/pkg/coqdep"
	"coqpkg/pkg/coqpkg"
	"coqpkg/pkg/searchpath"
	"coqpkg/pkg/volume"
)

// DefaultExtensions are the module files packed into an archive.
var DefaultExtensions = []string{searchpath.CompiledExt, searchpath.PluginExt}

type (
	// Root declares one source root of a project: a logical prefix and the
	// dotted sub-directories to register beneath it.
	Root struct {
		Prefix   string   `json:"prefix" yaml:"prefix" toml:"prefix"`
		DirPaths []string `json:"dirpaths" yaml:"dirpaths" toml:"dirpaths"`
	}

	// Spec maps root directories (relative to a base directory) to their
	// declarations.
	Spec map[string]Root

	// Options configures a Project.
	Options struct {
		// Extensions selects the module files that count as build outputs.
		// Defaults to DefaultExtensions.
		Extensions []string
		// Logger defaults to slog.Default().
		Logger *slog.Logger
	}

	// Project is one package under construction or opened from an archive.
	Project struct {
		// Name is the package name and the owner of every registered entry.
		Name string
		// SearchPath holds this project's own entries.
		SearchPath *searchpath.SearchPath
		// Resolver is the search path references are resolved against. It
		// is SearchPath unless the project belongs to a Workspace.
		Resolver *searchpath.SearchPath
		// Deps lists the packages this one depends on.
		Deps []string
		// ModuleDeps maps module keys to the module keys they require.
		ModuleDeps map[string][]string

		extensions []string
		logger     *slog.Logger
	}

	// SaveOptions controls Save.
	SaveOptions struct {
		// Legacy writes the manifest in the older directory-grouped layout.
		Legacy bool
		// EmbedManifest stores the manifest inside the archive as well.
		EmbedManifest bool
	}

	// SaveResult names the files written by Save.
	SaveResult struct {
		ManifestPath string
		ArchivePath  string
	}
)

// New returns an empty project.
func New(name string, opts Options) *Project {
	sp := searchpath.New()
	exts := opts.Extensions
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Project{
		Name:       name,
		SearchPath: sp,
		Resolver:   sp,
		ModuleDeps: map[string][]string{},
		extensions: slices.Clone(exts),
		logger:     logger,
	}
}

// FromDirectory registers dir recursively under the logical prefix.
func (p *Project) FromDirectory(vol volume.Volume, dir string, logical searchpath.LogicalName) error {
	return p.SearchPath.AddRecursive(vol, dir, logical, p.Name)
}

// FromSpec registers every declared root. Each dirpath becomes a recursive
// entry at baseDir/root/dir/path with logical name prefix.dir.path. Roots
// are processed in sorted order; the first unreadable directory aborts.
func (p *Project) FromSpec(vol volume.Volume, spec Spec, baseDir string) error {
	for _, root := range slices.Sorted(maps.Keys(spec)) {
		decl := spec[root]
		prefix := searchpath.ParseLogicalName(decl.Prefix)
		dirpaths := decl.DirPaths
		if len(dirpaths) == 0 {
			dirpaths = []string{""}
		}
		for _, dp := range dirpaths {
			sub := searchpath.ParseLogicalName(dp)
			physical := volume.Join(append([]string{baseDir, root}, sub...)...)
			if err := p.SearchPath.AddRecursive(vol, physical, prefix.Append(sub...), p.Name); err != nil {
				return fmt.Errorf("project %s: %w", p.Name, err)
			}
		}
	}
	return nil
}

// FromArchive registers the archive root as an entry with an empty logical
// prefix and seeds dependencies from the embedded manifest, if any.
func (p *Project) FromArchive(pkg *coqpkg.Package) error {
	if err := p.SearchPath.AddRecursive(pkg.Volume, ".", nil, p.Name); err != nil {
		return fmt.Errorf("project %s: %w", p.Name, err)
	}
	if m := pkg.Manifest; m != nil {
		p.Deps = slices.Clone(m.Deps)
		p.ModuleDeps = m.ModuleDeps()
	}
	return nil
}

// Modules lists this project's own modules.
func (p *Project) Modules() []searchpath.Module {
	return slices.Collect(p.SearchPath.Modules())
}

// ComputeDeps scans the project's sources against its resolver and records
// the module dependency map. Packages owning required modules outside this
// project are appended to Deps.
func (p *Project) ComputeDeps() (*coqdep.CoqDep, error) {
	d := coqdep.New(p.Resolver, coqdep.Options{Logger: p.logger})
	var errs []error
	for m := range p.SearchPath.Modules() {
		if err := d.ProcessModule(m); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return d, fmt.Errorf("project %s: %w", p.Name, errors.Join(errs...))
	}
	for _, w := range d.Unresolved {
		p.logger.Warn("unresolved reference", "package", p.Name, "module", w.Module, "reference", w.Reference.String())
	}

	p.ModuleDeps = d.DepsToJSON()
	for _, e := range d.Deps {
		for _, t := range e.To {
			if t.Package != "" && t.Package != p.Name && !slices.Contains(p.Deps, t.Package) {
				p.Deps = append(p.Deps, t.Package)
			}
		}
	}
	return d, nil
}

// outputs returns the module files counted as build outputs, ordered by
// logical name then extension. Files shadowed by an earlier entry with the
// same archive path are dropped.
func (p *Project) outputs(patterns []string) []searchpath.Module {
	var out []searchpath.Module
	seen := make(map[string]bool)
	for m := range p.SearchPath.Modules() {
		name := entryName(m)
		if seen[name] || !matchAny(patterns, name) {
			continue
		}
		seen[name] = true
		out = append(out, m)
	}
	slices.SortStableFunc(out, func(a, b searchpath.Module) int {
		if c := slices.Compare(a.Logical, b.Logical); c != 0 {
			return c
		}
		return cmp.Compare(a.Ext(), b.Ext())
	})
	return out
}

func entryName(m searchpath.Module) string {
	return strings.Join(m.Logical, "/") + m.Ext()
}

// ExtensionPatterns turns file extensions into archive path patterns.
func ExtensionPatterns(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, e := range exts {
		out = append(out, "**/*"+e)
	}
	return out
}

func matchAny(patterns []string, name string) bool {
	for _, pat := range patterns {
		if ok, _ := doublestar.Match(pat, name); ok {
			return true
		}
	}
	return false
}

// CreateManifest lists every built module with its recorded dependencies.
// Modules without dependencies carry no deps field.
func (p *Project) CreateManifest() *coqpkg.Manifest {
	m := &coqpkg.Manifest{
		Name:    p.Name,
		Deps:    slices.Clone(p.Deps),
		Modules: make(map[string]coqpkg.ModuleInfo),
	}
	for _, mod := range p.outputs(ExtensionPatterns(p.extensions)) {
		key := mod.Key()
		if _, ok := m.Modules[key]; ok {
			continue
		}
		m.Modules[key] = coqpkg.ModuleInfo{Deps: slices.Clone(p.ModuleDeps[key])}
	}
	return m
}

// ModuleFiles maps each built module to the extensions present for it.
func (p *Project) ModuleFiles() map[string][]string {
	files := make(map[string][]string)
	for _, mod := range p.outputs(ExtensionPatterns(p.extensions)) {
		files[mod.Key()] = append(files[mod.Key()], mod.Ext())
	}
	return files
}

// ToArchive writes the project's build outputs to w, preceded by manifest
// when non-nil. patterns select entries by archive path (e.g. "**/*.vo");
// when empty, the project's extensions are used. The output depends only
// on the selected files' names and contents.
func (p *Project) ToArchive(w io.Writer, manifest *coqpkg.Manifest, patterns ...string) error {
	if len(patterns) == 0 {
		patterns = ExtensionPatterns(p.extensions)
	}
	aw := coqpkg.NewArchiveWriter(w)
	if manifest != nil {
		if err := aw.AddManifest(manifest); err != nil {
			return err
		}
	}
	for _, mod := range p.outputs(patterns) {
		data, err := mod.Volume.ReadFile(mod.Physical)
		if err != nil {
			return volume.Wrap("pack", mod.Physical, err)
		}
		if err := aw.Add(entryName(mod), data); err != nil {
			return err
		}
	}
	return aw.Close()
}

// Save writes NAME.coq-pkg and then NAME.json into dir on vol. Each file is
// written whole; a failure of either is returned as a *volume.IOError and
// nothing is rolled back.
func (p *Project) Save(vol volume.Volume, dir string, opts SaveOptions) (SaveResult, error) {
	res := SaveResult{
		ManifestPath: volume.Join(dir, p.Name+coqpkg.ManifestExt),
		ArchivePath:  volume.Join(dir, p.Name+coqpkg.ArchiveExt),
	}
	manifest := p.CreateManifest()

	var embedded *coqpkg.Manifest
	if opts.EmbedManifest {
		embedded = manifest
	}
	var archive bytes.Buffer
	if err := p.ToArchive(&archive, embedded); err != nil {
		return res, volume.Wrap("save", res.ArchivePath, err)
	}

	var (
		data []byte
		err  error
	)
	if opts.Legacy {
		data, err = coqpkg.EncodeLegacy(coqpkg.ToLegacy(manifest, p.ModuleFiles()))
	} else {
		data, err = coqpkg.Encode(manifest)
	}
	if err != nil {
		return res, volume.Wrap("save", res.ManifestPath, err)
	}

	if err := vol.WriteFile(res.ArchivePath, archive.Bytes()); err != nil {
		return res, volume.Wrap("save", res.ArchivePath, err)
	}
	if err := vol.WriteFile(res.ManifestPath, data); err != nil {
		return res, volume.Wrap("save", res.ManifestPath, err)
	}
	p.logger.Debug("package saved", "package", p.Name, "archive", res.ArchivePath, "modules", len(manifest.Modules))
	return res, nil
}
