// SPDX-License-Identifier: MPL-2.0

package searchpath

import (
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"strings"

	"coqpkg/pkg/volume"
)

const (
	// SourceExt is the extension of proof source files.
	SourceExt = ".v"
	// CompiledExt is the extension of compiled proof objects.
	CompiledExt = ".vo"
	// PluginExt is the extension of compiled plugin objects.
	PluginExt = ".cma"
)

// ModuleExtensions lists the file extensions recognized as modules, in the
// order they are tried when stripping a file name.
var ModuleExtensions = []string{CompiledExt, SourceExt, PluginExt}

type (
	// Entry maps one physical directory to a logical prefix. Entries are
	// immutable once registered.
	Entry struct {
		Volume   volume.Volume
		Physical string
		Logical  LogicalName
		Package  string
	}

	// Module is one file found beneath an Entry.
	Module struct {
		Volume   volume.Volume
		Logical  LogicalName
		Physical string
		Package  string
	}

	// SearchPath is an ordered set of entries. The zero value is not usable;
	// call New. A SearchPath is not safe for concurrent mutation: register
	// entries and create the index from one goroutine, then share it for
	// reading.
	SearchPath struct {
		entries []Entry
		seen    map[entryKey]bool
		index   *Index
	}

	entryKey struct {
		vol  volume.Volume
		phys string
	}
)

// Key returns the dotted logical name.
func (m Module) Key() string { return m.Logical.String() }

// Ext returns the module's file extension.
func (m Module) Ext() string {
	_, ext, _ := SplitModuleFile(volume.Base(m.Physical))
	return ext
}

// IsSource reports whether the module's file is proof source.
func (m Module) IsSource() bool { return m.Ext() == SourceExt }

// String returns a human-readable form for logs.
func (m Module) String() string {
	return fmt.Sprintf("%s (%s)", m.Key(), m.Physical)
}

// SplitModuleFile splits a file name into its base and recognized module
// extension. ok is false when the extension is not a module extension.
func SplitModuleFile(filename string) (base, ext string, ok bool) {
	for _, e := range ModuleExtensions {
		if b, found := strings.CutSuffix(filename, e); found && b != "" {
			return b, e, true
		}
	}
	return filename, "", false
}

// New returns an empty search path.
func New() *SearchPath {
	return &SearchPath{seen: make(map[entryKey]bool)}
}

// Entries returns a copy of the registered entries in registration order.
func (sp *SearchPath) Entries() []Entry {
	return slices.Clone(sp.entries)
}

// Add registers one directory without recursing. The directory must exist
// in vol; otherwise an *volume.IOError is returned. Registering the same
// directory twice is a no-op.
func (sp *SearchPath) Add(vol volume.Volume, physical string, logical LogicalName, pkg string) error {
	if err := logical.Validate(); err != nil {
		return err
	}
	physical = volume.Clean(physical)
	info, err := vol.Stat(physical)
	if err != nil {
		return volume.Wrap("add search path", physical, err)
	}
	if !info.IsDir() {
		return &volume.IOError{Op: "add search path", Path: physical, Err: fmt.Errorf("not a directory")}
	}
	sp.addEntry(Entry{Volume: vol, Physical: physical, Logical: slices.Clone(logical), Package: pkg})
	return nil
}

func (sp *SearchPath) addEntry(e Entry) {
	key := entryKey{vol: e.Volume, phys: e.Physical}
	if sp.seen[key] {
		return
	}
	sp.seen[key] = true
	sp.entries = append(sp.entries, e)
	sp.index = nil
}

// AddRecursive registers physical and, depth first, every subdirectory
// beneath it with the subdirectory name appended to the logical prefix.
// Directories whose names are not valid name components are skipped.
func (sp *SearchPath) AddRecursive(vol volume.Volume, physical string, logical LogicalName, pkg string) error {
	if err := sp.Add(vol, physical, logical, pkg); err != nil {
		return err
	}
	physical = volume.Clean(physical)
	entries, err := vol.ReadDir(physical)
	if err != nil {
		return volume.Wrap("add search path", physical, err)
	}
	for _, e := range entries {
		if !e.IsDir() || !isComponent(e.Name()) {
			continue
		}
		sub := volume.Join(physical, e.Name())
		if err := sp.AddRecursive(vol, sub, logical.Append(e.Name()), pkg); err != nil {
			return err
		}
	}
	return nil
}

func isComponent(name string) bool {
	return name != "" && !strings.HasPrefix(name, ".") && !strings.Contains(name, ".")
}

// AddFrom registers every entry of other, preserving their owners.
func (sp *SearchPath) AddFrom(other *SearchPath) {
	for _, e := range other.entries {
		sp.addEntry(e)
	}
}

// Modules lists every module beneath every entry. The sequence is lazy and
// may be iterated any number of times; each iteration re-lists the
// directories unless an index has been created. Unreadable directories are
// logged and skipped.
func (sp *SearchPath) Modules() iter.Seq[Module] {
	return func(yield func(Module) bool) {
		if idx := sp.index; idx != nil {
			for _, m := range idx.order {
				if !yield(m) {
					return
				}
			}
			return
		}
		for _, e := range sp.entries {
			if !listEntry(e, yield) {
				return
			}
		}
	}
}

func listEntry(e Entry, yield func(Module) bool) bool {
	files, err := e.Volume.ReadDir(e.Physical)
	if err != nil {
		slog.Warn("search path entry unreadable", "path", e.Physical, "error", err)
		return true
	}
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		base, _, ok := SplitModuleFile(f.Name())
		if !ok {
			continue
		}
		m := Module{
			Volume:   e.Volume,
			Logical:  e.Logical.Append(base),
			Physical: volume.Join(e.Physical, f.Name()),
			Package:  e.Package,
		}
		if !yield(m) {
			return false
		}
	}
	return true
}

// ModulesOfPackage lists the modules owned by pkg.
func (sp *SearchPath) ModulesOfPackage(pkg string) iter.Seq[Module] {
	return func(yield func(Module) bool) {
		for m := range sp.Modules() {
			if m.Package == pkg && !yield(m) {
				return
			}
		}
	}
}

// FindModules returns every module matching (prefix, suffix) in traversal
// order. See LogicalName.Matches for the matching rule.
func (sp *SearchPath) FindModules(prefix, suffix LogicalName, exact bool) []Module {
	if idx := sp.index; idx != nil {
		return idx.find(prefix, suffix, exact)
	}
	var out []Module
	for m := range sp.Modules() {
		if m.Logical.Matches(prefix, suffix, exact) {
			out = append(out, m)
		}
	}
	return out
}

// FindModule returns the first module matching (prefix, suffix).
func (sp *SearchPath) FindModule(prefix, suffix LogicalName, exact bool) (Module, bool) {
	if idx := sp.index; idx != nil {
		found := idx.find(prefix, suffix, exact)
		if len(found) == 0 {
			return Module{}, false
		}
		return found[0], true
	}
	for m := range sp.Modules() {
		if m.Logical.Matches(prefix, suffix, exact) {
			return m, true
		}
	}
	return Module{}, false
}

// ToLogicalName maps a physical file back to its logical name. ok is false
// when no entry's directory contains the file or the file has no module
// extension.
func (sp *SearchPath) ToLogicalName(physical string) (LogicalName, bool) {
	physical = volume.Clean(physical)
	base, _, ok := SplitModuleFile(volume.Base(physical))
	if !ok {
		return nil, false
	}
	dir := volume.Dir(physical)
	for _, e := range sp.entries {
		if e.Physical == dir {
			return e.Logical.Append(base), true
		}
	}
	return nil, false
}
