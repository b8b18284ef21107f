// SPDX-License-Identifier: MPL-2.0

package coqpkg

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"
)

type (
	// LegacyManifest is the older manifest layout, which groups modules by
	// directory rather than listing them flat.
	LegacyManifest struct {
		Desc    string      `json:"desc"`
		Deps    []string    `json:"deps"`
		Archive string      `json:"archive,omitempty"`
		Pkgs    []LegacyPkg `json:"pkgs"`
	}

	// LegacyPkg holds the files of one logical directory.
	LegacyPkg struct {
		PkgID    []string     `json:"pkg_id"`
		VoFiles  []LegacyFile `json:"vo_files"`
		CmaFiles []LegacyFile `json:"cma_files"`
	}

	// LegacyFile is encoded as the two-element array [name, [deps...]].
	LegacyFile struct {
		Name string
		Deps []string
	}
)

// MarshalJSON implements json.Marshaler.
func (f LegacyFile) MarshalJSON() ([]byte, error) {
	deps := f.Deps
	if deps == nil {
		deps = []string{}
	}
	return json.Marshal([]any{f.Name, deps})
}

// UnmarshalJSON implements json.Unmarshaler.
func (f *LegacyFile) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) == 0 || len(raw) > 2 {
		return fmt.Errorf("legacy file entry: want [name, deps], got %d elements", len(raw))
	}
	if err := json.Unmarshal(raw[0], &f.Name); err != nil {
		return err
	}
	f.Deps = nil
	if len(raw) == 2 {
		return json.Unmarshal(raw[1], &f.Deps)
	}
	return nil
}

// ToLegacy converts m into the legacy layout. files maps each module key to
// the file extensions the package holds for it (".vo", ".cma"); modules
// absent from files are assumed to be compiled proof objects. Dependencies
// carry over unchanged under the legacy keys.
func ToLegacy(m *Manifest, files map[string][]string) *LegacyManifest {
	groups := make(map[string]*LegacyPkg)
	for _, name := range m.ModuleNames() {
		dir, base := splitModuleKey(name)
		g, ok := groups[dir]
		if !ok {
			g = &LegacyPkg{PkgID: splitDotted(dir), VoFiles: []LegacyFile{}, CmaFiles: []LegacyFile{}}
			groups[dir] = g
		}
		exts, known := files[name]
		if !known {
			exts = []string{".vo"}
		}
		deps := slices.Clone(m.Modules[name].Deps)
		if slices.Contains(exts, ".vo") {
			g.VoFiles = append(g.VoFiles, LegacyFile{Name: base, Deps: deps})
		}
		if slices.Contains(exts, ".cma") {
			g.CmaFiles = append(g.CmaFiles, LegacyFile{Name: base, Deps: deps})
		}
	}

	out := &LegacyManifest{
		Desc:    m.Name,
		Deps:    slices.Clone(m.Deps),
		Archive: m.Archive,
		Pkgs:    make([]LegacyPkg, 0, len(groups)),
	}
	if out.Deps == nil {
		out.Deps = []string{}
	}
	for _, dir := range slices.Sorted(maps.Keys(groups)) {
		out.Pkgs = append(out.Pkgs, *groups[dir])
	}
	return out
}

// EncodeLegacy serializes a legacy manifest as indented JSON.
func EncodeLegacy(l *LegacyManifest) ([]byte, error) {
	data, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode legacy manifest %s: %w", l.Desc, err)
	}
	return append(data, '\n'), nil
}

func splitModuleKey(key string) (dir, base string) {
	if i := strings.LastIndexByte(key, '.'); i >= 0 {
		return key[:i], key[i+1:]
	}
	return "", key
}

func splitDotted(s string) []string {
	parts := []string{}
	for p := range strings.SplitSeq(s, ".") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}
