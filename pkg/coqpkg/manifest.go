// SPDX-License-Identifier: MPL-2.0

package coqpkg

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"path"
	"slices"
	"strings"
)

const (
	// ArchiveExt is the file extension of package archives.
	ArchiveExt = ".coq-pkg"
	// ManifestExt is the file extension of standalone manifests.
	ManifestExt = ".json"
	// ManifestEntry is the archive entry holding an embedded manifest.
	ManifestEntry = "coq-pkg.json"
)

// ErrInvalidManifest is returned when manifest bytes cannot be decoded.
var ErrInvalidManifest = errors.New("invalid package manifest")

type (
	// Manifest describes one package: its modules, their dependencies, and
	// the packages it declares as prerequisites.
	Manifest struct {
		// Name is the package name.
		Name string `json:"name"`
		// Deps lists declared prerequisite packages.
		Deps []string `json:"deps"`
		// Modules maps dotted module names to their dependency info.
		Modules map[string]ModuleInfo `json:"modules"`
		// Archive locates the archive; empty means derived from the manifest URI.
		Archive string `json:"archive,omitempty"`
	}

	// ModuleInfo holds the per-module entry of a manifest. Deps is omitted
	// from the encoding when empty.
	ModuleInfo struct {
		Deps []string `json:"deps,omitempty"`
	}
)

// Encode serializes m as indented JSON. Fields appear in declaration order
// and module keys sorted, so equal manifests always encode identically.
func Encode(m *Manifest) ([]byte, error) {
	out := *m
	if out.Deps == nil {
		out.Deps = []string{}
	}
	if out.Modules == nil {
		out.Modules = map[string]ModuleInfo{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(&out); err != nil {
		return nil, fmt.Errorf("encode manifest %s: %w", m.Name, err)
	}
	return buf.Bytes(), nil
}

// Decode parses manifest bytes. A manifest without a name is rejected.
func Decode(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidManifest, err)
	}
	if m.Name == "" {
		return nil, fmt.Errorf("%w: missing name", ErrInvalidManifest)
	}
	if m.Modules == nil {
		m.Modules = map[string]ModuleInfo{}
	}
	return &m, nil
}

// ModuleNames returns the module keys sorted.
func (m *Manifest) ModuleNames() []string {
	return slices.Sorted(maps.Keys(m.Modules))
}

// ModuleDeps returns the module-to-dependencies map, leaving out modules
// without dependencies.
func (m *Manifest) ModuleDeps() map[string][]string {
	out := make(map[string][]string)
	for name, info := range m.Modules {
		if len(info.Deps) > 0 {
			out[name] = slices.Clone(info.Deps)
		}
	}
	return out
}

// ArchiveURI returns where the package archive lives: the declared
// location, or one derived from manifestURI.
func (m *Manifest) ArchiveURI(manifestURI string) string {
	if m.Archive != "" {
		return m.Archive
	}
	return ArchiveURIFor(manifestURI)
}

// ArchiveURIFor derives an archive location from a manifest location by
// replacing the manifest extension with the archive extension.
func ArchiveURIFor(manifestURI string) string {
	base, _ := strings.CutSuffix(manifestURI, ManifestExt)
	return base + ArchiveExt
}

// NameFromURI recovers a package name from a manifest or archive URI, e.g.
// "https://host/pkgs/coq-arith.json" and "+coq-arith" both yield "coq-arith".
func NameFromURI(uri string) string {
	if i := strings.IndexAny(uri, "?#"); i >= 0 {
		uri = uri[:i]
	}
	name := path.Base(strings.ReplaceAll(uri, "\\", "/"))
	name = strings.TrimPrefix(name, "+")
	for _, ext := range []string{ArchiveExt, ManifestExt} {
		if b, ok := strings.CutSuffix(name, ext); ok {
			return b
		}
	}
	return name
}
