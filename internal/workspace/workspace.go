// SPDX-License-Identifier: MPL-2.0

// Package workspace loads workspace descriptors: a root directory plus the
// projects built from it. Descriptors may be written as JSON, YAML or TOML.
package workspace

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"path"
	"slices"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"coqpkg/pkg/project"
	"coqpkg/pkg/searchpath"
	"coqpkg/pkg/volume"
)

// Format is a descriptor encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// ErrInvalidDescriptor is wrapped by every parse or validation failure.
var ErrInvalidDescriptor = errors.New("invalid workspace descriptor")

// Descriptor declares the projects of a workspace.
type Descriptor struct {
	// RootDir is the base directory of every project root. A relative
	// RootDir is resolved against the descriptor's directory by Load.
	RootDir string `json:"rootdir" yaml:"rootdir" toml:"rootdir"`
	// Projects maps package names to their source roots.
	Projects map[string]project.Spec `json:"projects" yaml:"projects" toml:"projects"`
	// Deps names previously built packages the projects build against.
	Deps []string `json:"deps,omitempty" yaml:"deps,omitempty" toml:"deps,omitempty"`
}

// FormatOf picks a format from a file extension.
func FormatOf(filename string) (Format, error) {
	switch strings.ToLower(path.Ext(filename)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	default:
		return "", fmt.Errorf("%w: unsupported file type %q", ErrInvalidDescriptor, path.Ext(filename))
	}
}

// Load reads and validates a descriptor file from vol.
func Load(vol volume.Volume, filename string) (*Descriptor, error) {
	format, err := FormatOf(filename)
	if err != nil {
		return nil, err
	}
	data, err := vol.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	d, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	if !path.IsAbs(d.RootDir) {
		d.RootDir = volume.Join(volume.Dir(filename), d.RootDir)
	}
	return d, nil
}

// Parse decodes and validates a descriptor.
func Parse(data []byte, format Format) (*Descriptor, error) {
	var d Descriptor
	var err error
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		err = dec.Decode(&d)
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		err = dec.Decode(&d)
	case FormatTOML:
		err = toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields().Decode(&d)
	default:
		return nil, fmt.Errorf("%w: unknown format %q", ErrInvalidDescriptor, format)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDescriptor, err)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

// Validate checks that every project declares at least one root and that
// every prefix is a valid logical name.
func (d *Descriptor) Validate() error {
	if len(d.Projects) == 0 {
		return fmt.Errorf("%w: no projects", ErrInvalidDescriptor)
	}
	for _, name := range d.Names() {
		spec := d.Projects[name]
		if name == "" {
			return fmt.Errorf("%w: empty project name", ErrInvalidDescriptor)
		}
		if len(spec) == 0 {
			return fmt.Errorf("%w: project %s has no roots", ErrInvalidDescriptor, name)
		}
		for root, decl := range spec {
			if decl.Prefix == "" {
				continue
			}
			if err := searchpath.LogicalName(strings.Split(decl.Prefix, ".")).Validate(); err != nil {
				return fmt.Errorf("%w: project %s root %q: %w", ErrInvalidDescriptor, name, root, err)
			}
		}
	}
	return nil
}

// Names returns the project names, sorted.
func (d *Descriptor) Names() []string {
	return slices.Sorted(maps.Keys(d.Projects))
}

// Open builds a workspace from the descriptor: dependencies first (read
// from depsDir), then every project. Boot builds skip the dependencies.
func (d *Descriptor) Open(vol volume.Volume, depsDir string, boot bool, opts project.Options) (*project.Workspace, error) {
	ws := project.NewWorkspace(opts)
	if !boot && len(d.Deps) > 0 {
		if err := ws.LoadDeps(vol, d.Deps, depsDir); err != nil {
			return nil, err
		}
	}
	if err := ws.OpenProjects(vol, d.Projects, d.RootDir); err != nil {
		return nil, err
	}
	return ws, nil
}
