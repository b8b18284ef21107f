// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"coqpkg/internal/issue"
	"coqpkg/internal/workspace"
	"coqpkg/pkg/coqpkg"
	"coqpkg/pkg/project"
	"coqpkg/pkg/volume"
)

// errNoTarget reports a build without --workspace or --rootdir.
var errNoTarget = errors.New("no build target")

// targetFlags select what to build: a workspace descriptor, or a single
// source tree given by --rootdir, --top and --dirs.
type targetFlags struct {
	workspace string
	rootDir   string
	top       string
	dirs      []string
	name      string
	boot      bool
}

func (t *targetFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&t.workspace, "workspace", "", "workspace descriptor (.json, .yaml or .toml)")
	fs.StringVar(&t.rootDir, "rootdir", "", "root source directory (overrides the descriptor's rootdir)")
	fs.StringVar(&t.top, "top", "", "logical name of the root directory, e.g. MyLib")
	fs.StringSliceVar(&t.dirs, "dirs", nil, "comma-separated dotted sub-directories to include")
	fs.StringVar(&t.name, "name", "", "package name for a single source tree (default is --top)")
	fs.BoolVar(&t.boot, "boot", false, "build without loading the descriptor's dependency packages")
}

// descriptor loads the workspace descriptor or synthesizes one for a
// single source tree.
func (t *targetFlags) descriptor(vol volume.Volume) (*workspace.Descriptor, error) {
	switch {
	case t.workspace != "":
		desc, err := workspace.Load(vol, t.workspace)
		if err != nil {
			suggestion := "Check the descriptor against the expected layout"
			if errors.Is(err, volume.ErrIO) {
				suggestion = "Check that the descriptor path exists and is readable"
			}
			return nil, issue.NewErrorContext().
				WithOperation("load workspace").
				WithResource(t.workspace).
				WithSuggestion(suggestion).
				WithIssue(issue.WorkspaceInvalidId).
				Wrap(err).
				BuildError()
		}
		if t.rootDir != "" {
			desc.RootDir = t.rootDir
		}
		return desc, nil

	case t.rootDir != "":
		desc := &workspace.Descriptor{
			RootDir: t.rootDir,
			Projects: map[string]project.Spec{
				t.packageName(): {".": {Prefix: t.top, DirPaths: t.dirs}},
			},
		}
		if err := desc.Validate(); err != nil {
			return nil, issue.NewErrorContext().
				WithOperation("define package").
				WithResource(t.rootDir).
				WithSuggestion("--top must be a dotted name such as MyLib or MyLib.Core").
				WithIssue(issue.WorkspaceInvalidId).
				Wrap(err).
				BuildError()
		}
		return desc, nil

	default:
		return nil, issue.NewErrorContext().
			WithOperation("select build target").
			WithSuggestion("Pass --workspace FILE").
			WithSuggestion("Or pass --rootdir DIR with --top NAME").
			WithIssue(issue.WorkspaceNotFoundId).
			Wrap(errNoTarget).
			BuildError()
	}
}

// packageName is the name of a single-tree package.
func (t *targetFlags) packageName() string {
	switch {
	case t.name != "":
		return t.name
	case t.top != "":
		return t.top
	default:
		return filepath.Base(filepath.Clean(t.rootDir))
	}
}

// splitOutput interprets --out: a path ending in .coq-pkg names the
// archive of a single-tree package, anything else is a directory.
func splitOutput(out string) (dir, name string) {
	if stem, ok := strings.CutSuffix(filepath.Base(out), coqpkg.ArchiveExt); ok && stem != "" {
		return filepath.Dir(out), stem
	}
	return out, ""
}

// indexWorkspace snapshots the shared search path every project resolves
// against. Project search paths stay live, so outputs compiled later are
// still packed.
func (a *App) indexWorkspace(ws *project.Workspace) {
	idx := ws.CreateIndex()
	a.Logger.Debug("search path indexed", "modules", idx.Len())
}
