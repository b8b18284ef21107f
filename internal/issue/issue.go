// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"maps"
	"slices"
	"strings"

	"github.com/charmbracelet/glamour"
)

// Id identifies a catalog entry.
type Id int

const (
	ConfigLoadFailedId Id = iota + 1
	WorkspaceNotFoundId
	WorkspaceInvalidId
	EngineNotFoundId
	EngineFailedId
	DependencyCycleId
	PackageNotFoundId
	PackageWriteFailedId
	PublishFailedId
)

// Issue is a known failure with Markdown guidance.
type Issue struct {
	id       Id
	title    string
	markdown string
	links    []string
}

// Id returns the catalog key.
func (i *Issue) Id() Id { return i.id }

// Title returns the one-line summary.
func (i *Issue) Title() string { return i.title }

// Markdown returns the guidance with its links appended.
func (i *Issue) Markdown() string {
	var b strings.Builder
	b.WriteString("# ")
	b.WriteString(i.title)
	b.WriteString("\n")
	b.WriteString(i.markdown)
	if len(i.links) > 0 {
		b.WriteString("\n\n## See also\n")
		for _, l := range i.links {
			b.WriteString("- <")
			b.WriteString(l)
			b.WriteString(">\n")
		}
	}
	return b.String()
}

// Render formats the guidance for a terminal. style is a glamour style
// name such as "dark", "light", "notty" or "auto".
func (i *Issue) Render(style string) (string, error) {
	return render(i.Markdown(), style)
}

var render = glamour.Render

var issues = map[Id]*Issue{
	ConfigLoadFailedId: {
		id:    ConfigLoadFailedId,
		title: "The configuration could not be loaded",
		markdown: `
The configuration file exists but is not valid CUE, or a value does not
match the schema.

## Things you can try
- Print the effective configuration:
~~~
$ coqpkg config show
~~~
- Remove the offending key; every setting has a default.
- Override a single value from the environment, e.g. ` + "`COQPKG_ENGINE_MODE=byte`" + `.`,
	},
	WorkspaceNotFoundId: {
		id:    WorkspaceNotFoundId,
		title: "No workspace descriptor found",
		markdown: `
A build needs either a workspace descriptor or an explicit source tree.

## Things you can try
- Point at a descriptor (JSON, YAML or TOML):
~~~
$ coqpkg build --workspace coq-pkgs.json
~~~
- Build a single directory under a logical prefix:
~~~
$ coqpkg build --rootdir theories --top MyLib
~~~`,
	},
	WorkspaceInvalidId: {
		id:    WorkspaceInvalidId,
		title: "The workspace descriptor is invalid",
		markdown: `
Each project maps root directories to a logical ` + "`prefix`" + ` and a list of
dotted ` + "`dirpaths`" + `.

~~~json
{
  "rootdir": "vendor/coq",
  "projects": {
    "init": {"theories/Init": {"prefix": "Coq.Init", "dirpaths": [""]}}
  }
}
~~~`,
	},
	EngineNotFoundId: {
		id:    EngineNotFoundId,
		title: "The proof engine executable was not found",
		markdown: `
The engine is looked up in ` + "`engine.bin_dir`" + `: ` + "`icoq.exe`" + ` for native mode and
` + "`icoq.bc`" + ` (run through ` + "`ocamlrun`" + `) for byte mode.

## Things you can try
- Set the directory: ` + "`COQPKG_ENGINE_BIN_DIR=/path/to/bin`" + `
- Switch modes with ` + "`engine.mode`" + ` (` + "`best`" + ` tries native first).`,
	},
	EngineFailedId: {
		id:    EngineFailedId,
		title: "The proof engine rejected a module",
		markdown: `
A module failed to load or compile. Earlier modules of the build were
written; later ones were not attempted.

## Things you can try
- Fix the reported module and rerun with ` + "`--continue`" + ` to skip what is
  already built.
- Run with ` + "`--verbose`" + ` to see every engine command.`,
	},
	DependencyCycleId: {
		id:    DependencyCycleId,
		title: "Modules require each other in a cycle",
		markdown: `
Modules on a cycle cannot be ordered and were left out of the build.

## Things you can try
- Inspect the dependency map:
~~~
$ coqpkg deps --workspace coq-pkgs.json
~~~
- Move the shared definitions into a module both sides can require.`,
	},
	PackageNotFoundId: {
		id:    PackageNotFoundId,
		title: "A package could not be found",
		markdown: `
Dependencies are read from ` + "`<dir>/<name>.coq-pkg`" + ` and manifests from
` + "`<base-uri>/<name>.json`" + `.

## Things you can try
- Build the dependency first, or build with ` + "`--boot`" + `.
- Check ` + "`packages.base_uri`" + ` in the configuration.`,
	},
	PackageWriteFailedId: {
		id:    PackageWriteFailedId,
		title: "A package could not be written",
		markdown: `
The output directory must be writable. Nothing is removed when a write
fails, so a previous package of the same name may still be present.`,
	},
	PublishFailedId: {
		id:    PublishFailedId,
		title: "A package could not be published",
		markdown: `
Publishing uploads the archive and then its manifest to the configured
bucket.

## Things you can try
- Check ` + "`s3.endpoint`" + `, ` + "`s3.bucket`" + ` and the credentials.
- Credentials left empty are read from the standard AWS variables.`,
		links: []string{"https://min.io/docs/minio/linux/developers/go/API.html"},
	},
}

// Get returns the catalog entry for id, or nil.
func Get(id Id) *Issue {
	return issues[id]
}

// Values returns every catalog entry ordered by id.
func Values() []*Issue {
	out := slices.Collect(maps.Values(issues))
	slices.SortFunc(out, func(a, b *Issue) int { return int(a.id) - int(b.id) })
	return out
}
