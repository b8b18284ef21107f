// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"coqpkg/internal/issue"
	"coqpkg/pkg/coqpkg"
	"coqpkg/pkg/project"
	"coqpkg/pkg/volume"
)

func newManifestCommand(app *App) *cobra.Command {
	manifestCmd := &cobra.Command{
		Use:   "manifest",
		Short: "Inspect package manifests",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	var raw bool
	showCmd := &cobra.Command{
		Use:   "show <manifest.json|archive.coq-pkg|uri>",
		Short: "Show the modules and dependencies of a package",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, _, err := app.readPackageInfo(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if raw {
				data, err := coqpkg.Encode(m)
				if err != nil {
					return err
				}
				_, err = app.stdout.Write(data)
				return err
			}
			return app.renderMarkdown(manifestMarkdown(m))
		},
	}
	showCmd.Flags().BoolVar(&raw, "json", false, "print the manifest as JSON")

	var out string
	legacyCmd := &cobra.Command{
		Use:   "legacy <manifest.json|archive.coq-pkg|uri>",
		Short: "Convert a manifest to the older directory-grouped layout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, files, err := app.readPackageInfo(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			data, err := coqpkg.EncodeLegacy(coqpkg.ToLegacy(m, files))
			if err != nil {
				return err
			}
			if out == "" {
				_, err = app.stdout.Write(data)
				return err
			}
			if err := volume.NewDisk("").WriteFile(out, data); err != nil {
				return &ExitError{Code: 1, Err: issue.NewErrorContext().
					WithOperation("write manifest").
					WithResource(out).
					WithIssue(issue.PackageWriteFailedId).
					Wrap(err).
					Build()}
			}
			app.printf("%s %s\n", SuccessStyle.Render("✓"), CmdStyle.Render(out))
			return nil
		},
	}
	legacyCmd.Flags().StringVarP(&out, "out", "o", "", "write to a file instead of stdout")

	manifestCmd.AddCommand(showCmd, legacyCmd)
	return manifestCmd
}

// readPackageInfo loads a manifest, or recomputes one from an archive.
// files is nil for a bare manifest.
func (a *App) readPackageInfo(ctx context.Context, src string) (*coqpkg.Manifest, map[string][]string, error) {
	fetcher, err := a.fetcher()
	if err != nil {
		return nil, nil, err
	}
	data, err := fetcher.Fetch(ctx, src)
	if err != nil {
		return nil, nil, &ExitError{Code: 1, Err: issue.NewErrorContext().
			WithOperation("read package").
			WithResource(src).
			WithIssue(issue.PackageNotFoundId).
			Wrap(err).
			Build()}
	}
	if !strings.HasSuffix(src, coqpkg.ArchiveExt) {
		m, err := coqpkg.Decode(data)
		if err != nil {
			return nil, nil, issue.WrapWithContext(err, "read manifest", src)
		}
		return m, nil, nil
	}

	pkg, err := coqpkg.OpenArchive(data)
	if err != nil {
		return nil, nil, issue.WrapWithContext(err, "open archive", src)
	}
	p := project.New(coqpkg.NameFromURI(src), project.Options{
		Extensions: a.Config.Build.Extensions,
		Logger:     a.Logger,
	})
	if err := p.FromArchive(pkg); err != nil {
		return nil, nil, issue.WrapWithContext(err, "open archive", src)
	}
	m := p.CreateManifest()
	if pkg.Manifest != nil {
		m.Name, m.Archive = pkg.Manifest.Name, pkg.Manifest.Archive
	}
	return m, p.ModuleFiles(), nil
}

// manifestMarkdown describes m as a markdown document.
func manifestMarkdown(m *coqpkg.Manifest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", m.Name)
	if m.Archive != "" {
		fmt.Fprintf(&b, "**Archive:** `%s`\n\n", m.Archive)
	}

	b.WriteString("## Dependencies\n\n")
	if len(m.Deps) == 0 {
		b.WriteString("_none_\n")
	}
	for _, d := range m.Deps {
		fmt.Fprintf(&b, "- %s\n", d)
	}

	names := m.ModuleNames()
	fmt.Fprintf(&b, "\n## Modules (%d)\n\n", len(names))
	if len(names) == 0 {
		b.WriteString("_none_\n")
		return b.String()
	}
	b.WriteString("| Module | Requires |\n|---|---|\n")
	for _, name := range names {
		deps := m.Modules[name].Deps
		req := "-"
		if len(deps) > 0 {
			req = "`" + strings.Join(deps, "`, `") + "`"
		}
		fmt.Fprintf(&b, "| `%s` | %s |\n", name, req)
	}
	return b.String()
}

// renderMarkdown writes md styled for a terminal, or plain otherwise.
func (a *App) renderMarkdown(md string) error {
	style := "notty"
	if stdoutIsTerminal(a.stdout) {
		style = "auto"
	}
	rendered, err := glamour.Render(md, style)
	if err != nil {
		return fmt.Errorf("render markdown: %w", err)
	}
	_, err = fmt.Fprint(a.stdout, rendered)
	return err
}
