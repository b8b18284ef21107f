// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"encoding/json"
	"maps"
	"slices"

	"github.com/spf13/cobra"

	"coqpkg/internal/issue"
	"coqpkg/pkg/project"
	"coqpkg/pkg/volume"
)

type depsFlagValues struct {
	target targetFlags
	order  bool
	depDir string
}

func newDepsCommand(app *App) *cobra.Command {
	flags := &depsFlagValues{}
	cmd := &cobra.Command{
		Use:   "deps",
		Short: "Print module dependencies or the build order",
		Long: `Scan the selected source trees and print, as JSON, the modules each
module requires. With --order print the compilation order instead, one
module per line, prerequisites first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDeps(app, flags)
		},
	}
	flags.target.register(cmd)
	cmd.Flags().BoolVar(&flags.order, "order", false, "print the build order instead of the dependency map")
	cmd.Flags().StringVar(&flags.depDir, "deps-dir", "", "directory holding dependency packages (default build.output_dir)")
	return cmd
}

func runDeps(app *App, flags *depsFlagValues) error {
	disk := volume.NewDisk("")
	desc, err := flags.target.descriptor(disk)
	if err != nil {
		return &ExitError{Code: 1, Err: err}
	}
	depDir := flags.depDir
	if depDir == "" {
		depDir = app.Config.Build.OutputDir
	}
	ws, err := desc.Open(disk, depDir, flags.target.boot, project.Options{
		Extensions: app.Config.Build.Extensions,
		Logger:     app.Logger,
	})
	if err != nil {
		return &ExitError{Code: 1, Err: issue.WrapWithContext(err, "open workspace", desc.RootDir)}
	}
	app.indexWorkspace(ws)

	all := make(map[string][]string)
	for _, name := range desc.Names() {
		p, _ := ws.Project(name)
		deps, err := p.ComputeDeps()
		if err != nil {
			return &ExitError{Code: 1, Err: issue.WrapWithContext(err, "scan sources", name)}
		}
		if !flags.order {
			maps.Copy(all, deps.DepsToJSON())
			continue
		}
		plan := deps.BuildOrder(p.Modules())
		for _, m := range plan.Order {
			app.println(m.Key())
		}
		if len(plan.Unresolved) > 0 {
			app.println(WarningStyle.Render("cycle, not scheduled:"))
			for _, k := range plan.Unresolved {
				app.println("  " + k)
			}
		}
	}
	if flags.order {
		return nil
	}

	for k := range all {
		slices.Sort(all[k])
	}
	out, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return err
	}
	app.println(string(out))
	return nil
}
