// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/spf13/cobra"

	"coqpkg/internal/build"
	"coqpkg/internal/issue"
	"coqpkg/internal/watch"
	"coqpkg/internal/workspace"
	"coqpkg/pkg/coqpkg"
	"coqpkg/pkg/engine"
	"coqpkg/pkg/project"
	"coqpkg/pkg/volume"
)

type buildFlagValues struct {
	target   targetFlags
	out      string
	legacy   bool
	cont     bool
	compile  bool
	watch    bool
	noEmbed  bool
	patterns []string
}

func newBuildCommand(app *App) *cobra.Command {
	flags := &buildFlagValues{}
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Package Coq libraries",
		Long: `Scan the selected source trees, compute module dependencies and write
one NAME.coq-pkg archive and NAME.json manifest per package.

With --compile every source module is first compiled through the proof
engine, prerequisites first. --continue skips modules whose compiled
object is newer than their source.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBuild(cmd.Context(), app, flags)
		},
	}
	flags.target.register(cmd)
	cmd.Flags().StringVarP(&flags.out, "out", "o", "", "output directory, or NAME.coq-pkg for a single tree (default build.output_dir)")
	cmd.Flags().BoolVar(&flags.legacy, "legacy", false, "write manifests in the older directory-grouped layout")
	cmd.Flags().BoolVar(&flags.cont, "continue", false, "skip modules whose compiled object is up to date")
	cmd.Flags().BoolVar(&flags.compile, "compile", false, "compile sources through the proof engine before packaging")
	cmd.Flags().BoolVarP(&flags.watch, "watch", "w", false, "rebuild when sources change")
	cmd.Flags().BoolVar(&flags.noEmbed, "no-embed-manifest", false, "do not store the manifest inside the archive")
	cmd.Flags().StringSliceVar(&flags.patterns, "watch-pattern", nil, "glob patterns selecting watched files (default **/*.v)")
	return cmd
}

// buildPlan is the resolved input of one build run.
type buildPlan struct {
	desc   *workspace.Descriptor
	outDir string
	opts   project.SaveOptions
}

func runBuild(ctx context.Context, app *App, flags *buildFlagValues) error {
	disk := volume.NewDisk("")
	plan, err := flags.plan(app, disk)
	if err != nil {
		return &ExitError{Code: 1, Err: err}
	}
	if err := app.buildOnce(ctx, disk, plan, flags); err != nil {
		return err
	}
	if !flags.watch {
		return nil
	}
	return app.watchBuild(ctx, disk, plan, flags)
}

func (f *buildFlagValues) plan(app *App, disk volume.Volume) (*buildPlan, error) {
	outDir, archiveName := splitOutput(f.out)
	if archiveName != "" && f.target.name == "" {
		f.target.name = archiveName
	}
	if outDir == "" {
		outDir = app.Config.Build.OutputDir
	}
	desc, err := f.target.descriptor(disk)
	if err != nil {
		return nil, err
	}
	if archiveName != "" && len(desc.Projects) > 1 {
		return nil, issue.NewErrorContext().
			WithOperation("select output").
			WithResource(f.out).
			WithSuggestion("Pass an output directory when building a workspace").
			Wrap(errors.New("a single archive name was given for several packages")).
			BuildError()
	}
	return &buildPlan{
		desc:   desc,
		outDir: outDir,
		opts: project.SaveOptions{
			Legacy:        f.legacy || app.Config.Build.LegacyManifest,
			EmbedManifest: !f.noEmbed,
		},
	}, nil
}

// buildOnce opens the workspace, optionally compiles it, and saves every
// package. A save failure is exit code 1.
func (a *App) buildOnce(ctx context.Context, disk volume.Volume, plan *buildPlan, flags *buildFlagValues) error {
	ws, err := plan.desc.Open(disk, plan.outDir, flags.target.boot, project.Options{
		Extensions: a.Config.Build.Extensions,
		Logger:     a.Logger,
	})
	if err != nil {
		return &ExitError{Code: 1, Err: issue.NewErrorContext().
			WithOperation("open workspace").
			WithResource(plan.desc.RootDir).
			WithIssue(issue.PackageNotFoundId).
			Wrap(err).
			Build()}
	}
	a.indexWorkspace(ws)

	var eng *engineRun
	if flags.compile {
		eng, err = a.startEngine(ctx, nil)
		if err != nil {
			return &ExitError{Code: 1, Err: err}
		}
		defer func() {
			if closeErr := eng.Close(); closeErr != nil {
				a.Logger.Warn("engine shutdown", "error", closeErr)
			}
		}()
	}

	preload := a.preloadURIs(plan, flags.target.boot)
	for _, name := range plan.desc.Names() {
		p, _ := ws.Project(name)
		deps, err := p.ComputeDeps()
		if err != nil {
			return &ExitError{Code: 1, Err: issue.WrapWithContext(err, "scan sources", name)}
		}

		if eng != nil {
			order := deps.BuildOrder(p.Modules())
			if len(order.Unresolved) > 0 {
				a.Logger.Warn("dependency cycle", "package", name, "modules", order.Unresolved)
			}
			res, err := build.New(eng.Session, build.Options{
				LibDir:   eng.LibDir,
				Continue: flags.cont || a.Config.Build.Continue,
				Preload:  preload,
				Logger:   a.Logger,
			}).Build(ctx, order)
			if err != nil {
				return &ExitError{Code: 1, Err: compileError(name, err)}
			}
			preload = nil
			a.printf("%s %s: %d compiled, %d up to date\n",
				SuccessStyle.Render("✓"), name, len(res.Built), len(res.Skipped))
		}

		saved, err := p.Save(disk, plan.outDir, plan.opts)
		if err != nil {
			return &ExitError{Code: 1, Err: issue.NewErrorContext().
				WithOperation("write package").
				WithResource(name).
				WithSuggestion("Check that " + plan.outDir + " is writable").
				WithIssue(issue.PackageWriteFailedId).
				Wrap(err).
				Build()}
		}
		a.printf("%s %s %s\n", SuccessStyle.Render("✓"), TitleStyle.Render(name), CmdStyle.Render(saved.ArchivePath))
	}
	return nil
}

// preloadURIs lists the dependency archives the engine installs before
// compiling.
func (a *App) preloadURIs(plan *buildPlan, boot bool) []string {
	if boot {
		return nil
	}
	uris := make([]string, 0, len(plan.desc.Deps))
	for _, dep := range plan.desc.Deps {
		p, err := filepath.Abs(filepath.Join(plan.outDir, dep+coqpkg.ArchiveExt))
		if err != nil {
			p = filepath.Join(plan.outDir, dep+coqpkg.ArchiveExt)
		}
		uris = append(uris, p)
	}
	return uris
}

func compileError(pkg string, err error) error {
	ec := issue.NewErrorContext().
		WithOperation("compile package").
		WithResource(pkg).
		Wrap(err)
	var engErr *engine.EngineError
	switch {
	case errors.As(err, &engErr):
		ec.WithIssue(issue.EngineFailedId).
			WithSuggestion("Fix the module and rerun with --continue")
	case errors.Is(err, build.ErrPreload):
		ec.WithIssue(issue.PackageNotFoundId).
			WithSuggestion("Build the dependency packages first, or pass --boot")
	}
	return ec.BuildError()
}

// watchBuild rebuilds on source changes until ctx is canceled.
func (a *App) watchBuild(ctx context.Context, disk volume.Volume, plan *buildPlan, flags *buildFlagValues) error {
	w, err := watch.New(watch.Options{
		Roots:    []string{plan.desc.RootDir},
		Patterns: flags.patterns,
		Logger:   a.Logger,
		OnChange: func(ctx context.Context, changed []string) error {
			a.Logger.Info("rebuilding", "changed", len(changed))
			return a.buildOnce(ctx, disk, plan, flags)
		},
	})
	if err != nil {
		return err
	}
	a.println(SubtitleStyle.Render("Watching " + plan.desc.RootDir + " (Ctrl+C to stop)"))
	return w.Run(ctx)
}
