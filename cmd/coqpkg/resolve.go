// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"coqpkg/internal/issue"
	"coqpkg/pkg/engine"
	"coqpkg/pkg/pkgindex"
)

type resolveFlagValues struct {
	packages  []string
	manifests []string
	baseURI   string
	prefix    string
	modules   bool
	load      bool
	timeout   time.Duration
}

func newResolveCommand(app *App) *cobra.Command {
	flags := &resolveFlagValues{}
	cmd := &cobra.Command{
		Use:   "resolve <module>...",
		Short: "Find the packages providing modules",
		Long: `Index package manifests and print the packages that must be loaded,
in order, for the given module references and everything they require.

References are matched like Require: "Arith.PeanoNat" finds
Coq.Arith.PeanoNat, and --prefix restricts matches to a logical prefix.
With --load the packages are also installed through the proof engine.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(cmd.Context(), app, flags, args)
		},
	}
	cmd.Flags().StringSliceVarP(&flags.packages, "packages", "p", nil, "package names whose manifests are read from --base-uri")
	cmd.Flags().StringSliceVar(&flags.manifests, "manifest", nil, "manifest URIs to index")
	cmd.Flags().StringVar(&flags.baseURI, "base-uri", "", "location of NAME.json manifests (default packages.base_uri)")
	cmd.Flags().StringVar(&flags.prefix, "prefix", "", "logical prefix the references are qualified with")
	cmd.Flags().BoolVar(&flags.modules, "modules", false, "also print the module closure")
	cmd.Flags().BoolVar(&flags.load, "load", false, "load the packages through the proof engine")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", 2*time.Minute, "how long --load waits for the engine")
	return cmd
}

func runResolve(ctx context.Context, app *App, flags *resolveFlagValues, refs []string) error {
	if len(flags.packages) == 0 && len(flags.manifests) == 0 {
		return &ExitError{Code: 1, Err: issue.NewErrorContext().
			WithOperation("index packages").
			WithSuggestion("Pass --packages NAME,... or --manifest URI,...").
			Wrap(errors.New("no packages to index")).
			Build()}
	}
	fetcher, err := app.fetcher()
	if err != nil {
		return err
	}

	poster := &enginePoster{}
	idx := pkgindex.New(pkgindex.Options{
		Fetcher:   fetcher,
		CacheSize: app.Config.Packages.IndexCacheSize,
		Logger:    app.Logger,
		Loader:    pkgindex.PostLoader(poster),
	})
	if err := indexManifests(ctx, app, idx, flags); err != nil {
		return &ExitError{Code: 1, Err: err}
	}

	mods := idx.FindModules(flags.prefix, refs)
	closure := idx.ComputeModuleDeps(mods)
	pkgs := idx.PackagesFor(mods)
	for _, p := range pkgs {
		app.println(p)
	}
	if flags.modules {
		app.println(SubtitleStyle.Render("modules:"))
		for _, m := range closure {
			app.println("  " + m)
		}
	}
	if !flags.load || len(pkgs) == 0 {
		return nil
	}

	resolver := &pkgindex.Resolver{Index: idx, Engine: poster, Logger: app.Logger}
	run, err := app.startEngine(ctx, func(m engine.Message) { resolver.Handle(ctx, m) })
	if err != nil {
		return &ExitError{Code: 1, Err: err}
	}
	poster.session.Store(run.Session)
	defer func() {
		resolver.Wait()
		if closeErr := run.Close(); closeErr != nil {
			app.Logger.Warn("engine shutdown", "error", closeErr)
		}
	}()

	group, err := idx.LoadPackages(ctx, pkgs)
	if err != nil {
		return &ExitError{Code: 1, Err: issue.WrapWithContext(err, "load packages", strings.Join(pkgs, ", "))}
	}
	waitCtx, cancel := context.WithTimeout(ctx, flags.timeout)
	defer cancel()
	if err := group.Wait(waitCtx); err != nil {
		return &ExitError{Code: 1, Err: issue.NewErrorContext().
			WithOperation("load packages").
			WithResource(strings.Join(pkgs, ", ")).
			WithIssue(issue.PackageNotFoundId).
			Wrap(err).
			Build()}
	}
	app.printf("%s loaded %d package(s)\n", SuccessStyle.Render("✓"), len(pkgs))
	return nil
}

var errEngineNotStarted = errors.New("proof engine not started")

// enginePoster sends through the engine session once one is attached, so
// the index and resolver can be built before the engine starts.
type enginePoster struct {
	session atomic.Pointer[engine.Session]
}

// Post implements pkgindex.Poster.
func (p *enginePoster) Post(ctx context.Context, cmd engine.Command) error {
	s := p.session.Load()
	if s == nil {
		return fmt.Errorf("%w: cannot send %s", errEngineNotStarted, cmd.Tag())
	}
	return s.Post(ctx, cmd)
}

func indexManifests(ctx context.Context, app *App, idx *pkgindex.Index, flags *resolveFlagValues) error {
	if len(flags.manifests) > 0 {
		if err := idx.LoadInfo(ctx, flags.manifests); err != nil {
			return manifestError(err, strings.Join(flags.manifests, ", "))
		}
	}
	if len(flags.packages) > 0 {
		base := flags.baseURI
		if base == "" {
			base = app.Config.Packages.BaseURI
		}
		if err := idx.Populate(ctx, flags.packages, base); err != nil {
			return manifestError(err, base)
		}
	}
	app.Logger.Debug("packages indexed", "packages", idx.Packages())
	return nil
}

func manifestError(err error, resource string) error {
	return issue.NewErrorContext().
		WithOperation("read manifests").
		WithResource(resource).
		WithSuggestion("Check packages.base_uri and that the packages were built").
		WithIssue(issue.PackageNotFoundId).
		Wrap(err).
		BuildError()
}
