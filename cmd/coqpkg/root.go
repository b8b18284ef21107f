// SPDX-License-Identifier: MPL-2.0

// Package cmd contains all CLI commands for coqpkg.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"coqpkg/internal/issue"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"
)

// rootFlagValues holds the persistent flags shared by every subcommand.
type rootFlagValues struct {
	verbose    bool
	configPath string
}

// newRootCommand builds the command tree around app.
func newRootCommand(app *App) *cobra.Command {
	flags := &rootFlagValues{}
	rootCmd := &cobra.Command{
		Use:   "coqpkg",
		Short: "Build, index and load Coq library packages",
		Long: TitleStyle.Render("coqpkg") + SubtitleStyle.Render(" - Coq library packages") + `

coqpkg scans Coq source trees, computes module dependencies, compiles
them in order through the proof engine and bundles the compiled objects
into .coq-pkg archives with a JSON manifest.

` + SubtitleStyle.Render("Examples:") + `
  coqpkg build --rootdir theories --top MyLib     Package one source tree
  coqpkg build --workspace coq-pkgs.yaml --compile Compile and package a workspace
  coqpkg deps --rootdir theories --top MyLib --order
  coqpkg manifest show bin/coq/mylib.json
  coqpkg resolve --packages init,arith Coq.Arith.PeanoNat
  coqpkg config show`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			app.init(cmd.Context(), flags)
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "config file (default is $XDG_CONFIG_HOME/coqpkg/config.cue)")

	rootCmd.AddCommand(
		newBuildCommand(app),
		newDepsCommand(app),
		newManifestCommand(app),
		newResolveCommand(app),
		newPublishCommand(app),
		newConfigCommand(app),
	)
	return rootCmd
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute runs the CLI. It is called by main.main().
func Execute() {
	app := NewApp(os.Stdout, os.Stderr)
	app.installDefaultLogger = true

	// fang overrides rootCmd.Version, so the version goes through WithVersion.
	err := fang.Execute(
		context.Background(),
		newRootCommand(app),
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
	)
	if err != nil {
		app.explain(err)
		os.Exit(exitCode(err))
	}
}

// formatErrorForDisplay formats an error for user display.
// If the error is an ActionableError, it uses the Format method.
// In verbose mode, shows the full error chain.
func formatErrorForDisplay(err error, verboseMode bool) string {
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return ae.Format(verboseMode)
	}
	return err.Error()
}
