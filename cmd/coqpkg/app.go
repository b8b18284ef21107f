// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/charmbracelet/log"
	"golang.org/x/term"

	"coqpkg/internal/config"
	"coqpkg/internal/fetch"
	"coqpkg/internal/issue"
)

// App is the composition root of the CLI: every command handler receives
// it and reads configuration, logging and output streams through it.
type App struct {
	// Config is loaded before any command runs; defaults when loading failed.
	Config *config.Config
	// ConfigPath is the file Config was read from, empty for defaults.
	ConfigPath string
	// ConfigDir overrides the configuration directory lookup.
	ConfigDir string
	// Logger is installed from the --verbose flag and log.level.
	Logger *slog.Logger

	verbose bool
	stdout  io.Writer
	stderr  io.Writer

	// installDefaultLogger makes Logger the process-wide slog default.
	installDefaultLogger bool
}

// NewApp returns an App writing to stdout and stderr.
func NewApp(stdout, stderr io.Writer) *App {
	return &App{
		Config: config.DefaultConfig(),
		Logger: slog.Default(),
		stdout: stdout,
		stderr: stderr,
	}
}

// init loads configuration and sets up logging. A configuration error is
// reported as a warning and the defaults are used instead.
func (a *App) init(ctx context.Context, flags *rootFlagValues) {
	a.verbose = flags.verbose
	cfg, path, err := config.Load(ctx, config.LoadOptions{
		ConfigFilePath: flags.configPath,
		ConfigDirPath:  a.ConfigDir,
	})
	if err != nil {
		fmt.Fprintln(a.stderr, WarningStyle.Render("Warning: ")+formatErrorForDisplay(err, a.verbose))
		cfg, path = config.DefaultConfig(), ""
	}
	a.Config, a.ConfigPath = cfg, path

	a.Logger = newLogger(a.stderr, cfg.Log.Level, a.verbose)
	if a.installDefaultLogger {
		slog.SetDefault(a.Logger)
	}
}

// newLogger returns a slog logger backed by a charm log handler.
func newLogger(w io.Writer, level config.LogLevel, verbose bool) *slog.Logger {
	handler := log.NewWithOptions(w, log.Options{
		Prefix:          config.AppName,
		ReportTimestamp: verbose,
	})
	lvl, err := log.ParseLevel(string(level))
	if err != nil {
		lvl = log.InfoLevel
	}
	if verbose {
		lvl = log.DebugLevel
	}
	handler.SetLevel(lvl)
	return slog.New(handler)
}

// explain prints what fang does not: the suggestions of an actionable
// error and, in verbose mode, the catalog entry it links to.
func (a *App) explain(err error) {
	var ae *issue.ActionableError
	if !errors.As(err, &ae) {
		return
	}
	for _, s := range ae.Suggestions {
		fmt.Fprintln(a.stderr, VerboseStyle.Render("  • "+s))
	}
	if !a.verbose || ae.Issue == 0 {
		return
	}
	if is := issue.Get(ae.Issue); is != nil {
		rendered, renderErr := is.Render("auto")
		if renderErr != nil {
			a.Logger.Debug("render issue", "issue", int(ae.Issue), "error", renderErr)
			return
		}
		fmt.Fprint(a.stderr, rendered)
	}
}

// fetcher returns a fetcher for file, http(s) and, when an endpoint is
// configured, s3 URIs.
func (a *App) fetcher() (*fetch.Router, error) {
	r := fetch.NewRouter()
	logger := a.Logger
	h := &fetch.HTTP{Progress: func(uri string, downloaded, total int64) {
		logger.Debug("download", "uri", uri, "bytes", downloaded, "total", total)
	}}
	r.Register("http", h)
	r.Register("https", h)

	if a.Config.S3.Endpoint != "" {
		s3, err := a.s3()
		if err != nil {
			return nil, err
		}
		r.Register("s3", s3)
	}
	return r, nil
}

func (a *App) s3() (*fetch.S3, error) {
	c := a.Config.S3
	return fetch.NewS3(fetch.S3Config{
		Endpoint:  c.Endpoint,
		Region:    c.Region,
		AccessKey: c.AccessKey,
		SecretKey: c.SecretKey,
		Bucket:    c.Bucket,
		UseSSL:    c.UseSSL,
	})
}

func (a *App) println(args ...any) {
	fmt.Fprintln(a.stdout, args...)
}

func (a *App) printf(format string, args ...any) {
	fmt.Fprintf(a.stdout, format, args...)
}

// stdoutIsTerminal reports whether w is a terminal.
func stdoutIsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
