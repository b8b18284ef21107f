// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"coqpkg/internal/issue"
	"coqpkg/pkg/engine"
	"coqpkg/pkg/volume"
)

// defaultLibDir is the engine library directory, relative to its working
// directory, when engine.lib_dir is unset.
const defaultLibDir = "lib"

// engineRun is a started engine with its receive loop.
type engineRun struct {
	Session *engine.Session
	// LibDir is the library directory as the engine sees it.
	LibDir string

	workDir string
	temp    bool
	cancel  context.CancelFunc
	done    chan error
}

// startEngine launches the engine subprocess described by the engine
// configuration. handler receives unsolicited messages and may be nil.
func (a *App) startEngine(ctx context.Context, handler engine.Handler) (*engineRun, error) {
	cfg := a.Config.Engine
	workDir, temp := cfg.WorkDir, false
	if workDir == "" {
		dir, err := os.MkdirTemp("", "coqpkg-engine-*")
		if err != nil {
			return nil, fmt.Errorf("create engine work dir: %w", err)
		}
		workDir, temp = dir, true
	}

	libDir := cfg.LibDir
	if libDir == "" {
		libDir = defaultLibDir
	}
	hostLib := libDir
	if !filepath.IsAbs(hostLib) {
		hostLib = filepath.Join(workDir, hostLib)
	}

	fetcher, err := a.fetcher()
	if err != nil {
		return nil, err
	}
	proc, err := engine.Start(ctx, engine.SubprocessOptions{
		BinDir:  cfg.BinDir,
		Mode:    engine.Mode(cfg.Mode),
		WorkDir: workDir,
		Env:     os.Environ(),
		Packages: &engine.PackageDirectory{
			Volume:  volume.NewDisk(""),
			Dir:     hostLib,
			BinDir:  cfg.BinDir,
			Fetcher: fetcher,
			Logger:  a.Logger,
		},
		Logger: a.Logger,
	})
	if err != nil {
		if temp {
			_ = os.RemoveAll(workDir) // Best-effort cleanup
		}
		return nil, issue.NewErrorContext().
			WithOperation("start proof engine").
			WithResource(cfg.BinDir).
			WithSuggestion("Set engine.bin_dir to the directory holding icoq.exe or icoq.bc").
			WithSuggestion("Use engine.mode \"byte\" when only the bytecode build is installed").
			WithIssue(issue.EngineNotFoundId).
			Wrap(err).
			BuildError()
	}

	session := engine.NewSession(proc, engine.SessionOptions{Handler: handler, Logger: a.Logger})
	runCtx, cancel := context.WithCancel(ctx)
	run := &engineRun{
		Session: session,
		LibDir:  libDir,
		workDir: workDir,
		temp:    temp,
		cancel:  cancel,
		done:    make(chan error, 1),
	}
	go func() { run.done <- session.Run(runCtx) }()
	a.Logger.Debug("engine session started", "session", session.ID, "workdir", workDir)
	return run, nil
}

// Close stops the engine and removes a temporary working directory.
func (r *engineRun) Close() error {
	closeErr := r.Session.Close()
	r.cancel()
	runErr := <-r.done
	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}
	if r.temp {
		if err := os.RemoveAll(r.workDir); err != nil && closeErr == nil {
			closeErr = err
		}
	}
	return errors.Join(closeErr, runErr)
}
