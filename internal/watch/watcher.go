// SPDX-License-Identifier: MPL-2.0

// Package watch rebuilds when proof sources change. A Watcher registers
// every directory beneath its roots, filters events through glob patterns
// and calls OnChange once per quiet period with the files that changed.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period used when Options.Debounce is unset.
const DefaultDebounce = 300 * time.Millisecond

// DefaultPatterns select proof sources.
var DefaultPatterns = []string{"**/*.v"}

// defaultIgnores cover build products, editor droppings and VCS metadata.
// Compiled objects are written next to sources, so they must never retrigger
// a build.
var defaultIgnores = []string{
	"**/.git/**",
	"**/_build/**",
	"**/*.vo",
	"**/*.vok",
	"**/*.vos",
	"**/*.glob",
	"**/.*.aux",
	"**/*.coq-pkg",
	"**/.*.tmp-*",
	"**/*~",
	"**/.#*",
}

type (
	// Options configures a Watcher.
	Options struct {
		// Roots are watched recursively.
		Roots []string
		// Patterns select files relative to their root; DefaultPatterns
		// when empty.
		Patterns []string
		// Ignore adds to the built-in ignore patterns.
		Ignore []string
		// Debounce defaults to DefaultDebounce.
		Debounce time.Duration
		// OnChange receives the sorted absolute paths changed since the
		// last call. Events arriving while it runs are held for the next.
		OnChange func(ctx context.Context, changed []string) error
		// Logger defaults to slog.Default().
		Logger *slog.Logger
	}

	// Watcher is single-use: Run may be called once.
	Watcher struct {
		opts     Options
		fsw      *fsnotify.Watcher
		roots    []string
		patterns []string
		ignores  []string
		logger   *slog.Logger
		started  atomic.Bool
	}
)

// New validates the options and registers every directory under Roots.
func New(opts Options) (*Watcher, error) {
	if len(opts.Roots) == 0 {
		return nil, errors.New("watch: no roots")
	}
	patterns := opts.Patterns
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}
	if err := validatePatterns(patterns); err != nil {
		return nil, err
	}
	if err := validatePatterns(opts.Ignore); err != nil {
		return nil, err
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	roots := make([]string, 0, len(opts.Roots))
	for _, r := range opts.Roots {
		abs, err := filepath.Abs(r)
		if err != nil {
			return nil, fmt.Errorf("watch: resolve %s: %w", r, err)
		}
		roots = append(roots, abs)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: create watcher: %w", err)
	}
	w := &Watcher{
		opts:     opts,
		fsw:      fsw,
		roots:    roots,
		patterns: patterns,
		ignores:  append(slices.Clone(defaultIgnores), opts.Ignore...),
		logger:   logger,
	}
	for _, root := range roots {
		if err := w.addTree(root); err != nil {
			_ = fsw.Close()
			return nil, err
		}
	}
	return w, nil
}

// Run processes events until ctx is canceled, which returns nil. A fatal
// watcher error ends Run with that error.
func (w *Watcher) Run(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return errors.New("watch: Run called more than once")
	}
	defer func() {
		if err := w.fsw.Close(); err != nil {
			w.logger.Warn("watch: close", "error", err)
		}
	}()

	pending := make(map[string]struct{})
	timer := time.NewTimer(w.opts.Debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case evt, ok := <-w.fsw.Events:
			if !ok {
				return errors.New("watch: event channel closed")
			}
			if evt.Has(fsnotify.Create) {
				w.maybeAddDir(evt.Name)
			}
			if !w.selects(evt.Name) {
				continue
			}
			pending[evt.Name] = struct{}{}
			timer.Reset(w.opts.Debounce)

		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			changed := slices.Sorted(maps.Keys(pending))
			clear(pending)
			w.logger.Debug("sources changed", "files", len(changed))
			if w.opts.OnChange != nil {
				if err := w.opts.OnChange(ctx, changed); err != nil {
					w.logger.Error("rebuild failed", "error", err)
				}
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return errors.New("watch: error channel closed")
			}
			if isFatalFsnotifyError(err) {
				return fmt.Errorf("watch: %w", err)
			}
			w.logger.Warn("watch: event error", "error", err)
		}
	}
}

// addTree registers root and every directory below it that is not
// ignored. Unreadable directories are skipped with a warning.
func (w *Watcher) addTree(root string) error {
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			w.logger.Warn("watch: skipping unreadable path", "path", path, "error", err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && w.ignored(root, path+string(filepath.Separator)) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("add %s: %w", path, err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	return nil
}

func (w *Watcher) maybeAddDir(path string) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return
	}
	root, ok := w.rootOf(path)
	if !ok || w.ignored(root, path+string(filepath.Separator)) {
		return
	}
	if err := w.addTree(path); err != nil {
		w.logger.Warn("watch: add new directory", "path", path, "error", err)
	}
}

// rootOf returns the innermost root containing path.
func (w *Watcher) rootOf(path string) (string, bool) {
	best := ""
	for _, r := range w.roots {
		rel, err := filepath.Rel(r, path)
		if err != nil || rel == ".." || (len(rel) > 2 && rel[:3] == ".."+string(filepath.Separator)) {
			continue
		}
		if len(r) > len(best) {
			best = r
		}
	}
	return best, best != ""
}

// selects reports whether a change to path should trigger OnChange.
func (w *Watcher) selects(path string) bool {
	root, ok := w.rootOf(path)
	if !ok || w.ignored(root, path) {
		return false
	}
	return matchAny(w.patterns, rel(root, path))
}

func (w *Watcher) ignored(root, path string) bool {
	return matchAny(w.ignores, rel(root, path))
}

func rel(root, path string) string {
	r, err := filepath.Rel(root, path)
	if err != nil {
		r = path
	}
	if len(path) > 0 && os.IsPathSeparator(path[len(path)-1]) {
		r += "/"
	}
	return filepath.ToSlash(r)
}

func matchAny(patterns []string, name string) bool {
	for _, p := range patterns {
		if ok, err := doublestar.Match(p, name); err == nil && ok {
			return true
		}
	}
	return false
}

func validatePatterns(patterns []string) error {
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("watch: invalid pattern %q", p)
		}
	}
	return nil
}
