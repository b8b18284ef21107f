// SPDX-License-Identifier: MPL-2.0

package build

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"coqpkg/pkg/coqdep"
	"coqpkg/pkg/engine"
	"coqpkg/pkg/searchpath"
	"coqpkg/pkg/volume"
)

// DefaultLibDir is where sources are placed in the engine's file system.
const DefaultLibDir = "/lib"

// ErrPreload is returned when a preloaded package fails to install.
var ErrPreload = errors.New("package preload failed")

type (
	// Session is the part of engine.Session a build needs.
	Session interface {
		Exchange(ctx context.Context, cmd engine.Command, until func(engine.Message) bool) (engine.Message, error)
		Post(ctx context.Context, cmd engine.Command) error
	}

	// Options configures a Builder.
	Options struct {
		// LibDir is the engine-side directory; defaults to DefaultLibDir.
		LibDir string
		// Output receives compiled objects. When nil each object is written
		// to the volume holding its source.
		Output volume.Volume
		// OutDir places objects at OutDir/<logical path>.vo on Output
		// instead of next to the source.
		OutDir string
		// Continue skips modules whose compiled object is at least as new
		// as the source.
		Continue bool
		// Preload lists package URIs installed before the first module.
		Preload []string
		// Logger defaults to slog.Default().
		Logger *slog.Logger
	}

	// Builder runs the per-module compile pipeline.
	Builder struct {
		session Session
		opts    Options
		logger  *slog.Logger
	}

	// Result lists what a build did, by dotted logical name.
	Result struct {
		Built   []string
		Skipped []string
		// Outputs maps each built module to the path of its object.
		Outputs map[string]string
	}
)

// New returns a builder driving session.
func New(session Session, opts Options) *Builder {
	if opts.LibDir == "" {
		opts.LibDir = DefaultLibDir
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{session: session, opts: opts, logger: logger}
}

// Build compiles every source module of plan in order. Modules that are
// already compiled objects are left alone. The first engine failure stops
// the build; modules built before it stay in the result.
func (b *Builder) Build(ctx context.Context, plan coqdep.Plan) (Result, error) {
	res := Result{Outputs: make(map[string]string)}
	if len(plan.Unresolved) > 0 {
		b.logger.Warn("modules left out of the build", "modules", plan.Unresolved)
	}
	if err := b.preload(ctx); err != nil {
		return res, err
	}

	for _, m := range plan.Order {
		if !m.IsSource() {
			continue
		}
		key := m.Key()
		outVol, outPath := b.outputFor(m)
		if b.opts.Continue && upToDate(m, outVol, outPath) {
			b.logger.Debug("up to date", "module", key)
			res.Skipped = append(res.Skipped, key)
			continue
		}
		if err := b.compile(ctx, m, outVol, outPath); err != nil {
			return res, fmt.Errorf("compile %s: %w", key, err)
		}
		b.logger.Info("compiled", "module", key, "output", outPath)
		res.Built = append(res.Built, key)
		res.Outputs[key] = outPath
	}
	return res, nil
}

func (b *Builder) preload(ctx context.Context) error {
	if len(b.opts.Preload) == 0 {
		return nil
	}
	var failed []string
	_, err := b.session.Exchange(ctx, engine.LoadPkg{URIs: b.opts.Preload}, func(m engine.Message) bool {
		if e, ok := m.(engine.LibError); ok {
			failed = append(failed, fmt.Sprintf("%s: %s", e.URI, e.Msg))
		}
		_, done := m.(engine.LoadedPkg)
		return done
	})
	if err != nil {
		return fmt.Errorf("preload: %w", err)
	}
	if len(failed) > 0 {
		return fmt.Errorf("%w: %s", ErrPreload, strings.Join(failed, "; "))
	}
	return nil
}

// compile runs Init, Put, Load, Compile and Get for one module.
func (b *Builder) compile(ctx context.Context, m searchpath.Module, outVol volume.Volume, outPath string) error {
	src, err := m.Volume.ReadFile(m.Physical)
	if err != nil {
		return err
	}
	rel := strings.Join(m.Logical, "/")
	vPath := path.Join(b.opts.LibDir, rel+searchpath.SourceExt)
	voPath := path.Join(b.opts.LibDir, rel+searchpath.CompiledExt)

	if err := b.session.Post(ctx, engine.Init{TopName: m.Key()}); err != nil {
		return err
	}
	if err := b.session.Post(ctx, engine.Put{Path: vPath, Data: src}); err != nil {
		return err
	}
	if _, err := b.session.Exchange(ctx, engine.Load{Path: vPath}, engine.Is(engine.TagLoaded)); err != nil {
		return err
	}
	if _, err := b.session.Exchange(ctx, engine.Compile{Path: voPath}, engine.Is(engine.TagCompiled)); err != nil {
		return err
	}
	msg, err := b.session.Exchange(ctx, engine.Get{Path: voPath}, engine.Is(engine.TagGot))
	if err != nil {
		return err
	}
	got, ok := msg.(engine.Got)
	if !ok {
		return fmt.Errorf("%w: unexpected %s answering Get", engine.ErrMalformedMessage, msg.Tag())
	}
	return outVol.WriteFile(outPath, got.Data)
}

func (b *Builder) outputFor(m searchpath.Module) (volume.Volume, string) {
	vol := b.opts.Output
	if vol == nil {
		vol = m.Volume
	}
	if b.opts.OutDir != "" {
		return vol, volume.Join(b.opts.OutDir, strings.Join(m.Logical, "/")+searchpath.CompiledExt)
	}
	return vol, strings.TrimSuffix(m.Physical, searchpath.SourceExt) + searchpath.CompiledExt
}

func upToDate(m searchpath.Module, outVol volume.Volume, outPath string) bool {
	out, err := outVol.Stat(outPath)
	if err != nil {
		return false
	}
	src, err := m.Volume.Stat(m.Physical)
	if err != nil {
		return false
	}
	return !out.ModTime().Before(src.ModTime())
}
