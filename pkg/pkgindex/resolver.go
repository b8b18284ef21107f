// SPDX-License-Identifier: MPL-2.0

package pkgindex

import (
	"context"
	"log/slog"
	"sync"

	"coqpkg/pkg/engine"
)

type (
	// Poster sends a command without awaiting an answer. *engine.Session
	// implements it.
	Poster interface {
		Post(ctx context.Context, cmd engine.Command) error
	}

	// Resolver serves the engine's requests for missing modules: on
	// Pending it loads the packages providing the referenced modules,
	// refreshes the engine's load path and resubmits the blocked sentence.
	Resolver struct {
		// Index resolves module references to packages.
		Index *Index
		// Engine receives RefreshLoadPath and the resubmitted Add.
		Engine Poster
		// Logger defaults to slog.Default().
		Logger *slog.Logger

		mu        sync.Mutex
		sentences map[int]string
		wg        sync.WaitGroup
	}
)

// PostLoader returns a Loader sending LoadPkg through p.
func PostLoader(p Poster) Loader {
	return LoaderFunc(func(ctx context.Context, uris []string) error {
		return p.Post(ctx, engine.LoadPkg{URIs: uris})
	})
}

// Remember records the text of sentence sid so it can be resubmitted.
// Hosts that submit sentences call it before sending Add; for a sentence
// never remembered, Resolve stops after RefreshLoadPath.
func (r *Resolver) Remember(sid int, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sentences == nil {
		r.sentences = make(map[int]string)
	}
	r.sentences[sid] = text
}

func (r *Resolver) sentence(sid int) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	text, ok := r.sentences[sid]
	return text, ok
}

func (r *Resolver) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

// Handle is an engine.Handler body: load notifications update the index
// and Pending starts resolution in the background. It reports whether msg
// was consumed.
func (r *Resolver) Handle(ctx context.Context, msg engine.Message) bool {
	if p, ok := msg.(engine.Pending); ok {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			if err := r.Resolve(ctx, p); err != nil {
				r.logger().Warn("pending sentence not resolved", "sid", p.SID, "error", err)
			}
		}()
		return true
	}
	return r.Index.HandleMessage(msg)
}

// Resolve loads what p needs, waits for the loads, and resubmits the
// sentence if its text was remembered.
func (r *Resolver) Resolve(ctx context.Context, p engine.Pending) error {
	mods := r.Index.FindModules(p.Prefix, p.ModRefs)
	group, err := r.Index.LoadModuleDeps(ctx, mods)
	if err != nil {
		return err
	}
	if err := group.Wait(ctx); err != nil {
		return err
	}
	r.logger().Debug("pending modules available", "sid", p.SID, "modules", mods)
	if err := r.Engine.Post(ctx, engine.RefreshLoadPath{}); err != nil {
		return err
	}
	if text, ok := r.sentence(p.SID); ok {
		return r.Engine.Post(ctx, engine.Add{SID: p.SID, Text: text, Resolve: true})
	}
	return nil
}

// Wait blocks until every background resolution started by Handle is done.
func (r *Resolver) Wait() {
	r.wg.Wait()
}
