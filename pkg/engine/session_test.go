// SPDX-License-Identifier: MPL-2.0

package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"coqpkg/internal/testutil"
	"coqpkg/pkg/engine"
)

func startSession(t *testing.T, fake *testutil.FakeEngine, h engine.Handler) *engine.Session {
	t.Helper()
	s := engine.NewSession(fake, engine.SessionOptions{Handler: h})
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = s.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		_ = s.Close()
		<-s.Done()
	})
	return s
}

func TestSession_Exchange(t *testing.T) {
	t.Parallel()
	fake := testutil.NewFakeEngine(func(cmd engine.Command) []engine.Message {
		switch c := cmd.(type) {
		case engine.Load:
			return []engine.Message{engine.Feedback{}, engine.Loaded{}}
		case engine.Compile:
			return []engine.Message{engine.Compiled{Path: c.Path}}
		}
		return nil
	})

	var (
		mu        sync.Mutex
		unhandled []string
	)
	s := startSession(t, fake, func(m engine.Message) {
		mu.Lock()
		defer mu.Unlock()
		unhandled = append(unhandled, m.Tag())
	})

	ctx := context.Background()
	if _, err := s.Exchange(ctx, engine.Load{Path: "/lib/A.v"}, engine.Is(engine.TagLoaded)); err != nil {
		t.Fatalf("Exchange(Load) failed: %v", err)
	}
	msg, err := s.Exchange(ctx, engine.Compile{Path: "/lib/A.vo"}, engine.Is(engine.TagCompiled))
	if err != nil {
		t.Fatalf("Exchange(Compile) failed: %v", err)
	}
	if c, ok := msg.(engine.Compiled); !ok || c.Path != "/lib/A.vo" {
		t.Errorf("Exchange() = %#v", msg)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(unhandled) != 1 || unhandled[0] != engine.TagFeedback {
		t.Errorf("handler saw %v, want [Feedback]", unhandled)
	}
	if s.ID == "" {
		t.Error("session has no ID")
	}
}

func TestSession_FatalMessage(t *testing.T) {
	t.Parallel()
	fake := testutil.NewFakeEngine(func(engine.Command) []engine.Message {
		return []engine.Message{engine.CoqExn{}}
	})
	s := startSession(t, fake, nil)

	_, err := s.Exchange(context.Background(), engine.Compile{Path: "/lib/A.vo"}, engine.Is(engine.TagCompiled))
	var engErr *engine.EngineError
	if !errors.As(err, &engErr) || !errors.Is(err, engine.ErrEngine) {
		t.Fatalf("Exchange() error = %v, want *EngineError", err)
	}
	if engErr.Command != "Compile" {
		t.Errorf("Command = %q, want Compile", engErr.Command)
	}
}

func TestSession_ContextCanceled(t *testing.T) {
	t.Parallel()
	s := startSession(t, testutil.NewFakeEngine(nil), nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := s.Exchange(ctx, engine.Compile{Path: "/lib/A.vo"}, engine.Is(engine.TagCompiled))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Exchange() error = %v, want deadline exceeded", err)
	}
}

func TestSession_TransportClosed(t *testing.T) {
	t.Parallel()
	fake := testutil.NewFakeEngine(nil)
	s := engine.NewSession(fake, engine.SessionOptions{})
	runErr := make(chan error, 1)
	go func() { runErr <- s.Run(context.Background()) }()

	_ = fake.Close()
	if err := <-runErr; err != nil {
		t.Errorf("Run() after clean exit = %v, want nil", err)
	}
	if _, err := s.Exchange(context.Background(), engine.Init{}, engine.Is(engine.TagReady)); !errors.Is(err, engine.ErrClosed) {
		t.Errorf("Exchange() after close error = %v, want ErrClosed", err)
	}
	if err := s.Post(context.Background(), engine.RefreshLoadPath{}); !errors.Is(err, engine.ErrClosed) {
		t.Errorf("Post() after close error = %v, want ErrClosed", err)
	}
}

func TestSession_Post(t *testing.T) {
	t.Parallel()
	fake := testutil.NewFakeEngine(nil)
	s := startSession(t, fake, nil)
	if err := s.Post(context.Background(), engine.LoadPkg{URIs: []string{"+init"}}); err != nil {
		t.Fatal(err)
	}
	if tags := fake.SentTags(); len(tags) != 1 || tags[0] != "LoadPkg" {
		t.Errorf("sent %v", tags)
	}
}
