// SPDX-License-Identifier: MPL-2.0

package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

type (
	// Handler receives every message not consumed by an Exchange. It runs
	// on the session's receive goroutine and must not block on the session.
	Handler func(Message)

	// SessionOptions configures a Session.
	SessionOptions struct {
		// Handler is the single consumer of unsolicited messages.
		Handler Handler
		// Logger defaults to slog.Default().
		Logger *slog.Logger
	}

	// Session drives one engine. Commands are strictly request-then-response:
	// Exchange holds the session until its answer arrives, so at most one
	// command is outstanding.
	Session struct {
		// ID tags the session's log records.
		ID string

		transport Transport
		handler   Handler
		logger    *slog.Logger

		exch sync.Mutex // held for the duration of a command

		mu     sync.Mutex
		waiter *waiter
		done   chan struct{}
		err    error
	}

	waiter struct {
		cmd   string
		until func(Message) bool
		ch    chan result
	}

	result struct {
		msg Message
		err error
	}
)

// NewSession wraps t. Call Run to start receiving.
func NewSession(t Transport, opts SessionOptions) *Session {
	id := uuid.NewString()
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		ID:        id,
		transport: t,
		handler:   opts.Handler,
		logger:    logger.With("session", id),
		done:      make(chan struct{}),
	}
}

// SetHandler replaces the unsolicited message handler. It must be called
// before Run.
func (s *Session) SetHandler(h Handler) {
	s.handler = h
}

// Run receives messages until the transport ends or ctx is canceled. A
// clean engine exit returns nil.
func (s *Session) Run(ctx context.Context) error {
	for {
		msg, err := s.transport.Receive(ctx)
		if err != nil {
			s.finish(err)
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		s.route(msg)
	}
}

func (s *Session) finish(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if errors.Is(err, io.EOF) {
		err = ErrClosed
	}
	s.err = err
	if w := s.waiter; w != nil {
		w.ch <- result{err: err}
		s.waiter = nil
	}
	close(s.done)
}

func (s *Session) route(msg Message) {
	s.mu.Lock()
	w := s.waiter
	if w != nil && (IsFatal(msg) || w.until(msg)) {
		s.waiter = nil
		s.mu.Unlock()
		if IsFatal(msg) {
			w.ch <- result{err: &EngineError{Command: w.cmd, Message: msg}}
		} else {
			w.ch <- result{msg: msg}
		}
		return
	}
	s.mu.Unlock()

	if s.handler != nil {
		s.handler(msg)
	} else {
		s.logger.Debug("unhandled engine message", "tag", msg.Tag())
	}
}

// Exchange sends cmd and waits for the first message satisfying until,
// passing everything else to the handler. A fatal message ends the wait
// with an *EngineError.
func (s *Session) Exchange(ctx context.Context, cmd Command, until func(Message) bool) (Message, error) {
	s.exch.Lock()
	defer s.exch.Unlock()

	w := &waiter{cmd: cmd.Tag(), until: until, ch: make(chan result, 1)}
	s.mu.Lock()
	if s.err != nil {
		s.mu.Unlock()
		return nil, s.err
	}
	s.waiter = w
	s.mu.Unlock()

	s.logger.Debug("engine command", "tag", cmd.Tag())
	if err := s.transport.Send(ctx, cmd); err != nil {
		s.clearWaiter(w)
		return nil, err
	}

	select {
	case r := <-w.ch:
		return r.msg, r.err
	case <-ctx.Done():
		s.clearWaiter(w)
		return nil, ctx.Err()
	}
}

// Post sends cmd without waiting for an answer. It still waits for any
// outstanding Exchange to finish first.
func (s *Session) Post(ctx context.Context, cmd Command) error {
	s.exch.Lock()
	defer s.exch.Unlock()
	if err := s.Err(); err != nil {
		return err
	}
	s.logger.Debug("engine command", "tag", cmd.Tag())
	return s.transport.Send(ctx, cmd)
}

func (s *Session) clearWaiter(w *waiter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.waiter == w {
		s.waiter = nil
	}
}

// Done is closed when Run returns.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err returns why the session ended, or nil while it is running.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close closes the transport.
func (s *Session) Close() error {
	return s.transport.Close()
}
