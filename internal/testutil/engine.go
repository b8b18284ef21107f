// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"context"
	"io"
	"slices"
	"sync"

	"coqpkg/pkg/engine"
)

// FakeEngine is an in-memory engine.Transport. Each command sent is
// recorded and answered with whatever Respond returns for it.
type FakeEngine struct {
	// Respond produces the messages answering a command. It may be nil.
	Respond func(engine.Command) []engine.Message

	mu       sync.Mutex
	sent     []engine.Command
	incoming chan engine.Message
	closed   chan struct{}
	once     sync.Once
}

// NewFakeEngine returns a fake transport answering with respond.
func NewFakeEngine(respond func(engine.Command) []engine.Message) *FakeEngine {
	return &FakeEngine{
		Respond:  respond,
		incoming: make(chan engine.Message, 256),
		closed:   make(chan struct{}),
	}
}

// Send implements engine.Transport.
func (f *FakeEngine) Send(_ context.Context, cmd engine.Command) error {
	f.mu.Lock()
	f.sent = append(f.sent, cmd)
	respond := f.Respond
	f.mu.Unlock()
	if respond != nil {
		f.Emit(respond(cmd)...)
	}
	return nil
}

// Receive implements engine.Transport. After Close it drains queued
// messages and then returns io.EOF.
func (f *FakeEngine) Receive(ctx context.Context) (engine.Message, error) {
	select {
	case m := <-f.incoming:
		return m, nil
	case <-f.closed:
		select {
		case m := <-f.incoming:
			return m, nil
		default:
			return nil, io.EOF
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close implements engine.Transport.
func (f *FakeEngine) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

// Emit queues unsolicited messages.
func (f *FakeEngine) Emit(msgs ...engine.Message) {
	for _, m := range msgs {
		f.incoming <- m
	}
}

// Sent returns every command sent so far.
func (f *FakeEngine) Sent() []engine.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.sent)
}

// SentTags returns the tags of every command sent so far.
func (f *FakeEngine) SentTags() []string {
	cmds := f.Sent()
	tags := make([]string, 0, len(cmds))
	for _, c := range cmds {
		tags = append(tags, c.Tag())
	}
	return tags
}
