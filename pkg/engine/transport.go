// SPDX-License-Identifier: MPL-2.0

package engine

import "context"

// Transport carries commands to an engine and messages back. Send and
// Receive may be called from different goroutines, but each is called by
// at most one goroutine at a time.
type Transport interface {
	Send(ctx context.Context, cmd Command) error
	// Receive blocks until the next message. It returns io.EOF once the
	// engine has exited cleanly.
	Receive(ctx context.Context) (Message, error)
	Close() error
}
