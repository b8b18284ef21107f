// SPDX-License-Identifier: MPL-2.0

package pkgindex

import (
	"context"
	"errors"
	"sync"
)

type (
	// Future is a one-shot completion signal. The first Resolve or Reject
	// settles it; later calls are ignored.
	Future struct {
		done chan struct{}
		once sync.Once
		err  error
	}

	// Group is a set of futures awaited together.
	Group []*Future
)

// NewFuture returns an unsettled future.
func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Resolve settles f successfully. It reports whether this call settled it.
func (f *Future) Resolve() bool {
	return f.settle(nil)
}

// Reject settles f with err. It reports whether this call settled it.
func (f *Future) Reject(err error) bool {
	if err == nil {
		err = errors.New("rejected")
	}
	return f.settle(err)
}

func (f *Future) settle(err error) bool {
	settled := false
	f.once.Do(func() {
		f.err = err
		settled = true
		close(f.done)
	})
	return settled
}

// Done is closed once f is settled.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// IsDone reports whether f is settled.
func (f *Future) IsDone() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Err returns the rejection error; nil while pending or after Resolve.
func (f *Future) Err() error {
	if !f.IsDone() {
		return nil
	}
	return f.err
}

// Wait blocks until f is settled or ctx ends.
func (f *Future) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until every future is settled or ctx ends, and joins the
// rejection errors.
func (g Group) Wait(ctx context.Context) error {
	var errs []error
	for _, f := range g {
		if err := f.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return err
			}
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// IsDone reports whether every future is settled.
func (g Group) IsDone() bool {
	for _, f := range g {
		if !f.IsDone() {
			return false
		}
	}
	return true
}
