// Package handle implements the forward-reference handle a changeset
// build hands back to its caller before the changeset is durable: two
// single-assignment latches, one that fires once the changeset is known
// well enough to serve as somebody else's parent, one that fires once it
// is fully written.
package handle

import (
	"context"
	"sync/atomic"

	"github.com/rybkr/blobrepo/internal/errs"
)

// Latch is a single-assignment, multi-waiter broadcast: Fire may be
// called exactly once, and every call to Wait — whether it arrived
// before or after Fire — observes the same value and error.
type Latch[T any] struct {
	done  chan struct{}
	fired atomic.Bool
	value T
	err   error
}

// NewLatch returns an unfired latch.
func NewLatch[T any]() *Latch[T] {
	return &Latch[T]{done: make(chan struct{})}
}

// Fire assigns value and err and wakes every current and future waiter.
// A second call returns errs.ErrLatchAlreadyFired without altering the
// value the first call assigned. Safe to call concurrently with itself.
func (l *Latch[T]) Fire(value T, err error) error {
	if !l.fired.CompareAndSwap(false, true) {
		return errs.ErrLatchAlreadyFired
	}
	l.value = value
	l.err = err
	close(l.done)
	return nil
}

// Wait blocks until Fire has been called or ctx is done, whichever comes
// first.
func (l *Latch[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-l.done:
		return l.value, l.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Fired reports whether Fire has already been called, without blocking.
func (l *Latch[T]) Fired() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}
