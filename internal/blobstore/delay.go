package blobstore

import (
	"context"
	"math/rand/v2"
	"time"
)

// Delay wraps a Store and injects latency before every Get/Put, so tests
// can exercise ordering guarantees (e.g. "start C2 and C3 before C1 is
// durable") deterministically-ish rather than relying on goroutine
// scheduling luck.
type Delay struct {
	inner  Store
	base   time.Duration
	jitter time.Duration
}

// NewDelay wraps inner so every Get/Put sleeps for base plus a random
// amount in [0, jitter) before delegating.
func NewDelay(inner Store, base, jitter time.Duration) *Delay {
	return &Delay{inner: inner, base: base, jitter: jitter}
}

func (d *Delay) sleep(ctx context.Context) error {
	wait := d.base
	if d.jitter > 0 {
		wait += time.Duration(rand.Int64N(int64(d.jitter)))
	}
	if wait <= 0 {
		return nil
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Get delays then delegates to the wrapped store.
func (d *Delay) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := d.sleep(ctx); err != nil {
		return nil, false, err
	}
	return d.inner.Get(ctx, key)
}

// Put delays then delegates to the wrapped store.
func (d *Delay) Put(ctx context.Context, key string, value []byte) error {
	if err := d.sleep(ctx); err != nil {
		return err
	}
	return d.inner.Put(ctx, key, value)
}

// IsPresent delegates directly, without injected delay, so tests can poll
// state without paying the latency twice.
func (d *Delay) IsPresent(ctx context.Context, key string) (bool, error) {
	return IsPresent(ctx, d.inner, key)
}
