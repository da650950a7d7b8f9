package blobstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/rybkr/blobrepo/internal/errs"
)

// Retrying wraps a Store and retries a Get or Put that fails with
// errs.ErrBackendUnavailable, using exponential backoff capped at
// maxElapsed. Any other error, including a context cancellation, is
// returned immediately without a retry.
type Retrying struct {
	inner      Store
	baseDelay  time.Duration
	maxElapsed time.Duration
}

// NewRetrying wraps inner so transient backend-unavailable errors are
// retried with exponential backoff starting at baseDelay, for up to
// maxElapsed total.
func NewRetrying(inner Store, baseDelay, maxElapsed time.Duration) *Retrying {
	return &Retrying{inner: inner, baseDelay: baseDelay, maxElapsed: maxElapsed}
}

func (r *Retrying) backoff() (retry.Backoff, error) {
	b, err := retry.NewExponential(r.baseDelay)
	if err != nil {
		return nil, fmt.Errorf("blobstore: build backoff: %w", err)
	}
	b = retry.WithJitterPercent(10, b)
	return retry.WithMaxDuration(r.maxElapsed, b), nil
}

func (r *Retrying) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := r.backoff()
	if err != nil {
		return nil, false, err
	}
	var value []byte
	var found bool
	err = retry.Do(ctx, b, func(ctx context.Context) error {
		var innerErr error
		value, found, innerErr = r.inner.Get(ctx, key)
		if errors.Is(innerErr, errs.ErrBackendUnavailable) {
			return retry.RetryableError(innerErr)
		}
		return innerErr
	})
	if err != nil {
		return nil, false, fmt.Errorf("blobstore: retrying get %s: %w", key, err)
	}
	return value, found, nil
}

func (r *Retrying) Put(ctx context.Context, key string, value []byte) error {
	b, err := r.backoff()
	if err != nil {
		return err
	}
	err = retry.Do(ctx, b, func(ctx context.Context) error {
		innerErr := r.inner.Put(ctx, key, value)
		if errors.Is(innerErr, errs.ErrBackendUnavailable) {
			return retry.RetryableError(innerErr)
		}
		return innerErr
	})
	if err != nil {
		return fmt.Errorf("blobstore: retrying put %s: %w", key, err)
	}
	return nil
}

// IsPresent delegates to the wrapped store's Presence implementation
// when it has one, without retrying: a presence check is cheap enough
// for the caller to retry itself if needed.
func (r *Retrying) IsPresent(ctx context.Context, key string) (bool, error) {
	return IsPresent(ctx, r.inner, key)
}
