// Package blobstore defines the opaque content-addressed key→bytes
// capability the rest of the engine is built over, plus the variants
// named in the spec: an in-memory store for tests, a delay-injecting
// wrapper for concurrency-ordering tests, and an on-disk KV store backed
// by bbolt.
package blobstore

import (
	"context"
	"fmt"

	"github.com/rybkr/blobrepo/internal/errs"
	"github.com/rybkr/blobrepo/internal/nodeid"
)

// Store is the capability every backend implements: Get and Put.
// IsPresent and AssertPresent below are built on top of it. Absence is
// not an error from Get — it is reported via the second return value.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
}

// Presence is an optional, cheaper implementation of IsPresent. Backends
// that can check existence without reading the full value should
// implement it; IsPresent falls back to Get when they don't.
type Presence interface {
	IsPresent(ctx context.Context, key string) (bool, error)
}

// IsPresent reports whether key exists in s. Equivalent to
// Get(key).is_some() unless s implements Presence more cheaply.
func IsPresent(ctx context.Context, s Store, key string) (bool, error) {
	if p, ok := s.(Presence); ok {
		return p.IsPresent(ctx, key)
	}
	_, found, err := s.Get(ctx, key)
	return found, err
}

// AssertPresent returns errs.ErrNotFound, wrapped with key, if key is
// absent from s.
func AssertPresent(ctx context.Context, s Store, key string) error {
	found, err := IsPresent(ctx, s, key)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("blobstore: key %s: %w", key, errs.ErrNotFound)
	}
	return nil
}

// BlobKey returns the content-addressed key a raw blob with this sha1 is
// stored under.
func BlobKey(sha nodeid.ID) string { return "sha1-" + sha.String() }

// NodeKey returns the key a RawNodeRecord for this node id is stored
// under — shared by filenodes, manifests and changesets alike.
func NodeKey(id nodeid.ID) string { return "node:" + id.String() }
