package blobstore

import (
	"context"
	"fmt"

	"go.etcd.io/bbolt"
)

var blobBucket = []byte("blobs")

// Bolt is an on-disk KV Store backed by a single bbolt file — the
// "on-disk KV" variant named alongside the in-memory and delay-injecting
// ones. Each Bolt opens and owns its own bbolt file and keeps every key
// in one fixed bucket.
type Bolt struct {
	db *bbolt.DB
}

// OpenBolt opens (creating if necessary) a bbolt database at path and
// ensures the blob bucket exists.
func OpenBolt(path string) (*Bolt, error) {
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("blobstore: open bolt db: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(blobBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("blobstore: create bucket: %w", err)
	}
	return &Bolt{db: db}, nil
}

// Close closes the underlying bbolt database.
func (b *Bolt) Close() error { return b.db.Close() }

// Get returns the bytes stored under key, or found=false if absent.
func (b *Bolt) Get(_ context.Context, key string) ([]byte, bool, error) {
	var out []byte
	err := b.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(blobBucket).Get([]byte(key))
		if v == nil {
			return nil
		}
		out = make([]byte, len(v))
		copy(out, v)
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("blobstore: bolt get %s: %w", key, err)
	}
	return out, out != nil, nil
}

// Put stores value under key. bbolt's single-writer transaction makes
// this atomic and durable once Update returns.
func (b *Bolt) Put(_ context.Context, key string, value []byte) error {
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(blobBucket)
		if existing := bucket.Get([]byte(key)); existing != nil {
			return nil
		}
		return bucket.Put([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("blobstore: bolt put %s: %w", key, err)
	}
	return nil
}

// IsPresent reports whether key exists without copying its value.
func (b *Bolt) IsPresent(_ context.Context, key string) (bool, error) {
	var found bool
	err := b.db.View(func(tx *bbolt.Tx) error {
		found = tx.Bucket(blobBucket).Get([]byte(key)) != nil
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("blobstore: bolt is_present %s: %w", key, err)
	}
	return found, nil
}
