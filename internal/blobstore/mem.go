package blobstore

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Mem is an in-memory Store, used by tests and as the default local
// backend. Keys are globally unique by construction (content-addressed);
// concurrent Put calls for the same key are coalesced through a
// singleflight.Group so only one write actually happens, matching the
// "callers must not rely on which wins" contract without doing redundant
// work.
type Mem struct {
	mu    sync.RWMutex
	data  map[string][]byte
	group singleflight.Group
}

// NewMem returns an empty in-memory Store.
func NewMem() *Mem {
	return &Mem{data: make(map[string][]byte)}
}

// Get returns the bytes stored under key, or found=false if absent.
func (m *Mem) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

// Put stores value under key. Concurrent puts of the same key are
// deduplicated; only the first writer actually copies bytes into the
// map.
func (m *Mem) Put(_ context.Context, key string, value []byte) error {
	_, err, _ := m.group.Do(key, func() (any, error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		if _, exists := m.data[key]; exists {
			return nil, nil
		}
		cp := make([]byte, len(value))
		copy(cp, value)
		m.data[key] = cp
		return nil, nil
	})
	return err
}

// IsPresent reports whether key exists, without copying the value.
func (m *Mem) IsPresent(_ context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.data[key]
	return ok, nil
}

// Len returns the number of keys currently stored, for tests.
func (m *Mem) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
