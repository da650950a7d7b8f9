package blobstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rybkr/blobrepo/internal/errs"
	"github.com/rybkr/blobrepo/internal/nodeid"
)

func TestMemPutGet(t *testing.T) {
	ctx := context.Background()
	m := NewMem()

	key := BlobKey(nodeid.Hash([]byte("hello\n")))
	if err := m.Put(ctx, key, []byte("hello\n")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	got, found, err := m.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !found {
		t.Fatal("expected found=true")
	}
	if string(got) != "hello\n" {
		t.Errorf("got %q", got)
	}
}

func TestMemGetAbsentIsNotError(t *testing.T) {
	ctx := context.Background()
	m := NewMem()
	_, found, err := m.Get(ctx, "sha1-nonexistent")
	if err != nil {
		t.Fatalf("Get on absent key should not error: %v", err)
	}
	if found {
		t.Error("expected found=false")
	}
}

func TestAssertPresent(t *testing.T) {
	ctx := context.Background()
	m := NewMem()

	if err := AssertPresent(ctx, m, "sha1-missing"); err == nil {
		t.Error("expected ErrNotFound")
	} else if !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if err := m.Put(ctx, "sha1-present", []byte("x")); err != nil {
		t.Fatal(err)
	}
	if err := AssertPresent(ctx, m, "sha1-present"); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestMemConcurrentPutSameKeyDeduplicated(t *testing.T) {
	ctx := context.Background()
	m := NewMem()
	key := "sha1-shared"

	done := make(chan error, 8)
	for range 8 {
		go func() {
			done <- m.Put(ctx, key, []byte("same content"))
		}()
	}
	for range 8 {
		if err := <-done; err != nil {
			t.Errorf("concurrent Put failed: %v", err)
		}
	}
	if m.Len() != 1 {
		t.Errorf("expected exactly one stored key, got %d entries", m.Len())
	}
}

func TestDelayOrdersAfterBase(t *testing.T) {
	ctx := context.Background()
	d := NewDelay(NewMem(), 20*time.Millisecond, 0)

	start := time.Now()
	if err := d.Put(ctx, "sha1-x", []byte("x")); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("expected Put to take at least 20ms, took %s", elapsed)
	}

	_, found, err := d.Get(ctx, "sha1-x")
	if err != nil || !found {
		t.Fatalf("Get failed: found=%v err=%v", found, err)
	}
}

func TestDelayRespectsCancellation(t *testing.T) {
	d := NewDelay(NewMem(), time.Hour, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if err := d.Put(ctx, "sha1-x", []byte("x")); err == nil {
		t.Error("expected context deadline error")
	}
}
