package blobstore

import (
	"context"
	"path/filepath"
	"testing"
)

func TestBoltPutGet(t *testing.T) {
	ctx := context.Background()
	db, err := OpenBolt(filepath.Join(t.TempDir(), "blobs.db"))
	if err != nil {
		t.Fatalf("OpenBolt failed: %v", err)
	}
	defer db.Close()

	if err := db.Put(ctx, "sha1-abc", []byte("payload")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	got, found, err := db.Get(ctx, "sha1-abc")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !found || string(got) != "payload" {
		t.Errorf("got %q found=%v", got, found)
	}

	present, err := db.IsPresent(ctx, "sha1-abc")
	if err != nil || !present {
		t.Errorf("IsPresent: present=%v err=%v", present, err)
	}
	present, err = db.IsPresent(ctx, "sha1-missing")
	if err != nil || present {
		t.Errorf("IsPresent missing key: present=%v err=%v", present, err)
	}
}

func TestBoltPutIsIdempotentForSameKey(t *testing.T) {
	ctx := context.Background()
	db, err := OpenBolt(filepath.Join(t.TempDir(), "blobs.db"))
	if err != nil {
		t.Fatalf("OpenBolt failed: %v", err)
	}
	defer db.Close()

	if err := db.Put(ctx, "sha1-abc", []byte("first")); err != nil {
		t.Fatal(err)
	}
	if err := db.Put(ctx, "sha1-abc", []byte("first")); err != nil {
		t.Fatal(err)
	}
	got, _, err := db.Get(ctx, "sha1-abc")
	if err != nil || string(got) != "first" {
		t.Errorf("got %q err=%v", got, err)
	}
}
