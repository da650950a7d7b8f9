package manifest

import (
	"context"
	"errors"
	"testing"

	"github.com/rybkr/blobrepo/internal/blobstore"
	"github.com/rybkr/blobrepo/internal/errs"
	"github.com/rybkr/blobrepo/internal/nodeid"
	"github.com/rybkr/blobrepo/internal/rawnode"
)

// putTree stores a tree under a node id, going through the same
// node:/sha1- indirection the changeset builder uses when it uploads a
// tree entry.
func putTree(t *testing.T, bs blobstore.Store, nodeID nodeid.ID, tree Tree) {
	t.Helper()
	content := Encode(tree)
	blobSha := nodeid.Hash(content)
	if err := bs.Put(context.Background(), blobstore.BlobKey(blobSha), content); err != nil {
		t.Fatal(err)
	}
	record := rawnode.Encode(rawnode.Record{BlobSha: blobSha})
	if err := bs.Put(context.Background(), blobstore.NodeKey(nodeID), record); err != nil {
		t.Fatal(err)
	}
}

func idOf(b byte) nodeid.ID {
	var id nodeid.ID
	id[len(id)-1] = b
	return id
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tree := Tree{Entries: []Entry{
		{Path: "README", ID: idOf(1), Kind: KindFile},
		{Path: "bin/tool", ID: idOf(2), Kind: KindExecutable},
		{Path: "link", ID: idOf(3), Kind: KindSymlink},
		{Path: "src/", ID: idOf(4), Kind: KindTree},
	}}

	decoded, err := Decode(Encode(tree))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(decoded.Entries) != len(tree.Entries) {
		t.Fatalf("got %d entries, want %d", len(decoded.Entries), len(tree.Entries))
	}
	for i, e := range tree.Entries {
		if decoded.Entries[i] != e {
			t.Errorf("entry %d: got %+v, want %+v", i, decoded.Entries[i], e)
		}
	}
}

func TestDecodeRejectsTruncatedInput(t *testing.T) {
	tree := Tree{Entries: []Entry{{Path: "a", ID: idOf(1), Kind: KindFile}}}
	b := Encode(tree)

	_, err := Decode(b[:len(b)-3])
	if !errors.Is(err, errs.ErrSerializationFailed) {
		t.Fatalf("expected ErrSerializationFailed, got %v", err)
	}
}

func TestSortedOrdersByPath(t *testing.T) {
	entries := []Entry{
		{Path: "z", ID: idOf(1), Kind: KindFile},
		{Path: "a", ID: idOf(2), Kind: KindFile},
		{Path: "m", ID: idOf(3), Kind: KindFile},
	}
	sorted := Sorted(entries)
	if sorted[0].Path != "a" || sorted[1].Path != "m" || sorted[2].Path != "z" {
		t.Fatalf("unexpected order: %v", sorted)
	}
	if entries[0].Path != "z" {
		t.Fatal("Sorted must not mutate its input")
	}
}

func TestFlattenWalksNestedTrees(t *testing.T) {
	ctx := context.Background()
	bs := blobstore.NewMem()

	leafA := idOf(1)
	leafB := idOf(2)
	subtreeID := idOf(20)
	subtree := Tree{Entries: Sorted([]Entry{
		{Path: "src/b.go", ID: leafB, Kind: KindFile},
	})}
	putTree(t, bs, subtreeID, subtree)

	rootID := idOf(21)
	root := Tree{Entries: Sorted([]Entry{
		{Path: "a.go", ID: leafA, Kind: KindFile},
		{Path: "src/", ID: subtreeID, Kind: KindTree},
	})}
	putTree(t, bs, rootID, root)

	files, err := Flatten(ctx, bs, rootID)
	if err != nil {
		t.Fatalf("Flatten failed: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 files, got %d: %v", len(files), files)
	}
	if files["a.go"] != leafA {
		t.Errorf("a.go: got %s, want %s", files["a.go"], leafA)
	}
	if files["src/b.go"] != leafB {
		t.Errorf("src/b.go: got %s, want %s", files["src/b.go"], leafB)
	}
}

func TestFlattenMissingTreeFails(t *testing.T) {
	ctx := context.Background()
	bs := blobstore.NewMem()

	_, err := Flatten(ctx, bs, idOf(99))
	if !errors.Is(err, errs.ErrManifestMissing) {
		t.Fatalf("expected ErrManifestMissing, got %v", err)
	}
}
