// Package manifest defines the wire format of a tree (manifest) blob: a
// sorted list of immediate-child bindings, each either a file-like leaf
// or a reference to a nested subtree blob. Paths are stored in full
// (e.g. "src/main.go", "src/"), matching Mercurial's own treemanifest
// layout rather than git's locally-named tree entries — it lets
// EntryUploader key everything by (path, node_id) without reassembling
// paths during traversal.
package manifest

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	"github.com/rybkr/blobrepo/internal/blobstore"
	"github.com/rybkr/blobrepo/internal/errs"
	"github.com/rybkr/blobrepo/internal/nodeid"
	"github.com/rybkr/blobrepo/internal/rawnode"
)

// Kind distinguishes the four entry shapes a manifest can reference.
type Kind int

const (
	KindFile Kind = iota
	KindExecutable
	KindSymlink
	KindTree
)

// Entry is one immediate child binding in a tree blob.
type Entry struct {
	Path string
	ID   nodeid.ID
	Kind Kind
}

// Tree is the decoded form of a manifest (tree) blob.
type Tree struct {
	Entries []Entry
}

// Encode serializes t. Entries are written in the order given; callers
// that want deterministic blobs should sort by Path first (Sorted does
// this).
func Encode(t Tree) []byte {
	var buf bytes.Buffer
	writeUvarint(&buf, uint64(len(t.Entries)))
	for _, e := range t.Entries {
		writeUvarint(&buf, uint64(len(e.Path)))
		buf.WriteString(e.Path)
		buf.WriteByte(byte(e.Kind))
		buf.Write(e.ID[:])
	}
	return buf.Bytes()
}

// Decode parses the layout Encode produces.
func Decode(b []byte) (Tree, error) {
	r := bytes.NewReader(b)
	count, err := binary.ReadUvarint(r)
	if err != nil {
		return Tree{}, fmt.Errorf("manifest: read entry count: %w", errs.ErrSerializationFailed)
	}

	entries := make([]Entry, 0, count)
	for range count {
		pathLen, err := binary.ReadUvarint(r)
		if err != nil {
			return Tree{}, fmt.Errorf("manifest: read path length: %w", errs.ErrSerializationFailed)
		}
		pathBuf := make([]byte, pathLen)
		if _, err := io.ReadFull(r, pathBuf); err != nil {
			return Tree{}, fmt.Errorf("manifest: read path: %w", errs.ErrSerializationFailed)
		}
		kindByte, err := r.ReadByte()
		if err != nil {
			return Tree{}, fmt.Errorf("manifest: read kind: %w", errs.ErrSerializationFailed)
		}
		var idBuf [nodeid.Size]byte
		if _, err := io.ReadFull(r, idBuf[:]); err != nil {
			return Tree{}, fmt.Errorf("manifest: read id: %w", errs.ErrSerializationFailed)
		}
		entries = append(entries, Entry{
			Path: string(pathBuf),
			Kind: Kind(kindByte),
			ID:   nodeid.ID(idBuf),
		})
	}
	return Tree{Entries: entries}, nil
}

// Sorted returns entries ordered by path, the order Encode should be
// called with for a canonical, content-addressed blob.
func Sorted(entries []Entry) []Entry {
	out := make([]Entry, len(entries))
	copy(out, entries)
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

func writeUvarint(buf *bytes.Buffer, v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	buf.Write(tmp[:n])
}

// Flatten recursively walks the tree rooted at rootID (a node id, not a
// blob sha — resolved via the node:/sha1- indirection like every other
// addressable object), fetching nested subtree blobs from bs as needed,
// and returns the full set of file-like leaf bindings (path -> filenode
// id). Directory (KindTree) entries are descended into, not returned
// themselves.
func Flatten(ctx context.Context, bs blobstore.Store, rootID nodeid.ID) (map[string]nodeid.ID, error) {
	out := make(map[string]nodeid.ID)
	if err := flattenInto(ctx, bs, rootID, out); err != nil {
		return nil, err
	}
	return out, nil
}

func fetchTree(ctx context.Context, bs blobstore.Store, treeNodeID nodeid.ID) (Tree, error) {
	recordBytes, found, err := bs.Get(ctx, blobstore.NodeKey(treeNodeID))
	if err != nil {
		return Tree{}, fmt.Errorf("manifest: fetch tree record %s: %w", treeNodeID, err)
	}
	if !found {
		return Tree{}, fmt.Errorf("manifest: tree %s: %w", treeNodeID, errs.ErrManifestMissing)
	}
	record, err := rawnode.Decode(recordBytes)
	if err != nil {
		return Tree{}, fmt.Errorf("manifest: decode tree record %s: %w", treeNodeID, err)
	}
	content, found, err := bs.Get(ctx, blobstore.BlobKey(record.BlobSha))
	if err != nil {
		return Tree{}, fmt.Errorf("manifest: fetch tree blob %s: %w", treeNodeID, err)
	}
	if !found {
		return Tree{}, fmt.Errorf("manifest: tree %s: %w", treeNodeID, errs.ErrManifestMissing)
	}
	tree, err := Decode(content)
	if err != nil {
		return Tree{}, fmt.Errorf("manifest: decode tree blob %s: %w", treeNodeID, err)
	}
	return tree, nil
}

func flattenInto(ctx context.Context, bs blobstore.Store, treeNodeID nodeid.ID, out map[string]nodeid.ID) error {
	tree, err := fetchTree(ctx, bs, treeNodeID)
	if err != nil {
		return err
	}
	for _, e := range tree.Entries {
		if e.Kind == KindTree {
			if err := flattenInto(ctx, bs, e.ID, out); err != nil {
				return err
			}
			continue
		}
		out[e.Path] = e.ID
	}
	return nil
}
