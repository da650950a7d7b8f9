// Package entryuploader accumulates the entries contributed to a single
// in-flight changeset and checks, at finalize time, that every entry a
// tree referenced as a child was actually uploaded, and that a root
// manifest arrived at all. It is pure bookkeeping: callers are
// responsible for writing blob content to the store before handing the
// resulting entry here.
package entryuploader

import (
	"context"
	"fmt"
	"sync"

	"github.com/rybkr/blobrepo/internal/errs"
	"github.com/rybkr/blobrepo/internal/indices"
	"github.com/rybkr/blobrepo/internal/manifest"
	"github.com/rybkr/blobrepo/internal/nodeid"
)

// Entry is one upload contributed to an in-flight changeset.
type Entry struct {
	Path     string
	ID       nodeid.ID
	Kind     manifest.Kind
	Parents  nodeid.Parents
	CopyFrom *indices.CopyFrom // meaningful only for file-like kinds
	Children []manifest.Entry  // meaningful only when Kind == manifest.KindTree
}

type key struct {
	path string
	id   nodeid.ID
}

// Uploader tracks every entry contributed so far, plus the set of
// (path, id) pairs a tree entry has referenced as a child, so Finalize
// can reject a commit that references content nobody ever uploaded.
type Uploader struct {
	mu       sync.Mutex
	seen     map[key]Entry
	required map[key]struct{}
	rootSet  bool
	root     Entry
}

// New returns an empty Uploader for one in-flight changeset.
func New() *Uploader {
	return &Uploader{
		seen:     make(map[key]Entry),
		required: make(map[key]struct{}),
	}
}

// AddEntry records e. If e is a tree, its children are added to the
// required set; a later Finalize call fails unless every required
// child has itself been added via AddEntry or SetRootManifest.
func (u *Uploader) AddEntry(e Entry) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.record(e)
}

// SetRootManifest records e as the commit's root manifest. e must be a
// tree entry; Finalize fails with errs.ErrMissingRootManifest if this
// is never called.
func (u *Uploader) SetRootManifest(e Entry) error {
	if e.Kind != manifest.KindTree {
		return fmt.Errorf("entryuploader: root manifest entry must be a tree: %w", errs.ErrBadUploadBlob)
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.record(e)
	u.root = e
	u.rootSet = true
	return nil
}

func (u *Uploader) record(e Entry) {
	k := key{e.Path, e.ID}
	u.seen[k] = e
	if e.Kind == manifest.KindTree {
		for _, c := range e.Children {
			u.required[key{c.Path, c.ID}] = struct{}{}
		}
	}
}

// RootManifestID returns the root manifest id set via SetRootManifest.
// It returns errs.ErrMissingRootManifest if that has not happened yet.
func (u *Uploader) RootManifestID() (nodeid.ManifestID, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if !u.rootSet {
		return nodeid.ManifestID{}, errs.ErrMissingRootManifest
	}
	return nodeid.ManifestID(u.root.ID), nil
}

// Finalize checks that the root manifest arrived and that every
// required child was uploaded, stamps linknode on every file-like entry
// seen, and inserts them into filenodesIdx in one batch. An entry whose
// (path, id) filenodesIdx already holds keeps the linknode stored there,
// the changeset that first introduced it. It returns the root manifest
// id on success.
func (u *Uploader) Finalize(ctx context.Context, csID nodeid.ChangesetID, filenodesIdx *indices.Filenodes) (nodeid.ManifestID, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if !u.rootSet {
		return nodeid.ManifestID{}, errs.ErrMissingRootManifest
	}
	for k := range u.required {
		if _, ok := u.seen[k]; !ok {
			return nodeid.ManifestID{}, fmt.Errorf("entryuploader: %s@%s: %w", k.path, nodeid.ID(k.id), errs.ErrInconsistentEntries)
		}
	}

	var batch []indices.FileNode
	for _, e := range u.seen {
		if e.Kind == manifest.KindTree {
			continue
		}
		fn := indices.FileNode{
			Path:     e.Path,
			NodeID:   nodeid.FilenodeID(e.ID),
			Linknode: csID,
			CopyFrom: e.CopyFrom,
		}
		if e.Parents.P1 != nil {
			p := nodeid.FilenodeID(*e.Parents.P1)
			fn.P1 = &p
		}
		if e.Parents.P2 != nil {
			p := nodeid.FilenodeID(*e.Parents.P2)
			fn.P2 = &p
		}
		existing, found, err := filenodesIdx.Get(ctx, fn.Path, fn.NodeID)
		if err != nil {
			return nodeid.ManifestID{}, fmt.Errorf("entryuploader: finalize %s: %w", csID, err)
		}
		if found {
			fn.Linknode = existing.Linknode
		}
		batch = append(batch, fn)
	}

	if err := filenodesIdx.Add(ctx, batch); err != nil {
		return nodeid.ManifestID{}, fmt.Errorf("entryuploader: finalize %s: %w", csID, err)
	}
	return nodeid.ManifestID(u.root.ID), nil
}
