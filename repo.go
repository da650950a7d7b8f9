// Package blobrepo layers four typed indices — heads, bookmarks,
// filenodes and changesets — over a content-addressed blobstore, and
// exposes the changeset construction pipeline that writes new commits
// while preserving the invariants those indices depend on.
//
// The caller supplies an already-opened blobstore and indices (real or
// in-memory); wiring a *sql.DB, running migrations and choosing a
// blobstore backend are all external concerns handled by sqlstore and
// the blobstore variants.
package blobrepo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rybkr/blobrepo/internal/blobstore"
	"github.com/rybkr/blobrepo/internal/changeset"
	"github.com/rybkr/blobrepo/internal/changesetbuilder"
	"github.com/rybkr/blobrepo/internal/commitgraph"
	"github.com/rybkr/blobrepo/internal/errs"
	"github.com/rybkr/blobrepo/internal/handle"
	"github.com/rybkr/blobrepo/internal/indices"
	"github.com/rybkr/blobrepo/internal/nodeid"
	"github.com/rybkr/blobrepo/internal/rawnode"
)

// Config assembles the backend a Repo is opened over. Every field is
// required except FanOut and Logger.
type Config struct {
	Blobstore  blobstore.Store
	Heads      *indices.Heads
	Bookmarks  *indices.Bookmarks
	Filenodes  *indices.Filenodes
	Changesets *indices.Changesets
	FanOut     int
	Logger     *slog.Logger
}

func (c *Config) defaults() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

func (c Config) validate() error {
	switch {
	case c.Blobstore == nil:
		return errors.New("blobrepo: Config.Blobstore is required")
	case c.Heads == nil:
		return errors.New("blobrepo: Config.Heads is required")
	case c.Bookmarks == nil:
		return errors.New("blobrepo: Config.Bookmarks is required")
	case c.Filenodes == nil:
		return errors.New("blobrepo: Config.Filenodes is required")
	case c.Changesets == nil:
		return errors.New("blobrepo: Config.Changesets is required")
	default:
		return nil
	}
}

// Repo is the opened engine: a blobstore plus its four indices, and the
// builder that writes new changesets over them.
type Repo struct {
	cfg     Config
	builder *changesetbuilder.Builder
}

// Open validates cfg and returns a Repo ready to serve reads and accept
// new changesets.
func Open(cfg Config) (*Repo, error) {
	cfg.defaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	builder := changesetbuilder.New(changesetbuilder.Config{
		Blobstore:  cfg.Blobstore,
		Heads:      cfg.Heads,
		Filenodes:  cfg.Filenodes,
		Changesets: cfg.Changesets,
		FanOut:     cfg.FanOut,
		Logger:     cfg.Logger,
	})
	return &Repo{cfg: cfg, builder: builder}, nil
}

// NewChangeset builds a commit from in and returns a handle usable
// immediately by a dependent build, even though this commit is not yet
// durable. See changesetbuilder.Input for the shape of a commit request.
func (r *Repo) NewChangeset(ctx context.Context, in changesetbuilder.Input) *handle.ChangesetHandle {
	return r.builder.Build(ctx, in)
}

// GetChangesetByID returns the full commit object for id. Absence
// surfaces as errs.ErrChangesetMissing, not a bare not-found.
func (r *Repo) GetChangesetByID(ctx context.Context, id nodeid.ChangesetID) (changeset.Changeset, error) {
	recordBytes, found, err := r.cfg.Blobstore.Get(ctx, blobstore.NodeKey(nodeid.ID(id)))
	if err != nil {
		return changeset.Changeset{}, fmt.Errorf("blobrepo: get changeset %s: %w", id, err)
	}
	if !found {
		return changeset.Changeset{}, fmt.Errorf("blobrepo: changeset %s: %w", id, errs.ErrChangesetMissing)
	}
	record, err := rawnode.Decode(recordBytes)
	if err != nil {
		return changeset.Changeset{}, fmt.Errorf("blobrepo: decode changeset record %s: %w", id, err)
	}
	blobBytes, found, err := r.cfg.Blobstore.Get(ctx, blobstore.BlobKey(record.BlobSha))
	if err != nil {
		return changeset.Changeset{}, fmt.Errorf("blobrepo: get changeset blob %s: %w", id, err)
	}
	if !found {
		return changeset.Changeset{}, fmt.Errorf("blobrepo: changeset %s: %w", id, errs.ErrChangesetMissing)
	}
	cs, err := changeset.Decode(blobBytes)
	if err != nil {
		return changeset.Changeset{}, fmt.Errorf("blobrepo: decode changeset blob %s: %w", id, err)
	}
	return cs, nil
}

// ChangesetExists is a pure lookup: absence surfaces as false, never as
// an error.
func (r *Repo) ChangesetExists(ctx context.Context, id nodeid.ChangesetID) (bool, error) {
	return r.cfg.Changesets.Exists(ctx, id)
}

// Heads returns the repo's current head set.
func (r *Repo) Heads(ctx context.Context) ([]nodeid.ID, error) {
	return r.cfg.Heads.List(ctx)
}

// GetBookmark returns the changeset id a bookmark currently points at.
func (r *Repo) GetBookmark(ctx context.Context, name string) (nodeid.ID, bool, error) {
	return r.cfg.Bookmarks.Get(ctx, name)
}

// ListBookmarksByPrefix returns every bookmark whose name has the given
// prefix, snapshot-consistent with the latest committed transaction.
func (r *Repo) ListBookmarksByPrefix(ctx context.Context, prefix string) (map[string]nodeid.ID, error) {
	return r.cfg.Bookmarks.ListByPrefix(ctx, prefix)
}

// CreateBookmarkTransaction starts a new bookmark transaction against
// this repo's bookmarks.
func (r *Repo) CreateBookmarkTransaction() *indices.BookmarkTxn {
	return r.cfg.Bookmarks.CreateTransaction()
}

// GetFilenode returns the filenode metadata for one historical version
// of one path.
func (r *Repo) GetFilenode(ctx context.Context, path string, id nodeid.FilenodeID) (indices.FileNode, bool, error) {
	return r.cfg.Filenodes.Get(ctx, path, id)
}

// GetFileCopy returns the (path, node_id) a filenode was copied or
// renamed from, if it carries copy-from metadata.
func (r *Repo) GetFileCopy(ctx context.Context, path string, id nodeid.FilenodeID) (*indices.CopyFrom, bool, error) {
	return r.cfg.Filenodes.GetFileCopy(ctx, path, id)
}

// CommitGraph returns a resumable, deduplicated BFS traversal of the
// commit DAG, seeded from the repo's current heads.
func (r *Repo) CommitGraph(ctx context.Context) (*commitgraph.Stream, error) {
	return commitgraph.New(ctx, r.cfg.Heads, r.cfg.Changesets)
}
