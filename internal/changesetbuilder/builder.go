// Package changesetbuilder implements the concurrency-heavy heart of the
// engine: ingesting a commit's entries, resolving its parents, deriving
// changed files, and writing a new changeset without ever exposing a
// ChangesetRecord before every invariant it depends on holds.
package changesetbuilder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/rybkr/blobrepo/internal/blobstore"
	"github.com/rybkr/blobrepo/internal/changeset"
	"github.com/rybkr/blobrepo/internal/entryuploader"
	"github.com/rybkr/blobrepo/internal/errs"
	"github.com/rybkr/blobrepo/internal/handle"
	"github.com/rybkr/blobrepo/internal/indices"
	"github.com/rybkr/blobrepo/internal/manifest"
	"github.com/rybkr/blobrepo/internal/nodeid"
	"github.com/rybkr/blobrepo/internal/rawnode"
)

// RawEntry is one entry contributed to a commit by its caller: the
// caller supplies content and the entry's node id (as assigned by
// whatever revlog or import process produced it); the builder does not
// derive node ids itself.
type RawEntry struct {
	Path     string
	NodeID   nodeid.ID
	Content  []byte
	Kind     manifest.Kind
	Parents  nodeid.Parents
	CopyFrom *indices.CopyFrom
	Children []manifest.Entry // only meaningful when Kind == manifest.KindTree
}

// Input describes one commit to build.
type Input struct {
	P1, P2       *handle.ChangesetHandle
	RootManifest func(ctx context.Context) (RawEntry, error)
	Entries      <-chan RawEntry
	User         string
	Timestamp    time.Time
	Extras       []changeset.Extra
	Comments     string
}

// Config holds the shared indices and blobstore a Builder writes
// through, plus tuning knobs.
type Config struct {
	Blobstore  blobstore.Store
	Heads      *indices.Heads
	Filenodes  *indices.Filenodes
	Changesets *indices.Changesets
	FanOut     int
	Logger     *slog.Logger

	// IngestRetryBase and IngestRetryMax configure how entry ingestion
	// retries a transient errs.ErrBackendUnavailable from the blobstore.
	IngestRetryBase time.Duration
	IngestRetryMax  time.Duration
}

func (c *Config) defaults() {
	if c.FanOut <= 0 {
		c.FanOut = 100
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.IngestRetryBase <= 0 {
		c.IngestRetryBase = 10 * time.Millisecond
	}
	if c.IngestRetryMax <= 0 {
		c.IngestRetryMax = 2 * time.Second
	}
}

// Builder constructs changesets from streamed entries.
type Builder struct {
	cfg        Config
	ingestPuts blobstore.Store
}

// New returns a Builder over cfg.
func New(cfg Config) *Builder {
	cfg.defaults()
	return &Builder{
		cfg:        cfg,
		ingestPuts: blobstore.NewRetrying(cfg.Blobstore, cfg.IngestRetryBase, cfg.IngestRetryMax),
	}
}

// Build launches the commit pipeline in the background and returns its
// handle immediately, usable right away by a dependent builder as a
// parent.
func (b *Builder) Build(ctx context.Context, in Input) *handle.ChangesetHandle {
	h := handle.New()
	go b.run(ctx, in, h)
	return h
}

func (b *Builder) run(ctx context.Context, in Input, h *handle.ChangesetHandle) {
	log := b.cfg.Logger.With("component", "changesetbuilder")

	if sameHandle(in.P1, h) || sameHandle(in.P2, h) {
		b.fail(h, fmt.Errorf("changesetbuilder: parent handle is this build's own handle: %w", errs.ErrCycleDetected))
		return
	}

	uploader := entryuploader.New()
	sem := semaphore.NewWeighted(int64(b.cfg.FanOut))
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := sem.Acquire(gctx, 1); err != nil {
			return err
		}
		defer sem.Release(1)
		e, err := in.RootManifest(gctx)
		if err != nil {
			return fmt.Errorf("changesetbuilder: root manifest: %w", err)
		}
		if err := b.uploadEntry(gctx, e); err != nil {
			return err
		}
		return uploader.SetRootManifest(toUploaderEntry(e))
	})

	for re := range in.Entries {
		if err := sem.Acquire(gctx, 1); err != nil {
			break // gctx is already cancelled; g.Wait() below surfaces the real error
		}
		re := re
		g.Go(func() error {
			defer sem.Release(1)
			if err := b.uploadEntry(gctx, re); err != nil {
				return err
			}
			uploader.AddEntry(toUploaderEntry(re))
			return nil
		})
	}

	var p1Ref, p2Ref handle.ParentRef
	var p1Present, p2Present bool
	if in.P1 != nil {
		g.Go(func() error {
			ref, err := in.P1.CanBeParent.Wait(gctx)
			if err != nil {
				return fmt.Errorf("changesetbuilder: parent 1: %w: %w", errs.ErrParentsFailed, err)
			}
			p1Ref, p1Present = ref, true
			return nil
		})
	}
	if in.P2 != nil {
		g.Go(func() error {
			ref, err := in.P2.CanBeParent.Wait(gctx)
			if err != nil {
				return fmt.Errorf("changesetbuilder: parent 2: %w: %w", errs.ErrParentsFailed, err)
			}
			p2Ref, p2Present = ref, true
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		log.Error("ingestion or parent resolution failed", "error", err)
		b.fail(h, err)
		return
	}

	p1Ref, p2Ref, effectiveParents := collapseParents(p1Ref, p1Present, p2Ref, p2Present)

	childFiles, rootManifestID, err := b.flattenNewRoot(ctx, uploader)
	if err != nil {
		b.fail(h, err)
		return
	}
	p1Files, p2Files, err := b.flattenParentManifests(ctx, p1Ref, p2Ref, effectiveParents)
	if err != nil {
		b.fail(h, err)
		return
	}

	changedFiles := ComputeChangedFiles(childFiles, p1Files, p2Files, effectiveParents >= 1, effectiveParents >= 2)

	cs := changeset.Changeset{
		ManifestID:   rootManifestID,
		User:         in.User,
		Timestamp:    in.Timestamp,
		Extras:       in.Extras,
		ChangedFiles: changedFiles,
		Comments:     in.Comments,
	}
	if effectiveParents >= 1 {
		p := p1Ref.ChangesetID
		cs.P1 = &p
	}
	if effectiveParents >= 2 {
		p := p2Ref.ChangesetID
		cs.P2 = &p
	}

	blobBytes := changeset.Encode(cs)
	blobSha := nodeid.Hash(blobBytes)
	csID := nodeid.ChangesetID(blobSha)

	if (effectiveParents >= 1 && p1Ref.ChangesetID == csID) || (effectiveParents >= 2 && p2Ref.ChangesetID == csID) {
		b.fail(h, fmt.Errorf("changesetbuilder: resolved parent shares this build's id: %w", errs.ErrCycleDetected))
		return
	}

	if err := h.CanBeParent.Fire(handle.ParentRef{
		ChangesetID: csID,
		ManifestID:  rootManifestID,
	}, nil); err != nil {
		log.Warn("CanBeParent fire failed", "error", err)
	}

	// Content-addressed and unreferenced by anything until a head entry
	// names csID, so it's harmless to leave this orphaned if a later fence
	// fails.
	blobFence, blobFenceCtx := errgroup.WithContext(ctx)
	blobFence.Go(func() error {
		record := rawnode.Encode(rawnode.Record{BlobSha: blobSha})
		if err := b.cfg.Blobstore.Put(blobFenceCtx, blobstore.NodeKey(nodeid.ID(csID)), record); err != nil {
			return fmt.Errorf("changesetbuilder: put changeset node record: %w", err)
		}
		return b.cfg.Blobstore.Put(blobFenceCtx, blobstore.BlobKey(blobSha), blobBytes)
	})
	if err := blobFence.Wait(); err != nil {
		log.Error("blob fence failed", "changeset_id", csID, "error", err)
		b.fail(h, err)
		return
	}

	if err := b.awaitParentDurability(ctx, in.P1, in.P2); err != nil {
		log.Error("parent durability fence failed", "changeset_id", csID, "error", err)
		b.fail(h, err)
		return
	}

	// Only now that both parents are confirmed durable do we publish
	// anything a reader could reach this changeset through: a failed
	// commit must leave no head entry and no filenodes.
	visibility, visibilityCtx := errgroup.WithContext(ctx)
	visibility.Go(func() error {
		return b.cfg.Heads.Add(visibilityCtx, nodeid.ID(csID))
	})
	visibility.Go(func() error {
		_, err := uploader.Finalize(visibilityCtx, csID, b.cfg.Filenodes)
		return err
	})
	if err := visibility.Wait(); err != nil {
		log.Error("visibility fence failed", "changeset_id", csID, "error", err)
		b.fail(h, err)
		return
	}

	generation, err := b.computeGeneration(ctx, p1Ref, p2Ref, effectiveParents)
	if err != nil {
		b.fail(h, err)
		return
	}

	rec := indices.ChangesetRecord{ChangesetID: csID, Generation: generation}
	if effectiveParents >= 1 {
		p := p1Ref.ChangesetID
		rec.P1 = &p
	}
	if effectiveParents >= 2 {
		p := p2Ref.ChangesetID
		rec.P2 = &p
	}
	if err := b.cfg.Changesets.Add(ctx, rec); err != nil {
		b.fail(h, fmt.Errorf("changesetbuilder: insert changeset record: %w", err))
		return
	}

	log.Info("changeset durable", "changeset_id", csID, "generation", generation)
	if err := h.Completion.Fire(handle.CompletedChangeset{ChangesetID: csID, Generation: generation}, nil); err != nil {
		log.Warn("Completion fire failed", "error", err)
	}
}

func (b *Builder) fail(h *handle.ChangesetHandle, err error) {
	if !h.CanBeParent.Fired() {
		_ = h.CanBeParent.Fire(handle.ParentRef{}, err)
	}
	if !h.Completion.Fired() {
		_ = h.Completion.Fire(handle.CompletedChangeset{}, err)
	}
}

func (b *Builder) uploadEntry(ctx context.Context, e RawEntry) error {
	blobSha := nodeid.Hash(e.Content)
	record := rawnode.Encode(rawnode.Record{Parents: e.Parents, BlobSha: blobSha})

	// The blob and its node record live under unrelated keys, so unlike
	// the rest of the pipeline's fences this isn't worth cancelling one
	// write because the other failed; report both errors if both fail.
	// ingestPuts retries a transient backend-unavailable error on either
	// write before giving up.
	blobErr := b.ingestPuts.Put(ctx, blobstore.BlobKey(blobSha), e.Content)
	nodeErr := b.ingestPuts.Put(ctx, blobstore.NodeKey(e.NodeID), record)
	if err := multierr.Combine(blobErr, nodeErr); err != nil {
		return fmt.Errorf("changesetbuilder: upload entry %s: %w", e.Path, err)
	}
	return nil
}

func toUploaderEntry(e RawEntry) entryuploader.Entry {
	return entryuploader.Entry{
		Path:     e.Path,
		ID:       e.NodeID,
		Kind:     e.Kind,
		Parents:  e.Parents,
		CopyFrom: e.CopyFrom,
		Children: e.Children,
	}
}

// sameHandle reports whether p points at h, the pointer-identity check
// that catches a build being handed its own in-flight handle as a
// parent before either of them has an id to compare.
func sameHandle(p *handle.ChangesetHandle, h *handle.ChangesetHandle) bool {
	return p != nil && p == h
}

// collapseParents treats p1 == p2 as a single effective parent, per the
// spec's "identical parents" edge case, and returns how many distinct
// parents are in play (0, 1, or 2).
func collapseParents(p1 handle.ParentRef, p1Present bool, p2 handle.ParentRef, p2Present bool) (handle.ParentRef, handle.ParentRef, int) {
	switch {
	case !p1Present && !p2Present:
		return handle.ParentRef{}, handle.ParentRef{}, 0
	case p1Present && !p2Present:
		return p1, handle.ParentRef{}, 1
	case !p1Present && p2Present:
		return p2, handle.ParentRef{}, 1
	case p1.ChangesetID == p2.ChangesetID:
		return p1, handle.ParentRef{}, 1
	default:
		return p1, p2, 2
	}
}

func (b *Builder) flattenNewRoot(ctx context.Context, uploader *entryuploader.Uploader) (map[string]nodeid.ID, nodeid.ManifestID, error) {
	// The root manifest and every entry it required have already been
	// uploaded to the blobstore by the ingestion fan-out above; flatten
	// reads them back the same way a parent's manifest would be read.
	rootID, err := uploader.RootManifestID()
	if err != nil {
		return nil, nodeid.ManifestID{}, err
	}
	files, err := manifest.Flatten(ctx, b.cfg.Blobstore, nodeid.ID(rootID))
	if err != nil {
		return nil, nodeid.ManifestID{}, fmt.Errorf("changesetbuilder: flatten new root manifest: %w", err)
	}
	return files, rootID, nil
}

func (b *Builder) flattenParentManifests(ctx context.Context, p1Ref, p2Ref handle.ParentRef, effectiveParents int) (map[string]nodeid.ID, map[string]nodeid.ID, error) {
	var p1Files, p2Files map[string]nodeid.ID
	var err error
	if effectiveParents >= 1 {
		p1Files, err = manifest.Flatten(ctx, b.cfg.Blobstore, nodeid.ID(p1Ref.ManifestID))
		if err != nil {
			return nil, nil, fmt.Errorf("changesetbuilder: flatten parent 1 manifest: %w", err)
		}
	}
	if effectiveParents >= 2 {
		p2Files, err = manifest.Flatten(ctx, b.cfg.Blobstore, nodeid.ID(p2Ref.ManifestID))
		if err != nil {
			return nil, nil, fmt.Errorf("changesetbuilder: flatten parent 2 manifest: %w", err)
		}
	}
	return p1Files, p2Files, nil
}

func (b *Builder) awaitParentDurability(ctx context.Context, p1, p2 *handle.ChangesetHandle) error {
	g, gctx := errgroup.WithContext(ctx)
	if p1 != nil {
		g.Go(func() error {
			_, err := p1.Completion.Wait(gctx)
			if err != nil {
				return fmt.Errorf("changesetbuilder: parent 1 completion: %w: %w", errs.ErrParentsFailed, err)
			}
			return nil
		})
	}
	if p2 != nil {
		g.Go(func() error {
			_, err := p2.Completion.Wait(gctx)
			if err != nil {
				return fmt.Errorf("changesetbuilder: parent 2 completion: %w: %w", errs.ErrParentsFailed, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (b *Builder) computeGeneration(ctx context.Context, p1Ref, p2Ref handle.ParentRef, effectiveParents int) (uint64, error) {
	if effectiveParents == 0 {
		return 1, nil
	}
	maxGen, err := b.recordedGeneration(ctx, p1Ref.ChangesetID)
	if err != nil {
		return 0, err
	}
	if effectiveParents == 2 {
		g2, err := b.recordedGeneration(ctx, p2Ref.ChangesetID)
		if err != nil {
			return 0, err
		}
		if g2 > maxGen {
			maxGen = g2
		}
	}
	return maxGen + 1, nil
}

func (b *Builder) recordedGeneration(ctx context.Context, id nodeid.ChangesetID) (uint64, error) {
	rec, found, err := b.cfg.Changesets.Get(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("changesetbuilder: read parent generation %s: %w", id, err)
	}
	if !found {
		return 0, fmt.Errorf("changesetbuilder: parent %s: %w", id, errs.ErrChangesetMissing)
	}
	return rec.Generation, nil
}
