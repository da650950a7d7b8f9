package indices

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rybkr/blobrepo/internal/errs"
	"github.com/rybkr/blobrepo/internal/nodeid"
)

// ChangesetRecord is the persisted metadata for one changeset: its
// parents and its generation number.
type ChangesetRecord struct {
	ChangesetID nodeid.ChangesetID
	P1, P2      *nodeid.ChangesetID
	Generation  uint64
}

func (a ChangesetRecord) sameContentAs(b ChangesetRecord) bool {
	return idPtrEqualChangeset(a.P1, b.P1) &&
		idPtrEqualChangeset(a.P2, b.P2) &&
		a.Generation == b.Generation
}

func idPtrEqualChangeset(a, b *nodeid.ChangesetID) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return a == nil || *a == *b
}

// Changesets maps (repo_id, changeset_id) to a ChangesetRecord.
type Changesets struct {
	db     *sql.DB
	repoID string
}

// NewChangesets returns a Changesets index scoped to repoID.
func NewChangesets(db *sql.DB, repoID string) *Changesets {
	return &Changesets{db: db, repoID: repoID}
}

// queryRower is satisfied by both *sql.DB and *sql.Tx.
type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Get returns the record for a changeset id, if one has been inserted.
func (c *Changesets) Get(ctx context.Context, id nodeid.ChangesetID) (ChangesetRecord, bool, error) {
	return c.getTx(ctx, c.db, id)
}

func (c *Changesets) getTx(ctx context.Context, q queryRower, id nodeid.ChangesetID) (ChangesetRecord, bool, error) {
	var p1, p2 []byte
	var gen int64
	err := q.QueryRowContext(ctx,
		`SELECT generation, p1, p2 FROM changesets WHERE repo_id = ? AND changeset_id = ?`,
		c.repoID, id[:]).Scan(&gen, &p1, &p2)
	if errors.Is(err, sql.ErrNoRows) {
		return ChangesetRecord{}, false, nil
	}
	if err != nil {
		return ChangesetRecord{}, false, fmt.Errorf("indices: get changeset %s: %w", id, err)
	}

	rec := ChangesetRecord{ChangesetID: id, Generation: uint64(gen)}
	if p1 != nil {
		v, err := nodeid.FromBytes(p1)
		if err != nil {
			return ChangesetRecord{}, false, fmt.Errorf("indices: decode p1 of %s: %w", id, err)
		}
		cv := nodeid.ChangesetID(v)
		rec.P1 = &cv
	}
	if p2 != nil {
		v, err := nodeid.FromBytes(p2)
		if err != nil {
			return ChangesetRecord{}, false, fmt.Errorf("indices: decode p2 of %s: %w", id, err)
		}
		cv := nodeid.ChangesetID(v)
		rec.P2 = &cv
	}
	return rec, true, nil
}

// Exists is a pure lookup: absence surfaces as false, never as an error.
func (c *Changesets) Exists(ctx context.Context, id nodeid.ChangesetID) (bool, error) {
	var one int
	err := c.db.QueryRowContext(ctx,
		`SELECT 1 FROM changesets WHERE repo_id = ? AND changeset_id = ?`,
		c.repoID, id[:]).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("indices: changeset exists %s: %w", id, err)
	}
	return true, nil
}

// Add inserts rec. Only after this succeeds is the changeset globally
// visible to readers (invariant 4 of the spec's data model).
//
// Re-inserting a record identical to the one already stored under the
// same id is a no-op, the same idempotent-reimport contract
// Filenodes.Add gives callers; inserting a differing record for an
// existing id fails with errs.ErrConflictingChangeset and leaves the
// stored record untouched.
func (c *Changesets) Add(ctx context.Context, rec ChangesetRecord) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("indices: begin changesets txn: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op once committed

	existing, found, err := c.getTx(ctx, tx, rec.ChangesetID)
	if err != nil {
		return fmt.Errorf("indices: check existing changeset %s: %w", rec.ChangesetID, err)
	}
	if found {
		if existing.sameContentAs(rec) {
			return nil // idempotent re-insert, no-op
		}
		return fmt.Errorf("indices: changeset %s: %w", rec.ChangesetID, errs.ErrConflictingChangeset)
	}

	var p1, p2 []byte
	if rec.P1 != nil {
		p1 = rec.P1[:]
	}
	if rec.P2 != nil {
		p2 = rec.P2[:]
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO changesets (repo_id, changeset_id, generation, p1, p2) VALUES (?, ?, ?, ?, ?)`,
		c.repoID, rec.ChangesetID[:], rec.Generation, p1, p2)
	if err != nil {
		return fmt.Errorf("indices: add changeset %s: %w", rec.ChangesetID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("indices: commit changesets txn: %w", err)
	}
	return nil
}
