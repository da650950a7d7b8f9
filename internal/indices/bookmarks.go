package indices

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rybkr/blobrepo/internal/errs"
	"github.com/rybkr/blobrepo/internal/nodeid"
)

// Bookmarks maps ASCII names to a changeset id within one repo.
type Bookmarks struct {
	db     *sql.DB
	repoID string
}

// NewBookmarks returns a Bookmarks index scoped to repoID.
func NewBookmarks(db *sql.DB, repoID string) *Bookmarks {
	return &Bookmarks{db: db, repoID: repoID}
}

// Get returns the changeset id a bookmark currently points at.
func (b *Bookmarks) Get(ctx context.Context, name string) (nodeid.ID, bool, error) {
	var raw []byte
	err := b.db.QueryRowContext(ctx,
		`SELECT changeset_id FROM bookmarks WHERE repo_id = ? AND name = ?`,
		b.repoID, name).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nodeid.ID{}, false, nil
	}
	if err != nil {
		return nodeid.ID{}, false, fmt.Errorf("indices: get bookmark %s: %w", name, err)
	}
	id, err := nodeid.FromBytes(raw)
	if err != nil {
		return nodeid.ID{}, false, fmt.Errorf("indices: decode bookmark %s: %w", name, err)
	}
	return id, true, nil
}

// ListByPrefix returns every bookmark whose name has the given prefix.
// Snapshot-consistent with the latest committed transaction, since the
// database pool is pinned to a single connection (see sqlstore.Open).
func (b *Bookmarks) ListByPrefix(ctx context.Context, prefix string) (map[string]nodeid.ID, error) {
	rows, err := b.db.QueryContext(ctx,
		`SELECT name, changeset_id FROM bookmarks WHERE repo_id = ? AND name LIKE ? ESCAPE '\'`,
		b.repoID, likeEscape(prefix)+"%")
	if err != nil {
		return nil, fmt.Errorf("indices: list bookmarks by prefix %s: %w", prefix, err)
	}
	defer rows.Close()

	out := make(map[string]nodeid.ID)
	for rows.Next() {
		var name string
		var raw []byte
		if err := rows.Scan(&name, &raw); err != nil {
			return nil, fmt.Errorf("indices: scan bookmark: %w", err)
		}
		id, err := nodeid.FromBytes(raw)
		if err != nil {
			return nil, fmt.Errorf("indices: decode bookmark %s: %w", name, err)
		}
		out[name] = id
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("indices: list bookmarks by prefix %s: %w", prefix, err)
	}
	return out, nil
}

func likeEscape(s string) string {
	out := make([]byte, 0, len(s))
	for i := range len(s) {
		c := s[i]
		if c == '%' || c == '_' || c == '\\' {
			out = append(out, '\\')
		}
		out = append(out, c)
	}
	return string(out)
}

type bookmarkOpKind int

const (
	bookmarkCreate bookmarkOpKind = iota
	bookmarkUpdate
	bookmarkDelete
)

type bookmarkOp struct {
	kind        bookmarkOpKind
	expectedOld *nodeid.ID // nil means "expect absent" (Create)
	newVal      *nodeid.ID // nil means "no new value" (Delete)
}

// BookmarkTxn batches create/update/delete operations against one or
// more bookmark names and commits them atomically. A transaction that
// targets a bookmark whose value changed since the transaction staged
// its expectation fails the whole commit with errs.ErrBookmarkConflict.
type BookmarkTxn struct {
	b   *Bookmarks
	ops map[string]bookmarkOp
}

// CreateTransaction starts a new bookmark transaction.
func (b *Bookmarks) CreateTransaction() *BookmarkTxn {
	return &BookmarkTxn{b: b, ops: make(map[string]bookmarkOp)}
}

// Create stages the creation of a new bookmark. Commit fails if the name
// already exists.
func (t *BookmarkTxn) Create(name string, id nodeid.ID) {
	t.ops[name] = bookmarkOp{kind: bookmarkCreate, newVal: &id}
}

// Update stages retargeting an existing bookmark from oldID to newID.
// Commit fails if the bookmark no longer points at oldID.
func (t *BookmarkTxn) Update(name string, oldID, newID nodeid.ID) {
	t.ops[name] = bookmarkOp{kind: bookmarkUpdate, expectedOld: &oldID, newVal: &newID}
}

// Delete stages removal of a bookmark currently pointing at oldID.
// Commit fails if the bookmark no longer points at oldID.
func (t *BookmarkTxn) Delete(name string, oldID nodeid.ID) {
	t.ops[name] = bookmarkOp{kind: bookmarkDelete, expectedOld: &oldID}
}

// Commit applies every staged operation atomically. On the first
// conflicting expectation it rolls back the whole transaction and
// returns errs.ErrBookmarkConflict; no partial update is left behind.
func (t *BookmarkTxn) Commit(ctx context.Context) error {
	if len(t.ops) == 0 {
		return nil
	}

	tx, err := t.b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("indices: begin bookmark txn: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op once committed

	for name, op := range t.ops {
		var current []byte
		err := tx.QueryRowContext(ctx,
			`SELECT changeset_id FROM bookmarks WHERE repo_id = ? AND name = ?`,
			t.b.repoID, name).Scan(&current)
		exists := err == nil
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("indices: read bookmark %s: %w", name, err)
		}

		if op.expectedOld == nil && exists {
			return fmt.Errorf("indices: create bookmark %s: already exists: %w", name, errs.ErrBookmarkConflict)
		}
		if op.expectedOld != nil {
			if !exists {
				return fmt.Errorf("indices: update bookmark %s: missing: %w", name, errs.ErrBookmarkConflict)
			}
			currentID, decErr := nodeid.FromBytes(current)
			if decErr != nil {
				return fmt.Errorf("indices: decode bookmark %s: %w", name, decErr)
			}
			if currentID != *op.expectedOld {
				return fmt.Errorf("indices: bookmark %s moved concurrently: %w", name, errs.ErrBookmarkConflict)
			}
		}

		switch op.kind {
		case bookmarkCreate, bookmarkUpdate:
			_, err = tx.ExecContext(ctx,
				`INSERT INTO bookmarks (repo_id, name, changeset_id) VALUES (?, ?, ?)
				 ON CONFLICT (repo_id, name) DO UPDATE SET changeset_id = excluded.changeset_id`,
				t.b.repoID, name, op.newVal[:])
		case bookmarkDelete:
			_, err = tx.ExecContext(ctx,
				`DELETE FROM bookmarks WHERE repo_id = ? AND name = ?`, t.b.repoID, name)
		}
		if err != nil {
			return fmt.Errorf("indices: apply bookmark op %s: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("indices: commit bookmark txn: %w", err)
	}
	return nil
}
