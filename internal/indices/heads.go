// Package indices implements the four typed, SQL-backed indices layered
// over the blobstore: Heads, Bookmarks, Filenodes and Changesets. None of
// them store bulk content; they map logical identities to node ids or to
// small records.
package indices

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rybkr/blobrepo/internal/nodeid"
)

// Heads tracks the set of changeset ids marked as tips for one repo.
type Heads struct {
	db     *sql.DB
	repoID string
}

// NewHeads returns a Heads index scoped to repoID.
func NewHeads(db *sql.DB, repoID string) *Heads {
	return &Heads{db: db, repoID: repoID}
}

// List returns the current head set, lazily queried on each call.
func (h *Heads) List(ctx context.Context) ([]nodeid.ID, error) {
	rows, err := h.db.QueryContext(ctx,
		`SELECT changeset_id FROM heads WHERE repo_id = ?`, h.repoID)
	if err != nil {
		return nil, fmt.Errorf("indices: list heads: %w", err)
	}
	defer rows.Close()

	var out []nodeid.ID
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("indices: scan head: %w", err)
		}
		id, err := nodeid.FromBytes(raw)
		if err != nil {
			return nil, fmt.Errorf("indices: decode head: %w", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("indices: list heads: %w", err)
	}
	return out, nil
}

// Add marks id as a head. Idempotent.
func (h *Heads) Add(ctx context.Context, id nodeid.ID) error {
	_, err := h.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO heads (repo_id, changeset_id) VALUES (?, ?)`,
		h.repoID, id[:])
	if err != nil {
		return fmt.Errorf("indices: add head %s: %w", id, err)
	}
	return nil
}

// Remove unmarks id as a head. Idempotent.
func (h *Heads) Remove(ctx context.Context, id nodeid.ID) error {
	_, err := h.db.ExecContext(ctx,
		`DELETE FROM heads WHERE repo_id = ? AND changeset_id = ?`,
		h.repoID, id[:])
	if err != nil {
		return fmt.Errorf("indices: remove head %s: %w", id, err)
	}
	return nil
}
