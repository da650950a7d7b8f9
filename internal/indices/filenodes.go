package indices

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rybkr/blobrepo/internal/errs"
	"github.com/rybkr/blobrepo/internal/nodeid"
)

// CopyFrom records the (path, node_id) a filenode was renamed/copied
// from, if any.
type CopyFrom struct {
	Path string
	ID   nodeid.FilenodeID
}

// FileNode is the metadata for one historical version of one path.
type FileNode struct {
	Path     string
	NodeID   nodeid.FilenodeID
	P1, P2   *nodeid.FilenodeID
	Linknode nodeid.ChangesetID
	CopyFrom *CopyFrom
}

func (a FileNode) sameContentAs(b FileNode) bool {
	return idPtrEqual(a.P1, b.P1) &&
		idPtrEqual(a.P2, b.P2) &&
		a.Linknode == b.Linknode &&
		copyFromEqual(a.CopyFrom, b.CopyFrom)
}

func idPtrEqual(a, b *nodeid.FilenodeID) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return a == nil || *a == *b
}

func copyFromEqual(a, b *CopyFrom) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return a == nil || (*a == *b)
}

// Filenodes maps (repo_id, path, node_id) to a FileNode.
type Filenodes struct {
	db     *sql.DB
	repoID string
}

// NewFilenodes returns a Filenodes index scoped to repoID.
func NewFilenodes(db *sql.DB, repoID string) *Filenodes {
	return &Filenodes{db: db, repoID: repoID}
}

// Get returns the filenode for (path, id), if one exists.
func (f *Filenodes) Get(ctx context.Context, path string, id nodeid.FilenodeID) (FileNode, bool, error) {
	row := f.db.QueryRowContext(ctx,
		`SELECT p1, p2, linknode, copyfrom_path, copyfrom_node
		 FROM filenodes WHERE repo_id = ? AND path = ? AND node_id = ?`,
		f.repoID, path, id[:])
	fn, found, err := scanFileNode(row, path, id)
	if err != nil {
		return FileNode{}, false, fmt.Errorf("indices: get filenode %s@%s: %w", path, id, err)
	}
	return fn, found, nil
}

// GetFileCopy returns the (path, node_id) a filenode was copied from, if
// it has copy-from metadata.
func (f *Filenodes) GetFileCopy(ctx context.Context, path string, id nodeid.FilenodeID) (*CopyFrom, bool, error) {
	fn, found, err := f.Get(ctx, path, id)
	if err != nil {
		return nil, false, err
	}
	if !found || fn.CopyFrom == nil {
		return nil, false, nil
	}
	return fn.CopyFrom, true, nil
}

func scanFileNode(row *sql.Row, path string, id nodeid.FilenodeID) (FileNode, bool, error) {
	var p1, p2, linknode, copyNode []byte
	var copyPathStr sql.NullString
	err := row.Scan(&p1, &p2, &linknode, &copyPathStr, &copyNode)
	if errors.Is(err, sql.ErrNoRows) {
		return FileNode{}, false, nil
	}
	if err != nil {
		return FileNode{}, false, err
	}

	fn := FileNode{Path: path, NodeID: id}
	if p1 != nil {
		v, err := nodeid.FromBytes(p1)
		if err != nil {
			return FileNode{}, false, err
		}
		pv := nodeid.FilenodeID(v)
		fn.P1 = &pv
	}
	if p2 != nil {
		v, err := nodeid.FromBytes(p2)
		if err != nil {
			return FileNode{}, false, err
		}
		pv := nodeid.FilenodeID(v)
		fn.P2 = &pv
	}
	link, err := nodeid.FromBytes(linknode)
	if err != nil {
		return FileNode{}, false, err
	}
	fn.Linknode = nodeid.ChangesetID(link)

	if copyPathStr.Valid {
		cn, err := nodeid.FromBytes(copyNode)
		if err != nil {
			return FileNode{}, false, err
		}
		fn.CopyFrom = &CopyFrom{Path: copyPathStr.String, ID: nodeid.FilenodeID(cn)}
	}
	return fn, true, nil
}

// Add inserts a batch of filenodes in one transaction. Re-inserting a
// record identical to the one already stored under the same key is a
// no-op; inserting a differing record for an existing key fails the
// whole batch with errs.ErrConflictingFileNode and leaves the stored
// record untouched.
func (f *Filenodes) Add(ctx context.Context, nodes []FileNode) error {
	if len(nodes) == 0 {
		return nil
	}

	tx, err := f.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("indices: begin filenodes txn: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op once committed

	for _, fn := range nodes {
		row := tx.QueryRowContext(ctx,
			`SELECT p1, p2, linknode, copyfrom_path, copyfrom_node
			 FROM filenodes WHERE repo_id = ? AND path = ? AND node_id = ?`,
			f.repoID, fn.Path, fn.NodeID[:])
		existing, found, err := scanFileNode(row, fn.Path, fn.NodeID)
		if err != nil {
			return fmt.Errorf("indices: check existing filenode %s@%s: %w", fn.Path, fn.NodeID, err)
		}
		if found {
			if existing.sameContentAs(fn) {
				continue // idempotent re-insert, no-op
			}
			return fmt.Errorf("indices: filenode %s@%s: %w", fn.Path, fn.NodeID, errs.ErrConflictingFileNode)
		}

		var p1, p2 []byte
		if fn.P1 != nil {
			p1 = fn.P1[:]
		}
		if fn.P2 != nil {
			p2 = fn.P2[:]
		}
		var copyPath sql.NullString
		var copyNode []byte
		if fn.CopyFrom != nil {
			copyPath = sql.NullString{String: fn.CopyFrom.Path, Valid: true}
			copyNode = fn.CopyFrom.ID[:]
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO filenodes (repo_id, path, node_id, p1, p2, linknode, copyfrom_path, copyfrom_node)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			f.repoID, fn.Path, fn.NodeID[:], p1, p2, fn.Linknode[:], copyPath, copyNode)
		if err != nil {
			return fmt.Errorf("indices: insert filenode %s@%s: %w", fn.Path, fn.NodeID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("indices: commit filenodes txn: %w", err)
	}
	return nil
}
