// Package commitgraph implements a resumable, deduplicated breadth-first
// traversal of the commit DAG, seeded from a repo's head set.
package commitgraph

import (
	"context"
	"fmt"

	"github.com/rybkr/blobrepo/internal/errs"
	"github.com/rybkr/blobrepo/internal/indices"
	"github.com/rybkr/blobrepo/internal/nodeid"
)

// Stream is a lazy BFS walk over changeset ancestry. Next yields every
// changeset reachable from the initial heads exactly once, in an order
// that is a valid topological order from tips toward roots.
type Stream struct {
	changesets *indices.Changesets
	frontier   []nodeid.ChangesetID
	seen       map[nodeid.ChangesetID]struct{}
}

// New seeds a Stream from the repo's current head set.
func New(ctx context.Context, heads *indices.Heads, changesets *indices.Changesets) (*Stream, error) {
	ids, err := heads.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("commitgraph: list heads: %w", err)
	}
	frontier := make([]nodeid.ChangesetID, len(ids))
	for i, id := range ids {
		frontier[i] = nodeid.ChangesetID(id)
	}
	return &Stream{
		changesets: changesets,
		frontier:   frontier,
		seen:       make(map[nodeid.ChangesetID]struct{}),
	}, nil
}

// Next returns the next unseen changeset id, or ok=false once the
// frontier is exhausted.
func (s *Stream) Next(ctx context.Context) (id nodeid.ChangesetID, ok bool, err error) {
	for len(s.frontier) > 0 {
		id := s.frontier[0]
		s.frontier = s.frontier[1:]

		if _, dup := s.seen[id]; dup {
			continue
		}
		s.seen[id] = struct{}{}

		rec, found, err := s.changesets.Get(ctx, id)
		if err != nil {
			return nodeid.ChangesetID{}, false, fmt.Errorf("commitgraph: load changeset %s: %w", id, err)
		}
		if !found {
			return nodeid.ChangesetID{}, false, fmt.Errorf("commitgraph: changeset %s: %w", id, errs.ErrChangesetMissing)
		}

		// Existing tail first, then new parents: this is what makes the
		// traversal BFS rather than DFS.
		if rec.P1 != nil {
			s.frontier = append(s.frontier, *rec.P1)
		}
		if rec.P2 != nil {
			s.frontier = append(s.frontier, *rec.P2)
		}

		return id, true, nil
	}
	return nodeid.ChangesetID{}, false, nil
}
