// Package rawnode encodes and decodes the small header stored alongside
// every addressable object in the blobstore, under key "node:<hex>":
// the object's parents and the sha1 of its content blob.
package rawnode

import (
	"fmt"

	"github.com/rybkr/blobrepo/internal/errs"
	"github.com/rybkr/blobrepo/internal/nodeid"
)

const (
	flagP1 = 1 << 0
	flagP2 = 1 << 1
)

// Record is the decoded form of a "node:<hex>" value.
type Record struct {
	Parents nodeid.Parents
	BlobSha nodeid.ID
}

// encodedSize returns the exact encoded length of a Record with the
// given parents.
func encodedSize(p nodeid.Parents) int {
	n := 1 + nodeid.Size // flag byte + blob sha
	if p.P1 != nil {
		n += nodeid.Size
	}
	if p.P2 != nil {
		n += nodeid.Size
	}
	return n
}

// Encode produces the fixed binary layout: one flag byte, followed by
// whichever of p1/p2 are present (20 bytes each, in order), followed by
// the 20-byte blob sha.
func Encode(r Record) []byte {
	buf := make([]byte, 0, encodedSize(r.Parents))
	var flags byte
	if r.Parents.P1 != nil {
		flags |= flagP1
	}
	if r.Parents.P2 != nil {
		flags |= flagP2
	}
	buf = append(buf, flags)
	if r.Parents.P1 != nil {
		buf = append(buf, r.Parents.P1[:]...)
	}
	if r.Parents.P2 != nil {
		buf = append(buf, r.Parents.P2[:]...)
	}
	buf = append(buf, r.BlobSha[:]...)
	return buf
}

// Decode parses the layout Encode produces. It returns
// errs.ErrSerializationFailed, wrapped, on any malformed input.
func Decode(b []byte) (Record, error) {
	if len(b) < 1 {
		return Record{}, fmt.Errorf("rawnode: empty record: %w", errs.ErrSerializationFailed)
	}
	flags := b[0]
	b = b[1:]

	var rec Record
	if flags&flagP1 != 0 {
		if len(b) < nodeid.Size {
			return Record{}, fmt.Errorf("rawnode: truncated p1: %w", errs.ErrSerializationFailed)
		}
		id, err := nodeid.FromBytes(b[:nodeid.Size])
		if err != nil {
			return Record{}, fmt.Errorf("rawnode: p1: %w", errs.ErrSerializationFailed)
		}
		rec.Parents.P1 = &id
		b = b[nodeid.Size:]
	}
	if flags&flagP2 != 0 {
		if len(b) < nodeid.Size {
			return Record{}, fmt.Errorf("rawnode: truncated p2: %w", errs.ErrSerializationFailed)
		}
		id, err := nodeid.FromBytes(b[:nodeid.Size])
		if err != nil {
			return Record{}, fmt.Errorf("rawnode: p2: %w", errs.ErrSerializationFailed)
		}
		rec.Parents.P2 = &id
		b = b[nodeid.Size:]
	}
	if len(b) != nodeid.Size {
		return Record{}, fmt.Errorf("rawnode: bad blob sha length %d: %w", len(b), errs.ErrSerializationFailed)
	}
	sha, err := nodeid.FromBytes(b)
	if err != nil {
		return Record{}, fmt.Errorf("rawnode: blob sha: %w", errs.ErrSerializationFailed)
	}
	rec.BlobSha = sha
	return rec, nil
}
