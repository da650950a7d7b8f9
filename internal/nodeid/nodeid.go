// Package nodeid defines the 20-byte content identifiers the blob
// repository addresses everything by: filenodes, manifests and
// changesets all share the same underlying representation, distinguished
// only by the context a caller uses them in (see ChangesetID, ManifestID,
// FilenodeID below).
package nodeid

import (
	"bytes"
	"crypto/sha1" //nolint:gosec // G505/G401: content-addressing, not a security primitive
	"encoding/hex"
	"fmt"
)

// Size is the byte length of a node identifier (a SHA-1 digest).
const Size = 20

// ID is an opaque 20-byte content identifier. The zero value never names a
// real object; use IsZero to test for "absent".
type ID [Size]byte

// FromBytes builds an ID from a raw 20-byte slice.
func FromBytes(b []byte) (ID, error) {
	var id ID
	if len(b) != Size {
		return id, fmt.Errorf("nodeid: invalid length %d, want %d", len(b), Size)
	}
	copy(id[:], b)
	return id, nil
}

// FromHex decodes a 40-character hex string into an ID.
func FromHex(s string) (ID, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return ID{}, fmt.Errorf("nodeid: invalid hex %q: %w", s, err)
	}
	return FromBytes(b)
}

// Hash computes the content address (SHA-1) of data.
func Hash(data []byte) ID {
	return ID(sha1.Sum(data)) //nolint:gosec // G401: content-addressing, not a security primitive
}

// String returns the lowercase hex encoding of id.
func (id ID) String() string { return hex.EncodeToString(id[:]) }

// IsZero reports whether id is the zero value.
func (id ID) IsZero() bool { return id == ID{} }

// Compare returns -1, 0 or 1 comparing id to other bytewise.
func (id ID) Compare(other ID) int { return bytes.Compare(id[:], other[:]) }

// ChangesetID tags an ID as naming a changeset.
type ChangesetID ID

// String returns the lowercase hex encoding.
func (id ChangesetID) String() string { return ID(id).String() }

// IsZero reports whether id is the zero value.
func (id ChangesetID) IsZero() bool { return ID(id).IsZero() }

// ManifestID tags an ID as naming a manifest (tree) node.
type ManifestID ID

// String returns the lowercase hex encoding.
func (id ManifestID) String() string { return ID(id).String() }

// IsZero reports whether id is the zero value.
func (id ManifestID) IsZero() bool { return ID(id).IsZero() }

// FilenodeID tags an ID as naming one historical version of one path.
type FilenodeID ID

// String returns the lowercase hex encoding.
func (id FilenodeID) String() string { return ID(id).String() }

// IsZero reports whether id is the zero value.
func (id FilenodeID) IsZero() bool { return ID(id).IsZero() }

// Parents is the ordered pair (p1?, p2?) carried by every versioned
// object. An empty pair denotes a root.
type Parents struct {
	P1 *ID
	P2 *ID
}

// IsRoot reports whether neither parent is present.
func (p Parents) IsRoot() bool { return p.P1 == nil && p.P2 == nil }

// Identical reports whether both parents are present and equal, the
// "p1 == p2" merge edge case called out in the spec.
func (p Parents) Identical() bool {
	return p.P1 != nil && p.P2 != nil && *p.P1 == *p.P2
}

// Ptr returns a pointer to a copy of id, a convenience for building
// Parents values from a value receiver.
func Ptr(id ID) *ID {
	v := id
	return &v
}
