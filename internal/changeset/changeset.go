// Package changeset defines the on-blob Changeset object: the full
// commit record — parents, root manifest, author, time, extras and the
// changed-files list — stored as a single blob under its own node key.
package changeset

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/rybkr/blobrepo/internal/errs"
	"github.com/rybkr/blobrepo/internal/nodeid"
)

// Extra is one entry of the changeset's ordered extras map. Order is
// significant and preserved by Encode/Decode; extras are not sorted by
// key the way changed_files are.
type Extra struct {
	Key   []byte
	Value []byte
}

// Changeset is the decoded form of a commit blob.
type Changeset struct {
	P1, P2       *nodeid.ChangesetID
	ManifestID   nodeid.ManifestID
	User         string
	Timestamp    time.Time
	Extras       []Extra
	ChangedFiles []string
	Comments     string
}

// IsSorted reports whether ChangedFiles is in the canonical sorted
// order Encode requires.
func (c Changeset) IsSorted() bool {
	return sort.StringsAreSorted(c.ChangedFiles)
}

// Encode serializes c. Callers must pass a Changeset whose ChangedFiles
// is already sorted; Encode does not sort for you but panics on an
// unsorted list, so that a caller bug that loses the sort invariant
// fails loudly instead of silently producing a blob whose hash nobody
// can reproduce from the same logical data in a different order.
func Encode(c Changeset) []byte {
	if !c.IsSorted() {
		panic("changeset: Encode called with unsorted ChangedFiles")
	}
	var buf bytes.Buffer

	var flags byte
	if c.P1 != nil {
		flags |= 1 << 0
	}
	if c.P2 != nil {
		flags |= 1 << 1
	}
	buf.WriteByte(flags)
	if c.P1 != nil {
		buf.Write(c.P1[:])
	}
	if c.P2 != nil {
		buf.Write(c.P2[:])
	}
	buf.Write(c.ManifestID[:])

	writeBytes(&buf, []byte(c.User))
	writeVarint(&buf, c.Timestamp.UnixNano())

	writeUvarint(&buf, uint64(len(c.Extras)))
	for _, e := range c.Extras {
		writeBytes(&buf, e.Key)
		writeBytes(&buf, e.Value)
	}

	writeUvarint(&buf, uint64(len(c.ChangedFiles)))
	for _, f := range c.ChangedFiles {
		writeBytes(&buf, []byte(f))
	}

	writeBytes(&buf, []byte(c.Comments))
	return buf.Bytes()
}

// Decode parses the layout Encode produces.
func Decode(b []byte) (Changeset, error) {
	r := bytes.NewReader(b)

	flagsByte, err := r.ReadByte()
	if err != nil {
		return Changeset{}, wrapErr("read flags", err)
	}

	var c Changeset
	if flagsByte&(1<<0) != 0 {
		id, err := readID(r)
		if err != nil {
			return Changeset{}, wrapErr("read p1", err)
		}
		cid := nodeid.ChangesetID(id)
		c.P1 = &cid
	}
	if flagsByte&(1<<1) != 0 {
		id, err := readID(r)
		if err != nil {
			return Changeset{}, wrapErr("read p2", err)
		}
		cid := nodeid.ChangesetID(id)
		c.P2 = &cid
	}

	manifestID, err := readID(r)
	if err != nil {
		return Changeset{}, wrapErr("read manifest id", err)
	}
	c.ManifestID = nodeid.ManifestID(manifestID)

	user, err := readBytes(r)
	if err != nil {
		return Changeset{}, wrapErr("read user", err)
	}
	c.User = string(user)

	ts, err := binary.ReadVarint(r)
	if err != nil {
		return Changeset{}, wrapErr("read timestamp", err)
	}
	c.Timestamp = time.Unix(0, ts).UTC()

	extraCount, err := binary.ReadUvarint(r)
	if err != nil {
		return Changeset{}, wrapErr("read extras count", err)
	}
	c.Extras = make([]Extra, 0, extraCount)
	for range extraCount {
		key, err := readBytes(r)
		if err != nil {
			return Changeset{}, wrapErr("read extra key", err)
		}
		value, err := readBytes(r)
		if err != nil {
			return Changeset{}, wrapErr("read extra value", err)
		}
		c.Extras = append(c.Extras, Extra{Key: key, Value: value})
	}

	fileCount, err := binary.ReadUvarint(r)
	if err != nil {
		return Changeset{}, wrapErr("read changed files count", err)
	}
	c.ChangedFiles = make([]string, 0, fileCount)
	for range fileCount {
		path, err := readBytes(r)
		if err != nil {
			return Changeset{}, wrapErr("read changed file", err)
		}
		c.ChangedFiles = append(c.ChangedFiles, string(path))
	}

	comments, err := readBytes(r)
	if err != nil {
		return Changeset{}, wrapErr("read comments", err)
	}
	c.Comments = string(comments)

	return c, nil
}

func wrapErr(what string, err error) error {
	return fmt.Errorf("changeset: %s: %w: %w", what, errs.ErrSerializationFailed, err)
}

func writeVarint(buf *bytes.Buffer, v int64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutVarint(tmp[:], v)
	buf.Write(tmp[:n])
}

func writeUvarint(buf *bytes.Buffer, v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	buf.Write(tmp[:n])
}

func writeBytes(buf *bytes.Buffer, b []byte) {
	writeUvarint(buf, uint64(len(b)))
	buf.Write(b)
}

func readBytes(r *bytes.Reader) ([]byte, error) {
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

func readID(r *bytes.Reader) (nodeid.ID, error) {
	var buf [nodeid.Size]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return nodeid.ID{}, err
	}
	return nodeid.ID(buf), nil
}
