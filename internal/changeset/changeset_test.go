package changeset

import (
	"errors"
	"testing"
	"time"

	"github.com/rybkr/blobrepo/internal/errs"
	"github.com/rybkr/blobrepo/internal/nodeid"
)

func idOf(b byte) nodeid.ID {
	var id nodeid.ID
	id[len(id)-1] = b
	return id
}

func TestEncodeDecodeRoundTripRoot(t *testing.T) {
	c := Changeset{
		ManifestID:   nodeid.ManifestID(idOf(1)),
		User:         "alice",
		Timestamp:    time.Unix(1700000000, 0).UTC(),
		Extras:       []Extra{{Key: []byte("branch"), Value: []byte("default")}},
		ChangedFiles: []string{"README"},
		Comments:     "initial commit",
	}
	if !c.IsSorted() {
		t.Fatal("fixture must be sorted")
	}

	decoded, err := Decode(Encode(c))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if decoded.P1 != nil || decoded.P2 != nil {
		t.Fatalf("expected no parents, got %+v", decoded)
	}
	if decoded.ManifestID != c.ManifestID || decoded.User != c.User || decoded.Comments != c.Comments {
		t.Fatalf("got %+v, want %+v", decoded, c)
	}
	if !decoded.Timestamp.Equal(c.Timestamp) {
		t.Fatalf("timestamp: got %v, want %v", decoded.Timestamp, c.Timestamp)
	}
	if len(decoded.Extras) != 1 || string(decoded.Extras[0].Key) != "branch" {
		t.Fatalf("unexpected extras: %+v", decoded.Extras)
	}
	if len(decoded.ChangedFiles) != 1 || decoded.ChangedFiles[0] != "README" {
		t.Fatalf("unexpected changed files: %v", decoded.ChangedFiles)
	}
}

func TestEncodeDecodeRoundTripMergePreservesExtrasOrder(t *testing.T) {
	p1 := nodeid.ChangesetID(idOf(1))
	p2 := nodeid.ChangesetID(idOf(2))
	c := Changeset{
		P1:         &p1,
		P2:         &p2,
		ManifestID: nodeid.ManifestID(idOf(3)),
		User:       "bob",
		Timestamp:  time.Unix(1700000100, 0).UTC(),
		Extras: []Extra{
			{Key: []byte("z"), Value: []byte("1")},
			{Key: []byte("a"), Value: []byte("2")},
		},
		ChangedFiles: []string{"a.txt", "b.txt", "z.txt"},
		Comments:     "merge",
	}

	decoded, err := Decode(Encode(c))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if decoded.P1 == nil || *decoded.P1 != p1 || decoded.P2 == nil || *decoded.P2 != p2 {
		t.Fatalf("unexpected parents: %+v", decoded)
	}
	if string(decoded.Extras[0].Key) != "z" || string(decoded.Extras[1].Key) != "a" {
		t.Fatalf("extras order not preserved: %+v", decoded.Extras)
	}
	for i, f := range c.ChangedFiles {
		if decoded.ChangedFiles[i] != f {
			t.Fatalf("changed files order not preserved at %d: %v", i, decoded.ChangedFiles)
		}
	}
}

func TestDecodeRejectsTruncatedInput(t *testing.T) {
	c := Changeset{ManifestID: nodeid.ManifestID(idOf(1)), ChangedFiles: []string{}}
	b := Encode(c)

	_, err := Decode(b[:len(b)-2])
	if !errors.Is(err, errs.ErrSerializationFailed) {
		t.Fatalf("expected ErrSerializationFailed, got %v", err)
	}
}
