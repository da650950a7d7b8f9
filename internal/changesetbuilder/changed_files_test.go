package changesetbuilder

import (
	"reflect"
	"testing"

	"github.com/rybkr/blobrepo/internal/nodeid"
)

func fid(b byte) nodeid.ID {
	var out nodeid.ID
	out[len(out)-1] = b
	return out
}

func TestComputeChangedFilesRootCommit(t *testing.T) {
	child := map[string]nodeid.ID{"a.txt": fid(1), "b.txt": fid(2)}
	got := ComputeChangedFiles(child, nil, nil, false, false)
	want := []string{"a.txt", "b.txt"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestComputeChangedFilesOneParentModifiedAndAdded(t *testing.T) {
	p1 := map[string]nodeid.ID{"a.txt": fid(1)}
	child := map[string]nodeid.ID{"a.txt": fid(2), "b.txt": fid(3)}
	got := ComputeChangedFiles(child, p1, nil, true, false)
	want := []string{"a.txt", "b.txt"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestComputeChangedFilesOneParentUnchangedOmitted(t *testing.T) {
	p1 := map[string]nodeid.ID{"a.txt": fid(1)}
	child := map[string]nodeid.ID{"a.txt": fid(1)}
	got := ComputeChangedFiles(child, p1, nil, true, false)
	if len(got) != 0 {
		t.Fatalf("expected no changed files, got %v", got)
	}
}

func TestComputeChangedFilesOneParentDeletion(t *testing.T) {
	p1 := map[string]nodeid.ID{"a.txt": fid(1), "b.txt": fid(2)}
	child := map[string]nodeid.ID{"a.txt": fid(1)}
	got := ComputeChangedFiles(child, p1, nil, true, false)
	want := []string{"b.txt"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestComputeChangedFilesMergeTieBreak(t *testing.T) {
	p1 := map[string]nodeid.ID{"a.txt": fid(1)}
	p2 := map[string]nodeid.ID{"a.txt": fid(1)}
	child := map[string]nodeid.ID{"a.txt": fid(1)}
	got := ComputeChangedFiles(child, p1, p2, true, true)
	if len(got) != 0 {
		t.Fatalf("expected no changed files when both parents agree with child, got %v", got)
	}
}

func TestComputeChangedFilesMergeResolvesConflict(t *testing.T) {
	p1 := map[string]nodeid.ID{"a.txt": fid(1)}
	p2 := map[string]nodeid.ID{"a.txt": fid(2)}
	child := map[string]nodeid.ID{"a.txt": fid(3)}
	got := ComputeChangedFiles(child, p1, p2, true, true)
	want := []string{"a.txt"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestComputeChangedFilesMergeTakesOneSide(t *testing.T) {
	p1 := map[string]nodeid.ID{"a.txt": fid(1)}
	p2 := map[string]nodeid.ID{"a.txt": fid(2)}
	child := map[string]nodeid.ID{"a.txt": fid(1)}
	got := ComputeChangedFiles(child, p1, p2, true, true)
	if len(got) != 0 {
		t.Fatalf("expected no changed files when child matches one parent exactly, got %v", got)
	}
}

func TestComputeChangedFilesMergeDeletion(t *testing.T) {
	p1 := map[string]nodeid.ID{"a.txt": fid(1)}
	p2 := map[string]nodeid.ID{"a.txt": fid(1)}
	child := map[string]nodeid.ID{}
	got := ComputeChangedFiles(child, p1, p2, true, true)
	want := []string{"a.txt"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestComputeChangedFilesMergeNewFileNeitherParentHad(t *testing.T) {
	p1 := map[string]nodeid.ID{"x.txt": fid(9)}
	p2 := map[string]nodeid.ID{"x.txt": fid(9)}
	child := map[string]nodeid.ID{"x.txt": fid(9), "new.txt": fid(5)}
	got := ComputeChangedFiles(child, p1, p2, true, true)
	want := []string{"new.txt"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}
