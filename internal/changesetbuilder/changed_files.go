package changesetbuilder

import (
	"sort"

	"github.com/rybkr/blobrepo/internal/nodeid"
)

// ComputeChangedFiles derives the sorted list of paths changed by a
// commit whose root manifest flattens to child, given up to two parent
// manifests flattened to p1 and p2. hasP1/hasP2 distinguish "parent
// present but manifest empty" from "parent absent" (a root commit has
// neither).
//
// A path is changed iff:
//   - no parents are present (root commit): every path the child has.
//   - one effective parent: presence differs between child and parent,
//     or both have it and the filenode differs.
//   - two distinct parents: both have it and the child's filenode
//     differs from both; or exactly one has it and the child's filenode
//     differs from that one (or the child doesn't have it at all); or
//     neither has it but the child does.
//
// Identical filenodes across both parents for a path the child also
// carries unchanged are never reported, the merge "tie-break" the spec
// calls out explicitly.
func ComputeChangedFiles(child, p1, p2 map[string]nodeid.ID, hasP1, hasP2 bool) []string {
	paths := make(map[string]struct{})
	for p := range child {
		paths[p] = struct{}{}
	}
	if hasP1 {
		for p := range p1 {
			paths[p] = struct{}{}
		}
	}
	if hasP2 {
		for p := range p2 {
			paths[p] = struct{}{}
		}
	}

	var changed []string
	for p := range paths {
		if isChanged(p, child, p1, p2, hasP1, hasP2) {
			changed = append(changed, p)
		}
	}
	sort.Strings(changed)
	return changed
}

func isChanged(path string, child, p1, p2 map[string]nodeid.ID, hasP1, hasP2 bool) bool {
	childID, childHas := child[path]

	switch {
	case !hasP1 && !hasP2:
		return childHas

	case hasP1 != hasP2:
		parent := p1
		if hasP2 {
			parent = p2
		}
		parentID, parentHas := parent[path]
		if childHas != parentHas {
			return true
		}
		return childHas && parentHas && childID != parentID

	default: // both parents present (and distinct, or collapsed by the caller)
		p1ID, p1Has := p1[path]
		p2ID, p2Has := p2[path]
		if !childHas {
			return true // present in at least one parent, dropped by the child
		}
		switch {
		case p1Has && p2Has:
			return childID != p1ID && childID != p2ID
		case p1Has:
			return childID != p1ID
		case p2Has:
			return childID != p2ID
		default:
			return true // new in the merge, neither parent had it
		}
	}
}
