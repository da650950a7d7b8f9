package handle

import "github.com/rybkr/blobrepo/internal/nodeid"

// ParentRef is what CanBeParent fires with: enough about an in-flight
// changeset for a child build to reference it as a parent without
// waiting for it to be durable.
type ParentRef struct {
	ChangesetID nodeid.ChangesetID
	ManifestID  nodeid.ManifestID
	Generation  uint64
}

// CompletedChangeset is what Completion fires with: the changeset is
// now durable and visible to readers of the Changesets index.
type CompletedChangeset struct {
	ChangesetID nodeid.ChangesetID
	Generation  uint64
}

// ChangesetHandle is returned to the caller of a changeset build before
// the build finishes. CanBeParent fires as soon as this changeset's id
// and manifest are known, letting dependent builds proceed without
// waiting for durability; Completion fires once every write this build
// owns has landed.
type ChangesetHandle struct {
	CanBeParent *Latch[ParentRef]
	Completion  *Latch[CompletedChangeset]
}

// New returns a handle with both latches unfired.
func New() *ChangesetHandle {
	return &ChangesetHandle{
		CanBeParent: NewLatch[ParentRef](),
		Completion:  NewLatch[CompletedChangeset](),
	}
}
