// Package errs defines the error kinds shared across the blob repository
// engine. Every component wraps one of these sentinels with fmt.Errorf's
// %w verb rather than defining its own error type, so callers can use
// errors.Is regardless of which layer produced the failure.
package errs

import "errors"

var (
	// ErrBackendUnavailable marks a transient blobstore or index failure;
	// the caller may retry.
	ErrBackendUnavailable = errors.New("blobrepo: backend unavailable")

	// ErrNotFound marks a failed assert-present check on a blobstore key.
	ErrNotFound = errors.New("blobrepo: not found")

	// ErrMissingFilenode marks a referenced (path, node_id) filenode that
	// does not exist.
	ErrMissingFilenode = errors.New("blobrepo: missing filenode")

	// ErrManifestMissing marks a referenced manifest id that does not
	// resolve to a blob.
	ErrManifestMissing = errors.New("blobrepo: manifest missing")

	// ErrChangesetMissing marks a referenced changeset id with no record.
	ErrChangesetMissing = errors.New("blobrepo: changeset missing")

	// ErrBadUploadBlob marks content that could not be hashed or
	// serialized.
	ErrBadUploadBlob = errors.New("blobrepo: bad upload blob")

	// ErrInconsistentEntries marks an EntryUploader finalize call where a
	// tree entry referenced a child that was never uploaded.
	ErrInconsistentEntries = errors.New("blobrepo: inconsistent entries")

	// ErrMissingRootManifest marks an EntryUploader finalize call before
	// the root manifest entry arrived.
	ErrMissingRootManifest = errors.New("blobrepo: missing root manifest")

	// ErrConflictingFileNode marks a filenode batch insert where an
	// existing record under the same key differs from the one supplied.
	ErrConflictingFileNode = errors.New("blobrepo: conflicting filenode")

	// ErrConflictingChangeset marks a changeset insert where an existing
	// record under the same id differs from the one supplied.
	ErrConflictingChangeset = errors.New("blobrepo: conflicting changeset")

	// ErrParentsFailed marks a changeset build that aborted because a
	// parent handle resolved to an error.
	ErrParentsFailed = errors.New("blobrepo: parents failed")

	// ErrCycleDetected marks a changeset build whose own in-progress
	// handle was supplied back to it as a parent.
	ErrCycleDetected = errors.New("blobrepo: cycle detected")

	// ErrSerializationFailed marks a stored record (node header, manifest
	// or changeset blob) that could not be decoded.
	ErrSerializationFailed = errors.New("blobrepo: serialization failed")

	// ErrBookmarkConflict marks a bookmark transaction whose expected
	// prior value no longer matched at commit time.
	ErrBookmarkConflict = errors.New("blobrepo: bookmark conflict")

	// ErrLatchAlreadyFired marks a programmer error: a handle signal fired
	// a second time. Single-assignment latches must never observe this.
	ErrLatchAlreadyFired = errors.New("blobrepo: latch already fired")
)
