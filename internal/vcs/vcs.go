// Package vcs declares the narrow contract the core needs from version
// control, deliberately excluding everything a full VCS layer would do
// (branch management, rebase, remotes — spec.md §1 Out of scope). The
// reconciler only needs HEAD, the tracked-file set, and hunk-level diffs.
package vcs

import "codeplane/internal/errs"

// Hunk is a contiguous changed-line range used by semantic diff's
// hunk-intersection check (spec.md §4.C10).
type Hunk struct {
	Path      string
	OldStart  int
	OldLines  int
	NewStart  int
	NewLines  int
}

// Repository is the read-only slice of VCS functionality the core
// consumes. A real implementation wraps git (or another VCS); this
// package only defines the shape collaborators must honor. Methods report
// errs.ErrNotARepository, errs.ErrDetachedHead etc. from internal/errs for
// the conditions spec.md §7 enumerates.
type Repository interface {
	// Head returns the current commit identifier, or "" with
	// errs.ErrDetachedHead if HEAD does not resolve to a branch tip the
	// reconciler can track deltas against.
	Head() (string, error)
	// TrackedFiles lists every file path VCS considers tracked, relative
	// to the repo root, forward-slash separated.
	TrackedFiles() ([]string, error)
	// DiffHunks returns the hunks changed between two commits for a path,
	// or nil if the path is unchanged between them.
	DiffHunks(fromCommit, toCommit, path string) ([]Hunk, error)
}

// NullRepository is a Repository that reports no VCS is present, the
// collaborator stub used when the core runs over a directory that isn't a
// git checkout (spec.md §4.C5 still reconciles by hash in that case, it
// simply has no git HEAD to key off of).
type NullRepository struct{}

func (NullRepository) Head() (string, error)                                { return "", errs.ErrNotARepository }
func (NullRepository) TrackedFiles() ([]string, error)                      { return nil, errs.ErrNotARepository }
func (NullRepository) DiffHunks(_, _, _ string) ([]Hunk, error)             { return nil, errs.ErrNotARepository }
