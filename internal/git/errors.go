package git

import (
	"errors"
	"fmt"
)

// Backend error taxonomy. Backends wrap these with %w so callers can use
// errors.Is regardless of which backend produced them.
var (
	// ErrTimeout indicates a network operation stalled past its deadline.
	ErrTimeout = errors.New("git operation timed out")

	// ErrBranchBehind indicates a push was rejected because the remote advanced.
	ErrBranchBehind = errors.New("branch is behind its upstream")

	// ErrNotGitRepo indicates the directory is not a git repository.
	ErrNotGitRepo = errors.New("not a git repository")

	// ErrNoUpstream indicates the current branch has no upstream configured.
	ErrNoUpstream = errors.New("no upstream configured")
)

// PullConflictError is returned when a pull stops on a merge conflict.
// Message carries the backend output verbatim.
type PullConflictError struct {
	Message string
}

func (e *PullConflictError) Error() string {
	return fmt.Sprintf("pull conflict: %s", e.Message)
}

// IsPullConflict reports whether err wraps a PullConflictError and returns it.
func IsPullConflict(err error) (*PullConflictError, bool) {
	var conflict *PullConflictError
	if errors.As(err, &conflict) {
		return conflict, true
	}
	return nil, false
}
