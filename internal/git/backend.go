package git

import "context"

// Backend is the contract every version-control backend implements.
// Every call takes a context; cancellation is observed by the backend.
// Network calls (Fetch, FetchPrune, Pull, Push) return an error wrapping
// ErrTimeout when their deadline passes.
type Backend interface {
	// Log returns one page of history. An empty repository yields no commits
	// and no error.
	Log(ctx context.Context, repo Repository, opts LogOptions) ([]Commit, error)

	Fetch(ctx context.Context, repo Repository) error
	// FetchPrune fetches and removes remote-tracking refs that no longer exist.
	FetchPrune(ctx context.Context, repo Repository) error
	// Pull returns a *PullConflictError when the merge stops on conflicts.
	Pull(ctx context.Context, repo Repository) error
	// Push returns ErrBranchBehind when the remote rejects a non-fast-forward.
	Push(ctx context.Context, repo Repository, force bool) error

	// HasUpstream reports whether the current branch tracks a remote branch.
	HasUpstream(ctx context.Context, repo Repository) (bool, error)
	// IsUpToDate reports whether the remote-tracking ref already matches the
	// remote, i.e. a fetch would bring nothing new.
	IsUpToDate(ctx context.Context, repo Repository) (bool, error)

	// Diff returns the unstaged unified diff of file against the index.
	Diff(ctx context.Context, repo Repository, file string) (string, error)
	// DiffCached returns the staged unified diff of file against HEAD.
	DiffCached(ctx context.Context, repo Repository, file string) (string, error)
	// CommitDiff returns the patch a commit introduced relative to its first parent.
	CommitDiff(ctx context.Context, repo Repository, id string) (string, error)

	StashList(ctx context.Context, repo Repository) ([]StashEntry, error)
}
