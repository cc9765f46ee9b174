package history

import (
	"context"

	"github.com/google/uuid"

	"github.com/zjrosen/lanes/internal/git"
)

// opKind names the slot an operation runs in.
type opKind int

const (
	opQuick opKind = iota
	opRemote
	opMore
	opSnapshot
)

func (k opKind) String() string {
	switch k {
	case opQuick:
		return "quick"
	case opRemote:
		return "remote"
	case opMore:
		return "more"
	case opSnapshot:
		return "snapshot"
	default:
		return "unknown"
	}
}

// OpState is the lifecycle of an operation slot.
type OpState int

const (
	StateIdle OpState = iota
	StateRunning
	StateSucceeded
	StateFailed
	StateCancelled
)

func (s OpState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// operation is one backend request. Its fields are owned by the loop
// goroutine; the worker only reads ctx, repo, window and opts.
type operation struct {
	id     uuid.UUID
	seq    uint64
	kind   opKind
	ctx    context.Context
	cancel context.CancelFunc
	repo   git.Repository
	window int // window size when the operation started
	opts   git.LogOptions
	state  OpState

	// Filled when the worker reports back.
	finished bool
	commits  []git.Commit
	err      error
	skipped  bool // remote op found nothing to fetch

	reply chan moreResult // LoadMore caller, nil otherwise
}

// result is what a worker hands back to the loop.
type result struct {
	op      *operation
	commits []git.Commit
	err     error
	skipped bool
}

type moreResult struct {
	n   int
	err error
}

func (op *operation) shortID() string {
	return op.id.String()[:8]
}
