// Package remote runs push, fetch and pull against the upstream of the
// active repository.
package remote

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zjrosen/lanes/internal/executor"
	"github.com/zjrosen/lanes/internal/git"
	"github.com/zjrosen/lanes/internal/log"
)

// DefaultTimeout bounds a single remote operation.
const DefaultTimeout = 60 * time.Second

// ErrBusy is returned when a remote operation is already running.
var ErrBusy = errors.New("a remote operation is already running")

// ErrBackendPanic wraps a panic recovered from a backend call.
var ErrBackendPanic = errors.New("backend panicked")

// Refresher is refreshed after every successful remote operation.
type Refresher interface {
	Refresh()
}

// Config configures a Service.
type Config struct {
	Backend   git.Backend
	Executor  executor.Executor // Unbounded when nil
	Refresher Refresher         // optional
	Timeout   time.Duration     // DefaultTimeout when <= 0
}

// Service runs at most one remote operation at a time on its executor.
type Service struct {
	backend   git.Backend
	exec      executor.Executor
	refresher Refresher
	timeout   time.Duration

	busy atomic.Bool
	wg   sync.WaitGroup

	mu      sync.Mutex
	onError func(error)
	lastErr error
}

// NewService creates a Service.
func NewService(cfg Config) *Service {
	s := &Service{
		backend:   cfg.Backend,
		exec:      cfg.Executor,
		refresher: cfg.Refresher,
		timeout:   cfg.Timeout,
	}
	if s.exec == nil {
		s.exec = executor.NewUnbounded()
	}
	if s.timeout <= 0 {
		s.timeout = DefaultTimeout
	}
	return s
}

// SetErrorHandler registers the handler for failures no specific handler
// covers.
func (s *Service) SetErrorHandler(h func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onError = h
}

// Busy reports whether an operation is running.
func (s *Service) Busy() bool {
	return s.busy.Load()
}

// Err returns the failure of the most recent operation that no specific
// handler covered, or nil. Read it after Wait.
func (s *Service) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Wait blocks until the running operation, if any, has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

// Push pushes the current branch, with --force-with-lease when force is
// set. onBehind is called when the remote rejects the push because the
// branch is behind, onTimeout when the push times out.
func (s *Service) Push(repo git.Repository, force bool, onBehind, onTimeout func()) error {
	return s.start("push", repo,
		func(ctx context.Context) error { return s.backend.Push(ctx, repo, force) },
		func(err error) bool {
			switch {
			case errors.Is(err, git.ErrBranchBehind):
				call(onBehind)
			case errors.Is(err, git.ErrTimeout):
				call(onTimeout)
			default:
				return false
			}
			return true
		})
}

// Fetch fetches from the upstream, pruning deleted remote branches.
func (s *Service) Fetch(repo git.Repository, onTimeout func()) error {
	return s.start("fetch", repo,
		func(ctx context.Context) error { return s.backend.FetchPrune(ctx, repo) },
		func(err error) bool {
			if errors.Is(err, git.ErrTimeout) {
				call(onTimeout)
				return true
			}
			return false
		})
}

// Pull pulls the upstream into the current branch. onConflict receives the
// backend's message verbatim when the merge does not apply cleanly.
func (s *Service) Pull(repo git.Repository, onConflict func(msg string), onTimeout func()) error {
	return s.start("pull", repo,
		func(ctx context.Context) error { return s.backend.Pull(ctx, repo) },
		func(err error) bool {
			var conflict *git.PullConflictError
			switch {
			case errors.As(err, &conflict):
				if onConflict != nil {
					onConflict(conflict.Message)
				}
			case errors.Is(err, git.ErrTimeout):
				call(onTimeout)
			default:
				return false
			}
			return true
		})
}

func (s *Service) start(op string, repo git.Repository, run func(ctx context.Context) error, handle func(error) bool) error {
	if !s.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	s.mu.Lock()
	s.lastErr = nil
	s.mu.Unlock()

	s.wg.Add(1)
	s.exec.Go(func() {
		defer s.wg.Done()
		defer s.busy.Store(false)

		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		log.Info(log.CatRemote, "remote operation started", "op", op, "path", repo.Path)
		err := runRecovered(ctx, run)
		if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, git.ErrTimeout) {
			err = fmt.Errorf("%w: %w", git.ErrTimeout, err)
		}
		if err != nil {
			s.fail(op, err, handle)
			return
		}

		log.Info(log.CatRemote, "remote operation finished", "op", op, "path", repo.Path)
		if s.refresher != nil {
			s.refresher.Refresh()
		}
	})
	return nil
}

// runRecovered runs run, reporting a panic as ErrBackendPanic.
func runRecovered(ctx context.Context, run func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrBackendPanic, r)
		}
	}()
	return run(ctx)
}

func (s *Service) fail(op string, err error, handle func(error) bool) {
	if handle(err) {
		log.Warn(log.CatRemote, "remote operation failed", "op", op, "error", err.Error())
		return
	}
	log.ErrorErr(log.CatRemote, "remote operation failed", err, "op", op)

	s.mu.Lock()
	s.lastErr = err
	onError := s.onError
	s.mu.Unlock()
	if onError != nil {
		onError(err)
	}
}

func call(f func()) {
	if f != nil {
		f()
	}
}
