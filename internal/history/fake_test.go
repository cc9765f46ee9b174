package history

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/zjrosen/lanes/internal/git"
)

var base = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// makeHistory returns n linear commits in display order, ids prefixed.
func makeHistory(prefix string, n int) []git.Commit {
	commits := make([]git.Commit, n)
	for i := range commits {
		c := git.Commit{
			ID:      fmt.Sprintf("%s%04d", prefix, i),
			Author:  "Ada",
			Date:    base.Add(-time.Duration(i) * time.Minute),
			Message: fmt.Sprintf("commit %d", i),
		}
		if i+1 < n {
			c.Parents = []string{fmt.Sprintf("%s%04d", prefix, i+1)}
		}
		commits[i] = c
	}
	return commits
}

// fakeBackend serves pages of an in-memory history. Hooks override calls.
type fakeBackend struct {
	git.Backend

	mu          sync.Mutex
	history     []git.Commit
	logHook     func(ctx context.Context, call int, opts git.LogOptions) ([]git.Commit, error)
	fetchHook   func(ctx context.Context) error
	hasUpstream bool
	upToDate    bool
	logCalls    []git.LogOptions
	fetches     int
}

func (f *fakeBackend) setHistory(h []git.Commit) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.history = h
}

func (f *fakeBackend) Log(ctx context.Context, _ git.Repository, opts git.LogOptions) ([]git.Commit, error) {
	f.mu.Lock()
	f.logCalls = append(f.logCalls, opts)
	call := len(f.logCalls)
	hook := f.logHook
	history := f.history
	f.mu.Unlock()

	if hook != nil {
		return hook(ctx, call, opts)
	}
	return page(history, opts), nil
}

func (f *fakeBackend) lastLogCall() git.LogOptions {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logCalls[len(f.logCalls)-1]
}

func (f *fakeBackend) logCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.logCalls)
}

func page(history []git.Commit, opts git.LogOptions) []git.Commit {
	if opts.Skip >= len(history) {
		return []git.Commit{}
	}
	end := len(history)
	if opts.Limit > 0 && opts.Skip+opts.Limit < end {
		end = opts.Skip + opts.Limit
	}
	out := make([]git.Commit, end-opts.Skip)
	copy(out, history[opts.Skip:end])
	return out
}

func (f *fakeBackend) HasUpstream(context.Context, git.Repository) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hasUpstream, nil
}

func (f *fakeBackend) IsUpToDate(context.Context, git.Repository) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.upToDate, nil
}

func (f *fakeBackend) Fetch(ctx context.Context, _ git.Repository) error {
	f.mu.Lock()
	f.fetches++
	hook := f.fetchHook
	f.mu.Unlock()
	if hook != nil {
		return hook(ctx)
	}
	return nil
}

func (f *fakeBackend) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

// fakeStore is an in-memory SnapshotStore.
type fakeStore struct {
	mu    sync.Mutex
	saved map[string][]git.Commit
	saves int
}

func newFakeStore() *fakeStore {
	return &fakeStore{saved: make(map[string][]git.Commit)}
}

func (s *fakeStore) Load(_ context.Context, repo git.Repository) ([]git.Commit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saved[repo.Path], nil
}

func (s *fakeStore) Save(_ context.Context, repo git.Repository, commits []git.Commit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved[repo.Path] = commits
	s.saves++
	return nil
}

func (s *fakeStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}
