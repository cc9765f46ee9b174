package app

import (
	"context"
	"fmt"
	"time"

	"github.com/zjrosen/lanes/internal/config"
	"github.com/zjrosen/lanes/internal/details"
	"github.com/zjrosen/lanes/internal/diff"
	"github.com/zjrosen/lanes/internal/executor"
	"github.com/zjrosen/lanes/internal/flags"
	"github.com/zjrosen/lanes/internal/git"
	"github.com/zjrosen/lanes/internal/history"
	"github.com/zjrosen/lanes/internal/log"
	"github.com/zjrosen/lanes/internal/paths"
	"github.com/zjrosen/lanes/internal/pubsub"
	"github.com/zjrosen/lanes/internal/remote"
	"github.com/zjrosen/lanes/internal/store"
	"github.com/zjrosen/lanes/internal/tracing"
	"github.com/zjrosen/lanes/internal/ui/historyview"
	"github.com/zjrosen/lanes/internal/watcher"
)

// Services are the long-lived components behind the TUI and the
// subcommands. Create them with NewServices and release them with Close.
type Services struct {
	Config      config.Config
	Backend     git.Backend
	Flags       *flags.Registry
	Sync        *history.Synchronizer
	Details     *details.Controller
	Remote      *remote.Service
	Notices     *pubsub.Broker[historyview.Notice]
	Highlighter *diff.Highlighter // nil when highlighting is off

	repo    git.Repository
	store   *store.SnapshotStore
	tracing *tracing.Provider
	exec    *executor.Unbounded
	pool    *executor.Pool
	watcher *watcher.Watcher
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewServices wires the components from cfg. backend overrides the one
// named by cfg.Backend when non-nil.
func NewServices(cfg config.Config, backend git.Backend) (*Services, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	provider, err := tracing.NewProvider(cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("creating tracing provider: %w", err)
	}

	if backend == nil {
		backend = newBackend(cfg.Backend)
	}
	backend = tracing.WrapBackend(backend, provider.Tracer())

	ctx, cancel := context.WithCancel(context.Background())
	s := &Services{
		Config:  cfg,
		Backend: backend,
		Flags:   flags.New(cfg.Flags),
		Notices: pubsub.NewBroker[historyview.Notice](),
		tracing: provider,
		exec:    executor.NewUnbounded(),
		pool:    executor.NewPool(executor.DefaultPoolSize()),
		ctx:     ctx,
		cancel:  cancel,
	}
	if unknown := s.Flags.Unknown(); len(unknown) > 0 {
		log.Warn(log.CatConfig, "Unknown feature flags", "flags", unknown)
	}
	if cfg.Diff.Highlight {
		s.Highlighter = diff.NewHighlighter(cfg.Diff.Style)
	}

	hc := history.Config{
		Backend:    backend,
		Executor:   s.exec,
		PageSize:   cfg.History.PageSize,
		LogOptions: s.LogOptions(),
	}
	if cfg.Store.Path != "" {
		st, err := store.Open(cfg.Store.Path)
		if err != nil {
			// Snapshots only speed up startup.
			log.ErrorErr(log.CatStore, "Failed to open snapshot store", err, "path", cfg.Store.Path)
		} else {
			s.store = st
			hc.Store = st
		}
	}
	s.Sync = history.New(hc)
	s.Sync.SetTimeoutHandler(func(err error) {
		s.notify(historyview.NoticeWarn, "Remote refresh timed out")
		log.Warn(log.CatSync, "Remote refresh timed out", "error", err)
	})
	s.Sync.SetErrorHandler(func(err error) {
		s.notify(historyview.NoticeError, fmt.Sprintf("Loading history failed: %v", err))
	})

	s.Details = details.New(details.Config{
		Backend:  backend,
		Pool:     s.pool,
		Executor: s.exec,
		CacheTTL: cfg.Diff.CacheTTL,
		WordDiff: cfg.Diff.WordDiff,
	})
	go s.Details.Run(ctx, s.Sync)

	s.Remote = remote.NewService(remote.Config{
		Backend:   backend,
		Executor:  s.exec,
		Refresher: s.Sync,
		Timeout:   cfg.Remote.Timeout,
	})
	s.Remote.SetErrorHandler(func(err error) {
		log.ErrorErr(log.CatRemote, "Remote operation failed", err)
	})

	return s, nil
}

func newBackend(name string) git.Backend {
	if name == config.BackendGoGit {
		return git.NewGoGitBackend()
	}
	return git.NewRealExecutor()
}

// LogOptions returns the history filters from the config.
func (s *Services) LogOptions() git.LogOptions {
	return git.LogOptions{
		AllBranches: s.Config.History.AllBranches,
		NoMerges:    s.Config.History.NoMerges,
	}
}

// Open makes the repository containing path the active one and starts
// watching its git directory when watching is enabled.
func (s *Services) Open(path string) (git.Repository, error) {
	repo, dirs, err := ResolveRepository(path)
	if err != nil {
		return git.Repository{}, err
	}

	s.stopWatcher()
	s.repo = repo
	s.Sync.OnRepositoryChanged(repo)
	log.Info(log.CatSync, "Opened repository", "path", repo.Path)

	if s.Config.Watch.Enabled {
		s.startWatcher(dirs)
	}
	return s.repo, nil
}

// ResolveRepository finds the repository containing path. Its Path is the
// work tree, or the git directory of a bare repository.
func ResolveRepository(path string) (git.Repository, paths.GitDirs, error) {
	dirs, err := paths.ResolveGitDirs(path)
	if err != nil {
		return git.Repository{}, paths.GitDirs{}, err
	}
	root := dirs.WorkTree
	if root == "" {
		root = dirs.GitDir
	}
	return git.Repository{Path: root}, dirs, nil
}

// Repository returns the repository passed to the last Open.
func (s *Services) Repository() git.Repository {
	return s.repo
}

// Watcher returns the git directory watcher, or nil when not watching.
func (s *Services) Watcher() *watcher.Watcher {
	return s.watcher
}

// Context is cancelled by Close.
func (s *Services) Context() context.Context {
	return s.ctx
}

// HandleGitDirChanged drops cached diffs of the active repository and
// reloads its history.
func (s *Services) HandleGitDirChanged() {
	s.Details.Invalidate(s.ctx, s.repo)
	s.Sync.Refresh()
}

func (s *Services) startWatcher(dirs paths.GitDirs) {
	cfg := watcher.DefaultConfig(dirs)
	if s.Config.Watch.Debounce > 0 {
		cfg.DebounceDur = s.Config.Watch.Debounce
	}
	w, err := watcher.New(cfg)
	if err != nil {
		log.Warn(log.CatWatcher, "Failed to create watcher", "error", err)
		return
	}
	if _, err := w.Start(); err != nil {
		log.Warn(log.CatWatcher, "Failed to start watcher", "dir", dirs.GitDir, "error", err)
		_ = w.Stop()
		return
	}
	s.watcher = w
}

func (s *Services) stopWatcher() {
	if s.watcher == nil {
		return
	}
	if err := s.watcher.Stop(); err != nil {
		log.Warn(log.CatWatcher, "Failed to stop watcher", "error", err)
	}
	s.watcher = nil
}

func (s *Services) notify(level historyview.NoticeLevel, text string) {
	s.Notices.Publish(pubsub.OperationFailedEvent, historyview.Notice{Level: level, Text: text})
}

// Close stops the watcher, waits for remote work and releases everything.
func (s *Services) Close() error {
	s.stopWatcher()
	s.Remote.Wait()
	s.cancel()
	s.Details.Close()
	s.Sync.Close()
	s.Notices.Close()

	var firstErr error
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			firstErr = err
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.tracing.Shutdown(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
