package history

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/zjrosen/lanes/internal/executor"
	"github.com/zjrosen/lanes/internal/git"
	"github.com/zjrosen/lanes/internal/log"
	"github.com/zjrosen/lanes/internal/pubsub"
)

// DefaultRemoteTimeout bounds the fetch of a remote-aware refresh.
const DefaultRemoteTimeout = 30 * time.Second

var (
	// ErrNoRepository is returned by LoadMore when no repository is selected.
	ErrNoRepository = errors.New("no repository selected")
	// ErrLoadInProgress is returned by LoadMore while another LoadMore runs.
	ErrLoadInProgress = errors.New("load more already in progress")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("synchronizer closed")
	// ErrBackendPanic wraps a panic recovered from a backend call.
	ErrBackendPanic = errors.New("backend panicked")
)

// SnapshotStore persists the last synchronized window of a repository.
type SnapshotStore interface {
	Load(ctx context.Context, repo git.Repository) ([]git.Commit, error)
	Save(ctx context.Context, repo git.Repository, commits []git.Commit) error
}

// Snapshot is an immutable view of the synchronizer state.
type Snapshot struct {
	Repository    git.Repository
	HasRepository bool
	Commits       []git.Commit
	WindowSize    int
	Active        string
}

// Change is the payload of every event the synchronizer publishes.
type Change struct {
	Snapshot
	Err error // set for OperationFailedEvent
}

// Config configures a Synchronizer.
type Config struct {
	Backend       git.Backend
	Executor      executor.Executor // ad hoc backend calls; Unbounded when nil
	PageSize      int               // DefaultPageSize when <= 0
	RemoteTimeout time.Duration     // DefaultRemoteTimeout when <= 0
	LogOptions    git.LogOptions    // Scope and merge filtering; Skip/Limit are ignored
	Store         SnapshotStore     // optional
}

// Synchronizer owns the commit collection of the active repository. A
// single loop goroutine mutates all state; public methods post requests to
// it and backend calls run on the injected executor. Results are applied
// in the order their operations started, and results of cancelled
// operations are dropped.
type Synchronizer struct {
	backend  git.Backend
	exec     executor.Executor
	timeout  time.Duration
	store    SnapshotStore
	broker   *pubsub.Broker[Change]
	requests chan func()
	results  chan result
	done     chan struct{}
	stopped  chan struct{}
	once     sync.Once
	snap     atomic.Pointer[Snapshot]

	handlersMu sync.RWMutex
	onTimeout  func(error)
	onError    func(error)

	// Loop-owned state.
	coll    *Collection
	repo    git.Repository
	hasRepo bool
	active  string
	logOpts git.LogOptions
	seq     uint64
	quick   *operation
	remote  *operation
	more    *operation
	queue   []*operation
}

// New creates a Synchronizer and starts its loop. Call Close to stop it.
func New(cfg Config) *Synchronizer {
	exec := cfg.Executor
	if exec == nil {
		exec = executor.NewUnbounded()
	}
	timeout := cfg.RemoteTimeout
	if timeout <= 0 {
		timeout = DefaultRemoteTimeout
	}
	opts := cfg.LogOptions
	opts.Skip, opts.Limit = 0, 0

	s := &Synchronizer{
		backend:  cfg.Backend,
		exec:     exec,
		timeout:  timeout,
		store:    cfg.Store,
		broker:   pubsub.NewBroker[Change](),
		requests: make(chan func()),
		results:  make(chan result),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
		coll:     NewCollection(cfg.PageSize),
		logOpts:  opts,
	}
	s.snap.Store(&Snapshot{WindowSize: s.coll.WindowSize()})
	go s.loop()
	return s
}

func (s *Synchronizer) loop() {
	defer close(s.stopped)
	for {
		select {
		case <-s.done:
			s.cancelAll()
			return
		case req := <-s.requests:
			req()
		case res := <-s.results:
			s.complete(res)
		}
	}
}

// post runs f on the loop. It returns false once the synchronizer is closed.
func (s *Synchronizer) post(f func()) bool {
	select {
	case s.requests <- f:
		return true
	case <-s.done:
		return false
	}
}

// Close stops the loop, cancels in-flight operations and closes subscriptions.
func (s *Synchronizer) Close() {
	s.once.Do(func() {
		close(s.done)
		<-s.stopped
		s.broker.Close()
	})
}

// Subscribe returns a channel of change events until ctx is done.
func (s *Synchronizer) Subscribe(ctx context.Context) <-chan pubsub.Event[Change] {
	return s.broker.Subscribe(ctx)
}

// Broker exposes the event broker, e.g. for Bubble Tea listeners.
func (s *Synchronizer) Broker() *pubsub.Broker[Change] {
	return s.broker
}

// SetTimeoutHandler registers the handler for network timeouts.
func (s *Synchronizer) SetTimeoutHandler(h func(error)) {
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()
	s.onTimeout = h
}

// SetErrorHandler registers the handler for failures other than timeouts
// and cancellation.
func (s *Synchronizer) SetErrorHandler(h func(error)) {
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()
	s.onError = h
}

// Current returns the latest snapshot.
func (s *Synchronizer) Current() Snapshot {
	return *s.snap.Load()
}

// Commits returns the synchronized commits in display order.
func (s *Synchronizer) Commits() []git.Commit {
	return s.snap.Load().Commits
}

// WindowSize returns the materialized history depth.
func (s *Synchronizer) WindowSize() int {
	return s.snap.Load().WindowSize
}

// ActiveCommit returns the selected commit id, or "" when none.
func (s *Synchronizer) ActiveCommit() string {
	return s.snap.Load().Active
}

// Filter returns the synchronized commits matching query.
func (s *Synchronizer) Filter(query string) []git.Commit {
	return Filter(s.Commits(), query)
}

// Refresh re-reads the current window from the backend, replacing the
// collection content, then starts a remote-aware refresh. In-flight quick
// and remote operations are cancelled.
func (s *Synchronizer) Refresh() {
	s.post(s.refresh)
}

// RefreshRemote fetches from the upstream (unless there is none or it is up
// to date) and re-reads the current window.
func (s *Synchronizer) RefreshRemote() {
	s.post(s.startRemote)
}

// LoadMore reads the next page below the window and, if it is non-empty,
// grows the window and merges it. It blocks until the page is merged.
func (s *Synchronizer) LoadMore(ctx context.Context) (int, error) {
	reply := make(chan moreResult, 1)
	if !s.post(func() { s.startMore(ctx, reply) }) {
		return 0, ErrClosed
	}
	select {
	case r := <-reply:
		return r.n, r.err
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-s.done:
		return 0, ErrClosed
	}
}

// OnRepositoryChanged cancels everything, resets the collection to an
// empty one-page window, clears the selection and refreshes repo.
func (s *Synchronizer) OnRepositoryChanged(repo git.Repository) {
	s.post(func() {
		s.reset()
		s.repo, s.hasRepo = repo, true
		log.Info(log.CatSync, "repository changed", "path", repo.Path)
		s.publish(pubsub.RepositoryChangedEvent, nil)
		if s.store != nil {
			s.start(opSnapshot, nil)
		}
		s.refresh()
	})
}

// OnRepositoryDeselected cancels everything and resets without refreshing.
func (s *Synchronizer) OnRepositoryDeselected() {
	s.post(func() {
		s.reset()
		s.repo, s.hasRepo = git.Repository{}, false
		log.Info(log.CatSync, "repository deselected")
		s.publish(pubsub.RepositoryChangedEvent, nil)
	})
}

// SetActiveCommit selects a commit; "" clears the selection.
func (s *Synchronizer) SetActiveCommit(id string) {
	s.post(func() {
		if s.active == id {
			return
		}
		s.active = id
		s.publish(pubsub.ActiveCommitEvent, nil)
	})
}

// SetLogOptions changes scope and merge filtering and refreshes.
func (s *Synchronizer) SetLogOptions(opts git.LogOptions) {
	s.post(func() {
		opts.Skip, opts.Limit = 0, 0
		if s.logOpts == opts {
			return
		}
		s.logOpts = opts
		s.refresh()
	})
}

// idle reports whether no operation is queued or running. Used by tests.
func (s *Synchronizer) idle() bool {
	reply := make(chan bool, 1)
	if !s.post(func() { reply <- len(s.queue) == 0 && s.more == nil }) {
		return true
	}
	return <-reply
}

// slotState reports the state of a slot. Used by tests.
func (s *Synchronizer) slotState(kind opKind) OpState {
	reply := make(chan OpState, 1)
	if !s.post(func() {
		op := s.slot(kind)
		if op == nil {
			reply <- StateIdle
			return
		}
		reply <- op.state
	}) {
		return StateIdle
	}
	return <-reply
}

// --- loop-only methods below ---

func (s *Synchronizer) slot(kind opKind) *operation {
	switch kind {
	case opQuick:
		return s.quick
	case opRemote:
		return s.remote
	case opMore:
		return s.more
	}
	return nil
}

func (s *Synchronizer) setSlot(kind opKind, op *operation) {
	switch kind {
	case opQuick:
		s.quick = op
	case opRemote:
		s.remote = op
	case opMore:
		s.more = op
	}
}

func (s *Synchronizer) reset() {
	s.cancelAll()
	s.coll.Reset()
	s.active = ""
}

func (s *Synchronizer) refresh() {
	if !s.hasRepo {
		return
	}
	s.cancel(s.quick)
	s.cancel(s.remote)
	s.start(opQuick, nil)
}

func (s *Synchronizer) startRemote() {
	if !s.hasRepo {
		return
	}
	s.cancel(s.remote)
	s.start(opRemote, nil)
}

func (s *Synchronizer) startMore(ctx context.Context, reply chan moreResult) {
	switch {
	case !s.hasRepo:
		reply <- moreResult{err: ErrNoRepository}
		return
	case s.more != nil:
		reply <- moreResult{err: ErrLoadInProgress}
		return
	case ctx.Err() != nil:
		reply <- moreResult{err: ctx.Err()}
		return
	}
	op := s.start(opMore, reply)
	// Abandon the operation when the caller gives up.
	stop := context.AfterFunc(ctx, op.cancel)
	go func() {
		<-op.ctx.Done()
		stop()
	}()
}

// start creates an operation, queues it and runs its task on the executor.
func (s *Synchronizer) start(kind opKind, reply chan moreResult) *operation {
	s.seq++
	ctx, cancel := context.WithCancel(context.Background())
	op := &operation{
		id:     uuid.New(),
		seq:    s.seq,
		kind:   kind,
		ctx:    ctx,
		cancel: cancel,
		repo:   s.repo,
		window: s.coll.WindowSize(),
		opts:   s.logOpts,
		state:  StateRunning,
		reply:  reply,
	}
	s.setSlot(kind, op)
	s.queue = append(s.queue, op)
	log.Debug(log.CatSync, "operation started", "op", op.shortID(), "kind", kind, "seq", op.seq, "window", op.window)

	task := s.task(op)
	s.exec.Go(func() {
		commits, skipped, err := runTask(task)
		select {
		case s.results <- result{op: op, commits: commits, err: err, skipped: skipped}:
		case <-s.done:
		}
	})
	return op
}

// runTask runs task, turning a panic into an error so the operation
// still completes and its slot returns to idle.
func runTask(task func() ([]git.Commit, bool, error)) (commits []git.Commit, skipped bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			commits, skipped = nil, false
			err = fmt.Errorf("%w: %v", ErrBackendPanic, r)
		}
	}()
	return task()
}

// task returns the backend work of op. It must not touch loop state.
func (s *Synchronizer) task(op *operation) func() ([]git.Commit, bool, error) {
	backend, store, timeout := s.backend, s.store, s.timeout
	ctx, repo := op.ctx, op.repo
	opts := op.opts

	switch op.kind {
	case opSnapshot:
		return func() ([]git.Commit, bool, error) {
			commits, err := store.Load(ctx, repo)
			return commits, false, err
		}
	case opMore:
		opts.Skip, opts.Limit = op.window, s.coll.PageSize()
		return func() ([]git.Commit, bool, error) {
			commits, err := backend.Log(ctx, repo, opts)
			return commits, false, err
		}
	case opRemote:
		opts.Limit = op.window
		return func() ([]git.Commit, bool, error) {
			return remoteRefresh(ctx, backend, repo, opts, timeout)
		}
	default:
		opts.Limit = op.window
		return func() ([]git.Commit, bool, error) {
			commits, err := backend.Log(ctx, repo, opts)
			return commits, false, err
		}
	}
}

// remoteRefresh fetches if needed and re-reads the window. skipped is true
// when there is no upstream or it is already up to date.
func remoteRefresh(ctx context.Context, backend git.Backend, repo git.Repository, opts git.LogOptions, timeout time.Duration) ([]git.Commit, bool, error) {
	hasUpstream, err := backend.HasUpstream(ctx, repo)
	if err != nil {
		return nil, false, fmt.Errorf("checking upstream: %w", err)
	}
	if !hasUpstream {
		return nil, true, nil
	}

	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	upToDate, err := backend.IsUpToDate(fetchCtx, repo)
	if err != nil {
		return nil, false, timeoutError(ctx, fetchCtx, fmt.Errorf("checking upstream state: %w", err))
	}
	if upToDate {
		return nil, true, nil
	}
	if err := backend.Fetch(fetchCtx, repo); err != nil {
		return nil, false, timeoutError(ctx, fetchCtx, fmt.Errorf("fetching: %w", err))
	}

	commits, err := backend.Log(ctx, repo, opts)
	return commits, false, err
}

// timeoutError maps an expired fetch deadline to git.ErrTimeout unless the
// operation itself was cancelled.
func timeoutError(parent, fetchCtx context.Context, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if errors.Is(fetchCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, git.ErrTimeout) {
		return fmt.Errorf("%w: %w", git.ErrTimeout, err)
	}
	return err
}

// cancel moves a running operation to Cancelled and drops it from the queue.
func (s *Synchronizer) cancel(op *operation) {
	if op == nil || op.state != StateRunning {
		return
	}
	op.cancel()
	op.state = StateCancelled
	log.Debug(log.CatSync, "operation cancelled", "op", op.shortID(), "kind", op.kind)

	for i, queued := range s.queue {
		if queued == op {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			break
		}
	}
	if s.slot(op.kind) == op {
		s.setSlot(op.kind, nil)
	}
	if op.reply != nil {
		op.reply <- moreResult{err: context.Canceled}
	}
}

func (s *Synchronizer) cancelAll() {
	for _, op := range append([]*operation(nil), s.queue...) {
		s.cancel(op)
	}
}

// complete records a worker result and applies every finished operation at
// the head of the queue.
func (s *Synchronizer) complete(res result) {
	op := res.op
	if op.state != StateRunning {
		log.Debug(log.CatSync, "discarding result of cancelled operation", "op", op.shortID(), "kind", op.kind)
		return
	}
	op.finished = true
	op.commits, op.err, op.skipped = res.commits, res.err, res.skipped

	for len(s.queue) > 0 && s.queue[0].finished {
		next := s.queue[0]
		s.queue = s.queue[1:]
		s.apply(next)
	}
}

func (s *Synchronizer) apply(op *operation) {
	op.cancel()
	if s.slot(op.kind) == op {
		s.setSlot(op.kind, nil)
	}

	if op.err != nil {
		op.state = StateFailed
		if op.reply != nil {
			op.reply <- moreResult{err: op.err}
		}
		s.fail(op, op.err)
		return
	}
	op.state = StateSucceeded

	switch op.kind {
	case opSnapshot:
		if added := s.coll.MergeAdditive(truncate(op.commits, s.coll.WindowSize())); added > 0 {
			log.Debug(log.CatSync, "snapshot restored", "commits", added)
			s.publish(pubsub.CommitsChangedEvent, nil)
		}

	case opQuick:
		s.merge(op)
		s.publish(pubsub.CommitsChangedEvent, nil)
		s.startRemote()

	case opRemote:
		if op.skipped {
			log.Debug(log.CatSync, "remote refresh skipped", "op", op.shortID())
			return
		}
		s.merge(op)
		s.publish(pubsub.RemoteRefreshedEvent, nil)

	case opMore:
		n := len(op.commits)
		if n > 0 {
			s.coll.Grow()
			s.coll.MergeAdditive(op.commits)
			s.publish(pubsub.CommitsChangedEvent, nil)
		}
		log.Debug(log.CatSync, "loaded more", "op", op.shortID(), "commits", n, "window", s.coll.WindowSize())
		op.reply <- moreResult{n: n}
	}
}

// merge applies a window read. A read started before the window grew only
// covers part of it, so it is merged additively.
func (s *Synchronizer) merge(op *operation) {
	if op.window < s.coll.WindowSize() {
		s.coll.MergeAdditive(op.commits)
		return
	}
	added, removed := s.coll.MergeAuthoritative(op.commits)
	log.Debug(log.CatSync, "window merged", "op", op.shortID(), "kind", op.kind, "added", added, "removed", removed)

	if s.store != nil {
		store, repo, commits := s.store, s.repo, s.coll.Commits()
		s.exec.Go(func() {
			if err := store.Save(context.Background(), repo, commits); err != nil {
				log.ErrorErr(log.CatStore, "saving snapshot failed", err, "path", repo.Path)
			}
		})
	}
}

func (s *Synchronizer) fail(op *operation, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}

	s.handlersMu.RLock()
	onTimeout, onError := s.onTimeout, s.onError
	s.handlersMu.RUnlock()

	if errors.Is(err, git.ErrTimeout) {
		log.Warn(log.CatSync, "operation timed out", "op", op.shortID(), "kind", op.kind)
		if onTimeout != nil {
			onTimeout(err)
		}
		return
	}

	log.ErrorErr(log.CatSync, "operation failed", err, "op", op.shortID(), "kind", op.kind)
	if op.kind != opMore {
		s.publish(pubsub.OperationFailedEvent, err)
	}
	if onError != nil && op.kind != opMore {
		onError(err)
	}
}

// publish stores a fresh snapshot and announces it.
func (s *Synchronizer) publish(event pubsub.EventType, err error) {
	snap := &Snapshot{
		Repository:    s.repo,
		HasRepository: s.hasRepo,
		Commits:       s.coll.Commits(),
		WindowSize:    s.coll.WindowSize(),
		Active:        s.active,
	}
	s.snap.Store(snap)
	s.broker.Publish(event, Change{Snapshot: *snap, Err: err})
}

func truncate(commits []git.Commit, n int) []git.Commit {
	if len(commits) > n {
		return commits[:n]
	}
	return commits
}
