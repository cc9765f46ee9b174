// Package details loads and parses the diff of the selected commit and of
// working tree files.
package details

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/zjrosen/lanes/internal/cachemanager"
	"github.com/zjrosen/lanes/internal/diff"
	"github.com/zjrosen/lanes/internal/executor"
	"github.com/zjrosen/lanes/internal/git"
	"github.com/zjrosen/lanes/internal/history"
	"github.com/zjrosen/lanes/internal/log"
	"github.com/zjrosen/lanes/internal/pubsub"
)

// DefaultCacheTTL is how long a parsed commit diff stays cached.
const DefaultCacheTTL = 10 * time.Minute

// FileDiff is the parsed diff of one file.
type FileDiff struct {
	Path    string
	OldPath string
	Binary  bool
	Hunks   []diff.Hunk
	Added   int
	Removed int
	// Words holds word-level segments per hunk, keyed by line index. Nil
	// unless word diffs are enabled.
	Words []map[int][]diff.Segment
}

// Details is the parsed diff of a commit.
type Details struct {
	Repository git.Repository
	CommitID   string
	Files      []FileDiff
	Err        error // set when loading failed
}

// Stats sums added and removed lines over all files.
func (d Details) Stats() (added, removed int) {
	for _, f := range d.Files {
		added += f.Added
		removed += f.Removed
	}
	return added, removed
}

// CacheKey identifies a commit of a repository.
type CacheKey string

func cacheKey(repo git.Repository, id string) CacheKey {
	return CacheKey(repo.Path + ":" + id)
}

type request struct {
	repo git.Repository
	id   string
}

// Config configures a Controller.
type Config struct {
	Backend  git.Backend
	Pool     *executor.Pool                                  // file parsing; DefaultPoolSize when nil
	Executor executor.Executor                               // selection loads; Unbounded when nil
	Cache    cachemanager.CacheManager[CacheKey, []FileDiff] // in-memory when nil
	CacheTTL time.Duration
	WordDiff bool
}

// Controller reacts to commit selection: it loads the commit diff, splits
// it per file, parses the files on the pool and publishes the result.
// Parsed diffs are cached by repository and commit id.
type Controller struct {
	backend  git.Backend
	pool     *executor.Pool
	exec     executor.Executor
	diffs    *cachemanager.ReadThroughCache[CacheKey, []FileDiff, request]
	ttl      time.Duration
	wordDiff bool
	broker   *pubsub.Broker[Details]

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
}

// New creates a Controller.
func New(cfg Config) *Controller {
	c := &Controller{
		backend:  cfg.Backend,
		pool:     cfg.Pool,
		exec:     cfg.Executor,
		ttl:      cfg.CacheTTL,
		wordDiff: cfg.WordDiff,
		broker:   pubsub.NewBroker[Details](),
	}
	if c.pool == nil {
		c.pool = executor.NewPool(executor.DefaultPoolSize())
	}
	if c.exec == nil {
		c.exec = executor.NewUnbounded()
	}
	if c.ttl <= 0 {
		c.ttl = DefaultCacheTTL
	}
	cache := cfg.Cache
	if cache == nil {
		cache = cachemanager.NewInMemoryCacheManager[CacheKey, []FileDiff]("commit-diffs", c.ttl, cachemanager.DefaultCleanupInterval)
	}
	c.diffs = cachemanager.NewReadThroughCache[CacheKey, []FileDiff, request](cache, c.loadCommit, false)
	return c
}

// Broker exposes DetailsLoaded events.
func (c *Controller) Broker() *pubsub.Broker[Details] {
	return c.broker
}

// Subscribe returns DetailsLoaded events until ctx is done.
func (c *Controller) Subscribe(ctx context.Context) <-chan pubsub.Event[Details] {
	return c.broker.Subscribe(ctx)
}

// Close cancels the pending load and closes subscriptions.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Unlock()
	c.broker.Close()
}

// Run follows the synchronizer's selection until ctx is done.
func (c *Controller) Run(ctx context.Context, source pubsub.Subscriber[history.Change]) {
	events := source.Subscribe(ctx)
	for ev := range events {
		switch ev.Type {
		case pubsub.ActiveCommitEvent:
			if ev.Payload.HasRepository && ev.Payload.Active != "" {
				c.Select(ev.Payload.Repository, ev.Payload.Active)
			} else {
				c.clear()
			}
		case pubsub.RepositoryChangedEvent:
			c.clear()
		}
	}
}

// Select loads the details of commit id in the background, superseding any
// pending load. The result is published as a DetailsLoaded event.
func (c *Controller) Select(repo git.Repository, id string) {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.gen++
	gen := c.gen
	c.cancel = cancel
	c.mu.Unlock()

	c.exec.Go(func() {
		defer cancel()
		d, err := c.Load(ctx, repo, id)
		if errors.Is(err, context.Canceled) {
			return
		}

		c.mu.Lock()
		current := c.gen == gen
		c.mu.Unlock()
		if !current {
			log.Debug(log.CatDiff, "dropping superseded details", "commit", id)
			return
		}
		c.broker.Publish(pubsub.DetailsLoadedEvent, d)
	})
}

// clear cancels the pending load.
func (c *Controller) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.gen++
}

// Load returns the parsed diff of commit id, from cache when possible.
// Failures are returned and also recorded in Details.Err.
func (c *Controller) Load(ctx context.Context, repo git.Repository, id string) (Details, error) {
	d := Details{Repository: repo, CommitID: id}
	files, err := c.diffs.GetWithRefresh(ctx, cacheKey(repo, id), request{repo: repo, id: id}, c.ttl)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			log.ErrorErr(log.CatDiff, "loading commit diff failed", err, "commit", id)
		}
		d.Err = err
		return d, err
	}
	d.Files = files
	return d, nil
}

func (c *Controller) loadCommit(ctx context.Context, req request) ([]FileDiff, error) {
	start := time.Now()
	raw, err := c.backend.CommitDiff(ctx, req.repo, req.id)
	if err != nil {
		return nil, fmt.Errorf("commit diff %s: %w", req.id, err)
	}

	files, err := executor.Map(ctx, c.pool, diff.SplitFiles(raw), c.parseFile)
	if err != nil {
		return nil, err
	}
	log.Debug(log.CatDiff, "parsed commit diff", "commit", req.id, "files", len(files), "took", time.Since(start))
	return files, nil
}

func (c *Controller) parseFile(ctx context.Context, fp diff.FilePatch) (FileDiff, error) {
	f := FileDiff{Path: fp.Path(), OldPath: fp.OldPath, Binary: fp.Binary}
	f.Hunks = diff.Parse(fp.Raw)
	f.Added, f.Removed = diff.Stats(f.Hunks)
	if c.wordDiff && !fp.Binary {
		f.Words = make([]map[int][]diff.Segment, len(f.Hunks))
		for i, h := range f.Hunks {
			f.Words[i] = diff.HunkWordDiff(ctx, h)
		}
	}
	return f, ctx.Err()
}

// FileDiff returns the parsed working tree diff of file, against the index
// or, when cached is set, the staged diff against HEAD. An empty file diffs
// the whole tree.
func (c *Controller) FileDiff(ctx context.Context, repo git.Repository, file string, cached bool) ([]FileDiff, error) {
	var (
		raw string
		err error
	)
	if cached {
		raw, err = c.backend.DiffCached(ctx, repo, file)
	} else {
		raw, err = c.backend.Diff(ctx, repo, file)
	}
	if err != nil {
		return nil, fmt.Errorf("diff %s: %w", file, err)
	}
	patches := diff.SplitFiles(raw)
	if len(patches) == 0 {
		return []FileDiff{{Path: file, Hunks: diff.Parse(raw)}}, nil
	}
	return executor.Map(ctx, c.pool, patches, c.parseFile)
}

// Stashes lists the stash entries of repo.
func (c *Controller) Stashes(ctx context.Context, repo git.Repository) ([]git.StashEntry, error) {
	return c.backend.StashList(ctx, repo)
}

// Invalidate drops cached diffs of repo.
func (c *Controller) Invalidate(ctx context.Context, repo git.Repository) {
	c.diffs.Invalidate(ctx, repo.Path+":")
}
