package git

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/format/index"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
	"github.com/go-git/go-git/v5/storage/filesystem"
	"github.com/pmezard/go-difflib/difflib"
)

const defaultRemote = "origin"

// stashReflog is the reflog path of refs/stash relative to the git dir.
const stashReflog = "logs/refs/stash"

// Compile-time check that GoGitBackend implements Backend.
var _ Backend = (*GoGitBackend)(nil)

// GoGitBackend implements Backend in-process with go-git.
// Opened repositories are cached by path.
type GoGitBackend struct {
	mu    sync.Mutex
	repos map[string]*gogit.Repository
}

// NewGoGitBackend creates a GoGitBackend with an empty repository cache.
func NewGoGitBackend() *GoGitBackend {
	return &GoGitBackend{repos: make(map[string]*gogit.Repository)}
}

// Register binds path to an already opened repository, e.g. an in-memory one.
func (b *GoGitBackend) Register(path string, repo *gogit.Repository) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.repos[path] = repo
}

func (b *GoGitBackend) open(repo Repository) (*gogit.Repository, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if r, ok := b.repos[repo.Path]; ok {
		return r, nil
	}
	r, err := gogit.PlainOpenWithOptions(repo.Path, &gogit.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, gogit.ErrRepositoryNotExists) {
			return nil, fmt.Errorf("%w: %s", ErrNotGitRepo, repo.Path)
		}
		return nil, fmt.Errorf("opening %s: %w", repo.Path, err)
	}
	b.repos[repo.Path] = r
	return r, nil
}

// Log walks history from HEAD (or every ref) in committer-time order.
func (b *GoGitBackend) Log(ctx context.Context, repo Repository, opts LogOptions) ([]Commit, error) {
	r, err := b.open(repo)
	if err != nil {
		return nil, err
	}

	logOpts := &gogit.LogOptions{Order: gogit.LogOrderCommitterTime, All: opts.AllBranches}
	if !opts.AllBranches {
		head, err := r.Head()
		if err != nil {
			if errors.Is(err, plumbing.ErrReferenceNotFound) {
				return []Commit{}, nil
			}
			return nil, fmt.Errorf("resolving HEAD: %w", err)
		}
		logOpts.From = head.Hash()
	}

	iter, err := r.Log(logOpts)
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return []Commit{}, nil
		}
		return nil, fmt.Errorf("git log: %w", err)
	}
	defer iter.Close()

	commits := []Commit{}
	skipped := 0
	err = iter.ForEach(func(c *object.Commit) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if opts.NoMerges && c.NumParents() > 1 {
			return nil
		}
		if skipped < opts.Skip {
			skipped++
			return nil
		}
		if opts.Limit > 0 && len(commits) >= opts.Limit {
			return storer.ErrStop
		}
		commits = append(commits, toCommit(c))
		return nil
	})
	if err != nil {
		return nil, contextError(err)
	}
	return commits, nil
}

func toCommit(c *object.Commit) Commit {
	parents := make([]string, 0, len(c.ParentHashes))
	for _, p := range c.ParentHashes {
		parents = append(parents, p.String())
	}
	return Commit{
		ID:      c.Hash.String(),
		Author:  c.Author.Name,
		Date:    c.Author.When,
		Message: strings.TrimRight(c.Message, "\n"),
		Parents: parents,
	}
}

// tracking returns the remote name and merge ref HEAD tracks.
func tracking(r *gogit.Repository) (string, plumbing.ReferenceName, error) {
	head, err := r.Head()
	if err != nil {
		return "", "", fmt.Errorf("%w: %w", ErrNoUpstream, err)
	}
	if !head.Name().IsBranch() {
		return "", "", fmt.Errorf("%w: detached HEAD", ErrNoUpstream)
	}
	cfg, err := r.Config()
	if err != nil {
		return "", "", fmt.Errorf("reading config: %w", err)
	}
	branch, ok := cfg.Branches[head.Name().Short()]
	if !ok || branch.Remote == "" || branch.Merge == "" {
		return "", "", fmt.Errorf("%w: %s", ErrNoUpstream, head.Name().Short())
	}
	return branch.Remote, branch.Merge, nil
}

func remoteName(r *gogit.Repository) string {
	if remote, _, err := tracking(r); err == nil {
		return remote
	}
	return defaultRemote
}

// Fetch fetches the tracked (or default) remote.
func (b *GoGitBackend) Fetch(ctx context.Context, repo Repository) error {
	return b.fetch(ctx, repo, false)
}

// FetchPrune fetches and prunes stale remote-tracking refs.
func (b *GoGitBackend) FetchPrune(ctx context.Context, repo Repository) error {
	return b.fetch(ctx, repo, true)
}

func (b *GoGitBackend) fetch(ctx context.Context, repo Repository, prune bool) error {
	r, err := b.open(repo)
	if err != nil {
		return err
	}
	err = r.FetchContext(ctx, &gogit.FetchOptions{RemoteName: remoteName(r), Prune: prune})
	return remoteError(ctx, err)
}

// Pull fast-forwards the worktree to its upstream. go-git cannot merge, so a
// diverged branch surfaces as a PullConflictError.
func (b *GoGitBackend) Pull(ctx context.Context, repo Repository) error {
	r, err := b.open(repo)
	if err != nil {
		return err
	}
	remote, merge, err := tracking(r)
	if err != nil {
		return err
	}
	wt, err := r.Worktree()
	if err != nil {
		return fmt.Errorf("opening worktree: %w", err)
	}
	err = wt.PullContext(ctx, &gogit.PullOptions{RemoteName: remote, ReferenceName: merge})
	if errors.Is(err, gogit.ErrNonFastForwardUpdate) || errors.Is(err, gogit.ErrUnstagedChanges) {
		return &PullConflictError{Message: err.Error()}
	}
	return remoteError(ctx, err)
}

// Push pushes to the tracked (or default) remote.
func (b *GoGitBackend) Push(ctx context.Context, repo Repository, force bool) error {
	r, err := b.open(repo)
	if err != nil {
		return err
	}
	err = r.PushContext(ctx, &gogit.PushOptions{RemoteName: remoteName(r), Force: force})
	if err != nil && (errors.Is(err, gogit.ErrNonFastForwardUpdate) ||
		strings.Contains(err.Error(), "non-fast-forward")) {
		return fmt.Errorf("%w: %w", ErrBranchBehind, err)
	}
	return remoteError(ctx, err)
}

// remoteError normalizes results of network operations.
func remoteError(ctx context.Context, err error) error {
	if err == nil || errors.Is(err, gogit.NoErrAlreadyUpToDate) {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return contextError(ctxErr)
	}
	return err
}

// HasUpstream reports whether HEAD's branch has remote and merge config.
func (b *GoGitBackend) HasUpstream(_ context.Context, repo Repository) (bool, error) {
	r, err := b.open(repo)
	if err != nil {
		return false, err
	}
	_, _, err = tracking(r)
	if errors.Is(err, ErrNoUpstream) {
		return false, nil
	}
	return err == nil, err
}

// IsUpToDate lists the remote and compares the advertised hash of the
// upstream branch with the local remote-tracking ref.
func (b *GoGitBackend) IsUpToDate(ctx context.Context, repo Repository) (bool, error) {
	r, err := b.open(repo)
	if err != nil {
		return false, err
	}
	remoteName, merge, err := tracking(r)
	if err != nil {
		return false, err
	}
	remote, err := r.Remote(remoteName)
	if err != nil {
		return false, fmt.Errorf("remote %s: %w", remoteName, err)
	}
	refs, err := remote.ListContext(ctx, &gogit.ListOptions{})
	if err != nil {
		return false, remoteError(ctx, err)
	}

	local, err := r.Reference(plumbing.NewRemoteReferenceName(remoteName, merge.Short()), true)
	if err != nil {
		return false, nil
	}
	for _, ref := range refs {
		if ref.Name() == merge {
			return ref.Hash() == local.Hash(), nil
		}
	}
	return false, nil
}

// CommitDiff diffs a commit's tree against its first parent's tree.
func (b *GoGitBackend) CommitDiff(ctx context.Context, repo Repository, id string) (string, error) {
	r, err := b.open(repo)
	if err != nil {
		return "", err
	}
	c, err := r.CommitObject(plumbing.NewHash(id))
	if err != nil {
		return "", fmt.Errorf("commit %s: %w", id, err)
	}
	tree, err := c.Tree()
	if err != nil {
		return "", fmt.Errorf("tree of %s: %w", id, err)
	}

	var parentTree *object.Tree
	if c.NumParents() > 0 {
		parent, err := c.Parent(0)
		if err != nil {
			return "", fmt.Errorf("parent of %s: %w", id, err)
		}
		if parentTree, err = parent.Tree(); err != nil {
			return "", fmt.Errorf("tree of %s: %w", parent.Hash, err)
		}
	}

	changes, err := object.DiffTreeWithOptions(ctx, parentTree, tree, object.DefaultDiffTreeOptions)
	if err != nil {
		return "", contextError(err)
	}
	patch, err := changes.PatchContext(ctx)
	if err != nil {
		return "", contextError(err)
	}
	return patch.String(), nil
}

// Diff compares worktree files with the index.
func (b *GoGitBackend) Diff(ctx context.Context, repo Repository, file string) (string, error) {
	return b.workingDiff(ctx, repo, file, false)
}

// DiffCached compares the index with HEAD.
func (b *GoGitBackend) DiffCached(ctx context.Context, repo Repository, file string) (string, error) {
	return b.workingDiff(ctx, repo, file, true)
}

func (b *GoGitBackend) workingDiff(ctx context.Context, repo Repository, file string, cached bool) (string, error) {
	r, err := b.open(repo)
	if err != nil {
		return "", err
	}
	wt, err := r.Worktree()
	if err != nil {
		return "", fmt.Errorf("opening worktree: %w", err)
	}

	files := []string{file}
	if file == "" {
		status, err := wt.Status()
		if err != nil {
			return "", fmt.Errorf("worktree status: %w", err)
		}
		files = files[:0]
		for path, s := range status {
			code := s.Worktree
			if cached {
				code = s.Staging
			}
			if code != gogit.Unmodified && code != gogit.Untracked {
				files = append(files, path)
			}
		}
		sort.Strings(files)
	}

	idx, err := r.Storer.Index()
	if err != nil {
		return "", fmt.Errorf("reading index: %w", err)
	}

	var out strings.Builder
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		staged, err := indexContent(r, idx, path)
		if err != nil {
			return "", err
		}
		var before, after string
		if cached {
			if before, err = headContent(r, path); err != nil {
				return "", err
			}
			after = staged
		} else {
			before = staged
			if after, err = worktreeContent(wt.Filesystem, path); err != nil {
				return "", err
			}
		}
		text, err := unifiedDiff(path, before, after)
		if err != nil {
			return "", err
		}
		out.WriteString(text)
	}
	return out.String(), nil
}

func indexContent(r *gogit.Repository, idx *index.Index, path string) (string, error) {
	entry, err := idx.Entry(path)
	if err != nil {
		if errors.Is(err, index.ErrEntryNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("index entry %s: %w", path, err)
	}
	blob, err := r.BlobObject(entry.Hash)
	if err != nil {
		return "", fmt.Errorf("blob %s: %w", entry.Hash, err)
	}
	reader, err := blob.Reader()
	if err != nil {
		return "", err
	}
	defer func() { _ = reader.Close() }()
	var sb strings.Builder
	if _, err := io.Copy(&sb, reader); err != nil {
		return "", fmt.Errorf("reading blob %s: %w", entry.Hash, err)
	}
	return sb.String(), nil
}

func headContent(r *gogit.Repository, path string) (string, error) {
	head, err := r.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("resolving HEAD: %w", err)
	}
	c, err := r.CommitObject(head.Hash())
	if err != nil {
		return "", fmt.Errorf("HEAD commit: %w", err)
	}
	f, err := c.File(path)
	if err != nil {
		if errors.Is(err, object.ErrFileNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("HEAD file %s: %w", path, err)
	}
	return f.Contents()
}

func worktreeContent(fs billy.Filesystem, path string) (string, error) {
	data, err := util.ReadFile(fs, path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return string(data), nil
}

// unifiedDiff renders a git-style file diff with go-difflib.
func unifiedDiff(path, before, after string) (string, error) {
	if before == after {
		return "", nil
	}
	text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        splitLines(before),
		B:        splitLines(after),
		FromFile: "a/" + path,
		ToFile:   "b/" + path,
		Context:  3,
	})
	if err != nil {
		return "", fmt.Errorf("diffing %s: %w", path, err)
	}
	return "diff --git a/" + path + " b/" + path + "\n" + text, nil
}

// splitLines splits s keeping terminators. A final line without a
// terminator gets one so difflib emits well-formed lines.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	} else {
		lines[len(lines)-1] += "\n"
	}
	return lines
}

// StashList reads the refs/stash reflog through the repository filesystem.
// In-memory repositories have no reflog and report no stashes.
func (b *GoGitBackend) StashList(_ context.Context, repo Repository) ([]StashEntry, error) {
	r, err := b.open(repo)
	if err != nil {
		return nil, err
	}
	fsStorage, ok := r.Storer.(*filesystem.Storage)
	if !ok {
		return []StashEntry{}, nil
	}
	data, err := util.ReadFile(fsStorage.Filesystem(), stashReflog)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []StashEntry{}, nil
		}
		return nil, fmt.Errorf("reading stash reflog: %w", err)
	}
	return parseStashReflog(string(data)), nil
}

// parseStashReflog turns reflog lines (oldest first) into stash entries
// (newest first): "<old> <new> <name> <email> <time> <tz>\t<message>".
func parseStashReflog(data string) []StashEntry {
	var messages []string
	for _, line := range strings.Split(data, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		_, message, _ := strings.Cut(line, "\t")
		messages = append(messages, message)
	}
	entries := make([]StashEntry, 0, len(messages))
	for i := len(messages) - 1; i >= 0; i-- {
		entries = append(entries, StashEntry{
			ID:      fmt.Sprintf("stash@{%d}", len(messages)-1-i),
			Message: messages[i],
		})
	}
	return entries
}
