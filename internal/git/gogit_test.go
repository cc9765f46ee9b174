package git

import (
	"context"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/memory"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

// memRepo is an in-memory repository with helpers to build history.
type memRepo struct {
	t    *testing.T
	repo *gogit.Repository
	wt   *gogit.Worktree
	fs   billy.Filesystem
	tick int
}

func newMemRepo(t *testing.T) *memRepo {
	t.Helper()
	fs := memfs.New()
	repo, err := gogit.Init(memory.NewStorage(), fs)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)
	return &memRepo{t: t, repo: repo, wt: wt, fs: fs}
}

func (m *memRepo) write(name, content string) {
	m.t.Helper()
	require.NoError(m.t, util.WriteFile(m.fs, name, []byte(content), 0o644))
}

// commit writes name and commits it. Explicit parents override HEAD.
func (m *memRepo) commit(msg, name, content string, parents ...plumbing.Hash) plumbing.Hash {
	m.t.Helper()
	m.write(name, content)
	_, err := m.wt.Add(name)
	require.NoError(m.t, err)

	m.tick++
	sig := &object.Signature{Name: "Ada", Email: "ada@example.com", When: epoch.Add(time.Duration(m.tick) * time.Minute)}
	hash, err := m.wt.Commit(msg, &gogit.CommitOptions{Author: sig, Committer: sig, Parents: parents})
	require.NoError(m.t, err)
	return hash
}

func (m *memRepo) backend() (*GoGitBackend, Repository) {
	b := NewGoGitBackend()
	repo := Repository{Path: "/mem/" + m.t.Name()}
	b.Register(repo.Path, m.repo)
	return b, repo
}

func TestGoGitBackend_LogEmptyRepository(t *testing.T) {
	b, repo := newMemRepo(t).backend()
	commits, err := b.Log(context.Background(), repo, LogOptions{Limit: 50})
	require.NoError(t, err)
	require.Empty(t, commits)
}

func TestGoGitBackend_LogMergeHistory(t *testing.T) {
	m := newMemRepo(t)
	r := m.commit("root", "r.txt", "r\n")
	a := m.commit("a", "a.txt", "a\n")
	b := m.commit("b", "b.txt", "b\n", r)
	merge := m.commit("merge", "m.txt", "m\n", a, b)

	backend, repo := m.backend()
	ctx := context.Background()

	commits, err := backend.Log(ctx, repo, LogOptions{Limit: 50})
	require.NoError(t, err)
	require.Len(t, commits, 4)
	require.Equal(t, merge.String(), commits[0].ID)
	require.Equal(t, []string{a.String(), b.String()}, commits[0].Parents)
	require.Equal(t, "Ada", commits[0].Author)
	require.Equal(t, r.String(), commits[3].ID)

	page, err := backend.Log(ctx, repo, LogOptions{Skip: 1, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.Equal(t, commits[1].ID, page[0].ID)
	require.Equal(t, commits[2].ID, page[1].ID)

	noMerges, err := backend.Log(ctx, repo, LogOptions{Limit: 50, NoMerges: true})
	require.NoError(t, err)
	require.Len(t, noMerges, 3)
	for _, c := range noMerges {
		require.False(t, c.IsMerge())
	}
}

func TestGoGitBackend_CommitDiff(t *testing.T) {
	m := newMemRepo(t)
	m.commit("init", "a.txt", "one\ntwo\n")
	second := m.commit("edit", "a.txt", "one\nthree\n")

	backend, repo := m.backend()
	patch, err := backend.CommitDiff(context.Background(), repo, second.String())
	require.NoError(t, err)
	require.Contains(t, patch, "diff --git a/a.txt b/a.txt")
	require.Contains(t, patch, "-two")
	require.Contains(t, patch, "+three")
}

func TestGoGitBackend_CommitDiffRoot(t *testing.T) {
	m := newMemRepo(t)
	root := m.commit("init", "a.txt", "hello\n")

	backend, repo := m.backend()
	patch, err := backend.CommitDiff(context.Background(), repo, root.String())
	require.NoError(t, err)
	require.Contains(t, patch, "+hello")
}

func TestGoGitBackend_WorkingDiffs(t *testing.T) {
	m := newMemRepo(t)
	m.commit("init", "a.txt", "one\ntwo\n")
	backend, repo := m.backend()
	ctx := context.Background()

	m.write("a.txt", "one\nthree\n")

	unstaged, err := backend.Diff(ctx, repo, "a.txt")
	require.NoError(t, err)
	require.Contains(t, unstaged, "--- a/a.txt")
	require.Contains(t, unstaged, "@@ -1,2 +1,2 @@")
	require.Contains(t, unstaged, "-two\n")
	require.Contains(t, unstaged, "+three\n")

	cached, err := backend.DiffCached(ctx, repo, "")
	require.NoError(t, err)
	require.Empty(t, cached)

	_, err = m.wt.Add("a.txt")
	require.NoError(t, err)

	cached, err = backend.DiffCached(ctx, repo, "")
	require.NoError(t, err)
	require.Contains(t, cached, "+three\n")

	unstaged, err = backend.Diff(ctx, repo, "")
	require.NoError(t, err)
	require.Empty(t, unstaged)
}

func TestGoGitBackend_NoUpstream(t *testing.T) {
	m := newMemRepo(t)
	m.commit("init", "a.txt", "a\n")
	backend, repo := m.backend()
	ctx := context.Background()

	has, err := backend.HasUpstream(ctx, repo)
	require.NoError(t, err)
	require.False(t, has)

	_, err = backend.IsUpToDate(ctx, repo)
	require.ErrorIs(t, err, ErrNoUpstream)

	err = backend.Pull(ctx, repo)
	require.ErrorIs(t, err, ErrNoUpstream)
}

func TestGoGitBackend_StashListInMemory(t *testing.T) {
	backend, repo := newMemRepo(t).backend()
	entries, err := backend.StashList(context.Background(), repo)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestGoGitBackend_OpenNotRepo(t *testing.T) {
	_, err := NewGoGitBackend().Log(context.Background(), Repository{Path: t.TempDir()}, LogOptions{})
	require.ErrorIs(t, err, ErrNotGitRepo)
}

func TestParseStashReflog_NewestFirst(t *testing.T) {
	zero := "0000000000000000000000000000000000000000"
	data := zero + " 1111111111111111111111111111111111111111 Ada <ada@example.com> 1700000000 +0000\tWIP on main: first\n" +
		"1111111111111111111111111111111111111111 2222222222222222222222222222222222222222 Ada <ada@example.com> 1700000100 +0000\tOn main: second\n"

	require.Equal(t, []StashEntry{
		{ID: "stash@{0}", Message: "On main: second"},
		{ID: "stash@{1}", Message: "WIP on main: first"},
	}, parseStashReflog(data))
}

func TestSplitLines(t *testing.T) {
	require.Nil(t, splitLines(""))
	require.Equal(t, []string{"a\n", "b\n"}, splitLines("a\nb\n"))
	require.Equal(t, []string{"a\n", "b\n"}, splitLines("a\nb"))
}
