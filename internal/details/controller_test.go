package details

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/lanes/internal/diff"
	"github.com/zjrosen/lanes/internal/executor"
	"github.com/zjrosen/lanes/internal/git"
	"github.com/zjrosen/lanes/internal/history"
	"github.com/zjrosen/lanes/internal/mocks"
	"github.com/zjrosen/lanes/internal/pubsub"
)

var repo = git.Repository{Path: "/repo"}

const twoFiles = `diff --git a/main.go b/main.go
index 1111111..2222222 100644
--- a/main.go
+++ b/main.go
@@ -1,2 +1,2 @@
 package main
-var x = 1
+var x = 2
diff --git a/README.md b/README.md
new file mode 100644
--- /dev/null
+++ b/README.md
@@ -0,0 +1,2 @@
+# lanes
+history
`

func newController(t *testing.T, backend git.Backend, opts ...func(*Config)) *Controller {
	t.Helper()
	cfg := Config{Backend: backend, Pool: executor.NewPool(2)}
	for _, o := range opts {
		o(&cfg)
	}
	c := New(cfg)
	t.Cleanup(c.Close)
	return c
}

func TestController_LoadParsesFiles(t *testing.T) {
	backend := mocks.NewMockBackend(t)
	backend.On("CommitDiff", mock.Anything, repo, "abc").Return(twoFiles, nil).Once()
	c := newController(t, backend)

	d, err := c.Load(context.Background(), repo, "abc")
	require.NoError(t, err)
	require.Equal(t, "abc", d.CommitID)
	require.Len(t, d.Files, 2)

	require.Equal(t, "main.go", d.Files[0].Path)
	require.Equal(t, 1, d.Files[0].Added)
	require.Equal(t, 1, d.Files[0].Removed)
	require.Len(t, d.Files[0].Hunks, 1)

	require.Equal(t, "README.md", d.Files[1].Path)
	require.Equal(t, 2, d.Files[1].Added)
	require.Nil(t, d.Files[1].Words)

	added, removed := d.Stats()
	require.Equal(t, 3, added)
	require.Equal(t, 1, removed)
}

func TestController_LoadIsCached(t *testing.T) {
	backend := mocks.NewMockBackend(t)
	backend.On("CommitDiff", mock.Anything, repo, "abc").Return(twoFiles, nil).Once()
	c := newController(t, backend)
	ctx := context.Background()

	first, err := c.Load(ctx, repo, "abc")
	require.NoError(t, err)
	second, err := c.Load(ctx, repo, "abc")
	require.NoError(t, err)
	require.Equal(t, first.Files, second.Files)

	backend.AssertNumberOfCalls(t, "CommitDiff", 1)
}

func TestController_InvalidateReloads(t *testing.T) {
	backend := mocks.NewMockBackend(t)
	backend.On("CommitDiff", mock.Anything, repo, "abc").Return(twoFiles, nil).Twice()
	c := newController(t, backend)
	ctx := context.Background()

	_, err := c.Load(ctx, repo, "abc")
	require.NoError(t, err)
	c.Invalidate(ctx, repo)
	_, err = c.Load(ctx, repo, "abc")
	require.NoError(t, err)
}

func TestController_LoadError(t *testing.T) {
	backend := mocks.NewMockBackend(t)
	boom := errors.New("bad object")
	backend.On("CommitDiff", mock.Anything, repo, "abc").Return("", boom).Twice()
	c := newController(t, backend)

	d, err := c.Load(context.Background(), repo, "abc")
	require.ErrorIs(t, err, boom)
	require.ErrorIs(t, d.Err, boom)

	// Failures are not cached.
	_, err = c.Load(context.Background(), repo, "abc")
	require.ErrorIs(t, err, boom)
}

func TestController_EmptyCommitHasNoFiles(t *testing.T) {
	backend := mocks.NewMockBackend(t)
	backend.On("CommitDiff", mock.Anything, repo, "empty").Return("", nil).Once()
	c := newController(t, backend)

	d, err := c.Load(context.Background(), repo, "empty")
	require.NoError(t, err)
	require.Empty(t, d.Files)
}

func TestController_WordDiff(t *testing.T) {
	backend := mocks.NewMockBackend(t)
	backend.On("CommitDiff", mock.Anything, repo, "abc").Return(twoFiles, nil).Once()
	c := newController(t, backend, func(cfg *Config) { cfg.WordDiff = true })

	d, err := c.Load(context.Background(), repo, "abc")
	require.NoError(t, err)
	require.Len(t, d.Files[0].Words, 1)
	require.NotEmpty(t, d.Files[0].Words[0], "changed line pair gets word segments")
}

func TestController_SelectPublishes(t *testing.T) {
	backend := mocks.NewMockBackend(t)
	backend.On("CommitDiff", mock.Anything, repo, "abc").Return(twoFiles, nil).Once()
	c := newController(t, backend)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := c.Subscribe(ctx)

	c.Select(repo, "abc")

	select {
	case ev := <-events:
		require.Equal(t, pubsub.DetailsLoadedEvent, ev.Type)
		require.Equal(t, "abc", ev.Payload.CommitID)
		require.Len(t, ev.Payload.Files, 2)
	case <-time.After(2 * time.Second):
		t.Fatal("no details event")
	}
}

func TestController_SelectSupersedesPendingLoad(t *testing.T) {
	backend := mocks.NewMockBackend(t)
	started := make(chan struct{})
	backend.On("CommitDiff", mock.Anything, repo, "slow").
		Run(func(args mock.Arguments) {
			close(started)
			<-args.Get(0).(context.Context).Done()
		}).
		Return("", context.Canceled).Once()
	backend.On("CommitDiff", mock.Anything, repo, "fast").Return(twoFiles, nil).Once()
	c := newController(t, backend)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := c.Subscribe(ctx)

	c.Select(repo, "slow")
	<-started
	c.Select(repo, "fast")

	select {
	case ev := <-events:
		require.Equal(t, "fast", ev.Payload.CommitID)
	case <-time.After(2 * time.Second):
		t.Fatal("no details event")
	}
	select {
	case ev := <-events:
		t.Fatalf("unexpected event for %s", ev.Payload.CommitID)
	case <-time.After(30 * time.Millisecond):
	}
}

func TestController_RunFollowsSelection(t *testing.T) {
	backend := mocks.NewMockBackend(t)
	backend.On("CommitDiff", mock.Anything, repo, "abc").Return(twoFiles, nil).Once()
	c := newController(t, backend)

	source := pubsub.NewBroker[history.Change]()
	defer source.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := c.Subscribe(ctx)
	go c.Run(ctx, source)
	require.Eventually(t, func() bool { return source.SubscriberCount() == 1 }, time.Second, time.Millisecond)

	source.Publish(pubsub.ActiveCommitEvent, history.Change{Snapshot: history.Snapshot{
		Repository: repo, HasRepository: true, Active: "abc",
	}})

	select {
	case ev := <-events:
		require.Equal(t, "abc", ev.Payload.CommitID)
	case <-time.After(2 * time.Second):
		t.Fatal("no details event")
	}
}

func TestController_FileDiff(t *testing.T) {
	backend := mocks.NewMockBackend(t)
	backend.On("Diff", mock.Anything, repo, "main.go").Return(twoFiles[:141], nil).Once()
	backend.On("DiffCached", mock.Anything, repo, "").Return("", nil).Once()
	c := newController(t, backend)
	ctx := context.Background()

	files, err := c.FileDiff(ctx, repo, "main.go", false)
	require.NoError(t, err)
	require.Len(t, files, 1)
	require.Equal(t, "main.go", files[0].Path)

	files, err = c.FileDiff(ctx, repo, "", true)
	require.NoError(t, err)
	require.Len(t, files, 1)
	require.Len(t, files[0].Hunks, 1)
	require.True(t, files[0].Hunks[0].Placeholder)
	require.Equal(t, diff.PlaceholderHeader, files[0].Hunks[0].Header())
}

func TestController_Stashes(t *testing.T) {
	backend := mocks.NewMockBackend(t)
	want := []git.StashEntry{{ID: "stash@{0}", Message: "WIP on main"}}
	backend.On("StashList", mock.Anything, repo).Return(want, nil).Once()
	c := newController(t, backend)

	got, err := c.Stashes(context.Background(), repo)
	require.NoError(t, err)
	require.Equal(t, want, got)
}
