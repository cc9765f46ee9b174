package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/lanes/internal/git"
	"github.com/zjrosen/lanes/internal/mocks"
)

var repo = git.Repository{Path: "/repo"}

// setupTestTracer creates a test tracer with an in-memory exporter.
func setupTestTracer(t *testing.T) (trace.Tracer, *tracetest.InMemoryExporter) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	return provider.Tracer("test-tracer"), exporter
}

func onlySpan(t *testing.T, exporter *tracetest.InMemoryExporter) tracetest.SpanStub {
	t.Helper()
	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	return spans[0]
}

func attr(span tracetest.SpanStub, key string) (attribute.Value, bool) {
	for _, kv := range span.Attributes {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestWrapBackend_NilTracerPassesThrough(t *testing.T) {
	backend := mocks.NewMockBackend(t)
	require.Same(t, backend, WrapBackend(backend, nil))
}

func TestBackend_LogSpan(t *testing.T) {
	tracer, exporter := setupTestTracer(t)
	backend := mocks.NewMockBackend(t)
	opts := git.LogOptions{Skip: 50, Limit: 50, NoMerges: true}
	backend.On("Log", mock.Anything, repo, opts).Return([]git.Commit{{ID: "a"}, {ID: "b"}}, nil).Once()

	commits, err := WrapBackend(backend, tracer).Log(context.Background(), repo, opts)
	require.NoError(t, err)
	require.Len(t, commits, 2)

	span := onlySpan(t, exporter)
	require.Equal(t, "git.log", span.Name)
	require.Equal(t, trace.SpanKindClient, span.SpanKind)
	require.Equal(t, codes.Ok, span.Status.Code)

	v, ok := attr(span, AttrSkip)
	require.True(t, ok)
	require.EqualValues(t, 50, v.AsInt64())
	v, ok = attr(span, AttrResultSize)
	require.True(t, ok)
	require.EqualValues(t, 2, v.AsInt64())
	v, ok = attr(span, AttrRepoPath)
	require.True(t, ok)
	require.Equal(t, "/repo", v.AsString())
}

func TestBackend_RecordsErrors(t *testing.T) {
	tracer, exporter := setupTestTracer(t)
	backend := mocks.NewMockBackend(t)
	backend.On("Push", mock.Anything, repo, true).Return(git.ErrBranchBehind).Once()

	err := WrapBackend(backend, tracer).Push(context.Background(), repo, true)
	require.ErrorIs(t, err, git.ErrBranchBehind)

	span := onlySpan(t, exporter)
	require.Equal(t, "git.push", span.Name)
	require.Equal(t, codes.Error, span.Status.Code)
	require.Len(t, span.Events, 1, "error recorded as event")
	v, ok := attr(span, AttrForce)
	require.True(t, ok)
	require.True(t, v.AsBool())
}

func TestBackend_CancellationIsNotAnError(t *testing.T) {
	tracer, exporter := setupTestTracer(t)
	backend := mocks.NewMockBackend(t)
	backend.On("Fetch", mock.Anything, repo).Return(context.Canceled).Once()

	err := WrapBackend(backend, tracer).Fetch(context.Background(), repo)
	require.True(t, errors.Is(err, context.Canceled))

	span := onlySpan(t, exporter)
	require.Equal(t, codes.Unset, span.Status.Code)
	require.Empty(t, span.Events)
}

func TestBackend_ChildOfCallerSpan(t *testing.T) {
	tracer, exporter := setupTestTracer(t)
	backend := mocks.NewMockBackend(t)
	backend.On("CommitDiff", mock.Anything, repo, "abc").Return("diff", nil).Once()

	ctx, parent := tracer.Start(context.Background(), "details.load")
	_, err := WrapBackend(backend, tracer).CommitDiff(ctx, repo, "abc")
	require.NoError(t, err)
	parent.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)
	require.Equal(t, "git.commit_diff", spans[0].Name)
	require.Equal(t, parent.SpanContext().SpanID(), spans[0].Parent.SpanID())
}

func TestBackend_ForwardsEveryCall(t *testing.T) {
	tracer, exporter := setupTestTracer(t)
	backend := mocks.NewMockBackend(t)
	ctx := context.Background()
	backend.On("FetchPrune", mock.Anything, repo).Return(nil).Once()
	backend.On("Pull", mock.Anything, repo).Return(nil).Once()
	backend.On("HasUpstream", mock.Anything, repo).Return(true, nil).Once()
	backend.On("IsUpToDate", mock.Anything, repo).Return(false, nil).Once()
	backend.On("Diff", mock.Anything, repo, "a.go").Return("d", nil).Once()
	backend.On("DiffCached", mock.Anything, repo, "a.go").Return("dc", nil).Once()
	backend.On("StashList", mock.Anything, repo).Return([]git.StashEntry{{ID: "stash@{0}"}}, nil).Once()

	b := WrapBackend(backend, tracer)
	require.NoError(t, b.FetchPrune(ctx, repo))
	require.NoError(t, b.Pull(ctx, repo))
	up, err := b.HasUpstream(ctx, repo)
	require.NoError(t, err)
	require.True(t, up)
	fresh, err := b.IsUpToDate(ctx, repo)
	require.NoError(t, err)
	require.False(t, fresh)
	d, err := b.Diff(ctx, repo, "a.go")
	require.NoError(t, err)
	require.Equal(t, "d", d)
	dc, err := b.DiffCached(ctx, repo, "a.go")
	require.NoError(t, err)
	require.Equal(t, "dc", dc)
	stashes, err := b.StashList(ctx, repo)
	require.NoError(t, err)
	require.Len(t, stashes, 1)

	names := make([]string, 0, 7)
	for _, s := range exporter.GetSpans() {
		names = append(names, s.Name)
	}
	require.Equal(t, []string{
		"git.fetch_prune", "git.pull", "git.has_upstream", "git.is_up_to_date",
		"git.diff", "git.diff", "git.stash_list",
	}, names)
}
