package tracing

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/lanes/internal/git"
)

// Backend wraps a git.Backend and records a span per call.
type Backend struct {
	next   git.Backend
	tracer trace.Tracer
}

var _ git.Backend = (*Backend)(nil)

// WrapBackend returns next with tracing. A nil tracer returns next as is.
func WrapBackend(next git.Backend, tracer trace.Tracer) git.Backend {
	if tracer == nil {
		return next
	}
	return &Backend{next: next, tracer: tracer}
}

func (b *Backend) start(ctx context.Context, op string, repo git.Repository, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String(AttrRepoPath, repo.Path))
	return b.tracer.Start(ctx, SpanPrefixGit+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
}

// end records the outcome. Cancellation is not an error.
func end(span trace.Span, err error) {
	defer span.End()
	switch {
	case err == nil:
		span.SetStatus(codes.Ok, "")
	case errors.Is(err, context.Canceled):
		span.SetStatus(codes.Unset, "cancelled")
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

func (b *Backend) Log(ctx context.Context, repo git.Repository, opts git.LogOptions) ([]git.Commit, error) {
	ctx, span := b.start(ctx, "log", repo,
		attribute.Int(AttrSkip, opts.Skip),
		attribute.Int(AttrLimit, opts.Limit),
		attribute.Bool(AttrAll, opts.AllBranches),
		attribute.Bool(AttrNoMerges, opts.NoMerges),
	)
	commits, err := b.next.Log(ctx, repo, opts)
	span.SetAttributes(attribute.Int(AttrResultSize, len(commits)))
	end(span, err)
	return commits, err
}

func (b *Backend) Fetch(ctx context.Context, repo git.Repository) error {
	ctx, span := b.start(ctx, "fetch", repo)
	err := b.next.Fetch(ctx, repo)
	end(span, err)
	return err
}

func (b *Backend) FetchPrune(ctx context.Context, repo git.Repository) error {
	ctx, span := b.start(ctx, "fetch_prune", repo)
	err := b.next.FetchPrune(ctx, repo)
	end(span, err)
	return err
}

func (b *Backend) Pull(ctx context.Context, repo git.Repository) error {
	ctx, span := b.start(ctx, "pull", repo)
	err := b.next.Pull(ctx, repo)
	end(span, err)
	return err
}

func (b *Backend) Push(ctx context.Context, repo git.Repository, force bool) error {
	ctx, span := b.start(ctx, "push", repo, attribute.Bool(AttrForce, force))
	err := b.next.Push(ctx, repo, force)
	end(span, err)
	return err
}

func (b *Backend) HasUpstream(ctx context.Context, repo git.Repository) (bool, error) {
	ctx, span := b.start(ctx, "has_upstream", repo)
	ok, err := b.next.HasUpstream(ctx, repo)
	end(span, err)
	return ok, err
}

func (b *Backend) IsUpToDate(ctx context.Context, repo git.Repository) (bool, error) {
	ctx, span := b.start(ctx, "is_up_to_date", repo)
	ok, err := b.next.IsUpToDate(ctx, repo)
	end(span, err)
	return ok, err
}

func (b *Backend) Diff(ctx context.Context, repo git.Repository, file string) (string, error) {
	ctx, span := b.start(ctx, "diff", repo, attribute.String(AttrFile, file), attribute.Bool(AttrCached, false))
	out, err := b.next.Diff(ctx, repo, file)
	span.SetAttributes(attribute.Int(AttrResultSize, len(out)))
	end(span, err)
	return out, err
}

func (b *Backend) DiffCached(ctx context.Context, repo git.Repository, file string) (string, error) {
	ctx, span := b.start(ctx, "diff", repo, attribute.String(AttrFile, file), attribute.Bool(AttrCached, true))
	out, err := b.next.DiffCached(ctx, repo, file)
	span.SetAttributes(attribute.Int(AttrResultSize, len(out)))
	end(span, err)
	return out, err
}

func (b *Backend) CommitDiff(ctx context.Context, repo git.Repository, id string) (string, error) {
	ctx, span := b.start(ctx, "commit_diff", repo, attribute.String(AttrCommitID, id))
	out, err := b.next.CommitDiff(ctx, repo, id)
	span.SetAttributes(attribute.Int(AttrResultSize, len(out)))
	end(span, err)
	return out, err
}

func (b *Backend) StashList(ctx context.Context, repo git.Repository) ([]git.StashEntry, error) {
	ctx, span := b.start(ctx, "stash_list", repo)
	entries, err := b.next.StashList(ctx, repo)
	span.SetAttributes(attribute.Int(AttrResultSize, len(entries)))
	end(span, err)
	return entries, err
}
