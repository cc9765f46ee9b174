package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Field and record separators used in the log format.
const (
	fieldSep  = "\x1f"
	recordSep = "\x1e"
)

// logFormat emits id, author, author date, parents and the raw body.
const logFormat = "%H" + fieldSep + "%an" + fieldSep + "%aI" + fieldSep + "%P" + fieldSep + "%B" + recordSep

// Compile-time check that RealExecutor implements Backend.
var _ Backend = (*RealExecutor)(nil)

// RealExecutor implements Backend by executing the git CLI.
type RealExecutor struct {
	binary string
}

// NewRealExecutor creates a RealExecutor using the git binary on PATH.
func NewRealExecutor() *RealExecutor {
	return &RealExecutor{binary: "git"}
}

// runGit executes a git command in repo and discards stdout.
func (e *RealExecutor) runGit(ctx context.Context, repo Repository, args ...string) error {
	_, err := e.runGitOutput(ctx, repo, args...)
	return err
}

// runGitOutput executes a git command in repo and returns stdout.
func (e *RealExecutor) runGitOutput(ctx context.Context, repo Repository, args ...string) (string, error) {
	//nolint:gosec // G204: args come from controlled sources
	cmd := exec.CommandContext(ctx, e.binary, args...)
	if repo.Path != "" {
		cmd.Dir = repo.Path
	}
	cmd.Env = append(cmd.Environ(), "GIT_TERMINAL_PROMPT=0", "LC_ALL=C")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", contextError(ctxErr)
		}
		output := strings.TrimSpace(stderr.String() + "\n" + stdout.String())
		if output != "" {
			return "", parseGitError(output, err)
		}
		return "", fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}

	return stdout.String(), nil
}

// contextError maps a finished context to the backend taxonomy.
func contextError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return err
}

// parseGitError converts git output to specific error types.
func parseGitError(output string, originalErr error) error {
	lower := strings.ToLower(output)

	if strings.Contains(lower, "not a git repository") {
		return fmt.Errorf("%w: %s", ErrNotGitRepo, output)
	}

	// Push rejected: ! [rejected] main -> main (fetch first / non-fast-forward)
	if strings.Contains(lower, "[rejected]") ||
		strings.Contains(lower, "non-fast-forward") ||
		strings.Contains(lower, "fetch first") {
		return fmt.Errorf("%w: %s", ErrBranchBehind, output)
	}

	if strings.Contains(output, "CONFLICT") ||
		strings.Contains(lower, "automatic merge failed") ||
		strings.Contains(lower, "would be overwritten by merge") {
		return &PullConflictError{Message: output}
	}

	if strings.Contains(lower, "no upstream") ||
		strings.Contains(lower, "no tracking information") {
		return fmt.Errorf("%w: %s", ErrNoUpstream, output)
	}

	if strings.Contains(lower, "timed out") || strings.Contains(lower, "timeout") {
		return fmt.Errorf("%w: %s", ErrTimeout, output)
	}

	return fmt.Errorf("git error: %s: %w", output, originalErr)
}

// Log returns one page of history via git log.
func (e *RealExecutor) Log(ctx context.Context, repo Repository, opts LogOptions) ([]Commit, error) {
	args := []string{"log", "--date-order", "--format=" + logFormat}
	if opts.Skip > 0 {
		args = append(args, "--skip="+strconv.Itoa(opts.Skip))
	}
	if opts.Limit > 0 {
		args = append(args, "--max-count="+strconv.Itoa(opts.Limit))
	}
	if opts.AllBranches {
		args = append(args, "--all")
	}
	if opts.NoMerges {
		args = append(args, "--no-merges")
	}

	output, err := e.runGitOutput(ctx, repo, args...)
	if err != nil {
		// A fresh repository has no HEAD yet.
		if strings.Contains(err.Error(), "does not have any commits yet") {
			return []Commit{}, nil
		}
		return nil, err
	}
	return parseLog(output)
}

// parseLog parses records produced by logFormat.
func parseLog(output string) ([]Commit, error) {
	commits := []Commit{}
	for _, record := range strings.Split(output, recordSep) {
		record = strings.TrimLeft(record, "\n")
		if strings.TrimSpace(record) == "" {
			continue
		}
		fields := strings.SplitN(record, fieldSep, 5)
		if len(fields) != 5 {
			return nil, fmt.Errorf("parsing log record: expected 5 fields, got %d", len(fields))
		}
		date, err := time.Parse(time.RFC3339, fields[2])
		if err != nil {
			return nil, fmt.Errorf("parsing date of %s: %w", fields[0], err)
		}
		commits = append(commits, Commit{
			ID:      fields[0],
			Author:  fields[1],
			Date:    date,
			Parents: strings.Fields(fields[3]),
			Message: strings.TrimRight(fields[4], "\n"),
		})
	}
	return commits, nil
}

// Fetch fetches the default remote.
func (e *RealExecutor) Fetch(ctx context.Context, repo Repository) error {
	return e.runGit(ctx, repo, "fetch")
}

// FetchPrune fetches and prunes deleted remote branches.
func (e *RealExecutor) FetchPrune(ctx context.Context, repo Repository) error {
	return e.runGit(ctx, repo, "fetch", "--prune")
}

// Pull merges the upstream branch.
func (e *RealExecutor) Pull(ctx context.Context, repo Repository) error {
	return e.runGit(ctx, repo, "pull", "--no-edit")
}

// Push pushes the current branch, optionally with --force-with-lease.
func (e *RealExecutor) Push(ctx context.Context, repo Repository, force bool) error {
	args := []string{"push"}
	if force {
		args = append(args, "--force-with-lease")
	}
	return e.runGit(ctx, repo, args...)
}

// HasUpstream reports whether HEAD tracks a remote branch.
func (e *RealExecutor) HasUpstream(ctx context.Context, repo Repository) (bool, error) {
	_, err := e.upstream(ctx, repo)
	if errors.Is(err, ErrNoUpstream) {
		return false, nil
	}
	return err == nil, err
}

// upstream returns the upstream of HEAD, e.g. origin/main.
func (e *RealExecutor) upstream(ctx context.Context, repo Repository) (string, error) {
	output, err := e.runGitOutput(ctx, repo, "rev-parse", "--abbrev-ref", "--symbolic-full-name", "@{u}")
	if err != nil {
		// Detached HEAD: "HEAD does not point to a branch"
		if strings.Contains(err.Error(), "does not point to a branch") {
			return "", fmt.Errorf("%w: detached HEAD", ErrNoUpstream)
		}
		return "", err
	}
	return strings.TrimSpace(output), nil
}

// IsUpToDate compares the remote-tracking ref with what the remote advertises.
func (e *RealExecutor) IsUpToDate(ctx context.Context, repo Repository) (bool, error) {
	up, err := e.upstream(ctx, repo)
	if err != nil {
		return false, err
	}
	remote, branch, ok := strings.Cut(up, "/")
	if !ok {
		return false, fmt.Errorf("unexpected upstream %q", up)
	}

	local, err := e.runGitOutput(ctx, repo, "rev-parse", up)
	if err != nil {
		return false, err
	}
	advertised, err := e.runGitOutput(ctx, repo, "ls-remote", remote, "refs/heads/"+branch)
	if err != nil {
		return false, err
	}
	fields := strings.Fields(advertised)
	if len(fields) == 0 {
		// Branch deleted on the remote; a prune fetch has work to do.
		return false, nil
	}
	return fields[0] == strings.TrimSpace(local), nil
}

// Diff returns the unstaged diff, optionally limited to file.
func (e *RealExecutor) Diff(ctx context.Context, repo Repository, file string) (string, error) {
	args := []string{"diff", "--no-color", "--no-ext-diff"}
	if file != "" {
		args = append(args, "--", file)
	}
	return e.runGitOutput(ctx, repo, args...)
}

// DiffCached returns the staged diff, optionally limited to file.
func (e *RealExecutor) DiffCached(ctx context.Context, repo Repository, file string) (string, error) {
	args := []string{"diff", "--cached", "--no-color", "--no-ext-diff"}
	if file != "" {
		args = append(args, "--", file)
	}
	return e.runGitOutput(ctx, repo, args...)
}

// CommitDiff returns the patch of a commit against its first parent.
func (e *RealExecutor) CommitDiff(ctx context.Context, repo Repository, id string) (string, error) {
	return e.runGitOutput(ctx, repo, "show", "--format=", "--patch", "--no-color",
		"--diff-merges=first-parent", id)
}

// StashList lists stash entries, newest first.
func (e *RealExecutor) StashList(ctx context.Context, repo Repository) ([]StashEntry, error) {
	output, err := e.runGitOutput(ctx, repo, "stash", "list", "--format=%gd"+fieldSep+"%gs")
	if err != nil {
		return nil, err
	}
	return parseStashList(output), nil
}

func parseStashList(output string) []StashEntry {
	entries := []StashEntry{}
	for _, line := range strings.Split(output, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		id, message, _ := strings.Cut(line, fieldSep)
		entries = append(entries, StashEntry{ID: id, Message: message})
	}
	return entries
}
