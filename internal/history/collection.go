// Package history keeps the synchronized commit history of a repository.
package history

import (
	"strings"

	"github.com/zjrosen/lanes/internal/git"
)

// DefaultPageSize is the initial window and the LoadMore increment.
const DefaultPageSize = 50

// Collection is an id-deduplicated commit list kept in display order, plus
// the window of history it materializes. It is not safe for concurrent use;
// the Synchronizer's loop owns it.
type Collection struct {
	commits    []git.Commit
	windowSize int
	pageSize   int
}

// NewCollection creates an empty collection with the given page size.
func NewCollection(pageSize int) *Collection {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Collection{windowSize: pageSize, pageSize: pageSize}
}

// Commits returns a copy of the commits in display order.
func (c *Collection) Commits() []git.Commit {
	out := make([]git.Commit, len(c.commits))
	copy(out, c.commits)
	return out
}

// Len returns the number of commits.
func (c *Collection) Len() int { return len(c.commits) }

// WindowSize returns the materialized history depth.
func (c *Collection) WindowSize() int { return c.windowSize }

// PageSize returns the LoadMore increment.
func (c *Collection) PageSize() int { return c.pageSize }

// Grow extends the window by one page.
func (c *Collection) Grow() { c.windowSize += c.pageSize }

// Reset clears the commits and resets the window to one page.
func (c *Collection) Reset() {
	c.commits = nil
	c.windowSize = c.pageSize
}

// MergeAuthoritative makes result the content of the collection: new ids
// are added and ids missing from result are removed.
func (c *Collection) MergeAuthoritative(result []git.Commit) (added, removed int) {
	fresh := make(map[string]bool, len(result))
	for _, commit := range result {
		fresh[commit.ID] = true
	}
	old := make(map[string]bool, len(c.commits))
	for _, commit := range c.commits {
		old[commit.ID] = true
		if !fresh[commit.ID] {
			removed++
		}
	}

	c.commits = dedupe(result)
	for _, commit := range c.commits {
		if !old[commit.ID] {
			added++
		}
	}
	git.SortCommits(c.commits)
	return added, removed
}

// MergeAdditive adds the commits of result whose ids are not present.
func (c *Collection) MergeAdditive(result []git.Commit) (added int) {
	present := make(map[string]bool, len(c.commits)+len(result))
	for _, commit := range c.commits {
		present[commit.ID] = true
	}
	for _, commit := range result {
		if present[commit.ID] {
			continue
		}
		present[commit.ID] = true
		c.commits = append(c.commits, commit)
		added++
	}
	if added > 0 {
		git.SortCommits(c.commits)
	}
	return added
}

func dedupe(commits []git.Commit) []git.Commit {
	seen := make(map[string]bool, len(commits))
	out := make([]git.Commit, 0, len(commits))
	for _, commit := range commits {
		if seen[commit.ID] {
			continue
		}
		seen[commit.ID] = true
		out = append(out, commit)
	}
	return out
}

// Filter returns the commits matching query case-insensitively on id
// prefix, author or message. An empty query matches everything.
func Filter(commits []git.Commit, query string) []git.Commit {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return commits
	}
	var out []git.Commit
	for _, c := range commits {
		if strings.HasPrefix(strings.ToLower(c.ID), query) ||
			strings.Contains(strings.ToLower(c.Author), query) ||
			strings.Contains(strings.ToLower(c.Message), query) {
			out = append(out, c)
		}
	}
	return out
}
