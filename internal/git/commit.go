package git

import (
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ShortIDLength is the number of hash characters shown in compact views.
const ShortIDLength = 8

// Commit is an immutable commit value. Identity is the full ID.
type Commit struct {
	ID      string    // Full hash
	Author  string    // Author name
	Date    time.Time // Author timestamp as reported by the backend
	Message string    // Full commit message
	Parents []string  // Parent ids in order; first parent first
}

// ShortID returns the abbreviated hash used for display.
func (c Commit) ShortID() string {
	if len(c.ID) <= ShortIDLength {
		return c.ID
	}
	return c.ID[:ShortIDLength]
}

// Subject returns the first line of the message.
func (c Commit) Subject() string {
	subject, _, _ := strings.Cut(strings.TrimSpace(c.Message), "\n")
	return strings.TrimSpace(subject)
}

// Body returns the message after the subject line, trimmed.
func (c Commit) Body() string {
	_, body, _ := strings.Cut(strings.TrimSpace(c.Message), "\n")
	return strings.TrimSpace(body)
}

// IsMerge reports whether the commit has more than one parent.
func (c Commit) IsMerge() bool { return len(c.Parents) > 1 }

// IsRoot reports whether the commit has no parents.
func (c Commit) IsRoot() bool { return len(c.Parents) == 0 }

// Before reports whether c sorts before other in display order:
// newest first, ties broken by ascending id.
func (c Commit) Before(other Commit) bool {
	if !c.Date.Equal(other.Date) {
		return c.Date.After(other.Date)
	}
	return c.ID < other.ID
}

// SortCommits sorts commits in place in display order.
func SortCommits(commits []Commit) {
	sort.SliceStable(commits, func(i, j int) bool {
		return commits[i].Before(commits[j])
	})
}

// StashEntry is a stash reference and its message.
type StashEntry struct {
	ID      string // e.g. stash@{0}
	Message string
}

// Repository identifies a work tree by path.
type Repository struct {
	Path string
}

// ShortPath returns the last element of the repository path.
func (r Repository) ShortPath() string {
	if r.Path == "" {
		return ""
	}
	return filepath.Base(filepath.Clean(r.Path))
}

// LogOptions selects a page of history.
type LogOptions struct {
	Skip        int  // Commits to skip from the newest
	Limit       int  // Maximum commits to return; 0 means no limit
	AllBranches bool // Walk every ref instead of HEAD only
	NoMerges    bool // Omit commits with more than one parent
}
