// Package pubsub provides a generic publish/subscribe event system.
package pubsub

import (
	"context"
	"time"
)

// EventType represents the type of event being published.
type EventType string

const (
	// CommitsChangedEvent fires after every merge into the commit collection.
	CommitsChangedEvent EventType = "commits_changed"
	// RemoteRefreshedEvent fires after a remote-aware refresh merged its result.
	RemoteRefreshedEvent EventType = "remote_refreshed"
	// ActiveCommitEvent fires when the selected commit changes.
	ActiveCommitEvent EventType = "active_commit"
	// RepositoryChangedEvent fires when the active repository is replaced or deselected.
	RepositoryChangedEvent EventType = "repository_changed"
	// OperationFailedEvent fires when a backend operation fails (not on cancellation).
	OperationFailedEvent EventType = "operation_failed"
	// DetailsLoadedEvent fires when the parsed diff of the active commit is ready.
	DetailsLoadedEvent EventType = "details_loaded"
	// GitDirChangedEvent fires when the watcher sees a relevant change under .git.
	GitDirChangedEvent EventType = "git_dir_changed"
	// LogEntryEvent carries a formatted log line.
	LogEntryEvent EventType = "log_entry"
)

// Event represents a published event with a typed payload.
// Seq increases by one per Publish on the same broker.
type Event[T any] struct {
	Type      EventType
	Payload   T
	Seq       uint64
	Timestamp time.Time
}

// Subscriber provides a subscription channel for events.
type Subscriber[T any] interface {
	Subscribe(ctx context.Context) <-chan Event[T]
}

// Publisher allows publishing events with a typed payload.
type Publisher[T any] interface {
	Publish(eventType EventType, payload T)
}
