package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/zjrosen/lanes/internal/git"
	"github.com/zjrosen/lanes/internal/history"
	"github.com/zjrosen/lanes/internal/log"
)

// SnapshotStore implements history.SnapshotStore on SQLite.
type SnapshotStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ history.SnapshotStore = (*SnapshotStore)(nil)

// NewSnapshotStore wraps an open database, see NewDB.
func NewSnapshotStore(db *sql.DB) *SnapshotStore {
	return &SnapshotStore{db: db, now: time.Now}
}

// Open opens the database at path and returns a store over it.
func Open(path string) (*SnapshotStore, error) {
	db, err := NewDB(path)
	if err != nil {
		return nil, err
	}
	return NewSnapshotStore(db), nil
}

// Close closes the underlying database.
func (s *SnapshotStore) Close() error {
	return s.db.Close()
}

// Load returns the saved window of repo in display order, or nil when the
// repository was never saved.
func (s *SnapshotStore) Load(ctx context.Context, repo git.Repository) ([]git.Commit, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT position, id, author, date, message, parents
		 FROM commits WHERE repo = ? ORDER BY position`, repo.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var commits []git.Commit
	for rows.Next() {
		var m CommitModel
		if err := rows.Scan(&m.Position, &m.ID, &m.Author, &m.Date, &m.Message, &m.Parents); err != nil {
			return nil, fmt.Errorf("failed to scan commit: %w", err)
		}
		c, err := m.toCommit()
		if err != nil {
			log.Warn(log.CatStore, "skipping commit with bad date", "id", m.ID, "date", m.Date)
			continue
		}
		commits = append(commits, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	return commits, nil
}

// Save replaces the saved window of repo.
func (s *SnapshotStore) Save(ctx context.Context, repo git.Repository, commits []git.Commit) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO repositories (path, synced_at) VALUES (?, ?)
		 ON CONFLICT(path) DO UPDATE SET synced_at = excluded.synced_at`,
		repo.Path, s.now().Unix()); err != nil {
		return fmt.Errorf("failed to upsert repository: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM commits WHERE repo = ?`, repo.Path); err != nil {
		return fmt.Errorf("failed to clear snapshot: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO commits (repo, position, id, author, date, message, parents)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i, c := range commits {
		m := toCommitModel(i, c)
		if _, err := stmt.ExecContext(ctx, repo.Path, m.Position, m.ID, m.Author, m.Date, m.Message, m.Parents); err != nil {
			return fmt.Errorf("failed to insert commit %s: %w", c.ShortID(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}
	log.Debug(log.CatStore, "snapshot saved", "path", repo.Path, "commits", len(commits))
	return nil
}

// SyncedRepository is a repository with a saved snapshot.
type SyncedRepository struct {
	Repository git.Repository
	SyncedAt   time.Time
	Commits    int
}

// Repositories lists saved repositories, most recently synced first.
func (s *SnapshotStore) Repositories(ctx context.Context) ([]SyncedRepository, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT r.path, r.synced_at, COUNT(c.id)
		 FROM repositories r LEFT JOIN commits c ON c.repo = r.path
		 GROUP BY r.path ORDER BY r.synced_at DESC, r.path`)
	if err != nil {
		return nil, fmt.Errorf("failed to query repositories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var repos []SyncedRepository
	for rows.Next() {
		var (
			r        SyncedRepository
			syncedAt int64
		)
		if err := rows.Scan(&r.Repository.Path, &syncedAt, &r.Commits); err != nil {
			return nil, fmt.Errorf("failed to scan repository: %w", err)
		}
		r.SyncedAt = time.Unix(syncedAt, 0)
		repos = append(repos, r)
	}
	return repos, rows.Err()
}

// Delete removes the snapshot of repo.
func (s *SnapshotStore) Delete(ctx context.Context, repo git.Repository) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM repositories WHERE path = ?`, repo.Path); err != nil {
		return fmt.Errorf("failed to delete repository: %w", err)
	}
	return nil
}
