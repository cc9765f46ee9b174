// Package mocks holds testify mocks of the lanes interfaces.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/zjrosen/lanes/internal/git"
)

// MockBackend is a testify mock of git.Backend.
type MockBackend struct {
	mock.Mock
}

var _ git.Backend = (*MockBackend)(nil)

// NewMockBackend creates a MockBackend whose expectations are asserted
// when the test ends.
func NewMockBackend(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockBackend {
	m := &MockBackend{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockBackend) Log(ctx context.Context, repo git.Repository, opts git.LogOptions) ([]git.Commit, error) {
	args := m.Called(ctx, repo, opts)
	commits, _ := args.Get(0).([]git.Commit)
	return commits, args.Error(1)
}

func (m *MockBackend) Fetch(ctx context.Context, repo git.Repository) error {
	return m.Called(ctx, repo).Error(0)
}

func (m *MockBackend) FetchPrune(ctx context.Context, repo git.Repository) error {
	return m.Called(ctx, repo).Error(0)
}

func (m *MockBackend) Pull(ctx context.Context, repo git.Repository) error {
	return m.Called(ctx, repo).Error(0)
}

func (m *MockBackend) Push(ctx context.Context, repo git.Repository, force bool) error {
	return m.Called(ctx, repo, force).Error(0)
}

func (m *MockBackend) HasUpstream(ctx context.Context, repo git.Repository) (bool, error) {
	args := m.Called(ctx, repo)
	return args.Bool(0), args.Error(1)
}

func (m *MockBackend) IsUpToDate(ctx context.Context, repo git.Repository) (bool, error) {
	args := m.Called(ctx, repo)
	return args.Bool(0), args.Error(1)
}

func (m *MockBackend) Diff(ctx context.Context, repo git.Repository, file string) (string, error) {
	args := m.Called(ctx, repo, file)
	return args.String(0), args.Error(1)
}

func (m *MockBackend) DiffCached(ctx context.Context, repo git.Repository, file string) (string, error) {
	args := m.Called(ctx, repo, file)
	return args.String(0), args.Error(1)
}

func (m *MockBackend) CommitDiff(ctx context.Context, repo git.Repository, id string) (string, error) {
	args := m.Called(ctx, repo, id)
	return args.String(0), args.Error(1)
}

func (m *MockBackend) StashList(ctx context.Context, repo git.Repository) ([]git.StashEntry, error) {
	args := m.Called(ctx, repo)
	entries, _ := args.Get(0).([]git.StashEntry)
	return entries, args.Error(1)
}
