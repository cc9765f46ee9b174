package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/zjrosen/lanes/internal/cachemanager"
)

// MockCacheManager is a testify mock of cachemanager.CacheManager.
type MockCacheManager[K ~string, V any] struct {
	mock.Mock
}

// NewMockCacheManager creates a MockCacheManager whose expectations are
// asserted when the test ends.
func NewMockCacheManager[K ~string, V any](t interface {
	mock.TestingT
	Cleanup(func())
}) *MockCacheManager[K, V] {
	m := &MockCacheManager[K, V]{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

var _ cachemanager.CacheManager[string, int] = (*MockCacheManager[string, int])(nil)

func (m *MockCacheManager[K, V]) Get(ctx context.Context, key K) (V, bool) {
	args := m.Called(ctx, key)
	v, _ := args.Get(0).(V)
	return v, args.Bool(1)
}

func (m *MockCacheManager[K, V]) GetWithRefresh(ctx context.Context, key K, ttl time.Duration) (V, bool) {
	args := m.Called(ctx, key, ttl)
	v, _ := args.Get(0).(V)
	return v, args.Bool(1)
}

func (m *MockCacheManager[K, V]) Set(ctx context.Context, key K, value V, ttl time.Duration) {
	m.Called(ctx, key, value, ttl)
}

func (m *MockCacheManager[K, V]) Delete(ctx context.Context, keys ...K) error {
	return m.Called(ctx, keys).Error(0)
}

func (m *MockCacheManager[K, V]) DeletePrefix(ctx context.Context, prefix string) int {
	return m.Called(ctx, prefix).Int(0)
}

func (m *MockCacheManager[K, V]) Flush(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockCacheManager[K, V]) Stats() cachemanager.Stats {
	stats, _ := m.Called().Get(0).(cachemanager.Stats)
	return stats
}
