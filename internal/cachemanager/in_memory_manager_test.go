package cachemanager

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewInMemoryCacheManager(t *testing.T) {
	require.NotPanics(t, func() {
		NewInMemoryCacheManager[string, string]("test", DefaultExpiration, DefaultCleanupInterval)
	})
}

type cachedDiff struct {
	ID   int
	Name string
}

func TestNewInMemoryCacheManager_GetExistingValue_StructType(t *testing.T) {
	cache := NewInMemoryCacheManager[string, cachedDiff]("diff-cache", DefaultExpiration, DefaultCleanupInterval)
	example := cachedDiff{
		Name: "@@ -1 +1 @@",
	}
	cache.Set(context.Background(), "diff:1", example, DefaultExpiration)

	got, ok := cache.Get(context.Background(), "diff:1")
	require.True(t, ok)
	require.Equal(t, example, got)
}

func TestNewInMemoryCacheManager_GetExistingValue(t *testing.T) {
	cache := NewInMemoryCacheManager[string, string]("diff-cache", DefaultExpiration, DefaultCleanupInterval)
	cache.Set(context.Background(), "c0ffee", "@@ -1 +1 @@", DefaultExpiration)

	got, ok := cache.Get(context.Background(), "c0ffee")
	require.True(t, ok)
	require.Equal(t, "@@ -1 +1 @@", got)
}

func TestNewInMemoryCacheManager_GetWithNoExistingValue(t *testing.T) {
	cache := NewInMemoryCacheManager[string, string]("diff-cache", DefaultExpiration, DefaultCleanupInterval)

	got, ok := cache.Get(context.Background(), "c0ffee")
	require.False(t, ok)
	require.Empty(t, got)
}

func TestNewInMemoryCacheManager_GetWithExistingInvalidValueType(t *testing.T) {
	cache := NewInMemoryCacheManager[string, string]("diff-cache", DefaultExpiration, DefaultCleanupInterval)

	cache.cache.Set("c0ffee", 123, DefaultExpiration)

	got, ok := cache.Get(context.Background(), "c0ffee")
	require.False(t, ok)
	require.Empty(t, got)
}

func TestNewInMemoryCacheManager_GetWithRefresh_WithNoExistingValue(t *testing.T) {
	cache := NewInMemoryCacheManager[string, string]("diff-cache", DefaultExpiration, DefaultCleanupInterval)

	got, ok := cache.GetWithRefresh(context.Background(), "c0ffee", time.Minute*60)
	require.False(t, ok)
	require.Equal(t, "", got)
}

func TestNewInMemoryCacheManager_GetWithRefresh_WithExistingValue(t *testing.T) {
	cache := NewInMemoryCacheManager[string, string]("diff-cache", DefaultExpiration, DefaultCleanupInterval)
	cache.Set(context.Background(), "c0ffee", "@@ -1 +1 @@", DefaultExpiration)

	got, ok := cache.GetWithRefresh(context.Background(), "c0ffee", time.Minute*60)
	require.True(t, ok)
	require.Equal(t, "@@ -1 +1 @@", got)
}

func TestNewInMemoryCacheManager_DeleteWithNoKeysDoesNothing(t *testing.T) {
	cache := NewInMemoryCacheManager[string, string]("diff-cache", DefaultExpiration, DefaultCleanupInterval)

	err := cache.Delete(context.Background())
	require.NoError(t, err)
}

func TestNewInMemoryCacheManager_DeleteExistingValue(t *testing.T) {
	cache := NewInMemoryCacheManager[string, string]("diff-cache", DefaultExpiration, DefaultCleanupInterval)
	cache.Set(context.Background(), "c0ffee", "@@ -1 +1 @@", DefaultExpiration)

	got, ok := cache.Get(context.Background(), "c0ffee")
	require.True(t, ok)
	require.Equal(t, "@@ -1 +1 @@", got)

	err := cache.Delete(context.Background(), "c0ffee")
	require.NoError(t, err)

	got, ok = cache.Get(context.Background(), "c0ffee")
	require.False(t, ok)
	require.Equal(t, "", got)
}

func TestNewInMemoryCacheManager_Flush(t *testing.T) {
	cache := NewInMemoryCacheManager[string, string]("diff-cache", DefaultExpiration, DefaultCleanupInterval)
	cache.Set(context.Background(), "c0ffee", "@@ -1 +1 @@", DefaultExpiration)

	got, ok := cache.Get(context.Background(), "c0ffee")
	require.True(t, ok)
	require.Equal(t, "@@ -1 +1 @@", got)

	err := cache.Flush(context.Background())
	require.NoError(t, err)

	got, ok = cache.Get(context.Background(), "c0ffee")
	require.False(t, ok)
	require.Equal(t, "", got)
}

func TestNewInMemoryCacheManager_DeletePrefix(t *testing.T) {
	cache := NewInMemoryCacheManager[string, string]("diff-cache", DefaultExpiration, DefaultCleanupInterval)
	ctx := context.Background()
	cache.Set(ctx, "/repo:abc", "a", DefaultExpiration)
	cache.Set(ctx, "/repo:def", "b", DefaultExpiration)
	cache.Set(ctx, "/other:abc", "c", DefaultExpiration)

	require.Equal(t, 2, cache.DeletePrefix(ctx, "/repo:"))

	_, ok := cache.Get(ctx, "/repo:abc")
	require.False(t, ok)
	got, ok := cache.Get(ctx, "/other:abc")
	require.True(t, ok)
	require.Equal(t, "c", got)
}

type commitKey string

func TestNewInMemoryCacheManager_TypedKeysAndStats(t *testing.T) {
	cache := NewInMemoryCacheManager[commitKey, int]("diff-cache", DefaultExpiration, DefaultCleanupInterval)
	ctx := context.Background()
	cache.Set(ctx, commitKey("abc"), 3, DefaultExpiration)

	_, _ = cache.Get(ctx, "abc")
	_, _ = cache.Get(ctx, "abc")
	_, _ = cache.Get(ctx, "missing")

	require.Equal(t, Stats{Hits: 2, Misses: 1, Items: 1}, cache.Stats())

	require.NoError(t, cache.Flush(ctx))
	require.Equal(t, Stats{}, cache.Stats())
}
