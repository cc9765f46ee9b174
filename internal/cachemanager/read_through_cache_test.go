package cachemanager_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/lanes/internal/cachemanager"
	"github.com/zjrosen/lanes/internal/mocks"
)

type parsed struct {
	ID    string
	Hunks int
}

func loader(calls *atomic.Int32) func(context.Context, string) (parsed, error) {
	return func(_ context.Context, id string) (parsed, error) {
		calls.Add(1)
		return parsed{ID: id, Hunks: 2}, nil
	}
}

func TestReadThroughCache_Get_WithCacheDisabled(t *testing.T) {
	managerMock := mocks.NewMockCacheManager[string, parsed](t)
	var calls atomic.Int32

	rtc := cachemanager.NewReadThroughCache[string, parsed, string](managerMock, loader(&calls), true)

	got, err := rtc.Get(context.Background(), "key", "abc", time.Minute)
	require.NoError(t, err)
	require.Equal(t, parsed{ID: "abc", Hunks: 2}, got)
	require.EqualValues(t, 1, calls.Load())
}

func TestReadThroughCache_GetWithRefresh_WithCacheDisabled(t *testing.T) {
	managerMock := mocks.NewMockCacheManager[string, parsed](t)
	var calls atomic.Int32

	rtc := cachemanager.NewReadThroughCache[string, parsed, string](managerMock, loader(&calls), true)

	got, err := rtc.GetWithRefresh(context.Background(), "key", "abc", time.Minute)
	require.NoError(t, err)
	require.Equal(t, "abc", got.ID)
}

func TestReadThroughCache_Get_WithValueInCache(t *testing.T) {
	managerMock := mocks.NewMockCacheManager[string, parsed](t)
	managerMock.On("Get", mock.Anything, "key").Return(parsed{ID: "cached"}, true)
	var calls atomic.Int32

	rtc := cachemanager.NewReadThroughCache[string, parsed, string](managerMock, loader(&calls), false)

	got, err := rtc.Get(context.Background(), "key", "abc", time.Minute)
	require.NoError(t, err)
	require.Equal(t, parsed{ID: "cached"}, got)
	require.Zero(t, calls.Load())
}

func TestReadThroughCache_Get_EmptyCache(t *testing.T) {
	managerMock := mocks.NewMockCacheManager[string, parsed](t)
	managerMock.On("Get", mock.Anything, "key").Return(parsed{}, false)
	managerMock.On("Set", mock.Anything, "key", parsed{ID: "abc", Hunks: 2}, time.Minute).Return()
	var calls atomic.Int32

	rtc := cachemanager.NewReadThroughCache[string, parsed, string](managerMock, loader(&calls), false)

	got, err := rtc.Get(context.Background(), "key", "abc", time.Minute)
	require.NoError(t, err)
	require.Equal(t, parsed{ID: "abc", Hunks: 2}, got)
}

func TestReadThroughCache_Get_LoadErrorIsNotCached(t *testing.T) {
	managerMock := mocks.NewMockCacheManager[string, parsed](t)
	managerMock.On("Get", mock.Anything, "key").Return(parsed{}, false)

	rtc := cachemanager.NewReadThroughCache[string, parsed, string](
		managerMock,
		func(context.Context, string) (parsed, error) { return parsed{}, errors.New("git failed") },
		false,
	)

	_, err := rtc.Get(context.Background(), "key", "abc", time.Minute)
	require.Error(t, err)
	managerMock.AssertNotCalled(t, "Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestReadThroughCache_GetWithRefresh_WithValueInCache(t *testing.T) {
	managerMock := mocks.NewMockCacheManager[string, parsed](t)
	managerMock.On("GetWithRefresh", mock.Anything, "key", time.Minute).Return(parsed{ID: "cached"}, true)
	var calls atomic.Int32

	rtc := cachemanager.NewReadThroughCache[string, parsed, string](managerMock, loader(&calls), false)

	got, err := rtc.GetWithRefresh(context.Background(), "key", "abc", time.Minute)
	require.NoError(t, err)
	require.Equal(t, "cached", got.ID)
	require.Zero(t, calls.Load())
}

func TestReadThroughCache_GetWithRefresh_EmptyCache(t *testing.T) {
	managerMock := mocks.NewMockCacheManager[string, parsed](t)
	managerMock.On("GetWithRefresh", mock.Anything, "key", time.Minute).Return(parsed{}, false)
	managerMock.On("Set", mock.Anything, "key", parsed{ID: "abc", Hunks: 2}, time.Minute).Return()
	var calls atomic.Int32

	rtc := cachemanager.NewReadThroughCache[string, parsed, string](managerMock, loader(&calls), false)

	got, err := rtc.GetWithRefresh(context.Background(), "key", "abc", time.Minute)
	require.NoError(t, err)
	require.Equal(t, "abc", got.ID)
}

func TestReadThroughCache_ConcurrentLoadsShareOneCall(t *testing.T) {
	cache := cachemanager.NewInMemoryCacheManager[string, parsed]("test", cachemanager.DefaultExpiration, cachemanager.DefaultCleanupInterval)
	release := make(chan struct{})
	var calls atomic.Int32

	rtc := cachemanager.NewReadThroughCache[string, parsed, string](
		cache,
		func(_ context.Context, id string) (parsed, error) {
			calls.Add(1)
			<-release
			return parsed{ID: id}, nil
		},
		false,
	)

	var wg sync.WaitGroup
	results := make([]parsed, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := rtc.Get(context.Background(), "key", "abc", time.Minute)
			if err == nil {
				results[i] = v
			}
		}(i)
	}

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	// Give the other callers time to join the in-flight load.
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	for _, r := range results {
		require.Equal(t, "abc", r.ID)
	}
	require.EqualValues(t, 1, calls.Load())
}

func TestReadThroughCache_WaiterHonoursContext(t *testing.T) {
	cache := cachemanager.NewInMemoryCacheManager[string, parsed]("test", cachemanager.DefaultExpiration, cachemanager.DefaultCleanupInterval)
	release := make(chan struct{})
	started := make(chan struct{})

	rtc := cachemanager.NewReadThroughCache[string, parsed, string](
		cache,
		func(_ context.Context, id string) (parsed, error) {
			close(started)
			<-release
			return parsed{ID: id}, nil
		},
		false,
	)

	go func() { _, _ = rtc.Get(context.Background(), "key", "abc", time.Minute) }()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := rtc.Get(ctx, "key", "abc", time.Minute)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	close(release)
}

func TestReadThroughCache_LoaderPanicReleasesKey(t *testing.T) {
	cache := cachemanager.NewInMemoryCacheManager[string, parsed]("test", cachemanager.DefaultExpiration, cachemanager.DefaultCleanupInterval)
	var calls atomic.Int32

	rtc := cachemanager.NewReadThroughCache[string, parsed, string](
		cache,
		func(_ context.Context, id string) (parsed, error) {
			if calls.Add(1) == 1 {
				panic("bad object")
			}
			return parsed{ID: id}, nil
		},
		false,
	)

	_, err := rtc.Get(context.Background(), "key", "abc", time.Minute)
	require.ErrorIs(t, err, cachemanager.ErrLoaderPanic)
	require.ErrorContains(t, err, "bad object")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got, err := rtc.Get(ctx, "key", "abc", time.Minute)
	require.NoError(t, err, "the key is loadable again")
	require.Equal(t, "abc", got.ID)
	require.EqualValues(t, 2, calls.Load())
}

func TestReadThroughCache_Invalidate(t *testing.T) {
	cache := cachemanager.NewInMemoryCacheManager[string, parsed]("test", cachemanager.DefaultExpiration, cachemanager.DefaultCleanupInterval)
	var calls atomic.Int32
	rtc := cachemanager.NewReadThroughCache[string, parsed, string](cache, loader(&calls), false)
	ctx := context.Background()

	_, err := rtc.Get(ctx, "/repo:a", "a", time.Minute)
	require.NoError(t, err)
	_, err = rtc.Get(ctx, "/other:b", "b", time.Minute)
	require.NoError(t, err)

	require.Equal(t, 1, rtc.Invalidate(ctx, "/repo:"))

	_, err = rtc.Get(ctx, "/repo:a", "a", time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, 3, calls.Load())
}
