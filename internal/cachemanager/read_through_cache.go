package cachemanager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrLoaderPanic wraps a panic recovered from the load function.
var ErrLoaderPanic = errors.New("cache loader panicked")

// ReadThroughCache loads missing values with fn and stores them. Concurrent
// loads of the same key share one call to fn.
type ReadThroughCache[K ~string, V any, I any] struct {
	cache           CacheManager[K, V]
	fn              func(ctx context.Context, input I) (V, error)
	shouldSkipCache bool

	mu       sync.Mutex
	inflight map[K]*call[V]
}

type call[V any] struct {
	done  chan struct{}
	value V
	err   error
}

func NewReadThroughCache[K ~string, V any, I any](
	cache CacheManager[K, V],
	fn func(ctx context.Context, input I) (V, error),
	shouldSkipCache bool,
) *ReadThroughCache[K, V, I] {
	return &ReadThroughCache[K, V, I]{
		cache:           cache,
		fn:              fn,
		shouldSkipCache: shouldSkipCache,
		inflight:        make(map[K]*call[V]),
	}
}

func (r *ReadThroughCache[K, V, I]) Get(ctx context.Context, key K, input I, ttl time.Duration) (V, error) {
	if r.shouldSkipCache {
		return r.fn(ctx, input)
	}

	if value, ok := r.cache.Get(ctx, key); ok {
		return value, nil
	}

	return r.load(ctx, key, input, ttl)
}

func (r *ReadThroughCache[K, V, I]) GetWithRefresh(ctx context.Context, key K, input I, ttl time.Duration) (V, error) {
	if r.shouldSkipCache {
		return r.fn(ctx, input)
	}

	if value, ok := r.cache.GetWithRefresh(ctx, key, ttl); ok {
		return value, nil
	}

	return r.load(ctx, key, input, ttl)
}

// Invalidate drops every cached value under prefix.
func (r *ReadThroughCache[K, V, I]) Invalidate(ctx context.Context, prefix string) int {
	return r.cache.DeletePrefix(ctx, prefix)
}

func (r *ReadThroughCache[K, V, I]) load(ctx context.Context, key K, input I, ttl time.Duration) (V, error) {
	r.mu.Lock()
	if c, ok := r.inflight[key]; ok {
		r.mu.Unlock()
		select {
		case <-c.done:
			return c.value, c.err
		case <-ctx.Done():
			var zero V
			return zero, ctx.Err()
		}
	}
	c := &call[V]{done: make(chan struct{})}
	r.inflight[key] = c
	r.mu.Unlock()

	c.value, c.err = r.call(ctx, input)
	if c.err == nil {
		r.cache.Set(ctx, key, c.value, ttl)
	}

	r.mu.Lock()
	delete(r.inflight, key)
	r.mu.Unlock()
	close(c.done)

	return c.value, c.err
}

// call runs fn. A panic becomes an error so waiters on the key are released.
func (r *ReadThroughCache[K, V, I]) call(ctx context.Context, input I) (value V, err error) {
	defer func() {
		if p := recover(); p != nil {
			var zero V
			value, err = zero, fmt.Errorf("%w: %v", ErrLoaderPanic, p)
		}
	}()
	return r.fn(ctx, input)
}
