package cachemanager

import (
	"context"
	"time"
)

// CacheManager stores values by string-like keys with a per-entry TTL.
type CacheManager[K ~string, V any] interface {
	Get(ctx context.Context, key K) (V, bool)
	GetWithRefresh(ctx context.Context, key K, ttl time.Duration) (V, bool)
	Set(ctx context.Context, key K, value V, ttl time.Duration)
	Delete(ctx context.Context, keys ...K) error
	DeletePrefix(ctx context.Context, prefix string) int
	Flush(ctx context.Context) error
	Stats() Stats
}

// Stats are hit/miss counters since creation or the last Flush.
type Stats struct {
	Hits   uint64
	Misses uint64
	Items  int
}
