package cache

import (
	"context"
	"time"
)

// LayeredCache reads through a process-local MemoryCache into a shared
// cache and writes to both. Counters and existence checks go to the shared
// layer only, so replicas agree on them.
type LayeredCache struct {
	local    *MemoryCache
	shared   Cache
	localTTL time.Duration
}

type LayeredOption func(*LayeredCache)

// WithLocalSize bounds the number of entries kept in process.
func WithLocalSize(n int) LayeredOption {
	return func(lc *LayeredCache) {
		lc.local = NewMemoryCache(WithMemoryMaxSize(n))
	}
}

// WithLocalTTL caps how long a value read from the shared layer stays
// local. Deletes made by other replicas are visible after at most this long.
func WithLocalTTL(ttl time.Duration) LayeredOption {
	return func(lc *LayeredCache) {
		if ttl > 0 {
			lc.localTTL = ttl
		}
	}
}

func NewLayeredCache(shared Cache, opts ...LayeredOption) *LayeredCache {
	lc := &LayeredCache{shared: shared, localTTL: 5 * time.Minute}
	for _, opt := range opts {
		opt(lc)
	}
	if lc.local == nil {
		lc.local = NewMemoryCache()
	}
	return lc
}

func (lc *LayeredCache) Get(ctx context.Context, key string, dest any) error {
	var raw []byte
	if lc.local.Get(ctx, key, &raw) == nil {
		return unmarshal(raw, dest)
	}
	if err := lc.shared.Get(ctx, key, &raw); err != nil {
		return err
	}
	_ = lc.local.Set(ctx, key, raw, lc.localTTL)
	return unmarshal(raw, dest)
}

func (lc *LayeredCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	raw, err := marshal(value)
	if err != nil {
		return err
	}
	if err := lc.shared.Set(ctx, key, raw, ttl); err != nil {
		return err
	}
	local := lc.localTTL
	if ttl > 0 && ttl < local {
		local = ttl
	}
	return lc.local.Set(ctx, key, raw, local)
}

func (lc *LayeredCache) Delete(ctx context.Context, keys ...string) error {
	_ = lc.local.Delete(ctx, keys...)
	return lc.shared.Delete(ctx, keys...)
}

func (lc *LayeredCache) Has(ctx context.Context, key string) (bool, error) {
	return lc.shared.Has(ctx, key)
}

// Incr drops any local copy of key so a later Get sees the new value.
func (lc *LayeredCache) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	_ = lc.local.Delete(ctx, key)
	return lc.shared.Incr(ctx, key, ttl)
}

func (lc *LayeredCache) Count(ctx context.Context, key string) (int64, error) {
	return lc.shared.Count(ctx, key)
}

func (lc *LayeredCache) Close() error {
	_ = lc.local.Close()
	return lc.shared.Close()
}
