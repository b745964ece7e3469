package cache

import (
	"container/list"
	"context"
	"strconv"
	"sync"
	"time"
)

const defaultMemoryTTL = 7 * 24 * time.Hour

type memoryEntry struct {
	key      string
	value    []byte
	expireAt time.Time
}

type MemoryOption func(*MemoryCache)

// WithMemoryMaxSize bounds the entry count; the least recently used entry
// is evicted first.
func WithMemoryMaxSize(n int) MemoryOption {
	return func(mc *MemoryCache) {
		if n > 0 {
			mc.maxSize = n
		}
	}
}

// WithMemoryCleanup sets the janitor period. Zero disables the janitor and
// expired entries are then dropped on access only.
func WithMemoryCleanup(every time.Duration) MemoryOption {
	return func(mc *MemoryCache) { mc.cleanupEvery = every }
}

func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(mc *MemoryCache) { mc.now = now }
}

// MemoryCache is a bounded LRU map with per-entry expiry.
type MemoryCache struct {
	mu      sync.Mutex
	items   map[string]*list.Element
	order   *list.List // front is most recently used
	maxSize int
	now     func() time.Time

	cleanupEvery time.Duration
	done         chan struct{}
	closeOnce    sync.Once
}

func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	mc := &MemoryCache{
		items:        make(map[string]*list.Element),
		order:        list.New(),
		maxSize:      1000,
		now:          time.Now,
		cleanupEvery: 5 * time.Minute,
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(mc)
	}
	if mc.cleanupEvery > 0 {
		go mc.janitor()
	}
	return mc
}

func (mc *MemoryCache) Get(_ context.Context, key string, dest any) error {
	mc.mu.Lock()
	e := mc.lookupLocked(key)
	var value []byte
	if e != nil {
		value = e.value
	}
	mc.mu.Unlock()

	if e == nil {
		return ErrMiss
	}
	return unmarshal(value, dest)
}

func (mc *MemoryCache) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	data, err := marshal(value)
	if err != nil {
		return err
	}
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.storeLocked(key, append([]byte(nil), data...), ttl)
	return nil
}

func (mc *MemoryCache) Delete(_ context.Context, keys ...string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	for _, k := range keys {
		if el, ok := mc.items[k]; ok {
			mc.removeLocked(el)
		}
	}
	return nil
}

func (mc *MemoryCache) Has(_ context.Context, key string) (bool, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.lookupLocked(key) != nil, nil
}

// Incr mirrors RedisCache.Incr: a missing or expired key restarts at 1
// with the given ttl, an existing counter keeps its expiry.
func (mc *MemoryCache) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	e := mc.lookupLocked(key)
	if e == nil {
		mc.storeLocked(key, []byte("1"), ttl)
		return 1, nil
	}
	n, err := strconv.ParseInt(string(e.value), 10, 64)
	if err != nil {
		return 0, err
	}
	n++
	e.value = []byte(strconv.FormatInt(n, 10))
	return n, nil
}

func (mc *MemoryCache) Count(_ context.Context, key string) (int64, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	e := mc.lookupLocked(key)
	if e == nil {
		return 0, nil
	}
	return strconv.ParseInt(string(e.value), 10, 64)
}

// Len counts stored entries, including expired ones the janitor has not
// reached yet.
func (mc *MemoryCache) Len() int {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return len(mc.items)
}

func (mc *MemoryCache) Close() error {
	mc.closeOnce.Do(func() { close(mc.done) })
	return nil
}

// lookupLocked returns the live entry for key and marks it used. Expired
// entries are removed.
func (mc *MemoryCache) lookupLocked(key string) *memoryEntry {
	el, ok := mc.items[key]
	if !ok {
		return nil
	}
	e := el.Value.(*memoryEntry)
	if mc.now().After(e.expireAt) {
		mc.removeLocked(el)
		return nil
	}
	mc.order.MoveToFront(el)
	return e
}

func (mc *MemoryCache) storeLocked(key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = defaultMemoryTTL
	}
	expireAt := mc.now().Add(ttl)
	if el, ok := mc.items[key]; ok {
		e := el.Value.(*memoryEntry)
		e.value, e.expireAt = value, expireAt
		mc.order.MoveToFront(el)
		return
	}
	for len(mc.items) >= mc.maxSize {
		mc.removeLocked(mc.order.Back())
	}
	mc.items[key] = mc.order.PushFront(&memoryEntry{key: key, value: value, expireAt: expireAt})
}

func (mc *MemoryCache) removeLocked(el *list.Element) {
	mc.order.Remove(el)
	delete(mc.items, el.Value.(*memoryEntry).key)
}

func (mc *MemoryCache) janitor() {
	t := time.NewTicker(mc.cleanupEvery)
	defer t.Stop()
	for {
		select {
		case <-mc.done:
			return
		case <-t.C:
			mc.mu.Lock()
			now := mc.now()
			for el := mc.order.Back(); el != nil; {
				prev := el.Prev()
				if now.After(el.Value.(*memoryEntry).expireAt) {
					mc.removeLocked(el)
				}
				el = prev
			}
			mc.mu.Unlock()
		}
	}
}
