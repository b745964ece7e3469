package aicache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"NewsSignal/internal/domain/models"
	"NewsSignal/pkg/cache"
)

const quotaPrefix = "ai:quota"

// Quota is a per-UTC-day call counter. Check and increment happen under one
// mutex and the check always reads the shared counter, so a process never
// increments a counter it has seen at the limit. With several replicas a
// lost race is caught by the INCR result and the call is refused.
type Quota struct {
	mu      sync.Mutex
	backend cache.Cache
	limit   int
}

func NewQuota(backend cache.Cache, limit int) *Quota {
	return &Quota{backend: backend, limit: limit}
}

func quotaKey(now time.Time) (date, key string) {
	date = now.UTC().Format(time.DateOnly)
	return date, cache.Key(quotaPrefix, date)
}

// TryAcquire consumes one call for the day of now. ok is false when the
// limit is already reached.
func (q *Quota) TryAcquire(ctx context.Context, now time.Time) (models.DailyQuotaCounter, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	date, key := quotaKey(now)
	c := models.DailyQuotaCounter{Date: date, Limit: q.limit}

	used, err := q.usedLocked(ctx, key)
	if err != nil {
		return c, false, err
	}
	if used >= q.limit {
		c.CallsUsed = q.limit
		return c, false, nil
	}

	// yesterday's key stays around briefly for inspection
	n, err := q.backend.Incr(ctx, key, 48*time.Hour)
	if err != nil {
		return c, false, fmt.Errorf("quota incr: %w", err)
	}
	if n > int64(q.limit) {
		c.CallsUsed = q.limit
		return c, false, nil
	}
	c.CallsUsed = int(n)
	return c, true, nil
}

// Status reads the counter without changing it.
func (q *Quota) Status(ctx context.Context, now time.Time) (models.DailyQuotaCounter, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	date, key := quotaKey(now)
	used, err := q.usedLocked(ctx, key)
	return models.DailyQuotaCounter{Date: date, CallsUsed: min(used, q.limit), Limit: q.limit}, err
}

func (q *Quota) usedLocked(ctx context.Context, key string) (int, error) {
	n, err := q.backend.Count(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("quota get: %w", err)
	}
	return int(n), nil
}
