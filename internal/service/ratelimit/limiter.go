package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter keeps one token bucket per key, all with the same shape.
type Limiter struct {
	mu    sync.Mutex
	m     map[string]*rate.Limiter
	limit rate.Limit
	burst int
}

// New allows perMinute events per key, with bursts of up to burst.
func New(perMinute, burst int) *Limiter {
	if perMinute <= 0 {
		perMinute = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		m:     make(map[string]*rate.Limiter),
		limit: rate.Every(time.Minute / time.Duration(perMinute)),
		burst: burst,
	}
}

func (l *Limiter) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.m[key]
	if !ok {
		b = rate.NewLimiter(l.limit, l.burst)
		l.m[key] = b
	}
	return b
}

// Allow returns true if one token can be consumed for key right now.
func (l *Limiter) Allow(key string) bool {
	return l.get(key).Allow()
}

// AllowAt is Allow with an explicit clock, for tests.
func (l *Limiter) AllowAt(key string, now time.Time) bool {
	return l.get(key).AllowN(now, 1)
}

// Wait blocks until a token for key is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context, key string) error {
	return l.get(key).Wait(ctx)
}
