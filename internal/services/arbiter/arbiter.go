// Package arbiter consults an AI provider for borderline decisions, behind
// a response cache, a daily quota and per-key single-flight.
package arbiter

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"NewsSignal/internal/domain/models"
	"NewsSignal/internal/domain/repository"
	"NewsSignal/internal/services/contextual"
	"NewsSignal/internal/services/sourceweight"
	xlogger "NewsSignal/pkg/logger"
)

const (
	MaxReasonLen = 160
	AllSources   = "all"
)

// ResponseCache is implemented by aicache.Store.
type ResponseCache interface {
	Get(ctx context.Context, hash string) (models.AICacheEntry, bool, error)
	Put(ctx context.Context, e models.AICacheEntry) error
}

// Quota is implemented by aicache.Quota.
type Quota interface {
	TryAcquire(ctx context.Context, now time.Time) (models.DailyQuotaCounter, bool, error)
	Status(ctx context.Context, now time.Time) (models.DailyQuotaCounter, error)
}

type Config struct {
	Enabled        bool
	AllowedSources []string
	Band           float64
	Timeout        time.Duration
}

// Request describes one scored statement.
type Request struct {
	Text   string
	Source string
	Score  float64
	Buy    float64
	Sell   float64
}

// Stats backs the debug surface.
type Stats struct {
	Enabled   bool                     `json:"enabled"`
	Provider  string                   `json:"provider"`
	Calls     int64                    `json:"calls"`
	CacheHits int64                    `json:"cache_hits"`
	Limited   int64                    `json:"limited"`
	Errors    int64                    `json:"errors"`
	Quota     models.DailyQuotaCounter `json:"quota"`
}

type Option func(*Arbiter)

func WithLogger(l *xlogger.Logger) Option { return func(a *Arbiter) { a.logger = l } }

func WithMetrics(m repository.Metrics) Option { return func(a *Arbiter) { a.metrics = m } }

func WithClock(now func() time.Time) Option { return func(a *Arbiter) { a.now = now } }

type Arbiter struct {
	cfg      Config
	allowAll bool
	allowed  map[string]struct{}
	provider repository.AIProvider
	cache    ResponseCache
	quota    Quota
	group    singleflight.Group
	logger   *xlogger.Logger
	metrics  repository.Metrics
	now      func() time.Time

	calls, hits, limited, errs atomic.Int64
}

func New(cfg Config, provider repository.AIProvider, cache ResponseCache, quota Quota, opts ...Option) *Arbiter {
	if cfg.Band < 0 {
		cfg.Band = 0
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	a := &Arbiter{
		cfg:      cfg,
		allowed:  map[string]struct{}{},
		provider: provider,
		cache:    cache,
		quota:    quota,
		logger:   xlogger.NewNop(),
		now:      time.Now,
	}
	for _, s := range cfg.AllowedSources {
		s = sourceweight.Normalize(s)
		if s == AllSources {
			a.allowAll = true
		}
		if s != "" {
			a.allowed[s] = struct{}{}
		}
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Key is the cache key for a statement: sha256 of normalized text and
// normalized source.
func Key(text, source string) string {
	h := sha256.Sum256([]byte(contextual.NormalizeText(text) + "\x00" + sourceweight.Normalize(source)))
	return hex.EncodeToString(h[:])
}

// Borderline reports whether score lies within band of either boundary.
func Borderline(score, buy, sell, band float64) bool {
	return math.Min(math.Abs(score-buy), math.Abs(score-sell)) <= band
}

// Eligible applies the gate without touching cache or quota.
func (a *Arbiter) Eligible(req Request) bool {
	if !a.cfg.Enabled || a.provider == nil {
		return false
	}
	if !a.allowAll {
		if _, ok := a.allowed[sourceweight.Normalize(req.Source)]; !ok {
			return false
		}
	}
	return Borderline(req.Score, req.Buy, req.Sell, a.cfg.Band)
}

// Arbitrate returns nil when the request is not eligible. Otherwise it
// always returns an outcome; failures only show up in its fields.
func (a *Arbiter) Arbitrate(ctx context.Context, req Request) *models.AIOutcome {
	if !a.Eligible(req) {
		return nil
	}
	key := Key(req.Text, req.Source)

	if e, ok, err := a.cache.Get(ctx, key); err != nil {
		a.logger.Warn("ai cache lookup failed", xlogger.Error(err))
	} else if ok {
		a.hits.Add(1)
		a.record("cache_hit")
		return &models.AIOutcome{Used: true, CacheHit: true, Reason: e.DecisionReason}
	}

	v, _, _ := a.group.Do(key, func() (interface{}, error) {
		return a.fetch(ctx, key, contextual.NormalizeText(req.Text)), nil
	})
	out := *v.(*models.AIOutcome)
	return &out
}

// fetch runs once per key at a time. The provider call is detached from the
// caller's cancellation so coalesced waiters are not failed by the leader
// leaving early; the timeout still bounds it.
func (a *Arbiter) fetch(ctx context.Context, key, normalized string) *models.AIOutcome {
	detached := context.WithoutCancel(ctx)

	// another flight may have filled the cache since our lookup
	if e, ok, err := a.cache.Get(detached, key); err == nil && ok {
		a.hits.Add(1)
		a.record("cache_hit")
		return &models.AIOutcome{Used: true, CacheHit: true, Reason: e.DecisionReason}
	}

	counter, ok, err := a.quota.TryAcquire(detached, a.now())
	if err != nil {
		a.errs.Add(1)
		a.record("error")
		a.logger.Warn("ai quota check failed", xlogger.Error(err))
		return &models.AIOutcome{Error: err.Error()}
	}
	if !ok {
		a.limited.Add(1)
		a.record("limited")
		a.logger.Info("ai daily quota exhausted",
			xlogger.String("date", counter.Date),
			xlogger.Int("limit", counter.Limit))
		return &models.AIOutcome{Limited: true}
	}

	a.calls.Add(1)
	callCtx, cancel := context.WithTimeout(detached, a.cfg.Timeout)
	defer cancel()
	start := time.Now()
	raw, err := a.provider.Ask(callCtx, normalized)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, repository.ErrProviderTimeout) {
			err = fmt.Errorf("%w: %w", repository.ErrProviderTimeout, err)
		}
		a.errs.Add(1)
		a.record("error")
		a.logger.Warn("ai provider call failed",
			xlogger.String("provider", a.provider.Name()),
			xlogger.Duration("elapsed", time.Since(start)),
			xlogger.Error(err))
		return &models.AIOutcome{Error: err.Error()}
	}

	reason := Sanitize(raw)
	if reason == "" {
		a.errs.Add(1)
		a.record("error")
		return &models.AIOutcome{Error: repository.ErrProvider.Error() + ": empty reason"}
	}
	if err := a.cache.Put(detached, models.AICacheEntry{InputHash: key, DecisionReason: reason, CachedAt: a.now()}); err != nil {
		a.logger.Warn("ai cache store failed", xlogger.Error(err))
	}
	a.record("used")
	return &models.AIOutcome{Used: true, Reason: reason}
}

func (a *Arbiter) record(outcome string) {
	if a.metrics != nil {
		a.metrics.RecordAI(outcome)
	}
}

func (a *Arbiter) Stats(ctx context.Context) Stats {
	s := Stats{
		Enabled:   a.cfg.Enabled,
		Calls:     a.calls.Load(),
		CacheHits: a.hits.Load(),
		Limited:   a.limited.Load(),
		Errors:    a.errs.Load(),
	}
	if a.provider != nil {
		s.Provider = a.provider.Name()
	}
	if q, err := a.quota.Status(ctx, a.now()); err == nil {
		s.Quota = q
	}
	return s
}

// Sanitize keeps printable ASCII on one line, collapses whitespace and caps
// the result at MaxReasonLen characters.
func Sanitize(s string) string {
	var b strings.Builder
	space := false
	for _, r := range s {
		if r > 0x7e || r < 0x20 || r == ' ' {
			if b.Len() > 0 {
				space = true
			}
			continue
		}
		if space {
			if b.Len() >= MaxReasonLen-1 {
				break
			}
			b.WriteByte(' ')
			space = false
		}
		b.WriteRune(r)
		if b.Len() >= MaxReasonLen {
			break
		}
	}
	return b.String()
}
