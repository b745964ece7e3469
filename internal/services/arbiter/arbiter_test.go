package arbiter

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"NewsSignal/internal/domain/repository"
	"NewsSignal/internal/service/aicache"
	"NewsSignal/pkg/cache"
)

type fakeProvider struct {
	calls atomic.Int64
	reply string
	block chan struct{}
	wait  bool
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Ask(ctx context.Context, in string) (string, error) {
	p.calls.Add(1)
	if p.wait {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if p.block != nil {
		<-p.block
	}
	return p.reply, nil
}

func newArbiter(t *testing.T, p repository.AIProvider, limit int, cfg Config) *Arbiter {
	t.Helper()
	mc := cache.NewMemoryCache(cache.WithMemoryCleanup(0))
	t.Cleanup(func() { _ = mc.Close() })
	if cfg.AllowedSources == nil {
		cfg.AllowedSources = []string{"all"}
	}
	cfg.Enabled = true
	if cfg.Band == 0 {
		cfg.Band = 0.1
	}
	return New(cfg, p, aicache.NewStore(mc, time.Hour), aicache.NewQuota(mc, limit))
}

func borderline(text string) Request {
	return Request{Text: text, Source: "Reuters", Score: 0.30, Buy: 0.35, Sell: -0.35}
}

func TestCacheHitMakesOneCall(t *testing.T) {
	p := &fakeProvider{reply: "Neutral hint (mock)"}
	a := newArbiter(t, p, 20, Config{})
	ctx := context.Background()

	first := a.Arbitrate(ctx, borderline("Fed holds rates"))
	require.NotNil(t, first)
	assert.True(t, first.Used)
	assert.False(t, first.CacheHit)

	second := a.Arbitrate(ctx, borderline("  fed HOLDS   rates "))
	require.NotNil(t, second)
	assert.True(t, second.CacheHit)
	assert.Equal(t, first.Reason, second.Reason)
	assert.Equal(t, int64(1), p.calls.Load())

	st := a.Stats(ctx)
	assert.Equal(t, 1, st.Quota.CallsUsed, "cache hits consume no quota")
	assert.Equal(t, int64(1), st.CacheHits)
}

func TestQuotaExhausted(t *testing.T) {
	p := &fakeProvider{reply: "ok"}
	a := newArbiter(t, p, 1, Config{})
	ctx := context.Background()

	require.True(t, a.Arbitrate(ctx, borderline("one")).Used)

	out := a.Arbitrate(ctx, borderline("two"))
	assert.True(t, out.Limited)
	assert.False(t, out.Used)
	out = a.Arbitrate(ctx, borderline("three"))
	assert.True(t, out.Limited)
	assert.Equal(t, int64(1), p.calls.Load())
}

func TestConcurrentIdenticalRequestsShareOneCall(t *testing.T) {
	p := &fakeProvider{reply: "shared", block: make(chan struct{})}
	a := newArbiter(t, p, 20, Config{})
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]bool, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = a.Arbitrate(ctx, borderline("Dow slips")).Used
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(p.block)
	wg.Wait()

	for _, used := range results {
		assert.True(t, used)
	}
	assert.Equal(t, int64(1), p.calls.Load())
	assert.Equal(t, 1, a.Stats(ctx).Quota.CallsUsed)
}

func TestTimeoutLeavesDecisionAlone(t *testing.T) {
	p := &fakeProvider{wait: true}
	a := newArbiter(t, p, 20, Config{Timeout: 10 * time.Millisecond})

	out := a.Arbitrate(context.Background(), borderline("slow"))
	require.NotNil(t, out)
	assert.False(t, out.Used)
	assert.Contains(t, out.Error, repository.ErrProviderTimeout.Error())
}

func TestGate(t *testing.T) {
	p := &fakeProvider{reply: "x"}
	a := newArbiter(t, p, 20, Config{AllowedSources: []string{"Reuters"}})
	ctx := context.Background()

	assert.NotNil(t, a.Arbitrate(ctx, borderline("a")))

	req := borderline("b")
	req.Source = "random blog"
	assert.Nil(t, a.Arbitrate(ctx, req))

	req = borderline("c")
	req.Score = 0.9
	assert.Nil(t, a.Arbitrate(ctx, req), "far from both boundaries")

	req = borderline("d")
	req.Score = -0.44
	assert.NotNil(t, a.Arbitrate(ctx, req))

	off := New(Config{Enabled: false}, p, nil, nil)
	assert.Nil(t, off.Arbitrate(ctx, borderline("e")))
}

func TestKeyIsNormalized(t *testing.T) {
	assert.Equal(t, Key("Fed  Holds", "REUTERS"), Key("fed holds", " reuters "))
	assert.NotEqual(t, Key("fed holds", "reuters"), Key("fed holds", "bloomberg"))
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "Hold steady. Rates unchanged", Sanitize("  Hold steady.\n\tRates unchanged  "))
	assert.Equal(t, "caf ok", Sanitize("café ok"))

	long := Sanitize(strings.Repeat("word ", 100))
	assert.LessOrEqual(t, len(long), MaxReasonLen)
	assert.False(t, strings.HasSuffix(long, " "))
}
