package usecase

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"NewsSignal/internal/domain/models"
	"NewsSignal/internal/repository"
	"NewsSignal/internal/service/ai"
	"NewsSignal/internal/service/aicache"
	"NewsSignal/internal/services/arbiter"
	"NewsSignal/internal/services/calibrate"
	"NewsSignal/internal/services/contextual"
	"NewsSignal/internal/services/disruption"
	"NewsSignal/internal/services/relevance"
	"NewsSignal/internal/services/rolling"
	"NewsSignal/internal/services/sentiment"
	"NewsSignal/internal/services/sourceweight"
	"NewsSignal/pkg/cache"
)

const (
	reutersText = "ISM manufacturing dips below 50; the Dow slips."
	djiText     = "DJI drone footage of a construction site"
)

var testNow = time.Date(2026, 6, 1, 14, 30, 0, 0, time.UTC)

func testComponents(t *testing.T) Components {
	t.Helper()
	gate, err := relevance.NewGate(nil)
	require.NoError(t, err)
	return Components{
		Gate:       gate,
		Scorer:     sentiment.NewScorer(nil),
		Weights:    sourceweight.New(nil),
		Antispam:   contextual.NewAntispam(contextual.DefaultAntispamConfig()),
		Reranker:   contextual.NewReranker(contextual.DefaultRerankConfig()),
		NER:        contextual.DefaultNER(),
		Rules:      contextual.DefaultRules(),
		Rolling:    rolling.NewStore(),
		History:    rolling.NewHistory(50),
		Disruption: disruption.NewCalculator(),
		Calibrator: calibrate.New(nil),
	}
}

func newTestEngine(t *testing.T, c Components) *DecisionEngine {
	return NewDecisionEngine(c, WithEngineClock(func() time.Time { return testNow }))
}

func TestDecideReutersSell(t *testing.T) {
	e := newTestEngine(t, testComponents(t))

	out, err := e.Decide(context.Background(), []models.StatementInput{{Source: "Reuters", Text: reutersText}})
	require.NoError(t, err)
	require.Len(t, out, 1)

	r := out[0]
	assert.Equal(t, models.DecisionSell, r.Decision)
	assert.NotEmpty(t, r.ID)
	assert.Contains(t, r.Reasons, "rel: combo:macro+hard")
	assert.Contains(t, r.Reasons[0], "relevance gate passed (rel 0.23)")
	assert.Equal(t, -2, r.Sentiment.RawScore)
	assert.InDelta(t, -0.85, r.Disruption.Score, 1e-9)
	assert.Greater(t, r.Confidence, 0.0)
	assert.LessOrEqual(t, r.Confidence, 1.0)
	assert.Contains(t, r.Reasons, "indices: Dow Jones")
}

func TestDecideDJINeutral(t *testing.T) {
	c := testComponents(t)
	e := newTestEngine(t, c)

	out, err := e.Decide(context.Background(), []models.StatementInput{{Text: djiText}})
	require.NoError(t, err)

	r := out[0]
	assert.Equal(t, models.DecisionNeutral, r.Decision)
	assert.Equal(t, calibrate.NeutralReason, r.Reasons[0])
	assert.Zero(t, r.Confidence)
	assert.Equal(t, "unknown", r.Source)
	assert.Zero(t, c.Rolling.Len())
	assert.Equal(t, 1, c.History.Len())
}

func TestDecideKeepsInputOrder(t *testing.T) {
	c := testComponents(t)
	e := NewDecisionEngine(c, WithEngineClock(func() time.Time { return testNow }), WithWorkers(2))

	batch := []models.StatementInput{
		{ID: "a", Source: "Reuters", Text: reutersText},
		{ID: "b", Text: djiText},
		{ID: "c", Source: "Bloomberg", Text: "Fed signals rate hike as CPI inflation surges; S&P 500 falls."},
	}
	out, err := e.Decide(context.Background(), batch)
	require.NoError(t, err)
	require.Len(t, out, 3)
	for i, in := range batch {
		assert.Equal(t, in.ID, out[i].ID)
	}
	assert.Equal(t, 3, c.History.Len())
}

func TestDecideDuplicateIsDecayed(t *testing.T) {
	c := testComponents(t)
	e := newTestEngine(t, c)
	in := models.StatementInput{Source: "Reuters", Text: reutersText}

	first, err := e.Decide(context.Background(), []models.StatementInput{in})
	require.NoError(t, err)
	second, err := e.Decide(context.Background(), []models.StatementInput{in})
	require.NoError(t, err)

	assert.InDelta(t, first[0].Disruption.Score*0.7, second[0].Disruption.Score, 1e-9)
	found := false
	for _, r := range second[0].Reasons {
		if r == "antispam: near-duplicate (sim 1.00)" {
			found = true
		}
	}
	assert.True(t, found, "reasons: %v", second[0].Reasons)
	assert.Equal(t, 2, c.History.Len())
}

func TestDecideCancelledLeavesNoState(t *testing.T) {
	c := testComponents(t)
	e := newTestEngine(t, c)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Decide(ctx, []models.StatementInput{{Source: "Reuters", Text: reutersText}})
	require.Error(t, err)
	assert.Zero(t, c.History.Len())
	assert.Zero(t, c.Rolling.Len())
	assert.Zero(t, c.Antispam.Len())
}

func TestAnalyzeHasNoSideEffects(t *testing.T) {
	c := testComponents(t)
	e := newTestEngine(t, c)

	res, err := e.Analyze(context.Background(), models.StatementInput{Source: "Reuters", Text: reutersText + " $DIA #macro"})
	require.NoError(t, err)
	assert.True(t, res.Relevance.Passed())
	assert.Less(t, res.Disruption.Score, 0.0)
	assert.Equal(t, []string{"DIA"}, res.Cashtags)
	assert.Zero(t, c.History.Len())
	assert.Zero(t, c.Antispam.Len())
}

func TestWeightOverride(t *testing.T) {
	e := newTestEngine(t, testComponents(t))
	w := 0.2
	out, err := e.Decide(context.Background(), []models.StatementInput{{Source: "Reuters", Text: reutersText, Weight: &w}})
	require.NoError(t, err)
	assert.InDelta(t, -0.2, out[0].Disruption.Score, 1e-9)
	assert.Equal(t, models.DecisionHold, out[0].Decision)
	assert.LessOrEqual(t, out[0].Confidence, 0.60)
}

func TestBorderlineConsultsArbiterOnce(t *testing.T) {
	mc := cache.NewMemoryCache(cache.WithMemoryCleanup(0))
	defer mc.Close()
	c := testComponents(t)
	c.Arbiter = arbiter.New(arbiter.Config{Enabled: true, AllowedSources: []string{"all"}, Band: 0.1, Timeout: time.Second},
		ai.MockProvider{}, aicache.NewStore(mc, time.Hour), aicache.NewQuota(mc, 5))
	e := newTestEngine(t, c)

	w := 0.4 // score -0.40, 0.05 from the sell boundary
	in := models.StatementInput{Source: "Reuters", Text: reutersText, Weight: &w}

	first, err := e.Decide(context.Background(), []models.StatementInput{in})
	require.NoError(t, err)
	require.NotNil(t, first[0].AI)
	assert.True(t, first[0].AI.Used)
	assert.False(t, first[0].AI.CacheHit)
	assert.Contains(t, first[0].Reasons, "ai: "+ai.MockReason)

	second, err := e.Decide(context.Background(), []models.StatementInput{in})
	require.NoError(t, err)
	require.NotNil(t, second[0].AI)
	assert.True(t, second[0].AI.CacheHit)
	assert.Equal(t, first[0].AI.Reason, second[0].AI.Reason)

	stats := e.AIStats(context.Background())
	require.NotNil(t, stats)
	assert.EqualValues(t, 1, stats.Calls)
}

func TestOnCommitHook(t *testing.T) {
	e := newTestEngine(t, testComponents(t))
	var got []string
	e.OnCommit(func(r models.DecisionRecord) { got = append(got, r.Decision.String()) })

	_, err := e.Decide(context.Background(), []models.StatementInput{{Text: djiText}})
	require.NoError(t, err)
	assert.Equal(t, []string{"NEUTRAL"}, got)
}

func TestRollingCheckpointRoundTrip(t *testing.T) {
	store := repository.NewFileStateStore(t.TempDir())
	c := testComponents(t)
	e := newTestEngine(t, c)
	_, err := e.Decide(context.Background(), []models.StatementInput{
		{Source: "Reuters", Text: reutersText, Timestamp: testNow},
	})
	require.NoError(t, err)
	require.NoError(t, e.SaveRolling(context.Background(), store))

	restored := newTestEngine(t, testComponents(t))
	require.NoError(t, restored.RestoreRolling(context.Background(), store))
	assert.Equal(t, e.RollingSnapshot(), restored.RollingSnapshot())
}

func TestRestoreRollingWithoutCheckpoint(t *testing.T) {
	e := newTestEngine(t, testComponents(t))
	err := e.RestoreRolling(context.Background(), repository.NewFileStateStore(t.TempDir()))
	require.Error(t, err)
	assert.Equal(t, 0, e.RollingSnapshot().Count)
}

type slowProvider struct{ delay time.Duration }

func (slowProvider) Name() string { return "slow" }

func (p slowProvider) Ask(ctx context.Context, _ string) (string, error) {
	select {
	case <-time.After(p.delay):
		return "slow hint", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func hasReasonPrefix(reasons []string, prefix string) bool {
	for _, r := range reasons {
		if strings.HasPrefix(r, prefix) {
			return true
		}
	}
	return false
}

func TestDecideConcurrentBatchFlagsDuplicates(t *testing.T) {
	mc := cache.NewMemoryCache(cache.WithMemoryCleanup(0))
	defer mc.Close()
	c := testComponents(t)
	c.Arbiter = arbiter.New(arbiter.Config{Enabled: true, AllowedSources: []string{"all"}, Band: 5, Timeout: time.Second},
		slowProvider{delay: 20 * time.Millisecond}, aicache.NewStore(mc, time.Hour), aicache.NewQuota(mc, 100))
	e := NewDecisionEngine(c, WithEngineClock(func() time.Time { return testNow }), WithWorkers(8))

	batch := make([]models.StatementInput, 8)
	for i := range batch {
		batch[i] = models.StatementInput{Source: fmt.Sprintf("desk-%d", i), Text: reutersText}
	}
	out, err := e.Decide(context.Background(), batch)
	require.NoError(t, err)

	dups := 0
	for _, r := range out {
		if hasReasonPrefix(r.Reasons, "antispam: near-duplicate") {
			dups++
		}
	}
	assert.Equal(t, 7, dups)
	assert.Equal(t, 8, c.Antispam.Len())
}

func TestDecideNeutralReleasesAntispamEntry(t *testing.T) {
	c := testComponents(t)
	e := newTestEngine(t, c)

	_, err := e.Decide(context.Background(), []models.StatementInput{{Text: djiText}})
	require.NoError(t, err)
	assert.Zero(t, c.Antispam.Len())
}

func TestDecideRerankDecaysOlderSameSourceCopy(t *testing.T) {
	c := testComponents(t)
	e := NewDecisionEngine(c, WithEngineClock(func() time.Time { return testNow }), WithWorkers(1))

	out, err := e.Decide(context.Background(), []models.StatementInput{
		{ID: "old", Source: "Reuters", Text: reutersText, Timestamp: testNow.Add(-time.Minute)},
		{ID: "new", Source: "Reuters", Text: reutersText, Timestamp: testNow},
	})
	require.NoError(t, err)
	require.Len(t, out, 2)

	older, newer := out[0], out[1]
	assert.Contains(t, older.Reasons, "contextual decay x0.70")
	assert.False(t, hasReasonPrefix(older.Reasons, "antispam:"), "reasons: %v", older.Reasons)
	assert.Greater(t, older.Disruption.Score, -0.85*0.7-1e-9)

	assert.True(t, hasReasonPrefix(newer.Reasons, "antispam: near-duplicate"), "reasons: %v", newer.Reasons)
	assert.Contains(t, newer.Reasons, "contextual decay x0.70")
	assert.InDelta(t, -0.85*0.7, newer.Disruption.Score, 1e-9)
}
