package disruption

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEvaluateFreshStrongNegative(t *testing.T) {
	c := NewCalculator()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	r := c.Evaluate(Input{SourceWeight: 0.85, RawSentiment: -2, StatementAt: now, Now: now})
	assert.InDelta(t, -0.85, r.Score, 1e-9)
	assert.Equal(t, -1.0, r.WStrength)
	assert.Equal(t, 1.0, r.WRecency)
	assert.True(t, r.Triggered)
}

func TestRecencyIsMonotone(t *testing.T) {
	c := NewCalculator()
	prev := 2.0
	for age := -5 * time.Minute; age <= 40*time.Minute; age += 30 * time.Second {
		r := c.Recency(max(age, 0))
		assert.LessOrEqual(t, r, prev)
		prev = r
	}
	assert.Equal(t, 1.0, c.Recency(15*time.Minute))
	assert.InDelta(t, 0.5, c.Recency(22*time.Minute+30*time.Second), 1e-9)
	assert.Equal(t, 0.0, c.Recency(30*time.Minute))
}

func TestEvaluateStaleAndFutureStatements(t *testing.T) {
	c := NewCalculator()
	now := time.Now()

	stale := c.Evaluate(Input{SourceWeight: 0.95, RawSentiment: 3, StatementAt: now.Add(-time.Hour), Now: now})
	assert.Zero(t, stale.Score)
	assert.False(t, stale.Triggered)
	assert.Equal(t, int64(3600), stale.AgeSecs)

	future := c.Evaluate(Input{SourceWeight: 0.6, RawSentiment: 1, StatementAt: now.Add(time.Minute), Now: now})
	assert.InDelta(t, 0.3, future.Score, 1e-9)
	assert.Zero(t, future.AgeSecs)
	assert.False(t, future.Triggered, "weak source and half strength")
}

func TestStrengthClamps(t *testing.T) {
	assert.Equal(t, 1.0, Strength(7))
	assert.Equal(t, -0.5, Strength(-1))
	assert.Equal(t, 0.0, Strength(0))
}
