// Package disruption turns source weight, sentiment strength and statement
// age into a signed disruption score.
package disruption

import (
	"time"

	"NewsSignal/internal/domain/models"
)

const (
	FullRecency = 15 * time.Minute
	Cutoff      = 30 * time.Minute

	TriggerSourceWeight = 0.80
	TriggerStrength     = 0.90
)

// Input is everything Evaluate needs; it reads no shared state.
type Input struct {
	SourceWeight float64
	RawSentiment int
	StatementAt  time.Time
	Now          time.Time
}

type Calculator struct {
	full   time.Duration
	cutoff time.Duration
}

func NewCalculator() *Calculator {
	return &Calculator{full: FullRecency, cutoff: Cutoff}
}

// Strength maps a raw lexicon score to [-1,1]; two strong words saturate.
func Strength(raw int) float64 {
	return clamp(float64(raw)/2, -1, 1)
}

// Recency is 1 up to the full window, falls linearly to 0 at the cutoff and
// stays 0 afterwards. Negative ages count as fresh.
func (c *Calculator) Recency(age time.Duration) float64 {
	switch {
	case age <= c.full:
		return 1
	case age >= c.cutoff:
		return 0
	}
	return 1 - float64(age-c.full)/float64(c.cutoff-c.full)
}

func (c *Calculator) Evaluate(in Input) models.DisruptionResult {
	age := in.Now.Sub(in.StatementAt)
	if age < 0 {
		age = 0
	}
	w := clamp(in.SourceWeight, 0, 1)
	strength := Strength(in.RawSentiment)
	rec := c.Recency(age)

	return models.DisruptionResult{
		Score:     w * strength * rec,
		WSource:   w,
		WStrength: strength,
		WRecency:  rec,
		AgeSecs:   int64(age / time.Second),
		Triggered: w >= TriggerSourceWeight && abs(strength) >= TriggerStrength && rec > 0,
	}
}

func clamp(v, lo, hi float64) float64 {
	return min(max(v, lo), hi)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
