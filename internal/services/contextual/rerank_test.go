package contextual

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRerankDecaysDuplicatesOfLatestOnce(t *testing.T) {
	r := NewReranker(DefaultRerankConfig())
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	text := "Fed signals rate cut as inflation cools"

	out := r.Rerank([]Candidate{
		{Source: "Reuters", Text: text, Timestamp: t0, Relevance: 0.23},
		{Source: "reuters", Text: text + ".", Timestamp: t0.Add(time.Minute), Relevance: 0.23},
		{Source: "REUTERS", Text: text, Timestamp: t0.Add(2 * time.Minute), Relevance: 0.23},
		{Source: "bloomberg", Text: text, Timestamp: t0, Relevance: 0.23},
	})

	assert.InDelta(t, 0.7, out[0], 1e-9, "decayed once, not once per newer copy")
	assert.InDelta(t, 0.7, out[1], 1e-9)
	assert.Equal(t, 1.0, out[2])
	assert.Equal(t, 1.0, out[3], "other sources are untouched")
}

func TestRerankAnchorIsLatestRelevant(t *testing.T) {
	r := NewReranker(DefaultRerankConfig())
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	text := "Dow slips on ISM miss"

	out := r.Rerank([]Candidate{
		{Source: "reuters", Text: text, Timestamp: t0, Relevance: 0.2},
		{Source: "reuters", Text: text, Timestamp: t0.Add(time.Minute), Relevance: 0},
	})
	assert.Equal(t, []float64{1, 0.7}, out, "a newer gated-out copy does not take the anchor")
}

func TestRerankThresholdOnGateScale(t *testing.T) {
	r := NewReranker(RerankConfig{RelevanceThreshold: 0.3})
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	text := "Dow slips on ISM miss"

	out := r.Rerank([]Candidate{
		{Source: "reuters", Text: text, Timestamp: t0, Relevance: 0.25},
		{Source: "reuters", Text: text, Timestamp: t0.Add(time.Minute), Relevance: 0.25},
	})
	assert.Equal(t, []float64{1, 1}, out, "no statement reaches the cutoff")
}

func TestRerankDistinctTexts(t *testing.T) {
	r := NewReranker(DefaultRerankConfig())
	t0 := time.Now()
	out := r.Rerank([]Candidate{
		{Source: "reuters", Text: "Oil jumps on supply cuts", Timestamp: t0, Relevance: 0.3},
		{Source: "reuters", Text: "Payrolls beat expectations", Timestamp: t0.Add(time.Minute), Relevance: 0.3},
	})
	assert.Equal(t, []float64{1, 1}, out)
}
