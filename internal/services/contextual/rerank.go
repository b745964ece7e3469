package contextual

import (
	"time"

	"NewsSignal/internal/services/sourceweight"
)

// RerankConfig tunes the per-source pass. RelevanceThreshold is on the
// relevance gate's score scale; a candidate counts as relevant when it
// passed the gate and reached the threshold, so 0 means "passed the gate".
type RerankConfig struct {
	RelevanceThreshold float64
	Similarity         float64
	Decay              float64
}

func DefaultRerankConfig() RerankConfig {
	return RerankConfig{RelevanceThreshold: 0, Similarity: 0.90, Decay: 0.7}
}

// Candidate is the view of a statement the reranker needs.
type Candidate struct {
	Source    string
	Text      string
	Timestamp time.Time
	Relevance float64
}

type Reranker struct {
	cfg RerankConfig
}

func NewReranker(cfg RerankConfig) *Reranker {
	def := DefaultRerankConfig()
	if cfg.Similarity <= 0 || cfg.Similarity > 1 {
		cfg.Similarity = def.Similarity
	}
	if cfg.Decay <= 0 || cfg.Decay > 1 {
		cfg.Decay = def.Decay
	}
	if cfg.RelevanceThreshold < 0 || cfg.RelevanceThreshold > 1 {
		cfg.RelevanceThreshold = def.RelevanceThreshold
	}
	return &Reranker{cfg: cfg}
}

// Rerank returns one weight multiplier per candidate, aligned with the
// input. Within a source the newest relevant statement is the anchor and
// keeps 1.0; every other statement of that source that is a near-duplicate
// of the anchor is multiplied by decay once. A source with no relevant
// statement is left alone. Nothing is dropped.
func (r *Reranker) Rerank(items []Candidate) []float64 {
	out := make([]float64, len(items))
	for i := range out {
		out[i] = 1
	}

	groups := make(map[string][]int)
	for i, it := range items {
		key := sourceweight.Normalize(it.Source)
		groups[key] = append(groups[key], i)
	}

	for _, idx := range groups {
		if len(idx) < 2 {
			continue
		}
		anchor := -1
		for _, i := range idx {
			if !r.relevant(items[i]) {
				continue
			}
			// for equal timestamps the later input wins
			if anchor < 0 || !items[i].Timestamp.Before(items[anchor].Timestamp) {
				anchor = i
			}
		}
		if anchor < 0 {
			continue
		}
		norm := NormalizeText(items[anchor].Text)
		for _, i := range idx {
			if i == anchor {
				continue
			}
			if similarityNormalized(norm, NormalizeText(items[i].Text)) >= r.cfg.Similarity {
				out[i] = r.cfg.Decay
			}
		}
	}
	return out
}

func (r *Reranker) relevant(c Candidate) bool {
	return c.Relevance > 0 && c.Relevance >= r.cfg.RelevanceThreshold
}
