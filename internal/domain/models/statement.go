package models

import (
	"strings"
	"time"
)

// StatementInput is one piece of news text attributed to a source. It is
// passed by value and never modified after creation.
type StatementInput struct {
	ID        string    `json:"id,omitempty" msgpack:"id"`
	Source    string    `json:"source" msgpack:"source"`
	Text      string    `json:"text" msgpack:"text"`
	Timestamp time.Time `json:"timestamp" msgpack:"timestamp"`
	// Weight overrides the registry lookup for this statement only.
	Weight *float64 `json:"weight,omitempty" msgpack:"weight,omitempty"`
}

// At returns the statement time, falling back to now for unset timestamps.
func (s StatementInput) At(now time.Time) time.Time {
	if s.Timestamp.IsZero() {
		return now
	}
	return s.Timestamp
}

// SourceOrUnknown returns the trimmed source or "unknown".
func (s StatementInput) SourceOrUnknown() string {
	if src := strings.TrimSpace(s.Source); src != "" {
		return src
	}
	return "unknown"
}

// AnalyzeResult is the per-statement scoring breakdown without a decision.
type AnalyzeResult struct {
	Sentiment  SentimentResult  `json:"sentiment"`
	Relevance  RelevanceResult  `json:"relevance"`
	Disruption DisruptionResult `json:"disruption"`
	Cashtags   []string         `json:"cashtags,omitempty"`
	Hashtags   []string         `json:"hashtags,omitempty"`
}

type RelevanceResult struct {
	Score           float64  `json:"score" msgpack:"score"`
	MatchedAnchors  []string `json:"matched_anchors,omitempty" msgpack:"matched_anchors"`
	MatchedBlockers []string `json:"matched_blockers,omitempty" msgpack:"matched_blockers"`
	ComboSatisfied  bool     `json:"combo_satisfied" msgpack:"combo_satisfied"`
	Reasons         []string `json:"reasons,omitempty" msgpack:"reasons"`
}

// Passed reports whether the gate let the statement through.
func (r RelevanceResult) Passed() bool { return r.Score > 0 }

type SentimentLabel string

const (
	LabelPositive SentimentLabel = "positive"
	LabelNegative SentimentLabel = "negative"
	LabelNeutral  SentimentLabel = "neutral"
)

type SentimentResult struct {
	RawScore      int            `json:"raw_score" msgpack:"raw_score"`
	TokenCount    int            `json:"token_count" msgpack:"token_count"`
	Label         SentimentLabel `json:"label" msgpack:"label"`
	NegatedTokens []string       `json:"negated_tokens,omitempty" msgpack:"negated_tokens"`
}

// DisruptionResult carries the signed disruption score and its parts.
type DisruptionResult struct {
	Score     float64 `json:"score" msgpack:"score"`
	WSource   float64 `json:"w_source" msgpack:"w_source"`
	WStrength float64 `json:"w_strength" msgpack:"w_strength"`
	WRecency  float64 `json:"w_recency" msgpack:"w_recency"`
	AgeSecs   int64   `json:"age_secs" msgpack:"age_secs"`
	Triggered bool    `json:"triggered" msgpack:"triggered"`
}

type SourceWeight struct {
	CanonicalName string   `json:"canonical_name" yaml:"-"`
	Weight        float64  `json:"weight" yaml:"weight"`
	Aliases       []string `json:"aliases,omitempty" yaml:"aliases"`
}

// RollingSample is one timestamped observation in a rolling window.
type RollingSample struct {
	Timestamp time.Time `json:"ts" msgpack:"ts"`
	Value     float64   `json:"value" msgpack:"value"`
	Source    string    `json:"source,omitempty" msgpack:"source"`
}
