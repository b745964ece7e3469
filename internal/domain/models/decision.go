package models

import (
	"fmt"
	"time"
)

// Decision is the closed set of verdicts the engine can emit.
type Decision uint8

const (
	DecisionHold Decision = iota
	DecisionBuy
	DecisionSell
	DecisionNeutral
)

func (d Decision) String() string {
	switch d {
	case DecisionBuy:
		return "BUY"
	case DecisionSell:
		return "SELL"
	case DecisionHold:
		return "HOLD"
	case DecisionNeutral:
		return "NEUTRAL"
	default:
		return fmt.Sprintf("Decision(%d)", uint8(d))
	}
}

func (d Decision) IsValid() bool { return d <= DecisionNeutral }

// ParseDecision maps the wire form back to a Decision.
func ParseDecision(s string) (Decision, error) {
	switch s {
	case "BUY":
		return DecisionBuy, nil
	case "SELL":
		return DecisionSell, nil
	case "HOLD":
		return DecisionHold, nil
	case "NEUTRAL":
		return DecisionNeutral, nil
	}
	return DecisionHold, fmt.Errorf("unknown decision %q", s)
}

func (d Decision) MarshalText() ([]byte, error) {
	if !d.IsValid() {
		return nil, fmt.Errorf("invalid decision %d", uint8(d))
	}
	return []byte(d.String()), nil
}

func (d *Decision) UnmarshalText(b []byte) error {
	v, err := ParseDecision(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// AIOutcome describes what the arbiter did for one record.
type AIOutcome struct {
	Used     bool   `json:"used" msgpack:"used"`
	CacheHit bool   `json:"cache_hit" msgpack:"cache_hit"`
	Limited  bool   `json:"limited" msgpack:"limited"`
	Reason   string `json:"reason,omitempty" msgpack:"reason"`
	Error    string `json:"error,omitempty" msgpack:"error"`
}

// DecisionRecord is the committed output for one statement. Records are
// shared read-only once built; copy before changing anything.
type DecisionRecord struct {
	ID         string           `json:"id" msgpack:"id"`
	Timestamp  time.Time        `json:"timestamp" msgpack:"timestamp"`
	Source     string           `json:"source" msgpack:"source"`
	Text       string           `json:"text" msgpack:"text"`
	Decision   Decision         `json:"decision" msgpack:"decision"`
	Confidence float64          `json:"confidence" msgpack:"confidence"`
	Reasons    []string         `json:"reasons" msgpack:"reasons"`
	Relevance  RelevanceResult  `json:"relevance" msgpack:"relevance"`
	Sentiment  SentimentResult  `json:"sentiment" msgpack:"sentiment"`
	Disruption DisruptionResult `json:"disruption" msgpack:"disruption"`
	AI         *AIOutcome       `json:"ai,omitempty" msgpack:"ai,omitempty"`
}

type AICacheEntry struct {
	InputHash      string        `json:"input_hash"`
	DecisionReason string        `json:"reason"`
	CachedAt       time.Time     `json:"cached_at"`
	TTL            time.Duration `json:"ttl,omitempty"`
}

type DailyQuotaCounter struct {
	Date      string `json:"date"`
	CallsUsed int    `json:"calls_used"`
	Limit     int    `json:"limit"`
}

// NotificationEvent is what the notifier formats for the sinks.
type NotificationEvent struct {
	Decision   Decision  `json:"decision"`
	Confidence float64   `json:"confidence"`
	Reasons    []string  `json:"reasons"`
	Source     string    `json:"source"`
	Timestamp  time.Time `json:"ts"`
}
