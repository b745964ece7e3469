// Package queue is a small Redis list queue used as a statement intake
// next to Kafka. Failed messages are retried through a sorted set with
// exponential delay and end up on a dead-letter list.
package queue

import (
	"context"
	"encoding/json"
	"time"
)

// Job handles one message type pulled from the queue.
type Job interface {
	Name() string
	// Type is the Message.Type this job consumes.
	Type() string
	Handle(ctx context.Context, payload json.RawMessage) error
}

// Config tunes the consumer side.
type Config struct {
	Workers    int
	RetryLimit int
	// RetryDelay is the first retry delay; each further attempt doubles it.
	RetryDelay time.Duration
	// PollTimeout bounds one blocking pop so workers notice shutdown.
	PollTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 10 * time.Second
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = time.Second
	}
	return c
}

// retryAt is when the given (1-based) retry attempt becomes due.
func (c Config) retryAt(now time.Time, attempt int) time.Time {
	shift := min(max(attempt-1, 0), 10)
	return now.Add(c.RetryDelay << uint(shift))
}

// Message is the envelope stored in Redis.
type Message struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempts  int             `json:"attempts"`
	Timestamp time.Time       `json:"timestamp"`
	LastError string          `json:"last_error,omitempty"`
}
