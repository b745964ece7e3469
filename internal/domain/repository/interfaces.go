package repository

import (
	"context"
	"errors"
	"time"

	"NewsSignal/internal/domain/models"
)

var (
	// ErrProviderTimeout is returned when the AI provider exceeds its deadline.
	ErrProviderTimeout = errors.New("ai provider timeout")
	// ErrProvider wraps any other AI provider failure.
	ErrProvider = errors.New("ai provider error")
	// ErrStateNotFound is returned by a StateStore with no saved snapshot.
	ErrStateNotFound = errors.New("state not found")
)

// NotificationSink delivers one formatted alert. Failures are reported,
// never retried by the caller.
type NotificationSink interface {
	Name() string
	Send(ctx context.Context, message string) error
}

// AIProvider answers a normalized statement with a short reason.
type AIProvider interface {
	Name() string
	Ask(ctx context.Context, normalizedInput string) (string, error)
}

// ConfigSource notifies subscribers when a structured resource changes.
// apply must reject bad data without touching the active snapshot.
type ConfigSource interface {
	Subscribe(name, path string, apply func(data []byte) error)
	Start(ctx context.Context)
	ReloadAll() error
}

// StateStore checkpoints small pieces of process state.
type StateStore interface {
	Save(ctx context.Context, key string, v any) error
	Load(ctx context.Context, key string, v any) error
}

// DecisionArchive persists committed decisions for later analysis.
type DecisionArchive interface {
	Init(ctx context.Context) error
	Store(ctx context.Context, r *models.DecisionRecord) error
	StoreBatch(ctx context.Context, rs []*models.DecisionRecord) error
	Query(ctx context.Context, source string, from, to time.Time, limit int) ([]*models.DecisionRecord, error)
	Health(ctx context.Context) error
	Close() error
}

// DecisionPublisher ships committed decisions to a message bus.
type DecisionPublisher interface {
	Publish(ctx context.Context, r *models.DecisionRecord) error
	PublishBatch(ctx context.Context, rs []*models.DecisionRecord) error
	Close() error
}

// StatementProvider fetches fresh statements from an upstream feed.
type StatementProvider interface {
	Name() string
	Fetch(ctx context.Context) ([]models.StatementInput, error)
}

type Metrics interface {
	RecordDecision(decision, source string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
	RecordAI(outcome string)
	RecordNotification(sink, status string)
	RecordIngest(provider, status string, n int)
	RecordReload(resource, status string)
}
