package service

import (
	"context"

	"NewsSignal/internal/domain/models"
)

// Engine is the scoring surface consumed by the transport layer.
type Engine interface {
	Analyze(ctx context.Context, in models.StatementInput) (models.AnalyzeResult, error)
	Decide(ctx context.Context, batch []models.StatementInput) ([]models.DecisionRecord, error)
}

// Notifier runs one antiflutter-gated notification tick.
type Notifier interface {
	PollNotifications(ctx context.Context)
}
