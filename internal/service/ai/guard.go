package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"NewsSignal/internal/domain/repository"
	xlogger "NewsSignal/pkg/logger"
	"NewsSignal/pkg/tracing"
)

type BreakerSettings struct {
	MaxFailures uint32
	OpenTimeout time.Duration
}

// Guarded wraps a provider with a circuit breaker and a tracing span.
type Guarded struct {
	inner  repository.AIProvider
	cb     *gobreaker.CircuitBreaker
	logger *xlogger.Logger
}

func NewGuarded(inner repository.AIProvider, s BreakerSettings, logger *xlogger.Logger) *Guarded {
	if s.MaxFailures == 0 {
		s.MaxFailures = 5
	}
	if logger == nil {
		logger = xlogger.NewNop()
	}
	g := &Guarded{inner: inner, logger: logger}
	g.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "ai:" + inner.Name(),
		MaxRequests: 1,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= s.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("ai breaker state change",
				xlogger.String("breaker", name),
				xlogger.String("from", from.String()),
				xlogger.String("to", to.String()))
		},
	})
	return g
}

func (g *Guarded) Name() string { return g.inner.Name() }

// State exposes the breaker state for the debug surface.
func (g *Guarded) State() string { return g.cb.State().String() }

func (g *Guarded) Ask(ctx context.Context, input string) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "ai.ask", trace.WithAttributes(
		attribute.String("ai.provider", g.inner.Name()),
		attribute.Int("ai.input_len", len(input)),
	))
	defer span.End()

	v, err := g.cb.Execute(func() (interface{}, error) {
		return g.inner.Ask(ctx, input)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = fmt.Errorf("%w: %w", repository.ErrProvider, err)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	return v.(string), nil
}
