package usecase

import (
	"context"
	"fmt"
	"time"

	"NewsSignal/internal/domain/models"
	drepo "NewsSignal/internal/domain/repository"
)

const (
	BackendKafka      = "kafka"
	BackendClickHouse = "clickhouse"
)

// DecisionRouter routes committed decisions to the configured backend.
type DecisionRouter struct {
	pub     drepo.DecisionPublisher
	store   drepo.DecisionArchive
	metrics drepo.Metrics
	backend string
}

func NewDecisionRouter(pub drepo.DecisionPublisher, store drepo.DecisionArchive, metrics drepo.Metrics, backend string) *DecisionRouter {
	return &DecisionRouter{pub: pub, store: store, metrics: metrics, backend: backend}
}

func (p *DecisionRouter) Backend() string { return p.backend }

// Process routes a single record.
func (p *DecisionRouter) Process(ctx context.Context, r *models.DecisionRecord) error {
	if r == nil {
		return fmt.Errorf("record is nil")
	}
	start := time.Now()
	var err error
	switch p.backend {
	case BackendKafka:
		err = p.pub.Publish(ctx, r)
	case BackendClickHouse:
		err = p.store.Store(ctx, r)
	default:
		err = fmt.Errorf("unknown backend: %s", p.backend)
	}
	if err != nil {
		p.recordError("route")
		return fmt.Errorf("route decision %s: %w", r.ID, err)
	}
	if p.metrics != nil {
		p.metrics.RecordLatency("route", time.Since(start).Seconds())
	}
	return nil
}

// ProcessBatch routes several records in one call.
func (p *DecisionRouter) ProcessBatch(ctx context.Context, rs []*models.DecisionRecord) error {
	if len(rs) == 0 {
		return nil
	}
	start := time.Now()
	var err error
	switch p.backend {
	case BackendKafka:
		err = p.pub.PublishBatch(ctx, rs)
	case BackendClickHouse:
		err = p.store.StoreBatch(ctx, rs)
	default:
		err = fmt.Errorf("unknown backend: %s", p.backend)
	}
	if err != nil {
		p.recordError("route_batch")
		return fmt.Errorf("route batch: %w", err)
	}
	if p.metrics != nil {
		p.metrics.RecordLatency("route_batch", time.Since(start).Seconds())
	}
	return nil
}

func (p *DecisionRouter) recordError(kind string) {
	if p.metrics != nil {
		p.metrics.RecordError(kind)
	}
}

// Close closes underlying resources if available.
func (p *DecisionRouter) Close() {
	if p.pub != nil {
		_ = p.pub.Close()
	}
	if p.store != nil {
		_ = p.store.Close()
	}
}
