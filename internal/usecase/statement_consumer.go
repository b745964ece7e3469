package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"NewsSignal/internal/domain/models"
	domrepo "NewsSignal/internal/domain/repository"
	domsvc "NewsSignal/internal/domain/service"
	pkgkafka "NewsSignal/pkg/kafka"
	"NewsSignal/pkg/queue"
)

// StatementConsumer decides statements arriving on a Kafka topic.
// A message holds one statement object or an array of them.
type StatementConsumer struct {
	topic   string
	engine  domsvc.Engine
	metrics domrepo.Metrics
}

func NewStatementConsumer(topic string, engine domsvc.Engine, metrics domrepo.Metrics) *StatementConsumer {
	return &StatementConsumer{topic: topic, engine: engine, metrics: metrics}
}

func (h *StatementConsumer) Topic() string { return h.topic }

func (h *StatementConsumer) Handle(ctx context.Context, b []byte) error {
	batch, err := DecodeStatements(b)
	if err != nil {
		h.recordError("consumer_unmarshal")
		return err
	}
	if len(batch) == 0 {
		return nil
	}
	if h.metrics != nil {
		h.metrics.RecordIngest("kafka", "fetched", len(batch))
		// E2E latency from the newest statement time to now (approx)
		var newest time.Time
		for _, st := range batch {
			if st.Timestamp.After(newest) {
				newest = st.Timestamp
			}
		}
		if !newest.IsZero() {
			h.metrics.RecordLatency("ingest_e2e", time.Since(newest).Seconds())
		}
	}
	if _, err := h.engine.Decide(ctx, batch); err != nil {
		h.recordError("consumer_decide")
		return fmt.Errorf("decide %d statements: %w", len(batch), err)
	}
	return nil
}

func (h *StatementConsumer) recordError(kind string) {
	if h.metrics != nil {
		h.metrics.RecordError(kind)
	}
}

// DecodeStatements accepts one StatementInput object or an array of them.
func DecodeStatements(b []byte) ([]models.StatementInput, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil, nil
	}
	if b[0] == '[' {
		var batch []models.StatementInput
		if err := json.Unmarshal(b, &batch); err != nil {
			return nil, fmt.Errorf("unmarshal statement batch: %w", err)
		}
		return batch, nil
	}
	var st models.StatementInput
	if err := json.Unmarshal(b, &st); err != nil {
		return nil, fmt.Errorf("unmarshal statement: %w", err)
	}
	return []models.StatementInput{st}, nil
}

var _ pkgkafka.MessageHandler = (*StatementConsumer)(nil)

// DecideJobType is the queue message type carrying statements to decide.
const DecideJobType = "decide"

// DecideJob is the Redis queue counterpart of StatementConsumer.
type DecideJob struct {
	consumer *StatementConsumer
}

func NewDecideJob(engine domsvc.Engine, metrics domrepo.Metrics) *DecideJob {
	return &DecideJob{consumer: NewStatementConsumer(DecideJobType, engine, metrics)}
}

func (j *DecideJob) Name() string { return "decide_statements" }
func (j *DecideJob) Type() string { return DecideJobType }

func (j *DecideJob) Handle(ctx context.Context, payload json.RawMessage) error {
	return j.consumer.Handle(ctx, payload)
}

var _ queue.Job = (*DecideJob)(nil)
