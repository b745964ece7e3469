package repository

import (
	"context"

	"NewsSignal/internal/domain/models"
	domrepo "NewsSignal/internal/domain/repository"
	pkgkafka "NewsSignal/pkg/kafka"
)

// MessageProducer is the subset of pkg/kafka.Producer the publisher needs.
type MessageProducer interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
	PublishBatch(ctx context.Context, topic string, messages []pkgkafka.Message) error
	Close() error
}

// KafkaDecisionPublisher ships DecisionRecords as JSON keyed by source so a
// source's decisions stay ordered within a partition.
type KafkaDecisionPublisher struct {
	producer MessageProducer
	topic    string
}

func NewKafkaDecisionPublisher(producer MessageProducer, topic string) *KafkaDecisionPublisher {
	return &KafkaDecisionPublisher{producer: producer, topic: topic}
}

var _ domrepo.DecisionPublisher = (*KafkaDecisionPublisher)(nil)

func (p *KafkaDecisionPublisher) Publish(ctx context.Context, r *models.DecisionRecord) error {
	return p.producer.Publish(ctx, p.topic, []byte(r.Source), r)
}

func (p *KafkaDecisionPublisher) PublishBatch(ctx context.Context, rs []*models.DecisionRecord) error {
	if len(rs) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, 0, len(rs))
	for _, r := range rs {
		if r == nil {
			continue
		}
		msgs = append(msgs, pkgkafka.Message{Key: []byte(r.Source), Value: r})
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

func (p *KafkaDecisionPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
