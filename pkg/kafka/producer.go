package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
)

const headerContentType = "content-type"

// messageWriter is the part of *kafka.Writer the producer and the DLQ use.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Message is one record to publish. Values that are not []byte or string
// are JSON encoded.
type Message struct {
	Key     []byte
	Value   any
	Headers map[string]string
}

// Producer publishes to any topic through one shared writer.
type Producer struct {
	w           messageWriter
	compression string
	metrics     *producerMetrics
}

// NewProducer creates a Kafka producer.
func NewProducer(opts ...ProducerOption) (*Producer, error) {
	cfg := defaultProducerConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	w, err := cfg.newWriter()
	if err != nil {
		return nil, err
	}
	return newProducer(w, cfg.Compression), nil
}

func newProducer(w messageWriter, compression string) *Producer {
	return &Producer{w: w, compression: compression, metrics: getProducerMetrics()}
}

// Publish sends one message.
func (p *Producer) Publish(ctx context.Context, topic string, key []byte, value any) error {
	return p.PublishBatch(ctx, topic, []Message{{Key: key, Value: value}})
}

// PublishBatch sends messages in one write. An encoding failure rejects the
// whole batch before anything is written.
func (p *Producer) PublishBatch(ctx context.Context, topic string, messages []Message) error {
	if len(messages) == 0 {
		return nil
	}
	start := time.Now()
	out := make([]kafka.Message, 0, len(messages))
	var size int64
	for i, m := range messages {
		v, ct, err := encodeValue(m.Value)
		if err != nil {
			return fmt.Errorf("encode message %d: %w", i, err)
		}
		km := kafka.Message{Topic: topic, Key: m.Key, Value: v, Time: start}
		if ct != "" {
			km.Headers = append(km.Headers, kafka.Header{Key: headerContentType, Value: []byte(ct)})
		}
		for k, hv := range m.Headers {
			km.Headers = append(km.Headers, kafka.Header{Key: k, Value: []byte(hv)})
		}
		otel.GetTextMapPropagator().Inject(ctx, headerCarrier{&km.Headers})
		out = append(out, km)
		size += int64(len(v))
	}

	err := p.w.WriteMessages(ctx, out...)
	p.metrics.observe(topic, p.compression, size, len(out), time.Since(start), err)
	if err != nil {
		return fmt.Errorf("write %d message(s) to %s: %w", len(out), topic, err)
	}
	return nil
}

// Close flushes pending async writes and closes the writer.
func (p *Producer) Close() error {
	if p.w == nil {
		return nil
	}
	return p.w.Close()
}

func encodeValue(v any) ([]byte, string, error) {
	switch val := v.(type) {
	case []byte:
		return val, "", nil
	case string:
		return []byte(val), "text/plain", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, "", err
	}
	return b, "application/json", nil
}

type producerMetrics struct {
	messages *prometheus.CounterVec
	bytes    *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

var (
	producerMetricsOnce sync.Once
	sharedProducerMet   *producerMetrics
)

func getProducerMetrics() *producerMetrics {
	producerMetricsOnce.Do(func() {
		sharedProducerMet = &producerMetrics{
			messages: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "newssignal_kafka_producer_messages_total",
				Help: "Messages published to Kafka by result.",
			}, []string{"topic", "compression", "result"}),
			bytes: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "newssignal_kafka_producer_bytes_total",
				Help: "Payload bytes published to Kafka.",
			}, []string{"topic"}),
			latency: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "newssignal_kafka_producer_publish_seconds",
				Help:    "Time spent in one publish call.",
				Buckets: prometheus.DefBuckets,
			}, []string{"topic"}),
		}
	})
	return sharedProducerMet
}

func (m *producerMetrics) observe(topic, comp string, size int64, count int, dur time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	} else {
		m.bytes.WithLabelValues(topic).Add(float64(size))
	}
	m.messages.WithLabelValues(topic, comp, result).Add(float64(count))
	m.latency.WithLabelValues(topic).Observe(dur.Seconds())
}
