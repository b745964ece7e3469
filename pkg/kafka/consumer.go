package kafka

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
	"golang.org/x/sync/errgroup"

	xlogger "NewsSignal/pkg/logger"
)

// MessageHandler handles messages from one topic.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

// messageReader is the part of *kafka.Reader the consumer uses. Offsets are
// committed explicitly after handling.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type delivery struct {
	topic string
	msg   kafka.Message
}

// Consumer reads every registered topic and hands messages to a fixed set
// of worker lanes. A partition always maps to the same lane, so messages of
// one partition are handled in order.
type Consumer struct {
	cfg        *ConsumerConfig
	handlers   map[string]MessageHandler
	readers    map[string]messageReader
	openReader func(topic string) messageReader
	dlq        messageWriter
	logger     *xlogger.Logger
	metrics    *consumerMetrics

	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

// NewConsumer creates a Kafka consumer. Handlers are registered before Start.
func NewConsumer(opts ...ConsumerOption) (*Consumer, error) {
	cfg := defaultConsumerConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}

	c := newConsumer(cfg)
	c.openReader = func(topic string) messageReader {
		return kafka.NewReader(kafka.ReaderConfig{
			Brokers:  cfg.Brokers,
			Topic:    topic,
			GroupID:  cfg.GroupID,
			MinBytes: cfg.MinBytes,
			MaxBytes: cfg.MaxBytes,
		})
	}
	if cfg.DLQTopic != "" {
		c.dlq = &kafka.Writer{Addr: kafka.TCP(cfg.Brokers...), Balancer: &kafka.Hash{}}
	}
	return c, nil
}

func newConsumer(cfg *ConsumerConfig) *Consumer {
	l := cfg.Logger
	if l == nil {
		l = xlogger.NewNop()
	}
	return &Consumer{
		cfg:      cfg,
		handlers: make(map[string]MessageHandler),
		readers:  make(map[string]messageReader),
		logger:   l.With("kafka_consumer"),
		metrics:  getConsumerMetrics(),
		done:     make(chan struct{}),
	}
}

// RegisterHandler binds a handler to its topic. The first registration for
// a topic wins.
func (c *Consumer) RegisterHandler(handler MessageHandler) {
	topic := handler.Topic()
	if _, ok := c.handlers[topic]; ok {
		c.logger.Warn("handler already registered", xlogger.String("topic", topic))
		return
	}
	c.handlers[topic] = handler
}

// Start opens a reader per topic and launches the fetch loops and worker
// lanes. It returns immediately; Stop ends the loops.
func (c *Consumer) Start(ctx context.Context) error {
	ctx, c.cancel = context.WithCancel(ctx)

	lanes := make([]chan delivery, c.cfg.WorkerCount)
	per := max(c.cfg.BufferSize/len(lanes), 1)
	for i := range lanes {
		lanes[i] = make(chan delivery, per)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, lane := range lanes {
		g.Go(func() error {
			c.work(gctx, lane)
			return nil
		})
	}
	for topic := range c.handlers {
		r := c.openReader(topic)
		c.readers[topic] = r
		g.Go(func() error {
			c.fetch(gctx, topic, r, lanes)
			return nil
		})
		c.logger.Info("topic subscribed", xlogger.String("topic", topic), xlogger.String("group", c.cfg.GroupID))
	}
	go func() {
		_ = g.Wait()
		close(c.done)
	}()

	c.logger.Info("consumer started", xlogger.Int("workers", len(lanes)), xlogger.Int("topics", len(c.readers)))
	return nil
}

// Stop cancels the loops, waits for in-flight handlers and closes readers.
// Messages fetched but not yet committed are redelivered on the next start.
func (c *Consumer) Stop(ctx context.Context) error {
	var err error
	c.stopOnce.Do(func() {
		if c.cancel == nil {
			return
		}
		c.cancel()
		select {
		case <-c.done:
		case <-ctx.Done():
			err = fmt.Errorf("timeout waiting for consumer to stop: %w", ctx.Err())
		}
		for topic, r := range c.readers {
			if cerr := r.Close(); cerr != nil {
				c.logger.Warn("close reader", xlogger.String("topic", topic), xlogger.Error(cerr))
			}
		}
		if c.dlq != nil {
			if cerr := c.dlq.Close(); cerr != nil {
				c.logger.Warn("close dlq writer", xlogger.Error(cerr))
			}
		}
		c.logger.Info("consumer stopped")
	})
	return err
}

func (c *Consumer) fetch(ctx context.Context, topic string, r messageReader, lanes []chan delivery) {
	failures := 0
	for {
		msg, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			failures++
			c.logger.Error("fetch message", xlogger.String("topic", topic), xlogger.Error(err))
			if !sleepCtx(ctx, backoffWithJitter(c.cfg.BackoffMin, c.cfg.BackoffMax, failures)) {
				return
			}
			continue
		}
		failures = 0

		lane := lanes[laneFor(topic, msg.Partition, len(lanes))]
		select {
		case lane <- delivery{topic: topic, msg: msg}:
			c.metrics.queued.WithLabelValues(topic).Set(float64(len(lane)))
		case <-ctx.Done():
			return
		}
	}
}

func (c *Consumer) work(ctx context.Context, lane <-chan delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case d := <-lane:
			c.process(ctx, d)
		}
	}
}

func (c *Consumer) process(ctx context.Context, d delivery) {
	start := time.Now()
	defer func() {
		c.metrics.latency.WithLabelValues(d.topic).Observe(time.Since(start).Seconds())
	}()
	attempts, err := c.handleWithRetry(ctx, c.handlers[d.topic], d)

	if err != nil && ctx.Err() != nil {
		// Shutting down mid-retry: leave the offset for redelivery.
		return
	}
	if err != nil {
		c.metrics.failed.WithLabelValues(d.topic).Inc()
		c.logger.Error("handle message failed",
			xlogger.String("topic", d.topic),
			xlogger.Int("partition", d.msg.Partition),
			xlogger.Int64("offset", d.msg.Offset),
			xlogger.Int("attempts", attempts),
			xlogger.Error(err))
		if c.dlq == nil {
			return
		}
		if derr := c.deadLetter(ctx, d, err); derr != nil {
			c.logger.Error("write dlq", xlogger.String("topic", c.cfg.DLQTopic), xlogger.Error(derr))
			return
		}
	}
	c.commit(d)
}

// handleWithRetry runs hooks and handler until success or RetryMax retries.
// Hook rejections are not retried.
func (c *Consumer) handleWithRetry(ctx context.Context, handler MessageHandler, d delivery) (int, error) {
	for attempt := 1; ; attempt++ {
		dv := &Delivery{Topic: d.topic, Msg: d.msg, Data: d.msg.Value}
		hctx, err := c.cfg.Hooks.Before(ctx, dv)
		if err != nil {
			return attempt, err
		}
		err = safeHandle(hctx, handler, dv.Data)
		c.cfg.Hooks.After(hctx, dv, err)
		if err == nil {
			return attempt, nil
		}
		if attempt > c.cfg.RetryMax {
			return attempt, err
		}
		if !sleepCtx(ctx, backoffWithJitter(c.cfg.BackoffMin, c.cfg.BackoffMax, attempt)) {
			return attempt, err
		}
	}
}

func safeHandle(ctx context.Context, h MessageHandler, data []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h.Handle(ctx, data)
}

func (c *Consumer) deadLetter(ctx context.Context, d delivery, cause error) error {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	return c.dlq.WriteMessages(wctx, kafka.Message{
		Topic: c.cfg.DLQTopic,
		Key:   d.msg.Key,
		Value: d.msg.Value,
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: "source_topic", Value: []byte(d.topic)},
			{Key: "source_partition", Value: []byte(strconv.Itoa(d.msg.Partition))},
			{Key: "source_offset", Value: []byte(strconv.FormatInt(d.msg.Offset, 10))},
			{Key: "error", Value: []byte(cause.Error())},
		},
	})
}

// commit retries a few times on a detached context so a shutdown racing the
// commit does not lose it.
func (c *Consumer) commit(d delivery) {
	r := c.readers[d.topic]
	if r == nil {
		return
	}
	var err error
	for attempt := 1; attempt <= 3; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err = r.CommitMessages(ctx, d.msg)
		cancel()
		if err == nil {
			return
		}
		time.Sleep(backoffWithJitter(50*time.Millisecond, 500*time.Millisecond, attempt))
	}
	c.logger.Error("commit message", xlogger.String("topic", d.topic), xlogger.Int64("offset", d.msg.Offset), xlogger.Error(err))
}

func laneFor(topic string, partition, lanes int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(topic))
	_, _ = h.Write([]byte{byte(partition >> 24), byte(partition >> 16), byte(partition >> 8), byte(partition)})
	return int(h.Sum32() % uint32(lanes))
}

func backoffWithJitter(lo, hi time.Duration, attempt int) time.Duration {
	if lo <= 0 {
		lo = 50 * time.Millisecond
	}
	if hi < lo {
		hi = lo
	}
	d := lo << uint(min(max(attempt-1, 0), 20))
	if d > hi || d <= 0 {
		d = hi
	}
	// up to 50% jitter
	return d - time.Duration(rand.Int64N(int64(d)/2+1))
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

type consumerMetrics struct {
	queued  *prometheus.GaugeVec
	failed  *prometheus.CounterVec
	latency *prometheus.HistogramVec
}

var (
	consumerMetricsOnce sync.Once
	sharedConsumerMet   *consumerMetrics
)

func getConsumerMetrics() *consumerMetrics {
	consumerMetricsOnce.Do(func() {
		sharedConsumerMet = &consumerMetrics{
			queued: promauto.NewGaugeVec(prometheus.GaugeOpts{
				Name: "newssignal_kafka_consumer_lane_depth",
				Help: "Messages waiting in the lane that received the last fetch.",
			}, []string{"topic"}),
			failed: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "newssignal_kafka_consumer_failed_total",
				Help: "Messages the handler gave up on after retries.",
			}, []string{"topic"}),
			latency: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name: "newssignal_kafka_consumer_handle_seconds",
				Help: "Handling time per message including retries.",
			}, []string{"topic"}),
		}
	})
	return sharedConsumerMet
}
