package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func (w *fakeWriter) written() []kafka.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]kafka.Message(nil), w.msgs...)
}

func header(m kafka.Message, key string) string {
	for _, h := range m.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestProducerEncodesValues(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, "snappy")

	require.NoError(t, p.PublishBatch(context.Background(), "decisions", []Message{
		{Key: []byte("reuters"), Value: map[string]string{"decision": "SELL"}, Headers: map[string]string{"trace_id": "t1"}},
		{Value: []byte("raw")},
	}))
	msgs := w.written()
	require.Len(t, msgs, 2)
	assert.Equal(t, "decisions", msgs[0].Topic)
	assert.JSONEq(t, `{"decision":"SELL"}`, string(msgs[0].Value))
	assert.Equal(t, "application/json", header(msgs[0], headerContentType))
	assert.Equal(t, "t1", header(msgs[0], "trace_id"))
	assert.Equal(t, "raw", string(msgs[1].Value))
	assert.Empty(t, header(msgs[1], headerContentType))

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestProducerRejectsUnencodableBatch(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, "none")
	err := p.PublishBatch(context.Background(), "t", []Message{{Value: "ok"}, {Value: make(chan int)}})
	assert.ErrorContains(t, err, "encode message 1")
	assert.Empty(t, w.written())
}

func TestProducerWrapsWriteError(t *testing.T) {
	p := newProducer(&fakeWriter{err: errors.New("broker down")}, "none")
	err := p.Publish(context.Background(), "t", nil, "x")
	assert.ErrorContains(t, err, "broker down")
}

type fakeReader struct {
	mu        sync.Mutex
	pending   []kafka.Message
	committed []int64
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.pending) > 0 {
		m := r.pending[0]
		r.pending = r.pending[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.closed = true
	return nil
}

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

type recordingHandler struct {
	mu    sync.Mutex
	seen  []string
	fail  string
	calls int
}

func (h *recordingHandler) Topic() string { return "statements" }

func (h *recordingHandler) Handle(_ context.Context, data []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls++
	if string(data) == h.fail {
		return errors.New("cannot decide")
	}
	h.seen = append(h.seen, string(data))
	return nil
}

func (h *recordingHandler) snapshot() ([]string, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.seen...), h.calls
}

func testConsumer(r *fakeReader, dlq *fakeWriter, retries int) *Consumer {
	cfg := defaultConsumerConfig()
	cfg.WorkerCount = 2
	cfg.RetryMax = retries
	cfg.BackoffMin = time.Millisecond
	cfg.BackoffMax = time.Millisecond
	c := newConsumer(cfg)
	c.openReader = func(string) messageReader { return r }
	if dlq != nil {
		cfg.DLQTopic = "statements.dlq"
		c.dlq = dlq
	}
	return c
}

func TestConsumerHandlesInPartitionOrder(t *testing.T) {
	r := &fakeReader{}
	for i := 0; i < 5; i++ {
		r.pending = append(r.pending, kafka.Message{Partition: 3, Offset: int64(i), Value: []byte{'a' + byte(i)}})
	}
	h := &recordingHandler{}
	c := testConsumer(r, nil, 0)
	c.RegisterHandler(h)

	require.NoError(t, c.Start(context.Background()))
	require.Eventually(t, func() bool { return len(r.commits()) == 5 }, time.Second, 5*time.Millisecond)
	require.NoError(t, c.Stop(context.Background()))

	seen, _ := h.snapshot()
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, seen)
	assert.Equal(t, []int64{0, 1, 2, 3, 4}, r.commits())
	assert.True(t, r.closed)
}

func TestConsumerDeadLettersAfterRetries(t *testing.T) {
	r := &fakeReader{pending: []kafka.Message{{Partition: 0, Offset: 9, Value: []byte("poison")}}}
	dlq := &fakeWriter{}
	h := &recordingHandler{fail: "poison"}
	c := testConsumer(r, dlq, 2)
	c.RegisterHandler(h)

	require.NoError(t, c.Start(context.Background()))
	require.Eventually(t, func() bool { return len(r.commits()) == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, c.Stop(context.Background()))

	_, calls := h.snapshot()
	assert.Equal(t, 3, calls)
	msgs := dlq.written()
	require.Len(t, msgs, 1)
	assert.Equal(t, "statements.dlq", msgs[0].Topic)
	assert.Equal(t, "statements", header(msgs[0], "source_topic"))
	assert.Equal(t, "9", header(msgs[0], "source_offset"))
	assert.Equal(t, "cannot decide", header(msgs[0], "error"))
	assert.True(t, dlq.closed)
}

func TestConsumerWithoutDLQLeavesFailureUncommitted(t *testing.T) {
	r := &fakeReader{pending: []kafka.Message{
		{Partition: 0, Offset: 1, Value: []byte("poison")},
		{Partition: 0, Offset: 2, Value: []byte("fine")},
	}}
	h := &recordingHandler{fail: "poison"}
	c := testConsumer(r, nil, 0)
	c.RegisterHandler(h)

	require.NoError(t, c.Start(context.Background()))
	require.Eventually(t, func() bool { return len(r.commits()) == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, c.Stop(context.Background()))
	assert.Equal(t, []int64{2}, r.commits())
}
