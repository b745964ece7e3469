package logger

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memPublisher struct {
	mu      sync.Mutex
	batches [][]AggregatedLogEntry
	topic   string
}

func (m *memPublisher) Publish(_ context.Context, topic string, _ []byte, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.topic = topic
	m.batches = append(m.batches, value.([]AggregatedLogEntry))
	return nil
}

func (m *memPublisher) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.batches)
}

func TestNewRejectsBadLevel(t *testing.T) {
	_, err := New(&Config{Level: "loud", Output: "stdout"})
	assert.Error(t, err)
}

func TestFileOutputFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	l, err := New(&Config{Level: "info", Format: "json", Output: path})
	require.NoError(t, err)

	l.With("engine").Info("decided",
		String("decision", "BUY"),
		Int("statements", 3),
		Float64("confidence", 0.72),
		Bool("notified", true),
		Strings("sources", []string{"Reuters", "Fed"}),
		Error(nil))
	l.Debug("dropped below level")

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var line map[string]any
	require.NoError(t, json.Unmarshal(raw, &line))
	assert.Equal(t, "engine", line["component"])
	assert.Equal(t, "BUY", line["decision"])
	assert.EqualValues(t, 3, line["statements"])
	assert.Equal(t, true, line["notified"])
	assert.Len(t, line["sources"], 2)
	assert.NotContains(t, line, "error")
	assert.Contains(t, line, "caller")
}

func TestCollectorFoldsRepeats(t *testing.T) {
	pub := &memPublisher{}
	c := NewLogCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 10, Topic: "logs", Publisher: pub})

	for i := 0; i < 5; i++ {
		c.AddLog("warn", "provider fetch failed", map[string]any{"provider": "fed"}, "ingest.go:1")
	}
	c.AddLog("error", "sink failed", nil, "notify.go:1")
	assert.Equal(t, 2, c.Pending())

	c.Close()
	require.Equal(t, 1, pub.count())
	assert.Equal(t, "logs", pub.topic)

	total := 0
	for _, e := range pub.batches[0] {
		total += e.Count
	}
	assert.Equal(t, 6, total)
}

func TestCollectorFlushesAtThreshold(t *testing.T) {
	pub := &memPublisher{}
	c := NewLogCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 2, Publisher: pub})
	defer c.Close()

	c.AddLog("warn", "a", nil, "x")
	c.AddLog("warn", "b", nil, "x")
	require.Eventually(t, func() bool { return pub.count() == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, c.Pending())
}

func TestEntryKeyIgnoresFieldOrder(t *testing.T) {
	a := entryKey("warn", "m", map[string]any{"x": 1, "y": "z"}, "c")
	b := entryKey("warn", "m", map[string]any{"y": "z", "x": 1}, "c")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, entryKey("error", "m", map[string]any{"x": 1, "y": "z"}, "c"))
}

func TestCollectorReachesEarlierChildren(t *testing.T) {
	pub := &memPublisher{}
	l := NewNop()
	child := l.With("engine")

	l.AddCollector(&CollectionConfig{TimeInterval: time.Hour, Publisher: pub})
	child.Warn("slow", String("op", "decide"))
	child.Error("failed", Error(errors.New("boom")))
	child.Info("ignored")
	child.Error("nil error", Error(nil))
	assert.Equal(t, 3, l.collector.Load().Pending())

	l.RemoveCollector()
	require.Equal(t, 1, pub.count())
	for _, e := range pub.batches[0] {
		assert.Equal(t, "engine", e.Fields["component"])
		if e.Message == "failed" {
			assert.Equal(t, "boom", e.Fields["error"])
		}
	}

	child.Error("after removal")
	assert.Nil(t, l.collector.Load())
}
