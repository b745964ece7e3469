package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Publisher ships aggregated log batches. The Kafka producer satisfies it.
type Publisher interface {
	Publish(ctx context.Context, topic string, key []byte, value any) error
}

type CollectionConfig struct {
	TimeInterval   time.Duration // flush period, default 30s
	CountThreshold int           // distinct entries that force an early flush, default 100
	Topic          string
	Service        string // message key
	Publisher      Publisher
}

// AggregatedLogEntry is one distinct warn/error line and how often it was
// logged since the previous flush.
type AggregatedLogEntry struct {
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
	Caller    string         `json:"caller"`
	Count     int            `json:"count"`
	FirstSeen time.Time      `json:"first_seen"`
	LastSeen  time.Time      `json:"last_seen"`
}

// LogCollector folds repeated lines and publishes them in batches from a
// single goroutine, so publishes never overlap.
type LogCollector struct {
	cfg CollectionConfig

	mu      sync.Mutex
	entries map[uint64]*AggregatedLogEntry

	kick chan struct{}
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

func NewLogCollector(cfg *CollectionConfig) *LogCollector {
	c := &LogCollector{
		cfg:     *cfg,
		entries: make(map[uint64]*AggregatedLogEntry),
		kick:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	if c.cfg.TimeInterval <= 0 {
		c.cfg.TimeInterval = 30 * time.Second
	}
	if c.cfg.CountThreshold <= 0 {
		c.cfg.CountThreshold = 100
	}
	go c.run()
	return c
}

func (c *LogCollector) AddLog(level, message string, fields map[string]any, caller string) {
	now := time.Now()
	key := entryKey(level, message, fields, caller)

	c.mu.Lock()
	e, ok := c.entries[key]
	if ok {
		e.Count++
		e.LastSeen = now
	} else {
		c.entries[key] = &AggregatedLogEntry{
			Level:     level,
			Message:   message,
			Fields:    fields,
			Caller:    caller,
			Count:     1,
			FirstSeen: now,
			LastSeen:  now,
		}
	}
	full := len(c.entries) >= c.cfg.CountThreshold
	c.mu.Unlock()

	if full {
		select {
		case c.kick <- struct{}{}:
		default:
		}
	}
}

// Pending reports how many distinct entries wait for the next flush.
func (c *LogCollector) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Close publishes what is pending and stops the flush loop.
func (c *LogCollector) Close() {
	c.once.Do(func() { close(c.stop) })
	<-c.done
}

func (c *LogCollector) run() {
	defer close(c.done)
	t := time.NewTicker(c.cfg.TimeInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
		case <-c.kick:
		case <-c.stop:
			c.flush()
			return
		}
		c.flush()
	}
}

func (c *LogCollector) flush() {
	c.mu.Lock()
	if len(c.entries) == 0 {
		c.mu.Unlock()
		return
	}
	batch := make([]AggregatedLogEntry, 0, len(c.entries))
	for _, e := range c.entries {
		batch = append(batch, *e)
	}
	c.entries = make(map[uint64]*AggregatedLogEntry)
	c.mu.Unlock()

	if c.cfg.Publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := c.cfg.Publisher.Publish(ctx, c.cfg.Topic, []byte(c.cfg.Service), batch); err != nil {
		// the logger feeds this collector, so report on stderr
		fmt.Fprintf(os.Stderr, "log collector: publish %d entries: %v\n", len(batch), err)
	}
}

// entryKey identifies a line by everything but its timestamp. Map keys are
// sorted by encoding/json, so equal field sets hash equally.
func entryKey(level, message string, fields map[string]any, caller string) uint64 {
	h := xxhash.New()
	_, _ = h.WriteString(level)
	_, _ = h.WriteString("\x00" + message + "\x00" + caller + "\x00")
	if len(fields) > 0 {
		b, err := json.Marshal(fields)
		if err != nil {
			b = fmt.Appendf(nil, "%v", fields)
		}
		_, _ = h.Write(b)
	}
	return h.Sum64()
}
