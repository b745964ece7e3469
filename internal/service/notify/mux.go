package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"NewsSignal/internal/domain/repository"
	"NewsSignal/internal/service/ratelimit"
	"NewsSignal/pkg/config"
	xlogger "NewsSignal/pkg/logger"
)

// ErrThrottled is reported for a sink that exceeded its per-minute budget.
var ErrThrottled = errors.New("sink throttled")

// Result is the outcome of one fan-out.
type Result struct {
	Delivered int
	Failed    map[string]error
}

// Mux fans a message out to every sink concurrently. Each sink gets its own
// timeout; failures are logged and counted but never retried.
type Mux struct {
	sinks   []repository.NotificationSink
	timeout time.Duration
	limiter *ratelimit.Limiter
	logger  *xlogger.Logger
	metrics repository.Metrics
}

type MuxOption func(*Mux)

func WithTimeout(d time.Duration) MuxOption { return func(m *Mux) { m.timeout = d } }

func WithLimiter(l *ratelimit.Limiter) MuxOption { return func(m *Mux) { m.limiter = l } }

func WithLogger(l *xlogger.Logger) MuxOption { return func(m *Mux) { m.logger = l } }

func WithMetrics(r repository.Metrics) MuxOption { return func(m *Mux) { m.metrics = r } }

func NewMux(sinks []repository.NotificationSink, opts ...MuxOption) *Mux {
	m := &Mux{sinks: sinks, timeout: 5 * time.Second, logger: xlogger.NewNop()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NewFromConfig builds the sinks enabled in cfg.
func NewFromConfig(cfg config.NotifyConfig, logger *xlogger.Logger, metrics repository.Metrics) *Mux {
	var sinks []repository.NotificationSink
	if cfg.Slack.WebhookURL != "" {
		sinks = append(sinks, NewSlackSink(cfg.Slack.WebhookURL, cfg.SendTimeout))
	}
	if cfg.Discord.WebhookURL != "" {
		sinks = append(sinks, NewDiscordSink(cfg.Discord.WebhookURL, cfg.SendTimeout))
	}
	if cfg.LogSink {
		sinks = append(sinks, NewLogSink(logger))
	}
	return NewMux(sinks,
		WithTimeout(cfg.SendTimeout),
		WithLimiter(ratelimit.New(cfg.PerMinute, cfg.PerMinute)),
		WithLogger(logger),
		WithMetrics(metrics),
	)
}

func (m *Mux) Name() string { return "mux" }

// Sinks lists the configured sink names.
func (m *Mux) Sinks() []string {
	out := make([]string, len(m.sinks))
	for i, s := range m.sinks {
		out[i] = s.Name()
	}
	return out
}

// Send implements repository.NotificationSink so a Mux can stand in for a
// single sink. It fails only when every sink failed.
func (m *Mux) Send(ctx context.Context, message string) error {
	res := m.Deliver(ctx, message)
	if res.Delivered == 0 && len(res.Failed) > 0 {
		errs := make([]error, 0, len(res.Failed))
		for _, err := range res.Failed {
			errs = append(errs, err)
		}
		return errors.Join(errs...)
	}
	return nil
}

// Deliver sends message to all sinks and waits for them.
func (m *Mux) Deliver(ctx context.Context, message string) Result {
	res := Result{Failed: map[string]error{}}
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	// throttling is settled before any send starts; res is shared after that
	ready := make([]repository.NotificationSink, 0, len(m.sinks))
	for _, s := range m.sinks {
		if m.limiter != nil && !m.limiter.Allow(s.Name()) {
			res.Failed[s.Name()] = ErrThrottled
			m.record(s.Name(), "throttled")
			m.logger.Warn("notification throttled", xlogger.String("sink", s.Name()))
			continue
		}
		ready = append(ready, s)
	}
	for _, s := range ready {
		wg.Add(1)
		go func(s repository.NotificationSink) {
			defer wg.Done()
			sctx, cancel := context.WithTimeout(ctx, m.timeout)
			defer cancel()
			err := s.Send(sctx, message)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.Failed[s.Name()] = fmt.Errorf("sink %s: %w", s.Name(), err)
				m.record(s.Name(), "failed")
				m.logger.Error("notification failed", xlogger.String("sink", s.Name()), xlogger.Error(err))
				return
			}
			res.Delivered++
			m.record(s.Name(), "sent")
		}(s)
	}
	wg.Wait()
	return res
}

func (m *Mux) record(sink, status string) {
	if m.metrics != nil {
		m.metrics.RecordNotification(sink, status)
	}
}
