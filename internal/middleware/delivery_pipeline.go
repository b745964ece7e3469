package middleware

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"NewsSignal/internal/domain/models"
	domrepo "NewsSignal/internal/domain/repository"
	xlogger "NewsSignal/pkg/logger"
)

// ErrQueueFull is returned by Submit when the buffer has no room.
var ErrQueueFull = errors.New("delivery queue full")

// Proc is the minimal processor interface the pipeline needs.
type Proc interface {
	Process(ctx context.Context, r *models.DecisionRecord) error
}

// DeliveryPipeline sits between the engine and the decision backend.
// It validates, throttles per source, and buffers with retry while the
// downstream is unavailable.
type DeliveryPipeline struct {
	proc     Proc
	metrics  domrepo.Metrics
	logger   *xlogger.Logger
	maxRPS   int
	bufSize  int
	maxTries int
	bufCh    chan queued
	stopCh   chan struct{}
	doneCh   chan struct{}
	started  bool
	mu       sync.Mutex
	lastSeen map[string]time.Time // per-source last accepted time
	now      func() time.Time
}

type queued struct {
	rec   *models.DecisionRecord
	tries int
}

type PipelineOption func(*DeliveryPipeline)

// WithMaxRPS sets the max records per second per source. Zero disables it.
func WithMaxRPS(n int) PipelineOption {
	return func(p *DeliveryPipeline) {
		if n >= 0 {
			p.maxRPS = n
		}
	}
}

// WithBufferSize sets the temporary buffer size when downstream is unavailable.
func WithBufferSize(n int) PipelineOption {
	return func(p *DeliveryPipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// WithMaxAttempts bounds how often a buffered record is retried.
func WithMaxAttempts(n int) PipelineOption {
	return func(p *DeliveryPipeline) {
		if n > 0 {
			p.maxTries = n
		}
	}
}

func WithPipelineLogger(l *xlogger.Logger) PipelineOption {
	return func(p *DeliveryPipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

func WithPipelineClock(now func() time.Time) PipelineOption {
	return func(p *DeliveryPipeline) { p.now = now }
}

func NewDeliveryPipeline(proc Proc, metrics domrepo.Metrics, opts ...PipelineOption) *DeliveryPipeline {
	p := &DeliveryPipeline{
		proc:     proc,
		metrics:  metrics,
		logger:   xlogger.NewNop(),
		maxRPS:   50,
		bufSize:  1000,
		maxTries: 5,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		lastSeen: make(map[string]time.Time),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bufCh = make(chan queued, p.bufSize)
	return p
}

// Start launches background delivery of submitted and buffered records.
func (p *DeliveryPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go func() {
		defer close(p.doneCh)
		backoff := 50 * time.Millisecond
		for {
			select {
			case <-ctx.Done():
				return
			case <-p.stopCh:
				return
			case q := <-p.bufCh:
				if q.rec == nil {
					continue
				}
				if err := p.proc.Process(ctx, q.rec); err != nil {
					q.tries++
					p.recordError("pipeline_flush")
					if q.tries >= p.maxTries {
						p.logger.Warn("Dropping decision after retries",
							xlogger.String("id", q.rec.ID),
							xlogger.Int("tries", q.tries),
							xlogger.Error(err))
						p.recordError("pipeline_drop")
						continue
					}
					// exponential backoff with cap
					if backoff < 2*time.Second {
						backoff *= 2
					}
					select {
					case <-time.After(backoff):
					case <-p.stopCh:
						return
					case <-ctx.Done():
						return
					}
					// requeue if space; drop otherwise
					select {
					case p.bufCh <- q:
					default:
						p.recordError("pipeline_buffer_drop")
					}
				} else {
					backoff = 50 * time.Millisecond
				}
			}
		}
	}()
}

// Stop stops the background loop and waits for it to exit.
func (p *DeliveryPipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()
	close(p.stopCh)
	<-p.doneCh
}

// Submit validates and throttles r, then queues it without blocking.
// It is safe to call from an engine commit hook.
func (p *DeliveryPipeline) Submit(r *models.DecisionRecord) error {
	if err := validateRecord(r); err != nil {
		p.recordError("pipeline_validate")
		return err
	}
	if !p.allow(r.Source, p.now()) {
		p.recordError("pipeline_throttle")
		return nil
	}
	select {
	case p.bufCh <- queued{rec: r}:
		return nil
	default:
		p.recordError("pipeline_buffer_full")
		return ErrQueueFull
	}
}

// Process validates, throttles, and forwards r synchronously, buffering it
// for retry when the downstream fails.
func (p *DeliveryPipeline) Process(ctx context.Context, r *models.DecisionRecord) error {
	start := p.now()
	if err := validateRecord(r); err != nil {
		p.recordError("pipeline_validate")
		return err
	}
	if !p.allow(r.Source, start) {
		// throttled; record and drop silently
		p.recordError("pipeline_throttle")
		return nil
	}
	if err := p.proc.Process(ctx, r); err != nil {
		p.recordError("pipeline_process")
		select {
		case p.bufCh <- queued{rec: r, tries: 1}:
		default:
			p.recordError("pipeline_buffer_full")
		}
		return fmt.Errorf("pipeline downstream: %w", err)
	}
	if p.metrics != nil {
		p.metrics.RecordLatency("pipeline_process", p.now().Sub(start).Seconds())
	}
	return nil
}

// Pending reports how many records wait in the buffer.
func (p *DeliveryPipeline) Pending() int { return len(p.bufCh) }

func (p *DeliveryPipeline) recordError(kind string) {
	if p.metrics != nil {
		p.metrics.RecordError(kind)
	}
}

func validateRecord(r *models.DecisionRecord) error {
	if r == nil {
		return fmt.Errorf("record nil")
	}
	if r.ID == "" {
		return fmt.Errorf("record id empty")
	}
	if r.Timestamp.IsZero() {
		return fmt.Errorf("record timestamp missing")
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("confidence %.2f out of range", r.Confidence)
	}
	return nil
}

func (p *DeliveryPipeline) allow(source string, now time.Time) bool {
	if p.maxRPS <= 0 {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	last := p.lastSeen[source]
	if !last.IsZero() && now.Sub(last) < time.Second/time.Duration(p.maxRPS) {
		return false
	}
	p.lastSeen[source] = now
	return true
}
