// Package scheduler runs the periodic background jobs (notification poll,
// rolling eviction, state checkpoint, feed ingest) on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	domrepo "NewsSignal/internal/domain/repository"
	xlogger "NewsSignal/pkg/logger"
)

// Job represents a scheduled job
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type funcJob struct {
	name string
	fn   func(ctx context.Context) error
}

func (j funcJob) Name() string                  { return j.name }
func (j funcJob) Run(ctx context.Context) error { return j.fn(ctx) }

// Func adapts a plain function to Job.
func Func(name string, fn func(ctx context.Context) error) Job {
	return funcJob{name: name, fn: fn}
}

// Accepts both 5-field and 6-field (leading seconds) specs plus descriptors
// such as "@every 30s".
var parser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Scheduler manages background jobs. A job still running when its next
// tick fires is skipped.
type Scheduler struct {
	cron    *cron.Cron
	log     *xlogger.Logger
	metrics domrepo.Metrics
	timeout time.Duration

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	names  []string
}

type Option func(*Scheduler)

// WithJobTimeout bounds a single job run.
func WithJobTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func WithMetrics(m domrepo.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

func New(log *xlogger.Logger, opts ...Option) *Scheduler {
	if log == nil {
		log = xlogger.NewNop()
	}
	log = log.With("scheduler")
	s := &Scheduler{log: log, timeout: time.Minute}
	for _, opt := range opts {
		opt(s)
	}
	cl := cronLogger{log}
	s.cron = cron.New(
		cron.WithParser(parser),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

// Start starts the scheduler. Job contexts derive from ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.cancel()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()
	s.cron.Start()
	s.log.Info("Scheduler started", xlogger.Strings("jobs", s.Jobs()))
}

// Stop stops the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	done := s.cron.Stop()
	s.mu.Lock()
	s.cancel()
	s.mu.Unlock()
	<-done.Done()
	s.log.Info("Scheduler stopped")
}

// AddJob registers a new job with cron schedule
// Schedule examples:
//   - "0 */5 * * * *"      - Every 5 minutes
//   - "@hourly"            - Every hour
//   - "@every 30s"         - Every 30 seconds
func (s *Scheduler) AddJob(schedule string, job Job) error {
	if _, err := s.cron.AddFunc(schedule, func() { _ = s.run(job) }); err != nil {
		return fmt.Errorf("schedule %s (%q): %w", job.Name(), schedule, err)
	}
	s.mu.Lock()
	s.names = append(s.names, job.Name())
	s.mu.Unlock()
	s.log.Info("Job registered",
		xlogger.String("schedule", schedule),
		xlogger.String("job", job.Name()))
	return nil
}

// RunNow executes a job immediately (outside schedule)
func (s *Scheduler) RunNow(job Job) error {
	return s.run(job)
}

// Jobs lists registered job names.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.names...)
}

func (s *Scheduler) run(job Job) error {
	s.mu.Lock()
	parent := s.ctx
	s.mu.Unlock()
	ctx, cancel := context.WithTimeout(parent, s.timeout)
	defer cancel()

	start := time.Now()
	err := job.Run(ctx)
	if s.metrics != nil {
		s.metrics.RecordLatency("job_"+job.Name(), time.Since(start).Seconds())
	}
	if err != nil {
		s.log.Error("Job failed", xlogger.String("job", job.Name()), xlogger.Error(err))
		if s.metrics != nil {
			s.metrics.RecordError("job_" + job.Name())
		}
		return err
	}
	s.log.Debug("Job completed",
		xlogger.String("job", job.Name()),
		xlogger.Duration("took", time.Since(start)))
	return nil
}

// cronLogger adapts the zerolog wrapper to cron.Logger.
type cronLogger struct{ l *xlogger.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug(msg, xlogger.Any("kv", keysAndValues))
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error(msg, xlogger.Error(err), xlogger.Any("kv", keysAndValues))
}
