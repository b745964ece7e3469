package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"NewsSignal/pkg/logger"
)

// RedisQueue keeps pending messages on <prefix>:messages, scheduled retries
// on the <prefix>:retry sorted set (score = due unix time) and exhausted
// messages on <prefix>:dlq.
type RedisQueue struct {
	client redis.UniversalClient
	cfg    Config
	prefix string
	logger *logger.Logger
	jobs   map[string]Job

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	promote time.Duration
}

// Option configures RedisQueue.
type Option func(*RedisQueue)

// WithKeyPrefix sets the key namespace.
func WithKeyPrefix(prefix string) Option {
	return func(q *RedisQueue) {
		if prefix != "" {
			q.prefix = prefix
		}
	}
}

func WithLogger(l *logger.Logger) Option {
	return func(q *RedisQueue) {
		if l != nil {
			q.logger = l
		}
	}
}

// WithJobs registers the jobs the workers dispatch to.
func WithJobs(jobs ...Job) Option {
	return func(q *RedisQueue) {
		for _, j := range jobs {
			q.jobs[j.Type()] = j
		}
	}
}

// New creates a queue. Without jobs it can only Enqueue.
func New(client redis.UniversalClient, cfg Config, opts ...Option) *RedisQueue {
	q := &RedisQueue{
		client:  client,
		cfg:     cfg.withDefaults(),
		prefix:  "newssignal:queue",
		logger:  logger.NewNop(),
		jobs:    make(map[string]Job),
		promote: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *RedisQueue) pendingKey() string { return q.prefix + ":messages" }
func (q *RedisQueue) retryKey() string   { return q.prefix + ":retry" }
func (q *RedisQueue) deadKey() string    { return q.prefix + ":dlq" }

// Enqueue wraps payload in a Message and pushes it.
func (q *RedisQueue) Enqueue(ctx context.Context, msgType string, payload any) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	msg := Message{ID: uuid.NewString(), Type: msgType, Payload: raw, Timestamp: time.Now().UTC()}
	data, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("marshal message: %w", err)
	}
	if err := q.client.LPush(ctx, q.pendingKey(), data).Err(); err != nil {
		return "", fmt.Errorf("lpush: %w", err)
	}
	return msg.ID, nil
}

// Start pings Redis and launches the workers and the retry promoter. It
// does nothing when no job is registered.
func (q *RedisQueue) Start(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.cancel != nil {
		return fmt.Errorf("queue already running")
	}
	if len(q.jobs) == 0 {
		return nil
	}

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := q.client.Ping(pctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	ctx, q.cancel = context.WithCancel(ctx)
	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.work(ctx)
	}
	q.wg.Add(1)
	go q.promoteLoop(ctx)

	q.logger.Info("redis queue started",
		logger.Int("workers", q.cfg.Workers),
		logger.String("prefix", q.prefix))
	return nil
}

// Stop cancels the loops and waits for in-flight jobs.
func (q *RedisQueue) Stop(ctx context.Context) error {
	q.mu.Lock()
	cancel := q.cancel
	q.cancel = nil
	q.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		q.logger.Info("redis queue stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("timeout waiting for queue workers: %w", ctx.Err())
	}
}

func (q *RedisQueue) work(ctx context.Context) {
	defer q.wg.Done()
	for ctx.Err() == nil {
		res, err := q.client.BRPop(ctx, q.cfg.PollTimeout, q.pendingKey()).Result()
		switch {
		case errors.Is(err, redis.Nil), ctx.Err() != nil:
			continue
		case err != nil:
			q.logger.Error("brpop", logger.Error(err))
			sleep(ctx, time.Second)
			continue
		case len(res) < 2:
			continue
		}

		var msg Message
		if err := json.Unmarshal([]byte(res[1]), &msg); err != nil {
			q.logger.Error("drop undecodable message", logger.Error(err))
			continue
		}
		q.process(ctx, msg)
	}
}

func (q *RedisQueue) process(ctx context.Context, msg Message) {
	job, ok := q.jobs[msg.Type]
	if !ok {
		q.logger.Warn("no job for message type", logger.String("type", msg.Type), logger.String("id", msg.ID))
		q.park(ctx, q.deadKey(), msg)
		return
	}

	err := job.Handle(ctx, msg.Payload)
	if err == nil {
		return
	}
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		// Shutdown interrupted the job; put it back untouched.
		q.park(ctx, q.pendingKey(), msg)
		return
	}

	msg.Attempts++
	msg.LastError = err.Error()
	if msg.Attempts > q.cfg.RetryLimit {
		q.logger.Error("job failed, dead-lettered",
			logger.String("job", job.Name()),
			logger.String("id", msg.ID),
			logger.Int("attempts", msg.Attempts),
			logger.Error(err))
		q.park(ctx, q.deadKey(), msg)
		return
	}

	due := q.cfg.retryAt(time.Now(), msg.Attempts)
	q.logger.Warn("job failed, retry scheduled",
		logger.String("job", job.Name()),
		logger.String("id", msg.ID),
		logger.Int("attempt", msg.Attempts),
		logger.String("retry_at", due.UTC().Format(time.RFC3339)),
		logger.Error(err))
	data, merr := json.Marshal(msg)
	if merr != nil {
		q.logger.Error("marshal retry", logger.Error(merr))
		return
	}
	if zerr := q.client.ZAdd(context.WithoutCancel(ctx), q.retryKey(), redis.Z{Score: float64(due.Unix()), Member: data}).Err(); zerr != nil {
		q.logger.Error("zadd retry", logger.Error(zerr))
	}
}

// park pushes msg onto key with a context that survives shutdown.
func (q *RedisQueue) park(ctx context.Context, key string, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		q.logger.Error("marshal message", logger.Error(err))
		return
	}
	if err := q.client.LPush(context.WithoutCancel(ctx), key, data).Err(); err != nil {
		q.logger.Error("lpush", logger.String("key", key), logger.Error(err))
	}
}

func (q *RedisQueue) promoteLoop(ctx context.Context) {
	defer q.wg.Done()
	t := time.NewTicker(q.promote)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if _, err := q.promoteDue(ctx, now); err != nil && ctx.Err() == nil {
				q.logger.Error("promote retries", logger.Error(err))
			}
		}
	}
}

// promoteDue moves retries due at now back to the pending list. A member
// is pushed only by the caller whose ZREM removed it, so several instances
// can promote concurrently without duplicating work.
func (q *RedisQueue) promoteDue(ctx context.Context, now time.Time) (int, error) {
	due, err := q.client.ZRangeByScore(ctx, q.retryKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.Unix(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("zrangebyscore: %w", err)
	}
	moved := 0
	for _, member := range due {
		removed, err := q.client.ZRem(ctx, q.retryKey(), member).Result()
		if err != nil {
			return moved, fmt.Errorf("zrem: %w", err)
		}
		if removed == 0 {
			continue
		}
		if err := q.client.LPush(ctx, q.pendingKey(), member).Err(); err != nil {
			return moved, fmt.Errorf("lpush: %w", err)
		}
		moved++
	}
	return moved, nil
}

// Depth reports pending, scheduled-retry and dead-lettered message counts.
func (q *RedisQueue) Depth(ctx context.Context) (pending, retry, dead int64, err error) {
	pipe := q.client.Pipeline()
	p := pipe.LLen(ctx, q.pendingKey())
	r := pipe.ZCard(ctx, q.retryKey())
	d := pipe.LLen(ctx, q.deadKey())
	if _, err = pipe.Exec(ctx); err != nil {
		return 0, 0, 0, fmt.Errorf("queue depth: %w", err)
	}
	return p.Val(), r.Val(), d.Val(), nil
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
