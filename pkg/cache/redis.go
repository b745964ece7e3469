package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type redisOptions struct {
	addr     string
	password string
	db       int
	poolSize int
	minIdle  int
	prefix   string
	dialWait time.Duration
}

// RedisOption configures NewRedisCache.
type RedisOption func(*redisOptions)

func WithRedisAddr(addr string) RedisOption {
	return func(o *redisOptions) {
		if addr != "" {
			o.addr = addr
		}
	}
}

func WithRedisPassword(password string) RedisOption {
	return func(o *redisOptions) { o.password = password }
}

func WithRedisDB(db int) RedisOption {
	return func(o *redisOptions) { o.db = db }
}

// WithRedisPool sizes the connection pool.
func WithRedisPool(size, minIdle int) RedisOption {
	return func(o *redisOptions) {
		if size > 0 {
			o.poolSize = size
		}
		o.minIdle = minIdle
	}
}

// WithRedisPrefix namespaces every key as "<prefix>:<key>".
func WithRedisPrefix(prefix string) RedisOption {
	return func(o *redisOptions) { o.prefix = prefix }
}

// RedisCache stores values in Redis. It is safe for concurrent use by
// several processes.
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache connects and pings; an unreachable server is an error.
func NewRedisCache(opts ...RedisOption) (*RedisCache, error) {
	o := redisOptions{
		addr:     "localhost:6379",
		poolSize: 10,
		minIdle:  2,
		prefix:   "newssignal",
		dialWait: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}

	client := redis.NewClient(&redis.Options{
		Addr:         o.addr,
		Password:     o.password,
		DB:           o.db,
		PoolSize:     o.poolSize,
		MinIdleConns: o.minIdle,
	})
	ctx, cancel := context.WithTimeout(context.Background(), o.dialWait)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", o.addr, err)
	}
	return NewRedisCacheFromClient(client, o.prefix), nil
}

func NewRedisCacheFromClient(client *redis.Client, prefix string) *RedisCache {
	return &RedisCache{client: client, prefix: prefix}
}

// Client exposes the connection for components that need raw commands,
// such as the statement queue.
func (c *RedisCache) Client() *redis.Client { return c.client }

func (c *RedisCache) Close() error { return c.client.Close() }

func (c *RedisCache) key(k string) string {
	if c.prefix == "" {
		return k
	}
	return Key(c.prefix, k)
}

func (c *RedisCache) Get(ctx context.Context, key string, dest any) error {
	data, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrMiss
	}
	if err != nil {
		return err
	}
	return unmarshal(data, dest)
}

func (c *RedisCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := marshal(value)
	if err != nil {
		return err
	}
	if ttl < 0 {
		ttl = 0
	}
	return c.client.Set(ctx, c.key(key), data, ttl).Err()
}

func (c *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.key(k)
	}
	return c.client.Unlink(ctx, full...).Err()
}

func (c *RedisCache) Has(ctx context.Context, key string) (bool, error) {
	n, err := c.client.Exists(ctx, c.key(key)).Result()
	return n > 0, err
}

// Incr runs INCR and, when it created the counter, EXPIRE. A crash
// between the two leaves a counter without expiry.
func (c *RedisCache) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	k := c.key(key)
	n, err := c.client.Incr(ctx, k).Result()
	if err != nil {
		return 0, err
	}
	if n == 1 && ttl > 0 {
		if err := c.client.Expire(ctx, k, ttl).Err(); err != nil {
			return n, fmt.Errorf("expire %s: %w", k, err)
		}
	}
	return n, nil
}

func (c *RedisCache) Count(ctx context.Context, key string) (int64, error) {
	n, err := c.client.Get(ctx, c.key(key)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}
