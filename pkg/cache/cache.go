// Package cache holds the key/value stores shared by the AI arbiter, the
// ingest dedup and the state checkpoints. MemoryCache serves a single
// process, RedisCache is shared between replicas and LayeredCache puts the
// former in front of the latter.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("cache: miss")

// Cache is implemented by every backend in this package.
type Cache interface {
	Get(ctx context.Context, key string, dest any) error
	// Set stores value under key. A ttl <= 0 means the backend default:
	// no expiry in Redis, a week in memory.
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Has(ctx context.Context, key string) (bool, error)
	// Incr adds one to the counter at key and returns the new value. ttl is
	// applied when the call creates the counter.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	// Count reads a counter written by Incr, 0 when absent. It never serves
	// a process-local copy.
	Count(ctx context.Context, key string) (int64, error)
	Close() error
}

// Key joins a namespace and an id.
func Key(namespace, id string) string {
	return namespace + ":" + id
}

// marshal keeps strings and byte slices raw so counters written by Incr
// read back as plain numbers in every backend.
func marshal(value any) ([]byte, error) {
	switch v := value.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	}
	b, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("cache: encode %T: %w", value, err)
	}
	return b, nil
}

func unmarshal(data []byte, dest any) error {
	switch d := dest.(type) {
	case *string:
		*d = string(data)
	case *[]byte:
		*d = append((*d)[:0], data...)
	default:
		if err := json.Unmarshal(data, dest); err != nil {
			return fmt.Errorf("cache: decode into %T: %w", dest, err)
		}
	}
	return nil
}
