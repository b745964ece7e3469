package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	domrepo "NewsSignal/internal/domain/repository"
	"NewsSignal/pkg/cache"
)

// FileStateStore keeps one msgpack file per key under dir. Writes go to a
// temp file first and are renamed into place.
type FileStateStore struct {
	mu  sync.Mutex
	dir string
}

func NewFileStateStore(dir string) *FileStateStore {
	return &FileStateStore{dir: dir}
}

var _ domrepo.StateStore = (*FileStateStore)(nil)

func (s *FileStateStore) path(key string) string {
	return filepath.Join(s.dir, key+".msgpack")
}

func (s *FileStateStore) Save(_ context.Context, key string, v any) error {
	b, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode state %s: %w", key, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("state dir: %w", err)
	}
	tmp, err := os.CreateTemp(s.dir, key+".*.tmp")
	if err != nil {
		return fmt.Errorf("state temp: %w", err)
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write state %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close state %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), s.path(key)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("commit state %s: %w", key, err)
	}
	return nil
}

func (s *FileStateStore) Load(_ context.Context, key string, v any) error {
	s.mu.Lock()
	b, err := os.ReadFile(s.path(key))
	s.mu.Unlock()
	if errors.Is(err, os.ErrNotExist) {
		return domrepo.ErrStateNotFound
	}
	if err != nil {
		return fmt.Errorf("read state %s: %w", key, err)
	}
	if err := msgpack.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode state %s: %w", key, err)
	}
	return nil
}

// CacheStateStore keeps msgpack snapshots in a cache.Cache. Redis keeps
// them without expiry.
type CacheStateStore struct {
	backend cache.Cache
	prefix  string
}

func NewCacheStateStore(backend cache.Cache) *CacheStateStore {
	return &CacheStateStore{backend: backend, prefix: "state:"}
}

var _ domrepo.StateStore = (*CacheStateStore)(nil)

func (s *CacheStateStore) Save(ctx context.Context, key string, v any) error {
	b, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode state %s: %w", key, err)
	}
	if err := s.backend.Set(ctx, s.prefix+key, b, 0); err != nil {
		return fmt.Errorf("save state %s: %w", key, err)
	}
	return nil
}

func (s *CacheStateStore) Load(ctx context.Context, key string, v any) error {
	var b []byte
	if err := s.backend.Get(ctx, s.prefix+key, &b); err != nil {
		if errors.Is(err, cache.ErrMiss) {
			return domrepo.ErrStateNotFound
		}
		return fmt.Errorf("load state %s: %w", key, err)
	}
	if err := msgpack.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode state %s: %w", key, err)
	}
	return nil
}

// NopStateStore is used when checkpointing is disabled.
type NopStateStore struct{}

func (NopStateStore) Save(context.Context, string, any) error { return nil }

func (NopStateStore) Load(context.Context, string, any) error { return domrepo.ErrStateNotFound }
