// Package aicache stores AI arbiter responses and the daily call quota on
// top of a pkg/cache backend (in-memory, Redis or layered).
package aicache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"NewsSignal/internal/domain/models"
	"NewsSignal/pkg/cache"
)

const responsePrefix = "ai:resp"

// Store keeps AICacheEntry values keyed by input hash.
type Store struct {
	backend cache.Cache
	ttl     time.Duration
}

func NewStore(backend cache.Cache, ttl time.Duration) *Store {
	return &Store{backend: backend, ttl: ttl}
}

func (s *Store) Get(ctx context.Context, hash string) (models.AICacheEntry, bool, error) {
	var e models.AICacheEntry
	err := s.backend.Get(ctx, cache.Key(responsePrefix, hash), &e)
	switch {
	case errors.Is(err, cache.ErrMiss):
		return models.AICacheEntry{}, false, nil
	case err != nil:
		return models.AICacheEntry{}, false, fmt.Errorf("ai cache get: %w", err)
	}
	return e, true, nil
}

// Put overwrites any previous entry for the same hash.
func (s *Store) Put(ctx context.Context, e models.AICacheEntry) error {
	if e.TTL == 0 {
		e.TTL = s.ttl
	}
	if err := s.backend.Set(ctx, cache.Key(responsePrefix, e.InputHash), e, e.TTL); err != nil {
		return fmt.Errorf("ai cache put: %w", err)
	}
	return nil
}
