// Package rolling keeps the time-windowed aggregates the calibrator reads
// and the bounded history of committed decisions.
package rolling

import (
	"sort"
	"strings"
	"sync"
	"time"

	"NewsSignal/internal/domain/models"
)

const (
	DefaultVolumeWindow  = 10 * time.Minute
	DefaultAverageWindow = 48 * time.Hour
)

// Snapshot is a consistent view of both windows taken under one lock.
type Snapshot struct {
	At            time.Time `json:"at"`
	Volume        int       `json:"volume_10m"`
	Positive      int       `json:"positive_10m"`
	Negative      int       `json:"negative_10m"`
	UniqueSources int       `json:"unique_sources_10m"`
	Count         int       `json:"count_48h"`
	Average       float64   `json:"avg_48h"`
}

// Corroborating counts same-sign samples in the short window.
func (s Snapshot) Corroborating(sign float64) int {
	switch {
	case sign > 0:
		return s.Positive
	case sign < 0:
		return s.Negative
	}
	return 0
}

// Conflicting counts opposite-sign samples in the short window.
func (s Snapshot) Conflicting(sign float64) int {
	switch {
	case sign > 0:
		return s.Negative
	case sign < 0:
		return s.Positive
	}
	return 0
}

type Option func(*Store)

func WithVolumeWindow(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.volWindow = d
		}
	}
}

func WithAverageWindow(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.avgWindow = d
		}
	}
}

// Store holds disruption samples ordered by timestamp. A sample belongs to
// a window iff now - ts <= window; samples stamped after now always count.
// Stale samples are dropped lazily on Add, Snapshot and Evict.
type Store struct {
	mu        sync.Mutex
	volWindow time.Duration
	avgWindow time.Duration
	samples   []models.RollingSample
}

func NewStore(opts ...Option) *Store {
	s := &Store{volWindow: DefaultVolumeWindow, avgWindow: DefaultAverageWindow}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add records a committed sample.
func (s *Store) Add(sample models.RollingSample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.samples)
	if n == 0 || !sample.Timestamp.Before(s.samples[n-1].Timestamp) {
		s.samples = append(s.samples, sample)
		return
	}
	i := sort.Search(n, func(i int) bool { return s.samples[i].Timestamp.After(sample.Timestamp) })
	s.samples = append(s.samples, models.RollingSample{})
	copy(s.samples[i+1:], s.samples[i:])
	s.samples[i] = sample
}

// Snapshot evicts samples older than the long window and aggregates both
// windows as of now.
func (s *Store) Snapshot(now time.Time) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictLocked(now)

	snap := Snapshot{At: now}
	sources := map[string]struct{}{}
	var sum float64
	for _, smp := range s.samples {
		sum += smp.Value
		snap.Count++
		if now.Sub(smp.Timestamp) > s.volWindow {
			continue
		}
		snap.Volume++
		switch {
		case smp.Value > 0:
			snap.Positive++
		case smp.Value < 0:
			snap.Negative++
		}
		if smp.Source != "" {
			sources[strings.ToLower(smp.Source)] = struct{}{}
		}
	}
	snap.UniqueSources = len(sources)
	if snap.Count > 0 {
		snap.Average = sum / float64(snap.Count)
	}
	return snap
}

// Evict drops samples outside the long window and returns how many went.
func (s *Store) Evict(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.evictLocked(now)
}

// Len is the number of retained samples.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.samples)
}

// Samples returns a copy for checkpointing.
func (s *Store) Samples() []models.RollingSample {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.RollingSample(nil), s.samples...)
}

// Restore replaces the contents with samples (any order).
func (s *Store) Restore(samples []models.RollingSample) {
	cp := append([]models.RollingSample(nil), samples...)
	sort.SliceStable(cp, func(i, j int) bool { return cp[i].Timestamp.Before(cp[j].Timestamp) })
	s.mu.Lock()
	s.samples = cp
	s.mu.Unlock()
}

func (s *Store) evictLocked(now time.Time) int {
	i := 0
	for i < len(s.samples) && now.Sub(s.samples[i].Timestamp) > s.avgWindow {
		i++
	}
	if i > 0 {
		s.samples = s.samples[i:]
	}
	return i
}
