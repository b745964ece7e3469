package contextual

import (
	"sync"
	"time"
)

type AntispamConfig struct {
	WindowSize int
	Similarity float64
	Horizon    time.Duration
}

func DefaultAntispamConfig() AntispamConfig {
	return AntispamConfig{WindowSize: 128, Similarity: 0.90, Horizon: 10 * time.Minute}
}

// SpamVerdict is the outcome of comparing one text with the window.
type SpamVerdict struct {
	Duplicate  bool      `json:"duplicate"`
	Similarity float64   `json:"similarity"`
	MatchedAt  time.Time `json:"matched_at,omitempty"`
}

type seen struct {
	id   uint64
	ts   time.Time
	norm string
}

// Antispam keeps a bounded, time-ordered window of recent texts. Peek
// compares without recording. Reserve compares and records in one step, so
// statements scored at the same time see each other; the holder releases
// the entry if the statement is never committed.
type Antispam struct {
	mu     sync.Mutex
	cfg    AntispamConfig
	items  []seen
	nextID uint64
}

// Reservation is a window entry held by a statement still being scored.
type Reservation struct {
	a  *Antispam
	id uint64
}

func NewAntispam(cfg AntispamConfig) *Antispam {
	def := DefaultAntispamConfig()
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = def.WindowSize
	}
	if cfg.Similarity <= 0 || cfg.Similarity > 1 {
		cfg.Similarity = def.Similarity
	}
	if cfg.Horizon <= 0 {
		cfg.Horizon = def.Horizon
	}
	return &Antispam{cfg: cfg}
}

// Peek reports whether text is a near-duplicate of anything still inside
// the window as of ts.
func (a *Antispam) Peek(ts time.Time, text string) SpamVerdict {
	norm := NormalizeText(text)
	a.mu.Lock()
	defer a.mu.Unlock()
	a.evictLocked(ts)
	return a.matchLocked(norm)
}

// Reserve compares text with the window and adds it under the same lock.
func (a *Antispam) Reserve(ts time.Time, text string) (SpamVerdict, *Reservation) {
	norm := NormalizeText(text)
	a.mu.Lock()
	defer a.mu.Unlock()
	a.evictLocked(ts)
	v := a.matchLocked(norm)
	id := a.appendLocked(ts, norm)
	return v, &Reservation{a: a, id: id}
}

// Release removes the reserved entry if it is still in the window. It is
// safe on a nil Reservation and safe to call twice.
func (r *Reservation) Release() {
	if r == nil {
		return
	}
	a := r.a
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := range a.items {
		if a.items[i].id == r.id {
			a.items = append(a.items[:i], a.items[i+1:]...)
			return
		}
	}
}

func (a *Antispam) matchLocked(norm string) SpamVerdict {
	var v SpamVerdict
	for i := len(a.items) - 1; i >= 0; i-- {
		sim := similarityNormalized(norm, a.items[i].norm)
		if sim >= a.cfg.Similarity {
			return SpamVerdict{Duplicate: true, Similarity: sim, MatchedAt: a.items[i].ts}
		}
		v.Similarity = max(v.Similarity, sim)
	}
	return v
}

func (a *Antispam) appendLocked(ts time.Time, norm string) uint64 {
	a.nextID++
	a.items = append(a.items, seen{id: a.nextID, ts: ts, norm: norm})
	if over := len(a.items) - a.cfg.WindowSize; over > 0 {
		a.items = a.items[over:]
	}
	return a.nextID
}

// Len returns the number of texts currently held.
func (a *Antispam) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.items)
}

// evictLocked drops entries older than the horizon relative to now. Items
// are appended in commit order, so only a prefix can be stale; entries
// stamped later than now are kept.
func (a *Antispam) evictLocked(now time.Time) {
	i := 0
	for i < len(a.items) && now.Sub(a.items[i].ts) > a.cfg.Horizon {
		i++
	}
	if i > 0 {
		a.items = a.items[i:]
	}
}
