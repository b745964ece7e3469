package rolling

import (
	"sync"

	"NewsSignal/internal/domain/models"
)

const DefaultHistorySize = 500

// History is a fixed-size ring of the most recent decision records, in
// commit order.
type History struct {
	mu   sync.RWMutex
	buf  []models.DecisionRecord
	next int
	full bool
	seq  uint64 // records ever appended
}

func NewHistory(size int) *History {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &History{buf: make([]models.DecisionRecord, size)}
}

func (h *History) Append(r models.DecisionRecord) {
	h.mu.Lock()
	h.buf[h.next] = r
	h.seq++
	h.next = (h.next + 1) % len(h.buf)
	if h.next == 0 {
		h.full = true
	}
	h.mu.Unlock()
}

func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lenLocked()
}

func (h *History) Cap() int { return len(h.buf) }

func (h *History) lenLocked() int {
	if h.full {
		return len(h.buf)
	}
	return h.next
}

// Recent returns up to limit records, newest first. limit <= 0 means all.
func (h *History) Recent(limit int) []models.DecisionRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := h.lenLocked()
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]models.DecisionRecord, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (h.next - i + len(h.buf)) % len(h.buf)
		out = append(out, h.buf[idx])
	}
	return out
}

// Last returns the most recently committed record.
func (h *History) Last() (models.DecisionRecord, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.lenLocked() == 0 {
		return models.DecisionRecord{}, false
	}
	return h.buf[(h.next-1+len(h.buf))%len(h.buf)], true
}

// Since returns the records committed after cursor, oldest first, plus the
// cursor to pass next time. Records that already fell out of the ring are
// skipped.
func (h *History) Since(cursor uint64) ([]models.DecisionRecord, uint64) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if cursor >= h.seq {
		return nil, h.seq
	}
	n := min(h.seq-cursor, uint64(h.lenLocked()))
	out := make([]models.DecisionRecord, 0, n)
	for i := int(n); i >= 1; i-- {
		out = append(out, h.buf[(h.next-i+len(h.buf))%len(h.buf)])
	}
	return out, h.seq
}

// Seq is the number of records ever appended.
func (h *History) Seq() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.seq
}
