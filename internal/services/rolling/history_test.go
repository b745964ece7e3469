package rolling

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"NewsSignal/internal/domain/models"
)

func TestHistoryRing(t *testing.T) {
	h := NewHistory(3)
	_, ok := h.Last()
	assert.False(t, ok)
	assert.Empty(t, h.Recent(10))

	for i := 0; i < 5; i++ {
		h.Append(models.DecisionRecord{ID: fmt.Sprint(i)})
	}
	assert.Equal(t, 3, h.Len())

	ids := func(rs []models.DecisionRecord) []string {
		var out []string
		for _, r := range rs {
			out = append(out, r.ID)
		}
		return out
	}
	assert.Equal(t, []string{"4", "3", "2"}, ids(h.Recent(0)))
	assert.Equal(t, []string{"4", "3"}, ids(h.Recent(2)))

	last, ok := h.Last()
	assert.True(t, ok)
	assert.Equal(t, "4", last.ID)
}

func TestHistoryDefaultSize(t *testing.T) {
	assert.Equal(t, DefaultHistorySize, NewHistory(0).Cap())
}

func TestHistorySince(t *testing.T) {
	h := NewHistory(3)
	out, cur := h.Since(0)
	assert.Empty(t, out)
	assert.EqualValues(t, 0, cur)

	h.Append(models.DecisionRecord{ID: "a"})
	h.Append(models.DecisionRecord{ID: "b"})
	out, cur = h.Since(cur)
	assert.Len(t, out, 2)
	assert.Equal(t, "a", out[0].ID)
	assert.EqualValues(t, 2, cur)

	out, cur = h.Since(cur)
	assert.Empty(t, out)

	// overflow: only what the ring still holds comes back
	for _, id := range []string{"c", "d", "e", "f"} {
		h.Append(models.DecisionRecord{ID: id})
	}
	out, cur = h.Since(cur)
	assert.Len(t, out, 3)
	assert.Equal(t, "d", out[0].ID)
	assert.Equal(t, "f", out[2].ID)
	assert.EqualValues(t, 6, cur)
	assert.EqualValues(t, 6, h.Seq())
}
