package contextual

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, Similarity("", ""))
	assert.Equal(t, 1.0, Similarity("Fed  Holds Rates", "fed holds rates"))
	assert.Equal(t, 0.0, Similarity("abc", "xyz"))
	assert.InDelta(t, 0.75, Similarity("abcd", "abce"), 1e-9)
}

func record(a *Antispam, ts time.Time, text string) SpamVerdict {
	v, _ := a.Reserve(ts, text)
	return v
}

func TestAntispamDetectsNearDuplicate(t *testing.T) {
	a := NewAntispam(DefaultAntispamConfig())
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	v := record(a, t0, "ISM manufacturing dips below 50; the Dow slips.")
	assert.False(t, v.Duplicate)

	v = record(a, t0.Add(time.Minute), "ISM manufacturing dips below 50;  the Dow slips!")
	assert.True(t, v.Duplicate)
	assert.GreaterOrEqual(t, v.Similarity, 0.9)
	assert.Equal(t, t0, v.MatchedAt)

	v = record(a, t0.Add(2*time.Minute), "Oil jumps as OPEC cuts supply")
	assert.False(t, v.Duplicate)
	assert.Less(t, v.Similarity, 0.9)
}

func TestAntispamHorizonEviction(t *testing.T) {
	a := NewAntispam(AntispamConfig{WindowSize: 10, Similarity: 0.9, Horizon: 10 * time.Minute})
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	text := "Fed holds rates steady"

	record(a, t0, text)
	assert.True(t, a.Peek(t0.Add(10*time.Minute), text).Duplicate, "exactly at the horizon still counts")
	assert.False(t, a.Peek(t0.Add(10*time.Minute+time.Second), text).Duplicate)
	assert.Equal(t, 0, a.Len())
}

func TestAntispamSizeBound(t *testing.T) {
	a := NewAntispam(AntispamConfig{WindowSize: 3, Similarity: 0.9, Horizon: time.Hour})
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		record(a, t0.Add(time.Duration(i)*time.Second), fmt.Sprintf("headline number %d about something different %d", i, i*7919))
	}
	assert.Equal(t, 3, a.Len())
}

func TestAntispamPeekDoesNotRecord(t *testing.T) {
	a := NewAntispam(DefaultAntispamConfig())
	t0 := time.Now()

	require.False(t, a.Peek(t0, "Treasury yields climb").Duplicate)
	assert.Equal(t, 0, a.Len())
	assert.False(t, a.Peek(t0, "Treasury yields climb").Duplicate)
}

func TestAntispamReserveSeesConcurrentReservations(t *testing.T) {
	a := NewAntispam(DefaultAntispamConfig())
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	text := "ISM manufacturing dips below 50; the Dow slips."

	var (
		wg   sync.WaitGroup
		dups atomic.Int32
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if v, _ := a.Reserve(t0, text); v.Duplicate {
				dups.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 7, dups.Load(), "all but the first reservation match")
	assert.Equal(t, 8, a.Len())
}

func TestAntispamReleaseDropsEntry(t *testing.T) {
	a := NewAntispam(DefaultAntispamConfig())
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	_, keep := a.Reserve(t0, "Fed holds rates steady")
	_, drop := a.Reserve(t0, "Oil jumps as OPEC cuts supply")
	drop.Release()
	drop.Release()
	var none *Reservation
	none.Release()

	assert.Equal(t, 1, a.Len())
	assert.False(t, a.Peek(t0, "Oil jumps as OPEC cuts supply").Duplicate)
	assert.True(t, a.Peek(t0, "Fed holds rates steady").Duplicate)
	require.NotNil(t, keep)
}
