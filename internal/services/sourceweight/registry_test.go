package sourceweight

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAliasResolvesLikeCanonical(t *testing.T) {
	r := New(nil)

	pairs := [][2]string{
		{"Federal Reserve", "fed"},
		{"Jerome Powell", "powell"},
		{"@elonmusk", "musk"},
		{"J.P. Morgan", "jpmorgan"},
		{"Thomson-Reuters", "reuters"},
	}
	for _, p := range pairs {
		t.Run(p[0], func(t *testing.T) {
			assert.Equal(t, r.Resolve(p[1]), r.Resolve(p[0]))
			assert.Equal(t, r.Resolve(p[0]), r.Resolve(p[0]), "resolution is idempotent")
			assert.Equal(t, "alias", r.Lookup(p[0]).Via)
		})
	}
}

func TestResolutionOrder(t *testing.T) {
	r := New(nil)

	m := r.Lookup("Reuters")
	assert.Equal(t, "exact", m.Via)
	assert.InDelta(t, 0.85, m.Weight, 1e-9)

	m = r.Lookup("Reuters Breakingviews desk")
	assert.Equal(t, "substring", m.Via)
	assert.Equal(t, "reuters", m.Canonical)

	m = r.Lookup("Federalist blog")
	assert.Equal(t, "default", m.Via, "substring matching respects word boundaries")
	assert.InDelta(t, DefaultWeight, m.Weight, 1e-9)

	assert.InDelta(t, DefaultWeight, r.Resolve(""), 1e-9)
}

func TestParseTableClampsAndRejectsConflicts(t *testing.T) {
	tbl, err := ParseTable([]byte("default_weight: 2\nsources:\n  shouty: {weight: -1}\n"))
	require.NoError(t, err)
	r := New(tbl)
	assert.Equal(t, 0.0, r.Resolve("shouty"))
	assert.Equal(t, 1.0, r.Resolve("nobody"))

	_, err = ParseTable([]byte("sources:\n  a: {weight: 0.5, aliases: [x]}\n  b: {weight: 0.5, aliases: [x]}\n"))
	assert.Error(t, err)
}

func TestReloadIsAtomic(t *testing.T) {
	r := New(nil)
	require.Error(t, r.Reload([]byte("sources: [")))
	assert.InDelta(t, 0.85, r.Resolve("reuters"), 1e-9)

	mk := func(w float64) []byte {
		return []byte(fmt.Sprintf("sources:\n  alpha: {weight: %.2f, aliases: [a1]}\n  beta: {weight: %.2f, aliases: [b1]}\n", w, w))
	}
	require.NoError(t, r.Reload(mk(0.1)))

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			_ = r.Reload(mk(0.1 + float64(i%2)*0.8))
		}
	}()
	for i := 0; i < 2000; i++ {
		tbl := r.table.Load()
		assert.Equal(t, tbl.canonical["alpha"].Weight, tbl.canonical["beta"].Weight)
	}
	close(stop)
	wg.Wait()
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "wall street journal", Normalize("  Wall-Street_Journal "))
	assert.Equal(t, "@elonmusk", Normalize("@ElonMusk"))
	assert.Equal(t, "j p morgan", Normalize("J.P. Morgan"))
}
