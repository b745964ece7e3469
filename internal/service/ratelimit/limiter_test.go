package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAllowAtRefills(t *testing.T) {
	l := New(60, 2)
	t0 := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)

	assert.True(t, l.AllowAt("slack", t0))
	assert.True(t, l.AllowAt("slack", t0))
	assert.False(t, l.AllowAt("slack", t0))

	// one token per second
	assert.True(t, l.AllowAt("slack", t0.Add(time.Second)))
}

func TestKeysAreIndependent(t *testing.T) {
	l := New(1, 1)
	t0 := time.Now()
	assert.True(t, l.AllowAt("slack", t0))
	assert.False(t, l.AllowAt("slack", t0))
	assert.True(t, l.AllowAt("discord", t0))
}
