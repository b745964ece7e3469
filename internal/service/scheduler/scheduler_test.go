package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddJobRejectsBadSpec(t *testing.T) {
	s := New(nil)
	err := s.AddJob("every now and then", Func("poll", func(context.Context) error { return nil }))
	assert.Error(t, err)
	assert.Empty(t, s.Jobs())
}

func TestAcceptsDescriptorsAndSeconds(t *testing.T) {
	s := New(nil)
	noop := Func("noop", func(context.Context) error { return nil })
	require.NoError(t, s.AddJob("@every 60s", noop))
	require.NoError(t, s.AddJob("*/5 * * * *", noop))
	require.NoError(t, s.AddJob("0 */5 * * * *", noop))
	assert.Len(t, s.Jobs(), 3)
}

func TestRunNowAppliesTimeout(t *testing.T) {
	s := New(nil, WithJobTimeout(20*time.Millisecond))
	err := s.RunNow(Func("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestScheduledJobRuns(t *testing.T) {
	var n atomic.Int32
	s := New(nil)
	require.NoError(t, s.AddJob("@every 1s", Func("tick", func(context.Context) error {
		n.Add(1)
		return nil
	})))
	s.Start(context.Background())
	defer s.Stop()

	require.Eventually(t, func() bool { return n.Load() >= 1 }, 3*time.Second, 50*time.Millisecond)
}
