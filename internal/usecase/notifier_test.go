package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"NewsSignal/internal/domain/models"
	"NewsSignal/internal/repository"
	"NewsSignal/internal/services/antiflutter"
	"NewsSignal/internal/services/rolling"
)

type recordingSink struct {
	msgs []string
	err  error
}

func (s *recordingSink) Name() string { return "rec" }

func (s *recordingSink) Send(_ context.Context, m string) error {
	s.msgs = append(s.msgs, m)
	return s.err
}

type stepClock struct{ t time.Time }

func (c *stepClock) now() time.Time { return c.t }

func TestNotifierCooldownSuppresses(t *testing.T) {
	h := rolling.NewHistory(10)
	sink := &recordingSink{}
	clk := &stepClock{t: testNow}
	n := NewNotifier(h, antiflutter.NewMachine(180*time.Minute), sink, WithNotifierClock(clk.now))

	for i, d := range []models.Decision{models.DecisionBuy, models.DecisionSell, models.DecisionBuy} {
		clk.t = testNow.Add(time.Duration(i) * time.Minute)
		h.Append(models.DecisionRecord{ID: d.String(), Decision: d, Confidence: 0.7, Reasons: []string{"r"}})
		n.PollNotifications(context.Background())
	}

	require.Len(t, sink.msgs, 1)
	assert.True(t, strings.HasPrefix(sink.msgs[0], "*NewsSignal alert:* *BUY* (0.70)"))
}

func TestNotifierShortCooldownSendsBoth(t *testing.T) {
	h := rolling.NewHistory(10)
	sink := &recordingSink{}
	clk := &stepClock{t: testNow}
	n := NewNotifier(h, antiflutter.NewMachine(time.Minute), sink, WithNotifierClock(clk.now))

	h.Append(models.DecisionRecord{ID: "1", Decision: models.DecisionBuy})
	n.PollNotifications(context.Background())
	clk.t = testNow.Add(61 * time.Second)
	h.Append(models.DecisionRecord{ID: "2", Decision: models.DecisionSell})
	n.PollNotifications(context.Background())

	assert.Len(t, sink.msgs, 2)
}

func TestNotifierSkipsNeutralAndSeenRecords(t *testing.T) {
	h := rolling.NewHistory(10)
	sink := &recordingSink{}
	n := NewNotifier(h, antiflutter.NewMachine(time.Minute), sink, WithNotifierClock(func() time.Time { return testNow }))

	h.Append(models.DecisionRecord{ID: "n", Decision: models.DecisionNeutral})
	n.PollNotifications(context.Background())
	assert.Empty(t, sink.msgs)
	assert.False(t, n.State().Armed)

	h.Append(models.DecisionRecord{ID: "b", Decision: models.DecisionBuy})
	n.PollNotifications(context.Background())
	n.PollNotifications(context.Background())
	assert.Len(t, sink.msgs, 1)
}

func TestNotifierSinkFailureIsNotRetried(t *testing.T) {
	h := rolling.NewHistory(10)
	sink := &recordingSink{err: errors.New("webhook down")}
	n := NewNotifier(h, antiflutter.NewMachine(time.Minute), sink, WithNotifierClock(func() time.Time { return testNow }))

	h.Append(models.DecisionRecord{ID: "b", Decision: models.DecisionBuy})
	n.PollNotifications(context.Background())
	n.PollNotifications(context.Background())

	assert.Len(t, sink.msgs, 1)
	assert.True(t, n.State().Armed)
}

func TestNotifierCheckpointRestore(t *testing.T) {
	store := repository.NewFileStateStore(t.TempDir())
	h := rolling.NewHistory(10)
	sink := &recordingSink{}
	clock := WithNotifierClock(func() time.Time { return testNow })

	n := NewNotifier(h, antiflutter.NewMachine(time.Hour), sink, WithNotifierStore(store), clock)
	n.Restore(context.Background())
	h.Append(models.DecisionRecord{ID: "b", Decision: models.DecisionBuy})
	n.PollNotifications(context.Background())
	require.Len(t, sink.msgs, 1)

	// a new process: same history contents must not re-alert, and the
	// restored cooldown still holds back a SELL
	restored := NewNotifier(h, antiflutter.NewMachine(time.Hour), sink, WithNotifierStore(store), clock)
	restored.Restore(context.Background())
	assert.Equal(t, models.DecisionBuy, restored.State().Last)

	h.Append(models.DecisionRecord{ID: "s", Decision: models.DecisionSell})
	restored.PollNotifications(context.Background())
	assert.Len(t, sink.msgs, 1)
}

func TestNotifierRecordsInOneTickShareTheTickTime(t *testing.T) {
	h := rolling.NewHistory(10)
	sink := &recordingSink{}
	n := NewNotifier(h, antiflutter.NewMachine(time.Minute), sink, WithNotifierClock(func() time.Time { return testNow }))

	h.Append(models.DecisionRecord{ID: "1", Decision: models.DecisionBuy, Timestamp: testNow.Add(-2 * time.Minute)})
	h.Append(models.DecisionRecord{ID: "2", Decision: models.DecisionSell, Timestamp: testNow})
	n.PollNotifications(context.Background())

	require.Len(t, sink.msgs, 1, "the flip is still inside the cooldown started this tick")
	assert.Contains(t, sink.msgs[0], "*BUY*")
}
