package server

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type trace struct {
	mu     sync.Mutex
	events []string
}

func (t *trace) add(s string) {
	t.mu.Lock()
	t.events = append(t.events, s)
	t.mu.Unlock()
}

func (t *trace) list() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.events...)
}

func component(name string, tr *trace, startErr error) Component {
	return Component{
		Name: name,
		Start: func(context.Context) error {
			tr.add("start " + name)
			return startErr
		},
		Stop: func(context.Context) error {
			tr.add("stop " + name)
			return nil
		},
	}
}

func TestRunStopsInReverseOrder(t *testing.T) {
	tr := &trace{}
	app := New(nil)
	app.Add(component("a", tr, nil))
	app.Add(component("b", tr, nil))
	assert.Equal(t, []string{"a", "b"}, app.Components())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	require.Eventually(t, func() bool { return len(tr.list()) == 2 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	assert.Equal(t, []string{"start a", "start b", "stop b", "stop a"}, tr.list())
}

func TestStartFailureStopsStartedComponents(t *testing.T) {
	tr := &trace{}
	app := New(nil)
	app.Add(component("a", tr, nil))
	app.Add(component("b", tr, errors.New("boom")))
	app.Add(component("c", tr, nil))

	err := app.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "start b")
	assert.Equal(t, []string{"start a", "start b", "stop a"}, tr.list())
}

func TestShutdownJoinsStopErrors(t *testing.T) {
	app := New(nil, WithShutdownTimeout(time.Second))
	app.Add(Component{Name: "x", Stop: func(context.Context) error { return errors.New("x failed") }})
	app.Add(Component{Name: "y", Stop: func(context.Context) error { return errors.New("y failed") }})

	require.NoError(t, app.Start(context.Background()))
	err := app.Shutdown(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "x failed")
	assert.Contains(t, err.Error(), "y failed")
}
