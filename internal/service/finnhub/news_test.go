package finnhub

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newsServer(t *testing.T, frames ...string) (*httptest.Server, chan map[string]string) {
	t.Helper()
	subs := make(chan map[string]string, 8)
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.URL.Query().Get("token"))
		conn, err := up.Upgrade(w, r, nil)
		if !assert.NoError(t, err) {
			return
		}
		defer conn.Close()
		var sub map[string]string
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}
		subs <- sub
		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		// hold the session open until the client goes away
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv, subs
}

func wsURL(srv *httptest.Server) string { return "ws" + strings.TrimPrefix(srv.URL, "http") }

func TestNewsStreamBuffersNews(t *testing.T) {
	srv, subs := newsServer(t,
		`{"type":"ping"}`,
		`{"type":"news","data":[{"id":7,"datetime":1780000000,"headline":"Fed holds rates","summary":"Powell signals patience","source":"Reuters","related":"SPY"},{"id":8,"headline":"  "}]}`,
	)
	s := New("secret", wsURL(srv), []string{"SPY"}, WithPingInterval(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	select {
	case sub := <-subs:
		assert.Equal(t, map[string]string{"type": "subscribe-news", "symbol": "SPY"}, sub)
	case <-time.After(2 * time.Second):
		t.Fatal("no subscription")
	}

	var got []string
	require.Eventually(t, func() bool {
		items, _ := s.Fetch(context.Background())
		for _, it := range items {
			got = append(got, it.ID+"|"+it.Source+"|"+it.Text)
			assert.Equal(t, time.Unix(1780000000, 0).UTC(), it.Timestamp)
		}
		return len(got) > 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"finnhub:7|Reuters|Fed holds rates. Powell signals patience"}, got)

	items, err := s.Fetch(context.Background())
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestNewsStreamDropsOldestWhenFull(t *testing.T) {
	s := New("", "", nil, WithBufferSize(2))
	for _, id := range []string{"1", "2", "3"} {
		s.handleFrame([]byte(`{"type":"news","data":[{"id":` + id + `,"headline":"h` + id + `"}]}`))
	}
	items, err := s.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "finnhub:2", items[0].ID)
	assert.Equal(t, "Finnhub", items[0].Source)
	assert.EqualValues(t, 1, s.Dropped())
}

func TestNewsStreamStopsOnCancel(t *testing.T) {
	s := New("", "ws://127.0.0.1:1", nil, WithReconnectDelay(10*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	assert.False(t, s.IsConnected())
}
