// Package finnhub streams company news from the Finnhub websocket and
// buffers it for the ingest pipeline.
package finnhub

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"NewsSignal/internal/domain/models"
	drepo "NewsSignal/internal/domain/repository"
	xlogger "NewsSignal/pkg/logger"
)

const (
	DefaultURL        = "wss://ws.finnhub.io"
	defaultBufferSize = 1000
)

type Option func(*NewsStream)

func WithReconnectDelay(d time.Duration) Option {
	return func(s *NewsStream) {
		if d > 0 {
			s.reconnectDelay = d
		}
	}
}

func WithPingInterval(d time.Duration) Option {
	return func(s *NewsStream) {
		if d > 0 {
			s.pingInterval = d
		}
	}
}

// WithBufferSize caps how many items wait between two Fetch calls. The
// oldest are dropped first.
func WithBufferSize(n int) Option {
	return func(s *NewsStream) {
		if n > 0 {
			s.max = n
		}
	}
}

func WithLogger(l *xlogger.Logger) Option {
	return func(s *NewsStream) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewsStream keeps a websocket session open, reconnecting on failure, and
// implements StatementProvider by draining what arrived since the last
// Fetch.
type NewsStream struct {
	apiKey         string
	url            string
	symbols        []string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	dialer         *websocket.Dialer
	logger         *xlogger.Logger

	mu      sync.Mutex
	buf     []models.StatementInput
	max     int
	dropped atomic.Int64

	writeMu   sync.Mutex
	connected atomic.Bool
}

var _ drepo.StatementProvider = (*NewsStream)(nil)

func New(apiKey, wsURL string, symbols []string, opts ...Option) *NewsStream {
	if wsURL == "" {
		wsURL = DefaultURL
	}
	s := &NewsStream{
		apiKey:         apiKey,
		url:            wsURL,
		symbols:        symbols,
		reconnectDelay: 5 * time.Second,
		pingInterval:   30 * time.Second,
		dialer:         websocket.DefaultDialer,
		logger:         xlogger.NewNop(),
		max:            defaultBufferSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *NewsStream) Name() string { return "finnhub_news" }

func (s *NewsStream) IsConnected() bool { return s.connected.Load() }

// Dropped counts items discarded because the buffer was full.
func (s *NewsStream) Dropped() int64 { return s.dropped.Load() }

// Fetch returns and clears the buffered items.
func (s *NewsStream) Fetch(ctx context.Context) ([]models.StatementInput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	out := s.buf
	s.buf = nil
	s.mu.Unlock()
	return out, nil
}

// Run keeps a session open until ctx is cancelled.
func (s *NewsStream) Run(ctx context.Context) {
	for {
		err := s.session(ctx)
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn("finnhub stream disconnected; reconnecting",
			xlogger.Error(err), xlogger.Duration("delay", s.reconnectDelay))
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.reconnectDelay):
		}
	}
}

func (s *NewsStream) endpoint() (string, error) {
	u, err := url.Parse(s.url)
	if err != nil {
		return "", fmt.Errorf("finnhub url: %w", err)
	}
	if s.apiKey != "" {
		q := u.Query()
		q.Set("token", s.apiKey)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (s *NewsStream) session(ctx context.Context) error {
	endpoint, err := s.endpoint()
	if err != nil {
		return err
	}
	conn, _, err := s.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("finnhub connect: %w", err)
	}
	s.connected.Store(true)
	defer s.connected.Store(false)

	sctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-sctx.Done()
		_ = conn.Close()
	}()

	for _, sym := range s.symbols {
		if err := s.write(conn, map[string]string{"type": "subscribe-news", "symbol": sym}); err != nil {
			return fmt.Errorf("subscribe %s: %w", sym, err)
		}
	}
	s.logger.Info("finnhub stream connected", xlogger.Strings("symbols", s.symbols))

	go s.pingLoop(sctx, conn)

	for {
		_, b, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("finnhub read: %w", err)
		}
		s.handleFrame(b)
	}
}

func (s *NewsStream) write(conn *websocket.Conn, v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return conn.WriteJSON(v)
}

func (s *NewsStream) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			s.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

type fhNews struct {
	Category string `json:"category"`
	Datetime int64  `json:"datetime"` // unix seconds
	Headline string `json:"headline"`
	ID       int64  `json:"id"`
	Related  string `json:"related"`
	Source   string `json:"source"`
	Summary  string `json:"summary"`
}

type fhMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
	Msg  string          `json:"msg"`
}

func (s *NewsStream) handleFrame(b []byte) {
	var m fhMessage
	if err := json.Unmarshal(b, &m); err != nil {
		// ignore non-JSON frames
		return
	}
	switch m.Type {
	case "news":
	case "error":
		s.logger.Warn("finnhub error frame", xlogger.String("msg", m.Msg))
		return
	default:
		return
	}
	var items []fhNews
	if err := json.Unmarshal(m.Data, &items); err != nil {
		s.logger.Debug("bad finnhub news frame", xlogger.Error(err))
		return
	}
	for _, n := range items {
		if st, ok := toStatement(n); ok {
			s.push(st)
		}
	}
}

func toStatement(n fhNews) (models.StatementInput, bool) {
	text := strings.TrimSpace(n.Headline)
	if sum := strings.TrimSpace(n.Summary); sum != "" {
		if text != "" {
			text += ". "
		}
		text += sum
	}
	if text == "" {
		return models.StatementInput{}, false
	}
	src := strings.TrimSpace(n.Source)
	if src == "" {
		src = "Finnhub"
	}
	st := models.StatementInput{Source: src, Text: text}
	if n.ID != 0 {
		st.ID = "finnhub:" + strconv.FormatInt(n.ID, 10)
	}
	if n.Datetime > 0 {
		st.Timestamp = time.Unix(n.Datetime, 0).UTC()
	}
	return st, true
}

func (s *NewsStream) push(st models.StatementInput) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.buf) >= s.max {
		s.buf = s.buf[1:]
		s.dropped.Add(1)
	}
	s.buf = append(s.buf, st)
}
