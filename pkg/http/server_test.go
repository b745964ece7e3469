package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type routes struct{}

func (routes) RegisterRoutes(e *echo.Echo) {
	e.GET("/ok", func(c echo.Context) error { return SuccessResponse(c, "fine") })
	e.GET("/limited", func(c echo.Context) error { return TooManyRequestsError("slow down") })
	e.GET("/boom", func(c echo.Context) error { panic(errors.New("nil map")) })
}

func serve(t *testing.T, s *Server, method, path string) (*httptest.ResponseRecorder, APIResponse) {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	var body APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func TestServerEnvelopesErrors(t *testing.T) {
	s := NewServer([]Handler{routes{}}, WithMetricsPath(""))

	rec, body := serve(t, s, http.MethodGet, "/ok")
	assert.Equal(t, http.StatusOK, body.Status)
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))

	_, body = serve(t, s, http.MethodGet, "/limited")
	assert.Equal(t, http.StatusTooManyRequests, body.Status)

	_, body = serve(t, s, http.MethodGet, "/missing")
	assert.Equal(t, http.StatusNotFound, body.Status)
	raw, _ := json.Marshal(body.Data)
	assert.Contains(t, string(raw), "ERR_NOT_FOUND")

	_, body = serve(t, s, http.MethodGet, "/boom")
	assert.Equal(t, http.StatusInternalServerError, body.Status)
	assert.Equal(t, "Something went wrong", body.Data)
}

func TestServerKeepsIncomingRequestID(t *testing.T) {
	s := NewServer([]Handler{routes{}}, WithMetricsPath(""))
	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set(echo.HeaderXRequestID, "abc-123")
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(echo.HeaderXRequestID))
}

func TestServerStartStop(t *testing.T) {
	s := NewServer([]Handler{routes{}}, WithHost("127.0.0.1"), WithPort(0))
	require.NoError(t, s.Start())

	var resp *http.Response
	require.Eventually(t, func() bool {
		r, err := http.Get("http://" + s.Addr() + "/ok")
		if err != nil {
			return false
		}
		resp = r
		return true
	}, 2*time.Second, 20*time.Millisecond)
	b, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Contains(t, string(b), "fine")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.NoError(t, s.Stop(ctx))
}
