package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func serveCORS(cfg CORSConfig, method, origin string) *httptest.ResponseRecorder {
	e := echo.New()
	e.Use(CORS(cfg))
	e.Any("/x", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	req := httptest.NewRequest(method, "/x", nil)
	if origin != "" {
		req.Header.Set(echo.HeaderOrigin, origin)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestCORSAllowList(t *testing.T) {
	cfg := CORSConfig{
		AllowOrigins: []string{"https://desk.example"},
		AllowMethods: []string{http.MethodGet, http.MethodPost},
	}

	rec := serveCORS(cfg, http.MethodGet, "https://desk.example")
	assert.Equal(t, "https://desk.example", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serveCORS(cfg, http.MethodGet, "https://evil.example")
	assert.Empty(t, rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
	assert.Equal(t, echo.HeaderOrigin, rec.Header().Get(echo.HeaderVary))
}

func TestCORSPreflight(t *testing.T) {
	rec := serveCORS(CORSConfig{AllowMethods: []string{http.MethodPost}}, http.MethodOptions, "https://any.example")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "POST", rec.Header().Get(echo.HeaderAccessControlAllowMethods))
}
