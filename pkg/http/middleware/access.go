package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	xlogger "NewsSignal/pkg/logger"
)

type accessMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight prometheus.Gauge
	size     *prometheus.HistogramVec
}

var (
	accessOnce sync.Once
	access     *accessMetrics
)

func getAccessMetrics() *accessMetrics {
	accessOnce.Do(func() {
		access = &accessMetrics{
			requests: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "newssignal_http_requests_total",
				Help: "HTTP requests by route template, method and status.",
			}, []string{"route", "method", "status"}),
			duration: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "newssignal_http_request_duration_seconds",
				Help:    "HTTP request latency.",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			}, []string{"route", "method", "class"}),
			inFlight: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "newssignal_http_in_flight_requests",
				Help: "Requests currently being served.",
			}),
			size: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "newssignal_http_response_size_bytes",
				Help:    "Response body size.",
				Buckets: prometheus.ExponentialBuckets(128, 4, 8),
			}, []string{"route", "class"}),
		}
	})
	return access
}

// Access writes the response for a returned error, then records one
// metrics sample and one log line per request. 5xx log at error, 4xx at
// warn, requests slower than slow at warn, the rest at debug.
func Access(l *xlogger.Logger, slow time.Duration) echo.MiddlewareFunc {
	if l == nil {
		l = xlogger.NewNop()
	}
	m := getAccessMetrics()
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			m.inFlight.Inc()
			start := time.Now()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			took := time.Since(start)
			m.inFlight.Dec()

			req, res := c.Request(), c.Response()
			status := statusOf(err, res.Status)
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			class := strconv.Itoa(status/100) + "xx"
			m.requests.WithLabelValues(route, req.Method, strconv.Itoa(status)).Inc()
			m.duration.WithLabelValues(route, req.Method, class).Observe(took.Seconds())
			m.size.WithLabelValues(route, class).Observe(float64(res.Size))

			fields := []xlogger.Field{
				xlogger.String("method", req.Method),
				xlogger.String("uri", req.RequestURI),
				xlogger.String("route", route),
				xlogger.String("remote", c.RealIP()),
				xlogger.String("request_id", GetRequestID(c)),
				xlogger.Int("status", status),
				xlogger.Int64("bytes", res.Size),
				xlogger.Duration("latency", took),
			}
			switch {
			case status >= 500:
				l.Error("http request", append(fields, xlogger.Error(err))...)
			case status >= 400:
				l.Warn("http request", fields...)
			case slow > 0 && took >= slow:
				l.Warn("http request slow", fields...)
			default:
				l.Debug("http request", fields...)
			}
			return nil
		}
	}
}

// statusOf prefers the status carried by a returned error, since error
// responses are written inside a 200 envelope.
func statusOf(err error, written int) int {
	if err == nil {
		return written
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	var st interface{ HTTPStatus() int }
	if errors.As(err, &st) {
		return st.HTTPStatus()
	}
	return http.StatusInternalServerError
}
