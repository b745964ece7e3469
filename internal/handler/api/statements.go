package api

import (
	"time"

	"github.com/labstack/echo/v4"

	"NewsSignal/internal/domain/models"
	domsvc "NewsSignal/internal/domain/service"
	"NewsSignal/internal/service/metrics"
	"NewsSignal/internal/service/ratelimit"
	xhttp "NewsSignal/pkg/http"
	xlogger "NewsSignal/pkg/logger"
)

// HeaderAICache reports whether the arbiter answered from its cache.
const HeaderAICache = "X-AI-Cache"

// StatementsHandler exposes analyze, decide and the notification tick.
type StatementsHandler struct {
	logger   *xlogger.Logger
	engine   domsvc.Engine
	notifier domsvc.Notifier
	rl       *ratelimit.Limiter
}

func NewStatementsHandler(logger *xlogger.Logger, engine domsvc.Engine, notifier domsvc.Notifier) *StatementsHandler {
	metrics.Register()
	if logger == nil {
		logger = xlogger.NewNop()
	}
	return &StatementsHandler{logger: logger, engine: engine, notifier: notifier}
}

// SetLimiter rate limits decide calls per client IP.
func (h *StatementsHandler) SetLimiter(rl *ratelimit.Limiter) { h.rl = rl }

func (h *StatementsHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/v1")
	g.POST("/analyze", h.Analyze)
	g.POST("/decide", h.Decide)
	g.POST("/notifications/poll", h.PollNotifications)
}

func (h *StatementsHandler) Analyze(c echo.Context) (err error) {
	start := time.Now()
	defer func() { metrics.Observe("analyze", start, err) }()

	req := &models.StatementRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.engine.Analyze(c.Request().Context(), req.Statement())
	if err != nil {
		h.logger.Error("analyze error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("analyze failed").WithError(err))
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *StatementsHandler) Decide(c echo.Context) (err error) {
	start := time.Now()
	defer func() { metrics.Observe("decide", start, err) }()

	if h.rl != nil && !h.rl.Allow(c.RealIP()) {
		return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("rate limit exceeded"))
	}
	req := &models.DecideRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	metrics.BatchSize.WithLabelValues("decide").Observe(float64(len(req.Items)))

	records, err := h.engine.Decide(c.Request().Context(), req.Statements())
	if err != nil {
		h.logger.Error("decide error", xlogger.Int("batch", len(req.Items)), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("decide failed").WithError(err))
	}
	if v := aiCacheHeader(records); v != "" {
		c.Response().Header().Set(HeaderAICache, v)
	}
	return xhttp.SuccessResponse(c, records)
}

func (h *StatementsHandler) PollNotifications(c echo.Context) error {
	if h.notifier == nil {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError("notifications disabled"))
	}
	h.notifier.PollNotifications(c.Request().Context())
	return xhttp.NoContentResponse(c)
}

// aiCacheHeader is HIT when every arbiter answer in the batch came from
// cache, MISS when at least one did not, and empty when the arbiter never ran.
func aiCacheHeader(records []models.DecisionRecord) string {
	ran, miss := false, false
	for _, r := range records {
		if r.AI == nil || r.AI.Limited {
			continue
		}
		ran = true
		if !r.AI.CacheHit {
			miss = true
		}
	}
	switch {
	case !ran:
		return ""
	case miss:
		return "MISS"
	default:
		return "HIT"
	}
}
