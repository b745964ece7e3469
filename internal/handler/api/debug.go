package api

import (
	"context"

	"github.com/labstack/echo/v4"

	"NewsSignal/internal/domain/models"
	"NewsSignal/internal/services/arbiter"
	"NewsSignal/internal/services/rolling"
	"NewsSignal/internal/services/sourceweight"
	xhttp "NewsSignal/pkg/http"
	xlogger "NewsSignal/pkg/logger"
)

// Inspector is the read-only engine state the debug routes expose.
type Inspector interface {
	RollingSnapshot() rolling.Snapshot
	Recent(limit int) []models.DecisionRecord
	Last() (models.DecisionRecord, bool)
	LookupSource(source string) sourceweight.Match
	AIStats(ctx context.Context) *arbiter.Stats
}

// Reloader forces every watched config resource to be re-read.
type Reloader interface {
	ReloadAll() error
}

type DebugHandler struct {
	logger   *xlogger.Logger
	engine   Inspector
	reloader Reloader
}

func NewDebugHandler(logger *xlogger.Logger, engine Inspector, reloader Reloader) *DebugHandler {
	if logger == nil {
		logger = xlogger.NewNop()
	}
	return &DebugHandler{logger: logger, engine: engine, reloader: reloader}
}

func (h *DebugHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)

	g := e.Group("/debug")
	g.GET("/rolling", h.Rolling)
	g.GET("/history", h.History)
	g.GET("/last-decision", h.LastDecision)
	g.GET("/source-weight", h.SourceWeight)
	g.GET("/ai", h.AI)

	e.POST("/admin/reload", h.Reload)
}

func (h *DebugHandler) Health(c echo.Context) error {
	return xhttp.SuccessResponse(c, map[string]string{"status": "ok"})
}

func (h *DebugHandler) Rolling(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.engine.RollingSnapshot())
}

func (h *DebugHandler) History(c echo.Context) error {
	req := &models.HistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	rows := h.engine.Recent(req.Limit)
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *DebugHandler) LastDecision(c echo.Context) error {
	rec, ok := h.engine.Last()
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError("no decision yet"))
	}
	return xhttp.SuccessResponse(c, rec)
}

func (h *DebugHandler) SourceWeight(c echo.Context) error {
	req := &models.SourceWeightRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	return xhttp.SuccessResponse(c, h.engine.LookupSource(req.Source))
}

func (h *DebugHandler) AI(c echo.Context) error {
	stats := h.engine.AIStats(c.Request().Context())
	if stats == nil {
		return xhttp.SuccessResponse(c, arbiter.Stats{Enabled: false})
	}
	return xhttp.SuccessResponse(c, stats)
}

func (h *DebugHandler) Reload(c echo.Context) error {
	if h.reloader == nil {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError("hot reload disabled"))
	}
	if err := h.reloader.ReloadAll(); err != nil {
		h.logger.Warn("forced reload failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.UnprocessableError("ERR_RELOAD", err.Error()).WithError(err))
	}
	return xhttp.SuccessResponse(c, map[string]string{"status": "reloaded"})
}
