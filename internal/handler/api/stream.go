package api

import (
	"github.com/labstack/echo/v4"

	"NewsSignal/internal/service/stream"
)

type StreamHandler struct {
	hub *stream.Hub
}

func NewStreamHandler(hub *stream.Hub) *StreamHandler { return &StreamHandler{hub: hub} }

func (h *StreamHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/api/v1/stream", h.Stream)
}

// Stream upgrades to a websocket and pushes every committed record.
func (h *StreamHandler) Stream(c echo.Context) error {
	return h.hub.ServeWS(c.Response(), c.Request())
}
