// Package internalapi provides operator endpoints on the internal port.
// They carry no caller identity and must not be exposed publicly.
package internalapi

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/sessiongate/internal/metrics"
	"github.com/xiaot623/gogo/sessiongate/internal/service"
	"github.com/xiaot623/gogo/sessiongate/internal/transport/http/apierr"
)

// Handler handles internal HTTP requests.
type Handler struct {
	service *service.Service
	metrics *metrics.Metrics
}

// NewHandler creates a new internal API handler.
func NewHandler(service *service.Service, m *metrics.Metrics) *Handler {
	return &Handler{
		service: service,
		metrics: m,
	}
}

// RegisterRoutes registers internal routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	// Custody operations
	e.GET("/internal/sessions/delegated", h.ListDelegated)
	e.POST("/internal/sessions/:id/flush", h.FlushSession)
	e.POST("/internal/checkpoints/sweep", h.SweepCheckpoints)

	// Scraping
	if h.metrics != nil {
		e.GET("/metrics", h.metrics.Handler())
	}
}

// ListDelegated lists sessions whose custody is on the fast layer.
// GET /internal/sessions/delegated
func (h *Handler) ListDelegated(c echo.Context) error {
	ids, err := h.service.ListDelegated(c.Request().Context())
	if err != nil {
		return apierr.Write(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"session_ids": ids,
	})
}

// FlushSession commits one delegated session now.
// POST /internal/sessions/:id/flush
func (h *Handler) FlushSession(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apierr.BadRequest(c, "invalid session id")
	}
	res, err := h.service.FlushSession(c.Request().Context(), id)
	if err != nil {
		return apierr.Write(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// SweepCheckpoints commits every delegated session now.
// POST /internal/checkpoints/sweep
func (h *Handler) SweepCheckpoints(c echo.Context) error {
	changed, err := h.service.SweepCheckpoints(c.Request().Context())
	if err != nil {
		return apierr.Write(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"changed": changed,
	})
}
