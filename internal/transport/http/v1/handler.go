// Package v1 provides the public HTTP API of the gateway.
package v1

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/sessiongate/internal/auth"
	"github.com/xiaot623/gogo/sessiongate/internal/domain"
	"github.com/xiaot623/gogo/sessiongate/internal/service"
)

// Handler handles HTTP requests.
type Handler struct {
	service *service.Service
}

// NewHandler creates a new handler.
func NewHandler(service *service.Service) *Handler {
	return &Handler{
		service: service,
	}
}

// RegisterRoutes registers the /v1 routes. Every route runs behind mw,
// which must establish the caller identity.
func (h *Handler) RegisterRoutes(e *echo.Echo, mw ...echo.MiddlewareFunc) *echo.Group {
	g := e.Group("/v1", mw...)

	// Sessions
	g.POST("/sessions", h.CreateSession)
	g.GET("/sessions", h.ListSessions)
	g.GET("/sessions/:id", h.GetSession)

	// Custody
	g.POST("/sessions/:id/delegate", h.Delegate)
	g.POST("/sessions/:id/checkpoint", h.Checkpoint)
	g.POST("/sessions/:id/undelegate", h.Undelegate)

	// Actions
	g.POST("/sessions/:id/actions", h.AuthorizeAction)
	g.POST("/sessions/:id/swap", h.Swap)
	g.POST("/sessions/:id/liquidity", h.AddLiquidity)
	g.POST("/sessions/:id/close", h.ClosePosition)

	// Monitor
	g.POST("/sessions/:id/monitor", h.RegisterMonitor)
	g.GET("/sessions/:id/monitor", h.GetMonitor)
	g.POST("/sessions/:id/monitor/checkpoint", h.CheckpointMonitor)

	// Audit trail
	g.GET("/sessions/:id/events", h.ListEvents)

	e.GET("/health", h.Health)
	return g
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}

func callerOf(c echo.Context) (domain.Identity, error) {
	caller, ok := auth.Caller(c)
	if !ok {
		return domain.Identity{}, echo.NewHTTPError(http.StatusUnauthorized, "missing caller identity")
	}
	return caller, nil
}

// sessionContext extracts the caller and the :id path parameter.
func sessionContext(c echo.Context) (uuid.UUID, domain.Identity, error) {
	caller, err := callerOf(c)
	if err != nil {
		return uuid.Nil, domain.Identity{}, err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, domain.Identity{}, fmt.Errorf("%w: invalid session id", domain.ErrInvalidArgument)
	}
	return id, caller, nil
}
