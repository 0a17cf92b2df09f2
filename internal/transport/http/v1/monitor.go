package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/sessiongate/internal/monitor"
	"github.com/xiaot623/gogo/sessiongate/internal/service"
	"github.com/xiaot623/gogo/sessiongate/internal/transport/http/apierr"
)

// MonitorCheckpointRequest is one observation of the watched position.
type MonitorCheckpointRequest struct {
	ObservedValue int32  `json:"observed_value"`
	FeeA          uint64 `json:"fee_a"`
	FeeB          uint64 `json:"fee_b"`
}

// RegisterMonitor registers the session's position monitor.
// POST /v1/sessions/:id/monitor
func (h *Handler) RegisterMonitor(c echo.Context) error {
	id, caller, err := sessionContext(c)
	if err != nil {
		return apierr.Write(c, err)
	}
	var req service.RegisterMonitorRequest
	if err := c.Bind(&req); err != nil {
		return apierr.BadRequest(c, "invalid request body")
	}

	m, err := h.service.RegisterMonitor(c.Request().Context(), id, caller, req)
	if err != nil {
		return apierr.Write(c, err)
	}
	return c.JSON(http.StatusCreated, m)
}

// GetMonitor returns the session's position monitor.
// GET /v1/sessions/:id/monitor
func (h *Handler) GetMonitor(c echo.Context) error {
	id, _, err := sessionContext(c)
	if err != nil {
		return apierr.Write(c, err)
	}
	m, err := h.service.GetMonitor(c.Request().Context(), id)
	if err != nil {
		return apierr.Write(c, err)
	}
	return c.JSON(http.StatusOK, m)
}

// CheckpointMonitor records an observation and reports the range transition.
// POST /v1/sessions/:id/monitor/checkpoint
func (h *Handler) CheckpointMonitor(c echo.Context) error {
	id, caller, err := sessionContext(c)
	if err != nil {
		return apierr.Write(c, err)
	}
	var req MonitorCheckpointRequest
	if err := c.Bind(&req); err != nil {
		return apierr.BadRequest(c, "invalid request body")
	}

	res, err := h.service.CheckpointMonitor(c.Request().Context(), id, caller, monitor.Observation{
		Value: req.ObservedValue,
		FeeA:  req.FeeA,
		FeeB:  req.FeeB,
	})
	if err != nil {
		return apierr.Write(c, err)
	}
	return c.JSON(http.StatusOK, res)
}
