package v1

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/sessiongate/internal/domain"
	"github.com/xiaot623/gogo/sessiongate/internal/service"
	"github.com/xiaot623/gogo/sessiongate/internal/transport/http/apierr"
)

// CreateSessionRequest is the request to create a session. Strategies is
// merged into CapabilityMask.
type CreateSessionRequest struct {
	DelegatedSigner domain.Identity      `json:"delegated_signer"`
	DurationSecs    int64                `json:"duration_secs"`
	ExposureCap     uint64               `json:"exposure_cap"`
	CapabilityMask  domain.CapabilitySet `json:"capability_mask"`
	Strategies      []domain.ActionKind  `json:"strategies,omitempty"`
}

// CreateSession creates a session owned by the caller.
// POST /v1/sessions
func (h *Handler) CreateSession(c echo.Context) error {
	owner, err := callerOf(c)
	if err != nil {
		return apierr.Write(c, err)
	}

	var req CreateSessionRequest
	if err := c.Bind(&req); err != nil {
		return apierr.BadRequest(c, "invalid request body")
	}
	if req.DelegatedSigner.IsZero() {
		return apierr.BadRequest(c, "delegated_signer is required")
	}
	if req.DurationSecs <= 0 {
		return apierr.BadRequest(c, "duration_secs must be positive")
	}

	snap, err := h.service.CreateSession(c.Request().Context(), owner, service.CreateSessionRequest{
		DelegatedSigner: req.DelegatedSigner,
		DurationSecs:    req.DurationSecs,
		ExposureCap:     req.ExposureCap,
		Capabilities:    req.CapabilityMask | domain.CapabilitiesOf(req.Strategies...),
	})
	if err != nil {
		return apierr.Write(c, err)
	}
	return c.JSON(http.StatusCreated, snap)
}

// ListSessions lists the caller's sessions.
// GET /v1/sessions
func (h *Handler) ListSessions(c echo.Context) error {
	owner, err := callerOf(c)
	if err != nil {
		return apierr.Write(c, err)
	}
	sessions, err := h.service.ListSessions(c.Request().Context(), owner)
	if err != nil {
		return apierr.Write(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"sessions": sessions,
	})
}

// GetSession returns the live copy of a session.
// GET /v1/sessions/:id
func (h *Handler) GetSession(c echo.Context) error {
	id, _, err := sessionContext(c)
	if err != nil {
		return apierr.Write(c, err)
	}
	snap, err := h.service.GetSession(c.Request().Context(), id)
	if err != nil {
		return apierr.Write(c, err)
	}
	return c.JSON(http.StatusOK, snap)
}

// Delegate hands custody to the fast layer.
// POST /v1/sessions/:id/delegate
func (h *Handler) Delegate(c echo.Context) error {
	id, caller, err := sessionContext(c)
	if err != nil {
		return apierr.Write(c, err)
	}
	snap, err := h.service.Delegate(c.Request().Context(), id, caller)
	if err != nil {
		return apierr.Write(c, err)
	}
	return c.JSON(http.StatusOK, snap)
}

// Checkpoint commits the fast copy to the base layer.
// POST /v1/sessions/:id/checkpoint
func (h *Handler) Checkpoint(c echo.Context) error {
	id, caller, err := sessionContext(c)
	if err != nil {
		return apierr.Write(c, err)
	}
	res, err := h.service.Checkpoint(c.Request().Context(), id, caller)
	if err != nil {
		return apierr.Write(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// Undelegate closes the session and returns custody to the base layer.
// POST /v1/sessions/:id/undelegate
func (h *Handler) Undelegate(c echo.Context) error {
	id, caller, err := sessionContext(c)
	if err != nil {
		return apierr.Write(c, err)
	}
	res, err := h.service.Undelegate(c.Request().Context(), id, caller)
	if err != nil {
		return apierr.Write(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// ListEvents returns the session's audit trail.
// GET /v1/sessions/:id/events?after_ts=&types=a,b&limit=
func (h *Handler) ListEvents(c echo.Context) error {
	id, _, err := sessionContext(c)
	if err != nil {
		return apierr.Write(c, err)
	}
	limit := 100
	if l := c.QueryParam("limit"); l != "" {
		if val, err := strconv.Atoi(l); err == nil {
			limit = val
		}
	}
	afterTs := int64(0)
	if t := c.QueryParam("after_ts"); t != "" {
		if val, err := strconv.ParseInt(t, 10, 64); err == nil {
			afterTs = val
		}
	}
	var types []string
	if raw := c.QueryParam("types"); raw != "" {
		types = strings.Split(raw, ",")
	}

	events, err := h.service.ListEvents(c.Request().Context(), id, afterTs, types, limit)
	if err != nil {
		return apierr.Write(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"events":   events,
		"has_more": len(events) == limit,
	})
}
