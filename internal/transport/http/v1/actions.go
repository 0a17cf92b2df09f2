package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/sessiongate/internal/domain"
	"github.com/xiaot623/gogo/sessiongate/internal/service"
	"github.com/xiaot623/gogo/sessiongate/internal/transport/http/apierr"
)

// ActionRequest is a generic action. Amount is omitted for actions that
// move no value.
type ActionRequest struct {
	Kind   *domain.ActionKind `json:"kind"`
	Amount *uint64            `json:"amount,omitempty"`
}

// AuthorizeAction authorizes a generic action for the delegated signer.
// POST /v1/sessions/:id/actions
func (h *Handler) AuthorizeAction(c echo.Context) error {
	id, caller, err := sessionContext(c)
	if err != nil {
		return apierr.Write(c, err)
	}
	var req ActionRequest
	if err := c.Bind(&req); err != nil {
		return apierr.BadRequest(c, "invalid request body")
	}
	if req.Kind == nil {
		return apierr.BadRequest(c, "kind is required")
	}

	res, err := h.service.AuthorizeAction(c.Request().Context(), id, caller, *req.Kind, req.Amount)
	if err != nil {
		return apierr.Write(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// Swap forwards a swap to the venue.
// POST /v1/sessions/:id/swap
func (h *Handler) Swap(c echo.Context) error {
	id, caller, err := sessionContext(c)
	if err != nil {
		return apierr.Write(c, err)
	}
	var req service.SwapRequest
	if err := c.Bind(&req); err != nil {
		return apierr.BadRequest(c, "invalid request body")
	}

	res, err := h.service.Swap(c.Request().Context(), id, caller, req)
	if err != nil {
		return apierr.Write(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// AddLiquidity forwards a two-sided deposit to the venue.
// POST /v1/sessions/:id/liquidity
func (h *Handler) AddLiquidity(c echo.Context) error {
	id, caller, err := sessionContext(c)
	if err != nil {
		return apierr.Write(c, err)
	}
	var req service.AddLiquidityRequest
	if err := c.Bind(&req); err != nil {
		return apierr.BadRequest(c, "invalid request body")
	}

	res, err := h.service.AddLiquidity(c.Request().Context(), id, caller, req)
	if err != nil {
		return apierr.Write(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// ClosePosition forwards a position close to the venue.
// POST /v1/sessions/:id/close
func (h *Handler) ClosePosition(c echo.Context) error {
	id, caller, err := sessionContext(c)
	if err != nil {
		return apierr.Write(c, err)
	}
	var req service.ClosePositionRequest
	if err := c.Bind(&req); err != nil {
		return apierr.BadRequest(c, "invalid request body")
	}

	res, err := h.service.ClosePosition(c.Request().Context(), id, caller, req)
	if err != nil {
		return apierr.Write(c, err)
	}
	return c.JSON(http.StatusOK, res)
}
