// Package apierr maps domain failures to HTTP responses.
package apierr

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/sessiongate/internal/domain"
)

// Body is the error envelope.
type Body struct {
	Error Detail `json:"error"`
}

// Detail carries the stable error code and a human-readable message.
type Detail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Status returns the HTTP status for err's kind.
func Status(err error) int {
	switch domain.KindOf(err) {
	case domain.KindSessionInactive, domain.KindSessionExpired, domain.KindUnauthorizedSigner,
		domain.KindUnauthorizedOwner, domain.KindStrategyNotEnabled:
		return http.StatusForbidden
	case domain.KindProtocolStateViolation, domain.KindMonitorExists:
		return http.StatusConflict
	case domain.KindExposureLimitExceeded, domain.KindOverflow, domain.KindInvalidRange:
		return http.StatusUnprocessableEntity
	case domain.KindSessionNotFound, domain.KindMonitorNotFound:
		return http.StatusNotFound
	case domain.KindInvalidArgument:
		return http.StatusBadRequest
	case domain.KindVenueRejected:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Write sends err as a JSON error response.
func Write(c echo.Context, err error) error {
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		return c.JSON(httpErr.Code, Body{Error: Detail{Code: http.StatusText(httpErr.Code), Message: httpErr.Error()}})
	}
	return c.JSON(Status(err), Body{Error: Detail{Code: string(domain.KindOf(err)), Message: err.Error()}})
}

// BadRequest sends a 400 with code InvalidArgument.
func BadRequest(c echo.Context, message string) error {
	return c.JSON(http.StatusBadRequest, Body{Error: Detail{Code: string(domain.KindInvalidArgument), Message: message}})
}

// HTTPError converts err for paths that must return an error to echo, such
// as a websocket upgrade refused before the handshake.
func HTTPError(err error) *echo.HTTPError {
	return echo.NewHTTPError(Status(err), Body{Error: Detail{Code: string(domain.KindOf(err)), Message: err.Error()}})
}
