package apierr

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/sessiongate/internal/domain"
)

func TestStatus(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{domain.ErrSessionInactive, http.StatusForbidden},
		{domain.ErrSessionExpired, http.StatusForbidden},
		{domain.ErrUnauthorizedSigner, http.StatusForbidden},
		{domain.ErrUnauthorizedOwner, http.StatusForbidden},
		{domain.ErrStrategyNotEnabled, http.StatusForbidden},
		{domain.ErrExposureLimitExceeded, http.StatusUnprocessableEntity},
		{domain.ErrOverflow, http.StatusUnprocessableEntity},
		{domain.ErrInvalidRange, http.StatusUnprocessableEntity},
		{fmt.Errorf("%w: delegate from returned", domain.ErrProtocolStateViolation), http.StatusConflict},
		{domain.ErrMonitorExists, http.StatusConflict},
		{domain.ErrSessionNotFound, http.StatusNotFound},
		{domain.ErrMonitorNotFound, http.StatusNotFound},
		{domain.ErrInvalidArgument, http.StatusBadRequest},
		{domain.ErrVenueRejected, http.StatusBadGateway},
		{fmt.Errorf("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.status, Status(tt.err), tt.err.Error())
	}
}

func TestWrite(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	require.NoError(t, Write(c, fmt.Errorf("%w: need 500", domain.ErrExposureLimitExceeded)))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.JSONEq(t, `{"error":{"code":"ExposureLimitExceeded","message":"action exceeds the session exposure cap: need 500"}}`, rec.Body.String())
}
