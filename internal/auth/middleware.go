package auth

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/sessiongate/internal/domain"
)

const callerKey = "caller"

// Middleware authenticates every request. The token comes from the
// Authorization bearer header, or the token query parameter for websocket
// upgrades.
func Middleware(v *Verifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := c.QueryParam("token")
			if h := c.Request().Header.Get(echo.HeaderAuthorization); strings.HasPrefix(h, "Bearer ") {
				token = strings.TrimPrefix(h, "Bearer ")
			}
			caller, err := v.Verify(token)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, map[string]any{
					"error": map[string]string{"code": "Unauthenticated", "message": err.Error()},
				})
			}
			c.Set(callerKey, caller)
			return next(c)
		}
	}
}

// Caller returns the authenticated identity set by Middleware.
func Caller(c echo.Context) (domain.Identity, bool) {
	id, ok := c.Get(callerKey).(domain.Identity)
	return id, ok
}

// WithCaller sets the caller directly, for handlers under test.
func WithCaller(c echo.Context, id domain.Identity) {
	c.Set(callerKey, id)
}
