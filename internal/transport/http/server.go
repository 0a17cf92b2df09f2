// Package http provides the HTTP servers of the gateway.
package http

import (
	"context"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/xiaot623/gogo/sessiongate/internal/alerts"
	"github.com/xiaot623/gogo/sessiongate/internal/auth"
	"github.com/xiaot623/gogo/sessiongate/internal/domain"
	"github.com/xiaot623/gogo/sessiongate/internal/metrics"
	"github.com/xiaot623/gogo/sessiongate/internal/service"
	"github.com/xiaot623/gogo/sessiongate/internal/transport/http/apierr"
	"github.com/xiaot623/gogo/sessiongate/internal/transport/http/internalapi"
	v1 "github.com/xiaot623/gogo/sessiongate/internal/transport/http/v1"
)

// NewExternalServer creates and configures the public HTTP server.
// Every /v1 route requires a caller token; /health does not.
func NewExternalServer(svc *service.Service, verifier *auth.Verifier, hub *alerts.Hub, wsCfg alerts.Config) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Handlers
	v1Handler := v1.NewHandler(svc)
	watch := alerts.NewServer(wsCfg, hub, func(ctx context.Context, sessionID string, caller domain.Identity) error {
		if err := svc.AuthorizeWatch(ctx, sessionID, caller); err != nil {
			return apierr.HTTPError(err)
		}
		return nil
	})

	// Register Routes
	g := v1Handler.RegisterRoutes(e, auth.Middleware(verifier))
	g.GET("/sessions/:id/watch", watch.HandleWatch)

	return e
}

// NewInternalServer creates and configures the operator HTTP server.
func NewInternalServer(svc *service.Service, m *metrics.Metrics) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	// Handlers
	internalHandler := internalapi.NewHandler(svc, m)

	// Register Routes
	internalHandler.RegisterRoutes(e)

	return e
}
