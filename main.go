package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/xiaot623/gogo/sessiongate/internal/alerts"
	"github.com/xiaot623/gogo/sessiongate/internal/auth"
	"github.com/xiaot623/gogo/sessiongate/internal/config"
	"github.com/xiaot623/gogo/sessiongate/internal/custody"
	"github.com/xiaot623/gogo/sessiongate/internal/fastlayer/memory"
	redisfast "github.com/xiaot623/gogo/sessiongate/internal/fastlayer/redis"
	"github.com/xiaot623/gogo/sessiongate/internal/logging"
	"github.com/xiaot623/gogo/sessiongate/internal/metrics"
	"github.com/xiaot623/gogo/sessiongate/internal/policy"
	"github.com/xiaot623/gogo/sessiongate/internal/repository"
	"github.com/xiaot623/gogo/sessiongate/internal/service"
	handler "github.com/xiaot623/gogo/sessiongate/internal/transport/http"
	"github.com/xiaot623/gogo/sessiongate/internal/venue"
)

func main() {
	if err := run(); err != nil {
		slog.Error("sessiongate failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logging.Setup(cfg.LogLevel)

	slog.Info("starting sessiongate",
		"http_port", cfg.HTTPPort,
		"internal_port", cfg.InternalPort,
		"database", cfg.DatabaseURL,
		"fast_layer", cfg.FastLayer,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Base layer
	db, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer db.Close()

	// Fast layer
	fast, closeFast, err := newFastLayer(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeFast()

	// Venue and its policy guard
	var v venue.Venue
	if cfg.VenueURL != "" {
		v = venue.NewClient(cfg.VenueURL, cfg.VenueTimeout)
	} else {
		slog.Warn("VENUE_URL not set, venue calls are recorded in process only")
		v = venue.NewRecorder()
	}
	policyEngine, err := policy.LoadEngine(ctx, cfg.PolicyFile)
	if err != nil {
		return fmt.Errorf("failed to initialize policy engine: %w", err)
	}

	// Alerts
	hub := alerts.NewHub()
	go hub.Run(ctx)

	// Service
	m := metrics.New()
	m.ObserveWatchers(hub.GetConnectionCount)
	controller := custody.NewController(db, fast, time.Now)
	svc := service.New(db, controller, v, policyEngine, hub, m, time.Now)
	restored, err := svc.RestoreFastLayer(ctx)
	if err != nil {
		return err
	}
	if restored > 0 {
		slog.Warn("reseeded delegated sessions from their last commit", "count", restored)
	}
	go svc.RunCheckpointLoop(ctx, cfg.CheckpointInterval)

	// Servers
	verifier := auth.NewVerifier(auth.Config{Audience: cfg.AuthAudience, Leeway: cfg.AuthLeeway})
	externalServer := handler.NewExternalServer(svc, verifier, hub, alerts.Config{
		PingInterval:   cfg.WSPingInterval,
		WriteTimeout:   cfg.WSWriteTimeout,
		ReadTimeout:    cfg.WSReadTimeout,
		MaxMessageSize: cfg.WSMaxMessageSize,
	})
	internalServer := handler.NewInternalServer(svc, m)

	errCh := make(chan error, 2)
	go func() {
		if err := externalServer.Start(fmt.Sprintf(":%d", cfg.HTTPPort)); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("external server: %w", err)
		}
	}()
	go func() {
		if err := internalServer.Start(fmt.Sprintf(":%d", cfg.InternalPort)); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("internal server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
	case err = <-errCh:
	}

	slog.Info("shutting down sessiongate")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := externalServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("failed to shutdown external server gracefully", "error", err)
	}
	if err := internalServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("failed to shutdown internal server gracefully", "error", err)
	}

	// Leave the base layer current for whatever is still delegated.
	if changed, sweepErr := svc.SweepCheckpoints(shutdownCtx); sweepErr != nil {
		slog.Warn("final checkpoint failed", "error", sweepErr)
	} else {
		slog.Info("final checkpoint", "changed", changed)
	}

	slog.Info("sessiongate stopped")
	return err
}

func newFastLayer(ctx context.Context, cfg *config.Config) (custody.FastLayer, func(), error) {
	if cfg.FastLayer != config.FastLayerRedis {
		return memory.New(), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	fast, err := redisfast.New(redisfast.Config{Client: client, KeyPrefix: cfg.RedisKeyPrefix})
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	return fast, func() { _ = fast.Close() }, nil
}
