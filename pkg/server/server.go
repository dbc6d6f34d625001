// Copyright 2024 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

// Gist of what's happening:
//
// We're using Gin's Engine (gin.New()) for routing and middleware and hand
// it to an http.Server as its Handler. Owning the http.Server gives us
// graceful Shutdown() tied to the lifecycle package, plus control over
// timeouts and startup errors that gin.Run() would hide.
//
// The engine serves the multipath API under constants.APIBase, a /health
// probe and the Prometheus /metrics endpoint.

package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stratastor/logger"
	"github.com/stratastor/mpathd/config"
	"github.com/stratastor/mpathd/pkg/errors"
	"github.com/stratastor/mpathd/pkg/multipath"
	"github.com/stratastor/mpathd/pkg/multipath/api"
)

// Deps are the daemon components the HTTP surface exposes.
type Deps struct {
	Manager *multipath.Manager
	// Trigger may be nil when discovery is not running.
	Trigger api.Trigger
	// Gatherer backs /metrics; prometheus.DefaultGatherer when nil.
	Gatherer prometheus.Gatherer
}

var srv *http.Server

// NewEngine builds the gin engine with all routes registered.
func NewEngine(l logger.Logger, cfg *config.Config, deps Deps) *gin.Engine {
	// Switch to debug mode for non-production environments
	switch cfg.Environment {
	case "prod", "production":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	// Create engine without middleware
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(LoggerMiddleware(l, cfg.Health.Endpoint))

	registerHealthRoute(engine, cfg.Health.Endpoint, deps.Manager)
	registerMetricsRoute(engine, deps.Gatherer)
	registerMultipathRoutes(engine, l, deps)

	return engine
}

// Start serves the API until ctx is done or the listener fails.
func Start(ctx context.Context, deps Deps) error {
	cfg := config.GetConfig()
	l, err := logger.NewTag(config.NewLoggerConfig(cfg), "server")
	if err != nil {
		return err
	}

	srv = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           NewEngine(l, cfg, deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Channel to catch server startup errors
	errChan := make(chan error, 1)

	go func() {
		l.Info("API server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil {
			if err != http.ErrServerClosed {
				errChan <- err
			}
		}
	}()

	// Wait for either server error or context cancellation
	select {
	case err := <-errChan:
		return errors.Wrap(err, errors.ServerStart).
			WithMetadata("addr", srv.Addr)
	case <-ctx.Done():
		return Shutdown(context.Background())
	}
}

func Shutdown(ctx context.Context) error {
	if srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return errors.Wrap(err, errors.ServerShutdown)
	}
	return nil
}
