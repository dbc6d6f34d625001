// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stratastor/logger"
	"github.com/stratastor/mpathd/internal/constants"
	"github.com/stratastor/mpathd/pkg/multipath"
	"github.com/stratastor/mpathd/pkg/multipath/api"
)

func registerHealthRoute(engine *gin.Engine, endpoint string, manager *multipath.Manager) {
	if endpoint == "" {
		endpoint = constants.HealthPath
	}

	engine.GET(endpoint, func(c *gin.Context) {
		body := gin.H{"status": "healthy", "version": constants.Version}
		if manager != nil {
			body["active_waiters"] = manager.Active()
		}
		c.JSON(http.StatusOK, body)
	})
}

func registerMetricsRoute(engine *gin.Engine, gatherer prometheus.Gatherer) {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	engine.GET(constants.MetricsPath, gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
}

func registerMultipathRoutes(engine *gin.Engine, l logger.Logger, deps Deps) {
	if deps.Manager == nil {
		l.Warn("multipath manager not available, API routes disabled")
		return
	}

	handler := api.NewMultipathHandler(deps.Manager, deps.Trigger, l)
	handler.RegisterRoutes(engine.Group(constants.APIBase))
}
