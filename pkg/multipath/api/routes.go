// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all multipath API routes
func (h *MultipathHandler) RegisterRoutes(router *gin.RouterGroup) {
	// Map routes
	router.GET("/maps", h.ListMaps)
	router.GET("/maps/:alias", h.GetMap)

	// Waiter routes
	router.POST("/maps/:alias/waiter", h.StartWaiter)
	router.DELETE("/maps/:alias/waiter", h.StopWaiter)

	router.POST("/discovery/trigger", h.TriggerDiscovery)
}
