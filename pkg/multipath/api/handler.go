// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stratastor/logger"
	"github.com/stratastor/mpathd/pkg/errors"
	"github.com/stratastor/mpathd/pkg/multipath"
	"github.com/stratastor/mpathd/pkg/multipath/discovery"
)

// APIResponse represents a standardized API response format
type APIResponse struct {
	Success bool        `json:"success"`
	Result  interface{} `json:"result,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
}

// APIError represents error information in API responses
type APIError struct {
	Code    int                    `json:"code"`
	Domain  string                 `json:"domain"`
	Message string                 `json:"message"`
	Details string                 `json:"details,omitempty"`
	Meta    map[string]interface{} `json:"meta,omitempty"`
}

// Trigger runs a discovery sync on demand. *discovery.Service implements it.
type Trigger interface {
	Trigger(ctx context.Context) (*discovery.Result, error)
}

// MultipathHandler serves the map and waiter REST API
type MultipathHandler struct {
	manager *multipath.Manager
	trigger Trigger
	logger  logger.Logger
}

// NewMultipathHandler creates a new multipath API handler. trigger may be
// nil when discovery is not running.
func NewMultipathHandler(manager *multipath.Manager, trigger Trigger, logger logger.Logger) *MultipathHandler {
	return &MultipathHandler{
		manager: manager,
		trigger: trigger,
		logger:  logger,
	}
}

// sendSuccess sends a successful response with the standardized format
func (h *MultipathHandler) sendSuccess(c *gin.Context, statusCode int, result interface{}) {
	c.JSON(statusCode, APIResponse{
		Success: true,
		Result:  result,
	})
}

// sendError sends an error response with the standardized format
func (h *MultipathHandler) sendError(c *gin.Context, err error) {
	// Surface the error to the request logging middleware
	_ = c.Error(err)

	response := APIResponse{
		Success: false,
	}

	var mpathdErr *errors.MpathdError
	if errors.As(err, &mpathdErr) {
		response.Error = &APIError{
			Code:    int(mpathdErr.Code),
			Domain:  string(mpathdErr.Domain),
			Message: mpathdErr.Message,
			Details: mpathdErr.Details,
			Meta:    make(map[string]interface{}),
		}

		for k, v := range mpathdErr.Metadata {
			response.Error.Meta[k] = v
		}

		c.JSON(mpathdErr.HTTPStatus, response)
		return
	}

	// Generic error
	response.Error = &APIError{
		Code:    http.StatusInternalServerError,
		Domain:  string(errors.DomainMultipath),
		Message: "Internal server error",
		Details: err.Error(),
	}
	c.JSON(http.StatusInternalServerError, response)
}

func (h *MultipathHandler) ListMaps(c *gin.Context) {
	maps := h.manager.Table().Snapshot()

	h.sendSuccess(c, http.StatusOK, map[string]interface{}{
		"maps":           maps,
		"count":          len(maps),
		"active_waiters": h.manager.Active(),
	})
}

func (h *MultipathHandler) GetMap(c *gin.Context) {
	alias := c.Param("alias")
	if alias == "" {
		h.sendError(c, errors.New(errors.ServerRequestValidation, "alias is required"))
		return
	}

	view, ok := h.manager.Table().Get(alias)
	if !ok {
		h.sendError(c, errors.New(errors.MultipathMapNotFound, "").
			WithMetadata("map", alias))
		return
	}

	h.sendSuccess(c, http.StatusOK, view)
}

func (h *MultipathHandler) StartWaiter(c *gin.Context) {
	alias := c.Param("alias")
	if err := h.manager.Start(alias); err != nil {
		h.sendError(c, err)
		return
	}

	h.logger.Info("event checker start requested", "map", alias, "client", c.ClientIP())
	view, _ := h.manager.Table().Get(alias)
	h.sendSuccess(c, http.StatusOK, view)
}

func (h *MultipathHandler) StopWaiter(c *gin.Context) {
	alias := c.Param("alias")
	if err := h.manager.Stop(alias); err != nil {
		h.sendError(c, err)
		return
	}

	h.logger.Info("event checker stop requested", "map", alias, "client", c.ClientIP())
	view, _ := h.manager.Table().Get(alias)
	h.sendSuccess(c, http.StatusOK, view)
}

func (h *MultipathHandler) TriggerDiscovery(c *gin.Context) {
	if h.trigger == nil {
		h.sendError(c, errors.New(errors.NotSupported, "discovery is not running"))
		return
	}

	res, err := h.trigger.Trigger(c.Request.Context())
	if err != nil {
		h.sendError(c, err)
		return
	}

	h.sendSuccess(c, http.StatusOK, res)
}
