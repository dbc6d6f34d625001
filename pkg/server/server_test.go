// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stratastor/logger"
	"github.com/stratastor/mpathd/config"
	"github.com/stratastor/mpathd/internal/constants"
	"github.com/stratastor/mpathd/pkg/multipath"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type quietKernel struct{}

func (quietKernel) EventNr(string) (uint32, error) { return 1, nil }

func (quietKernel) WaitEvent(ctx context.Context, _ string, _ uint32) error {
	<-ctx.Done()
	return ctx.Err()
}

func setupTestEngine(t *testing.T) (*multipath.Manager, *gin.Engine) {
	l, err := logger.New(logger.Config{LogLevel: "debug"})
	require.NoError(t, err)

	table := multipath.NewTable()
	table.Lock()
	require.NoError(t, table.Add(multipath.NewMap("mpatha")))
	table.Unlock()

	reg := prometheus.NewRegistry()
	update := func(*multipath.Table, string) error { return nil }
	manager := multipath.NewManager(l, table, quietKernel{}, update, multipath.Options{Registerer: reg})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		manager.Shutdown(ctx)
	})

	cfg := config.Default()
	cfg.Environment = "test"

	return manager, NewEngine(l, cfg, Deps{Manager: manager, Gatherer: reg})
}

func TestHealth(t *testing.T) {
	_, engine := setupTestEngine(t)

	req := httptest.NewRequest(http.MethodGet, constants.HealthPath, nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, float64(0), body["active_waiters"])
}

func TestMetricsExposeWaiterGauge(t *testing.T) {
	manager, engine := setupTestEngine(t)

	manager.Table().Lock()
	require.NoError(t, manager.StartWaiter(manager.Table().Find("mpatha")))
	manager.Table().Unlock()

	req := httptest.NewRequest(http.MethodGet, constants.MetricsPath, nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "mpathd_waiters_active 1")
}

func TestMultipathRoutesMounted(t *testing.T) {
	_, engine := setupTestEngine(t)

	req := httptest.NewRequest(http.MethodGet, constants.APIMaps+"/mpatha", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))

	req = httptest.NewRequest(http.MethodPost, constants.APIDiscovery+"/trigger", nil)
	w = httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	assert.GreaterOrEqual(t, w.Code, 400)
}

func TestShutdownWithoutStart(t *testing.T) {
	assert.NoError(t, Shutdown(context.Background()))
}
