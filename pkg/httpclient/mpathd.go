// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package httpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/go-resty/resty/v2"
	"github.com/stratastor/mpathd/internal/constants"
	"github.com/stratastor/mpathd/pkg/errors"
	"github.com/stratastor/mpathd/pkg/multipath"
	"github.com/stratastor/mpathd/pkg/multipath/api"
	"github.com/stratastor/mpathd/pkg/multipath/discovery"
)

// MapList is the result of GET /maps.
type MapList struct {
	Maps          []multipath.MapView `json:"maps"`
	Count         int                 `json:"count"`
	ActiveWaiters int                 `json:"active_waiters"`
}

// Health is the result of the health probe.
type Health struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	ActiveWaiters int    `json:"active_waiters"`
}

// envelope mirrors api.APIResponse with a deferred result.
type envelope struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *api.APIError   `json:"error,omitempty"`
}

// APIClient talks to a running mpathd.
type APIClient struct {
	client *Client
}

// NewAPIClient returns a client for the daemon listening on port.
func NewAPIClient(port int) *APIClient {
	cfg := NewClientConfig()
	cfg.BaseURL = fmt.Sprintf("http://localhost:%d", port)
	return &APIClient{client: NewClient(cfg)}
}

// NewAPIClientWithConfig is used when the caller needs a custom base URL.
func NewAPIClientWithConfig(cfg ClientConfig) *APIClient {
	return &APIClient{client: NewClient(cfg)}
}

func (a *APIClient) Health(ctx context.Context, endpoint string) (*Health, error) {
	if endpoint == "" {
		endpoint = constants.HealthPath
	}

	var h Health
	resp, err := a.client.R().SetContext(ctx).SetResult(&h).Get(endpoint)
	if err != nil {
		return nil, errors.Wrap(err, errors.ServerInternalError).
			WithMetadata("endpoint", endpoint)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, errors.New(errors.ServerInternalError, resp.Status()).
			WithMetadata("endpoint", endpoint)
	}
	return &h, nil
}

func (a *APIClient) ListMaps(ctx context.Context) (*MapList, error) {
	var out MapList
	if err := a.do(ctx, http.MethodGet, constants.APIMaps, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *APIClient) GetMap(ctx context.Context, alias string) (*multipath.MapView, error) {
	var out multipath.MapView
	if err := a.do(ctx, http.MethodGet, mapPath(alias), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *APIClient) StartWaiter(ctx context.Context, alias string) (*multipath.MapView, error) {
	var out multipath.MapView
	if err := a.do(ctx, http.MethodPost, mapPath(alias)+"/waiter", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *APIClient) StopWaiter(ctx context.Context, alias string) (*multipath.MapView, error) {
	var out multipath.MapView
	if err := a.do(ctx, http.MethodDelete, mapPath(alias)+"/waiter", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *APIClient) TriggerDiscovery(ctx context.Context) (*discovery.Result, error) {
	var out discovery.Result
	if err := a.do(ctx, http.MethodPost, constants.APIDiscovery+"/trigger", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func mapPath(alias string) string {
	return constants.APIMaps + "/" + url.PathEscape(alias)
}

// do executes the request and decodes the envelope result into out. API
// errors come back as MpathdErrors carrying the server's code.
func (a *APIClient) do(ctx context.Context, method, path string, out interface{}) error {
	var env envelope
	resp, err := a.client.R().
		SetContext(ctx).
		SetResult(&env).
		SetError(&env).
		Execute(method, path)
	if err != nil {
		return errors.Wrap(err, errors.ServerInternalError).
			WithMetadata("path", path)
	}

	if resp.IsError() || !env.Success {
		return apiError(resp, &env)
	}

	if out != nil && len(env.Result) > 0 {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return errors.Wrap(err, errors.ServerInternalError).
				WithMetadata("path", path)
		}
	}
	return nil
}

func apiError(resp *resty.Response, env *envelope) error {
	if env.Error == nil {
		return errors.New(errors.ServerInternalError, resp.Status())
	}

	re := errors.New(errors.ErrorCode(env.Error.Code), env.Error.Details)
	for k, v := range env.Error.Meta {
		re.WithMetadata(k, fmt.Sprint(v))
	}
	return re
}
