/*
 * Copyright 2024 Raamsri Kumar <raam@tinkershack.in> and The StrataSTOR Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package httpclient

import (
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/stratastor/mpathd/internal/constants"
)

const (
	defaultTimeout       = 10 * time.Second
	defaultRetryCount    = 2
	defaultRetryWaitTime = 500 * time.Millisecond
	defaultRetryMaxWait  = 3 * time.Second
	defaultUserAgent     = "Mpathd-Agent"
)

// Client wraps resty.Client with mpathd defaults
type Client struct {
	*resty.Client
	config ClientConfig
}

// ClientConfig holds configuration values for the HTTP client
type ClientConfig struct {
	BaseURL          string
	Timeout          time.Duration
	RetryCount       int
	RetryWaitTime    time.Duration
	RetryMaxWaitTime time.Duration
	UserAgent        string
	Headers          map[string]string

	// Debug dumps requests and responses through resty's logger
	Debug bool
}

// NewClientConfig returns a ClientConfig with sensible defaults
func NewClientConfig() ClientConfig {
	return ClientConfig{
		Timeout:          defaultTimeout,
		RetryCount:       defaultRetryCount,
		RetryWaitTime:    defaultRetryWaitTime,
		RetryMaxWaitTime: defaultRetryMaxWait,
		UserAgent:        defaultUserAgent + "/" + constants.MpathdVersion,
		Headers:          make(map[string]string),
	}
}

// NewClient creates a new Resty client with provided configuration
func NewClient(config ClientConfig) *Client {
	client := &Client{
		Client: resty.New(),
		config: config,
	}
	client.applyConfig()
	return client
}

func (c *Client) applyConfig() {
	if c.config.Timeout > 0 {
		c.Client.SetTimeout(c.config.Timeout)
	}
	if c.config.RetryCount > 0 {
		c.Client.SetRetryCount(c.config.RetryCount)
		// Only retry transport failures and 5xx; 4xx answers are final
		c.Client.AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		})
	}
	if c.config.RetryWaitTime > 0 {
		c.Client.SetRetryWaitTime(c.config.RetryWaitTime)
	}
	if c.config.RetryMaxWaitTime > 0 {
		c.Client.SetRetryMaxWaitTime(c.config.RetryMaxWaitTime)
	}
	if c.config.UserAgent != "" {
		c.Client.SetHeader("User-Agent", c.config.UserAgent)
	}
	if c.config.BaseURL != "" {
		c.Client.SetBaseURL(c.config.BaseURL)
	}
	if len(c.config.Headers) > 0 {
		c.Client.SetHeaders(c.config.Headers)
	}

	c.Client.SetDebug(c.config.Debug)
	if !c.config.Debug {
		// Suppress Resty logs by setting a no-op logger
		c.Client.SetLogger(NoOpLogger{})
	}
}

// NoOpLogger suppresses all logs
type NoOpLogger struct{}

func (NoOpLogger) Printf(string, ...interface{}) {}
func (NoOpLogger) Debugf(string, ...interface{}) {}
func (NoOpLogger) Warnf(string, ...interface{})  {}
func (NoOpLogger) Errorf(string, ...interface{}) {}
