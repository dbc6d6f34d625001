/*
 * Copyright 2024-2025 Raamsri Kumar <raam@tinkershack.in>
 * Copyright 2024-2025 The StrataSTOR Authors and Contributors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     https://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package server

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stratastor/logger"
	"github.com/stratastor/mpathd/internal/constants"
	"github.com/stratastor/mpathd/pkg/errors"
)

// LoggerMiddleware logs every API request except probe and scrape traffic.
func LoggerMiddleware(l logger.Logger, healthPath string) gin.HandlerFunc {
	if healthPath == "" {
		healthPath = constants.HealthPath
	}

	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		if path == healthPath || path == constants.MetricsPath {
			c.Next()
			return
		}

		// Get or generate request ID
		requestID := c.GetHeader("X-Request-Id")
		if requestID == "" {
			requestID = uuid.New().String()
			c.Header("X-Request-Id", requestID)
		}
		c.Set("request_id", requestID)

		c.Next()

		attrs := []slog.Attr{
			slog.String("request_id", requestID),
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.Int("status", c.Writer.Status()),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()),
			slog.String("ip", c.ClientIP()),
		}
		if alias := c.Param("alias"); alias != "" {
			attrs = append(attrs, slog.String("map", alias))
		}
		if q := c.Request.URL.RawQuery; q != "" {
			attrs = append(attrs, slog.String("query", q))
		}

		for _, err := range c.Errors {
			var re *errors.MpathdError
			if errors.As(err.Err, &re) {
				attrs = append(attrs,
					slog.Int("error_code", int(re.Code)),
					slog.String("error_domain", string(re.Domain)),
					slog.String("error_message", re.Message),
				)
				if re.Details != "" {
					attrs = append(attrs, slog.String("error_details", re.Details))
				}
				for k, v := range re.Metadata {
					attrs = append(attrs, slog.String("error_metadata_"+k, v))
				}
				continue
			}
			attrs = append(attrs, slog.String("error", err.Error()))
		}

		switch status := c.Writer.Status(); {
		case status >= 500:
			l.Error("Server Error", logAttrs(attrs)...)
		case status >= 400:
			l.Warn("Client Error", logAttrs(attrs)...)
		default:
			l.Debug("Request", logAttrs(attrs)...)
		}
	}
}

// Helper to convert slog.Attr slice to interface slice
func logAttrs(attrs []slog.Attr) []interface{} {
	args := make([]interface{}, len(attrs)*2)
	for i, attr := range attrs {
		args[i*2] = attr.Key
		args[i*2+1] = attr.Value.Any()
	}
	return args
}
