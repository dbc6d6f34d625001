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

package errors

import "net/http"

const (
	DomainConfig    Domain = "CONFIG"
	DomainServer    Domain = "SERVER"
	DomainLifecycle Domain = "LIFECYCLE"
	DomainMisc      Domain = "MISC"
	DomainSystem    Domain = "SYSTEM"
)

// ErrorCode represents unique error identifiers
type ErrorCode int

// Domain represents the subsystem where the error originated
type Domain string

type MpathdError struct {
	Code       ErrorCode `json:"code"`
	Domain     Domain    `json:"domain"`
	Message    string    `json:"message"`
	Details    string    `json:"details,omitempty"`
	HTTPStatus int       `json:"-"`

	// Metadata carries call-site context (map alias, operation, event
	// number) for structured logs and API error envelopes.
	Metadata map[string]string `json:"metadata,omitempty"`

	cause error
}

// Error code ranges:
// 1000-1099: Configuration errors
// 1100-1199: Server errors
// 1500-1599: Lifecycle management
// 1600-1699: Program errors
// 1750-1799: System errors
// 2400-2499: Multipath waiter errors (multipath.go)
// 2500-2599: Device-mapper errors (multipath.go)
const (
	// Configuration Errors (1000-1099)
	ConfigNotFound         = 1000 + iota // Config file not found
	ConfigInvalid                        // Invalid config format
	ConfigLoadFailed                     // Failed to load config
	ConfigWriteFailed                    // Failed to write config
	ConfigValidationFailed               // Config validation failed
	ConfigMarshalFailed                  // Config serialization failed
)

const (
	// Server Errors (1100-1199)
	ServerStart             = 1100 + iota // Failed to start server
	ServerShutdown                        // Error during shutdown
	ServerBind                            // Failed to bind port
	ServerRequestValidation               // Request validation failed
	ServerInternalError
	ServerBadRequest // Bad request error
)

const (
	// Lifecycle Management (1500-1599)
	LifecyclePID      = 1500 + iota // PID file operation failed
	LifecycleLock                   // Instance lock held elsewhere
	LifecycleShutdown               // Shutdown hook failed
)

const (
	// Program Errors (1600-1699)
	MpathdMisc = 1600 + iota // Miscellaneous program error
)

const (
	// System Errors (1750-1799)
	OperationFailed  = 1750 + iota // Generic operation failed
	PermissionDenied               // Permission denied
	NotSupported                   // Operation not supported on this platform
)

var errorDefinitions = map[ErrorCode]struct {
	message    string
	domain     Domain
	httpStatus int
}{
	// Configuration errors
	ConfigNotFound: {"Configuration file not found", DomainConfig, http.StatusNotFound},
	ConfigInvalid:  {"Invalid configuration format", DomainConfig, http.StatusBadRequest},
	ConfigLoadFailed: {
		"Failed to load configuration",
		DomainConfig,
		http.StatusInternalServerError,
	},
	ConfigWriteFailed: {
		"Failed to write configuration",
		DomainConfig,
		http.StatusInternalServerError,
	},
	ConfigValidationFailed: {
		"Configuration validation failed",
		DomainConfig,
		http.StatusBadRequest,
	},
	ConfigMarshalFailed: {
		"Failed to serialize configuration",
		DomainConfig,
		http.StatusInternalServerError,
	},

	// Server errors
	ServerStart: {
		"Failed to start server",
		DomainServer,
		http.StatusInternalServerError,
	},
	ServerShutdown: {
		"Error during server shutdown",
		DomainServer,
		http.StatusInternalServerError,
	},
	ServerBind: {
		"Failed to bind server port",
		DomainServer,
		http.StatusInternalServerError,
	},
	ServerRequestValidation: {"Request validation failed", DomainServer, http.StatusBadRequest},
	ServerInternalError: {
		"Internal server error",
		DomainServer,
		http.StatusInternalServerError,
	},
	ServerBadRequest: {
		"Bad request error",
		DomainServer,
		http.StatusBadRequest,
	},

	// Lifecycle errors
	LifecyclePID: {
		"PID file operation failed",
		DomainLifecycle,
		http.StatusInternalServerError,
	},
	LifecycleLock: {
		"Another instance is already running",
		DomainLifecycle,
		http.StatusConflict,
	},
	LifecycleShutdown: {
		"Shutdown hook failed",
		DomainLifecycle,
		http.StatusInternalServerError,
	},

	MpathdMisc: {"Miscellaneous error", DomainMisc, http.StatusInternalServerError},

	// System error definitions
	OperationFailed: {
		"Operation failed",
		DomainSystem,
		http.StatusInternalServerError,
	},
	PermissionDenied: {
		"Permission denied",
		DomainSystem,
		http.StatusForbidden,
	},
	NotSupported: {
		"Operation not supported",
		DomainSystem,
		http.StatusNotImplemented,
	},
}
