// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package errors

import (
	"maps"
	"net/http"
)

const (
	DomainMultipath Domain = "MULTIPATH"
	DomainDM        Domain = "DM"
)

// Multipath Waiter Error Codes (2400-2499)
const (
	// Waiter lifecycle (2400-2409)
	MultipathWaiterStartFailed = 2400 + iota // Failed to start event waiter
	MultipathWaiterNotFound                  // No waiter paired with map
	MultipathWaiterInconsistent              // Waiter released while still paired
	MultipathMapNotFound                     // Map not present in device table
	MultipathMapExists                       // Map already present in device table
)

const (
	// Event processing (2410-2429)
	MultipathWaitRequestFailed = 2410 + iota // Could not build or issue wait request
	MultipathEventNrFailed                   // Could not read event sequence number
	MultipathUpdateFailed                    // Reconciliation failed
	MultipathMapGone                         // Map disappeared from the kernel
	MultipathSyncFailed                      // Kernel/table synchronization failed
	MultipathUdevMonitorFailed               // udev monitor failed
)

// Device-mapper Error Codes (2500-2599)
const (
	DMControlOpenFailed  = 2500 + iota // Failed to open control node
	DMVersionUnsupported               // Kernel dm ioctl interface too old
	DMIoctlFailed                      // ioctl returned an error
	DMNoDevice                         // Device does not exist
	DMBufferTooSmall                   // Result did not fit into the buffer
	DMInvalidName                      // Device name invalid or too long
	DMParseFailed                      // Malformed kernel reply
)

func init() {
	multipathErrorDefinitions := map[ErrorCode]struct {
		message    string
		domain     Domain
		httpStatus int
	}{
		MultipathWaiterStartFailed: {
			"Failed to start event waiter",
			DomainMultipath,
			http.StatusInternalServerError,
		},
		MultipathWaiterNotFound: {
			"No event waiter for map",
			DomainMultipath,
			http.StatusNotFound,
		},
		MultipathWaiterInconsistent: {
			"Event waiter released while still paired",
			DomainMultipath,
			http.StatusInternalServerError,
		},
		MultipathMapNotFound: {
			"Multipath map not found",
			DomainMultipath,
			http.StatusNotFound,
		},
		MultipathMapExists: {
			"Multipath map already exists",
			DomainMultipath,
			http.StatusConflict,
		},
		MultipathWaitRequestFailed: {
			"Failed to issue devmap wait request",
			DomainMultipath,
			http.StatusInternalServerError,
		},
		MultipathEventNrFailed: {
			"Failed to read devmap event number",
			DomainMultipath,
			http.StatusInternalServerError,
		},
		MultipathUpdateFailed: {
			"Failed to update multipath map",
			DomainMultipath,
			http.StatusInternalServerError,
		},
		MultipathMapGone: {
			"Multipath map removed from kernel",
			DomainMultipath,
			http.StatusGone,
		},
		MultipathSyncFailed: {
			"Failed to synchronize multipath maps",
			DomainMultipath,
			http.StatusInternalServerError,
		},
		MultipathUdevMonitorFailed: {
			"udev monitor failed",
			DomainMultipath,
			http.StatusInternalServerError,
		},

		DMControlOpenFailed: {
			"Failed to open device-mapper control node",
			DomainDM,
			http.StatusServiceUnavailable,
		},
		DMVersionUnsupported: {
			"Unsupported device-mapper ioctl version",
			DomainDM,
			http.StatusServiceUnavailable,
		},
		DMIoctlFailed: {
			"Device-mapper ioctl failed",
			DomainDM,
			http.StatusInternalServerError,
		},
		DMNoDevice: {
			"Device-mapper device not found",
			DomainDM,
			http.StatusNotFound,
		},
		DMBufferTooSmall: {
			"Device-mapper result buffer too small",
			DomainDM,
			http.StatusInternalServerError,
		},
		DMInvalidName: {
			"Invalid device-mapper device name",
			DomainDM,
			http.StatusBadRequest,
		},
		DMParseFailed: {
			"Malformed device-mapper reply",
			DomainDM,
			http.StatusInternalServerError,
		},
	}

	maps.Copy(errorDefinitions, multipathErrorDefinitions)
}
