// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package constants

// Build-time variables set via ldflags
var (
	Version   = "v0.0.1-dev" // Set via -X flag during build
	CommitSHA = "unknown"    // Set via -X flag during build
	BuildTime = "unknown"    // Set via -X flag during build
)

const (
	MpathdVersion     = "v0.0.1"
	MpathdPIDFilePath = "/run/mpathd.pid"
	MpathdLockPath    = "/run/mpathd.lock"

	// config
	ConfigFileName = "mpathd.yml"
	ConfigEnvVar   = "MPATHD_CONFIG"
	EnvPrefix      = "MPATHD"

	// device-mapper
	DMControlPath = "/dev/mapper/control"

	// routes
	APIVersion   = "v1"
	APIBase      = "/api/" + APIVersion + "/mpathd"
	APIMaps      = APIBase + "/maps"
	APIDiscovery = APIBase + "/discovery"
	HealthPath   = "/health"
	MetricsPath  = "/metrics"
)
