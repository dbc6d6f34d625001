// Copyright 2024 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
)

var configDir string

func init() {
	if os.Geteuid() == 0 {
		configDir = "/etc/mpathd"
		return
	}

	// Otherwise, use user config directory
	homeDir, err := os.UserHomeDir()
	if err != nil {
		configDir = "/etc/mpathd"
		return
	}
	configDir = filepath.Join(homeDir, ".mpathd")
}

// GetConfigDir returns the directory holding mpathd.yml: /etc/mpathd for
// root, ~/.mpathd otherwise.
func GetConfigDir() string {
	return configDir
}
