// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

//go:build !linux

package discovery

var _ = (*Monitor).emit

// Start only warns; without netlink the periodic sync handles everything.
func (m *Monitor) Start() error {
	m.logger.Warn("udev netlink monitoring not available on this platform - relying on periodic sync only")
	return nil
}

func (m *Monitor) Stop() error {
	m.once.Do(func() {
		m.logger.Info("stopping udev monitor")
		m.cancel()
	})
	return nil
}
