// SPDX-License-Identifier: Apache-2.0

//go:build linux

package multipath

import (
	"sync"

	"golang.org/x/sys/unix"
)

var memlockOnce sync.Once

// lockMemory pins the daemon's pages so event handling never waits on a
// page-in. mlockall is process wide; the first waiter does it.
func (m *Manager) lockMemory() {
	if !m.opts.LockMemory {
		return
	}
	memlockOnce.Do(func() {
		if err := unix.Mlockall(unix.MCL_CURRENT | unix.MCL_FUTURE); err != nil {
			m.logger.Warn("failed to lock memory", "err", err)
			return
		}
		m.logger.Debug("memory locked")
	})
}
