// SPDX-License-Identifier: Apache-2.0

//go:build !linux

package multipath

func (m *Manager) lockMemory() {}
