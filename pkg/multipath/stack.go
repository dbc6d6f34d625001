// SPDX-License-Identifier: Apache-2.0

package multipath

import "runtime/debug"

// MinStackSize is the smallest stack a waiter may run with.
const MinStackSize = 32 * 1024

// runtimeMaxStack is the runtime's default per-goroutine stack limit:
// 1e9 bytes on 64-bit platforms, 250e6 on 32-bit ones.
const runtimeMaxStack = 250_000_000 << (2 * (^uint(0) >> 63))

func effectiveStackSize(size int) int {
	if size < MinStackSize {
		return MinStackSize
	}
	return size
}

// ensureStackSize makes sure goroutines may grow their stack to at least
// size and returns the resulting limit. Goroutine stacks grow on demand,
// so only a request above the runtime default changes anything. The limit
// is process wide and never lowered.
func ensureStackSize(size int) int {
	if size <= runtimeMaxStack {
		return runtimeMaxStack
	}
	debug.SetMaxStack(size)
	return size
}
