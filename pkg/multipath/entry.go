// SPDX-License-Identifier: Apache-2.0

package multipath

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"time"
)

// waitEvent is the body of a waiter goroutine. It owns w and releases it
// exactly once on the way out.
func (m *Manager) waitEvent(w *Waiter) {
	// The goroutine keeps its thread; the thread exits with it
	runtime.LockOSThread()

	m.lockMemory()

	defer m.freeWaiter(w)
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("event checker aborted", "map", w.alias, "waiter", w.id,
				"panic", fmt.Sprint(r), "stack", string(debug.Stack()))
			m.detach(w)
			m.stopped(w, stopPanic)
		}
	}()

	for {
		delay, ok := m.waitEventLoop(w)
		if !ok {
			return
		}
		if delay <= 0 {
			continue
		}

		t := time.NewTimer(delay)
		select {
		case <-w.ctx.Done():
			t.Stop()
			m.stopped(w, stopInterrupted)
			return
		case <-t.C:
		}
	}
}
