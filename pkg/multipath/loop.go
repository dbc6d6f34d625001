// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package multipath

import (
	"context"
	"time"

	"github.com/stratastor/mpathd/pkg/errors"
	"github.com/stratastor/mpathd/pkg/multipath/dm"
)

// ErrMapGone is returned by an UpdateFunc when the map no longer exists.
var ErrMapGone = errors.New(errors.MultipathMapGone, "")

// waitEventLoop runs one wait and the reconciliations it triggers. It
// returns ok == false when the waiter must stop, otherwise the delay
// before the next round.
func (m *Manager) waitEventLoop(w *Waiter) (time.Duration, bool) {
	if !w.paired() {
		m.stopped(w, stopUnpaired)
		return 0, false
	}

	gone := false
	if w.eventNr.Load() == 0 {
		nr, err := m.source.EventNr(w.alias)
		switch {
		case err == nil:
			w.eventNr.Store(nr)
		case errors.Is(err, dm.ErrNoDevice):
			gone = true
		default:
			return m.waitFailed(w, errors.Wrap(err, errors.MultipathEventNrFailed))
		}
	}

	if !gone {
		err := m.source.WaitEvent(w.ctx, w.alias, w.eventNr.Load())
		switch {
		case err == nil:
			w.eventNr.Add(1)
			m.metrics.events.WithLabelValues(w.alias).Inc()
			m.logger.Debug("devmap event", "map", w.alias, "event_nr", w.eventNr.Load())
		case errors.Is(err, context.Canceled) || w.ctx.Err() != nil:
			m.stopped(w, stopInterrupted)
			return 0, false
		case errors.Is(err, dm.ErrNoDevice):
			// Removal wakes the waiter; the update confirms it
			gone = true
		default:
			return m.waitFailed(w, errors.Wrap(err, errors.MultipathWaitRequestFailed))
		}
	}
	if gone {
		m.logger.Debug("devmap not found, reconciling", "map", w.alias)
	}

	for {
		if stop := m.reconcile(w); stop {
			return 0, false
		}

		nr, err := m.source.EventNr(w.alias)
		if err != nil {
			// The next wait will see the same error and reconcile again
			m.logger.Warn("failed to read devmap event number", "map", w.alias, "err", err)
			m.metrics.reschedules.Inc()
			return m.opts.RescheduleDelay, true
		}

		if nr == w.eventNr.Load() {
			m.metrics.reschedules.Inc()
			return m.opts.RescheduleDelay, true
		}

		// Events arrived while the update ran
		m.logger.Debug("devmap changed during update", "map", w.alias,
			"event_nr", w.eventNr.Load(), "kernel_event_nr", nr)
		w.eventNr.Store(nr)
	}
}

// reconcile runs the update for w's map under the table lock. It reports
// whether the waiter must stop.
func (m *Manager) reconcile(w *Waiter) bool {
	w.table.Lock()
	defer w.table.Unlock()

	// Stopped while waiting for the lock
	if !w.paired() {
		m.stopped(w, stopUnpaired)
		return true
	}

	err := m.update(w.table, w.alias)
	switch {
	case err == nil:
		m.metrics.reconciliations.WithLabelValues(resultOK).Inc()
	case errors.Is(err, ErrMapGone):
		m.metrics.reconciliations.WithLabelValues(resultGone).Inc()
		if mpp := w.mpp.Load(); mpp != nil {
			unpair(mpp, w)
		}
		m.stopped(w, stopGone)
		return true
	default:
		m.metrics.reconciliations.WithLabelValues(resultError).Inc()
		m.logger.Error("failed to update map", "map", w.alias, "err", err)
	}

	// The update may have stopped this waiter itself
	if !w.paired() {
		m.stopped(w, stopUnpaired)
		return true
	}
	return false
}

// waitFailed stops a waiter whose wait could not be issued. The map is
// left unmonitored.
func (m *Manager) waitFailed(w *Waiter, err error) (time.Duration, bool) {
	m.logger.Error("devmap wait failed", "map", w.alias, "err", err)
	m.detach(w)
	m.stopped(w, stopError)
	return 0, false
}

func (m *Manager) stopped(w *Waiter, reason string) {
	m.metrics.stops.WithLabelValues(reason).Inc()
	m.logger.Info("event checker exit", "map", w.alias, "waiter", w.id, "reason", reason)
}
