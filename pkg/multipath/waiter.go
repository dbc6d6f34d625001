// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

// Package multipath runs one devmap event waiter per multipath map.
//
// A waiter blocks in the kernel until its map's event counter moves, then
// reconciles the map under the Table lock and goes back to waiting. A Map
// and its Waiter are paired: Map.waiter and Waiter.mpp are either both set
// or both nil, and they only change together under the Table lock.
// Clearing the pairing is the stop signal; cancelling the waiter's context
// merely wakes it sooner.
package multipath

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stratastor/logger"
	"github.com/stratastor/mpathd/pkg/errors"
	"github.com/stratastor/mpathd/pkg/multipath/dm"
)

// DefaultRescheduleDelay is the pause after a reconciliation that saw no
// newer event.
const DefaultRescheduleDelay = time.Second

// Waiter is the handle of one running event waiter. It is owned by its
// goroutine, which releases it on exit.
type Waiter struct {
	id      uuid.UUID
	alias   string
	table   *Table
	started time.Time

	// eventNr is the last event number seen; zero means not yet read.
	eventNr atomic.Uint32

	// mpp is only stored under the table lock. Loads are lock-free so the
	// waiter can see a stop without taking the lock again.
	mpp atomic.Pointer[Map]

	ctx    context.Context
	cancel context.CancelFunc

	released bool
}

func (w *Waiter) ID() string {
	return w.id.String()
}

func (w *Waiter) Alias() string {
	return w.alias
}

func (w *Waiter) EventNr() uint32 {
	return w.eventNr.Load()
}

func (w *Waiter) paired() bool {
	return w.mpp.Load() != nil
}

// pair and unpair require the table lock.
func pair(mpp *Map, w *Waiter) {
	mpp.waiter = w
	w.mpp.Store(mpp)
}

func unpair(mpp *Map, w *Waiter) {
	mpp.waiter = nil
	w.mpp.Store(nil)
}

// UpdateFunc reconciles alias against the kernel. It is called with the
// table lock held and may modify the table. Returning an error matching
// ErrMapGone stops the waiter.
type UpdateFunc func(t *Table, alias string) error

type Options struct {
	// RescheduleDelay defaults to DefaultRescheduleDelay.
	RescheduleDelay time.Duration
	// StackSize is the requested waiter stack size; it is raised to
	// MinStackSize when smaller.
	StackSize  int
	LockMemory bool
	// Registerer receives the waiter metrics. Nil leaves them unregistered.
	Registerer prometheus.Registerer
}

// Manager starts and stops event waiters for the maps of one Table.
type Manager struct {
	logger  logger.Logger
	table   *Table
	source  EventSource
	update  UpdateFunc
	opts    Options
	metrics *metrics

	stackSize int
	active    atomic.Int64
	wg        sync.WaitGroup

	// spawn runs fn on a new goroutine
	spawn func(fn func()) error
}

func NewManager(l logger.Logger, table *Table, source EventSource, update UpdateFunc, opts Options) *Manager {
	if opts.RescheduleDelay <= 0 {
		opts.RescheduleDelay = DefaultRescheduleDelay
	}

	m := &Manager{
		logger:  l,
		table:   table,
		source:  source,
		update:  update,
		opts:    opts,
		metrics: newMetrics(opts.Registerer),
		spawn: func(fn func()) error {
			go fn()
			return nil
		},
	}
	m.stackSize = ensureStackSize(effectiveStackSize(opts.StackSize))

	return m
}

func (m *Manager) Table() *Table {
	return m.table
}

// Active returns the number of waiters that have not yet been released.
func (m *Manager) Active() int {
	return int(m.active.Load())
}

// StartWaiter pairs a new waiter with mpp and starts it. The table lock
// must be held. A nil map or a map that already has a waiter is a no-op.
// On failure the map stays unpaired and unmonitored.
func (m *Manager) StartWaiter(mpp *Map) error {
	if mpp == nil {
		return nil
	}
	if mpp.waiter != nil {
		m.logger.Debug("event checker already running", "map", mpp.Alias, "waiter", mpp.waiter.id)
		return nil
	}

	id, err := uuid.NewRandom()
	if err != nil {
		m.logger.Error("cannot create event checker", "map", mpp.Alias, "err", err)
		return errors.Wrap(err, errors.MultipathWaiterStartFailed).
			WithMetadata("map", mpp.Alias)
	}

	alias := mpp.Alias
	if len(alias) >= dm.NameLen {
		alias = alias[:dm.NameLen-1]
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Waiter{
		id:      id,
		alias:   alias,
		table:   m.table,
		started: time.Now(),
		ctx:     ctx,
		cancel:  cancel,
	}
	pair(mpp, w)

	m.active.Add(1)
	m.metrics.waitersActive.Inc()
	m.wg.Add(1)
	err = m.spawn(func() {
		defer m.wg.Done()
		m.waitEvent(w)
	})
	if err != nil {
		m.wg.Done()
		m.active.Add(-1)
		m.metrics.waitersActive.Dec()
		unpair(mpp, w)
		cancel()
		m.logger.Error("cannot create event checker", "map", mpp.Alias, "err", err)
		return errors.Wrap(err, errors.MultipathWaiterStartFailed).
			WithMetadata("map", mpp.Alias)
	}

	m.logger.Info("event checker started", "map", mpp.Alias, "waiter", id, "max_stack", m.stackSize)
	return nil
}

// StopWaiter unpairs mpp from its waiter and wakes the waiter. The table
// lock must be held. Stopping an unmonitored map is a no-op.
func (m *Manager) StopWaiter(mpp *Map) {
	if mpp == nil {
		return
	}
	w := mpp.waiter
	if w == nil {
		m.logger.Debug("no waiter thread", "map", mpp.Alias)
		return
	}

	m.logger.Info("stop event checker thread", "map", mpp.Alias, "waiter", w.id)
	unpair(mpp, w)
	w.cancel()
}

// Start starts the waiter of the map named alias.
func (m *Manager) Start(alias string) error {
	m.table.Lock()
	defer m.table.Unlock()

	mpp := m.table.Find(alias)
	if mpp == nil {
		return errors.New(errors.MultipathMapNotFound, "").
			WithMetadata("map", alias)
	}
	return m.StartWaiter(mpp)
}

// Stop stops the waiter of the map named alias.
func (m *Manager) Stop(alias string) error {
	m.table.Lock()
	defer m.table.Unlock()

	mpp := m.table.Find(alias)
	if mpp == nil {
		return errors.New(errors.MultipathMapNotFound, "").
			WithMetadata("map", alias)
	}
	m.StopWaiter(mpp)
	return nil
}

// Shutdown stops every waiter and waits for them to exit until ctx is done.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.table.Lock()
	for _, mpp := range m.table.Maps() {
		m.StopWaiter(mpp)
	}
	m.table.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("all event checkers stopped")
		return nil
	case <-ctx.Done():
		m.logger.Warn("timeout waiting for event checkers", "active", m.Active())
		return ctx.Err()
	}
}

// detach clears the pairing from the waiter side if it is still set.
func (m *Manager) detach(w *Waiter) {
	m.table.Lock()
	defer m.table.Unlock()

	if mpp := w.mpp.Load(); mpp != nil {
		unpair(mpp, w)
	}
}

// freeWaiter releases w once. A waiter that is still paired is leaked
// instead.
func (m *Manager) freeWaiter(w *Waiter) {
	if w.paired() {
		m.logger.Error("waiter not cleared", "map", w.alias, "waiter", w.id, "severity", "critical")
		return
	}
	if w.released {
		return
	}

	w.released = true
	w.cancel()
	m.active.Add(-1)
	m.metrics.waitersActive.Dec()
	m.logger.Debug("event checker released", "map", w.alias, "waiter", w.id)
}
