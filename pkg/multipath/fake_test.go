// SPDX-License-Identifier: Apache-2.0

package multipath

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stratastor/logger"
	"github.com/stratastor/mpathd/pkg/multipath/dm"
	"github.com/stretchr/testify/require"
)

// fakeKernel is an in-memory EventSource with controllable event numbers.
type fakeKernel struct {
	mu      sync.Mutex
	nr      map[string]uint32
	gone    map[string]bool
	parked  map[string]int
	waitErr error
	changed chan struct{}
}

func newFakeKernel() *fakeKernel {
	return &fakeKernel{
		nr:      make(map[string]uint32),
		gone:    make(map[string]bool),
		parked:  make(map[string]int),
		changed: make(chan struct{}),
	}
}

func (k *fakeKernel) set(name string, nr uint32) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.nr[name] = nr
	k.broadcast()
}

// bump simulates one devmap event.
func (k *fakeKernel) bump(name string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.nr[name]++
	k.broadcast()
}

func (k *fakeKernel) remove(name string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.gone[name] = true
	k.broadcast()
}

func (k *fakeKernel) broadcast() {
	close(k.changed)
	k.changed = make(chan struct{})
}

func (k *fakeKernel) parkedCount(name string) int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.parked[name]
}

func (k *fakeKernel) EventNr(name string) (uint32, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.gone[name] {
		return 0, dm.ErrNoDevice
	}
	return k.nr[name], nil
}

func (k *fakeKernel) WaitEvent(ctx context.Context, name string, eventNr uint32) error {
	for {
		k.mu.Lock()
		if k.waitErr != nil {
			err := k.waitErr
			k.mu.Unlock()
			return err
		}
		if k.gone[name] {
			k.mu.Unlock()
			return dm.ErrNoDevice
		}
		if k.nr[name] != eventNr {
			k.mu.Unlock()
			return nil
		}
		k.parked[name]++
		ch := k.changed
		k.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
	}
}

// recorder is an UpdateFunc that counts calls and runs an optional hook
// with the table lock held.
type recorder struct {
	mu    sync.Mutex
	calls int
	hook  func(t *Table, alias string, call int) error
}

func (r *recorder) update(t *Table, alias string) error {
	r.mu.Lock()
	r.calls++
	n := r.calls
	hook := r.hook
	r.mu.Unlock()

	if hook != nil {
		return hook(t, alias, n)
	}
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func createTestLogger(t *testing.T) logger.Logger {
	l, err := logger.New(logger.Config{LogLevel: "debug"})
	require.NoError(t, err)
	return l
}

type testEnv struct {
	kernel  *fakeKernel
	table   *Table
	rec     *recorder
	manager *Manager
}

func newTestEnv(t *testing.T, opts Options, aliases ...string) *testEnv {
	t.Helper()

	env := &testEnv{
		kernel: newFakeKernel(),
		table:  NewTable(),
		rec:    &recorder{},
	}
	for _, alias := range aliases {
		require.NoError(t, env.table.Add(NewMap(alias)))
	}

	env.manager = NewManager(createTestLogger(t), env.table, env.kernel, env.rec.update, opts)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		env.manager.Shutdown(ctx)
	})
	return env
}

func (e *testEnv) waiter(alias string) *Waiter {
	e.table.Lock()
	defer e.table.Unlock()
	if mpp := e.table.Find(alias); mpp != nil {
		return mpp.waiter
	}
	return nil
}

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)
