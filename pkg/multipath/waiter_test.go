// SPDX-License-Identifier: Apache-2.0

package multipath

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stratastor/mpathd/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// assertPairing checks that the map and waiter sides agree.
func assertPairing(t *testing.T, env *testEnv, alias string, w *Waiter, want bool) {
	t.Helper()
	env.table.Lock()
	defer env.table.Unlock()

	mpp := env.table.Find(alias)
	if want {
		require.NotNil(t, mpp)
		assert.Same(t, w, mpp.waiter)
		assert.Same(t, mpp, w.mpp.Load())
		return
	}
	if mpp != nil {
		assert.Nil(t, mpp.waiter)
	}
	assert.Nil(t, w.mpp.Load())
}

func TestStartWaiter(t *testing.T) {
	env := newTestEnv(t, Options{}, "mpatha")
	env.kernel.set("mpatha", 5)

	require.NoError(t, env.manager.Start("mpatha"))
	w := env.waiter("mpatha")
	require.NotNil(t, w)
	assertPairing(t, env, "mpatha", w, true)
	assert.Equal(t, 1, env.manager.Active())

	require.Eventually(t, func() bool {
		return env.kernel.parkedCount("mpatha") == 1
	}, waitFor, tick)
	assert.Equal(t, uint32(5), w.EventNr())
	assert.Equal(t, 0, env.rec.count())
}

func TestStartWaiterTwice(t *testing.T) {
	env := newTestEnv(t, Options{}, "mpatha")

	require.NoError(t, env.manager.Start("mpatha"))
	first := env.waiter("mpatha")

	require.NoError(t, env.manager.Start("mpatha"))
	assert.Same(t, first, env.waiter("mpatha"))
	assert.Equal(t, 1, env.manager.Active())
}

func TestStartWaiterNilMap(t *testing.T) {
	env := newTestEnv(t, Options{})

	env.table.Lock()
	err := env.manager.StartWaiter(nil)
	env.table.Unlock()

	assert.NoError(t, err)
	assert.Equal(t, 0, env.manager.Active())
}

func TestStartUnknownMap(t *testing.T) {
	env := newTestEnv(t, Options{})

	err := env.manager.Start("nope")
	require.Error(t, err)
	assert.Equal(t, errors.ErrorCode(errors.MultipathMapNotFound), errors.GetCode(err))
}

func TestStartSpawnFailure(t *testing.T) {
	env := newTestEnv(t, Options{}, "mpatha")
	env.manager.spawn = func(func()) error {
		return fmt.Errorf("resource temporarily unavailable")
	}

	err := env.manager.Start("mpatha")
	require.Error(t, err)
	assert.Equal(t, errors.ErrorCode(errors.MultipathWaiterStartFailed), errors.GetCode(err))
	assert.Nil(t, env.waiter("mpatha"))
	assert.Equal(t, 0, env.manager.Active())
}

func TestStopBlockedWaiter(t *testing.T) {
	env := newTestEnv(t, Options{}, "mpatha")
	env.kernel.set("mpatha", 5)

	require.NoError(t, env.manager.Start("mpatha"))
	w := env.waiter("mpatha")
	require.Eventually(t, func() bool {
		return env.kernel.parkedCount("mpatha") == 1
	}, waitFor, tick)

	require.NoError(t, env.manager.Stop("mpatha"))
	assertPairing(t, env, "mpatha", w, false)

	require.Eventually(t, func() bool {
		return env.manager.Active() == 0
	}, waitFor, tick)
	assert.Equal(t, 0, env.rec.count(), "no reconciliation after stop")
}

func TestStopUnmonitoredMap(t *testing.T) {
	env := newTestEnv(t, Options{}, "mpatha")

	assert.NoError(t, env.manager.Stop("mpatha"))
	assert.Equal(t, 0, env.manager.Active())

	err := env.manager.Stop("nope")
	assert.Equal(t, errors.ErrorCode(errors.MultipathMapNotFound), errors.GetCode(err))
}

func TestRestartAfterStop(t *testing.T) {
	env := newTestEnv(t, Options{}, "mpatha")

	require.NoError(t, env.manager.Start("mpatha"))
	first := env.waiter("mpatha")
	require.NoError(t, env.manager.Stop("mpatha"))
	require.NoError(t, env.manager.Start("mpatha"))

	second := env.waiter("mpatha")
	require.NotNil(t, second)
	assert.NotSame(t, first, second)
	assertPairing(t, env, "mpatha", second, true)

	require.Eventually(t, func() bool {
		return env.manager.Active() == 1
	}, waitFor, tick)
}

func TestEventThenReschedule(t *testing.T) {
	env := newTestEnv(t, Options{RescheduleDelay: 10 * time.Millisecond}, "mpatha")
	env.kernel.set("mpatha", 5)

	require.NoError(t, env.manager.Start("mpatha"))
	w := env.waiter("mpatha")
	require.Eventually(t, func() bool {
		return env.kernel.parkedCount("mpatha") == 1
	}, waitFor, tick)

	env.kernel.bump("mpatha")

	require.Eventually(t, func() bool {
		return env.rec.count() == 1 && env.kernel.parkedCount("mpatha") == 2
	}, waitFor, tick)
	assert.Equal(t, uint32(6), w.EventNr())
	assertPairing(t, env, "mpatha", w, true)
}

func TestEventDuringUpdateIsNotMissed(t *testing.T) {
	// A reschedule would stall the test for an hour
	env := newTestEnv(t, Options{RescheduleDelay: time.Hour}, "mpatha")
	env.kernel.set("mpatha", 5)
	env.rec.hook = func(_ *Table, alias string, call int) error {
		if call == 1 {
			env.kernel.bump(alias)
		}
		return nil
	}

	require.NoError(t, env.manager.Start("mpatha"))
	w := env.waiter("mpatha")
	require.Eventually(t, func() bool {
		return env.kernel.parkedCount("mpatha") == 1
	}, waitFor, tick)

	env.kernel.bump("mpatha")

	require.Eventually(t, func() bool {
		return env.rec.count() == 2
	}, waitFor, tick)
	assert.Equal(t, uint32(7), w.EventNr())
	assert.Equal(t, 1, env.kernel.parkedCount("mpatha"), "drained without waiting again")

	// Stop interrupts the reschedule sleep
	require.NoError(t, env.manager.Stop("mpatha"))
	require.Eventually(t, func() bool {
		return env.manager.Active() == 0
	}, waitFor, tick)
}

func TestUpdateReportsMapGone(t *testing.T) {
	env := newTestEnv(t, Options{RescheduleDelay: 10 * time.Millisecond}, "mpatha")
	env.kernel.set("mpatha", 1)
	env.rec.hook = func(tbl *Table, alias string, _ int) error {
		tbl.Remove(alias)
		return ErrMapGone
	}

	require.NoError(t, env.manager.Start("mpatha"))
	w := env.waiter("mpatha")
	require.Eventually(t, func() bool {
		return env.kernel.parkedCount("mpatha") == 1
	}, waitFor, tick)

	env.kernel.bump("mpatha")

	require.Eventually(t, func() bool {
		return env.manager.Active() == 0
	}, waitFor, tick)
	assert.Equal(t, 1, env.rec.count())
	assert.False(t, w.paired())

	env.table.Lock()
	assert.Equal(t, 0, env.table.Len())
	env.table.Unlock()
}

func TestKernelRemovalWakesWaiter(t *testing.T) {
	env := newTestEnv(t, Options{}, "mpatha")
	env.kernel.set("mpatha", 3)
	env.rec.hook = func(tbl *Table, alias string, _ int) error {
		if _, err := env.kernel.EventNr(alias); err != nil {
			tbl.Remove(alias)
			return errors.Wrap(err, errors.MultipathMapGone)
		}
		return nil
	}

	require.NoError(t, env.manager.Start("mpatha"))
	require.Eventually(t, func() bool {
		return env.kernel.parkedCount("mpatha") == 1
	}, waitFor, tick)

	env.kernel.remove("mpatha")

	require.Eventually(t, func() bool {
		return env.manager.Active() == 0
	}, waitFor, tick)
	assert.Equal(t, 1, env.rec.count())
}

func TestUpdateErrorKeepsWaiting(t *testing.T) {
	env := newTestEnv(t, Options{RescheduleDelay: 10 * time.Millisecond}, "mpatha")
	env.kernel.set("mpatha", 1)
	env.rec.hook = func(*Table, string, int) error {
		return errors.New(errors.MultipathUpdateFailed, "transient")
	}

	require.NoError(t, env.manager.Start("mpatha"))
	w := env.waiter("mpatha")
	require.Eventually(t, func() bool {
		return env.kernel.parkedCount("mpatha") == 1
	}, waitFor, tick)

	env.kernel.bump("mpatha")

	require.Eventually(t, func() bool {
		return env.kernel.parkedCount("mpatha") == 2
	}, waitFor, tick)
	assert.Equal(t, 1, env.rec.count())
	assertPairing(t, env, "mpatha", w, true)
}

func TestWaitRequestFailureStopsWaiter(t *testing.T) {
	env := newTestEnv(t, Options{}, "mpatha")
	env.kernel.set("mpatha", 1)
	env.kernel.waitErr = errors.New(errors.DMInvalidName, "bad name")

	require.NoError(t, env.manager.Start("mpatha"))
	w := env.waiter("mpatha")

	require.Eventually(t, func() bool {
		return env.manager.Active() == 0
	}, waitFor, tick)
	assertPairing(t, env, "mpatha", w, false)
	assert.Equal(t, 0, env.rec.count())

	// The map can be monitored again later
	env.kernel.mu.Lock()
	env.kernel.waitErr = nil
	env.kernel.mu.Unlock()
	require.NoError(t, env.manager.Start("mpatha"))
	assert.NotNil(t, env.waiter("mpatha"))
}

func TestPanicInUpdateReleasesWaiter(t *testing.T) {
	env := newTestEnv(t, Options{}, "mpatha")
	env.kernel.set("mpatha", 1)
	env.rec.hook = func(*Table, string, int) error {
		panic("boom")
	}

	require.NoError(t, env.manager.Start("mpatha"))
	w := env.waiter("mpatha")
	require.Eventually(t, func() bool {
		return env.kernel.parkedCount("mpatha") == 1
	}, waitFor, tick)

	env.kernel.bump("mpatha")

	require.Eventually(t, func() bool {
		return env.manager.Active() == 0
	}, waitFor, tick)
	assertPairing(t, env, "mpatha", w, false)

	// The lock was released on the way out
	env.table.Lock()
	env.table.Unlock()
}

func TestFreeWaiterRefusesPairedWaiter(t *testing.T) {
	env := newTestEnv(t, Options{}, "mpatha")
	mpp := env.table.Find("mpatha")

	ctx, cancel := context.WithCancel(context.Background())
	w := &Waiter{alias: "mpatha", table: env.table, ctx: ctx, cancel: cancel}
	pair(mpp, w)
	env.manager.active.Add(1)

	env.manager.freeWaiter(w)
	assert.False(t, w.released)
	assert.Equal(t, 1, env.manager.Active())
	assert.NoError(t, ctx.Err())

	unpair(mpp, w)
	env.manager.freeWaiter(w)
	assert.True(t, w.released)
	assert.Equal(t, 0, env.manager.Active())
	assert.Error(t, ctx.Err())

	// Released exactly once
	env.manager.freeWaiter(w)
	assert.Equal(t, 0, env.manager.Active())
}

func TestShutdownStopsAllWaiters(t *testing.T) {
	env := newTestEnv(t, Options{}, "mpatha", "mpathb")

	require.NoError(t, env.manager.Start("mpatha"))
	require.NoError(t, env.manager.Start("mpathb"))
	wa, wb := env.waiter("mpatha"), env.waiter("mpathb")
	require.Eventually(t, func() bool {
		return env.kernel.parkedCount("mpatha") == 1 && env.kernel.parkedCount("mpathb") == 1
	}, waitFor, tick)

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, env.manager.Shutdown(ctx))

	assert.Equal(t, 0, env.manager.Active())
	assertPairing(t, env, "mpatha", wa, false)
	assertPairing(t, env, "mpathb", wb, false)
}

func TestLongAliasIsTruncated(t *testing.T) {
	long := fmt.Sprintf("%0200d", 7)
	env := newTestEnv(t, Options{}, long)

	require.NoError(t, env.manager.Start(long))
	w := env.waiter(long)
	require.NotNil(t, w)
	assert.Len(t, w.Alias(), 127)
}
