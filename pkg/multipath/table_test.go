// SPDX-License-Identifier: Apache-2.0

package multipath

import (
	"testing"

	"github.com/stratastor/mpathd/pkg/errors"
	"github.com/stratastor/mpathd/pkg/multipath/dm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableAddFindRemove(t *testing.T) {
	table := NewTable()
	table.Lock()
	defer table.Unlock()

	require.NoError(t, table.Add(NewMap("mpathb")))
	require.NoError(t, table.Add(NewMap("mpatha")))

	err := table.Add(NewMap("mpatha"))
	require.Error(t, err)
	assert.Equal(t, errors.ErrorCode(errors.MultipathMapExists), errors.GetCode(err))

	assert.Equal(t, 2, table.Len())
	assert.NotNil(t, table.Find("mpatha"))
	assert.Nil(t, table.Find("mpathc"))

	maps := table.Maps()
	require.Len(t, maps, 2)
	assert.Equal(t, "mpatha", maps[0].Alias)
	assert.Equal(t, "mpathb", maps[1].Alias)

	removed := table.Remove("mpatha")
	require.NotNil(t, removed)
	assert.Equal(t, "mpatha", removed.Alias)
	assert.Nil(t, table.Remove("mpatha"))
	assert.Equal(t, 1, table.Len())
}

func TestTableSnapshot(t *testing.T) {
	env := newTestEnv(t, Options{}, "mpatha", "mpathb")
	env.kernel.set("mpatha", 4)

	env.table.Lock()
	status, err := dm.ParseMultipathStatus("2 0 0 0 1 1 A 0 2 0 8:16 A 0 8:32 F 2")
	require.NoError(t, err)
	env.table.Find("mpatha").Status = status
	env.table.Unlock()

	require.NoError(t, env.manager.Start("mpatha"))
	require.Eventually(t, func() bool {
		return env.kernel.parkedCount("mpatha") == 1
	}, waitFor, tick)

	views := env.table.Snapshot()
	require.Len(t, views, 2)

	a := views[0]
	assert.Equal(t, "mpatha", a.Alias)
	assert.Equal(t, 1, a.ActivePaths)
	assert.Equal(t, 2, a.TotalPaths)
	require.NotNil(t, a.Waiter)
	assert.Equal(t, uint32(4), a.Waiter.EventNr)
	assert.NotEmpty(t, a.Waiter.ID)

	assert.Nil(t, views[1].Waiter)

	b, ok := env.table.Get("mpathb")
	require.True(t, ok)
	assert.Equal(t, "mpathb", b.Alias)

	_, ok = env.table.Get("mpathz")
	assert.False(t, ok)
}
