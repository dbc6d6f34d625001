// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package multipath

import (
	"slices"
	"strings"
	"sync"

	"github.com/stratastor/mpathd/pkg/errors"
)

// Table is the process-wide set of known multipath maps.
//
// The embedded mutex guards the set itself, every field of every Map in it
// and the waiter pairing. Methods other than Snapshot and Get expect the
// caller to hold the lock; this lets callers such as reconciliation
// functions perform several operations in one critical section.
type Table struct {
	sync.Mutex
	maps map[string]*Map
}

func NewTable() *Table {
	return &Table{maps: make(map[string]*Map)}
}

// Find returns the map named alias, or nil.
func (t *Table) Find(alias string) *Map {
	return t.maps[alias]
}

// Add inserts mpp. Aliases are unique.
func (t *Table) Add(mpp *Map) error {
	if _, ok := t.maps[mpp.Alias]; ok {
		return errors.New(errors.MultipathMapExists, "").
			WithMetadata("map", mpp.Alias)
	}
	t.maps[mpp.Alias] = mpp
	return nil
}

// Remove drops alias from the table and returns the removed map. It does
// not touch the waiter pairing; callers stop the waiter first or let the
// waiter observe the removal through its reconciliation.
func (t *Table) Remove(alias string) *Map {
	mpp, ok := t.maps[alias]
	if !ok {
		return nil
	}
	delete(t.maps, alias)
	return mpp
}

// Maps returns the maps sorted by alias.
func (t *Table) Maps() []*Map {
	out := make([]*Map, 0, len(t.maps))
	for _, mpp := range t.maps {
		out = append(out, mpp)
	}
	slices.SortFunc(out, func(a, b *Map) int {
		return strings.Compare(a.Alias, b.Alias)
	})
	return out
}

func (t *Table) Len() int {
	return len(t.maps)
}

// Snapshot copies every map under the lock.
func (t *Table) Snapshot() []MapView {
	t.Lock()
	defer t.Unlock()

	maps := t.Maps()
	views := make([]MapView, 0, len(maps))
	for _, mpp := range maps {
		views = append(views, mpp.view())
	}
	return views
}

// Get copies a single map under the lock.
func (t *Table) Get(alias string) (MapView, bool) {
	t.Lock()
	defer t.Unlock()

	mpp := t.Find(alias)
	if mpp == nil {
		return MapView{}, false
	}
	return mpp.view(), true
}
