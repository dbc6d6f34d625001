// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package multipath

import (
	"time"

	"github.com/stratastor/mpathd/pkg/multipath/dm"
)

// Map is the daemon's record of one multipath device. All fields are
// guarded by the owning Table's lock.
type Map struct {
	Alias     string
	UUID      string
	Major     uint32
	Minor     uint32
	Size      uint64 // sectors
	EventNr   uint32
	OpenCount int32
	Suspended bool
	Status    *dm.MultipathStatus
	UpdatedAt time.Time

	// waiter is the paired event waiter, set and cleared together with
	// Waiter.mpp.
	waiter *Waiter
}

func NewMap(alias string) *Map {
	return &Map{Alias: alias}
}

// Waiter returns the paired waiter or nil. The table lock must be held.
func (m *Map) Waiter() *Waiter {
	return m.waiter
}

// MapView is a lock-free copy of a Map for API responses.
type MapView struct {
	Alias       string              `json:"alias"`
	UUID        string              `json:"uuid,omitempty"`
	Major       uint32              `json:"major"`
	Minor       uint32              `json:"minor"`
	Size        uint64              `json:"size_sectors"`
	EventNr     uint32              `json:"event_nr"`
	OpenCount   int32               `json:"open_count"`
	Suspended   bool                `json:"suspended"`
	ActivePaths int                 `json:"active_paths"`
	TotalPaths  int                 `json:"total_paths"`
	Status      *dm.MultipathStatus `json:"status,omitempty"`
	UpdatedAt   time.Time           `json:"updated_at"`
	Waiter      *WaiterView         `json:"waiter,omitempty"`
}

type WaiterView struct {
	ID        string    `json:"id"`
	EventNr   uint32    `json:"event_nr"`
	StartedAt time.Time `json:"started_at"`
}

func (m *Map) view() MapView {
	v := MapView{
		Alias:     m.Alias,
		UUID:      m.UUID,
		Major:     m.Major,
		Minor:     m.Minor,
		Size:      m.Size,
		EventNr:   m.EventNr,
		OpenCount: m.OpenCount,
		Suspended: m.Suspended,
		Status:    m.Status,
		UpdatedAt: m.UpdatedAt,
	}
	if m.Status != nil {
		v.ActivePaths = m.Status.ActivePaths()
		v.TotalPaths = m.Status.TotalPaths()
	}
	if w := m.waiter; w != nil {
		v.Waiter = &WaiterView{
			ID:        w.id.String(),
			EventNr:   w.eventNr.Load(),
			StartedAt: w.started,
		}
	}
	return v
}
