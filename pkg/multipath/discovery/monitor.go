// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package discovery

import (
	"context"
	"strings"
	"sync"

	"github.com/stratastor/logger"
)

// Event is a udev event for a multipath map.
type Event struct {
	Action string
	Name   string // DM_NAME
	UUID   string // DM_UUID
	KObj   string
}

// Monitor watches udev for device-mapper block events belonging to
// multipath maps.
//
// On Linux it reads the kernel's netlink socket directly. Elsewhere Start
// only logs a warning and the periodic sync does all the work.
type Monitor struct {
	logger logger.Logger
	ctx    context.Context
	cancel context.CancelFunc

	events chan Event
	once   sync.Once

	// netlink connection and its quit channel, linux only
	conn any
	quit chan struct{}
}

func NewMonitor(l logger.Logger, bufferSize int) *Monitor {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Monitor{
		logger: l,
		ctx:    ctx,
		cancel: cancel,
		events: make(chan Event, bufferSize),
	}
}

// Events returns the channel of multipath events. It is never closed.
func (m *Monitor) Events() <-chan Event {
	return m.events
}

// relevant reports whether a block event belongs to a multipath map.
func relevant(env map[string]string) (Event, bool) {
	uuid := env["DM_UUID"]
	if !strings.HasPrefix(uuid, UUIDPrefix) {
		return Event{}, false
	}
	return Event{
		Action: env["ACTION"],
		Name:   env["DM_NAME"],
		UUID:   uuid,
	}, true
}

func (m *Monitor) emit(ev Event) {
	select {
	case m.events <- ev:
	case <-m.ctx.Done():
	default:
		// A sync is already pending; the next one sees this change too
		m.logger.Debug("udev event dropped", "action", ev.Action, "map", ev.Name)
	}
}
