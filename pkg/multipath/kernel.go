// SPDX-License-Identifier: Apache-2.0

package multipath

import (
	"context"

	"github.com/stratastor/mpathd/pkg/multipath/dm"
)

// EventSource is the kernel side of an event waiter. *dm.Control
// implements it.
type EventSource interface {
	// EventNr returns the current event sequence number of name.
	EventNr(name string) (uint32, error)
	// WaitEvent blocks until name's event number differs from eventNr.
	// It returns ctx.Err() when ctx is cancelled first.
	WaitEvent(ctx context.Context, name string, eventNr uint32) error
}

// DeviceSource reads the state the default Updater reconciles against.
type DeviceSource interface {
	Info(name string) (dm.Info, error)
	TableStatus(name string) ([]dm.Target, error)
}

var (
	_ EventSource  = (*dm.Control)(nil)
	_ DeviceSource = (*dm.Control)(nil)
)
