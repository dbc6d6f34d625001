// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package discovery

import (
	"github.com/pilebones/go-udev/netlink"
	"github.com/stratastor/mpathd/pkg/errors"
)

// Start connects to the udev netlink socket and begins emitting events.
func (m *Monitor) Start() error {
	m.logger.Info("starting udev monitor via netlink", "subsystem", "block")

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		return errors.Wrap(err, errors.MultipathUdevMonitorFailed).
			WithMetadata("operation", "netlink_connect")
	}
	m.conn = conn

	queue := make(chan netlink.UEvent)
	netlinkErrors := make(chan error, 1)
	matcher := &netlink.RuleDefinitions{
		Rules: []netlink.RuleDefinition{
			{Env: map[string]string{"SUBSYSTEM": "block"}},
		},
	}
	m.quit = conn.Monitor(queue, netlinkErrors, matcher)

	go m.run(queue, netlinkErrors)
	return nil
}

// Stop closes the netlink connection.
func (m *Monitor) Stop() error {
	m.once.Do(func() {
		m.logger.Info("stopping udev monitor")
		m.cancel()

		if m.quit != nil {
			select {
			case m.quit <- struct{}{}:
			default:
			}
		}
		if conn, ok := m.conn.(*netlink.UEventConn); ok {
			conn.Close()
		}
	})
	return nil
}

func (m *Monitor) run(queue <-chan netlink.UEvent, netlinkErrors <-chan error) {
	for {
		select {
		case <-m.ctx.Done():
			m.logger.Info("netlink monitor stopped")
			return

		case uevent := <-queue:
			env := uevent.Env
			if env == nil {
				continue
			}
			if _, ok := env["ACTION"]; !ok {
				env["ACTION"] = string(uevent.Action)
			}
			if ev, ok := relevant(env); ok {
				ev.KObj = uevent.KObj
				m.emit(ev)
			}

		case err := <-netlinkErrors:
			if m.ctx.Err() != nil {
				return
			}
			m.logger.Warn("netlink monitor error", "err",
				errors.Wrap(err, errors.MultipathUdevMonitorFailed))
		}
	}
}
