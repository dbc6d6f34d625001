// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

// Package discovery keeps the multipath Table in step with the kernel's
// device-mapper maps. New multipath maps are added and get an event waiter;
// maps that disappeared have their waiter stopped and are dropped.
package discovery

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/stratastor/logger"
	"github.com/stratastor/mpathd/pkg/errors"
	"github.com/stratastor/mpathd/pkg/multipath"
	"github.com/stratastor/mpathd/pkg/multipath/dm"
)

// UUIDPrefix marks device-mapper maps created by multipath.
const UUIDPrefix = "mpath-"

// Lister enumerates device-mapper maps. *dm.Control implements it.
type Lister interface {
	List() ([]dm.Device, error)
	Info(name string) (dm.Info, error)
	TableStatus(name string) ([]dm.Target, error)
}

// Result summarizes one sync.
type Result struct {
	Added   []string `json:"added"`
	Removed []string `json:"removed"`
	Total   int      `json:"total"`
}

type Syncer struct {
	logger  logger.Logger
	dev     Lister
	manager *multipath.Manager
	update  multipath.UpdateFunc

	mu sync.Mutex
}

// NewSyncer returns a Syncer that populates new maps with update before
// starting their waiters.
func NewSyncer(l logger.Logger, dev Lister, manager *multipath.Manager, update multipath.UpdateFunc) *Syncer {
	return &Syncer{
		logger:  l,
		dev:     dev,
		manager: manager,
		update:  update,
	}
}

// Sync reconciles the table's set of maps with the kernel.
func (s *Syncer) Sync(ctx context.Context) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	devices, err := s.dev.List()
	if err != nil {
		return nil, errors.Wrap(err, errors.MultipathSyncFailed).
			WithMetadata("operation", "list_devices")
	}

	present := make(map[string]bool, len(devices))
	for _, d := range devices {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, errors.MultipathSyncFailed)
		}
		ok, err := s.isMultipath(d.Name)
		if err != nil {
			if errors.Is(err, dm.ErrNoDevice) {
				continue
			}
			s.logger.Warn("failed to inspect device", "device", d.Name, "err", err)
			continue
		}
		if ok {
			present[d.Name] = true
		}
	}

	table := s.manager.Table()
	table.Lock()
	defer table.Unlock()

	res := &Result{}
	for _, mpp := range table.Maps() {
		if present[mpp.Alias] {
			continue
		}
		s.manager.StopWaiter(mpp)
		table.Remove(mpp.Alias)
		res.Removed = append(res.Removed, mpp.Alias)
		s.logger.Info("map removed", "map", mpp.Alias)
	}

	names := make([]string, 0, len(present))
	for name := range present {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if table.Find(name) != nil {
			continue
		}

		mpp := multipath.NewMap(name)
		if err := table.Add(mpp); err != nil {
			return nil, err
		}
		if s.update != nil {
			if err := s.update(table, name); err != nil {
				if errors.Is(err, multipath.ErrMapGone) {
					continue
				}
				s.logger.Warn("failed to read new map", "map", name, "err", err)
			}
		}

		res.Added = append(res.Added, name)
		s.logger.Info("map added", "map", name)

		if err := s.manager.StartWaiter(mpp); err != nil {
			// Left unmonitored until started again
			s.logger.Error("failed to start event checker", "map", name, "err", err)
		}
	}

	res.Total = table.Len()
	if len(res.Added) > 0 || len(res.Removed) > 0 {
		s.logger.Info("multipath maps synchronized",
			"added", len(res.Added), "removed", len(res.Removed), "total", res.Total)
	}
	return res, nil
}

func (s *Syncer) isMultipath(name string) (bool, error) {
	info, err := s.dev.Info(name)
	if err != nil {
		return false, err
	}
	if strings.HasPrefix(info.UUID, UUIDPrefix) {
		return true, nil
	}

	targets, err := s.dev.TableStatus(name)
	if err != nil {
		return false, err
	}
	return len(targets) > 0 && targets[0].Type == dm.TargetMultipath, nil
}
