// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package multipath

import (
	"time"

	"github.com/stratastor/logger"
	"github.com/stratastor/mpathd/pkg/errors"
	"github.com/stratastor/mpathd/pkg/multipath/dm"
)

// Updater is the default reconciliation: it refreshes a Map from the
// kernel's device info and table status.
type Updater struct {
	logger logger.Logger
	dev    DeviceSource
}

func NewUpdater(l logger.Logger, dev DeviceSource) *Updater {
	return &Updater{logger: l, dev: dev}
}

// Update implements UpdateFunc. A map the kernel no longer has, or whose
// table is no longer a multipath table, is removed from t and ErrMapGone
// is returned.
func (u *Updater) Update(t *Table, alias string) error {
	mpp := t.Find(alias)
	if mpp == nil {
		return errors.New(errors.MultipathMapGone, "map not in table").
			WithMetadata("map", alias)
	}

	info, err := u.dev.Info(alias)
	if err != nil {
		return u.failed(t, alias, err)
	}

	targets, err := u.dev.TableStatus(alias)
	if err != nil {
		return u.failed(t, alias, err)
	}

	var (
		status *dm.MultipathStatus
		size   uint64
	)
	for i, tgt := range targets {
		size += tgt.Length
		if i > 0 {
			continue
		}
		if tgt.Type != dm.TargetMultipath {
			t.Remove(alias)
			u.logger.Info("map is no longer multipath", "map", alias, "target", tgt.Type)
			return errors.New(errors.MultipathMapGone, "not a multipath table").
				WithMetadata("map", alias).
				WithMetadata("target", tgt.Type)
		}
		if status, err = dm.ParseMultipathStatus(tgt.Params); err != nil {
			return errors.Wrap(err, errors.MultipathUpdateFailed).
				WithMetadata("map", alias)
		}
	}

	prevActive, prevTotal := -1, -1
	if mpp.Status != nil {
		prevActive, prevTotal = mpp.Status.ActivePaths(), mpp.Status.TotalPaths()
	}

	mpp.UUID = info.UUID
	mpp.Major = info.Major
	mpp.Minor = info.Minor
	mpp.EventNr = info.EventNr
	mpp.OpenCount = info.OpenCount
	mpp.Suspended = info.Suspended
	if len(targets) > 0 {
		mpp.Size = size
		mpp.Status = status
	}
	mpp.UpdatedAt = time.Now()

	if status != nil && prevActive >= 0 &&
		(status.ActivePaths() != prevActive || status.TotalPaths() != prevTotal) {
		u.logger.Info("path state changed", "map", alias,
			"active", status.ActivePaths(), "total", status.TotalPaths(),
			"prev_active", prevActive, "prev_total", prevTotal)
	}

	return nil
}

func (u *Updater) failed(t *Table, alias string, err error) error {
	if errors.Is(err, dm.ErrNoDevice) {
		t.Remove(alias)
		u.logger.Info("map removed", "map", alias)
		return errors.Wrap(err, errors.MultipathMapGone).
			WithMetadata("map", alias)
	}
	return errors.Wrap(err, errors.MultipathUpdateFailed).
		WithMetadata("map", alias)
}
