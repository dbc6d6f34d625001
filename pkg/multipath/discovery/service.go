// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package discovery

import (
	"context"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/stratastor/logger"
	"github.com/stratastor/mpathd/pkg/errors"
)

type Config struct {
	Enabled     bool
	Interval    time.Duration
	UdevMonitor bool
}

// Service runs the Syncer on a schedule and whenever udev reports a
// multipath map change.
type Service struct {
	logger logger.Logger
	syncer *Syncer
	cfg    Config
	ctx    context.Context
	cancel context.CancelFunc

	scheduler gocron.Scheduler
	monitor   *Monitor

	// kick coalesces udev events into one pending sync
	kick chan struct{}
	wg   sync.WaitGroup
}

func NewService(l logger.Logger, syncer *Syncer, cfg Config) (*Service, error) {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, errors.Wrap(err, errors.OperationFailed).
			WithMetadata("operation", "create_task_scheduler")
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		logger:    l,
		syncer:    syncer,
		cfg:       cfg,
		ctx:       ctx,
		cancel:    cancel,
		scheduler: scheduler,
		kick:      make(chan struct{}, 1),
	}
	if cfg.UdevMonitor {
		s.monitor = NewMonitor(l, 0)
	}
	return s, nil
}

// Start runs an initial sync and schedules the periodic one.
func (s *Service) Start(ctx context.Context) error {
	s.logger.Info("starting multipath discovery")

	if _, err := s.syncer.Sync(ctx); err != nil {
		s.logger.Error("initial multipath sync failed", "err", err)
		return err
	}

	if s.cfg.Enabled && s.cfg.Interval > 0 {
		_, err := s.scheduler.NewJob(
			gocron.DurationJob(s.cfg.Interval),
			gocron.NewTask(func() {
				if _, err := s.syncer.Sync(s.ctx); err != nil {
					s.logger.Error("periodic multipath sync failed", "err", err)
				}
			}),
			gocron.WithName("multipath_sync"),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return errors.Wrap(err, errors.MultipathSyncFailed).
				WithMetadata("operation", "schedule_sync")
		}
	}

	if s.monitor != nil {
		if err := s.monitor.Start(); err != nil {
			s.logger.Warn("failed to start udev monitor, continuing without it", "err", err)
			s.monitor = nil
		} else {
			s.wg.Add(2)
			go s.consume()
			go s.syncOnKick()
		}
	}

	s.scheduler.Start()

	s.logger.Info("multipath discovery started",
		"interval", s.cfg.Interval, "udev", s.monitor != nil)
	return nil
}

// Trigger runs a sync immediately.
func (s *Service) Trigger(ctx context.Context) (*Result, error) {
	return s.syncer.Sync(ctx)
}

func (s *Service) Stop() error {
	s.logger.Info("stopping multipath discovery")

	if err := s.scheduler.Shutdown(); err != nil {
		s.logger.Error("error stopping scheduler", "err", err)
	}
	if s.monitor != nil {
		if err := s.monitor.Stop(); err != nil {
			s.logger.Error("error stopping udev monitor", "err", err)
		}
	}

	s.cancel()
	s.wg.Wait()

	s.logger.Info("multipath discovery stopped")
	return nil
}

func (s *Service) consume() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case ev := <-s.monitor.Events():
			s.logger.Debug("multipath udev event", "action", ev.Action, "map", ev.Name, "uuid", ev.UUID)
			select {
			case s.kick <- struct{}{}:
			default:
			}
		}
	}
}

func (s *Service) syncOnKick() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.kick:
			if _, err := s.syncer.Sync(s.ctx); err != nil && s.ctx.Err() == nil {
				s.logger.Error("udev triggered multipath sync failed", "err", err)
			}
		}
	}
}
