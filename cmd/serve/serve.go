// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package serve

import (
	"context"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sevlyar/go-daemon"
	"github.com/spf13/cobra"
	"github.com/stratastor/logger"
	"github.com/stratastor/mpathd/config"
	"github.com/stratastor/mpathd/internal/constants"
	"github.com/stratastor/mpathd/pkg/lifecycle"
	"github.com/stratastor/mpathd/pkg/multipath"
	"github.com/stratastor/mpathd/pkg/multipath/discovery"
	"github.com/stratastor/mpathd/pkg/multipath/dm"
	"github.com/stratastor/mpathd/pkg/server"
)

var detached bool

func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the multipath event daemon",
		Run:   runServe,
	}

	cmd.Flags().BoolVarP(&detached, "detach", "d", false, "Run as a daemon")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) {
	cfg := config.GetConfig()
	log, err := logger.NewTag(config.NewLoggerConfig(cfg), "serve")
	if err != nil {
		panic(err)
	}

	if detached || cfg.Server.Daemonize {
		ctx := &daemon.Context{
			LogFileName: cfg.Logs.Path,
			LogFilePerm: 0640,
			WorkDir:     "/",
			Umask:       027,
			Args:        []string{"mpathd", "serve"},
		}

		d, err := ctx.Reborn()
		if err != nil {
			log.Error("Failed to start daemon", "err", err)
			os.Exit(1)
		}

		if d != nil {
			log.Info("mpathd is running as a daemon", "pid", d.Pid)
			return
		}
		defer ctx.Release()
	}

	// Only the process that ends up serving takes the instance lock
	if err := lifecycle.EnsureSingleInstance(constants.MpathdLockPath, constants.MpathdPIDFilePath); err != nil {
		log.Error("Failed to start", "err", err)
		os.Exit(1)
	}

	if err := startServer(log, cfg); err != nil {
		log.Error("mpathd stopped with error", "err", err)
		lifecycle.Shutdown()
		os.Exit(1)
	}
}

func startServer(log logger.Logger, cfg *config.Config) error {
	lcfg := config.NewLoggerConfig(cfg)

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	lifecycle.RegisterContextCanceller(cancel)

	ctl, err := dm.Open(cfg.DM.ControlPath)
	if err != nil {
		return err
	}
	log.Info("device-mapper control opened", "path", cfg.DM.ControlPath, "version", ctl.VersionString())
	lifecycle.RegisterShutdownHook(func() {
		ctl.Close()
	})

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	mlog, err := logger.NewTag(lcfg, "multipath")
	if err != nil {
		return err
	}
	table := multipath.NewTable()
	updater := multipath.NewUpdater(mlog, ctl)
	manager := multipath.NewManager(mlog, table, ctl, updater.Update, multipath.Options{
		RescheduleDelay: cfg.Waiter.RescheduleDelay,
		StackSize:       cfg.Waiter.StackSize,
		LockMemory:      cfg.Waiter.LockMemory,
		Registerer:      registry,
	})
	lifecycle.RegisterShutdownHook(func() {
		log.Info("Stopping event waiters...", "active", manager.Active())
		sctx, scancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer scancel()
		if err := manager.Shutdown(sctx); err != nil {
			log.Error("Event waiters did not exit", "err", err, "active", manager.Active())
		}
	})

	dlog, err := logger.NewTag(lcfg, "discovery")
	if err != nil {
		return err
	}
	syncer := discovery.NewSyncer(dlog, ctl, manager, updater.Update)
	svc, err := discovery.NewService(dlog, syncer, discovery.Config{
		Enabled:     cfg.Discovery.Enabled,
		Interval:    cfg.Discovery.Interval,
		UdevMonitor: cfg.Discovery.UdevMonitor,
	})
	if err != nil {
		return err
	}
	if err := svc.Start(ctx); err != nil {
		return err
	}
	lifecycle.RegisterShutdownHook(func() {
		if err := svc.Stop(); err != nil {
			log.Error("Error stopping discovery", "err", err)
		}
	})
	// SIGHUP resynchronizes the device table with the kernel
	lifecycle.RegisterReloadHook(func() {
		if _, err := svc.Trigger(ctx); err != nil {
			log.Warn("Resync on SIGHUP failed", "err", err)
		}
	})

	lifecycle.RegisterShutdownHook(func() {
		log.Info("Shutting down server...")
		if err := server.Shutdown(context.Background()); err != nil {
			log.Error("Error during server shutdown", "err", err)
		}
	})

	// Start handling lifecycle signals (e.g., SIGTERM, SIGHUP)
	go lifecycle.HandleSignals(ctx)

	log.Info("Starting mpathd", "port", cfg.Server.Port, "maps", len(table.Snapshot()))
	err = server.Start(ctx, server.Deps{
		Manager:  manager,
		Trigger:  svc,
		Gatherer: registry,
	})
	if err != nil {
		return err
	}

	// Blocks until a signal-initiated shutdown has run every hook
	lifecycle.Shutdown()
	return nil
}
