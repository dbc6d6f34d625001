// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package lifecycle

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/stratastor/mpathd/pkg/errors"
)

var (
	mu            sync.Mutex
	shutdownHooks []func()
	reloadHooks   []func()
	cancel        context.CancelFunc
	shutdownOnce  sync.Once

	// exit is swapped out by tests.
	exit = os.Exit
)

// RegisterShutdownHook adds a hook run on SIGTERM/SIGINT. Hooks run in
// reverse registration order so later components stop before the ones
// they depend on.
func RegisterShutdownHook(hook func()) {
	mu.Lock()
	defer mu.Unlock()
	shutdownHooks = append(shutdownHooks, hook)
}

// RegisterReloadHook adds a hook run on SIGHUP.
func RegisterReloadHook(hook func()) {
	mu.Lock()
	defer mu.Unlock()
	reloadHooks = append(reloadHooks, hook)
}

func RegisterContextCanceller(c context.CancelFunc) {
	mu.Lock()
	defer mu.Unlock()
	cancel = c
}

func HandleSignals(ctx context.Context) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)
	defer signal.Stop(stop)

	for {
		select {
		case sig := <-stop:
			switch sig {
			case syscall.SIGTERM, syscall.SIGINT:
				Shutdown()
				exit(0)
				return
			case syscall.SIGHUP:
				reload()
			}
		case <-ctx.Done():
			return
		}
	}
}

// Shutdown cancels the root context and runs the shutdown hooks once.
func Shutdown() {
	shutdownOnce.Do(func() {
		mu.Lock()
		c := cancel
		hooks := append([]func(){}, shutdownHooks...)
		mu.Unlock()

		// Cancel context first
		if c != nil {
			c()
		}
		for i := len(hooks) - 1; i >= 0; i-- {
			hooks[i]()
		}
	})
}

func reload() {
	mu.Lock()
	hooks := append([]func(){}, reloadHooks...)
	mu.Unlock()

	for _, hook := range hooks {
		hook()
	}
}

// EnsureSingleInstance takes an exclusive flock on lockPath and records the
// current PID in pidPath. The lock is released by a shutdown hook, or by the
// kernel when the process dies.
func EnsureSingleInstance(lockPath, pidPath string) error {
	if lockPath == "" || pidPath == "" {
		return errors.New(errors.LifecyclePID, "lock and PID file paths are required")
	}

	lock := flock.New(lockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return errors.Wrap(err, errors.LifecycleLock).
			WithMetadata("lock_path", lockPath)
	}
	if !locked {
		re := errors.New(errors.LifecycleLock, "another instance is already running").
			WithMetadata("lock_path", lockPath)
		if pid, err := ReadPID(pidPath); err == nil {
			re.WithMetadata("pid", strconv.Itoa(pid))
		}
		return re
	}

	if err := os.WriteFile(pidPath, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0644); err != nil {
		lock.Unlock()
		return errors.Wrap(err, errors.LifecyclePID).
			WithMetadata("pid_path", pidPath)
	}

	RegisterShutdownHook(func() {
		os.Remove(pidPath)
		lock.Unlock()
	})

	return nil
}

// ReadPID returns the PID recorded in pidPath.
func ReadPID(pidPath string) (int, error) {
	pidBytes, err := os.ReadFile(pidPath)
	if err != nil {
		return 0, errors.Wrap(err, errors.LifecyclePID).
			WithMetadata("pid_path", pidPath)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(pidBytes)))
	if err != nil {
		return 0, errors.Wrap(err, errors.LifecyclePID).
			WithMetadata("pid_path", pidPath)
	}
	return pid, nil
}
