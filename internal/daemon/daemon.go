// Package daemon runs the coordinator as a long-lived service: HTTP API,
// scheduled scans and watch-triggered scans.
package daemon

import (
	"context"
	"fmt"
	"time"

	"github.com/Nomadcxx/embress/internal/coordinator"
	"github.com/Nomadcxx/embress/internal/logging"
	"github.com/Nomadcxx/embress/internal/media"
	"github.com/Nomadcxx/embress/internal/watcher"
)

// Daemon manages the background service
type Daemon struct {
	coord   *coordinator.Coordinator
	server  *Server
	watch   bool
	trigger *watcher.ScanTrigger
	watcher *watcher.Watcher
	logger  *logging.Logger
}

// Config holds daemon settings.
type Config struct {
	Coordinator *coordinator.Coordinator
	Server      *Server
	// Watch enables fsnotify-triggered sub-path scans.
	Watch      bool
	Debounce   time.Duration
	Layout     media.Layout
	Extensions media.Extensions
	Logger     *logging.Logger
}

// New creates a Daemon.
func New(cfg Config) (*Daemon, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	d := &Daemon{coord: cfg.Coordinator, server: cfg.Server, watch: cfg.Watch, logger: logger}

	if cfg.Watch {
		d.trigger = watcher.NewScanTrigger(watcher.TriggerConfig{
			Scanner:    cfg.Coordinator,
			Layout:     cfg.Layout,
			Extensions: cfg.Extensions,
			Debounce:   cfg.Debounce,
			Logger:     logger,
		})
		cfg.Coordinator.OnWrite(d.trigger.IgnoreWrites)
		w, err := watcher.NewWatcher(d.trigger, watcher.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		roots, err := watcher.WatchRoots(cfg.Layout.Root)
		if err != nil {
			w.Close()
			return nil, fmt.Errorf("unable to list library sections: %w", err)
		}
		if err := w.Watch(roots); err != nil {
			w.Close()
			return nil, fmt.Errorf("unable to watch directories: %w", err)
		}
		d.watcher = w
	}
	return d, nil
}

// Run starts every component and blocks until ctx is cancelled or one of
// them fails. Shutdown waits up to shutdownTimeout for a running scan.
func (d *Daemon) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	if _, err := d.coord.StartScheduler(); err != nil {
		return err
	}

	errChan := make(chan error, 2)
	go func() {
		errChan <- d.server.Start()
	}()
	if d.watcher != nil {
		go func() {
			errChan <- d.watcher.Start()
		}()
	}

	d.logger.Info("daemon", "embressd started",
		logging.F("root", d.coord.Root()),
		logging.F("watch", d.watch),
		logging.F("scheduler_enabled", d.coord.SchedulerEnabled()))

	var runErr error
	select {
	case <-ctx.Done():
		d.logger.Info("daemon", "Shutting down")
	case err := <-errChan:
		if err != nil {
			runErr = fmt.Errorf("service error: %w", err)
		}
	}

	d.stop(shutdownTimeout)
	return runErr
}

func (d *Daemon) stop(timeout time.Duration) {
	d.server.SetHealthy(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if d.watcher != nil {
		d.watcher.Close()
		d.trigger.Shutdown()
	}
	d.coord.Cancel()
	d.coord.StopScheduler(shutdownCtx)
	if err := d.server.Shutdown(shutdownCtx); err != nil {
		d.logger.Warn("daemon", "HTTP shutdown incomplete", logging.F("error", err.Error()))
	}
	d.logger.Info("daemon", "embressd stopped")
}
