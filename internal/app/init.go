// Package app wires the shared runtime used by both the CLI and the daemon.
package app

import (
	"context"
	"fmt"

	"github.com/Nomadcxx/embress/internal/activity"
	"github.com/Nomadcxx/embress/internal/config"
	"github.com/Nomadcxx/embress/internal/coordinator"
	"github.com/Nomadcxx/embress/internal/database"
	"github.com/Nomadcxx/embress/internal/jellyfin"
	"github.com/Nomadcxx/embress/internal/logging"
	"github.com/Nomadcxx/embress/internal/metrics"
	"github.com/Nomadcxx/embress/internal/notify"
	"github.com/Nomadcxx/embress/internal/paths"
)

// App holds the opened store, logger and coordinator.
type App struct {
	Config      *config.Config
	Logger      *logging.Logger
	DB          *database.MediaDB
	Activity    *activity.Logger
	Notify      *notify.Manager
	Metrics     *metrics.Metrics
	Coordinator *coordinator.Coordinator
}

// Options tunes Init for the calling binary.
type Options struct {
	// Console mirrors log output to stdout.
	Console bool
	// AsyncNotify sends notifications in the background (daemon).
	AsyncNotify bool
	// ActivityDir overrides the default audit trail directory.
	ActivityDir string
	// Logger replaces the logger built from cfg.Logging.
	Logger *logging.Logger
}

// Init opens everything a run needs. The caller must Close the App.
func Init(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	a := &App{Config: cfg, Metrics: metrics.New()}

	if opts.Logger != nil {
		a.Logger = opts.Logger
	} else {
		lc := cfg.LoggerConfig()
		lc.Console = opts.Console
		logger, err := logging.New(lc)
		if err != nil {
			return nil, fmt.Errorf("unable to create logger: %w", err)
		}
		a.Logger = logger
	}

	db, err := database.OpenPath(cfg.GetDatabasePath())
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	a.DB = db

	activityDir := opts.ActivityDir
	if activityDir == "" {
		if activityDir, err = paths.ActivityDir(); err != nil {
			a.Close()
			return nil, err
		}
	}
	if a.Activity, err = activity.NewLogger(activityDir); err != nil {
		a.Close()
		return nil, fmt.Errorf("unable to open activity log: %w", err)
	}
	if days := cfg.Scan.ActivityDays; days > 0 {
		if err := a.Activity.PruneOld(days); err != nil {
			a.Logger.Warn("app", "Could not prune old activity files", logging.F("error", err.Error()))
		}
	}

	a.Notify = InitNotify(cfg, opts.AsyncNotify, a.Logger)

	a.Coordinator, err = coordinator.New(ctx, coordinator.Options{
		Config:   cfg,
		Store:    db,
		Activity: a.Activity,
		Notify:   a.Notify,
		Metrics:  a.Metrics,
		Logger:   a.Logger,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// InitNotify registers the log notifier and, when configured, email and
// Jellyfin library refreshes.
func InitNotify(cfg *config.Config, async bool, logger *logging.Logger) *notify.Manager {
	mgr := notify.NewManager(async, logger)
	mgr.Register(notify.NewLogNotifier(logger))

	e := cfg.Notify.Email
	if e.Enabled {
		email := notify.NewEmailNotifier(notify.EmailConfig{
			Enabled:        true,
			Host:           e.Host,
			Port:           e.Port,
			Username:       e.Username,
			Password:       e.Password,
			From:           e.From,
			To:             e.To,
			OnlyNoteworthy: true,
		})
		if email.Enabled() {
			mgr.Register(email)
		} else {
			logger.Warn("app", "Email notifications enabled but host, from or to is missing")
		}
	}
	if jf := cfg.Notify.Jellyfin; jf.Enabled {
		client := jellyfin.NewClient(jellyfin.Config{URL: jf.URL, APIKey: jf.APIKey})
		mgr.Register(notify.NewJellyfinNotifier(client, true))
		logger.Info("app", "Jellyfin refresh enabled", logging.F("url", jf.URL))
	}
	return mgr
}

// Close releases everything Init opened. Pending async notifications are
// flushed first.
func (a *App) Close() error {
	if a.Notify != nil {
		a.Notify.Close()
	}
	if a.Activity != nil {
		a.Activity.Close()
	}
	var err error
	if a.DB != nil {
		err = a.DB.Close()
	}
	if a.Logger != nil {
		a.Logger.Close()
	}
	return err
}
