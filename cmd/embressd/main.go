package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Nomadcxx/embress/internal/api"
	"github.com/Nomadcxx/embress/internal/app"
	"github.com/Nomadcxx/embress/internal/config"
	"github.com/Nomadcxx/embress/internal/daemon"
	"github.com/Nomadcxx/embress/internal/logging"
	"github.com/Nomadcxx/embress/internal/media"
)

var (
	cfgFile         string
	addr            string
	watch           bool
	shutdownTimeout time.Duration
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "embressd",
		Short: "embress daemon service",
		Long: `embressd serves the embress HTTP API, runs scheduled scans and, when
enabled, rescans show folders shortly after files change in them.`,
		SilenceUsage: true,
		RunE:         runDaemon,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&addr, "addr", "", "listen address (default: api.addr from config)")
	rootCmd.PersistentFlags().BoolVar(&watch, "watch", false, "rescan show folders on file changes (overrides watch.enabled)")
	rootCmd.PersistentFlags().DurationVar(&shutdownTimeout, "shutdown-timeout", 30*time.Second, "how long to wait for a running scan on shutdown")

	rootCmd.AddCommand(newInstallCmd())
	rootCmd.AddCommand(newUninstallCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runDaemon(cmd *cobra.Command, args []string) error {
	var (
		cfg *config.Config
		err error
	)
	if cfgFile != "" {
		cfg, err = config.LoadFrom(cfgFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("unable to load config: %w", err)
	}
	if addr != "" {
		cfg.API.Addr = addr
	}
	if cmd.Flags().Changed("watch") {
		cfg.Watch.Enabled = watch
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Init(ctx, cfg, app.Options{Console: true, AsyncNotify: true})
	if err != nil {
		return err
	}
	defer a.Close()
	logger := a.Logger

	if cfg.API.AccessKey == "" {
		logger.Warn("daemon", "api.access_key is empty, the API is unauthenticated",
			logging.F("addr", cfg.API.Addr))
	}

	apiServer := api.NewServer(a.Coordinator, cfg.API, a.Activity, logger)
	server := daemon.NewServer(daemon.ServerConfig{
		Addr:        cfg.API.Addr,
		Coordinator: a.Coordinator,
		Metrics:     a.Metrics,
		API:         apiServer.Handler(),
		FSTimeout:   cfg.FSTimeout(),
		Logger:      logger,
	})

	d, err := daemon.New(daemon.Config{
		Coordinator: a.Coordinator,
		Server:      server,
		Watch:       cfg.Watch.Enabled,
		Debounce:    cfg.WatchDebounce(),
		Layout:      media.NewLayout(cfg.Library.Root, cfg.Library.MediaTypes),
		Extensions: media.NewExtensions(cfg.Library.VideoExtensions, cfg.Library.SubtitleExtensions,
			cfg.Library.AudioExtensions, cfg.Library.PictureExtensions),
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("unable to start watcher: %w", err)
	}

	logger.Info("daemon", "Configuration loaded",
		logging.F("addr", cfg.API.Addr),
		logging.F("interval", cfg.ScanInterval().String()),
		logging.F("log_file", logger.FilePath()))

	return d.Run(ctx, shutdownTimeout)
}

func newInstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Install embressd as a systemd service",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("To install embressd as a systemd service:")
			fmt.Println()
			fmt.Println("1. Copy the binary:")
			fmt.Println("   sudo cp embressd /usr/local/bin/")
			fmt.Println()
			fmt.Println("2. Copy the service file:")
			fmt.Println("   sudo cp embressd.service /etc/systemd/system/")
			fmt.Println()
			fmt.Println("3. Reload systemd:")
			fmt.Println("   sudo systemctl daemon-reload")
			fmt.Println()
			fmt.Println("4. Enable and start:")
			fmt.Println("   sudo systemctl enable embressd")
			fmt.Println("   sudo systemctl start embressd")
			fmt.Println()
			fmt.Println("5. Check status:")
			fmt.Println("   sudo systemctl status embressd")
			fmt.Println("   journalctl -u embressd -f")
		},
	}
}

func newUninstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall",
		Short: "Uninstall embressd systemd service",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("To uninstall embressd:")
			fmt.Println()
			fmt.Println("1. Stop and disable:")
			fmt.Println("   sudo systemctl stop embressd")
			fmt.Println("   sudo systemctl disable embressd")
			fmt.Println()
			fmt.Println("2. Remove files:")
			fmt.Println("   sudo rm /etc/systemd/system/embressd.service")
			fmt.Println("   sudo rm /usr/local/bin/embressd")
			fmt.Println()
			fmt.Println("3. Reload systemd:")
			fmt.Println("   sudo systemctl daemon-reload")
		},
	}
}
