package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Nomadcxx/embress/internal/app"
	"github.com/Nomadcxx/embress/internal/config"
	"github.com/Nomadcxx/embress/internal/ui"
)

var (
	version = "dev" // Set by build flags: -ldflags="-X main.version=1.0.0"
	cfgFile string
	verbose bool
	noColor bool
)

const asciiHeader = `               _
  ___ _ __ ___ | |__  _ __ ___  ___ ___
 / _ \ '_ ` + "`" + ` _ \| '_ \| '__/ _ \/ __/ __|
|  __/ | | | | | |_) | | |  __/\__ \__ \
 \___|_| |_| |_|_.__/|_|  \___||___/___/`

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "embress",
		Short: "Keep a media library named consistently, with rollback",
		Long: `embress scans a media library, renames episodes and their sidecar files
to a consistent "Show - S01E02" layout and records every change so that a
season or a whole run can be rolled back.

Features:
  - Configurable season/episode patterns
  - Whitelist for files and folders that must never be touched
  - Per-season and per-run rollback
  - Triage queue for files that could not be named`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			ui.Out = cmd.OutOrStdout()
			if noColor {
				ui.DisableColors()
			}
		},
	}

	// Add custom help function to show ASCII header
	originalHelpFunc := rootCmd.HelpFunc()
	rootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		if cmd.Name() == "embress" {
			printHeader(cmd, version)
		}
		originalHelpFunc(cmd, args)
	})

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.config/embress/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "mirror log output to stdout")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(newScanCmd())
	rootCmd.AddCommand(newRollbackCmd())
	rootCmd.AddCommand(newWhitelistCmd())
	rootCmd.AddCommand(newRulesCmd())
	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(newRecordsCmd())
	rootCmd.AddCommand(newShowsCmd())
	rootCmd.AddCommand(newActivityCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newReviewCmd())
	rootCmd.AddCommand(newSchedulerCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "embress %s\n", version)
		},
	}
}

func printHeader(cmd *cobra.Command, version string) {
	fmt.Fprintln(cmd.OutOrStdout(), asciiHeader)
	fmt.Fprintf(cmd.OutOrStdout(), "Version: %s\n\n", version)
}

func loadConfig() (*config.Config, error) {
	if cfgFile != "" {
		return config.LoadFrom(cfgFile)
	}
	return config.Load()
}

// openApp loads config and opens the store and coordinator.
func openApp(cmd *cobra.Command) (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return app.Init(cmd.Context(), cfg, app.Options{Console: verbose})
}

// cancelOnInterrupt cancels the running scan or rollback on Ctrl-C. Records
// for operations that already completed are kept.
func cancelOnInterrupt(a *app.App) (stop func()) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		select {
		case <-sig:
			if a.Coordinator.Cancel() {
				ui.WarningMsg("Interrupted, finishing the current operation...")
			}
		case <-done:
		}
	}()
	return func() {
		signal.Stop(sig)
		close(done)
	}
}
