package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Nomadcxx/embress/internal/config"
	"github.com/Nomadcxx/embress/internal/ui"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage embress configuration",
		Long: `Commands for managing embress configuration.

The config file is stored at: ~/.config/embress/config.toml

Examples:
  embress config init --root /media       # Create default config file
  embress config show                     # Display current configuration
  embress config path                     # Show config file path`,
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigPathCmd())

	return cmd
}

func configFilePath() (string, error) {
	if cfgFile != "" {
		return cfgFile, nil
	}
	return config.ConfigPath()
}

func newConfigInitCmd() *cobra.Command {
	var (
		force bool
		root  string
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create default configuration file",
		Long: `Create a new configuration file with default values and a fresh API
access key.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configFilePath()
			if err != nil {
				return err
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("config already exists at %s (use --force to overwrite)", path)
			}

			cfg := config.DefaultConfig()
			if root != "" {
				if cfg.Library.Root, err = filepath.Abs(root); err != nil {
					return err
				}
			}
			if cfg.API.AccessKey, err = config.GenerateAccessKey(); err != nil {
				return err
			}

			if err := cfg.SaveTo(path); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}

			ui.SuccessMsg("Created config file: %s", path)
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "\nNext steps:")
			if root == "" {
				fmt.Fprintln(out, "  1. Set library.root in the config file")
			} else {
				fmt.Fprintln(out, "  1. Check library.media_types matches your folders")
			}
			fmt.Fprintln(out, "  2. Run 'embress scan --dry-run' to preview")
			fmt.Fprintln(out, "  3. Run 'embress scan' to apply")
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing config file")
	cmd.Flags().StringVar(&root, "root", "", "library root directory")

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display current configuration (secrets masked)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			path, _ := configFilePath()
			fmt.Fprintf(cmd.OutOrStdout(), "Config file: %s\n\n", path)

			shown := *cfg
			shown.API.AccessKey = maskSecret(cfg.API.AccessKey)
			shown.Notify.Email.Password = maskSecret(cfg.Notify.Email.Password)
			shown.Notify.Jellyfin.APIKey = maskSecret(cfg.Notify.Jellyfin.APIKey)
			fmt.Fprint(cmd.OutOrStdout(), shown.ToTOML())

			if err := cfg.Validate(); err != nil {
				ui.WarningMsg("%v", err)
			}
			return nil
		},
	}
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configFilePath()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
}

func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + strings.Repeat("*", len(s)-8) + s[len(s)-4:]
}
