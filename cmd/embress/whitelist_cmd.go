package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Nomadcxx/embress/internal/ui"
	"github.com/Nomadcxx/embress/internal/whitelist"
)

func newWhitelistCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "whitelist",
		Short: "Manage files and folders scans must never touch",
		Long: `Whitelisted files are never renamed or deleted. A whitelisted directory
protects everything below it.

Examples:
  embress whitelist list
  embress whitelist add "/media/tv/Show/Odd Name.mkv"
  embress whitelist add --type directory "/media/tv/Show/Extras"
  embress whitelist add-batch paths.txt
  embress whitelist remove "/media/tv/Show/Odd Name.mkv"`,
	}

	cmd.AddCommand(newWhitelistListCmd())
	cmd.AddCommand(newWhitelistAddCmd())
	cmd.AddCommand(newWhitelistAddBatchCmd())
	cmd.AddCommand(newWhitelistRemoveCmd())

	return cmd
}

func newWhitelistListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List whitelist entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			entries := a.Coordinator.Whitelist().Entries()
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Whitelist is empty")
				return nil
			}
			tbl := ui.NewTable("Type", "Path", "Added")
			for _, e := range entries {
				tbl.AddRow(string(e.Type), e.Path, ui.FormatAge(e.AddedAt))
			}
			tbl.Render(cmd.OutOrStdout())
			return nil
		},
	}
}

func newWhitelistAddCmd() *cobra.Command {
	var entryType string

	cmd := &cobra.Command{
		Use:   "add <path>",
		Short: "Whitelist a file or directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := whitelistEntry(args[0], entryType)
			if err != nil {
				return err
			}

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			added, err := a.Coordinator.Whitelist().Add(cmd.Context(), e)
			if err != nil {
				return err
			}
			ui.SuccessMsg("Whitelisted %s %s", added.Type, added.Path)
			return nil
		},
	}

	cmd.Flags().StringVarP(&entryType, "type", "t", "", "file or directory (default: detected from the path)")

	return cmd
}

func newWhitelistAddBatchCmd() *cobra.Command {
	var entryType string

	cmd := &cobra.Command{
		Use:   "add-batch [file]",
		Short: "Whitelist paths listed one per line (stdin when no file is given)",
		Long: `Whitelist many paths at once. The batch is all or nothing: one invalid
path rejects the whole batch. Blank lines and lines starting with # are ignored.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = cmd.InOrStdin()
			if len(args) == 1 {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			var entries []whitelist.Entry
			scanner := bufio.NewScanner(in)
			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())
				if line == "" || strings.HasPrefix(line, "#") {
					continue
				}
				e, err := whitelistEntry(line, entryType)
				if err != nil {
					return err
				}
				entries = append(entries, e)
			}
			if err := scanner.Err(); err != nil {
				return err
			}
			if len(entries) == 0 {
				return fmt.Errorf("no paths given")
			}

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			added, err := a.Coordinator.Whitelist().AddBatch(cmd.Context(), entries)
			if err != nil {
				return err
			}
			ui.SuccessMsg("Whitelisted %d paths", len(added))
			return nil
		},
	}

	cmd.Flags().StringVarP(&entryType, "type", "t", "", "file or directory for every line (default: detected per path)")

	return cmd
}

func newWhitelistRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <path>",
		Short: "Remove a whitelist entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			path, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			removed, err := a.Coordinator.Whitelist().Remove(cmd.Context(), path)
			if err != nil {
				return err
			}
			if !removed {
				ui.WarningMsg("%s is not whitelisted", path)
				return nil
			}
			ui.SuccessMsg("Removed %s", path)
			return nil
		},
	}
}

// whitelistEntry makes path absolute. An empty type is detected from disk
// when the entry is saved.
func whitelistEntry(path, entryType string) (whitelist.Entry, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return whitelist.Entry{}, err
	}
	t := whitelist.EntryType(entryType)
	if t != "" && !t.Valid() {
		return whitelist.Entry{}, fmt.Errorf("invalid type %q (use file or directory)", entryType)
	}
	return whitelist.Entry{Path: abs, Type: t}, nil
}
