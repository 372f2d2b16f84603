package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Nomadcxx/embress/internal/coordinator"
	"github.com/Nomadcxx/embress/internal/database"
	"github.com/Nomadcxx/embress/internal/media"
	"github.com/Nomadcxx/embress/internal/ui"
)

func newRollbackCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rollback",
		Short: "Undo recorded changes",
		Long: `Undo renames recorded by earlier scans, newest first.

Deleted .nfo files cannot be restored; they are reported as not reversible.

Examples:
  embress rollback season "Show Name" 2        # Undo Season 2 of a show
  embress rollback season "Show Name" specials  # Undo the Specials folder
  embress rollback run 6f1c...                  # Undo one scan run`,
	}

	cmd.AddCommand(newRollbackSeasonCmd())
	cmd.AddCommand(newRollbackRunCmd())

	return cmd
}

func newRollbackSeasonCmd() *cobra.Command {
	var (
		mediaType string
		yes       bool
	)

	cmd := &cobra.Command{
		Use:   "season <show> <season>",
		Short: "Roll back every active change of one season",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			q := database.SeasonQuery{MediaType: mediaType, Show: args[0], Season: seasonArg(args[1])}
			records, err := a.DB.ActiveRecordsForSeason(cmd.Context(), q)
			if err != nil {
				return err
			}
			scope := fmt.Sprintf("%s / %s", q.Show, displaySeason(q.Season))
			if !confirmRollback(cmd, a.Coordinator.Root(), scope, records, yes) {
				return nil
			}

			stop := cancelOnInterrupt(a)
			defer stop()
			res, err := a.Coordinator.RollbackSeason(cmd.Context(), q)
			if err != nil {
				return err
			}
			printRollbackResult(cmd, a.Coordinator.Root(), res)
			return nil
		},
	}

	cmd.Flags().StringVar(&mediaType, "media-type", "", "library section directory (e.g. tv); default matches all")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")

	return cmd
}

func newRollbackRunCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "run <run-id>",
		Short: "Roll back every active change of one scan run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			records, err := a.DB.ActiveRecordsForRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !confirmRollback(cmd, a.Coordinator.Root(), "run "+args[0], records, yes) {
				return nil
			}

			stop := cancelOnInterrupt(a)
			defer stop()
			res, err := a.Coordinator.RollbackRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printRollbackResult(cmd, a.Coordinator.Root(), res)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")

	return cmd
}

// seasonArg accepts "2", "Season 2", "specials" and "unknown".
func seasonArg(s string) string {
	if n, err := strconv.Atoi(s); err == nil {
		return media.SeasonLabel(n)
	}
	switch s {
	case "specials", "Specials":
		return media.SeasonLabel(0)
	case "unknown", media.UnknownSeason:
		return ""
	}
	return s
}

func displaySeason(s string) string {
	if s == "" {
		return media.UnknownSeason
	}
	return s
}

func confirmRollback(cmd *cobra.Command, root, scope string, records []database.ChangeRecord, yes bool) bool {
	out := cmd.OutOrStdout()
	if len(records) == 0 {
		ui.InfoMsg("No active changes for %s", scope)
		return yes
	}

	ui.Section("Rollback " + scope)
	tbl := ui.NewTable("Operation", "Current", "Restores")
	for _, r := range records {
		tbl.AddRow(ui.Operation(r.Operation), rel(root, r.Destination), rel(root, r.Source))
	}
	tbl.Render(out)

	if yes {
		return true
	}
	if !ui.Confirm(os.Stdin, fmt.Sprintf("Roll back %d changes?", len(records))) {
		fmt.Fprintln(out, "Aborted")
		return false
	}
	return true
}

func printRollbackResult(cmd *cobra.Command, root string, res *coordinator.RollbackResult) {
	switch {
	case res.Cancelled:
		ui.WarningMsg("Rollback cancelled: %d restored, %d not attempted", len(res.RolledBack), res.NotAttempted)
	case res.Outcome == coordinator.OutcomeCompleted:
		ui.SuccessMsg("Rollback completed: %d of %d restored", len(res.RolledBack), res.Attempted)
	default:
		ui.ErrorMsg("Rollback %s: %d restored, %d failed", ui.Label(string(res.Outcome)), len(res.RolledBack), len(res.Failures))
	}

	if len(res.Failures) == 0 {
		return
	}
	tbl := ui.NewTable("Record", "Operation", "Path", "Reason", "Error")
	for _, f := range res.Failures {
		path := f.Destination
		if path == "" {
			path = f.Source
		}
		tbl.AddRow(fmt.Sprint(f.RecordID), f.Operation.String(), rel(root, path), ui.Label(f.Reason), f.Error)
	}
	tbl.Render(cmd.OutOrStdout())
}
