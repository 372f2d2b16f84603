package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Nomadcxx/embress/internal/activity"
	"github.com/Nomadcxx/embress/internal/database"
	"github.com/Nomadcxx/embress/internal/ui"
)

func newHistoryCmd() *cobra.Command {
	var (
		changesOnly bool
		limit       int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List scan runs, newest first",
		Long: `List recorded scan runs.

Examples:
  embress history
  embress history --changes-only --limit 10`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			runs, err := a.DB.ListRuns(cmd.Context(), database.RunFilter{ChangesOnly: changesOnly, Limit: limit})
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded")
				return nil
			}

			tbl := ui.NewTable("Run", "Started", "Trigger", "Scope", "Status", "Changes", "Failed", "Unrenamed")
			for _, r := range runs {
				tbl.AddRow(r.ID, ui.FormatAge(r.StartedAt), string(r.Trigger), rel(a.Coordinator.Root(), r.Scope),
					ui.Label(string(r.Status)), fmt.Sprint(r.Counts.Changes()),
					fmt.Sprint(r.Counts.Failed), fmt.Sprint(r.Counts.Unrenamed))
			}
			tbl.Render(cmd.OutOrStdout())
			return nil
		},
	}

	cmd.Flags().BoolVar(&changesOnly, "changes-only", false, "hide runs that changed nothing")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to show (0 for all)")

	return cmd
}

func newRecordsCmd() *cobra.Command {
	var (
		show      string
		mediaType string
		groupBy   string
	)

	cmd := &cobra.Command{
		Use:   "records [run-id]",
		Short: "List change records of a run or a show",
		Long: `List change records, grouped by season (default) or by operation type.

Examples:
  embress records 6f1c...
  embress records --show "Show Name" --group type`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			by, err := database.ParseGroupBy(groupBy)
			if err != nil {
				return err
			}
			if (len(args) == 1) == (show != "") {
				return fmt.Errorf("give either a run id or --show")
			}

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			var records []database.ChangeRecord
			if show != "" {
				records, err = a.DB.RecordsForShow(cmd.Context(), mediaType, show)
			} else {
				if _, err = a.DB.GetRun(cmd.Context(), args[0]); err != nil {
					return err
				}
				records, err = a.DB.RecordsForRun(cmd.Context(), args[0])
			}
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No records")
				return nil
			}

			root := a.Coordinator.Root()
			for _, g := range database.GroupRecords(records, by) {
				ui.Section(fmt.Sprintf("%s (%d)", g.Label, len(g.Records)))
				tbl := ui.NewTable("ID", "Operation", "Source", "Destination", "State")
				for _, r := range g.Records {
					state := "active"
					if !r.Active() {
						state = "rolled back"
					}
					tbl.AddRow(fmt.Sprint(r.ID), ui.Operation(r.Operation), rel(root, r.Source), rel(root, r.Destination), state)
				}
				tbl.Render(cmd.OutOrStdout())
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&show, "show", "", "list records of this show instead of a run")
	cmd.Flags().StringVar(&mediaType, "media-type", "", "with --show, restrict to one library section")
	cmd.Flags().StringVar(&groupBy, "group", "season", "group by season or type")

	return cmd
}

func newShowsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shows",
		Short: "List shows that have change records",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			shows, err := a.DB.ListShows(cmd.Context())
			if err != nil {
				return err
			}
			if len(shows) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No shows recorded")
				return nil
			}

			tbl := ui.NewTable("Section", "Show", "Records", "Active", "Last change")
			for _, s := range shows {
				tbl.AddRow(s.MediaType, ui.Show(s.Show), fmt.Sprint(s.Records), fmt.Sprint(s.Active), ui.FormatAge(s.LastChange))
			}
			tbl.RenderCompact(cmd.OutOrStdout())
			return nil
		},
	}
}

func newActivityCmd() *cobra.Command {
	var (
		limit  int
		runID  string
		phase  string
		failed bool
	)

	cmd := &cobra.Command{
		Use:   "activity",
		Short: "Show the audit trail of attempted file operations",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			switch activity.Phase(phase) {
			case "", activity.PhaseApply, activity.PhaseRollback:
			default:
				return fmt.Errorf("unknown phase %q (want apply or rollback)", phase)
			}
			entries, err := a.Activity.Recent(activity.Query{
				RunID:      runID,
				Phase:      activity.Phase(phase),
				FailedOnly: failed,
				Limit:      limit,
			})
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No activity recorded")
				return nil
			}

			root := a.Coordinator.Root()
			tbl := ui.NewTable("When", "Phase", "Action", "Source", "Result")
			for _, e := range entries {
				result := ui.Success("ok")
				if !e.Success {
					result = ui.Error(e.Reason)
				}
				tbl.AddRow(ui.FormatAge(e.Timestamp), string(e.Phase), e.Action, rel(root, e.Source), result)
			}
			tbl.Render(cmd.OutOrStdout())
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "maximum entries to show")
	cmd.Flags().StringVar(&runID, "run", "", "only entries of this run")
	cmd.Flags().StringVar(&phase, "phase", "", "only apply or rollback entries")
	cmd.Flags().BoolVar(&failed, "failed", false, "only failed operations")

	return cmd
}
