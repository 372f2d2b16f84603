package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Nomadcxx/embress/internal/coordinator"
	"github.com/Nomadcxx/embress/internal/ui"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show library, scheduler and database status",
		RunE:  runStatus,
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	st, err := a.Coordinator.Status(cmd.Context())
	if err != nil {
		return err
	}
	stats, err := a.Coordinator.Stats(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "embress status")
	fmt.Fprintln(out, "==============")
	fmt.Fprintf(out, "Library:   %s\n", a.Coordinator.Root())

	dbPath := a.DB.Path()
	if info, err := os.Stat(dbPath); err == nil {
		fmt.Fprintf(out, "Database:  %s (%s)\n", dbPath, ui.FormatBytes(uint64(info.Size())))
	} else {
		fmt.Fprintf(out, "Database:  %s\n", dbPath)
	}

	// Token state is per process; the daemon reports its own on /api/v1/status.
	state := string(st.State)
	if st.State == coordinator.StateRunning {
		state = fmt.Sprintf("%s %s (%s)", st.State, st.Kind, st.Scope)
	}
	fmt.Fprintf(out, "State:     %s\n", state)

	sched := "off"
	if st.SchedulerEnabled {
		sched = "on, every " + st.Interval
	}
	fmt.Fprintf(out, "Scheduler: %s\n", sched)

	if st.LastRun != nil {
		r := st.LastRun
		fmt.Fprintf(out, "Last run:  %s, %s, %d changes (%s)\n",
			ui.FormatAge(r.StartedAt), ui.Label(string(r.Status)), r.Counts.Changes(), r.ID)
	} else {
		fmt.Fprintln(out, "Last run:  never")
	}

	ui.Section("Records")
	tbl := ui.NewTable("Runs", "With changes", "Shows", "Active", "Rolled back", "Whitelisted", "Unrenamed")
	tbl.AddRow(ui.FormatCount(stats.Runs), ui.FormatCount(stats.RunsWithChanges), ui.FormatCount(stats.Shows),
		ui.FormatCount(stats.ActiveRecords), ui.FormatCount(stats.RolledBack),
		ui.FormatCount(stats.Whitelisted), ui.FormatCount(stats.Unrenamed))
	tbl.Render(out)
	return nil
}
