package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Nomadcxx/embress/internal/coordinator"
	"github.com/Nomadcxx/embress/internal/media"
	"github.com/Nomadcxx/embress/internal/scanner"
	"github.com/Nomadcxx/embress/internal/ui"
)

func newScanCmd() *cobra.Command {
	var (
		path    string
		preview bool
	)

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan the library and apply renames",
		Long: `Scan the library (or one directory of it) and rename episodes and their
sidecars to the configured template. Stray .nfo files are deleted.

Every applied change is recorded and can be undone with 'embress rollback'.
Press Ctrl-C to stop early; changes made so far stay recorded.

Examples:
  embress scan                          # Scan the whole library
  embress scan --path "tv/Show Name"    # Scan one show
  embress scan --dry-run                # Show what would change`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if preview {
				plan, err := a.Coordinator.Preview(cmd.Context(), path)
				if err != nil {
					return err
				}
				printPlan(cmd, a.Coordinator.Root(), plan)
				return nil
			}

			stop := cancelOnInterrupt(a)
			defer stop()

			spinner := ui.NewSpinner("Scanning " + scopeLabel(a.Coordinator.Root(), path))
			spinner.Start()
			res, err := a.Coordinator.Scan(cmd.Context(), coordinator.ScanRequest{Path: path})
			spinner.Stop()
			if err != nil {
				return err
			}
			printScanResult(cmd, a.Coordinator.Root(), res)
			return nil
		},
	}

	cmd.Flags().StringVarP(&path, "path", "p", "", "scan only this directory (absolute or relative to the library root)")
	cmd.Flags().BoolVarP(&preview, "dry-run", "n", false, "preview changes without touching files")

	return cmd
}

func scopeLabel(root, path string) string {
	if path == "" {
		return root
	}
	return path
}

func rel(root, path string) string {
	if r, err := filepath.Rel(root, path); err == nil {
		return r
	}
	return path
}

func printPlan(cmd *cobra.Command, root string, plan *scanner.Plan) {
	out := cmd.OutOrStdout()
	ui.Section("Dry run")
	fmt.Fprintf(out, "Scope: %s\n", plan.Scope)
	fmt.Fprintf(out, "Files: %s (%d already correct, %d whitelisted)\n\n",
		ui.FormatCount(plan.Files), plan.Correct, plan.Skipped)

	if len(plan.Operations) == 0 {
		ui.SuccessMsg("Nothing to do")
	} else {
		tbl := ui.NewTable("Operation", "Source", "Target")
		for _, op := range plan.Operations {
			tbl.AddRow(ui.Operation(op.Operation), rel(root, op.Path), rel(root, op.Target))
		}
		tbl.Render(out)
	}
	printUnrenamed(cmd, root, plan.Unrenamed)
	printWarnings(cmd, plan.Warnings)
}

func printScanResult(cmd *cobra.Command, root string, res *coordinator.ScanResult) {
	out := cmd.OutOrStdout()
	run := res.Run
	c := run.Counts

	switch res.Outcome {
	case coordinator.OutcomeCompleted:
		ui.SuccessMsg("Scan %s: %d changes", ui.Label(string(res.Outcome)), c.Changes())
	case coordinator.OutcomeCancelled:
		ui.WarningMsg("Scan cancelled: %d changes applied, %d not attempted", c.Changes(), res.NotAttempted)
	default:
		ui.ErrorMsg("Scan %s: %d changes, %d failed", ui.Label(string(res.Outcome)), c.Changes(), c.Failed)
	}
	fmt.Fprintf(out, "Run: %s\n\n", run.ID)

	tbl := ui.NewTable("Videos", "Subtitles", "Audio", "Pictures", "NFO deleted", "Unrenamed", "Whitelisted")
	tbl.AddRow(fmt.Sprint(c.RenamedVideo), fmt.Sprint(c.RenamedSubtitle), fmt.Sprint(c.RenamedAudio),
		fmt.Sprint(c.RenamedPicture), fmt.Sprint(c.DeletedNFO), fmt.Sprint(c.Unrenamed), fmt.Sprint(c.Skipped))
	tbl.Render(out)

	if len(res.Failures) > 0 {
		ui.Section("Failures")
		ft := ui.NewTable("Operation", "Path", "Reason", "Error")
		for _, f := range res.Failures {
			ft.AddRow(f.Operation.String(), rel(root, f.Path), f.Reason, f.Error)
		}
		ft.Render(out)
	}
	printUnrenamed(cmd, root, res.Unrenamed)
	printWarnings(cmd, res.Warnings)
}

func printUnrenamed(cmd *cobra.Command, root string, files []media.ClassifiedFile) {
	if len(files) == 0 {
		return
	}
	ui.Section("Unrenamed")
	tbl := ui.NewTable("Path", "Reason")
	for _, f := range files {
		tbl.AddRow(rel(root, f.Path), f.Reason)
	}
	tbl.RenderCompact(cmd.OutOrStdout())
	fmt.Fprintln(cmd.OutOrStdout(), ui.Dim("Run 'embress review' to triage these files."))
}

func printWarnings(cmd *cobra.Command, warnings []scanner.Warning) {
	for _, w := range warnings {
		ui.WarningMsg("%s: %s (%s)", w.Path, w.Reason, w.Error)
	}
}
