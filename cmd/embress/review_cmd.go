package main

import (
	"context"
	"fmt"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Nomadcxx/embress/internal/app"
	"github.com/Nomadcxx/embress/internal/coordinator"
	"github.com/Nomadcxx/embress/internal/database"
	"github.com/Nomadcxx/embress/internal/notify"
	"github.com/Nomadcxx/embress/internal/pathcmp"
	"github.com/Nomadcxx/embress/internal/ui"
	"github.com/Nomadcxx/embress/internal/whitelist"
)

func newReviewCmd() *cobra.Command {
	var list bool

	cmd := &cobra.Command{
		Use:   "review",
		Short: "Triage files a scan could not rename",
		Long: `Review files that ended up in the unrenamed queue.

Items end up here when:
  - No pattern matched the file name
  - The file is not inside a show directory
  - The target name is already taken

For each file you can whitelist it (or its folder), dismiss it until the
next scan, or rescan its folder after fixing it by hand.

Examples:
  embress review          # Interactive review
  embress review --list   # Print the queue and exit`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			items, err := a.DB.ListUnrenamed(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to load unrenamed queue: %w", err)
			}
			if len(items) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No items pending review")
				return nil
			}

			if list || !ui.IsTerminal() {
				printQueue(cmd, a.Coordinator.Root(), items)
				return nil
			}

			model := ui.NewReviewModel(cmd.Context(), &reviewActions{app: a}, items)
			final, err := tea.NewProgram(model, tea.WithContext(cmd.Context())).Run()
			if err != nil {
				return err
			}
			done := final.(ui.ReviewModel)
			fmt.Fprintf(cmd.OutOrStdout(), "%d decisions, %d files left to review\n", done.Decided, len(done.Items()))
			return nil
		},
	}

	cmd.Flags().BoolVar(&list, "list", false, "print the queue instead of starting the interactive review")

	return cmd
}

func printQueue(cmd *cobra.Command, root string, items []database.UnrenamedFile) {
	fmt.Fprintf(cmd.OutOrStdout(), "=== Pending Review: %d items ===\n\n", len(items))
	tbl := ui.NewTable("Path", "Reason", "Show", "First seen")
	for _, item := range items {
		tbl.AddRow(rel(root, item.Path), item.Reason, item.Show, ui.FormatAge(item.FirstSeen))
	}
	tbl.Render(cmd.OutOrStdout())
}

// reviewActions applies review decisions through the coordinator so that
// whitelist changes reach the next scan immediately.
type reviewActions struct {
	app *app.App
}

func (r *reviewActions) WhitelistFile(ctx context.Context, path string) error {
	if _, err := r.app.Coordinator.Whitelist().Add(ctx, whitelist.Entry{Path: path, Type: whitelist.TypeFile}); err != nil {
		return err
	}
	return r.app.DB.DeleteUnrenamed(ctx, path)
}

func (r *reviewActions) WhitelistDir(ctx context.Context, dir string) error {
	if _, err := r.app.Coordinator.Whitelist().Add(ctx, whitelist.Entry{Path: dir, Type: whitelist.TypeDirectory}); err != nil {
		return err
	}
	items, err := r.app.DB.ListUnrenamed(ctx)
	if err != nil {
		return err
	}
	for _, item := range items {
		if pathcmp.Within(item.Path, dir) {
			if err := r.app.DB.DeleteUnrenamed(ctx, item.Path); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *reviewActions) Dismiss(ctx context.Context, path string) error {
	return r.app.DB.DeleteUnrenamed(ctx, path)
}

func (r *reviewActions) Rescan(ctx context.Context, dir string) (string, error) {
	res, err := r.app.Coordinator.Scan(ctx, coordinator.ScanRequest{Path: dir})
	if err != nil {
		return "", err
	}
	return notify.FormatEventSummary(notify.RunEvent{
		Kind:      notify.EventScan,
		Scope:     filepath.Base(dir),
		Outcome:   string(res.Outcome),
		Applied:   len(res.Applied),
		Failed:    len(res.Failures),
		Unrenamed: len(res.Unrenamed),
	}), nil
}

func (r *reviewActions) Queue(ctx context.Context) ([]database.UnrenamedFile, error) {
	return r.app.DB.ListUnrenamed(ctx)
}
