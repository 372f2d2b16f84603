package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Nomadcxx/embress/internal/ui"
)

func newSchedulerCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "scheduler [on|off]",
		Short:     "Show or switch periodic scans",
		Long:      `Periodic scans run inside embressd. The switch is stored in the database and survives restarts.`,
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if len(args) == 1 {
				var enabled bool
				switch args[0] {
				case "on":
					enabled = true
				case "off":
				default:
					return fmt.Errorf("expected on or off, got %q", args[0])
				}
				if err := a.Coordinator.SetSchedulerEnabled(cmd.Context(), enabled); err != nil {
					return err
				}
			}

			if a.Coordinator.SchedulerEnabled() {
				ui.SuccessMsg("Scheduler on, every %s", a.Config.ScanInterval())
			} else {
				ui.InfoMsg("Scheduler off")
			}
			return nil
		},
	}
}
