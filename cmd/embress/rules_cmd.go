package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Nomadcxx/embress/internal/rules"
	"github.com/Nomadcxx/embress/internal/ui"
)

func newRulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Show or replace the season/episode patterns",
		Long: `Patterns are regular expressions tried in order. Season/episode patterns
capture the season then the episode; episode-only patterns capture the
episode and take the season from the folder name.

Rule files are JSON:
  {"season_episode": ["S(\\d+)E(\\d+)"], "episode_only": ["E(\\d+)"]}

Examples:
  embress rules show
  embress rules show --json > rules.json
  embress rules validate rules.json
  embress rules set rules.json
  embress rules reset`,
	}

	cmd.AddCommand(newRulesShowCmd())
	cmd.AddCommand(newRulesValidateCmd())
	cmd.AddCommand(newRulesSetCmd())
	cmd.AddCommand(newRulesResetCmd())

	return cmd
}

func newRulesShowCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the active rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			set := a.Coordinator.Rules()
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(set)
			}

			out := cmd.OutOrStdout()
			ui.Section("Season and episode")
			for i, p := range set.SeasonEpisode {
				fmt.Fprintf(out, "  %2d  %s\n", i, p)
			}
			ui.Section("Episode only")
			for i, p := range set.EpisodeOnly {
				fmt.Fprintf(out, "  %2d  %s\n", i, p)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")

	return cmd
}

func newRulesValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Check a rule file without applying it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			set, err := readRules(args[0])
			if err != nil {
				return err
			}
			if err := rules.Validate(set); err != nil {
				return describeRuleError(err)
			}
			ui.SuccessMsg("%d season/episode and %d episode-only patterns are valid",
				len(set.SeasonEpisode), len(set.EpisodeOnly))
			return nil
		},
	}
}

func newRulesSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <file>",
		Short: "Replace the active rules; invalid files change nothing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			set, err := readRules(args[0])
			if err != nil {
				return err
			}

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Coordinator.UpdateRules(cmd.Context(), set); err != nil {
				return describeRuleError(err)
			}
			ui.SuccessMsg("Rules updated")
			return nil
		},
	}
}

func newRulesResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Restore the built-in rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Coordinator.UpdateRules(cmd.Context(), rules.DefaultSet()); err != nil {
				return err
			}
			ui.SuccessMsg("Rules reset to defaults")
			return nil
		},
	}
}

func readRules(path string) (rules.Set, error) {
	var set rules.Set
	data, err := os.ReadFile(path)
	if err != nil {
		return set, err
	}
	if err := json.Unmarshal(data, &set); err != nil {
		return set, fmt.Errorf("parsing %s: %w", path, err)
	}
	return set, nil
}

func describeRuleError(err error) error {
	var pe *rules.PatternError
	if errors.As(err, &pe) {
		return fmt.Errorf("pattern %d in %s is invalid: %q: %v", pe.Index, pe.List, pe.Pattern, pe.Err)
	}
	return err
}
