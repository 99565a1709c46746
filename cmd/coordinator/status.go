package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sauravmaulick/GenAICoordinator-Replit/internal/state"
	"github.com/sauravmaulick/GenAICoordinator-Replit/pkg/models"
)

var (
	statusActive bool
	statusLimit  int
	statusPhase  string

	exportOut string

	purgeOlderThan time.Duration
)

var statusCmd = &cobra.Command{
	Use:   "status [run-id]",
	Short: "Show one run in detail, or list recent runs",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		db, err := openState(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		out := cmd.OutOrStdout()
		if len(args) == 1 {
			s, err := findRun(db, args[0])
			if err != nil {
				return err
			}
			printRunState(out, s)
			return nil
		}

		phase := models.Phase(statusPhase)
		if phase != "" && !phase.Valid() {
			return fmt.Errorf("unknown phase %q", statusPhase)
		}
		runs, err := db.ListRuns(state.RunFilter{Phase: phase, ActiveOnly: statusActive, Limit: statusLimit})
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			printStatus(out, "→", "no runs", color.FgCyan)
			return nil
		}
		printRunTable(out, runs)
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export <run-id>",
	Short: "Write the full record of a terminated run as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		db, err := openState(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		s, err := findRun(db, args[0])
		if err != nil {
			return err
		}
		if !s.Phase.IsTerminal() {
			return fmt.Errorf("run %s is still %s", s.RunID, s.Phase)
		}
		data, err := json.MarshalIndent(s, "", "  ")
		if err != nil {
			return err
		}
		if exportOut == "" {
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		}
		if err := os.WriteFile(exportOut, append(data, '\n'), 0644); err != nil {
			return fmt.Errorf("write export: %w", err)
		}
		printStatus(cmd.OutOrStdout(), "✓", "exported "+s.RunID+" to "+exportOut, color.FgGreen)
		return nil
	},
}

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete terminated runs older than a given age",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		db, err := openState(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		n, err := db.PurgeTerminatedRuns(purgeOlderThan)
		if err != nil {
			return err
		}
		printStatus(cmd.OutOrStdout(), "✓", fmt.Sprintf("purged %d runs", n), color.FgGreen)
		return nil
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusActive, "active", false, "Only list runs that have not terminated")
	statusCmd.Flags().IntVarP(&statusLimit, "limit", "n", 20, "Maximum number of runs to list")
	statusCmd.Flags().StringVar(&statusPhase, "phase", "", "Only list runs in this phase")

	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "Write to this file instead of stdout")

	purgeCmd.Flags().DurationVar(&purgeOlderThan, "older-than", 30*24*time.Hour, "Minimum age of terminated runs to delete")
}

func findRun(db *state.DB, prefix string) (*models.RunState, error) {
	s, err := db.FindRunByPrefix(prefix)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, fmt.Errorf("no run matches %q", prefix)
	}
	return s, nil
}

func printRunTable(w io.Writer, runs []state.RunSummary) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tPHASE\tSTATUS\tDELIVERY\tCREATED\tQUERY")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			shortID(r.ID),
			r.Phase,
			dash(string(r.OverallStatus)),
			dash(string(r.Outcome)),
			r.CreatedAt.Local().Format("2006-01-02 15:04"),
			truncate(r.Query, 60))
	}
	tw.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
