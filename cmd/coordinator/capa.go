package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sauravmaulick/GenAICoordinator-Replit/internal/capability/capa"
)

var (
	capaFields []string
	capaDays   int
)

var capaCmd = &cobra.Command{
	Use:   "capa",
	Short: "Inspect the CAPA data file directly",
}

var capaStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Count CAPA records by status and region",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		records, err := loadCAPA()
		if err != nil {
			return err
		}
		printCAPAStats(cmd.OutOrStdout(), capa.Statistics(records))
		return nil
	},
}

var capaOpenCmd = &cobra.Command{
	Use:   "open",
	Short: "List open CAPAs inside the look-back window",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		records, err := loadCAPA()
		if err != nil {
			return err
		}
		analysis := capa.OpenWithin(records, time.Now(), capaDays)
		out := cmd.OutOrStdout()
		printStatus(out, "→", analysis.Summary(), color.FgCyan)
		printCAPATable(out, analysis.Open)
		return nil
	},
}

var capaSearchCmd = &cobra.Command{
	Use:   "search --field key=value [--field key=value...]",
	Short: "Find CAPA records whose fields contain the given values",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		criteria, err := parseFieldFlags(capaFields)
		if err != nil {
			return err
		}
		records, err := loadCAPA()
		if err != nil {
			return err
		}
		found := capa.Search(records, criteria)
		out := cmd.OutOrStdout()
		printStatus(out, "→", fmt.Sprintf("%d of %d records match", len(found), len(records)), color.FgCyan)
		printCAPATable(out, found)
		return nil
	},
}

var capaShowCmd = &cobra.Command{
	Use:   "show <capa-id>",
	Short: "Show one CAPA record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		records, err := loadCAPA()
		if err != nil {
			return err
		}
		r, ok := capa.FindByID(records, args[0])
		if !ok {
			return fmt.Errorf("no CAPA record %s", args[0])
		}
		out := cmd.OutOrStdout()
		bold := color.New(color.Bold)
		fmt.Fprintf(out, "%s %s\n", bold.Sprint("ID:"), r.ID)
		fmt.Fprintf(out, "%s %s\n", bold.Sprint("Title:"), r.Title)
		fmt.Fprintf(out, "%s %s\n", bold.Sprint("Region:"), r.Region)
		fmt.Fprintf(out, "%s %s\n", bold.Sprint("Status:"), r.Status)
		fmt.Fprintf(out, "%s %s\n", bold.Sprint("Date:"), r.Date)
		fmt.Fprintf(out, "%s %s\n", bold.Sprint("Priority:"), r.Priority)
		if r.AssignedTo != "" {
			fmt.Fprintf(out, "%s %s\n", bold.Sprint("Assigned to:"), r.AssignedTo)
		}
		return nil
	},
}

func init() {
	capaSearchCmd.Flags().StringArrayVarP(&capaFields, "field", "f", nil, "Match a field, as key=value (repeatable)")
	_ = capaSearchCmd.MarkFlagRequired("field")
	capaOpenCmd.Flags().IntVar(&capaDays, "days", capa.DefaultWindowDays, "Look-back window in days")

	capaCmd.AddCommand(capaStatsCmd)
	capaCmd.AddCommand(capaOpenCmd)
	capaCmd.AddCommand(capaSearchCmd)
	capaCmd.AddCommand(capaShowCmd)
}

func loadCAPA() ([]capa.Record, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	records, err := capa.ParseFile(cfg.Data.CAPAPath())
	if err != nil {
		return nil, fmt.Errorf("read CAPA data: %w", err)
	}
	return records, nil
}

// parseFieldFlags turns key=value flags into search criteria.
func parseFieldFlags(fields []string) (map[string]string, error) {
	criteria := make(map[string]string, len(fields))
	for _, f := range fields {
		key, value, ok := strings.Cut(f, "=")
		key = strings.ToLower(strings.TrimSpace(key))
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid field %q, want key=value", f)
		}
		criteria[key] = strings.TrimSpace(value)
	}
	return criteria, nil
}

func printCAPAStats(w io.Writer, s capa.Stats) {
	bold := color.New(color.Bold)
	fmt.Fprintf(w, "%s %d\n", bold.Sprint("Total:"), s.Total)
	fmt.Fprintf(w, "  open %d, in progress %d, closed %d\n", s.Open, s.InProgress, s.Closed)
	fmt.Fprintf(w, "%s\n", bold.Sprint("By region:"))
	for _, name := range s.RegionNames() {
		label := name
		if label == "" {
			label = "(none)"
		}
		fmt.Fprintf(w, "  %s %d\n", label, s.Regions[name])
	}
}

func printCAPATable(w io.Writer, records []capa.Record) {
	if len(records) == 0 {
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tREGION\tDATE\tPRIORITY\tTITLE")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", r.ID, r.Status, dash(r.Region), dash(r.Date), dash(r.Priority), truncate(r.Title, 50))
	}
	tw.Flush()
}
