package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sauravmaulick/GenAICoordinator-Replit/internal/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "coordinator",
	Short: "Pharmaceutical query coordinator",
	Long: `Coordinator answers pharmaceutical questions by splitting them into one
sub-question per data source, querying the CAPA records, the investigation
graph and the clinical trial index in parallel, and consolidating the results
into a summary that a reviewer approves before it is emailed.

Runs can be driven in-process with 'coordinator run', or submitted to a
long-running 'coordinator serve' and reviewed with 'approve', 'reject',
'edit' and 'cancel'.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorText(err))
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a config file (default: XDG config plus .coordinator.yaml overrides)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(approveCmd)
	rootCmd.AddCommand(rejectCmd)
	rootCmd.AddCommand(editCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(purgeCmd)
	rootCmd.AddCommand(capaCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig loads the configuration named by --config, or the layered
// default configuration.
func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFromPath(configPath)
	}
	return config.Load()
}
