package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sauravmaulick/GenAICoordinator-Replit/internal/config"
)

var configInitForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `View, create or check the coordinator configuration.

Configuration is stored at ~/.config/coordinator/config.yaml
Project-specific overrides can be placed in .coordinator.yaml, and every
key can be set from the environment as COORDINATOR_<SECTION>_<KEY>.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show [key]",
	Short: "Display configuration values with secrets masked",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		settings := config.Redacted(cfg)
		if len(args) == 1 {
			v, ok := settings[strings.ToLower(args[0])]
			if !ok {
				return fmt.Errorf("unknown configuration key: %s", args[0])
			}
			fmt.Fprintln(cmd.OutOrStdout(), formatSetting(v))
			return nil
		}
		displaySettings(cmd.OutOrStdout(), settings)
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration to the user config file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.GetUserConfigPath()
		if _, err := os.Stat(path); err == nil && !configInitForce {
			return fmt.Errorf("%s already exists; use --force to overwrite", path)
		}
		if err := config.Save(config.Default()); err != nil {
			return fmt.Errorf("save config: %w", err)
		}
		printStatus(cmd.OutOrStdout(), "✓", "wrote "+path, color.FgGreen)
		return nil
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration for errors and missing credentials",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		return validateConfig(cmd.OutOrStdout(), cfg)
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "Overwrite an existing config file")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)
}

// displaySettings prints settings sorted by key.
func displaySettings(w io.Writer, settings map[string]any) {
	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "%s: %s\n", k, formatSetting(settings[k]))
	}
}

func formatSetting(v any) string {
	switch t := v.(type) {
	case string:
		if t == "" {
			return "(not set)"
		}
		return t
	case []string:
		return strings.Join(t, ", ")
	default:
		return fmt.Sprint(t)
	}
}

func validateConfig(w io.Writer, cfg *config.Config) error {
	warnings, err := cfg.Validate()
	for _, warn := range warnings {
		printStatus(w, "⚠", warn, color.FgYellow)
	}
	if err != nil {
		return err
	}
	printStatus(w, "✓", "configuration is valid", color.FgGreen)
	return nil
}
