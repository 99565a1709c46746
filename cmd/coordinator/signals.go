package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sauravmaulick/GenAICoordinator-Replit/internal/config"
	"github.com/sauravmaulick/GenAICoordinator-Replit/internal/signals"
	"github.com/sauravmaulick/GenAICoordinator-Replit/pkg/models"
)

var editFile string

var submitCmd = &cobra.Command{
	Use:   "submit <query>",
	Short: "Submit a query to a running 'coordinator serve'",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		id, err := signals.WriteQuery(cfg.Signals.Dir, strings.Join(args, " "))
		if err != nil {
			return err
		}
		printStatus(cmd.OutOrStdout(), "✓", "submitted run "+id, color.FgGreen)
		return nil
	},
}

var approveCmd = &cobra.Command{
	Use:   "approve <run-id>",
	Short: "Approve a run's summary for delivery",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendDecision(cmd, args[0], models.ApprovalApproved, "")
	},
}

var rejectCmd = &cobra.Command{
	Use:   "reject <run-id>",
	Short: "Reject a run's summary",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendDecision(cmd, args[0], models.ApprovalRejected, "")
	},
}

var editCmd = &cobra.Command{
	Use:   "edit <run-id> --file <path>",
	Short: "Replace a run's summary with edited text and approve it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(editFile)
		if err != nil {
			return fmt.Errorf("read edit file: %w", err)
		}
		return sendDecision(cmd, args[0], models.ApprovalEdited, strings.TrimSpace(string(data)))
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <run-id>",
	Short: "Cancel a run that has not started notifying",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		id := resolveRunID(cfg, args[0])
		if err := signals.WriteCancel(cfg.Signals.Dir, id); err != nil {
			return err
		}
		printStatus(cmd.OutOrStdout(), "✓", "cancellation sent for "+id, color.FgGreen)
		return nil
	},
}

func init() {
	editCmd.Flags().StringVarP(&editFile, "file", "f", "", "File holding the edited summary")
	_ = editCmd.MarkFlagRequired("file")
}

func sendDecision(cmd *cobra.Command, arg string, outcome models.ApprovalOutcome, editedText string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	id := resolveRunID(cfg, arg)
	if err := signals.WriteDecision(cfg.Signals.Dir, id, outcome, editedText); err != nil {
		return err
	}
	printStatus(cmd.OutOrStdout(), "✓", fmt.Sprintf("%s sent for %s", outcome, id), color.FgGreen)
	return nil
}

// resolveRunID expands a run ID prefix using the run database. The argument
// is returned unchanged when there is no database or no unique match.
func resolveRunID(cfg *config.Config, arg string) string {
	db, err := openState(cfg)
	if err != nil {
		return arg
	}
	defer db.Close()
	s, err := db.FindRunByPrefix(arg)
	if err != nil || s == nil {
		return arg
	}
	return s.RunID
}
