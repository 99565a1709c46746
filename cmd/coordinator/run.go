package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sauravmaulick/GenAICoordinator-Replit/internal/orchestrator"
	"github.com/sauravmaulick/GenAICoordinator-Replit/internal/tui"
	"github.com/sauravmaulick/GenAICoordinator-Replit/pkg/models"
)

var (
	runApprove     bool
	runReject      bool
	runEditFile    string
	runInteractive bool
	runJSON        bool
	runQuiet       bool
)

var runCmd = &cobra.Command{
	Use:   "run <query>",
	Short: "Run a query in-process through to the approval gate",
	Long: `Run decomposes the query, queries every data source in parallel and
consolidates the results, then stops at the approval gate.

The decision comes from one flag:
  --approve            send the summary as shown
  --reject             discard it
  --edit-file <path>   send the contents of path instead of the summary
  --interactive        review the summary in a terminal screen

With no decision flag the run waits at the gate until the approval timeout
rejects it. Interrupting the command cancels the run.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runQuery,
}

func init() {
	runCmd.Flags().BoolVar(&runApprove, "approve", false, "Approve the summary once it is ready")
	runCmd.Flags().BoolVar(&runReject, "reject", false, "Reject the summary once it is ready")
	runCmd.Flags().StringVar(&runEditFile, "edit-file", "", "Send the contents of this file instead of the summary")
	runCmd.Flags().BoolVarP(&runInteractive, "interactive", "i", false, "Review the summary in a terminal screen")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "Print the terminal run record as JSON")
	runCmd.Flags().BoolVarP(&runQuiet, "quiet", "q", false, "Do not print progress")
	runCmd.MarkFlagsMutuallyExclusive("approve", "reject", "edit-file", "interactive")
}

// gateChoice is how the run command resolves the approval gate.
type gateChoice struct {
	outcome     models.ApprovalOutcome
	editedText  string
	interactive bool
}

// choiceFromFlags reads the decision flags. A zero outcome without
// interactive means waiting for the approval timeout.
func choiceFromFlags(approve, reject bool, editFile string, interactive bool) (gateChoice, error) {
	switch {
	case approve:
		return gateChoice{outcome: models.ApprovalApproved}, nil
	case reject:
		return gateChoice{outcome: models.ApprovalRejected}, nil
	case editFile != "":
		data, err := os.ReadFile(editFile)
		if err != nil {
			return gateChoice{}, fmt.Errorf("read edit file: %w", err)
		}
		text := strings.TrimSpace(string(data))
		if text == "" {
			return gateChoice{}, fmt.Errorf("edit file %s is empty", editFile)
		}
		return gateChoice{outcome: models.ApprovalEdited, editedText: text}, nil
	case interactive:
		return gateChoice{interactive: true}, nil
	default:
		return gateChoice{}, nil
	}
}

func runQuery(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")
	choice, err := choiceFromFlags(runApprove, runReject, runEditFile, runInteractive)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	progress := !runQuiet && !runJSON && !choice.interactive
	var opts appOptions
	if progress {
		opts.onResult = func(runID string, r models.AgentResult) {
			fmt.Fprintln(cmd.ErrOrStderr(), resultLine(r))
		}
	}
	a, err := newApp(cfg, opts)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	go drainEvents(a.ctrl.Events(), progress, cmd.ErrOrStderr())

	runID, err := a.ctrl.SubmitQuery(query)
	if err != nil {
		return err
	}
	if progress {
		printStatus(cmd.ErrOrStderr(), "→", "run "+runID, color.FgCyan)
	}

	parked, err := a.ctrl.WaitParked(ctx, runID)
	if err != nil {
		return cancelAndReport(a, runID, out)
	}

	if !parked.Phase.IsTerminal() {
		if err := resolveGate(a, parked, choice, cmd.ErrOrStderr()); err != nil {
			return err
		}
	}

	final, err := a.ctrl.WaitTerminated(ctx, runID)
	if err != nil {
		return cancelAndReport(a, runID, out)
	}
	return report(final, out)
}

// resolveGate submits the decision chosen on the command line.
func resolveGate(a *app, parked *models.RunState, choice gateChoice, errOut io.Writer) error {
	if choice.interactive {
		rendered := ""
		if parked.Summary != nil {
			rendered = orchestrator.Render(*parked.Summary)
		}
		d, ok, err := tui.RunReview(parked, rendered)
		if err != nil {
			return err
		}
		if !ok {
			printStatus(errOut, "⚠", "left undecided; the run stays parked until the approval timeout", color.FgYellow)
			return nil
		}
		return submitDecision(a, parked.RunID, d)
	}

	if choice.outcome == "" {
		if !runQuiet && !runJSON {
			printStatus(errOut, "⏳", "waiting for the approval timeout; interrupt to cancel", color.FgYellow)
		}
		return nil
	}
	return submitDecision(a, parked.RunID, models.ApprovalDecision{Outcome: choice.outcome, EditedText: choice.editedText})
}

func submitDecision(a *app, runID string, d models.ApprovalDecision) error {
	err := a.ctrl.SubmitApprovalDecision(runID, d)
	if errors.Is(err, orchestrator.ErrDecisionIgnored) {
		return nil
	}
	return err
}

// cancelAndReport cancels an interrupted run and prints its final state.
func cancelAndReport(a *app, runID string, out io.Writer) error {
	if err := a.ctrl.CancelRun(runID); err != nil && !errors.Is(err, orchestrator.ErrNotCancellable) {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	final, err := a.ctrl.WaitTerminated(ctx, runID)
	if err != nil {
		return fmt.Errorf("run %s did not stop: %w", runID, err)
	}
	return report(final, out)
}

func report(final *models.RunState, out io.Writer) error {
	if runJSON {
		data, err := json.MarshalIndent(final, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
		return nil
	}
	fmt.Fprintln(out)
	printRunState(out, final)
	return nil
}

// drainEvents consumes controller events until the channel closes,
// printing them when progress is set.
func drainEvents(events <-chan orchestrator.Event, progress bool, w io.Writer) {
	for e := range events {
		if progress {
			fmt.Fprintln(w, eventLine(e))
		}
	}
}

// resultLine formats one agent result as it arrives.
func resultLine(r models.AgentResult) string {
	detail := ""
	switch {
	case r.Payload != nil && r.Payload.Summary != "":
		detail = r.Payload.Summary
	case r.Error != nil:
		detail = r.Error.Error()
	}
	return fmt.Sprintf("    %s %s (%s) %s", r.Capability.Title(), colored(string(r.Status)), r.Duration().Round(time.Millisecond), detail)
}
