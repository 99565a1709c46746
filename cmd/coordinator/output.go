package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/sauravmaulick/GenAICoordinator-Replit/internal/orchestrator"
	"github.com/sauravmaulick/GenAICoordinator-Replit/pkg/models"
)

// printStatus prints a status line with color
func printStatus(w io.Writer, symbol, message string, colorAttr color.Attribute) {
	c := color.New(colorAttr)
	fmt.Fprintf(w, "%s %s\n", c.Sprint(symbol), message)
}

func errorText(err error) string {
	return color.RedString("Error: ") + err.Error()
}

// statusColor maps an overall or agent status onto a terminal color.
func statusColor(status string) color.Attribute {
	switch status {
	case string(models.OverallComplete), string(models.AgentStatusOk),
		string(models.NotifierSent), string(models.ApprovalApproved), string(models.ApprovalEdited):
		return color.FgGreen
	case string(models.OverallPartial), string(models.AgentStatusTimedOut), string(models.NotifierSentViaFallback):
		return color.FgYellow
	case "":
		return color.FgWhite
	default:
		return color.FgRed
	}
}

func colored(status string) string {
	if status == "" {
		return "-"
	}
	return color.New(statusColor(status)).Sprint(status)
}

// printRunState writes a human-readable view of a run.
func printRunState(w io.Writer, s *models.RunState) {
	bold := color.New(color.Bold)

	fmt.Fprintf(w, "%s %s\n", bold.Sprint("Run:"), s.RunID)
	fmt.Fprintf(w, "%s %s\n", bold.Sprint("Query:"), s.Query.Text)
	fmt.Fprintf(w, "%s %s\n", bold.Sprint("Phase:"), s.Phase)
	fmt.Fprintf(w, "%s %s\n", bold.Sprint("Created:"), s.CreatedAt.Local().Format(time.RFC3339))
	if s.DecompositionSource != "" {
		fmt.Fprintf(w, "%s %s\n", bold.Sprint("Decomposition:"), s.DecompositionSource)
	}

	if len(s.SubQuestions) > 0 {
		fmt.Fprintf(w, "\n%s\n", bold.Sprint("Sub-questions:"))
		for _, sq := range s.SubQuestions {
			status := ""
			if r, ok := s.AgentResults[sq.ID]; ok {
				status = string(r.Status)
			}
			fmt.Fprintf(w, "  %d. [%s] %s  %s\n", sq.Ordinal+1, sq.Capability, sq.Text, colored(status))
		}
	}

	if s.Summary != nil {
		fmt.Fprintf(w, "\n%s\n%s\n", bold.Sprint("Summary:"), indent(orchestrator.Render(*s.Summary), "  "))
	}
	if s.ApprovalDeadline != nil {
		fmt.Fprintf(w, "\n%s %s\n", bold.Sprint("Approval deadline:"), s.ApprovalDeadline.Local().Format(time.RFC3339))
	}
	if s.Decision != nil {
		fmt.Fprintf(w, "\n%s %s (%s)\n", bold.Sprint("Decision:"), colored(string(s.Decision.Outcome)), s.Decision.Reason)
	}
	if n := s.Notification; n != nil {
		fmt.Fprintf(w, "%s %s to %s\n", bold.Sprint("Notification:"), colored(string(n.Outcome)), n.Recipient)
		for _, a := range n.Attempts {
			line := fmt.Sprintf("  attempt via %s", a.Transport)
			if a.Fallback {
				line += " (fallback)"
			}
			if a.Error != "" {
				line += ": " + a.Error
			}
			fmt.Fprintln(w, line)
		}
		if n.Receipt != nil && n.Receipt.MessageID != "" {
			fmt.Fprintf(w, "  message id %s\n", n.Receipt.MessageID)
		}
	}
	if s.Cause != nil {
		fmt.Fprintf(w, "%s %s during %s: %s\n", bold.Sprint("Cause:"), color.RedString(string(s.Cause.Kind)), s.Cause.Phase, s.Cause.Detail)
	}
	if s.Phase.IsTerminal() {
		fmt.Fprintf(w, "%s %s\n", bold.Sprint("Overall:"), colored(string(s.OverallStatus())))
	}
}

// eventLine formats a controller event for progress output.
func eventLine(e orchestrator.Event) string {
	ts := e.Timestamp.Local().Format("15:04:05")
	run := shortID(e.RunID)
	switch e.Type {
	case orchestrator.EventPhaseChanged:
		return fmt.Sprintf("%s %s phase %s", ts, run, e.Phase)
	case orchestrator.EventAgentCompleted:
		return fmt.Sprintf("%s %s %s agent %s", ts, run, e.Capability, colored(e.Message))
	case orchestrator.EventDecompositionFallback:
		return fmt.Sprintf("%s %s %s", ts, run, color.YellowString("reasoning step failed, using template sub-questions"))
	case orchestrator.EventApprovalRequested:
		return fmt.Sprintf("%s %s awaiting approval until %s", ts, run, e.Message)
	case orchestrator.EventGateResolved:
		return fmt.Sprintf("%s %s gate resolved: %s", ts, run, e.Message)
	case orchestrator.EventDecisionIgnored:
		return fmt.Sprintf("%s %s %s", ts, run, color.YellowString("decision ignored, gate already resolved"))
	case orchestrator.EventNotification:
		return fmt.Sprintf("%s %s notification %s", ts, run, colored(e.Message))
	case orchestrator.EventRunTerminated:
		return fmt.Sprintf("%s %s terminated (%s)", ts, run, colored(e.Message))
	default:
		return fmt.Sprintf("%s %s %s %s", ts, run, e.Type, e.Message)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		if l != "" {
			lines[i] = prefix + l
		}
	}
	return strings.Join(lines, "\n")
}
