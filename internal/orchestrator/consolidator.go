package orchestrator

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sauravmaulick/GenAICoordinator-Replit/pkg/models"
)

// missingResultDetail is recorded when a sub-question has no result.
const missingResultDetail = "no result recorded"

// Placeholder returns the fixed section text for a non-Ok status.
func Placeholder(status models.AgentStatus) string {
	return fmt.Sprintf("No data available (%s).", status)
}

// Consolidate merges the agent results of a run into one summary with a
// section per sub-question, in ordinal order. It is total: any combination
// of statuses, including missing results, yields a summary.
func Consolidate(runID string, subs []models.SubQuestion, results map[string]models.AgentResult, now time.Time) models.ConsolidatedSummary {
	ordered := append([]models.SubQuestion(nil), subs...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Ordinal < ordered[j].Ordinal })

	summary := models.ConsolidatedSummary{
		RunID:     runID,
		Sections:  make([]models.Section, 0, len(ordered)),
		CreatedAt: now,
	}

	ok := 0
	for _, sq := range ordered {
		section := models.Section{
			Ordinal:    sq.Ordinal,
			Capability: sq.Capability,
			Title:      sq.Capability.Title(),
		}

		r, found := results[sq.ID]
		switch {
		case !found:
			section.Status = models.AgentStatusFailed
			section.Text = Placeholder(models.AgentStatusFailed)
			section.Placeholder = true
			section.Error = missingResultDetail
		case r.Status == models.AgentStatusOk:
			ok++
			section.Status = r.Status
			if r.Payload != nil {
				section.Text = r.Payload.Summary
			}
		default:
			section.Status = r.Status
			if !section.Status.Valid() {
				section.Status = models.AgentStatusFailed
			}
			section.Text = Placeholder(section.Status)
			section.Placeholder = true
			if r.Error != nil {
				section.Error = r.Error.Detail
			}
		}
		summary.Sections = append(summary.Sections, section)
	}

	switch {
	case ok > 0 && ok == len(ordered):
		summary.OverallStatus = models.OverallComplete
	case ok == 0:
		summary.OverallStatus = models.OverallFailed
	default:
		summary.OverallStatus = models.OverallPartial
	}
	return summary
}

// Render produces the notification text of a summary: the narrative, if
// any, then one "**Title:** text" block per section.
func Render(s models.ConsolidatedSummary) string {
	var sb strings.Builder
	if s.Narrative != "" {
		sb.WriteString("**Executive Summary:**\n")
		sb.WriteString(strings.TrimSpace(s.Narrative))
		sb.WriteString("\n\n")
	}
	for i, sec := range s.Sections {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "**%s:** %s", sec.Title, sec.Text)
		if sec.Placeholder && sec.Error != "" {
			fmt.Fprintf(&sb, "\nError: %s", sec.Error)
		}
	}
	fmt.Fprintf(&sb, "\n\nOverall status: %s", s.OverallStatus)
	return sb.String()
}
