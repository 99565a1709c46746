package models

import "time"

// OverallStatus summarizes how many sub-questions succeeded.
type OverallStatus string

const (
	// OverallComplete means every sub-question succeeded.
	OverallComplete OverallStatus = "complete"
	// OverallPartial means at least one but not every sub-question succeeded.
	OverallPartial OverallStatus = "partial"
	// OverallFailed means no sub-question succeeded.
	OverallFailed OverallStatus = "failed"
)

// Valid returns true if the status is a known value.
func (s OverallStatus) Valid() bool {
	switch s {
	case OverallComplete, OverallPartial, OverallFailed:
		return true
	default:
		return false
	}
}

// Section is one ordered entry of a consolidated summary.
type Section struct {
	// Ordinal matches the sub-question ordinal.
	Ordinal int `json:"ordinal"`
	// Capability is the agent that produced (or failed to produce) this section.
	Capability Capability `json:"capability"`
	// Title is the section heading.
	Title string `json:"title"`
	// Text is the payload summary, or the placeholder when the agent did not succeed.
	Text string `json:"text"`
	// Placeholder is true when Text is the fixed placeholder.
	Placeholder bool `json:"placeholder"`
	// Status is the agent status this section was built from.
	Status AgentStatus `json:"status"`
	// Error carries the agent error detail for placeholder sections.
	Error string `json:"error,omitempty"`
}

// ConsolidatedSummary is the merged view of all agent results for a run.
type ConsolidatedSummary struct {
	RunID         string        `json:"run_id"`
	Sections      []Section     `json:"sections"`
	OverallStatus OverallStatus `json:"overall_status"`
	// Narrative is an optional executive summary generated after consolidation.
	Narrative string    `json:"narrative,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
