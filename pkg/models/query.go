// Package models defines the data types shared by the coordinator packages.
package models

import "time"

// Capability identifies the data source a sub-question is routed to.
type Capability string

const (
	// CapabilityCAPA answers questions over Corrective and Preventive Action records.
	CapabilityCAPA Capability = "capa"
	// CapabilityGraph answers investigation, brand and batch questions from the graph store.
	CapabilityGraph Capability = "graph"
	// CapabilityVector answers clinical trial questions from the document index.
	CapabilityVector Capability = "vector"
)

// Valid returns true if the capability is a known value.
func (c Capability) Valid() bool {
	switch c {
	case CapabilityCAPA, CapabilityGraph, CapabilityVector:
		return true
	default:
		return false
	}
}

// Title returns the section heading used when rendering results for the capability.
func (c Capability) Title() string {
	switch c {
	case CapabilityCAPA:
		return "CAPA Analysis"
	case CapabilityGraph:
		return "Investigations"
	case CapabilityVector:
		return "Clinical Trials"
	default:
		return string(c)
	}
}

// DefaultCapabilities returns the default capability slots in ordinal order.
func DefaultCapabilities() []Capability {
	return []Capability{CapabilityCAPA, CapabilityGraph, CapabilityVector}
}

// Query is the user's question together with the identifier of the run answering it.
// A Query is never modified after submission.
type Query struct {
	// RunID identifies the run created for this query.
	RunID string `json:"run_id"`
	// Text is the question as submitted.
	Text string `json:"text"`
	// SubmittedAt is when the query was accepted.
	SubmittedAt time.Time `json:"submitted_at"`
}

// SubQuestion is one decomposed unit of a query, bound to exactly one capability.
type SubQuestion struct {
	// ID is unique within the run.
	ID string `json:"id"`
	// Text is the natural-language question sent to the agent.
	Text string `json:"text"`
	// Capability is the agent that answers this sub-question.
	Capability Capability `json:"capability"`
	// Ordinal fixes merge and display order, contiguous from 0.
	Ordinal int `json:"ordinal"`
}

// DecompositionSource records how a run's sub-questions were produced.
type DecompositionSource string

const (
	// DecompositionReasoned means the LLM reasoning step produced the sub-questions.
	DecompositionReasoned DecompositionSource = "reasoned"
	// DecompositionTemplate means the deterministic template produced the sub-questions.
	DecompositionTemplate DecompositionSource = "template"
)
