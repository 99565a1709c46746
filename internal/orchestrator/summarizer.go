package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sauravmaulick/GenAICoordinator-Replit/internal/llm"
	"github.com/sauravmaulick/GenAICoordinator-Replit/pkg/models"
)

const narrativeSystemPrompt = `You are a pharmaceutical data analyst creating a comprehensive summary report.

Based on the consolidated data from multiple specialized agents, create a clear,
professional summary that answers the original user query.

Format the summary with:
1. Executive Summary (2-3 sentences)
2. Key Findings (bullet points)
3. Detailed Results (organized by data source)
4. Recommendations or Next Steps (if applicable)

Keep the tone professional and data-driven. Do not invent data that is not in the input;
sections marked "No data available" must be reported as unavailable.`

// Summarizer writes the optional narrative of a consolidated summary.
type Summarizer interface {
	Summarize(ctx context.Context, q models.Query, s models.ConsolidatedSummary) (string, error)
}

// LLMSummarizer writes the narrative with the reasoning model.
type LLMSummarizer struct {
	completer   llm.Completer
	temperature float64
}

// NewLLMSummarizer returns a Summarizer backed by completer.
func NewLLMSummarizer(completer llm.Completer, temperature float64) *LLMSummarizer {
	return &LLMSummarizer{completer: completer, temperature: temperature}
}

// Summarize asks the model for an executive summary of the consolidated sections.
func (s *LLMSummarizer) Summarize(ctx context.Context, q models.Query, sum models.ConsolidatedSummary) (string, error) {
	if s.completer == nil {
		return "", errors.New("no completer configured")
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Original query: %s\n\nConsolidated data:\n", q.Text)
	for _, sec := range sum.Sections {
		fmt.Fprintf(&sb, "\n[%s]\n%s\n", sec.Title, sec.Text)
	}

	out, err := s.completer.Complete(ctx, llm.Request{
		System:      narrativeSystemPrompt,
		Prompt:      sb.String(),
		Temperature: s.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("summarize: %w", err)
	}
	return strings.TrimSpace(out), nil
}
