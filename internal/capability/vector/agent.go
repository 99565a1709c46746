package vector

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sauravmaulick/GenAICoordinator-Replit/internal/capability/brand"
	"github.com/sauravmaulick/GenAICoordinator-Replit/internal/llm"
	"github.com/sauravmaulick/GenAICoordinator-Replit/pkg/models"
)

// Defaults mirror the vector section of the configuration.
const (
	DefaultTopK         = 5
	DefaultMinScore     = 0.5
	DefaultSummaryScore = 0.7
	DefaultBrand        = "Avino"
)

const summaryPrompt = `Please provide a comprehensive summary of the following content related to %s.

Focus on:
- Key findings and results
- Important safety information
- Clinical implications
- Critical data points

Content:
%s

Provide a clear, concise summary in paragraph format.`

// Source identifies the document and page a summary sentence came from.
type Source struct {
	URL   string  `json:"url"`
	Page  string  `json:"page,omitempty"`
	Score float64 `json:"score"`
}

// TrialSearch is the structured payload of a clinical trial query.
type TrialSearch struct {
	Brand   string   `json:"brand"`
	Query   string   `json:"query"`
	Matches []Match  `json:"matches"`
	Sources []Source `json:"sources"`
	// Generated is true when the summary came from the language model.
	Generated bool `json:"generated"`
}

// Agent answers clinical trial questions from an Index.
type Agent struct {
	index        Index
	topK         int
	summaryScore float64
	defaultBrand string
	completer    llm.Completer
	logger       *zap.Logger
}

// Option configures an Agent.
type Option func(*Agent)

// WithTopK caps the number of matches considered.
func WithTopK(k int) Option {
	return func(a *Agent) {
		if k > 0 {
			a.topK = k
		}
	}
}

// WithSummaryScore sets the score a match must exceed to enter the summary.
func WithSummaryScore(s float64) Option {
	return func(a *Agent) { a.summaryScore = s }
}

// WithDefaultBrand sets the brand used when the question names none.
func WithDefaultBrand(name string) Option {
	return func(a *Agent) {
		if name != "" {
			a.defaultBrand = name
		}
	}
}

// WithCompleter enables model-written summaries. Extractive summaries are
// used when it is nil or fails.
func WithCompleter(c llm.Completer) Option {
	return func(a *Agent) { a.completer = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *Agent) { a.logger = l }
}

// NewAgent creates a vector agent over index.
func NewAgent(index Index, opts ...Option) *Agent {
	a := &Agent{
		index:        index,
		topK:         DefaultTopK,
		summaryScore: DefaultSummaryScore,
		defaultBrand: DefaultBrand,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Capability returns models.CapabilityVector.
func (a *Agent) Capability() models.Capability {
	return models.CapabilityVector
}

// Query searches trial documents of the brand named in text and summarises
// the high-confidence matches.
func (a *Agent) Query(ctx context.Context, text string, rc models.RunContext) (*models.Payload, error) {
	if a.index == nil {
		return nil, models.NewAgentError(models.AgentErrorUnavailable, "document index is not configured")
	}
	brandName := brand.Extract(text, a.defaultBrand)
	query := "clinical trial summary for brand " + brandName
	log := a.logger.With(zap.String("run_id", rc.RunID), zap.String("brand", brandName))

	matches, err := a.index.Search(ctx, query, map[string]string{"brand": brandName}, a.topK)
	if err != nil {
		switch {
		case errors.Is(err, context.Canceled):
			return nil, models.NewAgentError(models.AgentErrorCancelled, "search: %v", err)
		case errors.Is(err, context.DeadlineExceeded):
			return nil, models.NewAgentError(models.AgentErrorTimeout, "search: %v", err)
		}
		return nil, models.NewAgentError(models.AgentErrorUnavailable, "search: %v", err)
	}

	result := TrialSearch{Brand: brandName, Query: query, Matches: matches, Sources: []Source{}}
	if result.Matches == nil {
		result.Matches = []Match{}
	}
	if len(matches) == 0 {
		log.Info("no clinical trial documents")
		return models.NewPayload(fmt.Sprintf("No clinical trial data found for brand %s.", brandName), result)
	}

	var relevant []Match
	for _, m := range matches {
		if m.Score > a.summaryScore {
			relevant = append(relevant, m)
			result.Sources = append(result.Sources, Source{URL: m.Metadata["source"], Page: m.Metadata["page"], Score: m.Score})
		}
	}
	if len(relevant) == 0 {
		return models.NewPayload(fmt.Sprintf("No high-confidence clinical trial data found for brand %s.", brandName), result)
	}

	summary := ""
	if a.completer != nil {
		summary, err = a.generate(ctx, brandName, relevant)
		if err != nil {
			log.Warn("summary generation failed, using extractive summary", zap.Error(err))
			summary = ""
		} else {
			result.Generated = true
		}
	}
	if summary == "" {
		summary = Extractive(brandName, relevant)
	}

	log.Info("clinical trial search complete", zap.Int("matches", len(matches)), zap.Int("relevant", len(relevant)))
	return models.NewPayload(summary, result)
}

func (a *Agent) generate(ctx context.Context, brandName string, relevant []Match) (string, error) {
	pieces := make([]string, len(relevant))
	for i, m := range relevant {
		pieces[i] = m.Content
	}
	out, err := a.completer.Complete(ctx, llm.Request{
		Prompt:      fmt.Sprintf(summaryPrompt, brandName, strings.Join(pieces, "\n\n")),
		Temperature: 0.1,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// Extractive builds a summary from the first sentence of each match.
func Extractive(brandName string, matches []Match) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Clinical trial summary for brand %s from %d documents:", brandName, len(matches))
	for _, m := range matches {
		fmt.Fprintf(&b, "\n- %s", firstSentence(m.Content))
		if src := m.Metadata["source"]; src != "" {
			fmt.Fprintf(&b, " (source: %s", src)
			if page := m.Metadata["page"]; page != "" {
				fmt.Fprintf(&b, ", page %s", page)
			}
			b.WriteString(")")
		}
	}
	return b.String()
}

func firstSentence(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, ". "); i >= 0 {
		return s[:i+1]
	}
	return s
}
