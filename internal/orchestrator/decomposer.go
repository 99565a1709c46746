package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/sauravmaulick/GenAICoordinator-Replit/internal/capability/brand"
	"github.com/sauravmaulick/GenAICoordinator-Replit/internal/capability/graph"
	"github.com/sauravmaulick/GenAICoordinator-Replit/internal/llm"
	"github.com/sauravmaulick/GenAICoordinator-Replit/pkg/models"
)

// decompositionSystemPrompt frames the reasoning step. The capability list is appended per call.
const decompositionSystemPrompt = `You are an expert pharmaceutical data analyst. Your task is to break down complex user queries
into specific sub-questions that can be handled by specialized agents.

Available agents and their capabilities:
- capa: Reads and analyzes CAPA (Corrective and Preventive Action) records (count, status, timeframe)
- graph: Queries the graph database for investigation details, brands, batches, and PDF links
- vector: Searches the document index for clinical trial summaries and embedded document content`

// decompositionFormat is the response contract appended to the system prompt.
const decompositionFormat = `

Break the query down into exactly %d sub-questions, one for each of these agents, in this order: %s.

Respond ONLY with JSON in this format (no other text):
{
  "reasoning": "Your chain-of-thought reasoning for the breakdown",
  "sub_questions": [
    {"capability": "capa", "question": "Specific CAPA-related question"}
  ]
}`

// DefaultTemperature is used when no temperature option is given.
const DefaultTemperature = 0.1

// DecompositionError is returned when the reasoning step cannot produce a
// valid one-per-capability decomposition. Raw holds the completion, if any.
type DecompositionError struct {
	Reason string
	Raw    string
	Err    error
}

func (e *DecompositionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decomposition failed: %s: %v", e.Reason, e.Err)
	}
	return "decomposition failed: " + e.Reason
}

func (e *DecompositionError) Unwrap() error {
	return e.Err
}

func decompositionErr(raw, format string, args ...any) *DecompositionError {
	return &DecompositionError{Reason: fmt.Sprintf(format, args...), Raw: raw}
}

// decompositionResponse is the JSON returned by the reasoning step.
// Sub-questions are objects, or plain "Qn: ..." strings paired with agent_mapping.
type decompositionResponse struct {
	Reasoning    string            `json:"reasoning"`
	SubQuestions []json.RawMessage `json:"sub_questions"`
	AgentMapping map[string]string `json:"agent_mapping"`
}

type reasonedSubQuestion struct {
	Capability string `json:"capability"`
	Question   string `json:"question"`
}

// legacyOrder is the fixed Q1..Q3 order of string-form responses.
var legacyOrder = []models.Capability{models.CapabilityCAPA, models.CapabilityGraph, models.CapabilityVector}

// legacyMappingKeys are the agent_mapping keys of string-form responses.
var legacyMappingKeys = map[models.Capability]string{
	models.CapabilityCAPA:   "capa_agent",
	models.CapabilityGraph:  "neo4j_agent",
	models.CapabilityVector: "vector_agent",
}

var questionPrefix = regexp.MustCompile(`^\s*Q(\d+)\s*[:.)-]\s*`)

// DecomposerOption configures a Decomposer.
type DecomposerOption func(*Decomposer)

// WithTemperature sets the sampling temperature of the reasoning call.
func WithTemperature(t float64) DecomposerOption {
	return func(d *Decomposer) { d.temperature = t }
}

// WithDefaultBrand sets the brand substituted into template sub-questions.
func WithDefaultBrand(b string) DecomposerOption {
	return func(d *Decomposer) {
		if b != "" {
			d.defaultBrand = b
		}
	}
}

// WithDecomposerLogger sets the decomposer's logger.
func WithDecomposerLogger(l *zap.Logger) DecomposerOption {
	return func(d *Decomposer) {
		if l != nil {
			d.logger = l
		}
	}
}

// Decomposer turns one query into one sub-question per configured capability.
type Decomposer struct {
	completer    llm.Completer
	caps         []models.Capability
	temperature  float64
	defaultBrand string
	logger       *zap.Logger
}

// NewDecomposer creates a Decomposer. A nil completer is allowed; Decompose
// then always fails and callers use the template.
func NewDecomposer(completer llm.Completer, caps []models.Capability, opts ...DecomposerOption) *Decomposer {
	d := &Decomposer{
		completer:    completer,
		caps:         append([]models.Capability(nil), caps...),
		temperature:  DefaultTemperature,
		defaultBrand: graph.DefaultBrand,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Capabilities returns the configured capability slots in ordinal order.
func (d *Decomposer) Capabilities() []models.Capability {
	return append([]models.Capability(nil), d.caps...)
}

// Decompose asks the reasoning step for sub-questions and validates the
// strict one-per-capability mapping. Any deviation is a *DecompositionError.
func (d *Decomposer) Decompose(ctx context.Context, q models.Query) ([]models.SubQuestion, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, decompositionErr("", "empty query")
	}
	if len(d.caps) == 0 {
		return nil, decompositionErr("", "no capabilities configured")
	}
	if d.completer == nil {
		return nil, decompositionErr("", "no reasoning step configured")
	}

	raw, err := d.completer.Complete(ctx, llm.Request{
		System:      d.systemPrompt(),
		Prompt:      "User Query: " + q.Text,
		Temperature: d.temperature,
	})
	if err != nil {
		return nil, &DecompositionError{Reason: "reasoning step failed", Err: err}
	}

	subs, derr := parseDecomposition(raw, q.RunID, d.caps)
	if derr != nil {
		return nil, derr
	}
	d.logger.Debug("query decomposed",
		zap.String("run_id", q.RunID),
		zap.Int("sub_questions", len(subs)))
	return subs, nil
}

// Template returns the deterministic decomposition for q using the
// decomposer's capabilities and default brand.
func (d *Decomposer) Template(q models.Query) ([]models.SubQuestion, error) {
	return templateDecomposition(q, d.caps, d.defaultBrand)
}

func (d *Decomposer) systemPrompt() string {
	names := make([]string, len(d.caps))
	for i, c := range d.caps {
		names[i] = string(c)
	}
	return decompositionSystemPrompt + fmt.Sprintf(decompositionFormat, len(d.caps), strings.Join(names, ", "))
}

// parseDecomposition extracts the JSON object from a completion and maps it
// onto caps. The result is ordered by the position of each capability in caps.
func parseDecomposition(raw, runID string, caps []models.Capability) ([]models.SubQuestion, *DecompositionError) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end <= start {
		return nil, decompositionErr(raw, "no JSON object found in response")
	}

	var resp decompositionResponse
	if err := json.Unmarshal([]byte(raw[start:end+1]), &resp); err != nil {
		return nil, &DecompositionError{Reason: "malformed JSON", Raw: raw, Err: err}
	}

	switch {
	case len(resp.SubQuestions) < len(caps):
		return nil, decompositionErr(raw, "expected %d sub-questions, got %d", len(caps), len(resp.SubQuestions))
	case len(resp.SubQuestions) > len(caps):
		return nil, decompositionErr(raw, "expected %d sub-questions, got %d extra", len(caps), len(resp.SubQuestions)-len(caps))
	}

	ordinals := make(map[models.Capability]int, len(caps))
	for i, c := range caps {
		ordinals[c] = i
	}

	subs := make([]models.SubQuestion, len(caps))
	seen := make(map[models.Capability]bool, len(caps))
	for i, item := range resp.SubQuestions {
		c, text, err := resp.decodeItem(i, item)
		if err != nil {
			return nil, &DecompositionError{Reason: err.Error(), Raw: raw}
		}
		ord, ok := ordinals[c]
		if !ok {
			return nil, decompositionErr(raw, "capability %q is not configured", c)
		}
		if seen[c] {
			return nil, decompositionErr(raw, "capability %q assigned more than once", c)
		}
		if text == "" {
			return nil, decompositionErr(raw, "empty question for capability %q", c)
		}
		seen[c] = true
		subs[ord] = models.SubQuestion{
			ID:         subQuestionID(runID, ord),
			Text:       text,
			Capability: c,
			Ordinal:    ord,
		}
	}
	return subs, nil
}

// decodeItem decodes one sub_questions entry into its capability and text.
func (r *decompositionResponse) decodeItem(index int, item json.RawMessage) (models.Capability, string, error) {
	trimmed := strings.TrimSpace(string(item))
	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if err := json.Unmarshal(item, &s); err != nil {
			return "", "", fmt.Errorf("sub-question %d: %v", index, err)
		}
		return r.legacyCapability(index, s)
	}

	var sq reasonedSubQuestion
	if err := json.Unmarshal(item, &sq); err != nil {
		return "", "", fmt.Errorf("sub-question %d: %v", index, err)
	}
	c, ok := parseCapability(sq.Capability)
	if !ok {
		return "", "", fmt.Errorf("sub-question %d: unknown capability %q", index, sq.Capability)
	}
	return c, stripQuestionPrefix(sq.Question), nil
}

// legacyCapability maps a "Qn: ..." string onto the fixed Q1..Q3 order and
// checks that agent_mapping names the corresponding agent.
func (r *decompositionResponse) legacyCapability(index int, s string) (models.Capability, string, error) {
	pos := index
	if m := questionPrefix.FindStringSubmatch(s); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil {
			pos = n - 1
		}
	}
	if pos < 0 || pos >= len(legacyOrder) {
		return "", "", fmt.Errorf("sub-question %d: no capability for position %d", index, pos+1)
	}
	c := legacyOrder[pos]
	if _, ok := r.AgentMapping[legacyMappingKeys[c]]; !ok {
		return "", "", fmt.Errorf("sub-question %d: agent_mapping has no %s", index, legacyMappingKeys[c])
	}
	return c, stripQuestionPrefix(s), nil
}

// parseCapability accepts capability names and the legacy agent keys.
func parseCapability(s string) (models.Capability, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "capa", "capa_agent":
		return models.CapabilityCAPA, true
	case "graph", "graph_agent", "neo4j", "neo4j_agent":
		return models.CapabilityGraph, true
	case "vector", "vector_agent", "vectorsearch", "vector_search":
		return models.CapabilityVector, true
	default:
		return "", false
	}
}

func stripQuestionPrefix(s string) string {
	return strings.TrimSpace(questionPrefix.ReplaceAllString(s, ""))
}

// templateQuestions holds the fixed template wording; %s is the brand.
var templateQuestions = map[models.Capability]string{
	models.CapabilityCAPA:   "How many open CAPA are present in the last 1 year?",
	models.CapabilityGraph:  "Fetch Investigation details for brand '%s' including CAPA ID, Investigation Name, Brand, Batch Number, PDF Link",
	models.CapabilityVector: "Retrieve clinical trial summary for brand '%s' from vector database",
}

// TemplateDecomposition produces one generic sub-question per capability,
// in the given order, with the brand named in the query substituted.
// It fails only for an empty query or an empty capability list.
func TemplateDecomposition(q models.Query, caps []models.Capability) ([]models.SubQuestion, error) {
	return templateDecomposition(q, caps, graph.DefaultBrand)
}

func templateDecomposition(q models.Query, caps []models.Capability, defaultBrand string) ([]models.SubQuestion, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, decompositionErr("", "template: empty query")
	}
	if len(caps) == 0 {
		return nil, decompositionErr("", "template: no capabilities configured")
	}

	b := brand.Extract(q.Text, defaultBrand)
	subs := make([]models.SubQuestion, len(caps))
	for i, c := range caps {
		text, ok := templateQuestions[c]
		if !ok {
			return nil, decompositionErr("", "template: unknown capability %q", c)
		}
		if strings.Contains(text, "%s") {
			text = fmt.Sprintf(text, b)
		}
		subs[i] = models.SubQuestion{
			ID:         subQuestionID(q.RunID, i),
			Text:       text,
			Capability: c,
			Ordinal:    i,
		}
	}
	return subs, nil
}

// subQuestionID returns <runID[:8]>-q<ordinal>.
func subQuestionID(runID string, ordinal int) string {
	prefix := runID
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	return fmt.Sprintf("%s-q%d", prefix, ordinal)
}
