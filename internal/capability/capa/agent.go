package capa

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"go.uber.org/zap"

	"github.com/sauravmaulick/GenAICoordinator-Replit/pkg/models"
)

// DefaultWindowDays is the look-back window for open CAPA counts.
const DefaultWindowDays = 365

// Analysis is the structured payload of a CAPA count query.
type Analysis struct {
	Count      int       `json:"count"`
	WindowDays int       `json:"window_days"`
	Open       []Record  `json:"open"`
	AnalysedAt time.Time `json:"analysed_at"`
}

// Agent counts open CAPAs from the data file.
type Agent struct {
	path       string
	windowDays int
	now        func() time.Time
	logger     *zap.Logger
}

// Option configures an Agent.
type Option func(*Agent)

// WithWindowDays sets the look-back window.
func WithWindowDays(days int) Option {
	return func(a *Agent) {
		if days > 0 {
			a.windowDays = days
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(a *Agent) { a.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *Agent) { a.logger = l }
}

// NewAgent creates a CAPA agent reading the file at path on every query.
func NewAgent(path string, opts ...Option) *Agent {
	a := &Agent{
		path:       path,
		windowDays: DefaultWindowDays,
		now:        time.Now,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Capability returns models.CapabilityCAPA.
func (a *Agent) Capability() models.Capability {
	return models.CapabilityCAPA
}

// Records loads and normalises the data file.
func (a *Agent) Records() ([]Record, error) {
	records, err := parseFile(a.path, a.now())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, models.NewAgentError(models.AgentErrorNotFound, "CAPA data file not found: %s", a.path)
		}
		return nil, models.NewAgentError(models.AgentErrorInternal, "%v", err)
	}
	if len(records) == 0 {
		return nil, models.NewAgentError(models.AgentErrorNotFound, "%v in %s", ErrNoRecords, a.path)
	}
	return records, nil
}

// Query counts OPEN records dated within the window. The sub-question text
// is logged but does not change the analysis.
func (a *Agent) Query(ctx context.Context, text string, rc models.RunContext) (*models.Payload, error) {
	if err := ctx.Err(); err != nil {
		return nil, models.NewAgentError(models.AgentErrorCancelled, "%v", err)
	}
	a.logger.Debug("capa query",
		zap.String("run_id", rc.RunID),
		zap.String("sub_question_id", rc.SubQuestionID),
		zap.String("question", text))

	records, err := a.Records()
	if err != nil {
		return nil, err
	}

	now := a.now()
	analysis := OpenWithin(records, now, a.windowDays)
	a.logger.Info("capa analysis complete",
		zap.String("run_id", rc.RunID),
		zap.Int("records", len(records)),
		zap.Int("open", analysis.Count))

	return models.NewPayload(analysis.Summary(), analysis)
}

// OpenWithin selects OPEN records dated on or after the day windowDays before now.
func OpenWithin(records []Record, now time.Time, windowDays int) Analysis {
	cutoff := time.Date(now.Year(), now.Month(), now.Day()-windowDays, 0, 0, 0, 0, time.UTC)
	analysis := Analysis{WindowDays: windowDays, AnalysedAt: now, Open: []Record{}}
	for _, r := range records {
		if r.Status != StatusOpen {
			continue
		}
		d, ok := r.ParsedDate()
		if !ok || d.Before(cutoff) {
			continue
		}
		analysis.Open = append(analysis.Open, r)
	}
	analysis.Count = len(analysis.Open)
	return analysis
}

// Summary renders the one-line section text.
func (a Analysis) Summary() string {
	if a.WindowDays == DefaultWindowDays {
		return fmt.Sprintf("Found %d open CAPAs in the last year.", a.Count)
	}
	return fmt.Sprintf("Found %d open CAPAs in the last %d days.", a.Count, a.WindowDays)
}
