package graph

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sauravmaulick/GenAICoordinator-Replit/internal/capability/brand"
	"github.com/sauravmaulick/GenAICoordinator-Replit/pkg/models"
)

// DefaultBrand is used when a sub-question names no brand.
const DefaultBrand = "Avino"

var capaIDPattern = regexp.MustCompile(`\bCAPA[-_]?\d{4,}\b`)

// EnrichedInvestigation is an investigation joined with its CAPA and batch.
type EnrichedInvestigation struct {
	Investigation
	CapaDetails   *Capa  `json:"capa_details,omitempty"`
	BatchInfo     *Batch `json:"batch_info,omitempty"`
	PDFAccessible bool   `json:"pdf_accessible"`
}

// Report is the structured payload of an investigation query.
type Report struct {
	Brand          string                  `json:"brand"`
	CapaIDs        []string                `json:"capa_ids,omitempty"`
	Count          int                     `json:"count"`
	Investigations []EnrichedInvestigation `json:"investigations"`
	BrandInfo      *Brand                  `json:"brand_info,omitempty"`
	QueriedAt      time.Time               `json:"queried_at"`
}

// Agent answers investigation questions from a Store.
type Agent struct {
	store        Store
	defaultBrand string
	now          func() time.Time
	logger       *zap.Logger
}

// Option configures an Agent.
type Option func(*Agent)

// WithDefaultBrand sets the brand used when the question names none.
func WithDefaultBrand(name string) Option {
	return func(a *Agent) {
		if name != "" {
			a.defaultBrand = name
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *Agent) { a.logger = l }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(a *Agent) { a.now = now }
}

// NewAgent creates a graph agent over store.
func NewAgent(store Store, opts ...Option) *Agent {
	a := &Agent{
		store:        store,
		defaultBrand: DefaultBrand,
		now:          time.Now,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Capability returns models.CapabilityGraph.
func (a *Agent) Capability() models.Capability {
	return models.CapabilityGraph
}

// Query lists the investigations of the brand named in text, filtered by
// any CAPA ids it mentions, and enriches each with its CAPA and batch.
func (a *Agent) Query(ctx context.Context, text string, rc models.RunContext) (*models.Payload, error) {
	if a.store == nil {
		return nil, models.NewAgentError(models.AgentErrorUnavailable, "graph store is not configured")
	}
	brandName := brand.Extract(text, a.defaultBrand)
	capaIDs := capaIDPattern.FindAllString(text, -1)

	log := a.logger.With(zap.String("run_id", rc.RunID), zap.String("brand", brandName))
	log.Debug("graph query", zap.Strings("capa_ids", capaIDs))

	invs, err := a.store.Investigations(ctx, brandName, capaIDs)
	if err != nil {
		return nil, classify(err, "query investigations")
	}

	report := Report{
		Brand:          brandName,
		CapaIDs:        capaIDs,
		Investigations: make([]EnrichedInvestigation, 0, len(invs)),
		QueriedAt:      a.now(),
	}
	for _, inv := range invs {
		enriched, err := a.enrich(ctx, inv)
		if err != nil {
			return nil, classify(err, "enrich investigation "+inv.ID)
		}
		report.Investigations = append(report.Investigations, enriched)
	}
	report.Count = len(report.Investigations)

	if info, err := a.store.Brand(ctx, brandName); err == nil {
		report.BrandInfo = info
	} else {
		log.Warn("brand lookup failed", zap.Error(err))
	}

	log.Info("graph query complete", zap.Int("investigations", report.Count))
	return models.NewPayload(report.Summary(), report)
}

func (a *Agent) enrich(ctx context.Context, inv Investigation) (EnrichedInvestigation, error) {
	out := EnrichedInvestigation{Investigation: inv, PDFAccessible: PDFAccessible(inv.PDFLink)}
	if inv.CapaID != "" {
		c, err := a.store.Capa(ctx, inv.CapaID)
		if err != nil {
			return out, err
		}
		out.CapaDetails = c
	}
	if inv.BatchNumber != "" {
		b, err := a.store.Batch(ctx, inv.BatchNumber)
		if err != nil {
			return out, err
		}
		out.BatchInfo = b
	}
	return out, nil
}

// Summary renders the one-line section text.
func (r Report) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d investigations for brand %s.", r.Count, r.Brand)
	for _, inv := range r.Investigations {
		fmt.Fprintf(&b, "\n- %s (%s): %s, batch %s, %s", inv.ID, inv.CapaID, inv.Name, inv.BatchNumber, inv.Status)
		if inv.PDFLink != "" {
			fmt.Fprintf(&b, ", PDF: %s", inv.PDFLink)
		}
	}
	return b.String()
}

// PDFAccessible reports whether link is an http(s) URL to a PDF document.
func PDFAccessible(link string) bool {
	l := strings.ToLower(link)
	return (strings.HasPrefix(l, "http://") || strings.HasPrefix(l, "https://")) && strings.HasSuffix(l, ".pdf")
}

func classify(err error, op string) error {
	switch {
	case errors.Is(err, context.Canceled):
		return models.NewAgentError(models.AgentErrorCancelled, "%s: %v", op, err)
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewAgentError(models.AgentErrorTimeout, "%s: %v", op, err)
	default:
		return models.NewAgentError(models.AgentErrorUnavailable, "%s: %v", op, err)
	}
}
