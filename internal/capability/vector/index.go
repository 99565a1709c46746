// Package vector searches the clinical document index and summarises the
// matching trial documents.
package vector

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"unicode"

	"go.yaml.in/yaml/v3"
)

// Document is an indexed chunk of a source document.
type Document struct {
	ID       string            `json:"id" yaml:"id"`
	Content  string            `json:"content" yaml:"content"`
	Metadata map[string]string `json:"metadata" yaml:"metadata"`
	// Prior is the document's baseline relevance in [0,1].
	Prior float64 `json:"-" yaml:"prior"`
}

// Match is a document returned by a search together with its score.
type Match struct {
	Document
	Score float64 `json:"score"`
}

// Index is the query surface of the document store.
type Index interface {
	Search(ctx context.Context, query string, filter map[string]string, topK int) ([]Match, error)
}

// lexicalWeight scales the share of query terms found in a document.
const lexicalWeight = 0.05

// MemoryIndex ranks an in-process document set by prior relevance plus
// lexical overlap with the query.
type MemoryIndex struct {
	mu       sync.RWMutex
	docs     []Document
	minScore float64
}

// NewMemoryIndex creates an index over docs that drops matches scoring at
// or below minScore.
func NewMemoryIndex(docs []Document, minScore float64) *MemoryIndex {
	return &MemoryIndex{docs: docs, minScore: minScore}
}

// LoadFixture reads documents from a YAML file with a top-level documents list.
func LoadFixture(path string, minScore float64) (*MemoryIndex, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read vector fixture: %w", err)
	}
	var file struct {
		Documents []Document `yaml:"documents"`
	}
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse vector fixture %s: %w", path, err)
	}
	return NewMemoryIndex(file.Documents, minScore), nil
}

// Add appends a document to the index.
func (x *MemoryIndex) Add(doc Document) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.docs = append(x.docs, doc)
}

// Search returns up to topK documents matching every filter entry, scored
// above the index threshold, highest first.
func (x *MemoryIndex) Search(ctx context.Context, query string, filter map[string]string, topK int) ([]Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	terms := tokenize(query)

	x.mu.RLock()
	var matches []Match
	for _, doc := range x.docs {
		if !matchesFilter(doc, filter) {
			continue
		}
		score := doc.Prior + lexicalWeight*overlap(terms, doc.Content)
		if score > 1 {
			score = 1
		}
		if score <= x.minScore {
			continue
		}
		matches = append(matches, Match{Document: doc, Score: score})
	}
	x.mu.RUnlock()

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func matchesFilter(doc Document, filter map[string]string) bool {
	for k, v := range filter {
		if !strings.EqualFold(doc.Metadata[k], v) {
			return false
		}
	}
	return true
}

func tokenize(s string) map[string]struct{} {
	terms := make(map[string]struct{})
	for _, f := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len(f) > 3 {
			terms[f] = struct{}{}
		}
	}
	return terms
}

// overlap returns the share of query terms present in content.
func overlap(terms map[string]struct{}, content string) float64 {
	if len(terms) == 0 {
		return 0
	}
	docTerms := tokenize(content)
	hits := 0
	for t := range terms {
		if _, ok := docTerms[t]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(terms))
}

// SeedDocuments returns the built-in development corpus.
func SeedDocuments() []Document {
	return []Document{
		{
			ID: "doc_001",
			Content: "Avino Clinical Trial Phase III Results: The randomized controlled trial evaluated the efficacy and safety of Avinotuzumab in 500 patients with advanced oncological conditions. " +
				"Primary endpoint showed 68% overall response rate with median progression-free survival of 12.4 months. " +
				"Common adverse events included fatigue (45%), nausea (32%), and mild infusion reactions (18%). " +
				"The study demonstrated significant improvement over standard therapy with manageable toxicity profile.",
			Metadata: map[string]string{
				"source": "https://documents.company.com/investigations/INV001.pdf", "page": "1",
				"document_type": "clinical_trial", "brand": "Avino", "trial_phase": "Phase III", "created_date": "2024-01-15",
			},
			Prior: 0.95,
		},
		{
			ID: "doc_002",
			Content: "Avino Safety Profile Analysis: Long-term safety data from 1,200 patients treated with Avinotuzumab over 24 months follow-up period. " +
				"Serious adverse events occurred in 12% of patients, with most being reversible upon treatment discontinuation. " +
				"Hepatotoxicity was observed in 3% of patients, requiring regular liver function monitoring. " +
				"Overall safety profile supports continued clinical development with appropriate risk mitigation strategies.",
			Metadata: map[string]string{
				"source": "https://documents.company.com/investigations/INV002.pdf", "page": "3",
				"document_type": "safety_report", "brand": "Avino", "study_type": "Safety Analysis", "created_date": "2024-02-10",
			},
			Prior: 0.89,
		},
		{
			ID: "doc_003",
			Content: "Avino Manufacturing Quality Control: Comprehensive analysis of batch consistency and quality parameters for Avinotuzumab production. " +
				"All 24 commercial batches met release specifications with consistent potency (98-102% of target), purity (>99%), and stability profiles. " +
				"Manufacturing process demonstrates robust control with minimal batch-to-batch variation. " +
				"Quality control testing includes identity, strength, purity, and sterility assessments.",
			Metadata: map[string]string{
				"source": "https://documents.company.com/investigations/INV003.pdf", "page": "2",
				"document_type": "quality_report", "brand": "Avino", "report_type": "Manufacturing QC", "created_date": "2024-03-05",
			},
			Prior: 0.82,
		},
		{
			ID: "doc_004",
			Content: "Avino Pharmacokinetic Study Results: Population pharmacokinetic analysis in 300 patients showed linear kinetics with dose-proportional exposure. " +
				"Mean half-life of 14.2 days supports once-weekly dosing regimen. " +
				"No significant drug-drug interactions identified with common co-medications. " +
				"Renal impairment patients showed 15% higher exposure, requiring dose adjustments in severe cases. " +
				"Pharmacokinetic profile supports current dosing recommendations.",
			Metadata: map[string]string{
				"source": "https://documents.company.com/clinical/PK_study_2024.pdf", "page": "5",
				"document_type": "pharmacokinetic_study", "brand": "Avino", "study_type": "Population PK", "created_date": "2024-04-20",
			},
			Prior: 0.76,
		},
	}
}
