// Package graph answers investigation, CAPA, batch and brand questions from
// the pharmaceutical knowledge graph.
package graph

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"go.yaml.in/yaml/v3"
)

// Investigation is an investigation node linked to a CAPA, brand and batch.
type Investigation struct {
	ID           string `json:"id" yaml:"id"`
	CapaID       string `json:"capa_id" yaml:"capa_id"`
	Name         string `json:"name" yaml:"name"`
	Brand        string `json:"brand" yaml:"brand"`
	BatchNumber  string `json:"batch_number" yaml:"batch_number"`
	Status       string `json:"status" yaml:"status"`
	CreatedDate  string `json:"created_date" yaml:"created_date"`
	PDFLink      string `json:"pdf_link" yaml:"pdf_link"`
	Investigator string `json:"investigator" yaml:"investigator"`
	Department   string `json:"department" yaml:"department"`
}

// Capa is a CAPA node.
type Capa struct {
	ID          string `json:"id" yaml:"id"`
	Title       string `json:"title" yaml:"title"`
	Status      string `json:"status" yaml:"status"`
	CreatedDate string `json:"created_date" yaml:"created_date"`
	DueDate     string `json:"due_date" yaml:"due_date"`
	AssignedTo  string `json:"assigned_to" yaml:"assigned_to"`
}

// Brand is a product brand node.
type Brand struct {
	ID               string `json:"id" yaml:"id"`
	Name             string `json:"name" yaml:"name"`
	TherapeuticArea  string `json:"therapeutic_area" yaml:"therapeutic_area"`
	ActiveIngredient string `json:"active_ingredient" yaml:"active_ingredient"`
	MarketStatus     string `json:"market_status" yaml:"market_status"`
	ApprovalDate     string `json:"approval_date" yaml:"approval_date"`
}

// Batch is a manufacturing batch node.
type Batch struct {
	BatchNumber     string `json:"batch_number" yaml:"batch_number"`
	Brand           string `json:"brand" yaml:"brand"`
	ManufactureDate string `json:"manufacture_date" yaml:"manufacture_date"`
	ExpiryDate      string `json:"expiry_date" yaml:"expiry_date"`
	Quantity        string `json:"quantity" yaml:"quantity"`
	Status          string `json:"status" yaml:"status"`
}

// Store is the query surface of the graph database.
// Lookups that find nothing return nil without an error.
type Store interface {
	Investigations(ctx context.Context, brand string, capaIDs []string) ([]Investigation, error)
	Capa(ctx context.Context, id string) (*Capa, error)
	Batch(ctx context.Context, number string) (*Batch, error)
	Brand(ctx context.Context, name string) (*Brand, error)
}

// Dataset is the serialisable content of a MemoryStore.
type Dataset struct {
	Investigations []Investigation `yaml:"investigations"`
	Capas          []Capa          `yaml:"capas"`
	Brands         []Brand         `yaml:"brands"`
	Batches        []Batch         `yaml:"batches"`
}

// MemoryStore is an in-process Store over a fixed dataset.
type MemoryStore struct {
	mu   sync.RWMutex
	data Dataset
}

// NewMemoryStore creates a store over data.
func NewMemoryStore(data Dataset) *MemoryStore {
	return &MemoryStore{data: data}
}

// LoadFixture reads a Dataset from a YAML file.
func LoadFixture(path string) (*MemoryStore, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read graph fixture: %w", err)
	}
	var data Dataset
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parse graph fixture %s: %w", path, err)
	}
	return NewMemoryStore(data), nil
}

// Investigations returns the brand's investigations, optionally restricted to capaIDs.
func (s *MemoryStore) Investigations(ctx context.Context, brand string, capaIDs []string) ([]Investigation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Investigation
	for _, inv := range s.data.Investigations {
		if !strings.EqualFold(inv.Brand, brand) {
			continue
		}
		if len(capaIDs) > 0 && !contains(capaIDs, inv.CapaID) {
			continue
		}
		out = append(out, inv)
	}
	return out, nil
}

// Capa returns the CAPA node with the given id.
func (s *MemoryStore) Capa(ctx context.Context, id string) (*Capa, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.data.Capas {
		if c.ID == id {
			c := c
			return &c, nil
		}
	}
	return nil, nil
}

// Batch returns the batch with the given number.
func (s *MemoryStore) Batch(ctx context.Context, number string) (*Batch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, b := range s.data.Batches {
		if b.BatchNumber == number {
			b := b
			return &b, nil
		}
	}
	return nil, nil
}

// Brand returns the brand with the given name, compared case-insensitively.
func (s *MemoryStore) Brand(ctx context.Context, name string) (*Brand, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, b := range s.data.Brands {
		if strings.EqualFold(b.Name, name) {
			b := b
			return &b, nil
		}
	}
	return nil, nil
}

// Batches returns every batch of a brand.
func (s *MemoryStore) Batches(brand string) []Batch {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Batch
	for _, b := range s.data.Batches {
		if strings.EqualFold(b.Brand, brand) {
			out = append(out, b)
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// SeedDataset returns the built-in development dataset.
func SeedDataset() Dataset {
	return Dataset{
		Investigations: []Investigation{
			{
				ID: "INV001", CapaID: "CAPA2024001", Name: "Quality Investigation - Batch Deviation",
				Brand: "Avino", BatchNumber: "AV2024001", Status: "Open", CreatedDate: "2024-01-15",
				PDFLink:      "https://documents.company.com/investigations/INV001.pdf",
				Investigator: "Dr. Smith", Department: "Quality Assurance",
			},
			{
				ID: "INV002", CapaID: "CAPA2024002", Name: "Manufacturing Investigation - Process Deviation",
				Brand: "Avino", BatchNumber: "AV2024002", Status: "In Progress", CreatedDate: "2024-02-10",
				PDFLink:      "https://documents.company.com/investigations/INV002.pdf",
				Investigator: "Dr. Johnson", Department: "Manufacturing",
			},
			{
				ID: "INV003", CapaID: "CAPA2024003", Name: "Clinical Investigation - Adverse Event",
				Brand: "Avino", BatchNumber: "AV2024003", Status: "Closed", CreatedDate: "2024-03-05",
				PDFLink:      "https://documents.company.com/investigations/INV003.pdf",
				Investigator: "Dr. Wilson", Department: "Clinical Affairs",
			},
		},
		Capas: []Capa{
			{ID: "CAPA2024001", Title: "Improve Batch Documentation Process", Status: "Open",
				CreatedDate: "2024-01-15", DueDate: "2024-06-15", AssignedTo: "Quality Team"},
			{ID: "CAPA2024002", Title: "Enhance Manufacturing Controls", Status: "In Progress",
				CreatedDate: "2024-02-10", DueDate: "2024-07-10", AssignedTo: "Manufacturing Team"},
		},
		Brands: []Brand{
			{ID: "BRAND001", Name: "Avino", TherapeuticArea: "Oncology", ActiveIngredient: "Avinotuzumab",
				MarketStatus: "Approved", ApprovalDate: "2023-06-15"},
		},
		Batches: []Batch{
			{BatchNumber: "AV2024001", Brand: "Avino", ManufactureDate: "2024-01-10", ExpiryDate: "2026-01-10",
				Quantity: "1000 units", Status: "Released"},
			{BatchNumber: "AV2024002", Brand: "Avino", ManufactureDate: "2024-02-05", ExpiryDate: "2026-02-05",
				Quantity: "1500 units", Status: "Released"},
			{BatchNumber: "AV2024003", Brand: "Avino", ManufactureDate: "2024-03-01", ExpiryDate: "2026-03-01",
				Quantity: "2000 units", Status: "Quarantine"},
		},
	}
}
