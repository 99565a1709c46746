package state

import (
	"io"
	"time"

	"github.com/sauravmaulick/GenAICoordinator-Replit/pkg/models"
)

// RunStore handles run persistence operations.
type RunStore interface {
	SaveRun(s *models.RunState) error
	GetRun(id string) (*models.RunState, error)
	ListRuns(filter RunFilter) ([]RunSummary, error)
	ListActiveRuns() ([]*models.RunState, error)
}

// ApprovalStore handles the pending approval records of parked runs.
type ApprovalStore interface {
	SavePendingApproval(p PendingApproval) error
	DeletePendingApproval(runID string) error
	ListPendingApprovals() ([]PendingApproval, error)
}

// Migrator handles database schema migrations.
type Migrator interface {
	// Migrate applies all pending schema migrations.
	Migrate() error
}

// StateStore composes everything the coordinator persists.
type StateStore interface {
	io.Closer
	Migrator
	RunStore
	ApprovalStore
}

// PendingApproval is the serializable record of a run suspended at the approval gate.
type PendingApproval struct {
	RunID       string    `json:"run_id"`
	RequestedAt time.Time `json:"requested_at"`
	Deadline    time.Time `json:"deadline"`
}

// RunFilter narrows ListRuns.
type RunFilter struct {
	// Phase restricts results to one phase when non-empty.
	Phase models.Phase
	// ActiveOnly excludes terminated runs.
	ActiveOnly bool
	// Limit caps the number of rows; zero means 50.
	Limit int
}

// RunSummary is the indexed projection of a stored run.
type RunSummary struct {
	ID            string                 `json:"id"`
	Query         string                 `json:"query"`
	Phase         models.Phase           `json:"phase"`
	OverallStatus models.OverallStatus   `json:"overall_status,omitempty"`
	Outcome       models.NotifierOutcome `json:"outcome,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
	TerminatedAt  *time.Time             `json:"terminated_at,omitempty"`
}

// Compile-time verification that DB implements all interfaces.
var (
	_ StateStore    = (*DB)(nil)
	_ RunStore      = (*DB)(nil)
	_ ApprovalStore = (*DB)(nil)
)
