package state

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sauravmaulick/GenAICoordinator-Replit/pkg/models"
)

// SaveRun inserts or replaces the stored snapshot of a run.
func (db *DB) SaveRun(s *models.RunState) error {
	if s == nil || s.RunID == "" {
		return fmt.Errorf("save run: missing run id")
	}

	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode run %s: %w", s.RunID, err)
	}

	var outcome string
	if s.Notification != nil {
		outcome = string(s.Notification.Outcome)
	}

	_, err = db.Exec(`
		INSERT INTO runs (id, query, phase, overall_status, outcome, state_json, created_at, updated_at, terminated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			phase = excluded.phase,
			overall_status = excluded.overall_status,
			outcome = excluded.outcome,
			state_json = excluded.state_json,
			updated_at = excluded.updated_at,
			terminated_at = excluded.terminated_at
	`, s.RunID, s.Query.Text, string(s.Phase), string(s.OverallStatus()), outcome, string(data),
		formatTime(s.CreatedAt), formatTime(s.UpdatedAt), nullableTime(s.TerminatedAt))
	if err != nil {
		return fmt.Errorf("save run %s: %w", s.RunID, err)
	}
	return nil
}

// GetRun retrieves a run by ID. It returns nil, nil when the run does not exist.
func (db *DB) GetRun(id string) (*models.RunState, error) {
	var data string
	err := db.QueryRow(`SELECT state_json FROM runs WHERE id = ?`, id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return decodeRun(data)
}

// FindRunByPrefix resolves a unique run ID from a prefix, as typed on the command line.
func (db *DB) FindRunByPrefix(prefix string) (*models.RunState, error) {
	rows, err := db.Query(`SELECT state_json FROM runs WHERE id LIKE ? LIMIT 2`, stripLikeWildcards(prefix)+"%")
	if err != nil {
		return nil, fmt.Errorf("find run: %w", err)
	}
	defer rows.Close()

	var matches []string
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		matches = append(matches, data)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}

	switch len(matches) {
	case 0:
		return nil, nil
	case 1:
		return decodeRun(matches[0])
	default:
		return nil, fmt.Errorf("run prefix %q is ambiguous", prefix)
	}
}

// ListRuns returns indexed run summaries, newest first.
func (db *DB) ListRuns(filter RunFilter) ([]RunSummary, error) {
	var where []string
	var args []any
	if filter.Phase != "" {
		where = append(where, "phase = ?")
		args = append(args, string(filter.Phase))
	}
	if filter.ActiveOnly {
		where = append(where, "terminated_at IS NULL")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	q := `SELECT id, query, phase, overall_status, outcome, created_at, updated_at, terminated_at FROM runs`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var r RunSummary
		var createdAt, updatedAt string
		var terminatedAt sql.NullString
		if err := rows.Scan(&r.ID, &r.Query, &r.Phase, &r.OverallStatus, &r.Outcome, &createdAt, &updatedAt, &terminatedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.CreatedAt, _ = parseTime(createdAt)
		r.UpdatedAt, _ = parseTime(updatedAt)
		r.TerminatedAt = parseNullableTime(terminatedAt)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// ListActiveRuns returns the full state of every run that has not terminated.
func (db *DB) ListActiveRuns() ([]*models.RunState, error) {
	rows, err := db.Query(`SELECT state_json FROM runs WHERE terminated_at IS NULL ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list active runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.RunState
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		s, err := decodeRun(data)
		if err != nil {
			return nil, err
		}
		runs = append(runs, s)
	}
	return runs, rows.Err()
}

// SavePendingApproval records that a run is parked at the approval gate.
func (db *DB) SavePendingApproval(p PendingApproval) error {
	_, err := db.Exec(`
		INSERT INTO pending_approvals (run_id, requested_at, deadline)
		VALUES (?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET requested_at = excluded.requested_at, deadline = excluded.deadline
	`, p.RunID, formatTime(p.RequestedAt), formatTime(p.Deadline))
	if err != nil {
		return fmt.Errorf("save pending approval %s: %w", p.RunID, err)
	}
	return nil
}

// DeletePendingApproval removes the pending record of a run. Missing records are ignored.
func (db *DB) DeletePendingApproval(runID string) error {
	if _, err := db.Exec(`DELETE FROM pending_approvals WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("delete pending approval %s: %w", runID, err)
	}
	return nil
}

// ListPendingApprovals returns every parked run ordered by deadline.
func (db *DB) ListPendingApprovals() ([]PendingApproval, error) {
	rows, err := db.Query(`SELECT run_id, requested_at, deadline FROM pending_approvals ORDER BY deadline`)
	if err != nil {
		return nil, fmt.Errorf("list pending approvals: %w", err)
	}
	defer rows.Close()

	var pending []PendingApproval
	for rows.Next() {
		var p PendingApproval
		var requestedAt, deadline string
		if err := rows.Scan(&p.RunID, &requestedAt, &deadline); err != nil {
			return nil, fmt.Errorf("scan pending approval: %w", err)
		}
		p.RequestedAt, _ = parseTime(requestedAt)
		p.Deadline, _ = parseTime(deadline)
		pending = append(pending, p)
	}
	return pending, rows.Err()
}

func decodeRun(data string) (*models.RunState, error) {
	var s models.RunState
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return nil, fmt.Errorf("decode run: %w", err)
	}
	return &s, nil
}

func stripLikeWildcards(s string) string {
	r := strings.NewReplacer("%", "", "_", "")
	return r.Replace(s)
}

// PurgeTerminatedRuns deletes runs that terminated more than olderThan ago
// and returns how many were removed.
func (db *DB) PurgeTerminatedRuns(olderThan time.Duration) (int64, error) {
	res, err := db.Exec(`DELETE FROM runs WHERE terminated_at IS NOT NULL AND terminated_at < ?`,
		formatTime(time.Now().Add(-olderThan)))
	if err != nil {
		return 0, fmt.Errorf("purge terminated runs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge terminated runs: %w", err)
	}
	return n, nil
}
