package state

import "database/sql"

const schemaVersionTable = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY,
	applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
)`

// migration is one forward-only schema step.
type migration struct {
	version int
	name    string
	ddl     string
}

func (m migration) apply(tx *sql.Tx) error {
	if _, err := tx.Exec(m.ddl); err != nil {
		return err
	}
	_, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", m.version)
	return err
}

// migrations are applied in order. Never edit a released entry; append a new one.
var migrations = []migration{
	{
		version: 1,
		name:    "runs",
		ddl: `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	query TEXT NOT NULL,
	phase TEXT NOT NULL,
	overall_status TEXT NOT NULL DEFAULT '',
	outcome TEXT NOT NULL DEFAULT '',
	state_json TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	terminated_at DATETIME
);
CREATE INDEX IF NOT EXISTS idx_runs_phase ON runs(phase);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);`,
	},
	{
		version: 2,
		name:    "pending_approvals",
		ddl: `
CREATE TABLE IF NOT EXISTS pending_approvals (
	run_id TEXT PRIMARY KEY REFERENCES runs(id) ON DELETE CASCADE,
	requested_at DATETIME NOT NULL,
	deadline DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_pending_approvals_deadline ON pending_approvals(deadline);`,
	},
}
