package signals

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/sauravmaulick/GenAICoordinator-Replit/pkg/models"
)

// WriteQuery drops a query signal into dir and returns the run ID that
// the coordinator will use for it.
func WriteQuery(dir, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("signals: empty query")
	}
	id := uuid.NewString()
	if err := writeAtomic(dir, id+querySuffix, []byte(text)); err != nil {
		return "", err
	}
	return id, nil
}

// WriteDecision drops an approval decision for runID into dir.
func WriteDecision(dir, runID string, outcome models.ApprovalOutcome, editedText string) error {
	if runID == "" {
		return fmt.Errorf("signals: empty run id")
	}
	if !outcome.Valid() {
		return fmt.Errorf("signals: invalid outcome %q", outcome)
	}
	data, err := json.Marshal(decisionFile{Outcome: outcome, EditedText: editedText})
	if err != nil {
		return fmt.Errorf("signals: encode decision: %w", err)
	}
	return writeAtomic(dir, runID+decisionSuffix, data)
}

// WriteCancel drops a cancel signal for runID into dir.
func WriteCancel(dir, runID string) error {
	if runID == "" {
		return fmt.Errorf("signals: empty run id")
	}
	return writeAtomic(dir, runID+cancelSuffix, nil)
}

// writeAtomic writes name via a temporary file and a rename, so the
// watcher never reads a partial signal.
func writeAtomic(dir, name string, data []byte) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("signals: create %s: %w", dir, err)
	}
	final := filepath.Join(dir, name)
	tmp := final + tempSuffix
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("signals: write %s: %w", name, err)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("signals: publish %s: %w", name, err)
	}
	return nil
}
