package signals

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sauravmaulick/GenAICoordinator-Replit/pkg/models"
)

type call struct {
	kind     Kind
	id       string
	text     string
	decision models.ApprovalDecision
}

type fakeDriver struct {
	mu    sync.Mutex
	calls []call
	err   error
}

func (f *fakeDriver) record(c call) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
	return f.err
}

func (f *fakeDriver) SubmitQueryWithID(id, text string) error {
	return f.record(call{kind: KindQuery, id: id, text: text})
}

func (f *fakeDriver) SubmitApprovalDecision(id string, d models.ApprovalDecision) error {
	return f.record(call{kind: KindDecision, id: id, decision: d})
}

func (f *fakeDriver) CancelRun(id string) error {
	return f.record(call{kind: KindCancel, id: id})
}

type applied struct {
	sig Signal
	err error
}

func startWatcher(t *testing.T, dir string, driver Driver) <-chan applied {
	t.Helper()
	ch := make(chan applied, 16)
	w := NewWatcher(dir, driver, WithAppliedHook(func(s Signal, err error) { ch <- applied{s, err} }))
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(func() { w.Close() })
	return ch
}

func next(t *testing.T, ch <-chan applied) applied {
	t.Helper()
	select {
	case a := <-ch:
		return a
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for signal")
		return applied{}
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		ok   bool
		kind Kind
		id   string
	}{
		{"abc.query", true, KindQuery, "abc"},
		{"abc.decision.json", true, KindDecision, "abc"},
		{"abc.cancel", true, KindCancel, "abc"},
		{"abc.query.tmp", false, "", ""},
		{".query", false, "", ""},
		{"notes.txt", false, "", ""},
	}
	for _, tt := range tests {
		sig, ok := Parse(filepath.Join("/signals", tt.name))
		assert.Equal(t, tt.ok, ok, tt.name)
		if tt.ok {
			assert.Equal(t, tt.kind, sig.Kind, tt.name)
			assert.Equal(t, tt.id, sig.RunID, tt.name)
		}
	}
}

func TestWatcher_AppliesNewSignals(t *testing.T) {
	dir := t.TempDir()
	driver := &fakeDriver{}
	ch := startWatcher(t, dir, driver)

	id, err := WriteQuery(dir, "  Summarize CAPA data for brand Avino  ")
	require.NoError(t, err)
	a := next(t, ch)
	assert.NoError(t, a.err)
	assert.Equal(t, KindQuery, a.sig.Kind)
	assert.Equal(t, id, a.sig.RunID)

	require.NoError(t, WriteDecision(dir, id, models.ApprovalEdited, "edited text"))
	next(t, ch)
	require.NoError(t, WriteCancel(dir, id))
	next(t, ch)

	driver.mu.Lock()
	defer driver.mu.Unlock()
	require.Len(t, driver.calls, 3)
	assert.Equal(t, "Summarize CAPA data for brand Avino", driver.calls[0].text)
	assert.Equal(t, models.ApprovalEdited, driver.calls[1].decision.Outcome)
	assert.Equal(t, "edited text", driver.calls[1].decision.EditedText)
	assert.Equal(t, models.ReasonReviewer, driver.calls[1].decision.Reason)
	assert.Equal(t, KindCancel, driver.calls[2].kind)

	_, statErr := os.Stat(filepath.Join(dir, id+querySuffix))
	assert.True(t, os.IsNotExist(statErr), "expected signal file removed")
}

func TestWatcher_ProcessesExistingFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WriteCancel(dir, "run-1"))
	require.NoError(t, WriteDecision(dir, "run-2", models.ApprovalApproved, ""))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README"), []byte("ignored"), 0644))

	driver := &fakeDriver{}
	ch := startWatcher(t, dir, driver)

	seen := map[string]Kind{}
	for i := 0; i < 2; i++ {
		a := next(t, ch)
		seen[a.sig.RunID] = a.sig.Kind
	}
	assert.Equal(t, map[string]Kind{"run-1": KindCancel, "run-2": KindDecision}, seen)

	_, err := os.Stat(filepath.Join(dir, "README"))
	assert.NoError(t, err, "expected unrelated file left alone")
}

func TestWatcher_DriverErrorStillConsumesFile(t *testing.T) {
	dir := t.TempDir()
	driver := &fakeDriver{err: errors.New("run not found")}
	ch := startWatcher(t, dir, driver)

	require.NoError(t, WriteCancel(dir, "ghost"))
	a := next(t, ch)
	assert.EqualError(t, a.err, "run not found")

	_, err := os.Stat(filepath.Join(dir, "ghost"+cancelSuffix))
	assert.True(t, os.IsNotExist(err))
}

func TestWatcher_MalformedDecision(t *testing.T) {
	dir := t.TempDir()
	driver := &fakeDriver{}
	ch := startWatcher(t, dir, driver)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "run-9"+decisionSuffix), []byte("{not json"), 0644))
	a := next(t, ch)
	assert.ErrorContains(t, a.err, "decode decision")
	assert.Empty(t, driver.calls)
}

func TestWriters_Validate(t *testing.T) {
	dir := t.TempDir()
	_, err := WriteQuery(dir, "   ")
	assert.Error(t, err)
	assert.Error(t, WriteDecision(dir, "run", "maybe", ""))
	assert.Error(t, WriteDecision(dir, "", models.ApprovalApproved, ""))
	assert.Error(t, WriteCancel(dir, ""))
}

func TestWatcher_StartWithoutDriver(t *testing.T) {
	w := NewWatcher(t.TempDir(), nil)
	assert.Error(t, w.Start(context.Background()))
	assert.NoError(t, w.Close())
}
