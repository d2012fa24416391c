package verify

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rosterbridge/internal/model"
	"github.com/roach88/rosterbridge/internal/reconcile"
	"github.com/roach88/rosterbridge/internal/roster"
	"github.com/roach88/rosterbridge/internal/store"
	"github.com/roach88/rosterbridge/internal/testutil"
)

var (
	t0      = time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)
	discard = slog.New(slog.NewTextHandler(io.Discard, nil))
)

type env struct {
	t      *testing.T
	store  *store.Store
	roster *roster.StaticReader
	engine *reconcile.Engine
	clock  *testutil.StepClock
}

func newEnv(t *testing.T) *env {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "verify.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	clock := testutil.NewStepClock(t0, time.Minute)
	reader := &roster.StaticReader{}
	return &env{
		t:      t,
		store:  s,
		roster: reader,
		clock:  clock,
		engine: reconcile.New(s, reader,
			reconcile.WithClock(clock),
			reconcile.WithRunIDGenerator(testutil.NewSequenceGenerator("run")),
			reconcile.WithOrdering(roster.Ordering{By: roster.SortSource}),
			reconcile.WithLogger(discard),
		),
	}
}

func (e *env) reconcile(ids ...string) {
	e.t.Helper()
	employees := make([]model.Employee, len(ids))
	for i, id := range ids {
		employees[i] = model.Employee{StableID: id, DisplayName: "Name " + id}
	}
	e.roster.Employees = employees
	_, err := e.engine.Reconcile(context.Background())
	require.NoError(e.t, err)
}

func (e *env) annotate(id string, ordinal int) {
	e.t.Helper()
	require.NoError(e.t, e.store.InsertAnnotation(context.Background(), model.Annotation{
		ID: id, Sender: "pm", TargetOrdinal: ordinal, CreatedAt: e.clock.Now(),
	}))
}

func (e *env) resolve(id string, stableID *string, c model.Confidence) {
	e.t.Helper()
	require.NoError(e.t, e.store.SetResolution(context.Background(), id, stableID, c, store.ResolutionAudit{
		PassID: "pass-1", Tier: model.TierExact, At: e.clock.Now(),
	}))
}

func (e *env) verify() Report {
	e.t.Helper()
	r, err := New(e.store, WithNow(e.clock.Peek), WithLogger(discard)).Verify(context.Background())
	require.NoError(e.t, err)
	return r
}

func (e *env) exec(query string, args ...any) {
	e.t.Helper()
	_, err := e.store.DB().Exec(query, args...)
	require.NoError(e.t, err)
}

func TestVerify_EmptyStore(t *testing.T) {
	e := newEnv(t)

	r := e.verify()

	assert.False(t, r.Fatal())
	assert.NoError(t, r.Err())
	assert.Empty(t, r.LastRunID)
	assert.Empty(t, r.CheckpointID)
	assert.False(t, r.CountMismatch)
	assert.Equal(t, 0, r.UnresolvedCount)
	assert.NotNil(t, r.UnresolvedIDs)
	assert.NotNil(t, r.Violations)
	assert.Equal(t, t0, r.GeneratedAt)
}

func TestVerify_CleanHistory(t *testing.T) {
	e := newEnv(t)
	e.reconcile("A", "B", "C")
	e.reconcile("B", "A", "C")

	r := e.verify()

	assert.False(t, r.Fatal())
	assert.Empty(t, r.Violations)
	assert.Equal(t, "run-2", r.LastRunID)
	assert.Equal(t, 3, r.CurrentMappings)
	assert.Equal(t, 3, r.LastSnapshotSize)
	assert.False(t, r.CountMismatch)
	assert.Equal(t, 2, r.RunsSinceCheckpoint)
	assert.Equal(t, 2, r.MovedSinceCheckpoint)
}

func TestVerify_MovedCountsFromLastCheckpoint(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.reconcile("A", "B", "C")
	e.reconcile("B", "A", "C")

	cp, err := e.verify().Checkpoint("cp-1")
	require.NoError(t, err)
	require.NoError(t, e.store.AppendCheckpoint(ctx, cp))

	e.reconcile("B", "A", "C")
	e.reconcile("C", "B", "A")

	r := e.verify()
	assert.Equal(t, "cp-1", r.CheckpointID)
	assert.Equal(t, 2, r.RunsSinceCheckpoint)
	assert.Equal(t, 3, r.MovedSinceCheckpoint)
}

func TestVerify_CheckpointStoresReport(t *testing.T) {
	e := newEnv(t)
	e.reconcile("A")
	r := e.verify()

	cp, err := r.Checkpoint("cp-1")
	require.NoError(t, err)

	assert.Equal(t, "run-1", cp.LastRunID)
	assert.Equal(t, r.GeneratedAt, cp.At)
	var decoded Report
	require.NoError(t, json.Unmarshal([]byte(cp.Report), &decoded))
	assert.Equal(t, r.LastRunID, decoded.LastRunID)
	assert.Equal(t, r.CurrentMappings, decoded.CurrentMappings)
}

func TestVerify_UnresolvedAndOrphaned(t *testing.T) {
	e := newEnv(t)
	e.reconcile("A", "B")
	e.annotate("ann-1", 1)
	e.annotate("ann-2", 2)
	e.annotate("ann-3", 99)
	e.annotate("ann-4", 1)

	a := "A"
	e.resolve("ann-1", &a, model.ConfidenceExact)
	e.resolve("ann-3", nil, model.ConfidenceUnresolved)
	e.resolve("ann-2", nil, model.ConfidenceUnresolved)

	r := e.verify()

	assert.Equal(t, 2, r.UnresolvedCount)
	assert.Equal(t, []string{"ann-2", "ann-3"}, r.UnresolvedIDs)
	assert.Equal(t, []string{"ann-3"}, r.OrphanedIDs)
	assert.Equal(t, map[string]int{"exact": 1, "unresolved": 2, "none": 1}, r.Annotations)
	assert.False(t, r.Fatal())
}

func TestVerify_DanglingReferenceIsReportedNotFatal(t *testing.T) {
	e := newEnv(t)
	e.reconcile("A", "B")
	e.annotate("ann-1", 1)
	e.annotate("ann-2", 1)
	a := "A"
	e.resolve("ann-1", &a, model.ConfidenceExact)
	e.resolve("ann-2", &a, model.ConfidenceInferred)

	e.reconcile("B")

	r := e.verify()

	require.Len(t, r.Violations, 1)
	v := r.Violations[0]
	assert.Equal(t, ViolationDanglingReference, v.Kind)
	assert.Equal(t, "A", v.Key)
	assert.Equal(t, []string{"ann-1", "ann-2"}, v.AnnotationIDs)
	assert.False(t, r.Fatal())
	assert.NoError(t, r.Err())
	assert.Contains(t, v.String(), `"A" is not on the roster`)
}

func TestVerify_DuplicateCurrentEntriesAreFatal(t *testing.T) {
	e := newEnv(t)
	e.reconcile("A", "B")

	// Simulate a hand-patched database.
	e.exec("DROP INDEX idx_mappings_current_ordinal")
	e.exec("DROP INDEX idx_mappings_current_stable_id")
	e.exec(`INSERT INTO mappings (ordinal, stable_id, display_name, state, created_at, last_verified_at, run_id)
		VALUES (3, 'A', 'Name A', 'mapped', 0, 0, 'run-1')`)
	e.exec(`INSERT INTO mappings (ordinal, stable_id, display_name, state, created_at, last_verified_at, run_id)
		VALUES (2, 'C', 'Name C', 'mapped', 0, 0, 'run-1')`)

	r := e.verify()

	require.True(t, r.Fatal())
	kinds := []ViolationKind{}
	for _, v := range r.Violations {
		kinds = append(kinds, v.Kind)
		assert.True(t, v.Fatal)
	}
	assert.Equal(t, []ViolationKind{ViolationDuplicateStableID, ViolationDuplicateOrdinal}, kinds)
	assert.Equal(t, []int{1, 3}, r.Violations[0].Ordinals)
	assert.Equal(t, []string{"B", "C"}, r.Violations[1].StableIDs)
	assert.True(t, r.CountMismatch)
	assert.Equal(t, 4, r.CurrentMappings)

	err := r.Err()
	require.Error(t, err)
	assert.True(t, IsInvariantViolation(err))
	assert.Contains(t, err.Error(), `stable id "A" is current at ordinals 1,3`)
	assert.Contains(t, err.Error(), "ordinal 2 is current for stable ids B,C")
}

func TestVerify_CountMismatch(t *testing.T) {
	e := newEnv(t)
	e.reconcile("A", "B", "C")
	e.exec(`UPDATE mappings SET state = 'stale', superseded_at = 1 WHERE stable_id = 'C'`)

	r := e.verify()

	assert.True(t, r.CountMismatch)
	assert.Equal(t, 2, r.CurrentMappings)
	assert.Equal(t, 3, r.LastSnapshotSize)
	assert.False(t, r.Fatal())
}

func TestVerify_IsReadOnly(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.reconcile("A", "B")
	e.annotate("ann-1", 7)
	before, err := e.store.AllMappings(ctx)
	require.NoError(t, err)

	e.verify()
	e.verify()

	after, err := e.store.AllMappings(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	_, err = e.store.LastCheckpoint(ctx)
	assert.ErrorIs(t, err, store.ErrNotFound)
	ann, err := e.store.GetAnnotation(ctx, "ann-1")
	require.NoError(t, err)
	assert.Equal(t, model.ConfidenceNone, ann.Confidence)
}
