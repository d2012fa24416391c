package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rosterbridge/internal/model"
	"github.com/roach88/rosterbridge/internal/reconcile"
	"github.com/roach88/rosterbridge/internal/resolve"
)

var (
	_ reconcile.Recorder = (*Metrics)(nil)
	_ resolve.Recorder   = (*Metrics)(nil)
)

func TestObserveRun(t *testing.T) {
	m := New()
	ts := time.Date(2026, 7, 1, 6, 0, 0, 0, time.UTC)

	m.ObserveRun(model.ReconciliationRun{
		Kind: model.RunReconcile, Timestamp: ts, SnapshotSize: 12,
		AddedCount: 2, RemovedCount: 1, MovedCount: 4,
	}, 250*time.Millisecond)
	m.ObserveRun(model.ReconciliationRun{
		Kind: model.RunReconcile, Timestamp: ts.Add(time.Hour), SnapshotSize: 11, MovedCount: 1,
	}, time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.runs.WithLabelValues("reconcile")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.changes.WithLabelValues("added")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.changes.WithLabelValues("moved")))
	assert.Equal(t, 11.0, testutil.ToFloat64(m.snapshotSize))
	assert.Equal(t, float64(ts.Add(time.Hour).Unix()), testutil.ToFloat64(m.lastRunTime.WithLabelValues("reconcile")))
}

func TestObserveFailuresAndRetries(t *testing.T) {
	m := New()

	m.ObserveFetchRetry()
	m.ObserveFetchRetry()
	m.ObserveRunFailure(model.RunRebuild, string(reconcile.ErrCodeSnapshotFetch))
	m.ObserveRunFailure(model.RunReconcile, "")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.fetchRetries))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runFailures.WithLabelValues("rebuild", "SNAPSHOT_FETCH_FAILED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runFailures.WithLabelValues("reconcile", "UNKNOWN")))
}

func TestObservePass(t *testing.T) {
	m := New()

	m.ObserveResolution(model.ConfidenceExact, model.TierExact, true)
	m.ObserveResolution(model.ConfidenceExact, model.TierExact, false)
	m.ObserveResolution(model.ConfidenceUnresolved, model.TierContent, true)
	m.ObservePass(time.Second, 3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.resolutions.WithLabelValues("exact", "exact")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.resolutions.WithLabelValues("unresolved", "content")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.updates))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.passConflicts))
}

func TestWriteTextfile(t *testing.T) {
	m := New()
	m.ObserveVerification(7, map[string]int{"duplicate_stable_id": 1})
	path := filepath.Join(t.TempDir(), "rosterbridge.prom")

	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, "rosterbridge_verify_unresolved_annotations 7")
	assert.Contains(t, out, `rosterbridge_verify_violations{kind="duplicate_stable_id"} 1`)
	assert.Contains(t, out, "# TYPE rosterbridge_reconcile_fetch_retries_total counter")
}

func TestWriteTextfile_BadPath(t *testing.T) {
	m := New()
	err := m.WriteTextfile(filepath.Join(t.TempDir(), "missing", "dir", "x.prom"))
	assert.ErrorContains(t, err, "write metrics textfile")
}
