// Package metrics collects Prometheus metrics for reconciliation runs,
// resolution passes and verifier reports.
//
// rosterbridge runs as a batch job, so metrics are not scraped from a
// listener. Each command writes its registry to a node-exporter textfile
// collector file when a path is configured.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/roach88/rosterbridge/internal/model"
)

const namespace = "rosterbridge"

// Metrics implements reconcile.Recorder and resolve.Recorder on a private
// registry.
type Metrics struct {
	registry *prometheus.Registry

	runs          *prometheus.CounterVec
	runFailures   *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	changes       *prometheus.CounterVec
	fetchRetries  prometheus.Counter
	snapshotSize  prometheus.Gauge
	lastRunTime   *prometheus.GaugeVec
	resolutions   *prometheus.CounterVec
	updates       prometheus.Counter
	passDuration  prometheus.Histogram
	passConflicts prometheus.Gauge
	unresolved    prometheus.Gauge
	violations    *prometheus.GaugeVec
}

// New registers all metrics on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "runs_total",
			Help:      "Completed reconciliation runs by kind",
		}, []string{"kind"}),
		runFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "failures_total",
			Help:      "Failed reconciliation runs by kind and error code",
		}, []string{"kind", "code"}),
		runDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "duration_seconds",
			Help:      "Reconciliation run duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		}, []string{"kind"}),
		changes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "changes_total",
			Help:      "Mapping changes detected by reconciliation runs",
		}, []string{"change"}),
		fetchRetries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "fetch_retries_total",
			Help:      "Roster snapshot fetch attempts that failed and were retried",
		}),
		snapshotSize: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "snapshot_size",
			Help:      "Number of employees in the last roster snapshot",
		}),
		lastRunTime: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time of the last completed run by kind",
		}, []string{"kind"}),

		resolutions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resolve",
			Name:      "resolutions_total",
			Help:      "Annotation resolutions by confidence and tier",
		}, []string{"confidence", "tier"}),
		updates: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resolve",
			Name:      "updates_total",
			Help:      "Annotation resolutions that changed and were persisted",
		}),
		passDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "resolve",
			Name:      "pass_duration_seconds",
			Help:      "Resolution pass duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		}),
		passConflicts: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "resolve",
			Name:      "conflicts",
			Help:      "Reattributions withheld by the last resolution pass",
		}),

		unresolved: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "verify",
			Name:      "unresolved_annotations",
			Help:      "Unresolved annotations at the last verification",
		}),
		violations: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "verify",
			Name:      "violations",
			Help:      "Invariant violations at the last verification by kind",
		}, []string{"kind"}),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveRun records a completed reconciliation or rebuild.
func (m *Metrics) ObserveRun(run model.ReconciliationRun, d time.Duration) {
	kind := string(run.Kind)
	m.runs.WithLabelValues(kind).Inc()
	m.runDuration.WithLabelValues(kind).Observe(d.Seconds())
	m.changes.WithLabelValues("added").Add(float64(run.AddedCount))
	m.changes.WithLabelValues("removed").Add(float64(run.RemovedCount))
	m.changes.WithLabelValues("moved").Add(float64(run.MovedCount))
	m.snapshotSize.Set(float64(run.SnapshotSize))
	m.lastRunTime.WithLabelValues(kind).Set(float64(run.Timestamp.Unix()))
}

// ObserveRunFailure records a failed run.
func (m *Metrics) ObserveRunFailure(kind model.RunKind, code string) {
	if code == "" {
		code = "UNKNOWN"
	}
	m.runFailures.WithLabelValues(string(kind), code).Inc()
}

// ObserveFetchRetry records one retried roster fetch.
func (m *Metrics) ObserveFetchRetry() {
	m.fetchRetries.Inc()
}

// ObserveResolution records one annotation's outcome in a pass.
func (m *Metrics) ObserveResolution(confidence model.Confidence, tier model.Tier, changed bool) {
	m.resolutions.WithLabelValues(string(confidence), string(tier)).Inc()
	if changed {
		m.updates.Inc()
	}
}

// ObservePass records a finished resolution pass.
func (m *Metrics) ObservePass(d time.Duration, conflicts int) {
	m.passDuration.Observe(d.Seconds())
	m.passConflicts.Set(float64(conflicts))
}

// ObserveVerification records the headline numbers of a verifier report.
// violations maps violation kind to count; kinds absent from the map are
// left untouched.
func (m *Metrics) ObserveVerification(unresolved int, violations map[string]int) {
	m.unresolved.Set(float64(unresolved))
	for kind, n := range violations {
		m.violations.WithLabelValues(kind).Set(float64(n))
	}
}

// WriteTextfile writes the registry in the text exposition format to path,
// atomically, for the node-exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
