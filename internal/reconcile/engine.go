package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/roach88/rosterbridge/internal/model"
	"github.com/roach88/rosterbridge/internal/roster"
	"github.com/roach88/rosterbridge/internal/store"
)

const (
	// DefaultMaxTries bounds roster fetch attempts per run.
	DefaultMaxTries = 5

	// DefaultInitialInterval is the first retry delay; later delays grow
	// exponentially.
	DefaultInitialInterval = 500 * time.Millisecond

	// DefaultMovedSampleSize bounds the moved entries kept in a run record.
	DefaultMovedSampleSize = 50
)

// Recorder receives run outcomes. Implemented by metrics.Metrics.
type Recorder interface {
	ObserveRun(run model.ReconciliationRun, duration time.Duration)
	ObserveRunFailure(kind model.RunKind, code string)
	ObserveFetchRetry()
}

type nopRecorder struct{}

func (nopRecorder) ObserveRun(model.ReconciliationRun, time.Duration) {}
func (nopRecorder) ObserveRunFailure(model.RunKind, string) {}
func (nopRecorder) ObserveFetchRetry() {}

// Result is the outcome of a run or preview.
type Result struct {
	Run       model.ReconciliationRun
	Changeset model.Changeset
	Snapshot  []model.OrdinalEmployee
}

// Engine runs reconciliations against one store and one roster source.
type Engine struct {
	store    *store.Store
	reader   roster.Reader
	clock    Clock
	ids      IDGenerator
	ordering roster.Ordering
	logger   *slog.Logger
	recorder Recorder

	maxTries        uint
	initialInterval time.Duration
	movedSampleSize int
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the run timestamp source.
func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithRunIDGenerator sets the run ID source.
func WithRunIDGenerator(g IDGenerator) Option {
	return func(e *Engine) { e.ids = g }
}

// WithRetry bounds roster fetch retries.
//
// Default: 5 tries starting at 500ms.
// Use WithRetry(1, 0) to fail on the first error.
func WithRetry(maxTries uint, initialInterval time.Duration) Option {
	return func(e *Engine) {
		e.maxTries = maxTries
		e.initialInterval = initialInterval
	}
}

// WithMovedSampleSize bounds the moved entries stored on each run record.
// The run's MovedCount is always exact.
func WithMovedSampleSize(n int) Option {
	return func(e *Engine) { e.movedSampleSize = n }
}

// WithOrdering sets how the roster is sorted before ordinals are assigned.
func WithOrdering(o roster.Ordering) Option {
	return func(e *Engine) { e.ordering = o }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// New creates an Engine reading from reader and writing to s.
func New(s *store.Store, reader roster.Reader, opts ...Option) *Engine {
	e := &Engine{
		store:           s,
		reader:          reader,
		clock:           SystemClock{},
		ids:             UUIDv7Generator{},
		ordering:        roster.Ordering{By: roster.SortStableID},
		logger:          slog.Default(),
		recorder:        nopRecorder{},
		maxTries:        DefaultMaxTries,
		initialInterval: DefaultInitialInterval,
		movedSampleSize: DefaultMovedSampleSize,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Reconcile fetches the roster and applies the drift to the mapping.
//
// Unchanged positions are refreshed in place; moved, added and removed
// employees supersede or create entries. All writes and the run record are
// committed together. An unchanged roster produces an empty changeset and
// no new entries, but still appends a run record. An empty roster is refused
// while anyone is mapped.
func (e *Engine) Reconcile(ctx context.Context) (Result, error) {
	started := time.Now()

	snapshot, err := e.snapshot(ctx)
	if err != nil {
		return Result{}, e.fail(model.RunReconcile, err)
	}
	if len(snapshot) == 0 {
		n, err := e.store.CountCurrentMappings(ctx)
		if err != nil {
			return Result{}, e.fail(model.RunReconcile, fmt.Errorf("reconcile: %w", err))
		}
		if n > 0 {
			return Result{}, e.fail(model.RunReconcile, &RunError{
				Code:    ErrCodeEmptySnapshot,
				Message: fmt.Sprintf("roster is empty but %d employee(s) are mapped", n),
				Details: map[string]string{"current": fmt.Sprintf("%d", n)},
			})
		}
	}

	runID := e.ids.Generate()
	now := e.clock.Now().UTC()

	var res Result
	err = e.store.Update(ctx, runID, now, func(tx *store.Tx) error {
		prev, err := tx.CurrentMappings(ctx)
		if err != nil {
			return err
		}
		cs := Diff(prev, snapshot)

		present := make(map[string]bool, len(snapshot))
		for _, oe := range snapshot {
			present[oe.StableID] = true
			if _, err := tx.UpsertMapping(ctx, oe.Ordinal, oe.StableID, oe.DisplayName); err != nil {
				return err
			}
		}
		if _, err := tx.RetireMissing(ctx, present); err != nil {
			return err
		}

		run, err := e.newRun(runID, model.RunReconcile, now, snapshot, cs, "")
		if err != nil {
			return err
		}
		if err := tx.AppendRun(ctx, run); err != nil {
			return err
		}
		res = Result{Run: run, Changeset: cs, Snapshot: snapshot}
		return nil
	})
	if err != nil {
		return Result{}, e.fail(model.RunReconcile, fmt.Errorf("reconcile run %s: %w", runID, err))
	}

	e.complete(res, time.Since(started))
	return res, nil
}

// Rebuild supersedes every current entry and installs the roster fresh.
//
// Use when the stored mapping is globally untrustworthy. reason is recorded
// on the run and must not be empty.
func (e *Engine) Rebuild(ctx context.Context, reason string) (Result, error) {
	if reason == "" {
		return Result{}, e.fail(model.RunRebuild, &RunError{
			Code:    ErrCodeMissingReason,
			Message: "rebuild requires a reason",
		})
	}
	started := time.Now()

	snapshot, err := e.snapshot(ctx)
	if err != nil {
		return Result{}, e.fail(model.RunRebuild, err)
	}

	runID := e.ids.Generate()
	now := e.clock.Now().UTC()

	var res Result
	err = e.store.Update(ctx, runID, now, func(tx *store.Tx) error {
		prev, err := tx.CurrentMappings(ctx)
		if err != nil {
			return err
		}
		cs := Diff(prev, snapshot)

		if _, err := tx.RebuildAll(ctx, snapshot); err != nil {
			return err
		}

		run, err := e.newRun(runID, model.RunRebuild, now, snapshot, cs, reason)
		if err != nil {
			return err
		}
		if err := tx.AppendRun(ctx, run); err != nil {
			return err
		}
		res = Result{Run: run, Changeset: cs, Snapshot: snapshot}
		return nil
	})
	if err != nil {
		return Result{}, e.fail(model.RunRebuild, fmt.Errorf("rebuild run %s: %w", runID, err))
	}

	e.complete(res, time.Since(started))
	return res, nil
}

// Preview fetches the roster and diffs it against the stored mapping
// without writing anything. The returned run has no ID.
func (e *Engine) Preview(ctx context.Context) (Result, error) {
	snapshot, err := e.snapshot(ctx)
	if err != nil {
		return Result{}, err
	}

	prev, err := e.store.CurrentMappings(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("preview: %w", err)
	}
	cs := Diff(prev, snapshot)

	run, err := e.newRun("", model.RunReconcile, e.clock.Now().UTC(), snapshot, cs, "")
	if err != nil {
		return Result{}, err
	}
	return Result{Run: run, Changeset: cs, Snapshot: snapshot}, nil
}

// snapshot fetches, orders and validates the roster.
func (e *Engine) snapshot(ctx context.Context) ([]model.OrdinalEmployee, error) {
	employees, err := e.fetch(ctx)
	if err != nil {
		return nil, err
	}

	for i, emp := range employees {
		if emp.StableID == "" {
			return nil, &RunError{
				Code:    ErrCodeInvalidSnapshot,
				Message: fmt.Sprintf("roster entry %d has no stable id", i+1),
			}
		}
	}

	snapshot := roster.Assign(employees, e.ordering)
	if dups := roster.Duplicates(snapshot); len(dups) > 0 {
		return nil, NewDuplicateStableIDError(dups)
	}
	return snapshot, nil
}

// fetch calls the reader with exponential backoff. Context cancellation and
// roster.ErrInvalidRoster are not retried.
func (e *Engine) fetch(ctx context.Context) ([]model.Employee, error) {
	attempts := 0
	op := func() ([]model.Employee, error) {
		attempts++
		employees, err := e.reader.FetchRoster(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, roster.ErrInvalidRoster) {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		return employees, nil
	}

	b := backoff.NewExponentialBackOff()
	if e.initialInterval > 0 {
		b.InitialInterval = e.initialInterval
	}

	maxTries := e.maxTries
	if maxTries == 0 {
		maxTries = 1
	}

	employees, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(maxTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			e.recorder.ObserveFetchRetry()
			e.logger.Warn("roster fetch failed, retrying",
				"attempt", attempts,
				"next_in", next,
				"error", err,
			)
		}),
	)
	if err != nil {
		if errors.Is(err, roster.ErrInvalidRoster) {
			return nil, &RunError{
				Code:    ErrCodeInvalidSnapshot,
				Message: "roster source returned unusable data",
				Err:     err,
			}
		}
		return nil, NewSnapshotFetchError(attempts, err)
	}
	return employees, nil
}

func (e *Engine) newRun(id string, kind model.RunKind, now time.Time, snapshot []model.OrdinalEmployee, cs model.Changeset, reason string) (model.ReconciliationRun, error) {
	hash, err := model.SnapshotHash(snapshot)
	if err != nil {
		return model.ReconciliationRun{}, err
	}

	sample := cs.Moved
	if e.movedSampleSize >= 0 && len(sample) > e.movedSampleSize {
		sample = sample[:e.movedSampleSize]
	}

	return model.ReconciliationRun{
		ID:           id,
		Kind:         kind,
		Timestamp:    now,
		SnapshotSize: len(snapshot),
		SnapshotHash: hash,
		AddedCount:   len(cs.Added),
		RemovedCount: len(cs.Removed),
		MovedCount:   len(cs.Moved),
		Added:        cs.Added,
		Removed:      cs.Removed,
		MovedSample:  append([]model.Move{}, sample...),
		Reason:       reason,
	}, nil
}

func (e *Engine) complete(res Result, d time.Duration) {
	e.recorder.ObserveRun(res.Run, d)
	e.logger.Info("reconciliation run committed",
		"run_id", res.Run.ID,
		"kind", res.Run.Kind,
		"snapshot_size", res.Run.SnapshotSize,
		"added", res.Run.AddedCount,
		"removed", res.Run.RemovedCount,
		"moved", res.Run.MovedCount,
		"stable", res.Changeset.Stable,
		"duration", d,
	)
}

func (e *Engine) fail(kind model.RunKind, err error) error {
	code := "STORE"
	var re *RunError
	if errors.As(err, &re) {
		code = string(re.Code)
	} else if IsDuplicateStableIDError(err) {
		code = string(ErrCodeDuplicateStableID)
	}
	e.recorder.ObserveRunFailure(kind, code)
	e.logger.Error("reconciliation run aborted",
		"kind", kind,
		"code", code,
		"error", err,
	)
	return err
}
