package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/roach88/rosterbridge/internal/model"
	"github.com/roach88/rosterbridge/internal/reconcile"
	"github.com/roach88/rosterbridge/internal/resolve"
	"github.com/roach88/rosterbridge/internal/roster"
	"github.com/roach88/rosterbridge/internal/store"
	"github.com/roach88/rosterbridge/internal/testutil"
	"github.com/roach88/rosterbridge/internal/verify"
)

// Epoch is the first clock reading of every scenario.
var Epoch = time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)

// Harness holds the per-scenario execution state.
type Harness struct {
	store  *store.Store
	roster *roster.StaticReader
	engine *reconcile.Engine
	clock  *testutil.StepClock
	passes *testutil.SequenceGenerator
	checks *testutil.SequenceGenerator
	logger *slog.Logger
}

// Run executes a scenario in a fresh temporary database and evaluates its
// assertions. A step that fails is recorded in the trace; a non-nil error
// means the scenario could not be executed at all.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	dir, err := os.MkdirTemp("", "rosterbridge-harness-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create scenario directory: %w", err)
	}
	defer os.RemoveAll(dir)

	st, err := store.Open(filepath.Join(dir, "scenario.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	defer st.Close()

	ordering := roster.Ordering{By: roster.SortSource}
	if scenario.SortBy != "" {
		if ordering, err = roster.ParseOrdering(scenario.SortBy); err != nil {
			return nil, err
		}
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := testutil.NewStepClock(Epoch, time.Minute)
	reader := &roster.StaticReader{}
	h := &Harness{
		store:  st,
		roster: reader,
		clock:  clock,
		passes: testutil.NewSequenceGenerator("pass"),
		checks: testutil.NewSequenceGenerator("checkpoint"),
		logger: logger,
		engine: reconcile.New(st, reader,
			reconcile.WithClock(clock),
			reconcile.WithRunIDGenerator(testutil.NewSequenceGenerator("run")),
			reconcile.WithOrdering(ordering),
			reconcile.WithRetry(1, time.Millisecond),
			reconcile.WithLogger(logger),
		),
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		event, err := h.execute(ctx, i+1, step)
		if err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i+1, step.Kind(), err)
		}
		result.Trace = append(result.Trace, event)
	}

	if err := h.captureFinalState(ctx, result); err != nil {
		return nil, err
	}
	evaluateAssertions(scenario.Assertions, result)
	return result, nil
}

// execute runs one step. Domain failures of reconcile and rebuild steps
// are recorded on the event; store failures abort the scenario.
func (h *Harness) execute(ctx context.Context, n int, step Step) (Event, error) {
	event := Event{Step: n, Kind: step.Kind()}

	switch event.Kind {
	case StepReconcile:
		h.roster.Employees = *step.Reconcile
		res, err := h.engine.Reconcile(ctx)
		recordRun(&event, res, err)

	case StepRebuild:
		h.roster.Employees = step.Rebuild.Roster
		res, err := h.engine.Rebuild(ctx, step.Rebuild.Reason)
		recordRun(&event, res, err)

	case StepAnnotate:
		a := step.Annotate
		if err := h.store.InsertAnnotation(ctx, model.Annotation{
			ID:            a.ID,
			Sender:        a.Sender,
			Content:       a.Content,
			TargetOrdinal: a.Ordinal,
			CreatedAt:     h.clock.Now(),
		}); err != nil {
			return event, err
		}
		event.AnnotationID = a.ID
		event.Ordinal = a.Ordinal

	case StepResolve:
		pass := resolve.NewPass(h.store, h.store,
			resolve.WithWorkers(2),
			resolve.WithReattribution(step.Resolve.AllowReattribution),
			resolve.WithNow(h.clock.Now),
			resolve.WithPassIDGenerator(h.passes.Generate),
			resolve.WithPassLogger(h.logger),
		)
		res, err := pass.Run(ctx, store.AnnotationFilter{})
		if err != nil {
			return event, err
		}
		event.PassID = res.PassID
		event.Resolutions = make([]ResolutionEvent, len(res.Outcomes))
		for i, o := range res.Outcomes {
			event.Resolutions[i] = ResolutionEvent{
				AnnotationID: o.Annotation.ID,
				StableID:     o.Resolution.ResolvedID(),
				Confidence:   string(o.Resolution.Confidence),
				Tier:         string(o.Resolution.Tier),
				Matcher:      o.Resolution.Matcher,
				Changed:      o.Changed,
				Conflict:     o.Conflict,
			}
		}

	case StepVerify:
		report, err := verify.New(h.store, verify.WithNow(h.clock.Peek), verify.WithLogger(h.logger)).Verify(ctx)
		if err != nil {
			return event, err
		}
		if step.Verify.Checkpoint {
			cp, err := report.Checkpoint(h.checks.Generate())
			if err != nil {
				return event, err
			}
			if err := h.store.AppendCheckpoint(ctx, cp); err != nil {
				return event, err
			}
		}
		event.Report = &report

	default:
		return event, fmt.Errorf("unknown step kind")
	}
	return event, nil
}

func recordRun(event *Event, res reconcile.Result, err error) {
	if err != nil {
		event.Error = err.Error()
		event.ErrorCode = "UNKNOWN"
		var runErr *reconcile.RunError
		if errors.As(err, &runErr) {
			event.ErrorCode = string(runErr.Code)
		}
		return
	}
	cs := res.Changeset
	event.RunID = res.Run.ID
	event.Size = res.Run.SnapshotSize
	event.Changeset = &cs
}

func (h *Harness) captureFinalState(ctx context.Context, result *Result) error {
	current, err := h.store.CurrentMappings(ctx)
	if err != nil {
		return fmt.Errorf("read final mappings: %w", err)
	}
	for _, e := range current {
		result.Mappings[e.Ordinal] = e.StableID
	}

	anns, err := h.store.ListAnnotations(ctx, store.AnnotationFilter{})
	if err != nil {
		return fmt.Errorf("read final annotations: %w", err)
	}
	for _, a := range anns {
		result.Annotations[a.ID] = a
	}

	report, err := verify.New(h.store, verify.WithNow(h.clock.Peek), verify.WithLogger(h.logger)).Verify(ctx)
	if err != nil {
		return fmt.Errorf("verify final state: %w", err)
	}
	result.Report = report
	return nil
}
