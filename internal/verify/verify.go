package verify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/rosterbridge/internal/model"
	"github.com/roach88/rosterbridge/internal/store"
)

// Report is the verifier's view of the stores at one point in time.
type Report struct {
	GeneratedAt time.Time `json:"generated_at"`

	// LastRunID is the newest reconciliation run, empty if none ran yet.
	LastRunID string `json:"last_run_id,omitempty"`

	// CheckpointID is the checkpoint the moved count is measured from,
	// empty if no checkpoint exists.
	CheckpointID         string `json:"checkpoint_id,omitempty"`
	RunsSinceCheckpoint  int    `json:"runs_since_checkpoint"`
	MovedSinceCheckpoint int    `json:"moved_since_checkpoint"`

	// Annotations counts annotations per confidence; never-resolved ones
	// are counted under "none".
	Annotations     map[string]int `json:"annotations"`
	UnresolvedCount int            `json:"unresolved_count"`
	UnresolvedIDs   []string       `json:"unresolved_ids"`

	OrphanedIDs []string `json:"orphaned_ids"`

	CurrentMappings  int  `json:"current_mappings"`
	LastSnapshotSize int  `json:"last_snapshot_size"`
	CountMismatch    bool `json:"count_mismatch"`

	Violations []Violation `json:"violations"`
}

// Fatal reports whether any violation means the mapping is corrupt.
func (r Report) Fatal() bool {
	for _, v := range r.Violations {
		if v.Fatal {
			return true
		}
	}
	return false
}

// Err returns an *InvariantViolation carrying the fatal violations, or nil.
func (r Report) Err() error {
	var fatal []Violation
	for _, v := range r.Violations {
		if v.Fatal {
			fatal = append(fatal, v)
		}
	}
	if len(fatal) == 0 {
		return nil
	}
	return &InvariantViolation{Violations: fatal}
}

// Checkpoint turns the report into a checkpoint record with the given ID.
func (r Report) Checkpoint(id string) (store.Checkpoint, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return store.Checkpoint{}, fmt.Errorf("encode report: %w", err)
	}
	return store.Checkpoint{
		ID:        id,
		At:        r.GeneratedAt,
		LastRunID: r.LastRunID,
		Report:    string(data),
	}, nil
}

// Verifier builds reports. It only reads.
type Verifier struct {
	store  *store.Store
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithNow sets the report timestamp source.
func WithNow(now func() time.Time) Option {
	return func(v *Verifier) { v.now = now }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(v *Verifier) { v.logger = l }
}

// New creates a Verifier over s.
func New(s *store.Store, opts ...Option) *Verifier {
	v := &Verifier{
		store:  s,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify builds a report. A non-nil error means the stores could not be
// read; violations are reported in the Report, not as an error.
func (v *Verifier) Verify(ctx context.Context) (Report, error) {
	r := Report{
		GeneratedAt:   v.now().UTC(),
		UnresolvedIDs: []string{},
		OrphanedIDs:   []string{},
		Violations:    []Violation{},
	}

	if err := v.checkRuns(ctx, &r); err != nil {
		return Report{}, err
	}
	if err := v.checkAnnotations(ctx, &r); err != nil {
		return Report{}, err
	}
	if err := v.checkDuplicates(ctx, &r); err != nil {
		return Report{}, err
	}
	if err := v.checkDangling(ctx, &r); err != nil {
		return Report{}, err
	}

	level := slog.LevelInfo
	if r.Fatal() {
		level = slog.LevelError
	}
	v.logger.Log(ctx, level, "verification complete",
		"last_run_id", r.LastRunID,
		"unresolved", r.UnresolvedCount,
		"moved_since_checkpoint", r.MovedSinceCheckpoint,
		"violations", len(r.Violations),
		"orphaned", len(r.OrphanedIDs),
		"count_mismatch", r.CountMismatch,
	)
	return r, nil
}

func (v *Verifier) checkRuns(ctx context.Context, r *Report) error {
	current, err := v.store.CountCurrentMappings(ctx)
	if err != nil {
		return fmt.Errorf("verify: %w", err)
	}
	r.CurrentMappings = current

	last, err := v.store.LastRun(ctx)
	switch {
	case errors.Is(err, store.ErrNotFound):
		r.CountMismatch = current != 0
	case err != nil:
		return fmt.Errorf("verify: %w", err)
	default:
		r.LastRunID = last.ID
		r.LastSnapshotSize = last.SnapshotSize
		r.CountMismatch = current != last.SnapshotSize
	}

	since := ""
	cp, err := v.store.LastCheckpoint(ctx)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		return fmt.Errorf("verify: %w", err)
	default:
		r.CheckpointID = cp.ID
		since = cp.LastRunID
	}

	runs, err := v.store.RunsSince(ctx, since)
	if err != nil {
		return fmt.Errorf("verify: %w", err)
	}
	r.RunsSinceCheckpoint = len(runs)
	for _, run := range runs {
		r.MovedSinceCheckpoint += run.MovedCount
	}
	return nil
}

func (v *Verifier) checkAnnotations(ctx context.Context, r *Report) error {
	counts, err := v.store.CountAnnotationsByConfidence(ctx)
	if err != nil {
		return fmt.Errorf("verify: %w", err)
	}
	r.Annotations = make(map[string]int, len(counts))
	for c, n := range counts {
		key := string(c)
		if c == model.ConfidenceNone {
			key = "none"
		}
		r.Annotations[key] = n
	}

	unresolved, err := v.store.ListAnnotations(ctx, store.AnnotationFilter{
		Confidences: []model.Confidence{model.ConfidenceUnresolved},
	})
	if err != nil {
		return fmt.Errorf("verify: %w", err)
	}
	r.UnresolvedCount = len(unresolved)
	for _, a := range unresolved {
		r.UnresolvedIDs = append(r.UnresolvedIDs, a.ID)
	}

	orphaned, err := v.store.OrphanedAnnotations(ctx)
	if err != nil {
		return fmt.Errorf("verify: %w", err)
	}
	for _, a := range orphaned {
		r.OrphanedIDs = append(r.OrphanedIDs, a.ID)
	}
	return nil
}

func (v *Verifier) checkDuplicates(ctx context.Context, r *Report) error {
	byID, err := v.store.CurrentStableIDDuplicates(ctx)
	if err != nil {
		return fmt.Errorf("verify: %w", err)
	}
	for _, g := range byID {
		r.Violations = append(r.Violations, Violation{
			Kind:     ViolationDuplicateStableID,
			Key:      g.Key,
			Ordinals: g.Ordinals,
			Fatal:    true,
		})
	}

	byOrdinal, err := v.store.CurrentOrdinalDuplicates(ctx)
	if err != nil {
		return fmt.Errorf("verify: %w", err)
	}
	for _, g := range byOrdinal {
		r.Violations = append(r.Violations, Violation{
			Kind:      ViolationDuplicateOrdinal,
			Key:       g.Key,
			StableIDs: g.StableIDs,
			Fatal:     true,
		})
	}
	return nil
}

// checkDangling groups dangling annotations by the stable ID they resolve to.
func (v *Verifier) checkDangling(ctx context.Context, r *Report) error {
	dangling, err := v.store.DanglingAnnotations(ctx)
	if err != nil {
		return fmt.Errorf("verify: %w", err)
	}

	index := make(map[string]int)
	for _, a := range dangling {
		id := a.ResolvedID()
		i, ok := index[id]
		if !ok {
			i = len(r.Violations)
			index[id] = i
			r.Violations = append(r.Violations, Violation{
				Kind: ViolationDanglingReference,
				Key:  id,
			})
		}
		r.Violations[i].AnnotationIDs = append(r.Violations[i].AnnotationIDs, a.ID)
	}
	return nil
}
