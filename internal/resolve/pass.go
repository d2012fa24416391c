package resolve

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/rosterbridge/internal/model"
	"github.com/roach88/rosterbridge/internal/store"
)

// AnnotationStore is the resolver's view of the annotation table.
// Implemented by *store.Store.
type AnnotationStore interface {
	ListAnnotations(ctx context.Context, filter store.AnnotationFilter) ([]model.Annotation, error)
	SetResolution(ctx context.Context, id string, stableID *string, confidence model.Confidence, audit store.ResolutionAudit) error
}

// Recorder receives pass outcomes. Implemented by metrics.Metrics.
type Recorder interface {
	ObserveResolution(confidence model.Confidence, tier model.Tier, changed bool)
	ObservePass(duration time.Duration, conflicts int)
}

type nopRecorder struct{}

func (nopRecorder) ObserveResolution(model.Confidence, model.Tier, bool) {}
func (nopRecorder) ObservePass(time.Duration, int) {}

// Outcome is the result for one annotation in a pass.
type Outcome struct {
	Annotation model.Annotation
	Resolution Resolution

	// Changed is true when the resolution was persisted.
	Changed bool

	// Conflict is true when the new resolution would have replaced an
	// existing stable ID and reattribution is not allowed. Nothing is
	// written for a conflict.
	Conflict bool

	// Err is the non-fatal *AmbiguousAttributionError of an unresolved
	// annotation.
	Err error
}

// PassResult summarizes a pass.
type PassResult struct {
	PassID       string
	StartedAt    time.Time
	SnapshotSize int
	Outcomes     []Outcome

	Exact      int
	Inferred   int
	Unresolved int
	Updated    int
	Conflicts  int
}

// UnresolvedIDs returns the IDs of annotations left unresolved, in pass order.
func (r PassResult) UnresolvedIDs() []string {
	ids := []string{}
	for _, o := range r.Outcomes {
		if o.Resolution.Confidence == model.ConfidenceUnresolved {
			ids = append(ids, o.Annotation.ID)
		}
	}
	return ids
}

// ConflictOutcomes returns the outcomes that were withheld as conflicts.
func (r PassResult) ConflictOutcomes() []Outcome {
	out := []Outcome{}
	for _, o := range r.Outcomes {
		if o.Conflict {
			out = append(out, o)
		}
	}
	return out
}

// Pass resolves annotations against a snapshot taken when Run starts.
type Pass struct {
	mappings    MappingSource
	annotations AnnotationStore

	workers            int
	allowReattribution bool
	minTokenLength     int
	matchers           []Matcher
	now                func() time.Time
	newID              func() string
	logger             *slog.Logger
	recorder           Recorder
}

// PassOption configures a Pass.
type PassOption func(*Pass)

// WithWorkers bounds concurrent resolutions. Default: GOMAXPROCS.
func WithWorkers(n int) PassOption {
	return func(p *Pass) { p.workers = n }
}

// WithReattribution allows a pass to replace an existing resolved stable ID
// with a different one. Off by default: such changes are reported as
// conflicts and left for an operator.
func WithReattribution(allow bool) PassOption {
	return func(p *Pass) { p.allowReattribution = allow }
}

// WithMinTokenLength sets the shortest token the co-occurrence matcher uses.
func WithMinTokenLength(n int) PassOption {
	return func(p *Pass) { p.minTokenLength = n }
}

// WithPassMatchers replaces the content matcher pipeline.
func WithPassMatchers(m ...Matcher) PassOption {
	return func(p *Pass) { p.matchers = m }
}

// WithNow sets the timestamp source for resolved_at.
func WithNow(now func() time.Time) PassOption {
	return func(p *Pass) { p.now = now }
}

// WithPassIDGenerator sets the pass ID source. Default: UUIDv7.
func WithPassIDGenerator(gen func() string) PassOption {
	return func(p *Pass) { p.newID = gen }
}

// WithPassLogger sets the logger. Default: slog.Default().
func WithPassLogger(l *slog.Logger) PassOption {
	return func(p *Pass) { p.logger = l }
}

// WithPassRecorder sets the metrics recorder.
func WithPassRecorder(r Recorder) PassOption {
	return func(p *Pass) { p.recorder = r }
}

// NewPass creates a Pass reading mappings and reading and writing annotations.
func NewPass(mappings MappingSource, annotations AnnotationStore, opts ...PassOption) *Pass {
	p := &Pass{
		mappings:       mappings,
		annotations:    annotations,
		workers:        runtime.GOMAXPROCS(0),
		minTokenLength: DefaultMinTokenLength,
		matchers:       DefaultMatchers(),
		now:            func() time.Time { return time.Now().UTC() },
		newID:          func() string { return uuid.Must(uuid.NewV7()).String() },
		logger:         slog.Default(),
		recorder:       nopRecorder{},
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.workers < 1 {
		p.workers = 1
	}
	return p
}

// Run resolves every annotation matching filter.
//
// The pass works in two phases over one frozen snapshot. Phase one applies
// the exact and historical tiers in parallel. Phase two builds the sender
// corpus from structurally resolved annotations and runs the content tier,
// again in parallel, for the rest. Changed resolutions are then written one
// by one, each with a resolution_log row.
func (p *Pass) Run(ctx context.Context, filter store.AnnotationFilter) (PassResult, error) {
	started := time.Now()
	result := PassResult{
		PassID:    p.newID(),
		StartedAt: p.now().UTC(),
	}

	snap, err := TakeSnapshot(ctx, p.mappings)
	if err != nil {
		return result, err
	}
	result.SnapshotSize = snap.Len()

	anns, err := p.annotations.ListAnnotations(ctx, filter)
	if err != nil {
		return result, fmt.Errorf("resolve pass: %w", err)
	}

	resolver := NewResolver(snap, WithMatchers(p.matchers...))
	outcomes := make([]Outcome, len(anns))
	structural := make([]bool, len(anns))

	// Phase 1: exact and historical tiers.
	err = p.parallel(ctx, len(anns), func(i int) error {
		outcomes[i].Annotation = anns[i]
		if res, ok := resolver.resolveStructural(anns[i]); ok {
			outcomes[i].Resolution = res
			structural[i] = true
		}
		return nil
	})
	if err != nil {
		return result, fmt.Errorf("resolve pass: %w", err)
	}

	corpus, err := p.buildCorpus(ctx, anns, outcomes, structural)
	if err != nil {
		return result, fmt.Errorf("resolve pass: %w", err)
	}

	// Phase 2: content tier for the rest.
	err = p.parallel(ctx, len(anns), func(i int) error {
		if structural[i] {
			return nil
		}
		res, err := resolver.resolveContent(anns[i], corpus)
		outcomes[i].Resolution = res
		outcomes[i].Err = err
		return nil
	})
	if err != nil {
		return result, fmt.Errorf("resolve pass: %w", err)
	}

	for i := range outcomes {
		if err := p.persist(ctx, result.PassID, &outcomes[i]); err != nil {
			return result, fmt.Errorf("resolve pass: %w", err)
		}
		o := outcomes[i]
		switch o.Resolution.Confidence {
		case model.ConfidenceExact:
			result.Exact++
		case model.ConfidenceInferred:
			result.Inferred++
		case model.ConfidenceUnresolved:
			result.Unresolved++
		}
		if o.Changed {
			result.Updated++
		}
		if o.Conflict {
			result.Conflicts++
		}
		p.recorder.ObserveResolution(o.Resolution.Confidence, o.Resolution.Tier, o.Changed)
	}
	result.Outcomes = outcomes

	d := time.Since(started)
	p.recorder.ObservePass(d, result.Conflicts)
	p.logger.Info("resolution pass complete",
		"pass_id", result.PassID,
		"annotations", len(anns),
		"exact", result.Exact,
		"inferred", result.Inferred,
		"unresolved", result.Unresolved,
		"updated", result.Updated,
		"conflicts", result.Conflicts,
		"duration", d,
	)
	return result, nil
}

// parallel calls fn(0..n-1) on at most p.workers goroutines.
func (p *Pass) parallel(ctx context.Context, n int, fn func(i int) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(i)
		})
	}
	return g.Wait()
}

// buildCorpus indexes annotations resolved by the exact or historical tier,
// both persisted ones and those resolved in phase one. Content-tier results
// are left out so one heuristic guess never becomes evidence for another.
func (p *Pass) buildCorpus(ctx context.Context, anns []model.Annotation, outcomes []Outcome, structural []bool) (*Corpus, error) {
	corpus := NewCorpus(p.minTokenLength)

	inPass := make(map[string]bool, len(anns))
	for i, a := range anns {
		inPass[a.ID] = true
		if structural[i] {
			corpus.Add(a.Sender, a.ID, outcomes[i].Resolution.ResolvedID(), a.Content)
		}
	}

	persisted, err := p.annotations.ListAnnotations(ctx, store.AnnotationFilter{
		Confidences: []model.Confidence{model.ConfidenceExact, model.ConfidenceInferred},
	})
	if err != nil {
		return nil, fmt.Errorf("build corpus: %w", err)
	}
	for _, a := range persisted {
		if inPass[a.ID] || a.ResolvedStableID == nil {
			continue
		}
		if a.Tier != model.TierExact && a.Tier != model.TierHistorical {
			continue
		}
		corpus.Add(a.Sender, a.ID, *a.ResolvedStableID, a.Content)
	}
	return corpus, nil
}

// persist writes o's resolution if it differs from the stored one.
func (p *Pass) persist(ctx context.Context, passID string, o *Outcome) error {
	ann := o.Annotation
	res := o.Resolution

	if ann.ResolvedID() == res.ResolvedID() && ann.Confidence == res.Confidence && ann.Tier == res.Tier {
		return nil
	}

	if ann.ResolvedStableID != nil && ann.ResolvedID() != res.ResolvedID() && !p.allowReattribution {
		o.Conflict = true
		p.logger.Warn("resolution conflict withheld",
			"pass_id", passID,
			"annotation_id", ann.ID,
			"current", ann.ResolvedID(),
			"proposed", res.ResolvedID(),
			"tier", res.Tier,
		)
		return nil
	}

	if err := p.annotations.SetResolution(ctx, ann.ID, res.StableID, res.Confidence, store.ResolutionAudit{
		PassID:  passID,
		Tier:    res.Tier,
		Matcher: res.Matcher,
		At:      p.now().UTC(),
	}); err != nil {
		return err
	}
	o.Changed = true
	p.logger.Debug("annotation resolved",
		"pass_id", passID,
		"annotation_id", ann.ID,
		"stable_id", res.ResolvedID(),
		"confidence", res.Confidence,
		"tier", res.Tier,
	)
	return nil
}
