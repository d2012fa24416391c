package resolve

import (
	"github.com/roach88/rosterbridge/internal/model"
)

// Resolution is the resolver's verdict for one annotation.
type Resolution struct {
	StableID   *string
	Confidence model.Confidence
	Tier       model.Tier

	// Matcher names the content matcher that decided a content-tier result.
	Matcher string

	// Candidates lists the remaining candidates of an unresolved
	// content-tier result.
	Candidates []string
}

// ResolvedID returns the resolved stable ID or "".
func (r Resolution) ResolvedID() string {
	if r.StableID == nil {
		return ""
	}
	return *r.StableID
}

// Resolver applies the three tiers against one frozen Snapshot.
//
// Thread-safety: Resolve is safe for concurrent use as long as the corpus is
// not being modified.
type Resolver struct {
	snap     *Snapshot
	matchers []Matcher
	corpus   *Corpus
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithMatchers replaces the content matcher pipeline. Order is rank.
func WithMatchers(m ...Matcher) ResolverOption {
	return func(r *Resolver) { r.matchers = m }
}

// WithCorpus sets the sender corpus for the co-occurrence matcher.
func WithCorpus(c *Corpus) ResolverOption {
	return func(r *Resolver) { r.corpus = c }
}

// NewResolver creates a Resolver over snap.
func NewResolver(snap *Snapshot, opts ...ResolverOption) *Resolver {
	r := &Resolver{snap: snap, matchers: DefaultMatchers()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve runs the tiers in order and returns the first unique answer.
//
// When every tier fails the resolution is Unresolved and the error is an
// *AmbiguousAttributionError. The Resolution is valid in both cases.
func (r *Resolver) Resolve(ann model.Annotation) (Resolution, error) {
	if res, ok := r.resolveStructural(ann); ok {
		return res, nil
	}
	return r.resolveContent(ann, r.corpus)
}

// resolveStructural tries the exact and historical tiers.
func (r *Resolver) resolveStructural(ann model.Annotation) (Resolution, bool) {
	history := r.snap.OrdinalHistory(ann.TargetOrdinal)
	if cur, ok := r.snap.Current(ann.TargetOrdinal); ok && !ann.CreatedAt.After(cur.LastVerifiedAt) {
		// An annotation older than the current entry only belongs to it when
		// nobody held the ordinal before.
		firstHolder := len(history) > 0 && history[0].ID == cur.ID
		if firstHolder || !ann.CreatedAt.Before(cur.CreatedAt) {
			return resolved(cur.StableID, model.ConfidenceExact, model.TierExact, ""), true
		}
	}

	var (
		match model.MappingEntry
		n     int
	)
	for _, e := range history {
		if e.ValidAt(ann.CreatedAt) {
			match = e
			n++
		}
	}
	if n == 1 {
		return resolved(match.StableID, model.ConfidenceInferred, model.TierHistorical, ""), true
	}
	return Resolution{}, false
}

// resolveContent runs the matcher pipeline. Candidates are the stable IDs
// that ever held the ordinal, or every known stable ID if none did.
func (r *Resolver) resolveContent(ann model.Annotation, corpus *Corpus) (Resolution, error) {
	candidates := r.snap.Holders(ann.TargetOrdinal)
	if len(candidates) == 0 {
		candidates = r.snap.StableIDs()
	}

	res := runPipeline(r.matchers, ann, candidates, Evidence{Snapshot: r.snap, Corpus: corpus})
	if res.matched && len(res.candidates) == 1 {
		return resolved(res.candidates[0], model.ConfidenceInferred, model.TierContent, res.matcher), nil
	}

	unresolved := Resolution{Confidence: model.ConfidenceUnresolved, Tier: model.TierContent}
	ambiguous := &AmbiguousAttributionError{AnnotationID: ann.ID}
	if res.matched {
		unresolved.Matcher = res.matcher
		unresolved.Candidates = res.candidates
		ambiguous.Candidates = res.candidates
	}
	return unresolved, ambiguous
}

func resolved(stableID string, c model.Confidence, tier model.Tier, matcher string) Resolution {
	id := stableID
	return Resolution{StableID: &id, Confidence: c, Tier: tier, Matcher: matcher}
}
