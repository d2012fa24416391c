package resolve

import (
	"sort"

	"github.com/roach88/rosterbridge/internal/model"
)

// Matcher names.
const (
	MatcherNameMention        = "name_mention"
	MatcherSenderCooccurrence = "sender_cooccurrence"
)

// Matcher is one deterministic content heuristic. Match returns the subset
// of candidates the annotation's content points at; an empty result means
// the matcher has no opinion.
type Matcher interface {
	Name() string
	Match(ann model.Annotation, candidates []string, ev Evidence) []string
}

// Evidence is the read-only context a matcher may consult.
type Evidence struct {
	Snapshot *Snapshot
	Corpus   *Corpus
}

// DefaultMatchers returns the production pipeline in rank order.
func DefaultMatchers() []Matcher {
	return []Matcher{NameMention{}, SenderCooccurrence{}}
}

// NameMention matches candidates whose recorded display name appears in the
// content as a whole-word phrase, after normalization and case folding.
type NameMention struct{}

// Name implements Matcher.
func (NameMention) Name() string { return MatcherNameMention }

// Match implements Matcher.
func (NameMention) Match(ann model.Annotation, candidates []string, ev Evidence) []string {
	var hits []string
	for _, id := range candidates {
		for _, name := range ev.Snapshot.DisplayNames(id) {
			if model.ContainsPhrase(ann.Content, name) {
				hits = append(hits, id)
				break
			}
		}
	}
	return hits
}

// SenderCooccurrence matches candidates that some token of the content
// uniquely co-occurs with in the same sender's already-resolved annotations.
type SenderCooccurrence struct{}

// Name implements Matcher.
func (SenderCooccurrence) Name() string { return MatcherSenderCooccurrence }

// Match implements Matcher.
func (SenderCooccurrence) Match(ann model.Annotation, candidates []string, ev Evidence) []string {
	if ev.Corpus == nil {
		return nil
	}
	sigs := ev.Corpus.Signatures(ann.Sender, ann.ID, ann.Content)
	var hits []string
	for _, id := range candidates {
		if len(sigs[id]) > 0 {
			hits = append(hits, id)
		}
	}
	return hits
}

// pipelineResult is the outcome of running the matchers.
type pipelineResult struct {
	candidates []string
	matcher    string
	matched    bool
}

// runPipeline narrows candidates through matchers in rank order. A matcher
// with no opinion is skipped; otherwise its hits become the new candidate
// set. The pipeline stops as soon as one candidate remains.
func runPipeline(matchers []Matcher, ann model.Annotation, candidates []string, ev Evidence) pipelineResult {
	res := pipelineResult{candidates: append([]string(nil), candidates...)}
	sort.Strings(res.candidates)

	for _, m := range matchers {
		if len(res.candidates) <= 1 && res.matched {
			break
		}
		hits := m.Match(ann, res.candidates, ev)
		if len(hits) == 0 {
			continue
		}
		sort.Strings(hits)
		res.candidates = hits
		res.matcher = m.Name()
		res.matched = true
	}
	return res
}
