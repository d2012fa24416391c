package resolve

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rosterbridge/internal/model"
)

func TestResolve_ExactTier(t *testing.T) {
	snap := NewSnapshot([]model.MappingEntry{
		mapped(1, 1, "Z1", "Alice", at(0), at(10)),
		mapped(2, 2, "Z2", "Bob", at(0), at(10)),
	})
	r := NewResolver(snap)

	res, err := r.Resolve(annotation("a1", "pm", "late again", 2, at(5)))

	require.NoError(t, err)
	assert.Equal(t, "Z2", res.ResolvedID())
	assert.Equal(t, model.ConfidenceExact, res.Confidence)
	assert.Equal(t, model.TierExact, res.Tier)
}

func TestResolve_ExactRequiresVerificationAfterWrite(t *testing.T) {
	snap := NewSnapshot([]model.MappingEntry{
		mapped(1, 1, "Z1", "Alice", at(0), at(0)),
	})
	r := NewResolver(snap)

	// Written after the last verification: the entry is still the only one
	// valid at write time, but nobody has confirmed it since.
	res, err := r.Resolve(annotation("a1", "pm", "", 1, at(5)))

	require.NoError(t, err)
	assert.Equal(t, "Z1", res.ResolvedID())
	assert.Equal(t, model.ConfidenceInferred, res.Confidence)
	assert.Equal(t, model.TierHistorical, res.Tier)
}

func TestResolve_ExactForFirstHolderBeforeCreation(t *testing.T) {
	snap := NewSnapshot([]model.MappingEntry{
		mapped(1, 1, "Z1", "Alice", at(10), at(20)),
	})
	r := NewResolver(snap)

	res, err := r.Resolve(annotation("a1", "pm", "", 1, at(5)))

	require.NoError(t, err)
	assert.Equal(t, "Z1", res.ResolvedID())
	assert.Equal(t, model.ConfidenceExact, res.Confidence)
	assert.Equal(t, model.TierExact, res.Tier)
}

func TestResolve_BeforeCreationWithEarlierHolderIsNotExact(t *testing.T) {
	snap := NewSnapshot([]model.MappingEntry{
		stale(1, 1, "A", "Ann", at(10), at(20)),
		mapped(2, 1, "B", "Ben", at(20), at(30)),
	})
	r := NewResolver(snap)

	res, err := r.Resolve(annotation("a1", "pm", "", 1, at(15)))

	require.NoError(t, err)
	assert.Equal(t, "A", res.ResolvedID())
	assert.Equal(t, model.ConfidenceInferred, res.Confidence)
	assert.Equal(t, model.TierHistorical, res.Tier)
}

func TestResolve_HistoricalTierAfterDrift(t *testing.T) {
	// [A,B,C] at t0, reordered to [B,A,C] at t10, verified again at t20.
	snap := NewSnapshot([]model.MappingEntry{
		stale(1, 1, "A", "Ann", at(0), at(10)),
		stale(2, 2, "B", "Ben", at(0), at(10)),
		mapped(3, 3, "C", "Cat", at(0), at(20)),
		mapped(4, 1, "B", "Ben", at(10), at(20)),
		mapped(5, 2, "A", "Ann", at(10), at(20)),
	})
	r := NewResolver(snap)

	res, err := r.Resolve(annotation("a1", "pm", "", 1, at(5)))

	require.NoError(t, err)
	assert.Equal(t, "A", res.ResolvedID(), "ordinal 1 meant A before the reorder")
	assert.Equal(t, model.ConfidenceInferred, res.Confidence)
	assert.Equal(t, model.TierHistorical, res.Tier)

	// The same ordinal written after the reorder means B, exactly.
	res, err = r.Resolve(annotation("a2", "pm", "", 1, at(15)))
	require.NoError(t, err)
	assert.Equal(t, "B", res.ResolvedID())
	assert.Equal(t, model.ConfidenceExact, res.Confidence)
}

func TestResolve_SupersededAtBoundaryBelongsToNewEntry(t *testing.T) {
	snap := NewSnapshot([]model.MappingEntry{
		stale(1, 1, "A", "Ann", at(0), at(10)),
		mapped(2, 1, "B", "Ben", at(10), at(10)),
	})
	r := NewResolver(snap)

	res, err := r.Resolve(annotation("a1", "pm", "", 1, at(10)))

	require.NoError(t, err)
	assert.Equal(t, "B", res.ResolvedID())
	assert.Equal(t, model.ConfidenceExact, res.Confidence)
}

func TestResolve_UnknownOrdinalIsUnresolved(t *testing.T) {
	snap := NewSnapshot([]model.MappingEntry{
		mapped(1, 1, "Z1", "Alice", at(0), at(10)),
		mapped(2, 2, "Z2", "Bob", at(0), at(10)),
	})
	r := NewResolver(snap)

	res, err := r.Resolve(annotation("a1", "pm", "needs follow up", 9, at(5)))

	require.Error(t, err)
	assert.True(t, IsAmbiguous(err))
	assert.Nil(t, res.StableID)
	assert.Equal(t, model.ConfidenceUnresolved, res.Confidence)
	assert.Empty(t, res.Candidates)
}

func TestResolve_UnknownOrdinalWithUniqueNameMention(t *testing.T) {
	snap := NewSnapshot([]model.MappingEntry{
		mapped(1, 1, "Z1", "Alice Moreau", at(0), at(10)),
		mapped(2, 2, "Z2", "Bob Stone", at(0), at(10)),
	})
	r := NewResolver(snap)

	res, err := r.Resolve(annotation("a1", "pm", "spoke with alice moreau about the rota", 9, at(5)))

	require.NoError(t, err)
	assert.Equal(t, "Z1", res.ResolvedID())
	assert.Equal(t, model.ConfidenceInferred, res.Confidence)
	assert.Equal(t, model.TierContent, res.Tier)
	assert.Equal(t, MatcherNameMention, res.Matcher)
}

func TestResolve_WrittenBeforeOrdinalExistedUsesHolders(t *testing.T) {
	snap := NewSnapshot([]model.MappingEntry{
		stale(1, 1, "A", "Ann", at(10), at(20)),
		mapped(2, 1, "B", "Ben", at(20), at(30)),
		mapped(3, 2, "C", "Ann", at(10), at(30)),
	})
	r := NewResolver(snap)

	// "Ann" names both A and C, but only A and B ever held ordinal 1.
	res, err := r.Resolve(annotation("a1", "pm", "Ann was out", 1, at(5)))

	require.NoError(t, err)
	assert.Equal(t, "A", res.ResolvedID())
	assert.Equal(t, model.TierContent, res.Tier)
}

func TestResolve_AmbiguousNameMention(t *testing.T) {
	snap := NewSnapshot([]model.MappingEntry{
		mapped(1, 1, "Z1", "Sam", at(0), at(10)),
		mapped(2, 2, "Z2", "Sam", at(0), at(10)),
	})
	r := NewResolver(snap)

	res, err := r.Resolve(annotation("a1", "pm", "Sam covered the shift", 7, at(5)))

	var ae *AmbiguousAttributionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, []string{"Z1", "Z2"}, ae.Candidates)
	assert.Equal(t, []string{"Z1", "Z2"}, res.Candidates)
	assert.Equal(t, model.ConfidenceUnresolved, res.Confidence)
	assert.Nil(t, res.StableID)
}

func TestResolve_CooccurrenceNarrowsAfterNameMention(t *testing.T) {
	snap := NewSnapshot([]model.MappingEntry{
		mapped(1, 1, "Z1", "Sam", at(0), at(10)),
		mapped(2, 2, "Z2", "Sam", at(0), at(10)),
	})
	corpus := NewCorpus(4)
	corpus.Add("pm", "old-1", "Z2", "forklift certification renewed")
	corpus.Add("pm", "old-2", "Z1", "payroll question")
	r := NewResolver(snap, WithCorpus(corpus))

	res, err := r.Resolve(annotation("a1", "pm", "Sam forklift training", 7, at(5)))

	require.NoError(t, err)
	assert.Equal(t, "Z2", res.ResolvedID())
	assert.Equal(t, MatcherSenderCooccurrence, res.Matcher)
}

func TestResolve_CooccurrenceIsPerSender(t *testing.T) {
	snap := NewSnapshot([]model.MappingEntry{
		mapped(1, 1, "Z1", "Sam", at(0), at(10)),
		mapped(2, 2, "Z2", "Sam", at(0), at(10)),
	})
	corpus := NewCorpus(4)
	corpus.Add("someone-else", "old-1", "Z2", "forklift certification renewed")
	r := NewResolver(snap, WithCorpus(corpus))

	_, err := r.Resolve(annotation("a1", "pm", "Sam forklift training", 7, at(5)))

	assert.True(t, IsAmbiguous(err))
}

func TestResolve_StructuralTiersIgnoreContent(t *testing.T) {
	snap := NewSnapshot([]model.MappingEntry{
		mapped(1, 1, "Z1", "Alice", at(0), at(10)),
		mapped(2, 2, "Z2", "Bob", at(0), at(10)),
	})
	r := NewResolver(snap)

	// Content names Bob, but ordinal 1 was unambiguously Alice at write time.
	res, err := r.Resolve(annotation("a1", "pm", "Bob asked about this", 1, at(5)))

	require.NoError(t, err)
	assert.Equal(t, "Z1", res.ResolvedID())
	assert.Equal(t, model.TierExact, res.Tier)
}

func TestResolve_CorruptHistoryFallsToContent(t *testing.T) {
	// Two entries valid for ordinal 1 at the same instant.
	snap := NewSnapshot([]model.MappingEntry{
		stale(1, 1, "A", "Ann", at(0), at(20)),
		stale(2, 1, "B", "Ben", at(0), at(20)),
	})
	r := NewResolver(snap)

	res, err := r.Resolve(annotation("a1", "pm", "Ben called in", 1, at(5)))

	require.NoError(t, err)
	assert.Equal(t, "B", res.ResolvedID())
	assert.Equal(t, model.TierContent, res.Tier)
}

func TestSnapshot_Accessors(t *testing.T) {
	snap := NewSnapshot([]model.MappingEntry{
		mapped(3, 1, "B", "Ben", at(10), at(10)),
		stale(1, 1, "A", "Ann", at(0), at(10)),
		mapped(2, 2, "A", "Ann B.", at(10), at(10)),
	})

	assert.Equal(t, 3, snap.Len())
	cur, ok := snap.Current(1)
	require.True(t, ok)
	assert.Equal(t, "B", cur.StableID)
	_, ok = snap.Current(5)
	assert.False(t, ok)

	hist := snap.OrdinalHistory(1)
	require.Len(t, hist, 2)
	assert.Equal(t, int64(1), hist[0].ID)
	assert.Equal(t, []string{"A", "B"}, snap.Holders(1))
	assert.Equal(t, []string{"A", "B"}, snap.StableIDs())
	assert.Equal(t, []string{"Ann", "Ann B."}, snap.DisplayNames("A"))
	assert.Nil(t, snap.Holders(42))
}
