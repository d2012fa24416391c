package resolve

import (
	"sort"

	"github.com/roach88/rosterbridge/internal/model"
)

// DefaultMinTokenLength is the shortest token the co-occurrence matcher
// considers. Shorter tokens are mostly stop words.
const DefaultMinTokenLength = 4

// Corpus indexes already-resolved annotations by sender. It is the evidence
// the sender_cooccurrence matcher draws on.
//
// Thread-safety: Add must not be called concurrently with Signatures. A pass
// builds the corpus between its two phases and only reads it afterwards.
type Corpus struct {
	minLen int
	// sender -> token -> stable id -> annotation ids
	index map[string]map[string]map[string][]string
}

// NewCorpus creates an empty corpus. minLen < 1 uses DefaultMinTokenLength.
func NewCorpus(minLen int) *Corpus {
	if minLen < 1 {
		minLen = DefaultMinTokenLength
	}
	return &Corpus{
		minLen: minLen,
		index:  make(map[string]map[string]map[string][]string),
	}
}

// Add records that annotationID, written by sender, is attributed to
// stableID.
func (c *Corpus) Add(sender, annotationID, stableID, content string) {
	tokens := model.Tokens(content, c.minLen)
	if len(tokens) == 0 {
		return
	}
	bySender := c.index[sender]
	if bySender == nil {
		bySender = make(map[string]map[string][]string)
		c.index[sender] = bySender
	}
	for _, tok := range tokens {
		byID := bySender[tok]
		if byID == nil {
			byID = make(map[string][]string)
			bySender[tok] = byID
		}
		byID[stableID] = append(byID[stableID], annotationID)
	}
}

// Signatures returns the stable IDs that a token of content uniquely
// identifies within sender's resolved annotations, mapped to the tokens that
// point at them. Evidence contributed by excludeID itself is ignored.
func (c *Corpus) Signatures(sender, excludeID, content string) map[string][]string {
	out := make(map[string][]string)
	bySender := c.index[sender]
	if bySender == nil {
		return out
	}
	for _, tok := range model.Tokens(content, c.minLen) {
		var owner string
		owners := 0
		for id, annIDs := range bySender[tok] {
			if !hasOtherThan(annIDs, excludeID) {
				continue
			}
			owner = id
			owners++
		}
		if owners == 1 {
			out[owner] = append(out[owner], tok)
		}
	}
	for id := range out {
		sort.Strings(out[id])
	}
	return out
}

func hasOtherThan(ids []string, exclude string) bool {
	for _, id := range ids {
		if id != exclude {
			return true
		}
	}
	return false
}
