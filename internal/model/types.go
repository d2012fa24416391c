package model

import (
	"fmt"
	"time"
)

// Employee is one row of a roster snapshot. The engine treats it as read-only.
type Employee struct {
	StableID    string            `json:"stable_id" yaml:"id"`
	DisplayName string            `json:"display_name" yaml:"name"`
	Attributes  map[string]string `json:"attributes,omitempty" yaml:"attributes,omitempty"`
}

// OrdinalEmployee is an Employee with the ordinal assigned to it by a snapshot.
type OrdinalEmployee struct {
	Ordinal int
	Employee
}

// MappingState is the lifecycle state of a MappingEntry.
//
// The only transition is StateMapped -> StateStale. A stale entry is never
// revived; a fresh StateMapped entry is created instead.
type MappingState string

const (
	StateMapped MappingState = "mapped"
	StateStale  MappingState = "stale"
)

// Valid reports whether s is a known state.
func (s MappingState) Valid() bool {
	return s == StateMapped || s == StateStale
}

// MappingEntry binds an ordinal to a stable ID for the interval
// [CreatedAt, SupersededAt). SupersededAt is nil while the entry is current.
type MappingEntry struct {
	ID             int64
	Ordinal        int
	StableID       string
	DisplayName    string
	State          MappingState
	CreatedAt      time.Time
	LastVerifiedAt time.Time
	SupersededAt   *time.Time
	RunID          string
}

// Current reports whether the entry is the live mapping for its ordinal.
func (e MappingEntry) Current() bool {
	return e.State == StateMapped
}

// ValidAt reports whether t falls inside the entry's validity interval.
// The interval is closed at CreatedAt and open at SupersededAt.
func (e MappingEntry) ValidAt(t time.Time) bool {
	if t.Before(e.CreatedAt) {
		return false
	}
	if e.SupersededAt != nil && !t.Before(*e.SupersededAt) {
		return false
	}
	return true
}

// Confidence is the trust level of an annotation's resolved stable ID.
type Confidence string

const (
	ConfidenceNone       Confidence = ""
	ConfidenceExact      Confidence = "exact"
	ConfidenceInferred   Confidence = "inferred"
	ConfidenceUnresolved Confidence = "unresolved"
)

// ParseConfidence converts a stored or user supplied value into a Confidence.
func ParseConfidence(s string) (Confidence, error) {
	switch c := Confidence(s); c {
	case ConfidenceNone, ConfidenceExact, ConfidenceInferred, ConfidenceUnresolved:
		return c, nil
	default:
		return "", fmt.Errorf("unknown attribution confidence %q", s)
	}
}

// Resolved reports whether the confidence carries a stable ID.
func (c Confidence) Resolved() bool {
	return c == ConfidenceExact || c == ConfidenceInferred
}

// Tier names the resolution step that produced an annotation's attribution.
type Tier string

const (
	TierNone       Tier = ""
	TierExact      Tier = "exact"
	TierHistorical Tier = "historical"
	TierContent    Tier = "content"
)

// Annotation is a free-text comment written against an ordinal.
//
// TargetOrdinal is the historical record of what the writer saw and is never
// modified. Only ResolvedStableID, Confidence, ResolvedAt and Tier are owned
// by the resolver.
type Annotation struct {
	ID               string
	Content          string
	Sender           string
	CreatedAt        time.Time
	TargetOrdinal    int
	ResolvedStableID *string
	Confidence       Confidence
	ResolvedAt       *time.Time
	Tier             Tier
}

// ResolvedID returns the resolved stable ID or "" when there is none.
func (a Annotation) ResolvedID() string {
	if a.ResolvedStableID == nil {
		return ""
	}
	return *a.ResolvedStableID
}

// RunKind distinguishes incremental reconciliation from a full rebuild.
type RunKind string

const (
	RunReconcile RunKind = "reconcile"
	RunRebuild   RunKind = "rebuild"
)

// Move describes a stable ID whose ordinal changed between two snapshots.
type Move struct {
	StableID    string `json:"stable_id"`
	FromOrdinal int    `json:"from"`
	ToOrdinal   int    `json:"to"`
}

// Changeset is the difference between the stored mapping and a new snapshot.
// All slices are sorted (Added/Removed by stable ID, Moved by new ordinal).
type Changeset struct {
	Added   []string `json:"added"`
	Removed []string `json:"removed"`
	Moved   []Move   `json:"moved"`
	Stable  int      `json:"stable"`
}

// Empty reports whether the changeset records no drift at all.
func (c Changeset) Empty() bool {
	return len(c.Added) == 0 && len(c.Removed) == 0 && len(c.Moved) == 0
}

// ReconciliationRun is the append-only audit record of one pass.
type ReconciliationRun struct {
	ID           string
	Kind         RunKind
	Timestamp    time.Time
	SnapshotSize int
	SnapshotHash string
	AddedCount   int
	RemovedCount int
	MovedCount   int
	Added        []string
	Removed      []string
	MovedSample  []Move
	Reason       string
}

// ResolutionLogEntry is the audit record of a single resolution change.
type ResolutionLogEntry struct {
	ID                 int64
	AnnotationID       string
	PassID             string
	PreviousStableID   *string
	PreviousConfidence Confidence
	NewStableID        *string
	NewConfidence      Confidence
	Tier               Tier
	Matcher            string
	At                 time.Time
}

// StringPtr returns a pointer to s, or nil for the empty string.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
