package harness

import (
	"github.com/roach88/rosterbridge/internal/model"
	"github.com/roach88/rosterbridge/internal/verify"
)

// Event records what one step did. Only the fields relevant to the step's
// kind are set.
type Event struct {
	Step int    `json:"step"`
	Kind string `json:"kind"`

	// reconcile, rebuild
	RunID     string           `json:"run_id,omitempty"`
	Size      int              `json:"size,omitempty"`
	Changeset *model.Changeset `json:"changeset,omitempty"`

	// annotate
	AnnotationID string `json:"annotation_id,omitempty"`
	Ordinal      int    `json:"ordinal,omitempty"`

	// resolve
	PassID      string            `json:"pass_id,omitempty"`
	Resolutions []ResolutionEvent `json:"resolutions,omitempty"`

	// verify
	Report *verify.Report `json:"report,omitempty"`

	// ErrorCode is set when the step failed.
	ErrorCode string `json:"error_code,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ResolutionEvent is one annotation's outcome in a resolve step.
type ResolutionEvent struct {
	AnnotationID string `json:"annotation_id"`
	StableID     string `json:"stable_id"`
	Confidence   string `json:"confidence"`
	Tier         string `json:"tier"`
	Matcher      string `json:"matcher,omitempty"`
	Changed      bool   `json:"changed"`
	Conflict     bool   `json:"conflict"`
}

// Result is the outcome of a scenario.
type Result struct {
	// Pass is true if every assertion held.
	Pass bool `json:"pass"`

	Trace  []Event  `json:"trace"`
	Errors []string `json:"errors,omitempty"`

	// Mappings is the final ordinal -> stable ID mapping.
	Mappings map[int]string `json:"mappings"`

	// Annotations holds the final annotation rows by ID.
	Annotations map[string]model.Annotation `json:"annotations"`

	// Report is a verification of the final state.
	Report verify.Report `json:"report"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:        true,
		Trace:       []Event{},
		Errors:      []string{},
		Mappings:    make(map[int]string),
		Annotations: make(map[string]model.Annotation),
	}
}

// AddError adds a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
