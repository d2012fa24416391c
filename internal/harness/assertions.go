package harness

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/rosterbridge/internal/model"
)

// evaluateAssertions checks every assertion and records failures on result.
func evaluateAssertions(assertions []Assertion, result *Result) {
	for i, a := range assertions {
		if err := evaluateAssertion(a, result); err != nil {
			result.AddError(fmt.Sprintf("assertion %d (%s): %v", i+1, a.Type, err))
		}
	}
}

func evaluateAssertion(a Assertion, result *Result) error {
	switch a.Type {
	case AssertMapping:
		return assertMapping(a, result)
	case AssertResolution:
		return assertResolution(a, result)
	case AssertChangeset:
		return assertChangeset(a, result)
	case AssertUnresolved:
		return assertUnresolved(a, result)
	case AssertViolations:
		return assertViolations(a, result)
	case AssertError:
		return assertError(a, result)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func assertMapping(a Assertion, result *Result) error {
	got := result.Mappings[a.Ordinal]
	if got != a.StableID {
		return fmt.Errorf("ordinal %d: expected %q, got %q", a.Ordinal, a.StableID, got)
	}
	return nil
}

func assertResolution(a Assertion, result *Result) error {
	ann, ok := result.Annotations[a.Annotation]
	if !ok {
		return fmt.Errorf("annotation %q not found", a.Annotation)
	}
	if ann.ResolvedID() != a.StableID {
		return fmt.Errorf("annotation %q: expected stable id %q, got %q", a.Annotation, a.StableID, ann.ResolvedID())
	}
	if a.Confidence != "" && string(ann.Confidence) != a.Confidence {
		return fmt.Errorf("annotation %q: expected confidence %q, got %q", a.Annotation, a.Confidence, ann.Confidence)
	}
	if a.Tier != "" && string(ann.Tier) != a.Tier {
		return fmt.Errorf("annotation %q: expected tier %q, got %q", a.Annotation, a.Tier, ann.Tier)
	}
	return nil
}

func assertChangeset(a Assertion, result *Result) error {
	event := result.Trace[a.Step-1]
	if event.Changeset == nil {
		return fmt.Errorf("step %d (%s) produced no changeset", a.Step, event.Kind)
	}
	cs := event.Changeset

	moved := make([]string, len(cs.Moved))
	for i, m := range cs.Moved {
		moved[i] = m.StableID
	}
	checks := []struct {
		name      string
		want, got []string
	}{
		{"added", a.Added, cs.Added},
		{"removed", a.Removed, cs.Removed},
		{"moved", a.Moved, moved},
	}
	for _, c := range checks {
		if !sameSet(c.want, c.got) {
			return fmt.Errorf("step %d %s: expected %v, got %v", a.Step, c.name, sorted(c.want), sorted(c.got))
		}
	}
	return nil
}

func assertUnresolved(a Assertion, result *Result) error {
	var got []string
	for id, ann := range result.Annotations {
		if ann.Confidence == model.ConfidenceUnresolved {
			got = append(got, id)
		}
	}
	if !sameSet(a.IDs, got) {
		return fmt.Errorf("expected %v, got %v", sorted(a.IDs), sorted(got))
	}
	return nil
}

func assertViolations(a Assertion, result *Result) error {
	var got []string
	for _, v := range result.Report.Violations {
		got = append(got, string(v.Kind))
	}
	if !sameSet(a.Kinds, got) {
		return fmt.Errorf("expected %v, got %v", sorted(a.Kinds), sorted(got))
	}
	return nil
}

func assertError(a Assertion, result *Result) error {
	event := result.Trace[a.Step-1]
	if event.ErrorCode != a.Code {
		if event.ErrorCode == "" {
			return fmt.Errorf("step %d (%s): expected error %s, step succeeded", a.Step, event.Kind, a.Code)
		}
		return fmt.Errorf("step %d (%s): expected error %s, got %s", a.Step, event.Kind, a.Code, event.ErrorCode)
	}
	return nil
}

// sameSet compares as multisets; nil and empty are equal.
func sameSet(want, got []string) bool {
	return strings.Join(sorted(want), "\x00") == strings.Join(sorted(got), "\x00") && len(want) == len(got)
}

func sorted(xs []string) []string {
	out := append([]string{}, xs...)
	sort.Strings(out)
	return out
}
