package harness

import (
	"sort"
	"strconv"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/rosterbridge/internal/model"
)

// GoldenDir is where scenario golden files live, relative to the package
// under test.
const GoldenDir = "testdata/scenarios/golden"

// Snapshot renders a scenario result as canonical JSON for golden
// comparison. Timestamps and hashes are left out; everything else a step
// decided is included.
func Snapshot(scenario *Scenario, result *Result) ([]byte, error) {
	trace := make([]any, len(result.Trace))
	for i, e := range result.Trace {
		trace[i] = eventMap(e)
	}

	mappings := make(map[string]any, len(result.Mappings))
	for ordinal, id := range result.Mappings {
		mappings[strconv.Itoa(ordinal)] = id
	}

	ids := make([]string, 0, len(result.Annotations))
	for id := range result.Annotations {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	annotations := make([]any, len(ids))
	for i, id := range ids {
		a := result.Annotations[id]
		annotations[i] = map[string]any{
			"id":         a.ID,
			"stable_id":  a.ResolvedID(),
			"confidence": string(a.Confidence),
			"tier":       string(a.Tier),
		}
	}

	return model.MarshalCanonical(map[string]any{
		"scenario": scenario.Name,
		"trace":    trace,
		"final": map[string]any{
			"mappings":    mappings,
			"annotations": annotations,
			"violations":  violationStrings(result),
			"fatal":       result.Report.Fatal(),
		},
	})
}

func eventMap(e Event) map[string]any {
	m := map[string]any{
		"step": e.Step,
		"kind": e.Kind,
	}
	if e.ErrorCode != "" {
		m["error_code"] = e.ErrorCode
		return m
	}

	switch e.Kind {
	case StepReconcile, StepRebuild:
		moved := make([]any, len(e.Changeset.Moved))
		for i, mv := range e.Changeset.Moved {
			moved[i] = map[string]any{
				"stable_id": mv.StableID,
				"from":      mv.FromOrdinal,
				"to":        mv.ToOrdinal,
			}
		}
		m["run_id"] = e.RunID
		m["size"] = e.Size
		m["added"] = e.Changeset.Added
		m["removed"] = e.Changeset.Removed
		m["moved"] = moved
	case StepAnnotate:
		m["annotation_id"] = e.AnnotationID
		m["ordinal"] = e.Ordinal
	case StepResolve:
		res := make([]any, len(e.Resolutions))
		for i, r := range e.Resolutions {
			rm := map[string]any{
				"annotation_id": r.AnnotationID,
				"stable_id":     r.StableID,
				"confidence":    r.Confidence,
				"tier":          r.Tier,
				"changed":       r.Changed,
				"conflict":      r.Conflict,
			}
			if r.Matcher != "" {
				rm["matcher"] = r.Matcher
			}
			res[i] = rm
		}
		m["pass_id"] = e.PassID
		m["resolutions"] = res
	case StepVerify:
		r := e.Report
		m["unresolved"] = r.UnresolvedIDs
		m["moved_since_checkpoint"] = r.MovedSinceCheckpoint
		m["runs_since_checkpoint"] = r.RunsSinceCheckpoint
		m["count_mismatch"] = r.CountMismatch
		m["fatal"] = r.Fatal()
	}
	return m
}

func violationStrings(result *Result) []string {
	out := make([]string, len(result.Report.Violations))
	for i, v := range result.Report.Violations {
		out[i] = v.String()
	}
	return out
}

// RunWithGolden executes a scenario, fails t on any assertion failure and
// compares the snapshot against GoldenDir/<name>.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) *Result {
	t.Helper()

	result, err := Run(t.Context(), scenario)
	if err != nil {
		t.Fatalf("scenario %s: %v", scenario.Name, err)
	}
	for _, e := range result.Errors {
		t.Errorf("scenario %s: %s", scenario.Name, e)
	}

	data, err := Snapshot(scenario, result)
	if err != nil {
		t.Fatalf("scenario %s: snapshot: %v", scenario.Name, err)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir(GoldenDir),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, data)
	return result
}
