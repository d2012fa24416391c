package harness

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rosterbridge/internal/model"
)

const scenarioDir = "testdata/scenarios"

func TestScenarios(t *testing.T) {
	files, err := FindScenarios(scenarioDir, "")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, path := range files {
		scenario, err := LoadScenario(path)
		require.NoError(t, err, path)

		base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		require.Equal(t, base, scenario.Name, "scenario name must match file name")

		t.Run(scenario.Name, func(t *testing.T) {
			result := RunWithGolden(t, scenario)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRun_ReorderKeepsAttribution(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join(scenarioDir, "reorder_keeps_attribution.yaml"))
	require.NoError(t, err)

	result, err := Run(t.Context(), scenario)
	require.NoError(t, err)
	require.Empty(t, result.Errors)

	require.Len(t, result.Trace, 7)
	assert.Equal(t, "run-1", result.Trace[0].RunID)
	assert.Equal(t, "run-3", result.Trace[4].RunID)
	assert.Equal(t, "pass-2", result.Trace[5].PassID)

	ann := result.Annotations["ann-1"]
	assert.Equal(t, "Z2", ann.ResolvedID())
	assert.Equal(t, model.ConfidenceInferred, ann.Confidence)
	assert.Equal(t, map[int]string{1: "Z2", 2: "Z1"}, result.Mappings)
}

func TestRun_FailedStepIsRecorded(t *testing.T) {
	scenario := &Scenario{
		Name:        "empty_id",
		Description: "A blank stable id is rejected",
		Steps: []Step{
			{Reconcile: &[]model.Employee{{StableID: "", DisplayName: "Nobody"}}},
		},
		Assertions: []Assertion{
			{Type: AssertError, Step: 1, Code: "INVALID_SNAPSHOT"},
		},
	}

	result, err := Run(t.Context(), scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Nil(t, result.Trace[0].Changeset)
	assert.NotEmpty(t, result.Trace[0].Error)
	assert.Empty(t, result.Mappings)
}

func TestRun_AssertionFailuresAreCollected(t *testing.T) {
	scenario := &Scenario{
		Name:        "wrong_expectations",
		Description: "Every assertion here is false",
		Steps: []Step{
			{Reconcile: &[]model.Employee{{StableID: "A", DisplayName: "Ann"}}},
			{Annotate: &AnnotateStep{ID: "ann-1", Sender: "pm", Ordinal: 1}},
			{Resolve: &ResolveStep{}},
		},
		Assertions: []Assertion{
			{Type: AssertMapping, Ordinal: 1, StableID: "B"},
			{Type: AssertResolution, Annotation: "ann-1", StableID: "A", Confidence: "exact"},
			{Type: AssertResolution, Annotation: "ann-missing"},
			{Type: AssertChangeset, Step: 1, Added: []string{"B"}},
			{Type: AssertChangeset, Step: 2},
			{Type: AssertUnresolved, IDs: []string{"ann-1"}},
			{Type: AssertViolations, Kinds: []string{"dangling_reference"}},
			{Type: AssertError, Step: 1, Code: "INVALID_SNAPSHOT"},
		},
	}

	result, err := Run(t.Context(), scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 8)
	assert.Contains(t, result.Errors[0], `expected "B", got "A"`)
	assert.Contains(t, result.Errors[1], `expected confidence "exact", got "inferred"`)
	assert.Contains(t, result.Errors[2], "not found")
	assert.Contains(t, result.Errors[4], "produced no changeset")
}

func TestParseScenario_Valid(t *testing.T) {
	data := []byte(`
name: small
description: "one of each step"
sort_by: display_name
steps:
  - reconcile:
      - {id: A, name: Ann, attributes: {team: blue}}
  - annotate: {id: ann-1, sender: pm, content: "hello", ordinal: 1}
  - resolve: {allow_reattribution: true}
  - rebuild: {reason: "re-sort", roster: []}
  - verify: {checkpoint: true}
assertions:
  - type: mapping
    ordinal: 1
`)
	scenario, err := ParseScenario(data)
	require.NoError(t, err)

	assert.Equal(t, "small", scenario.Name)
	require.Len(t, scenario.Steps, 5)
	assert.Equal(t, StepReconcile, scenario.Steps[0].Kind())
	assert.Equal(t, "blue", (*scenario.Steps[0].Reconcile)[0].Attributes["team"])
	assert.Equal(t, StepAnnotate, scenario.Steps[1].Kind())
	assert.True(t, scenario.Steps[2].Resolve.AllowReattribution)
	assert.Equal(t, StepRebuild, scenario.Steps[3].Kind())
	assert.True(t, scenario.Steps[4].Verify.Checkpoint)
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "missing name",
			yaml:    "description: d\nsteps: [{resolve: {}}]\nassertions: [{type: unresolved}]\n",
			wantErr: "name is required",
		},
		{
			name:    "missing description",
			yaml:    "name: n\nsteps: [{resolve: {}}]\nassertions: [{type: unresolved}]\n",
			wantErr: "description is required",
		},
		{
			name:    "no steps",
			yaml:    "name: n\ndescription: d\nassertions: [{type: unresolved}]\n",
			wantErr: "steps list is required",
		},
		{
			name:    "no assertions",
			yaml:    "name: n\ndescription: d\nsteps: [{resolve: {}}]\n",
			wantErr: "assertions list is required",
		},
		{
			name:    "two actions in one step",
			yaml:    "name: n\ndescription: d\nsteps: [{resolve: {}, verify: {}}]\nassertions: [{type: unresolved}]\n",
			wantErr: "exactly one of",
		},
		{
			name:    "rebuild without reason",
			yaml:    "name: n\ndescription: d\nsteps: [{rebuild: {roster: []}}]\nassertions: [{type: unresolved}]\n",
			wantErr: "rebuild reason is required",
		},
		{
			name:    "annotate without ordinal",
			yaml:    "name: n\ndescription: d\nsteps: [{annotate: {id: a}}]\nassertions: [{type: unresolved}]\n",
			wantErr: "ordinal must be positive",
		},
		{
			name:    "unknown assertion",
			yaml:    "name: n\ndescription: d\nsteps: [{resolve: {}}]\nassertions: [{type: bogus}]\n",
			wantErr: `unknown assertion type "bogus"`,
		},
		{
			name:    "changeset step out of range",
			yaml:    "name: n\ndescription: d\nsteps: [{resolve: {}}]\nassertions: [{type: changeset, step: 2}]\n",
			wantErr: "step must be between 1 and 1",
		},
		{
			name:    "error without code",
			yaml:    "name: n\ndescription: d\nsteps: [{resolve: {}}]\nassertions: [{type: error, step: 1}]\n",
			wantErr: "code is required",
		},
		{
			name:    "bad confidence",
			yaml:    "name: n\ndescription: d\nsteps: [{resolve: {}}]\nassertions: [{type: resolution, annotation: a, confidence: maybe}]\n",
			wantErr: "maybe",
		},
		{
			name:    "bad sort",
			yaml:    "name: n\ndescription: d\nsort_by: height\nsteps: [{resolve: {}}]\nassertions: [{type: unresolved}]\n",
			wantErr: "sort_by",
		},
		{
			name:    "unknown field",
			yaml:    "name: n\ndescription: d\nflow: []\nsteps: [{resolve: {}}]\nassertions: [{type: unresolved}]\n",
			wantErr: "failed to parse YAML",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestFindScenarios(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b_two.yaml", "a_one.yml", "c_three.yaml", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "golden.yaml"), 0755))

	all, err := FindScenarios(dir, "")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a_one.yml"),
		filepath.Join(dir, "b_two.yaml"),
		filepath.Join(dir, "c_three.yaml"),
	}, all)

	filtered, err := FindScenarios(dir, "b_*")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "b_two.yaml")}, filtered)

	_, err = FindScenarios(dir, "[")
	require.Error(t, err)
}

func TestSnapshot_IsDeterministic(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join(scenarioDir, "drift_and_departure.yaml"))
	require.NoError(t, err)

	first, err := Run(t.Context(), scenario)
	require.NoError(t, err)
	second, err := Run(t.Context(), scenario)
	require.NoError(t, err)

	a, err := Snapshot(scenario, first)
	require.NoError(t, err)
	b, err := Snapshot(scenario, second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}
