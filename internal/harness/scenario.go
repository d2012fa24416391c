package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/rosterbridge/internal/model"
	"github.com/roach88/rosterbridge/internal/roster"
)

// Scenario is one end-to-end test case.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// SortBy is the roster ordering. Default: "source".
	SortBy string `yaml:"sort_by,omitempty"`

	// Steps run in order against one database.
	Steps []Step `yaml:"steps"`

	// Assertions are checked against the final state.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is exactly one action. The set field selects the action.
type Step struct {
	// Reconcile applies a roster snapshot. An empty list is a valid,
	// empty roster.
	Reconcile *[]model.Employee `yaml:"reconcile,omitempty"`

	Rebuild  *RebuildStep  `yaml:"rebuild,omitempty"`
	Annotate *AnnotateStep `yaml:"annotate,omitempty"`
	Resolve  *ResolveStep  `yaml:"resolve,omitempty"`
	Verify   *VerifyStep   `yaml:"verify,omitempty"`
}

// RebuildStep replaces the whole mapping with Roster.
type RebuildStep struct {
	Reason string           `yaml:"reason"`
	Roster []model.Employee `yaml:"roster"`
}

// AnnotateStep writes an annotation stamped with the current clock reading.
type AnnotateStep struct {
	ID      string `yaml:"id"`
	Sender  string `yaml:"sender"`
	Content string `yaml:"content"`
	Ordinal int    `yaml:"ordinal"`
}

// ResolveStep runs a resolution pass over every annotation.
type ResolveStep struct {
	AllowReattribution bool `yaml:"allow_reattribution,omitempty"`
}

// VerifyStep runs the verifier, optionally recording a checkpoint.
type VerifyStep struct {
	Checkpoint bool `yaml:"checkpoint,omitempty"`
}

// Kind returns the step's action name, or "" if none or several are set.
func (s Step) Kind() string {
	var kinds []string
	if s.Reconcile != nil {
		kinds = append(kinds, StepReconcile)
	}
	if s.Rebuild != nil {
		kinds = append(kinds, StepRebuild)
	}
	if s.Annotate != nil {
		kinds = append(kinds, StepAnnotate)
	}
	if s.Resolve != nil {
		kinds = append(kinds, StepResolve)
	}
	if s.Verify != nil {
		kinds = append(kinds, StepVerify)
	}
	if len(kinds) != 1 {
		return ""
	}
	return kinds[0]
}

// Step kinds.
const (
	StepReconcile = "reconcile"
	StepRebuild   = "rebuild"
	StepAnnotate  = "annotate"
	StepResolve   = "resolve"
	StepVerify    = "verify"
)

// Assertion checks one fact about the final state.
type Assertion struct {
	Type string `yaml:"type"`

	// mapping
	Ordinal int `yaml:"ordinal,omitempty"`

	// mapping, resolution
	StableID string `yaml:"stable_id,omitempty"`

	// resolution
	Annotation string `yaml:"annotation,omitempty"`
	Confidence string `yaml:"confidence,omitempty"`
	Tier       string `yaml:"tier,omitempty"`

	// changeset, error (1-based step number)
	Step int `yaml:"step,omitempty"`

	// changeset
	Added   []string `yaml:"added,omitempty"`
	Removed []string `yaml:"removed,omitempty"`
	Moved   []string `yaml:"moved,omitempty"`

	// unresolved
	IDs []string `yaml:"ids,omitempty"`

	// violations
	Kinds []string `yaml:"kinds,omitempty"`

	// error
	Code string `yaml:"code,omitempty"`
}

// Assertion type constants.
const (
	AssertMapping    = "mapping"
	AssertResolution = "resolution"
	AssertChangeset  = "changeset"
	AssertUnresolved = "unresolved"
	AssertViolations = "violations"
	AssertError      = "error"
)

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected so typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// FindScenarios returns the .yaml and .yml files directly under dir whose
// base name (without extension) matches filter, sorted by name. An empty
// filter matches everything.
func FindScenarios(dir, filter string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		if filter != "" {
			matched, err := filepath.Match(filter, strings.TrimSuffix(e.Name(), ext))
			if err != nil {
				return nil, fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				continue
			}
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if _, err := roster.ParseOrdering(s.SortBy); err != nil {
		return fmt.Errorf("sort_by: %w", err)
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(i, step); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, a, len(s.Steps)); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, s Step) error {
	switch s.Kind() {
	case "":
		return fmt.Errorf("steps[%d]: exactly one of reconcile, rebuild, annotate, resolve, verify is required", index)
	case StepRebuild:
		if s.Rebuild.Reason == "" {
			return fmt.Errorf("steps[%d]: rebuild reason is required", index)
		}
	case StepAnnotate:
		if s.Annotate.ID == "" {
			return fmt.Errorf("steps[%d]: annotate id is required", index)
		}
		if s.Annotate.Ordinal < 1 {
			return fmt.Errorf("steps[%d]: annotate ordinal must be positive", index)
		}
	}
	return nil
}

func validateAssertion(index int, a Assertion, steps int) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertMapping:
		if a.Ordinal < 1 {
			return fmt.Errorf("assertions[%d]: ordinal is required for mapping", index)
		}
	case AssertResolution:
		if a.Annotation == "" {
			return fmt.Errorf("assertions[%d]: annotation is required for resolution", index)
		}
		if a.Confidence != "" {
			if _, err := model.ParseConfidence(a.Confidence); err != nil {
				return fmt.Errorf("assertions[%d]: %w", index, err)
			}
		}
	case AssertChangeset, AssertError:
		if a.Step < 1 || a.Step > steps {
			return fmt.Errorf("assertions[%d]: step must be between 1 and %d", index, steps)
		}
		if a.Type == AssertError && a.Code == "" {
			return fmt.Errorf("assertions[%d]: code is required for error", index)
		}
	case AssertUnresolved, AssertViolations:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
