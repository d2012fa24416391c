// Package config loads rosterbridge configuration from YAML files
// validated against an embedded CUE schema.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/roach88/rosterbridge/internal/roster"
)

//go:embed schema.cue
var schemaSource string

// Config is the full configuration. Field names follow the YAML keys.
type Config struct {
	Database  Database  `json:"database"`
	Roster    Roster    `json:"roster"`
	Reconcile Reconcile `json:"reconcile"`
	Resolve   Resolve   `json:"resolve"`
	Metrics   Metrics   `json:"metrics"`
}

// Database locates the SQLite mapping store.
type Database struct {
	Path string `json:"path"`
}

// Roster selects and configures the roster snapshot source.
type Roster struct {
	Source string `json:"source"`
	Path   string `json:"path,omitempty"`
	Driver string `json:"driver"`
	DSN    string `json:"dsn,omitempty"`
	Query  string `json:"query,omitempty"`
	SortBy string `json:"sort_by"`
	Locale string `json:"locale"`
}

// Reconcile holds the roster fetch retry budget and run record limits.
type Reconcile struct {
	MaxTries        int    `json:"max_tries"`
	InitialInterval string `json:"initial_interval"`
	MovedSampleSize int    `json:"moved_sample_size"`
}

// Resolve configures resolution passes.
type Resolve struct {
	Workers            int  `json:"workers"`
	AllowReattribution bool `json:"allow_reattribution"`
	MinTokenLength     int  `json:"min_token_length"`
}

// Metrics configures the node-exporter textfile written after each command.
type Metrics struct {
	Textfile string `json:"textfile"`
}

// Problem is one schema violation in a config file.
type Problem struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// LoadError reports a config file that could not be read or did not match
// the schema.
type LoadError struct {
	Path     string
	Problems []Problem
	Err      error
}

func (e *LoadError) Error() string {
	name := e.Path
	if name == "" {
		name = "config"
	}
	if len(e.Problems) == 0 {
		return fmt.Sprintf("%s: %v", name, e.Err)
	}
	msgs := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		msgs[i] = p.Message
	}
	return fmt.Sprintf("%s: %s", name, strings.Join(msgs, "; "))
}

func (e *LoadError) Unwrap() error { return e.Err }

// Load reads and validates the YAML file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	return Parse(data, path)
}

// Default returns the configuration with every default applied.
func Default() *Config {
	cfg, err := Parse(nil, "")
	if err != nil {
		panic(fmt.Sprintf("config: defaults do not satisfy schema: %v", err))
	}
	return cfg
}

// Parse validates YAML data against the schema and decodes it. name is used
// in error messages only.
func Parse(data []byte, name string) (*Config, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &LoadError{Path: name, Err: err}
	}
	if raw == nil {
		raw = map[string]any{}
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("config schema: %w", err)
	}

	v := schema.LookupPath(cue.ParsePath("#Config")).Unify(ctx.Encode(raw))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, &LoadError{Path: name, Problems: problems(err), Err: err}
	}

	var cfg Config
	if err := v.Decode(&cfg); err != nil {
		return nil, &LoadError{Path: name, Err: err}
	}
	return &cfg, nil
}

func problems(err error) []Problem {
	var out []Problem
	for _, e := range cueerrors.Errors(err) {
		path := e.Path()
		if len(path) > 0 && path[0] == "#Config" {
			path = path[1:]
		}
		out = append(out, Problem{
			Field:   strings.Join(path, "."),
			Message: e.Error(),
		})
	}
	return out
}

// Interval returns reconcile.initial_interval as a duration.
func (r Reconcile) Interval() (time.Duration, error) {
	d, err := time.ParseDuration(r.InitialInterval)
	if err != nil {
		return 0, fmt.Errorf("reconcile.initial_interval: %w", err)
	}
	return d, nil
}

// Ordering returns the roster ordering described by sort_by and locale.
func (r Roster) Ordering() (roster.Ordering, error) {
	o, err := roster.ParseOrdering(r.SortBy)
	if err != nil {
		return roster.Ordering{}, err
	}
	if r.Locale != "" {
		tag, err := language.Parse(r.Locale)
		if err != nil {
			return roster.Ordering{}, fmt.Errorf("roster.locale: %w", err)
		}
		o.Locale = tag
	}
	return o, nil
}
