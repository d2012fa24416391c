package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/rosterbridge/internal/config"
)

// ValidationResult holds config validation results.
type ValidationResult struct {
	Valid    bool             `json:"valid"`
	Problems []config.Problem `json:"problems,omitempty"`
	Config   *config.Config   `json:"config,omitempty"`
}

// NewValidateConfigCommand creates the validate-config command.
func NewValidateConfigCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate-config <path>",
		Short: "Validate a config file against the schema",
		Long: `Check a YAML config file against the embedded CUE schema and print the
effective configuration with every default applied.

Exit codes:
  0 - Valid
  1 - Schema violations
  2 - File could not be read or parsed`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidateConfig(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidateConfig(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	cfg, err := config.Load(path)
	if err != nil {
		var loadErr *config.LoadError
		if !errors.As(err, &loadErr) || len(loadErr.Problems) == 0 {
			if oerr := formatter.Error(CodeConfig, err.Error(), nil); oerr != nil {
				return oerr
			}
			return WrapExitError(ExitCommandError, "failed to load config", err)
		}

		result := ValidationResult{Valid: false, Problems: loadErr.Problems}
		if oerr := formatter.Error(CodeConfig, fmt.Sprintf("%d problem(s) in %s", len(result.Problems), path), result); oerr != nil {
			return oerr
		}
		if opts.Format != "json" {
			w := cmd.OutOrStdout()
			for _, p := range result.Problems {
				fmt.Fprintf(w, "  %s: %s\n", p.Field, p.Message)
			}
		}
		return NewExitError(ExitFailure, "config is invalid")
	}

	result := ValidationResult{Valid: true, Config: cfg}
	return formatter.Success(result, func(w io.Writer) {
		fmt.Fprintf(w, "✓ %s is valid\n", path)
		fmt.Fprintf(w, "  database: %s\n", cfg.Database.Path)
		fmt.Fprintf(w, "  roster: %s, sorted by %s\n", cfg.Roster.Source, cfg.Roster.SortBy)
		fmt.Fprintf(w, "  reconcile: %d tries from %s\n", cfg.Reconcile.MaxTries, cfg.Reconcile.InitialInterval)
		if cfg.Metrics.Textfile != "" {
			fmt.Fprintf(w, "  metrics: %s\n", cfg.Metrics.Textfile)
		}
	})
}
