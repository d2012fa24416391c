package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/rosterbridge/internal/lookup"
)

// LookupOptions holds flags for the lookup command.
type LookupOptions struct {
	*RootOptions
	Database string
	Ordinal  int
	StableID string
}

// LookupResult is the output of the lookup command.
type LookupResult struct {
	Ordinal     int    `json:"ordinal"`
	StableID    string `json:"stable_id"`
	DisplayName string `json:"display_name,omitempty"`
}

// NewLookupCommand creates the lookup command.
func NewLookupCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LookupOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "lookup",
		Short: "Resolve a current ordinal or stable ID",
		Long: `Look up the current mapping for an ordinal (--ordinal) or a stable ID (--id).
Only current entries are consulted; use history for past positions.

Exit codes:
  0 - Found
  1 - Not currently mapped
  2 - Command error

Examples:
  rosterbridge lookup --db ./rosterbridge.db --ordinal 12
  rosterbridge lookup --db ./rosterbridge.db --id E-1042`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLookup(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides database.path)")
	cmd.Flags().IntVar(&opts.Ordinal, "ordinal", 0, "ordinal to resolve")
	cmd.Flags().StringVar(&opts.StableID, "id", "", "stable ID to resolve")
	cmd.MarkFlagsMutuallyExclusive("ordinal", "id")
	cmd.MarkFlagsOneRequired("ordinal", "id")

	return cmd
}

func runLookup(opts *LookupOptions, cmd *cobra.Command) (err error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.StableID == "" && opts.Ordinal < 1 {
		return NewExitError(ExitCommandError, "--ordinal must be positive")
	}

	s, err := openSession(opts.RootOptions, cmd, opts.Database)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil && err == nil {
			err = WrapExitError(ExitCommandError, "failed to close session", cerr)
		}
	}()

	svc := lookup.New(s.store)
	result := LookupResult{Ordinal: opts.Ordinal, StableID: opts.StableID}
	if opts.StableID != "" {
		result.DisplayName, result.Ordinal, err = svc.ResolveStableID(ctx, opts.StableID)
	} else {
		result.StableID, err = svc.ResolveOrdinal(ctx, opts.Ordinal)
	}

	if err != nil {
		code := CodeStore
		if errors.Is(err, lookup.ErrNotFound) {
			code = CodeNotFound
		}
		if oerr := s.out.Error(code, err.Error(), nil); oerr != nil {
			return oerr
		}
		return WrapExitError(ExitFailure, "lookup failed", err)
	}

	return s.out.Success(result, func(w io.Writer) {
		if result.DisplayName != "" {
			fmt.Fprintf(w, "%d\t%s\t%s\n", result.Ordinal, result.StableID, result.DisplayName)
			return
		}
		fmt.Fprintf(w, "%d\t%s\n", result.Ordinal, result.StableID)
	})
}
