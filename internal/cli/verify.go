package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/rosterbridge/internal/reconcile"
	"github.com/roach88/rosterbridge/internal/verify"
)

// VerifyOptions holds flags for the verify command.
type VerifyOptions struct {
	*RootOptions
	Database   string
	Checkpoint bool
}

// VerifyResult is the output of the verify command.
type VerifyResult struct {
	Report       verify.Report `json:"report"`
	CheckpointID string        `json:"checkpoint_id,omitempty"`
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &VerifyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check the mapping and annotations for broken invariants",
		Long: `Read the identity mapping and the annotation store and report unresolved
annotations, orphaned annotations, entries moved since the last checkpoint
and broken invariants. Nothing is corrected.

With --checkpoint the report is recorded, and the next report counts moved
entries from this point.

Exit codes:
  0 - No fatal violations
  1 - The mapping is corrupt (duplicate current stable id or ordinal)
  2 - Command error (bad config, database not found, etc.)

Examples:
  rosterbridge verify --db ./rosterbridge.db
  rosterbridge verify --db ./rosterbridge.db --checkpoint --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides database.path)")
	cmd.Flags().BoolVar(&opts.Checkpoint, "checkpoint", false, "record this report as a verification checkpoint")

	return cmd
}

func runVerify(opts *VerifyOptions, cmd *cobra.Command) (err error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
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

	vopts := []verify.Option{verify.WithLogger(s.logger)}
	if opts.Clock != nil {
		vopts = append(vopts, verify.WithNow(opts.Clock.Now))
	}
	report, err := verify.New(s.store, vopts...).Verify(ctx)
	if err != nil {
		if oerr := s.out.Error(CodeStore, err.Error(), nil); oerr != nil {
			return oerr
		}
		return WrapExitError(ExitFailure, "verification failed", err)
	}

	byKind := make(map[string]int)
	for _, v := range report.Violations {
		byKind[string(v.Kind)]++
	}
	s.metrics.ObserveVerification(report.UnresolvedCount, byKind)

	result := VerifyResult{Report: report}
	if opts.Checkpoint {
		var ids reconcile.IDGenerator = reconcile.UUIDv7Generator{}
		if opts.CheckpointIDs != nil {
			ids = opts.CheckpointIDs
		}
		cp, err := report.Checkpoint(ids.Generate())
		if err != nil {
			return WrapExitError(ExitFailure, "failed to build checkpoint", err)
		}
		if err := s.store.AppendCheckpoint(ctx, cp); err != nil {
			return WrapExitError(ExitFailure, "failed to record checkpoint", err)
		}
		result.CheckpointID = cp.ID
	}

	if ferr := report.Err(); ferr != nil {
		if oerr := s.out.Error(CodeViolations, ferr.Error(), result); oerr != nil {
			return oerr
		}
		return WrapExitError(ExitFailure, "mapping invariants violated", ferr)
	}
	return s.out.Success(result, func(w io.Writer) { printReport(w, result) })
}

func printReport(w io.Writer, res VerifyResult) {
	r := res.Report
	lastRun := r.LastRunID
	if lastRun == "" {
		lastRun = "(none)"
	}
	fmt.Fprintf(w, "Last run: %s\n", lastRun)
	fmt.Fprintf(w, "Current mappings: %d (last snapshot %d)\n", r.CurrentMappings, r.LastSnapshotSize)
	if r.CountMismatch {
		fmt.Fprintln(w, "  ! current mapping count differs from last snapshot size")
	}
	since := "start"
	if r.CheckpointID != "" {
		since = "checkpoint " + r.CheckpointID
	}
	fmt.Fprintf(w, "Since %s: %d run(s), %d moved\n", since, r.RunsSinceCheckpoint, r.MovedSinceCheckpoint)
	fmt.Fprintf(w, "Unresolved annotations: %d\n", r.UnresolvedCount)
	for _, id := range r.UnresolvedIDs {
		fmt.Fprintf(w, "  ? %s\n", id)
	}
	if len(r.OrphanedIDs) > 0 {
		fmt.Fprintf(w, "Orphaned annotations: %d\n", len(r.OrphanedIDs))
		for _, id := range r.OrphanedIDs {
			fmt.Fprintf(w, "  - %s\n", id)
		}
	}
	fmt.Fprintf(w, "Violations: %d\n", len(r.Violations))
	for _, v := range r.Violations {
		fmt.Fprintf(w, "  ! %s\n", v)
	}
	if res.CheckpointID != "" {
		fmt.Fprintf(w, "Checkpoint %s recorded\n", res.CheckpointID)
	}
}
