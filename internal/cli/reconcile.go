package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/rosterbridge/internal/model"
	"github.com/roach88/rosterbridge/internal/reconcile"
)

// ReconcileOptions holds flags shared by reconcile, rebuild and preview.
type ReconcileOptions struct {
	*RootOptions
	Database string
	Roster   string
	Reason   string
}

// RunSummary is the output of reconcile, rebuild and preview.
type RunSummary struct {
	RunID        string          `json:"run_id,omitempty"`
	Kind         model.RunKind   `json:"kind"`
	Timestamp    time.Time       `json:"timestamp"`
	SnapshotSize int             `json:"snapshot_size"`
	SnapshotHash string          `json:"snapshot_hash"`
	Changeset    model.Changeset `json:"changeset"`
	Reason       string          `json:"reason,omitempty"`
	DryRun       bool            `json:"dry_run,omitempty"`
}

// NewReconcileCommand creates the reconcile command.
func NewReconcileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReconcileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Apply the current roster snapshot to the mapping",
		Long: `Fetch the roster, assign ordinals and apply the drift to the identity
mapping in one transaction. Moved, added and removed employees are reported.

Exit codes:
  0 - Run committed
  1 - Run aborted (fetch failed, duplicate stable id, invalid snapshot)
  2 - Command error (bad config, database not found, etc.)

Examples:
  rosterbridge reconcile --db ./rosterbridge.db --roster ./roster.yaml
  rosterbridge reconcile --config ./rosterbridge.yaml --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReconcile(cmd, opts, func(ctx context.Context, e *reconcile.Engine) (reconcile.Result, error) {
				return e.Reconcile(ctx)
			})
		},
	}
	addReconcileFlags(cmd, opts)
	return cmd
}

// NewRebuildCommand creates the rebuild command.
func NewRebuildCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReconcileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Supersede the whole mapping and install the roster fresh",
		Long: `Retire every current mapping entry and install the roster snapshot as a
new mapping. Use only when the stored mapping is known to be wrong; the
reason is kept on the run record.

Example:
  rosterbridge rebuild --db ./rosterbridge.db --roster ./roster.yaml --reason "re-sorted export"`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReconcile(cmd, opts, func(ctx context.Context, e *reconcile.Engine) (reconcile.Result, error) {
				return e.Rebuild(ctx, opts.Reason)
			})
		},
	}
	addReconcileFlags(cmd, opts)
	cmd.Flags().StringVar(&opts.Reason, "reason", "", "why the mapping is being rebuilt (required)")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

// NewPreviewCommand creates the preview command.
func NewPreviewCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReconcileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Show the drift a reconcile would apply, without writing",
		Long: `Fetch and order the roster and diff it against the stored mapping.
Nothing is written and no run is recorded.

Example:
  rosterbridge preview --db ./rosterbridge.db --roster ./roster.yaml`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReconcile(cmd, opts, func(ctx context.Context, e *reconcile.Engine) (reconcile.Result, error) {
				return e.Preview(ctx)
			})
		},
	}
	addReconcileFlags(cmd, opts)
	return cmd
}

func addReconcileFlags(cmd *cobra.Command, opts *ReconcileOptions) {
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides database.path)")
	cmd.Flags().StringVar(&opts.Roster, "roster", "", "roster YAML/JSON file (overrides roster source)")
}

type engineFunc func(ctx context.Context, e *reconcile.Engine) (reconcile.Result, error)

func runReconcile(cmd *cobra.Command, opts *ReconcileOptions, fn engineFunc) (err error) {
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

	reader, closeReader, err := s.rosterReader(opts.Roster)
	if err != nil {
		return err
	}
	defer closeReader()

	engine, err := s.engine(reader)
	if err != nil {
		return err
	}

	res, err := fn(ctx, engine)
	if err != nil {
		return reportRunError(s.out, err)
	}

	summary := RunSummary{
		RunID:        res.Run.ID,
		Kind:         res.Run.Kind,
		Timestamp:    res.Run.Timestamp,
		SnapshotSize: res.Run.SnapshotSize,
		SnapshotHash: res.Run.SnapshotHash,
		Changeset:    res.Changeset,
		Reason:       res.Run.Reason,
		DryRun:       res.Run.ID == "",
	}
	return s.out.Success(summary, func(w io.Writer) { printRunSummary(w, summary) })
}

// reportRunError prints a run failure and maps it to an exit code. Run
// errors carry their own code; anything else is a store failure.
func reportRunError(out *OutputFormatter, err error) error {
	code := CodeStore
	var details any
	var runErr *reconcile.RunError
	if errors.As(err, &runErr) {
		code = string(runErr.Code)
		if len(runErr.Details) > 0 {
			details = runErr.Details
		}
	}
	if oerr := out.Error(code, err.Error(), details); oerr != nil {
		return oerr
	}
	return WrapExitError(ExitFailure, "run aborted", err)
}

func printRunSummary(w io.Writer, s RunSummary) {
	switch {
	case s.DryRun:
		fmt.Fprintf(w, "Preview (%d employees, nothing written)\n", s.SnapshotSize)
	default:
		fmt.Fprintf(w, "Run %s (%s, %d employees)\n", s.RunID, s.Kind, s.SnapshotSize)
	}
	if s.Reason != "" {
		fmt.Fprintf(w, "  reason: %s\n", s.Reason)
	}

	cs := s.Changeset
	fmt.Fprintf(w, "  added %d, removed %d, moved %d, stable %d\n",
		len(cs.Added), len(cs.Removed), len(cs.Moved), cs.Stable)
	for _, id := range cs.Added {
		fmt.Fprintf(w, "  + %s\n", id)
	}
	for _, id := range cs.Removed {
		fmt.Fprintf(w, "  - %s\n", id)
	}
	for _, m := range cs.Moved {
		fmt.Fprintf(w, "  ~ %s %d -> %d\n", m.StableID, m.FromOrdinal, m.ToOrdinal)
	}
}
