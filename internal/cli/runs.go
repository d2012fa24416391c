package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/rosterbridge/internal/model"
)

// RunsOptions holds flags for the runs command.
type RunsOptions struct {
	*RootOptions
	Database string
	Limit    int
}

// RunView is a reconciliation run as printed by runs.
type RunView struct {
	ID           string       `json:"id"`
	Kind         string       `json:"kind"`
	Timestamp    time.Time    `json:"timestamp"`
	SnapshotSize int          `json:"snapshot_size"`
	SnapshotHash string       `json:"snapshot_hash"`
	Added        []string     `json:"added"`
	Removed      []string     `json:"removed"`
	MovedCount   int          `json:"moved_count"`
	MovedSample  []model.Move `json:"moved_sample"`
	Reason       string       `json:"reason,omitempty"`
}

// NewRunsCommand creates the runs command.
func NewRunsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List reconciliation runs, newest first",
		Long: `List the append-only reconciliation run records: when each run happened,
the snapshot it applied and the drift it found.

Examples:
  rosterbridge runs --db ./rosterbridge.db
  rosterbridge runs --db ./rosterbridge.db --limit 5 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRuns(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides database.path)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum runs to list (0 = all)")

	return cmd
}

func runRuns(opts *RunsOptions, cmd *cobra.Command) (err error) {
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

	runs, err := s.store.ListRuns(ctx, opts.Limit)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to list runs", err)
	}

	views := make([]RunView, len(runs))
	for i, r := range runs {
		views[i] = RunView{
			ID:           r.ID,
			Kind:         string(r.Kind),
			Timestamp:    r.Timestamp,
			SnapshotSize: r.SnapshotSize,
			SnapshotHash: r.SnapshotHash,
			Added:        r.Added,
			Removed:      r.Removed,
			MovedCount:   r.MovedCount,
			MovedSample:  r.MovedSample,
			Reason:       r.Reason,
		}
	}

	return s.out.Success(views, func(w io.Writer) {
		if len(views) == 0 {
			fmt.Fprintln(w, "No runs recorded.")
			return
		}
		for _, v := range views {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d employees\t+%d -%d ~%d",
				v.Timestamp.Format(time.RFC3339), v.ID, v.Kind, v.SnapshotSize,
				len(v.Added), len(v.Removed), v.MovedCount)
			if v.Reason != "" {
				fmt.Fprintf(w, "\t%s", v.Reason)
			}
			fmt.Fprintln(w)
		}
	})
}
