package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/rosterbridge/internal/model"
	"github.com/roach88/rosterbridge/internal/resolve"
	"github.com/roach88/rosterbridge/internal/store"
)

// ResolveOptions holds flags for the resolve command.
type ResolveOptions struct {
	*RootOptions
	Database           string
	Sender             string
	IDs                []string
	Pending            bool
	AllowReattribution bool
	Workers            int
}

// PassSummary is the output of the resolve command.
type PassSummary struct {
	PassID       string             `json:"pass_id"`
	StartedAt    time.Time          `json:"started_at"`
	SnapshotSize int                `json:"snapshot_size"`
	Annotations  int                `json:"annotations"`
	Exact        int                `json:"exact"`
	Inferred     int                `json:"inferred"`
	Unresolved   int                `json:"unresolved"`
	Updated      int                `json:"updated"`
	Conflicts    []ConflictSummary  `json:"conflicts"`
	Ambiguous    []AmbiguousSummary `json:"ambiguous"`
}

// ConflictSummary is a withheld reattribution.
type ConflictSummary struct {
	AnnotationID string `json:"annotation_id"`
	Current      string `json:"current"`
	Proposed     string `json:"proposed"`
}

// AmbiguousSummary is an annotation left unresolved.
type AmbiguousSummary struct {
	AnnotationID string   `json:"annotation_id"`
	Candidates   []string `json:"candidates,omitempty"`
}

// NewResolveCommand creates the resolve command.
func NewResolveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ResolveOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Attribute annotations to stable employee IDs",
		Long: `Run a resolution pass: each annotation's target ordinal is resolved to the
employee who held it when the annotation was written (exact or historical
tier), falling back to content matching. Annotations no tier can decide are
recorded as unresolved and listed.

A pass never silently changes an existing attribution. A different answer
is reported as a conflict unless --allow-reattribution is given.

Examples:
  rosterbridge resolve --db ./rosterbridge.db
  rosterbridge resolve --db ./rosterbridge.db --pending --workers 8
  rosterbridge resolve --db ./rosterbridge.db --id ann-17 --allow-reattribution`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides database.path)")
	cmd.Flags().StringVar(&opts.Sender, "sender", "", "only annotations from this sender")
	cmd.Flags().StringSliceVar(&opts.IDs, "id", nil, "only these annotation IDs (repeatable)")
	cmd.Flags().BoolVar(&opts.Pending, "pending", false, "only annotations never resolved or left unresolved")
	cmd.Flags().BoolVar(&opts.AllowReattribution, "allow-reattribution", false, "let the pass replace an existing attribution")
	cmd.Flags().IntVar(&opts.Workers, "workers", 0, "concurrent resolutions (default from config, 0 = one per CPU)")

	return cmd
}

func runResolve(opts *ResolveOptions, cmd *cobra.Command) (err error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Workers < 0 {
		return NewExitError(ExitCommandError, "--workers must not be negative")
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

	filter := store.AnnotationFilter{IDs: opts.IDs, Sender: opts.Sender}
	if opts.Pending {
		filter.Confidences = []model.Confidence{model.ConfidenceNone, model.ConfidenceUnresolved}
	}

	res, err := s.pass(opts.Workers, opts.AllowReattribution).Run(ctx, filter)
	if err != nil {
		if oerr := s.out.Error(CodeStore, err.Error(), nil); oerr != nil {
			return oerr
		}
		return WrapExitError(ExitFailure, "resolution pass failed", err)
	}

	summary := summarizePass(res)
	return s.out.Success(summary, func(w io.Writer) { printPassSummary(w, summary) })
}

func summarizePass(res resolve.PassResult) PassSummary {
	summary := PassSummary{
		PassID:       res.PassID,
		StartedAt:    res.StartedAt,
		SnapshotSize: res.SnapshotSize,
		Annotations:  len(res.Outcomes),
		Exact:        res.Exact,
		Inferred:     res.Inferred,
		Unresolved:   res.Unresolved,
		Updated:      res.Updated,
		Conflicts:    []ConflictSummary{},
		Ambiguous:    []AmbiguousSummary{},
	}
	for _, o := range res.Outcomes {
		if o.Conflict {
			summary.Conflicts = append(summary.Conflicts, ConflictSummary{
				AnnotationID: o.Annotation.ID,
				Current:      o.Annotation.ResolvedID(),
				Proposed:     o.Resolution.ResolvedID(),
			})
		}
		if o.Resolution.Confidence == model.ConfidenceUnresolved {
			summary.Ambiguous = append(summary.Ambiguous, AmbiguousSummary{
				AnnotationID: o.Annotation.ID,
				Candidates:   o.Resolution.Candidates,
			})
		}
	}
	return summary
}

func printPassSummary(w io.Writer, s PassSummary) {
	fmt.Fprintf(w, "Pass %s (%d annotations, %d mapping entries)\n", s.PassID, s.Annotations, s.SnapshotSize)
	fmt.Fprintf(w, "  exact %d, inferred %d, unresolved %d, updated %d, conflicts %d\n",
		s.Exact, s.Inferred, s.Unresolved, s.Updated, len(s.Conflicts))
	for _, c := range s.Conflicts {
		fmt.Fprintf(w, "  ! %s: attributed to %s, pass proposes %s\n", c.AnnotationID, c.Current, orNone(c.Proposed))
	}
	for _, a := range s.Ambiguous {
		if len(a.Candidates) == 0 {
			fmt.Fprintf(w, "  ? %s: no candidate\n", a.AnnotationID)
			continue
		}
		fmt.Fprintf(w, "  ? %s: %v\n", a.AnnotationID, a.Candidates)
	}
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
