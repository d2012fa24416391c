package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/rosterbridge/internal/model"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Database   string
	Ordinal    int
	Annotation string
}

// EntryView is a mapping entry as printed by history.
type EntryView struct {
	Ordinal        int        `json:"ordinal"`
	StableID       string     `json:"stable_id"`
	DisplayName    string     `json:"display_name"`
	State          string     `json:"state"`
	CreatedAt      time.Time  `json:"created_at"`
	LastVerifiedAt time.Time  `json:"last_verified_at"`
	SupersededAt   *time.Time `json:"superseded_at,omitempty"`
	RunID          string     `json:"run_id"`
}

// LogView is a resolution log row as printed by history --annotation.
type LogView struct {
	PassID             string    `json:"pass_id"`
	PreviousStableID   string    `json:"previous_stable_id,omitempty"`
	PreviousConfidence string    `json:"previous_confidence,omitempty"`
	NewStableID        string    `json:"new_stable_id,omitempty"`
	NewConfidence      string    `json:"new_confidence"`
	Tier               string    `json:"tier"`
	Matcher            string    `json:"matcher,omitempty"`
	At                 time.Time `json:"at"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history [stable-id]",
		Short: "Show mapping history or an annotation's resolution log",
		Long: `Show every mapping entry, stale and current, for a stable ID or for an
ordinal (--ordinal). With --annotation, show that annotation's resolution
log instead.

Examples:
  rosterbridge history --db ./rosterbridge.db E-1042
  rosterbridge history --db ./rosterbridge.db --ordinal 12
  rosterbridge history --db ./rosterbridge.db --annotation ann-17`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides database.path)")
	cmd.Flags().IntVar(&opts.Ordinal, "ordinal", 0, "show every holder of this ordinal")
	cmd.Flags().StringVar(&opts.Annotation, "annotation", "", "show the resolution log of this annotation")

	return cmd
}

func runHistory(opts *HistoryOptions, args []string, cmd *cobra.Command) (err error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	selectors := 0
	if len(args) == 1 {
		selectors++
	}
	if opts.Ordinal != 0 {
		selectors++
	}
	if opts.Annotation != "" {
		selectors++
	}
	if selectors != 1 {
		return NewExitError(ExitCommandError, "exactly one of <stable-id>, --ordinal or --annotation is required")
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

	if opts.Annotation != "" {
		entries, err := s.store.ResolutionLog(ctx, opts.Annotation)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to read resolution log", err)
		}
		views := make([]LogView, len(entries))
		for i, e := range entries {
			views[i] = logView(e)
		}
		return s.out.Success(views, func(w io.Writer) { printLog(w, opts.Annotation, views) })
	}

	var entries []model.MappingEntry
	if len(args) == 1 {
		entries, err = s.store.History(ctx, args[0])
	} else {
		entries, err = s.store.OrdinalHistory(ctx, opts.Ordinal)
	}
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read mapping history", err)
	}

	views := make([]EntryView, len(entries))
	for i, e := range entries {
		views[i] = entryView(e)
	}
	return s.out.Success(views, func(w io.Writer) { printEntries(w, views) })
}

func entryView(e model.MappingEntry) EntryView {
	return EntryView{
		Ordinal:        e.Ordinal,
		StableID:       e.StableID,
		DisplayName:    e.DisplayName,
		State:          string(e.State),
		CreatedAt:      e.CreatedAt,
		LastVerifiedAt: e.LastVerifiedAt,
		SupersededAt:   e.SupersededAt,
		RunID:          e.RunID,
	}
}

func logView(e model.ResolutionLogEntry) LogView {
	v := LogView{
		PassID:             e.PassID,
		PreviousConfidence: string(e.PreviousConfidence),
		NewConfidence:      string(e.NewConfidence),
		Tier:               string(e.Tier),
		Matcher:            e.Matcher,
		At:                 e.At,
	}
	if e.PreviousStableID != nil {
		v.PreviousStableID = *e.PreviousStableID
	}
	if e.NewStableID != nil {
		v.NewStableID = *e.NewStableID
	}
	return v
}

func printEntries(w io.Writer, views []EntryView) {
	if len(views) == 0 {
		fmt.Fprintln(w, "No mapping entries.")
		return
	}
	for _, v := range views {
		until := "now"
		if v.SupersededAt != nil {
			until = v.SupersededAt.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s .. %s\t%s\n",
			v.Ordinal, v.StableID, v.DisplayName, v.State,
			v.CreatedAt.Format(time.RFC3339), until, v.RunID)
	}
}

func printLog(w io.Writer, annotationID string, views []LogView) {
	if len(views) == 0 {
		fmt.Fprintf(w, "No resolution log for %s.\n", annotationID)
		return
	}
	for _, v := range views {
		matcher := ""
		if v.Matcher != "" {
			matcher = " via " + v.Matcher
		}
		fmt.Fprintf(w, "%s\t%s: %s (%s) -> %s (%s, %s%s)\n",
			v.At.Format(time.RFC3339), v.PassID,
			orNone(v.PreviousStableID), orNone(v.PreviousConfidence),
			orNone(v.NewStableID), v.NewConfidence, v.Tier, matcher)
	}
}
