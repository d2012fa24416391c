package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/rosterbridge/internal/config"
	"github.com/roach88/rosterbridge/internal/metrics"
	"github.com/roach88/rosterbridge/internal/reconcile"
	"github.com/roach88/rosterbridge/internal/resolve"
	"github.com/roach88/rosterbridge/internal/roster"
	"github.com/roach88/rosterbridge/internal/store"
)

// session is the data access context of one command: the loaded config,
// an open store and the run's metrics. Nothing outlives Close.
type session struct {
	opts    *RootOptions
	cfg     *config.Config
	store   *store.Store
	metrics *metrics.Metrics
	logger  *slog.Logger
	out     *OutputFormatter
}

// openSession loads the config, applies dbPath if set and opens the store.
func openSession(opts *RootOptions, cmd *cobra.Command, dbPath string) (*session, error) {
	cfg, err := loadConfig(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}

	logger := newLogger(opts.Verbose, cmd.ErrOrStderr())
	logger.Debug("opening database", "path", cfg.Database.Path)
	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	return &session{
		opts:    opts,
		cfg:     cfg,
		store:   st,
		metrics: metrics.New(),
		logger:  logger,
		out:     newFormatter(opts, cmd),
	}, nil
}

// Close writes the metrics textfile, if configured, and closes the store.
func (s *session) Close() error {
	var errs []error
	if path := s.cfg.Metrics.Textfile; path != "" {
		if err := s.metrics.WriteTextfile(path); err != nil {
			s.logger.Warn("failed to write metrics textfile", "path", path, "error", err)
			errs = append(errs, err)
		}
	}
	if err := s.store.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// engine builds a reconcile engine from the config and test overrides.
func (s *session) engine(reader roster.Reader) (*reconcile.Engine, error) {
	ordering, err := s.cfg.Roster.Ordering()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid roster ordering", err)
	}
	interval, err := s.cfg.Reconcile.Interval()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid retry interval", err)
	}

	opts := []reconcile.Option{
		reconcile.WithOrdering(ordering),
		reconcile.WithRetry(uint(s.cfg.Reconcile.MaxTries), interval),
		reconcile.WithMovedSampleSize(s.cfg.Reconcile.MovedSampleSize),
		reconcile.WithLogger(s.logger),
		reconcile.WithRecorder(s.metrics),
	}
	if s.opts.RunIDs != nil {
		opts = append(opts, reconcile.WithRunIDGenerator(s.opts.RunIDs))
	}
	if s.opts.Clock != nil {
		opts = append(opts, reconcile.WithClock(s.opts.Clock))
	}
	return reconcile.New(s.store, reader, opts...), nil
}

// pass builds a resolution pass. workers and allow override the config
// when workers > 0 and allow is true respectively.
func (s *session) pass(workers int, allow bool) *resolve.Pass {
	if workers == 0 {
		workers = s.cfg.Resolve.Workers
	}

	opts := []resolve.PassOption{
		resolve.WithReattribution(allow || s.cfg.Resolve.AllowReattribution),
		resolve.WithMinTokenLength(s.cfg.Resolve.MinTokenLength),
		resolve.WithPassLogger(s.logger),
		resolve.WithPassRecorder(s.metrics),
	}
	if workers > 0 {
		opts = append(opts, resolve.WithWorkers(workers))
	}
	if s.opts.PassIDs != nil {
		opts = append(opts, resolve.WithPassIDGenerator(s.opts.PassIDs.Generate))
	}
	if s.opts.Clock != nil {
		opts = append(opts, resolve.WithNow(s.opts.Clock.Now))
	}
	return resolve.NewPass(s.store, s.store, opts...)
}

// rosterReader opens the configured roster source. A non-empty path
// overrides the config with a file source.
func (s *session) rosterReader(path string) (roster.Reader, func() error, error) {
	rc := s.cfg.Roster
	if path != "" {
		rc.Source = "file"
		rc.Path = path
	}

	switch rc.Source {
	case "file":
		if rc.Path == "" {
			return nil, nil, NewExitError(ExitCommandError, "roster file path is required (--roster or roster.path)")
		}
		return &roster.FileReader{Path: rc.Path}, func() error { return nil }, nil
	case "sql":
		r, err := roster.OpenSQLReader(rc.Driver, rc.DSN, rc.Query)
		if err != nil {
			return nil, nil, WrapExitError(ExitCommandError, "failed to open roster source", err)
		}
		return r, r.Close, nil
	default:
		return nil, nil, NewExitError(ExitCommandError, fmt.Sprintf("unknown roster source %q", rc.Source))
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	return cfg, nil
}

func newLogger(verbose bool, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:  opts.Format,
		Writer:  cmd.OutOrStdout(),
		Verbose: opts.Verbose,
	}
}
