package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MiraeNK/mesline/internal/config"
	"github.com/MiraeNK/mesline/internal/fulfillment"
	"github.com/MiraeNK/mesline/internal/machine"
	"github.com/MiraeNK/mesline/internal/store"
	"github.com/MiraeNK/mesline/internal/telemetry"
)

// session is everything a command needs to talk to the line.
type session struct {
	cfg     *config.Config
	store   *store.Store
	line    *fulfillment.Line
	acc     *machine.Accumulator
	metrics *telemetry.Metrics
}

// loadConfig reads the config file and environment, then applies the --db
// override.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.Database != "" {
		cfg.Database = opts.Database
	}
	return cfg, nil
}

// setupLogging installs the default logger on the command's error stream.
func setupLogging(cmd *cobra.Command, opts *RootOptions, cfg *config.Config) error {
	if err := telemetry.SetupLogging(cmd.ErrOrStderr(), opts.Verbose || cfg.Log.Verbose, cfg.Log.Format); err != nil {
		return WrapExitError(ExitCommandError, "failed to set up logging", err)
	}
	return nil
}

// openSession loads configuration, sets up logging and opens the store.
func openSession(cmd *cobra.Command, opts *RootOptions) (*session, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	if err := setupLogging(cmd, opts, cfg); err != nil {
		return nil, err
	}

	slog.Debug("opening database", "path", cfg.Database)
	st, err := store.Open(cfg.Database, store.WithPollInterval(cfg.PollInterval))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	metrics := telemetry.NewMetrics()
	line, err := fulfillment.New(st,
		fulfillment.WithCatalog(cfg.Catalog),
		fulfillment.WithPolicy(cfg.Policy()),
		fulfillment.WithRecorder(metrics),
	)
	if err != nil {
		st.Close()
		return nil, WrapExitError(ExitCommandError, "invalid line configuration", err)
	}

	return &session{
		cfg:     cfg,
		store:   st,
		line:    line,
		acc:     machine.NewAccumulator(st, line.Now),
		metrics: metrics,
	}, nil
}

func (s *session) close() {
	if err := s.store.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
}

// newFormatter builds the output formatter for cmd.
func newFormatter(cmd *cobra.Command, opts *RootOptions) *OutputFormatter {
	return &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
}

// signalContext derives a context from the command's that is cancelled on
// SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// commandContext returns the command's context, or Background.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
