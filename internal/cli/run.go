package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/MiraeNK/mesline/internal/actuator"
	"github.com/MiraeNK/mesline/internal/engine"
	"github.com/MiraeNK/mesline/internal/monitor"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Simulate bool
	Listen   string
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Drive the line",
		Long: `Start the line controller.

The controller watches the store, hands the oldest order to the actuator once
the buffer is drained, moves stages along as they time out, and archives
shipped orders. Any number of controllers may run against the same store;
every write is guarded so each transition happens once.

With --simulate an in-process actuator drains the buffer. With --listen (or
metrics.listen in the config) the read-only monitor is served as well.

Example:
  mesline run --db ./line.db
  mesline run --simulate --listen 127.0.0.1:8080 --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLine(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Simulate, "simulate", false, "run a simulated actuator in-process")
	cmd.Flags().StringVar(&opts.Listen, "listen", "", "serve the monitor on this address (overrides config)")

	return cmd
}

func runLine(opts *RunOptions, cmd *cobra.Command) error {
	s, err := openSession(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer s.close()

	listen := s.cfg.Metrics.Listen
	if opts.Listen != "" {
		listen = opts.Listen
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	eng := engine.New(s.line, s.store,
		engine.WithMaxSteps(s.cfg.Engine.MaxSteps),
		engine.WithRetryDelay(s.cfg.Engine.RetryDelay),
		engine.WithReconcile(s.cfg.Engine.Reconcile),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return eng.Run(gctx)
	})
	if opts.Simulate {
		act := actuator.New(s.store, actuator.WithDelay(s.cfg.Actuator.DrainDelay))
		g.Go(func() error {
			return act.Run(gctx)
		})
	}
	if listen != "" {
		handler := monitor.Router(s.line, s.cfg.MaintenancePolicy(), s.metrics)
		g.Go(func() error {
			return monitor.Serve(gctx, listen, handler)
		})
	}

	slog.Info("line starting", "db", s.cfg.Database, "simulate", opts.Simulate, "listen", listen)
	fmt.Fprintln(cmd.OutOrStdout(), "Line running. Press Ctrl-C to stop.")

	if err := g.Wait(); err != nil && !isShutdown(err) {
		return WrapExitError(ExitFailure, "line error", err)
	}
	slog.Info("line stopped gracefully")
	return nil
}
