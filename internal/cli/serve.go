package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MiraeNK/mesline/internal/monitor"
)

// DefaultListen is the monitor address used when neither --listen nor the
// config names one.
const DefaultListen = "127.0.0.1:8080"

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Listen string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the read-only monitor",
		Long: `Serve line status, orders, history and Prometheus metrics over HTTP
without driving the line.

Endpoints:
  GET /api/v1/status
  GET /api/v1/orders
  GET /api/v1/orders/{id}
  GET /api/v1/history
  GET /metrics

Example:
  mesline serve --listen :8080`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Listen, "listen", "", "listen address (defaults to metrics.listen, then "+DefaultListen+")")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	s, err := openSession(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer s.close()

	listen := opts.Listen
	if listen == "" {
		listen = s.cfg.Metrics.Listen
	}
	if listen == "" {
		listen = DefaultListen
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	fmt.Fprintf(cmd.OutOrStdout(), "Monitor listening on %s. Press Ctrl-C to stop.\n", listen)
	handler := monitor.Router(s.line, s.cfg.MaintenancePolicy(), s.metrics)
	if err := monitor.Serve(ctx, listen, handler); err != nil && !isShutdown(err) {
		return WrapExitError(ExitFailure, "monitor error", err)
	}
	return nil
}
