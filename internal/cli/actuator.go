package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/MiraeNK/mesline/internal/actuator"
)

// ActuatorOptions holds flags for the actuator command.
type ActuatorOptions struct {
	*RootOptions
	Once  bool
	Delay time.Duration
}

// NewActuatorCommand creates the actuator command.
func NewActuatorCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ActuatorOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "actuator",
		Short: "Simulate the hardware that consumes the buffer",
		Long: `Stand in for the hardware agent: wait for the line to write quantities
into the live buffer, then hand each slot back by writing 0.

Example:
  mesline actuator --delay 2s
  mesline actuator --once`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runActuator(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Once, "once", false, "drain the buffer now and exit")
	cmd.Flags().DurationVar(&opts.Delay, "delay", actuator.DefaultDelay, "consume delay (defaults to the configured drain delay)")

	return cmd
}

func runActuator(opts *ActuatorOptions, cmd *cobra.Command) error {
	s, err := openSession(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer s.close()

	delay := s.cfg.Actuator.DrainDelay
	if cmd.Flags().Changed("delay") {
		delay = opts.Delay
	}
	act := actuator.New(s.store, actuator.WithDelay(delay))

	if opts.Once {
		slots, err := act.DrainOnce(commandContext(cmd))
		if err != nil {
			return WrapExitError(ExitCommandError, "drain failed", err)
		}
		if slots == nil {
			slots = []int{}
		}
		if opts.Format == "json" {
			return newFormatter(cmd, opts.RootOptions).Success(map[string]any{"released": slots})
		}
		if len(slots) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "Buffer already drained")
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Released slots %s\n", joinInts(slots))
		return nil
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	fmt.Fprintf(cmd.OutOrStdout(), "Actuator watching %s (delay %s). Press Ctrl-C to stop.\n", s.cfg.Database, act.Delay())
	if err := act.Run(ctx); err != nil && !isShutdown(err) {
		return WrapExitError(ExitFailure, "actuator error", err)
	}
	return nil
}

func isShutdown(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func joinInts(v []int) string {
	parts := make([]string, len(v))
	for i, n := range v {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ",")
}
