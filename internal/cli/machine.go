package cli

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/MiraeNK/mesline/internal/machine"
	"github.com/MiraeNK/mesline/internal/model"
	"github.com/MiraeNK/mesline/internal/monitor"
)

// NewMachineCommand creates the machine command group.
func NewMachineCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "machine",
		Short: "Inspect and power machines",
	}
	cmd.AddCommand(newMachineListCommand(opts))
	cmd.AddCommand(newMachineToggleCommand(opts))
	return cmd
}

func newMachineListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List machines with run time and maintenance outlook",
		Long: `List every provisioned machine. Run time includes the current span of a
running machine; nothing is written.

Example:
  mesline machine list`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMachineList(opts, cmd)
		},
	}
}

func runMachineList(opts *RootOptions, cmd *cobra.Command) error {
	s, err := openSession(cmd, opts)
	if err != nil {
		return err
	}
	defer s.close()

	machines, err := s.acc.List(commandContext(cmd))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read machines", err)
	}

	nowMs := model.Millis(s.line.Now())
	mp := s.cfg.MaintenancePolicy()
	rows := make([]monitor.MachineStatus, 0, len(machines))
	for _, m := range machines {
		rows = append(rows, monitor.DescribeMachine(m, nowMs, mp))
	}

	if opts.Format == "json" {
		return newFormatter(cmd, opts).Success(rows)
	}

	w := cmd.OutOrStdout()
	if len(rows) == 0 {
		fmt.Fprintln(w, "No machines provisioned. Run 'mesline init' first.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tUPTIME\tSERVICE IN")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.1fh\n", r.ID, r.Name, r.Status, r.Uptime, r.HoursUntil)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	for _, r := range rows {
		if r.Message != "" {
			fmt.Fprintln(w, levelColor(r.Level).Sprint(r.Message))
		}
	}
	return nil
}

func newMachineToggleCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "toggle <machine-id>",
		Short: "Flip a machine ON or OFF",
		Long: `Flip a machine's power. Turning it OFF adds the running span to its
accumulated run time.

Example:
  mesline machine toggle robot_arm`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMachineToggle(opts, args[0], cmd)
		},
	}
}

func runMachineToggle(opts *RootOptions, id string, cmd *cobra.Command) error {
	s, err := openSession(cmd, opts)
	if err != nil {
		return err
	}
	defer s.close()

	m, err := s.acc.Toggle(commandContext(cmd), id)
	if errors.Is(err, machine.ErrUnknownMachine) {
		return WrapExitError(ExitFailure, "toggle rejected", err)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to toggle machine", err)
	}

	row := monitor.DescribeMachine(m, model.Millis(s.line.Now()), s.cfg.MaintenancePolicy())
	if opts.Format == "json" {
		return newFormatter(cmd, opts).Success(row)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s (run time %s)\n", row.Name, powerLabel(row.Status), row.Uptime)
	return nil
}
