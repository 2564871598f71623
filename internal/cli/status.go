package cli

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/MiraeNK/mesline/internal/model"
	"github.com/MiraeNK/mesline/internal/monitor"
)

// NewStatusCommand creates the status command.
func NewStatusCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the line at a glance",
		Long: `Show machines with their run time and maintenance outlook, the stage
tracking, the active order and the queue depth.

Example:
  mesline status
  mesline status --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(opts, cmd)
		},
	}
}

func runStatus(opts *RootOptions, cmd *cobra.Command) error {
	s, err := openSession(cmd, opts)
	if err != nil {
		return err
	}
	defer s.close()

	v, err := s.line.View(commandContext(cmd))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read line state", err)
	}
	st := monitor.BuildStatus(v, s.line.Now(), s.line.Policy(), s.cfg.MaintenancePolicy())

	if opts.Format == "json" {
		return newFormatter(cmd, opts).Success(st)
	}
	renderStatus(cmd.OutOrStdout(), st)
	return nil
}

func renderStatus(w io.Writer, st monitor.Status) {
	header := color.New(color.Bold)

	header.Fprintln(w, "Machines")
	if len(st.Machines) == 0 {
		fmt.Fprintln(w, "  (none provisioned)")
	}
	for _, m := range st.Machines {
		fmt.Fprintf(w, "  %-12s %-20s %s  %s\n", m.ID, m.Name, powerLabel(m.Status), m.Uptime)
		if m.Message != "" {
			fmt.Fprintf(w, "    %s\n", levelColor(m.Level).Sprint(m.Message))
		}
	}

	header.Fprintln(w, "Tracking")
	for _, stage := range model.Stages {
		fmt.Fprintf(w, "  %-12s %s\n", stage, stageLabel(st.Tracking.Status(stage)))
	}

	header.Fprintln(w, "Order")
	if st.Active == nil {
		fmt.Fprintln(w, "  idle")
	} else {
		a := st.Active
		fmt.Fprintf(w, "  %s  %s  handshake=%s  items=%d  total=%s\n",
			a.ID, a.Status, a.Handshake, a.Items, formatAmount(a.Total))
		if a.Stage != "" {
			fmt.Fprintf(w, "  stage %s  %.0f%%\n", a.Stage, a.Progress)
		}
	}
	fmt.Fprintf(w, "  queued: %d\n", st.Queued)

	if len(st.Problems) > 0 {
		header.Fprintln(w, "Problems")
		warn := color.New(color.FgYellow)
		for _, p := range st.Problems {
			fmt.Fprintf(w, "  %s\n", warn.Sprint(p))
		}
	}
}

func powerLabel(p model.Power) string {
	if p == model.PowerOn {
		return color.New(color.FgHiGreen).Sprint("ON")
	}
	return color.New(color.FgHiBlack).Sprint("OFF")
}

func stageLabel(s model.StageStatus) string {
	switch s {
	case model.StageDone:
		return color.New(color.FgGreen).Sprint(s)
	case model.StageInProgress:
		return color.New(color.FgCyan).Sprint(s)
	}
	return string(s)
}

func levelColor(level string) *color.Color {
	switch level {
	case "critical":
		return color.New(color.FgRed, color.Bold)
	case "warning":
		return color.New(color.FgYellow)
	}
	return color.New(color.Reset)
}
