package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MiraeNK/mesline/internal/fulfillment"
)

// ReconcileOptions holds flags for the reconcile command.
type ReconcileOptions struct {
	*RootOptions
	Apply bool
}

// ReconcileResult is the JSON form of a reconciliation pass.
type ReconcileResult struct {
	Findings []FindingView `json:"findings"`
	Applied  bool          `json:"applied"`
}

// FindingView is one finding as printed.
type FindingView struct {
	Kind     fulfillment.FindingKind `json:"kind"`
	Path     string                  `json:"path"`
	OrderID  string                  `json:"order_id,omitempty"`
	Message  string                  `json:"message"`
	Repaired bool                    `json:"repairable"`
}

// NewReconcileCommand creates the reconcile command.
func NewReconcileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReconcileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Check the store for inconsistent pipeline state",
		Long: `Re-derive the expected pipeline state and report every deviation.

With --apply, the safe repairs are written: tracking that no live order owns
is reset. The buffer is never cleared here; only the actuator drains it.

Exit codes:
  0 - State is consistent, or every finding was repaired
  1 - Findings remain
  2 - Command error

Example:
  mesline reconcile
  mesline reconcile --apply --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReconcile(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Apply, "apply", false, "write safe repairs")

	return cmd
}

func runReconcile(opts *ReconcileOptions, cmd *cobra.Command) error {
	s, err := openSession(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer s.close()

	report, applied, err := s.line.Reconcile(commandContext(cmd), opts.Apply)
	if err != nil {
		return WrapExitError(ExitCommandError, "reconcile failed", err)
	}

	out := ReconcileResult{Findings: make([]FindingView, 0, len(report.Findings)), Applied: applied}
	remaining := 0
	for _, f := range report.Findings {
		out.Findings = append(out.Findings, FindingView(f))
		if !applied || !f.Repaired {
			remaining++
		}
	}

	if opts.Format == "json" {
		if err := newFormatter(cmd, opts.RootOptions).Success(out); err != nil {
			return err
		}
	} else {
		w := cmd.OutOrStdout()
		if report.Clean() {
			fmt.Fprintln(w, "✓ State is consistent")
		}
		for _, f := range report.Findings {
			mark := "✗"
			if applied && f.Repaired {
				mark = "✓"
			}
			fmt.Fprintf(w, "%s %-20s %s: %s\n", mark, f.Kind, f.Path, f.Message)
		}
		if !opts.Apply && report.Repair != nil {
			fmt.Fprintln(w, "Run with --apply to reset stale tracking.")
		}
	}

	if remaining > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d finding(s) remain", remaining))
	}
	return nil
}
