package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MiraeNK/mesline/internal/fulfillment"
	"github.com/MiraeNK/mesline/internal/model"
)

// SignalResult is the outcome of a completion signal.
type SignalResult struct {
	Stage   model.Stage        `json:"stage"`
	OrderID string             `json:"order_id,omitempty"`
	Action  fulfillment.Action `json:"action"`
	Applied bool               `json:"applied"`
}

// NewSignalCommand creates the signal command.
func NewSignalCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "signal <stage>",
		Short: "Report a stage as finished",
		Long: `Mark an in-progress stage of the accepted order as Done on behalf of the
hardware. Only stages configured with mode signal or either accept it. A
signal for a stage that is already Done changes nothing.

Stage names: itemPicking (picking), packaging (packing), sending (ship).

Example:
  mesline signal picking
  mesline signal packaging --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSignal(opts, args[0], cmd)
		},
	}
}

func runSignal(opts *RootOptions, name string, cmd *cobra.Command) error {
	stage, err := model.ParseStage(name)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid stage", err)
	}

	s, err := openSession(cmd, opts)
	if err != nil {
		return err
	}
	defer s.close()

	res, err := s.line.CompleteStage(commandContext(cmd), stage)
	if err != nil {
		return lineError(cmd, opts, "signal rejected", err)
	}

	out := SignalResult{Stage: stage, OrderID: res.OrderID, Action: res.Action, Applied: res.Applied}
	if opts.Format == "json" {
		return newFormatter(cmd, opts).Success(out)
	}

	w := cmd.OutOrStdout()
	switch {
	case res.Progressed():
		fmt.Fprintf(w, "Stage %s of %s done\n", stage, res.OrderID)
	case res.Action == fulfillment.ActionNone:
		fmt.Fprintf(w, "Stage %s of %s was already done\n", stage, res.OrderID)
	default:
		fmt.Fprintf(w, "Stage %s changed concurrently; nothing written\n", stage)
	}
	return nil
}
