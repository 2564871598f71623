package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/MiraeNK/mesline/internal/model"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Limit int
}

// NewQueueCommand creates the queue command.
func NewQueueCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "queue",
		Short: "List live orders",
		Long: `List the orders on the line in queue order: the processing order first,
then queued orders by placement time.

Example:
  mesline queue
  mesline queue --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQueue(opts, cmd)
		},
	}
}

func runQueue(opts *RootOptions, cmd *cobra.Command) error {
	s, err := openSession(cmd, opts)
	if err != nil {
		return err
	}
	defer s.close()

	orders, err := s.line.Orders(commandContext(cmd))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read orders", err)
	}
	if orders == nil {
		orders = []model.Order{}
	}

	if opts.Format == "json" {
		return newFormatter(cmd, opts).Success(orders)
	}

	w := cmd.OutOrStdout()
	if len(orders) == 0 {
		fmt.Fprintln(w, "No orders queued.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tITEMS\tTOTAL\tPLACED")
	for _, o := range orders {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
			o.ID, o.Status, o.ItemCount(), formatAmount(o.TotalAmount), formatMillis(o.CreatedAt))
	}
	return tw.Flush()
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List completed orders",
		Long: `List archived orders, newest completion first.

Example:
  mesline history
  mesline history --limit 5 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum records to show (0 for all)")

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	if opts.Limit < 0 {
		return NewExitError(ExitCommandError, "--limit must not be negative")
	}

	s, err := openSession(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer s.close()

	records, err := s.line.History(commandContext(cmd), opts.Limit)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read history", err)
	}
	if records == nil {
		records = []model.HistoryRecord{}
	}

	if opts.Format == "json" {
		return newFormatter(cmd, opts.RootOptions).Success(records)
	}

	w := cmd.OutOrStdout()
	if len(records) == 0 {
		fmt.Fprintln(w, "No completed orders.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tITEMS\tTOTAL\tCOMPLETED\tLEAD TIME")
	for _, rec := range records {
		lead := time.Duration(rec.CompletedAt-rec.CreatedAt) * time.Millisecond
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n",
			rec.ID, rec.ItemCount(), formatAmount(rec.TotalAmount), formatMillis(rec.CompletedAt), lead)
	}
	return tw.Flush()
}

func formatMillis(ms int64) string {
	return model.FromMillis(ms).UTC().Format(time.RFC3339)
}
