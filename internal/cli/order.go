package cli

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MiraeNK/mesline/internal/fulfillment"
	"github.com/MiraeNK/mesline/internal/model"
)

// PlaceResult is the outcome of a successful checkout.
type PlaceResult struct {
	ID    string           `json:"id"`
	Items []model.CartLine `json:"items"`
	Total int64            `json:"total_amount"`
}

// NewOrderCommand creates the order command group.
func NewOrderCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "order",
		Short: "Place orders on the line",
	}
	cmd.AddCommand(newOrderPlaceCommand(rootOpts))
	return cmd
}

func newOrderPlaceCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "place <product:qty[@price]>...",
		Short: "Check out a cart",
		Long: `Append an order to the queue.

Each argument is one cart line: a catalog product id, a quantity and an
optional unit price. The catalog price is used when the price is omitted.

Example:
  mesline order place 1:2 3:1
  mesline order place 4:1@7500 --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlace(opts, args, cmd)
		},
	}
}

func runPlace(opts *RootOptions, args []string, cmd *cobra.Command) error {
	s, err := openSession(cmd, opts)
	if err != nil {
		return err
	}
	defer s.close()

	slog.Debug("placing order", "lines", len(args), "database", s.cfg.Database)

	lines := make([]model.CartLine, 0, len(args))
	for _, arg := range args {
		line, err := ParseCartLine(arg, s.line.Catalog())
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid cart line", err)
		}
		lines = append(lines, line)
	}

	id, err := s.line.Enqueue(commandContext(cmd), lines)
	if err != nil {
		return lineError(cmd, opts, "order rejected", err)
	}

	res := PlaceResult{ID: id, Items: lines}
	for _, l := range lines {
		res.Total += l.Price * int64(l.Quantity)
	}

	if opts.Format == "json" {
		return newFormatter(cmd, opts).Success(res)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Order %s queued (%d lines, total %s)\n", id, len(lines), formatAmount(res.Total))
	return nil
}

// ParseCartLine parses "product:qty[@price]". Unknown products are passed
// through so that the line reports them with its own error code.
func ParseCartLine(s string, catalog model.Catalog) (model.CartLine, error) {
	product, rest, ok := strings.Cut(s, ":")
	if !ok || product == "" {
		return model.CartLine{}, fmt.Errorf("%q: expected product:qty[@price]", s)
	}

	qtyText, priceText, hasPrice := strings.Cut(rest, "@")
	qty, err := strconv.Atoi(qtyText)
	if err != nil {
		return model.CartLine{}, fmt.Errorf("%q: bad quantity: %w", s, err)
	}

	line := model.CartLine{ProductID: product, Quantity: qty}
	switch {
	case hasPrice:
		line.Price, err = strconv.ParseInt(priceText, 10, 64)
		if err != nil {
			return model.CartLine{}, fmt.Errorf("%q: bad price: %w", s, err)
		}
	default:
		if item, ok := catalog.Lookup(product); ok {
			line.Price = item.Price
		}
	}
	return line, nil
}

// lineError maps a line error to an exit error. Rejections by the line are
// failures and, in JSON mode, are also reported as an error response.
func lineError(cmd *cobra.Command, opts *RootOptions, message string, err error) error {
	code := fulfillment.CodeOf(err)
	if code == "" {
		return WrapExitError(ExitCommandError, message, err)
	}
	if opts.Format == "json" {
		if ferr := newFormatter(cmd, opts).Error(string(code), err.Error()); ferr != nil {
			return ferr
		}
	}
	return WrapExitError(ExitFailure, message, err)
}

// formatAmount renders cents as a decimal amount.
func formatAmount(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}
