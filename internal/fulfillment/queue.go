package fulfillment

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/MiraeNK/mesline/internal/model"
)

// ActiveOrder selects the processing order if there is one, else the oldest
// queued order by (CreatedAt, ID). With several processing orders, which
// only an inconsistent store can produce, the oldest wins.
func ActiveOrder(orders []model.Order) (model.Order, bool) {
	sorted := append([]model.Order(nil), orders...)
	model.SortOrders(sorted)

	for _, o := range sorted {
		if o.Status == model.OrderProcessing {
			return o, true
		}
	}
	for _, o := range sorted {
		if o.Status == model.OrderQueued {
			return o, true
		}
	}
	return model.Order{}, false
}

// Enqueue turns cart lines into a queued order and appends it under a
// generated, time-ordered key. The order counts as placed only once the
// store confirms the write.
func (l *Line) Enqueue(ctx context.Context, lines []model.CartLine) (string, error) {
	o, err := l.buildOrder(lines)
	if err != nil {
		return "", err
	}

	id, err := l.store.Append(ctx, model.PathOrders, o)
	if err != nil {
		return "", newError(ErrCodePlacementFailed, "", err, "store did not accept the order")
	}

	l.recorder.OrderPlaced()
	slog.Info("order placed", "order", id, "items", o.ItemCount(), "total", o.TotalAmount)
	return id, nil
}

func (l *Line) buildOrder(lines []model.CartLine) (model.Order, error) {
	if len(lines) == 0 {
		return model.Order{}, newError(ErrCodeInvalidOrder, "", nil, "cart is empty")
	}

	items := make([]model.OrderItem, 0, len(lines))
	for i, line := range lines {
		if err := l.validate.Struct(line); err != nil {
			return model.Order{}, newError(ErrCodeInvalidOrder, "", err, "line %d is invalid", i+1)
		}
		cat, ok := l.catalog.Lookup(line.ProductID)
		if !ok {
			return model.Order{}, newError(ErrCodeUnknownItem, "", nil, "product %q is not in the catalog", line.ProductID)
		}
		if _, ok := l.slots.Slot(line.ProductID); !ok {
			return model.Order{}, newError(ErrCodeUnknownItem, "", nil, "product %q has no buffer slot", line.ProductID)
		}
		items = append(items, model.OrderItem{
			ItemID:   cat.ID,
			Name:     cat.Name,
			Quantity: line.Quantity,
			Price:    line.Price,
		})
	}

	o := model.Order{
		Items:     items,
		Status:    model.OrderQueued,
		CreatedAt: model.Millis(l.clock.Now()),
	}
	o.TotalAmount = o.ComputeTotal()
	return o, nil
}

// Orders returns the live queue in queue order.
func (l *Line) Orders(ctx context.Context) ([]model.Order, error) {
	v, err := l.View(ctx)
	if err != nil {
		return nil, err
	}
	return v.Orders, nil
}

// History returns archived orders, newest completion first. A limit of 0
// returns all of them.
func (l *Line) History(ctx context.Context, limit int) ([]model.HistoryRecord, error) {
	snap, err := l.store.Read(ctx, model.PathHistory)
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	var out []model.HistoryRecord
	for _, id := range snap.Keys() {
		var rec model.HistoryRecord
		if err := snap.Child(id).Decode(&rec); err != nil {
			slog.Warn("skipping malformed history record", "order", id, "error", err)
			continue
		}
		rec.ID = id
		out = append(out, rec)
	}
	model.SortHistory(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
