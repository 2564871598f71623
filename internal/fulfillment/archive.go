package fulfillment

import (
	"context"
	"time"

	"github.com/MiraeNK/mesline/internal/model"
	"github.com/MiraeNK/mesline/internal/store"
)

// planArchive moves the worked order to history once sending is Done: one
// batch writes the history record, deletes the live order and resets
// tracking. It is guarded by the order still being processing, so a second
// attempt finds the order gone and does nothing.
func planArchive(v View, now time.Time) (Plan, bool) {
	o, ok := v.Active()
	if !ok || o.Status != model.OrderProcessing {
		return Plan{}, false
	}
	if !trackingBound(v, o.ID) {
		return Plan{}, false
	}
	if v.Tracking.Status(model.StageSending) != model.StageDone {
		return Plan{}, false
	}
	return Plan{Action: ActionArchive, OrderID: o.ID, Batch: archiveBatch(o, v.Archived, now), createdAt: o.CreatedAt}, true
}

// trackingBound reports whether the tracking record belongs to orderID.
// Unbound tracking is attributed to the head of the queue only.
func trackingBound(v View, orderID string) bool {
	if v.Tracking.OrderID != "" {
		return v.Tracking.OrderID == orderID
	}
	active, ok := v.Active()
	return ok && active.ID == orderID
}

func archiveBatch(o model.Order, archived bool, now time.Time) *store.Batch {
	b := store.NewBatch().
		Require(model.OrderStatusPath(o.ID), string(model.OrderProcessing)).
		Require(model.StagePath(model.StageSending), string(model.StageDone)).
		Put(model.OrderPath(o.ID), nil).
		Put(model.PathTracking, model.IdleTracking())

	// A record left by an earlier partial archive is never rewritten.
	if !archived {
		b.Require(model.HistoryPath(o.ID), nil).
			Put(model.HistoryPath(o.ID), model.NewHistoryRecord(o, model.Millis(now)))
	}
	return b
}

// Archive runs completion and archival for orderID. It returns a result with
// Applied=false when the order is already archived, not yet finished, or
// not the order the tracking record belongs to.
func (l *Line) Archive(ctx context.Context, orderID string) (Result, error) {
	v, err := l.View(ctx)
	if err != nil {
		return Result{}, err
	}
	o, ok := v.Order(orderID)
	if !ok {
		return Result{Action: ActionNone, OrderID: orderID}, nil
	}
	if o.Status != model.OrderProcessing || v.Tracking.Status(model.StageSending) != model.StageDone {
		return Result{Action: ActionNone, OrderID: orderID}, nil
	}
	if !trackingBound(v, orderID) {
		return Result{Action: ActionNone, OrderID: orderID}, nil
	}

	archived := v.Archived
	if active, _ := v.Active(); active.ID != orderID {
		h, err := l.store.Read(ctx, model.HistoryPath(orderID))
		if err != nil {
			return Result{}, err
		}
		archived = h.Exists()
	}

	return l.apply(ctx, Plan{
		Action:    ActionArchive,
		OrderID:   orderID,
		Batch:     archiveBatch(o, archived, l.clock.Now()),
		createdAt: o.CreatedAt,
	})
}
