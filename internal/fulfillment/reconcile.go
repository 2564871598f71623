package fulfillment

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MiraeNK/mesline/internal/machine"
	"github.com/MiraeNK/mesline/internal/model"
	"github.com/MiraeNK/mesline/internal/store"
)

// FindingKind classifies an inconsistency found by Reconcile.
type FindingKind string

const (
	// FindingStaleTracking: tracking shows work but nothing is processing
	// and the buffer is drained.
	FindingStaleTracking FindingKind = "stale-tracking"
	// FindingOrphanTracking: tracking is bound to an order that is not the
	// processing order.
	FindingOrphanTracking FindingKind = "orphan-tracking"
	// FindingStuckBuffer: the buffer holds quantities but no order is
	// processing. Only the actuator may clear it.
	FindingStuckBuffer FindingKind = "stuck-buffer"
	// FindingMultipleProcessing: more than one order is processing.
	FindingMultipleProcessing FindingKind = "multiple-processing"
	// FindingStageOrder: a stage left Todo before its predecessor was Done.
	FindingStageOrder FindingKind = "stage-order"
	// FindingUnmappedItem: the head of the queue has an item with no slot,
	// so it can never be handed off.
	FindingUnmappedItem FindingKind = "unmapped-item"
	// FindingMalformed: a record could not be decoded.
	FindingMalformed FindingKind = "malformed"
)

// Finding is one reported inconsistency.
type Finding struct {
	Kind     FindingKind
	Path     string
	OrderID  string
	Message  string
	Repaired bool
}

// Report is the outcome of a reconciliation pass. Repair is nil when no safe
// repair applies.
type Report struct {
	Findings []Finding
	Repair   *store.Batch
}

// Clean reports whether nothing was found.
func (r Report) Clean() bool {
	return len(r.Findings) == 0
}

// Reconcile re-derives the expected pipeline state from the view and reports
// every deviation. It plans only repairs that are safe under concurrent
// writers: resetting tracking that no live order can own. It never writes
// the buffer, since draining is the actuator's alone.
func Reconcile(v View, now time.Time, p Policy, slots model.SlotMap) Report {
	var r Report

	for _, p := range v.Malformed {
		r.Findings = append(r.Findings, Finding{Kind: FindingMalformed, Path: p, Message: "record cannot be decoded"})
	}

	processing := v.Processing()
	if len(processing) > 1 {
		ids := make([]string, len(processing))
		for i, o := range processing {
			ids[i] = o.ID
		}
		r.Findings = append(r.Findings, Finding{
			Kind:    FindingMultipleProcessing,
			Path:    model.PathOrders,
			OrderID: processing[0].ID,
			Message: fmt.Sprintf("orders %s are all processing; %s stays active", strings.Join(ids, ", "), processing[0].ID),
		})
	}

	if err := v.Tracking.Validate(); err != nil {
		r.Findings = append(r.Findings, Finding{Kind: FindingStageOrder, Path: model.PathTracking, Message: err.Error()})
	}

	tracked := !v.Tracking.IsIdle() || v.Tracking.OrderID != ""

	switch {
	case len(processing) == 0 && tracked && v.Buffer.IsZero():
		r.Findings = append(r.Findings, Finding{
			Kind:     FindingStaleTracking,
			Path:     model.PathTracking,
			OrderID:  v.Tracking.OrderID,
			Message:  "tracking is not idle but no order is processing",
			Repaired: true,
		})
		r.Repair = resetTracking(v, now, p)
	case len(processing) > 0 && v.Tracking.OrderID != "" && v.Tracking.OrderID != processing[0].ID:
		r.Findings = append(r.Findings, Finding{
			Kind:     FindingOrphanTracking,
			Path:     model.PathTracking,
			OrderID:  v.Tracking.OrderID,
			Message:  fmt.Sprintf("tracking belongs to %s but %s is processing", v.Tracking.OrderID, processing[0].ID),
			Repaired: true,
		})
		r.Repair = resetTracking(v, now, p)
	}

	if len(processing) == 0 && !v.Buffer.IsZero() {
		slots := v.Buffer.Pending()
		r.Findings = append(r.Findings, Finding{
			Kind:    FindingStuckBuffer,
			Path:    model.PathBuffer,
			Message: fmt.Sprintf("slots %v hold quantities with no processing order; waiting for the actuator", slots),
		})
	}

	if o, ok := v.Active(); ok && o.Status == model.OrderQueued {
		if _, err := slots.Quantities(o.Items); err != nil {
			r.Findings = append(r.Findings, Finding{
				Kind:    FindingUnmappedItem,
				Path:    model.OrderPath(o.ID),
				OrderID: o.ID,
				Message: err.Error(),
			})
		}
	}

	return r
}

// resetTracking is guarded by the orders, buffer and tracking subtrees the
// finding was derived from. Stage machines left running are powered off in
// the same batch, folding their uptime in.
func resetTracking(v View, now time.Time, p Policy) *store.Batch {
	b := store.NewBatch().
		Require(model.PathOrders, v.rawOrders).
		Require(model.PathBuffer, v.rawBuffer).
		Require(model.PathTracking, v.rawTracking).
		Put(model.PathTracking, model.IdleTracking())

	nowMs := model.Millis(now)
	seen := make(map[string]bool)
	for _, stage := range model.Stages {
		id := p.Timing(stage).Machine
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		if m, ok := v.Machines[id]; ok && m.IsOn() {
			machine.Power(b, m, true, false, nowMs)
		}
	}
	return b
}

// Reconcile runs a reconciliation pass. With apply set, the planned repair is
// written; applied reports whether it took effect.
func (l *Line) Reconcile(ctx context.Context, apply bool) (Report, bool, error) {
	v, err := l.View(ctx)
	if err != nil {
		return Report{}, false, err
	}
	r := Reconcile(v, l.clock.Now(), l.policy, l.slots)
	for _, f := range r.Findings {
		slog.Warn("inconsistent state", "kind", f.Kind, "path", f.Path, "order", f.OrderID, "message", f.Message)
	}
	if !apply || r.Repair == nil {
		return r, false, nil
	}

	applied, err := l.store.Update(ctx, *r.Repair)
	if err != nil {
		return r, false, fmt.Errorf("reconcile: %w", err)
	}
	if applied {
		slog.Info("reconcile repair applied")
	}
	return r, applied, nil
}
