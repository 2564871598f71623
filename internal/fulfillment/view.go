package fulfillment

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/MiraeNK/mesline/internal/model"
	"github.com/MiraeNK/mesline/internal/store"
)

// Store is the part of the shared store the line uses.
type Store interface {
	Read(ctx context.Context, path string) (store.Snapshot, error)
	ReadAll(ctx context.Context, paths ...string) ([]store.Snapshot, error)
	Update(ctx context.Context, b store.Batch) (bool, error)
	Append(ctx context.Context, parent string, v any) (string, error)
}

// View is a decoded, consistent snapshot of everything the pipeline reads.
type View struct {
	Rev      int64
	Orders   []model.Order
	Buffer   model.Buffer
	Tracking model.Tracking
	Machines map[string]model.Machine

	// Malformed lists paths whose records could not be decoded. They are
	// left out of the view and surfaced by Reconcile.
	Malformed []string

	// Archived reports whether the processing order already has a history
	// record.
	Archived bool

	// Raw subtree values, used verbatim as batch preconditions.
	rawOrders   any
	rawBuffer   any
	rawTracking any
}

// LoadView reads the orders, buffer, tracking and machine subtrees from one
// store snapshot and decodes them.
func LoadView(ctx context.Context, s Store, slots model.SlotMap) (View, error) {
	snaps, err := s.ReadAll(ctx, model.PathOrders, model.PathBuffer, model.PathTracking, model.PathMachines)
	if err != nil {
		return View{}, fmt.Errorf("load view: %w", err)
	}
	v, err := DecodeView(snaps[0], snaps[1], snaps[2], snaps[3], slots)
	if err != nil {
		return View{}, err
	}

	if o, ok := v.Active(); ok && o.Status == model.OrderProcessing {
		h, err := s.Read(ctx, model.HistoryPath(o.ID))
		if err != nil {
			return View{}, fmt.Errorf("load view: %w", err)
		}
		v.Archived = h.Exists()
	}
	return v, nil
}

// DecodeView builds a View from the four subtree snapshots.
func DecodeView(orders, buffer, tracking, machines store.Snapshot, slots model.SlotMap) (View, error) {
	v := View{
		Rev:         orders.Rev,
		Machines:    make(map[string]model.Machine),
		rawOrders:   orders.Value,
		rawBuffer:   buffer.Value,
		rawTracking: tracking.Value,
	}

	for _, id := range orders.Keys() {
		var o model.Order
		if err := orders.Child(id).Decode(&o); err != nil {
			slog.Warn("skipping malformed order", "order", id, "error", err)
			v.Malformed = append(v.Malformed, model.OrderPath(id))
			continue
		}
		o.ID = id
		v.Orders = append(v.Orders, o)
	}
	model.SortOrders(v.Orders)

	v.Buffer = slots.EmptyBuffer()
	for _, key := range buffer.Keys() {
		idx, err := strconv.Atoi(key)
		if err != nil || idx < 0 {
			v.Malformed = append(v.Malformed, model.PathBuffer+"/"+key)
			continue
		}
		var slot model.BufferSlot
		if err := buffer.Child(key).Decode(&slot); err != nil {
			v.Malformed = append(v.Malformed, model.SlotPath(idx))
			continue
		}
		for len(v.Buffer) <= idx {
			v.Buffer = append(v.Buffer, model.BufferSlot{})
		}
		if slot.ItemID == "" {
			slot.ItemID = v.Buffer[idx].ItemID
		}
		v.Buffer[idx] = slot
	}

	v.Tracking = model.IdleTracking()
	if tracking.Exists() {
		var tr model.Tracking
		if err := tracking.Decode(&tr); err != nil {
			return View{}, newError(ErrCodeInconsistentState, "", err, "tracking record cannot be decoded")
		}
		v.Tracking = tr
	}

	for _, id := range machines.Keys() {
		var m model.Machine
		if err := machines.Child(id).Decode(&m); err != nil {
			v.Malformed = append(v.Malformed, model.MachinePath(id))
			continue
		}
		m.ID = id
		v.Machines[id] = m
	}

	return v, nil
}

// Active returns the order the line is working on or will work on next.
func (v View) Active() (model.Order, bool) {
	return ActiveOrder(v.Orders)
}

// Processing returns every processing order in queue order. More than one
// is an inconsistency.
func (v View) Processing() []model.Order {
	var out []model.Order
	for _, o := range v.Orders {
		if o.Status == model.OrderProcessing {
			out = append(out, o)
		}
	}
	return out
}

// Queued returns the queued orders in queue order.
func (v View) Queued() []model.Order {
	var out []model.Order
	for _, o := range v.Orders {
		if o.Status == model.OrderQueued {
			out = append(out, o)
		}
	}
	return out
}

// Order returns the order with the given id.
func (v View) Order(id string) (model.Order, bool) {
	for _, o := range v.Orders {
		if o.ID == id {
			return o, true
		}
	}
	return model.Order{}, false
}

// machine returns the machine record, or a bare record with exists=false.
func (v View) machine(id string) (model.Machine, bool) {
	m, ok := v.Machines[id]
	if !ok {
		return model.Machine{ID: id, Name: id}, false
	}
	return m, true
}
