package fulfillment

import (
	"github.com/MiraeNK/mesline/internal/model"
	"github.com/MiraeNK/mesline/internal/store"
)

// HandshakeState is where an order stands in the buffer handoff.
type HandshakeState int

const (
	// HandshakeIdle: the order is queued and nothing has been written.
	HandshakeIdle HandshakeState = iota
	// HandshakeAwaiting: quantities are in the buffer, the actuator has
	// not drained them yet.
	HandshakeAwaiting
	// HandshakeAccepted: the actuator drained the buffer.
	HandshakeAccepted
)

func (h HandshakeState) String() string {
	switch h {
	case HandshakeAwaiting:
		return "awaiting-handshake"
	case HandshakeAccepted:
		return "accepted"
	}
	return "idle"
}

// HandshakeStateOf derives the handshake state of o from the view.
func HandshakeStateOf(v View, o model.Order) HandshakeState {
	if o.Status != model.OrderProcessing {
		return HandshakeIdle
	}
	if !v.Buffer.IsZero() {
		return HandshakeAwaiting
	}
	return HandshakeAccepted
}

// planHandshake hands the active order to the actuator when it is queued,
// the buffer is drained and tracking is idle and unbound. The batch is
// guarded by all three, so it runs once per order no matter how many
// processes see the same snapshot.
func planHandshake(v View, slots model.SlotMap) (Plan, bool) {
	o, ok := v.Active()
	if !ok || o.Status != model.OrderQueued {
		return Plan{}, false
	}
	if !v.Buffer.IsZero() || !v.Tracking.IsIdle() || v.Tracking.OrderID != "" {
		return Plan{}, false
	}
	qty, err := slots.Quantities(o.Items)
	if err != nil {
		// Reconcile reports it; the order stays at the head of the queue.
		return Plan{}, false
	}

	b := store.NewBatch().
		Require(model.OrderStatusPath(o.ID), string(model.OrderQueued)).
		Require(model.PathBuffer, v.rawBuffer).
		Require(model.PathTracking, v.rawTracking).
		Put(model.OrderStatusPath(o.ID), string(model.OrderProcessing)).
		Put(model.PathTracking+"/orderId", o.ID)

	for slot, q := range qty {
		if q == 0 {
			continue
		}
		b.Put(model.SlotPath(slot), model.BufferSlot{ItemID: slots.ItemAt(slot), Quantity: q})
	}

	return Plan{Action: ActionHandshake, OrderID: o.ID, Batch: b}, true
}
