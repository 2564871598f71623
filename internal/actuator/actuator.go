// Package actuator simulates the hardware agent at the far end of the buffer
// handoff. It consumes whatever the line writes into live_order/items and
// hands each slot back by writing 0.
package actuator

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/MiraeNK/mesline/internal/model"
	"github.com/MiraeNK/mesline/internal/store"
)

// DefaultDelay is how long the simulated hardware takes to consume a buffer.
const DefaultDelay = 2 * time.Second

// Store is the part of the shared store the actuator needs.
type Store interface {
	Read(ctx context.Context, path string) (store.Snapshot, error)
	Update(ctx context.Context, b store.Batch) (bool, error)
	Subscribe(path string, fn store.Listener) (func(), error)
}

// Actuator drains the live buffer after a fixed delay.
type Actuator struct {
	store Store
	delay time.Duration
}

// Option configures an Actuator.
type Option func(*Actuator)

// WithDelay sets the consume delay. Zero drains immediately.
func WithDelay(d time.Duration) Option {
	return func(a *Actuator) {
		if d >= 0 {
			a.delay = d
		}
	}
}

// New returns an actuator over s.
func New(s Store, opts ...Option) *Actuator {
	a := &Actuator{store: s, delay: DefaultDelay}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Delay returns the configured consume delay.
func (a *Actuator) Delay() time.Duration {
	return a.delay
}

// Run watches the buffer until ctx is done. Every time it sees non-zero
// slots it waits for the delay and then zeroes them.
func (a *Actuator) Run(ctx context.Context) error {
	// Latest snapshot wins; older ones are superseded.
	changes := make(chan store.Snapshot, 1)
	cancel, err := a.store.Subscribe(model.PathBuffer, func(snap store.Snapshot) {
		select {
		case <-changes:
		default:
		}
		changes <- snap
	})
	if err != nil {
		return fmt.Errorf("actuator: subscribe: %w", err)
	}
	defer cancel()

	slog.Info("actuator started", "delay", a.delay)
	for {
		select {
		case <-ctx.Done():
			slog.Info("actuator stopping")
			return ctx.Err()
		case snap := <-changes:
			observed := pendingSlots(snap)
			if len(observed) == 0 {
				continue
			}
			slog.Info("actuator consuming", "slots", len(observed))
			if !sleep(ctx, a.delay) {
				return ctx.Err()
			}
			if _, err := a.release(ctx, observed); err != nil {
				slog.Error("actuator release failed", "error", err)
			}
		}
	}
}

// DrainOnce zeroes every non-zero slot right now and returns the slots it
// released.
func (a *Actuator) DrainOnce(ctx context.Context) ([]int, error) {
	snap, err := a.store.Read(ctx, model.PathBuffer)
	if err != nil {
		return nil, fmt.Errorf("actuator: read buffer: %w", err)
	}
	observed := pendingSlots(snap)
	if len(observed) == 0 {
		return nil, nil
	}
	applied, err := a.release(ctx, observed)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, nil
	}
	return slotIndexes(observed), nil
}

// release writes 0 to each observed slot, guarded by the quantity seen.
func (a *Actuator) release(ctx context.Context, observed map[int]int) (bool, error) {
	b := store.NewBatch()
	for slot, q := range observed {
		b.Require(model.SlotQuantityPath(slot), q).Put(model.SlotQuantityPath(slot), 0)
	}
	applied, err := a.store.Update(ctx, *b)
	if err != nil {
		return false, fmt.Errorf("actuator: release: %w", err)
	}
	if applied {
		slog.Info("actuator released buffer", "slots", slotIndexes(observed))
	} else {
		slog.Debug("buffer changed while consuming, waiting for next snapshot")
	}
	return applied, nil
}

// pendingSlots maps each non-zero slot to its observed quantity. Slots that
// cannot be decoded are left alone.
func pendingSlots(snap store.Snapshot) map[int]int {
	out := make(map[int]int)
	for _, key := range snap.Keys() {
		idx, err := strconv.Atoi(key)
		if err != nil || idx < 0 {
			continue
		}
		var slot model.BufferSlot
		if err := snap.Child(key).Decode(&slot); err != nil {
			continue
		}
		if slot.Quantity != 0 {
			out[idx] = slot.Quantity
		}
	}
	return out
}

func slotIndexes(m map[int]int) []int {
	out := make([]int, 0, len(m))
	for i := range m {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
