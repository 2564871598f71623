package model

import (
	"errors"
	"fmt"
	"sort"
)

// ErrUnknownItem is returned when an order references an item that has no
// buffer slot.
var ErrUnknownItem = errors.New("item has no buffer slot")

// BufferSlot is one quantity slot of the live hardware buffer.
type BufferSlot struct {
	ItemID   string `json:"itemId"`
	Quantity int    `json:"quantity"`
}

// Buffer is the live hardware buffer, indexed by slot.
type Buffer []BufferSlot

// IsZero reports whether every slot is drained. An empty buffer is zero.
func (b Buffer) IsZero() bool {
	for _, s := range b {
		if s.Quantity != 0 {
			return false
		}
	}
	return true
}

// Pending returns the indexes of slots holding a non-zero quantity.
func (b Buffer) Pending() []int {
	var out []int
	for i, s := range b {
		if s.Quantity != 0 {
			out = append(out, i)
		}
	}
	return out
}

// SlotMap is the explicit table from catalog item id to buffer slot.
// Slots are dense (0..n-1) and each is owned by exactly one item.
type SlotMap struct {
	slots map[string]int
	items []string
}

// NewSlotMap validates and builds a slot map.
func NewSlotMap(assign map[string]int) (SlotMap, error) {
	items := make([]string, len(assign))
	filled := make([]bool, len(assign))
	for id, slot := range assign {
		if id == "" {
			return SlotMap{}, fmt.Errorf("slot map: empty item id")
		}
		if slot < 0 || slot >= len(assign) {
			return SlotMap{}, fmt.Errorf("slot map: item %q slot %d out of range [0,%d)", id, slot, len(assign))
		}
		if filled[slot] {
			return SlotMap{}, fmt.Errorf("slot map: slot %d assigned to both %q and %q", slot, items[slot], id)
		}
		filled[slot] = true
		items[slot] = id
	}
	slots := make(map[string]int, len(assign))
	for id, slot := range assign {
		slots[id] = slot
	}
	return SlotMap{slots: slots, items: items}, nil
}

// Len returns the number of slots.
func (m SlotMap) Len() int {
	return len(m.items)
}

// Slot returns the slot of itemID.
func (m SlotMap) Slot(itemID string) (int, bool) {
	s, ok := m.slots[itemID]
	return s, ok
}

// ItemAt returns the item id owning slot.
func (m SlotMap) ItemAt(slot int) string {
	if slot < 0 || slot >= len(m.items) {
		return ""
	}
	return m.items[slot]
}

// ItemIDs returns the item ids in slot order.
func (m SlotMap) ItemIDs() []string {
	return append([]string(nil), m.items...)
}

// Quantities folds order lines into per-slot quantities. Repeated items are
// summed. Every item must be mapped.
func (m SlotMap) Quantities(items []OrderItem) ([]int, error) {
	q := make([]int, len(m.items))
	for _, it := range items {
		slot, ok := m.slots[it.ItemID]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownItem, it.ItemID)
		}
		q[slot] += it.Quantity
	}
	return q, nil
}

// EmptyBuffer returns the idle buffer: one zero slot per item.
func (m SlotMap) EmptyBuffer() Buffer {
	b := make(Buffer, len(m.items))
	for i, id := range m.items {
		b[i] = BufferSlot{ItemID: id}
	}
	return b
}

// SortedItemIDs returns the mapped item ids in lexical order.
func (m SlotMap) SortedItemIDs() []string {
	ids := m.ItemIDs()
	sort.Strings(ids)
	return ids
}
