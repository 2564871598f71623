package model

import (
	"sort"
	"time"
)

// OrderItem is one line of an order. Name is copied from the catalog at
// placement so history stays readable after catalog changes.
type OrderItem struct {
	ItemID   string `json:"itemId" validate:"required"`
	Name     string `json:"name"`
	Quantity int    `json:"quantity" validate:"gte=1"`
	Price    int64  `json:"price" validate:"gte=0"`
}

// Subtotal returns Price × Quantity.
func (i OrderItem) Subtotal() int64 {
	return i.Price * int64(i.Quantity)
}

// Order is a customer's requested items awaiting fulfillment.
//
// ID is the store key. It is omitted when the order is first appended and
// filled in from the key whenever an order is read back.
type Order struct {
	ID          string      `json:"id,omitempty"`
	Items       []OrderItem `json:"items"`
	TotalAmount int64       `json:"totalAmount"`
	Status      OrderStatus `json:"status"`
	CreatedAt   int64       `json:"createdAt"`
	CompletedAt int64       `json:"completedAt,omitempty"`
}

// ComputeTotal returns the sum of all line subtotals.
func (o Order) ComputeTotal() int64 {
	var total int64
	for _, it := range o.Items {
		total += it.Subtotal()
	}
	return total
}

// ItemCount returns the total number of units across all lines.
func (o Order) ItemCount() int {
	n := 0
	for _, it := range o.Items {
		n += it.Quantity
	}
	return n
}

// Before is the deterministic queue order: creation time, then id.
func (o Order) Before(other Order) bool {
	if o.CreatedAt != other.CreatedAt {
		return o.CreatedAt < other.CreatedAt
	}
	return o.ID < other.ID
}

// SortOrders sorts orders in queue order, in place.
func SortOrders(orders []Order) {
	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].Before(orders[j])
	})
}

// HistoryRecord is the archived, immutable copy of a completed order.
type HistoryRecord struct {
	Order
}

// NewHistoryRecord copies o with status completed and the given completion time.
func NewHistoryRecord(o Order, completedAt int64) HistoryRecord {
	rec := HistoryRecord{Order: o}
	rec.Items = append([]OrderItem(nil), o.Items...)
	rec.Status = OrderCompleted
	rec.CompletedAt = completedAt
	return rec
}

// SortHistory orders records newest completion first, ties by id.
func SortHistory(records []HistoryRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].CompletedAt != records[j].CompletedAt {
			return records[i].CompletedAt > records[j].CompletedAt
		}
		return records[i].ID < records[j].ID
	})
}

// Millis converts t to epoch milliseconds.
func Millis(t time.Time) int64 {
	return t.UnixMilli()
}

// FromMillis converts epoch milliseconds to a time.Time.
func FromMillis(ms int64) time.Time {
	return time.UnixMilli(ms)
}
