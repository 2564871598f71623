// Package model defines the persisted entities of the fulfillment line.
//
// Every entity is addressed by store path and key, never by in-memory
// reference: any number of processes may hold a stale copy at any time, so
// the only authoritative version is the one in the shared store.
//
// # Closed Variants
//
// Order, stage and machine statuses are typed string constants. Decoding an
// unknown wire value fails instead of producing a status nothing handles.
//
// # Store Layout
//
//	orders/{orderId}          Order
//	order_history/{orderId}   HistoryRecord
//	live_order/items/{slot}   BufferSlot
//	tracking                  Tracking
//	status_mesin/{machineId}  Machine
//
// Timestamps are epoch milliseconds. Money is integer minor currency units.
package model
