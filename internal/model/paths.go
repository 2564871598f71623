package model

import "strconv"

// Subtree roots of the shared store.
const (
	PathOrders   = "orders"
	PathHistory  = "order_history"
	PathBuffer   = "live_order/items"
	PathTracking = "tracking"
	PathMachines = "status_mesin"
)

// OrderPath returns orders/{id}.
func OrderPath(id string) string { return PathOrders + "/" + id }

// OrderStatusPath returns orders/{id}/status.
func OrderStatusPath(id string) string { return OrderPath(id) + "/status" }

// HistoryPath returns order_history/{id}.
func HistoryPath(id string) string { return PathHistory + "/" + id }

// SlotPath returns live_order/items/{slot}.
func SlotPath(slot int) string { return PathBuffer + "/" + strconv.Itoa(slot) }

// SlotQuantityPath returns live_order/items/{slot}/quantity.
func SlotQuantityPath(slot int) string { return SlotPath(slot) + "/quantity" }

// StagePath returns tracking/{stage}.
func StagePath(s Stage) string { return PathTracking + "/" + string(s) }

// MachinePath returns status_mesin/{id}.
func MachinePath(id string) string { return PathMachines + "/" + id }

// MachineFieldPath returns status_mesin/{id}/{field}.
func MachineFieldPath(id, field string) string { return MachinePath(id) + "/" + field }
