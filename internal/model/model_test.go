package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrder_ComputeTotal(t *testing.T) {
	o := Order{Items: []OrderItem{
		{ItemID: "1", Quantity: 2, Price: 10},
		{ItemID: "2", Quantity: 1, Price: 5},
	}}

	assert.Equal(t, int64(25), o.ComputeTotal())
	assert.Equal(t, 3, o.ItemCount())
}

func TestOrderStatus_Transitions(t *testing.T) {
	assert.True(t, OrderQueued.CanTransitionTo(OrderProcessing))
	assert.True(t, OrderProcessing.CanTransitionTo(OrderCompleted))
	assert.False(t, OrderQueued.CanTransitionTo(OrderCompleted))
	assert.False(t, OrderProcessing.CanTransitionTo(OrderQueued))
	assert.False(t, OrderCompleted.CanTransitionTo(OrderQueued))
}

func TestOrderStatus_UnmarshalRejectsUnknown(t *testing.T) {
	var o Order
	err := json.Unmarshal([]byte(`{"status":"shipped"}`), &o)
	assert.Error(t, err)

	require.NoError(t, json.Unmarshal([]byte(`{"status":"processing"}`), &o))
	assert.Equal(t, OrderProcessing, o.Status)
}

func TestSortOrders_CreatedAtThenID(t *testing.T) {
	orders := []Order{
		{ID: "c", CreatedAt: 20},
		{ID: "b", CreatedAt: 10},
		{ID: "a", CreatedAt: 10},
	}
	SortOrders(orders)

	assert.Equal(t, []string{"a", "b", "c"}, []string{orders[0].ID, orders[1].ID, orders[2].ID})
}

func TestSortHistory_NewestFirst(t *testing.T) {
	recs := []HistoryRecord{
		NewHistoryRecord(Order{ID: "old"}, 100),
		NewHistoryRecord(Order{ID: "new"}, 300),
		NewHistoryRecord(Order{ID: "mid"}, 200),
	}
	SortHistory(recs)

	assert.Equal(t, "new", recs[0].ID)
	assert.Equal(t, "mid", recs[1].ID)
	assert.Equal(t, "old", recs[2].ID)
	assert.Equal(t, OrderCompleted, recs[0].Status)
}

func TestNewHistoryRecord_CopiesItems(t *testing.T) {
	o := Order{ID: "o1", Items: []OrderItem{{ItemID: "1", Quantity: 1}}, Status: OrderProcessing}
	rec := NewHistoryRecord(o, 500)
	o.Items[0].Quantity = 9

	assert.Equal(t, 1, rec.Items[0].Quantity)
	assert.Equal(t, int64(500), rec.CompletedAt)
}

func TestStageStatus_Order(t *testing.T) {
	assert.True(t, StageTodo.CanAdvanceTo(StageInProgress))
	assert.True(t, StageInProgress.CanAdvanceTo(StageDone))
	assert.False(t, StageTodo.CanAdvanceTo(StageDone))
	assert.True(t, StageDone.Regresses(StageInProgress))
	assert.False(t, StageTodo.Regresses(StageDone))
}

func TestStage_Navigation(t *testing.T) {
	next, ok := StagePicking.Next()
	require.True(t, ok)
	assert.Equal(t, StagePackaging, next)

	_, ok = StageSending.Next()
	assert.False(t, ok)

	prev, ok := StageSending.Previous()
	require.True(t, ok)
	assert.Equal(t, StagePackaging, prev)

	_, ok = StagePicking.Previous()
	assert.False(t, ok)
}

func TestParseStage(t *testing.T) {
	for in, want := range map[string]Stage{
		"itemPicking": StagePicking,
		"picking":     StagePicking,
		"pack":        StagePackaging,
		"sending":     StageSending,
		"ship":        StageSending,
	} {
		got, err := ParseStage(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseStage("painting")
	assert.Error(t, err)
}

func TestTracking_Validate(t *testing.T) {
	assert.NoError(t, IdleTracking().Validate())
	assert.NoError(t, IdleTracking().With(StagePicking, StageInProgress).Validate())
	assert.NoError(t, IdleTracking().
		With(StagePicking, StageDone).
		With(StagePackaging, StageInProgress).Validate())

	bad := IdleTracking().With(StagePackaging, StageInProgress)
	assert.Error(t, bad.Validate())
}

func TestTracking_Current(t *testing.T) {
	st, status := IdleTracking().Current()
	assert.Equal(t, StagePicking, st)
	assert.Equal(t, StageTodo, status)

	tr := IdleTracking().With(StagePicking, StageDone).With(StagePackaging, StageInProgress)
	st, status = tr.Current()
	assert.Equal(t, StagePackaging, st)
	assert.Equal(t, StageInProgress, status)

	done := IdleTracking().With(StagePicking, StageDone).With(StagePackaging, StageDone).With(StageSending, StageDone)
	st, status = done.Current()
	assert.Equal(t, StageSending, st)
	assert.Equal(t, StageDone, status)
	assert.False(t, done.IsIdle())
}

func TestTracking_MissingReadsAsTodo(t *testing.T) {
	var tr Tracking
	assert.Equal(t, StageTodo, tr.Status(StagePackaging))
	assert.True(t, tr.IsIdle())
}

func TestTracking_Regresses(t *testing.T) {
	from := IdleTracking().With(StagePicking, StageDone)
	assert.True(t, from.Regresses(IdleTracking()))
	assert.False(t, from.Regresses(from.With(StagePackaging, StageInProgress)))
}

func TestSlotMap_Validation(t *testing.T) {
	_, err := NewSlotMap(map[string]int{"1": 0, "2": 0})
	assert.Error(t, err, "duplicate slot")

	_, err = NewSlotMap(map[string]int{"1": 0, "2": 2})
	assert.Error(t, err, "gap in slots")

	m, err := NewSlotMap(map[string]int{"a": 1, "b": 0})
	require.NoError(t, err)
	assert.Equal(t, 2, m.Len())
	assert.Equal(t, "b", m.ItemAt(0))
	assert.Equal(t, []string{"b", "a"}, m.ItemIDs())
}

func TestSlotMap_Quantities(t *testing.T) {
	m, err := DefaultCatalog().SlotMap()
	require.NoError(t, err)

	q, err := m.Quantities([]OrderItem{
		{ItemID: "1", Quantity: 2},
		{ItemID: "3", Quantity: 1},
		{ItemID: "1", Quantity: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, []int{3, 0, 1, 0}, q)

	_, err = m.Quantities([]OrderItem{{ItemID: "99", Quantity: 1}})
	assert.ErrorIs(t, err, ErrUnknownItem)
}

func TestBuffer_IsZero(t *testing.T) {
	m, err := DefaultCatalog().SlotMap()
	require.NoError(t, err)

	b := m.EmptyBuffer()
	assert.True(t, b.IsZero())
	assert.Equal(t, "4", b[3].ItemID)
	assert.True(t, Buffer(nil).IsZero())

	b[2].Quantity = 1
	assert.False(t, b.IsZero())
	assert.Equal(t, []int{2}, b.Pending())
}

func TestCatalog_Lookup(t *testing.T) {
	c := DefaultCatalog()
	it, ok := c.Lookup("2")
	require.True(t, ok)
	assert.Equal(t, "Smart Watch Pro", it.Name)
	assert.Equal(t, int64(29999), it.Price)

	_, ok = c.Lookup("nope")
	assert.False(t, ok)
}

func TestCatalog_DuplicateID(t *testing.T) {
	c := Catalog{{ID: "1", Slot: 0}, {ID: "1", Slot: 1}}
	_, err := c.SlotMap()
	assert.Error(t, err)
}

func TestPaths(t *testing.T) {
	assert.Equal(t, "orders/x/status", OrderStatusPath("x"))
	assert.Equal(t, "live_order/items/2/quantity", SlotQuantityPath(2))
	assert.Equal(t, "tracking/packaging", StagePath(StagePackaging))
	assert.Equal(t, "status_mesin/conveyor/lastStartTime", MachineFieldPath(MachineConveyor, "lastStartTime"))
}

func TestPower_Unmarshal(t *testing.T) {
	var m Machine
	require.NoError(t, json.Unmarshal([]byte(`{"status":"ON"}`), &m))
	assert.True(t, m.IsOn())

	assert.Error(t, json.Unmarshal([]byte(`{"status":"on"}`), &m))
}
