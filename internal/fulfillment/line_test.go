package fulfillment

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MiraeNK/mesline/internal/machine"
	"github.com/MiraeNK/mesline/internal/model"
	"github.com/MiraeNK/mesline/internal/store"
)

func TestLine_ScenarioA_FullPipeline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.line.Enqueue(ctx, scenarioA())
	require.NoError(t, err)
	assert.Equal(t, "order-0001", id)

	v := f.view(t)
	require.Len(t, v.Orders, 1)
	assert.Equal(t, int64(25), v.Orders[0].TotalAmount)
	assert.Equal(t, model.OrderQueued, v.Orders[0].Status)

	assert.Equal(t, []Action{ActionHandshake}, actions(f.settle(t)))
	v = f.view(t)
	assert.Equal(t, model.OrderProcessing, v.Orders[0].Status)
	assert.Equal(t, 2, v.Buffer[0].Quantity)
	assert.Equal(t, 1, v.Buffer[1].Quantity)
	assert.Equal(t, 0, v.Buffer[2].Quantity)
	assert.Equal(t, HandshakeAwaiting, HandshakeStateOf(v, v.Orders[0]))

	// Nothing moves until the actuator drains the buffer.
	f.clock.Advance(time.Minute)
	assert.Empty(t, f.settle(t))

	f.drain(t)
	assert.Equal(t, []Action{ActionStartStage}, actions(f.settle(t)))
	v = f.view(t)
	assert.Equal(t, model.StageInProgress, v.Tracking.ItemPicking)
	assert.True(t, v.Machines[model.MachineRobotArm].IsOn())
	startedAt := f.clock.Now()

	f.clock.Set(startedAt.Add(5*time.Second - time.Millisecond))
	assert.Empty(t, f.settle(t), "picking is not due yet")

	f.clock.Set(startedAt.Add(5 * time.Second))
	assert.Equal(t, []Action{ActionFinishStage, ActionStartStage}, actions(f.settle(t)))
	v = f.view(t)
	assert.Equal(t, model.StageDone, v.Tracking.ItemPicking)
	assert.Equal(t, model.StageInProgress, v.Tracking.Packaging)
	assert.False(t, v.Machines[model.MachineRobotArm].IsOn())
	assert.True(t, v.Machines[model.MachineConveyor].IsOn())

	f.clock.Advance(5 * time.Second)
	assert.Equal(t, []Action{ActionFinishStage, ActionStartStage}, actions(f.settle(t)))
	v = f.view(t)
	assert.Equal(t, model.StageInProgress, v.Tracking.Sending)
	assert.False(t, v.Machines[model.MachineConveyor].IsOn())

	f.clock.Advance(5 * time.Second)
	assert.Equal(t, []Action{ActionFinishStage, ActionArchive}, actions(f.settle(t)))

	v = f.view(t)
	assert.Empty(t, v.Orders)
	assert.True(t, v.Tracking.IsIdle())
	assert.Empty(t, v.Tracking.OrderID)

	hist, err := f.line.History(ctx, 0)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, id, hist[0].ID)
	assert.Equal(t, model.OrderCompleted, hist[0].Status)
	assert.Equal(t, model.Millis(f.clock.Now()), hist[0].CompletedAt)
	assert.Equal(t, int64(25), hist[0].TotalAmount)

	assert.Equal(t, int64(5000), v.Machines[model.MachineRobotArm].TotalAccumulatedTime)
	assert.Equal(t, int64(5000), v.Machines[model.MachineConveyor].TotalAccumulatedTime)
}

func TestLine_PerItemDuration(t *testing.T) {
	p := DefaultPolicy()
	p.Picking = StageTiming{Base: time.Second, PerItem: 2 * time.Second, Mode: ModeTimed}
	f := newFixture(t, WithPolicy(p))

	_, err := f.line.Enqueue(context.Background(), scenarioA())
	require.NoError(t, err)
	f.settle(t)
	f.drain(t)
	f.settle(t)

	deadline, ok, err := f.line.NextDeadline(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, f.clock.Now().Add(7*time.Second).Equal(deadline), "1s base + 3 items × 2s, got %s", deadline)
}

func TestLine_FIFOAcrossOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.line.Enqueue(ctx, scenarioA())
	require.NoError(t, err)
	f.clock.Advance(time.Millisecond)
	second, err := f.line.Enqueue(ctx, []model.CartLine{{ProductID: "4", Quantity: 1, Price: 7999}})
	require.NoError(t, err)

	results := f.settle(t)
	require.Len(t, results, 1)
	assert.Equal(t, first, results[0].OrderID)

	v := f.view(t)
	assert.Len(t, v.Processing(), 1)
	o, _ := v.Order(second)
	assert.Equal(t, model.OrderQueued, o.Status)

	// Run the first order to completion; only then does the second start.
	f.drain(t)
	for i := 0; i < 3; i++ {
		f.settle(t)
		assert.Len(t, f.view(t).Processing(), 1)
		f.clock.Advance(5 * time.Second)
	}
	results = f.settle(t)
	require.NotEmpty(t, results)
	assert.Equal(t, ActionHandshake, results[len(results)-1].Action)
	assert.Equal(t, second, results[len(results)-1].OrderID)

	v = f.view(t)
	require.Len(t, v.Processing(), 1)
	assert.Equal(t, second, v.Processing()[0].ID)
	assert.Equal(t, 1, v.Buffer[3].Quantity)
}

func TestLine_StageMonotonicity(t *testing.T) {
	f := newFixture(t)
	_, err := f.line.Enqueue(context.Background(), scenarioA())
	require.NoError(t, err)

	prev := f.view(t).Tracking
	check := func() {
		cur := f.view(t).Tracking
		require.NoError(t, cur.Validate())
		if !(cur.IsIdle() && cur.OrderID == "") {
			assert.False(t, prev.Regresses(cur), "tracking regressed from %+v to %+v", prev, cur)
		}
		prev = cur
	}

	for i := 0; i < 30; i++ {
		res := f.step(t)
		check()
		if !res.Progressed() {
			f.drain(t)
			f.clock.Advance(time.Second)
		}
		if res.Action == ActionArchive {
			break
		}
	}

	hist, err := f.line.History(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, hist, 1)
}

func TestDecide_Priority(t *testing.T) {
	slots, err := model.DefaultCatalog().SlotMap()
	require.NoError(t, err)
	p := DefaultPolicy()

	done := model.IdleTracking().
		With(model.StagePicking, model.StageDone).
		With(model.StagePackaging, model.StageDone).
		With(model.StageSending, model.StageDone)
	done.OrderID = "a"

	v := View{
		Orders: []model.Order{
			{ID: "a", Status: model.OrderProcessing, CreatedAt: 1, Items: []model.OrderItem{{ItemID: "1", Quantity: 1}}},
			{ID: "b", Status: model.OrderQueued, CreatedAt: 2, Items: []model.OrderItem{{ItemID: "2", Quantity: 1}}},
		},
		Buffer:   slots.EmptyBuffer(),
		Tracking: done,
	}

	plan := Decide(v, t0, p, slots)
	assert.Equal(t, ActionArchive, plan.Action)
	assert.Equal(t, "a", plan.OrderID)
}

func TestDecide_NoOrders(t *testing.T) {
	slots, err := model.DefaultCatalog().SlotMap()
	require.NoError(t, err)

	plan := Decide(View{Buffer: slots.EmptyBuffer(), Tracking: model.IdleTracking()}, t0, DefaultPolicy(), slots)
	assert.Equal(t, ActionNone, plan.Action)
	assert.Nil(t, plan.Batch)
}

func TestNew_InvalidCatalog(t *testing.T) {
	f := newFixture(t)

	_, err := New(f.store, WithCatalog(model.Catalog{{ID: "1", Slot: 1}}))
	assert.Error(t, err)
}

func TestNew_InvalidPolicy(t *testing.T) {
	f := newFixture(t)
	p := DefaultPolicy()
	p.Sending.Mode = ModeSignal

	_, err := New(f.store, WithPolicy(p))
	assert.Error(t, err)
}

type countingRecorder struct {
	applied, skipped, placed, archived int
	lead                               time.Duration
}

func (r *countingRecorder) StepApplied(string)             { r.applied++ }
func (r *countingRecorder) StepSkipped(string)             { r.skipped++ }
func (r *countingRecorder) OrderPlaced()                   { r.placed++ }
func (r *countingRecorder) OrderArchived(d time.Duration) { r.archived++; r.lead = d }

func TestLine_RecorderSeesLifecycle(t *testing.T) {
	rec := &countingRecorder{}
	p := DefaultPolicy()
	p.Picking.Base, p.Packaging.Base, p.Sending.Base = 0, 0, 0
	f := newFixture(t, WithRecorder(rec), WithPolicy(p))

	_, err := f.line.Enqueue(context.Background(), scenarioA())
	require.NoError(t, err)
	f.settle(t)
	f.clock.Advance(3 * time.Second)
	f.drain(t)
	f.settle(t)

	assert.Equal(t, 1, rec.placed)
	assert.Equal(t, 1, rec.archived)
	assert.Equal(t, 8, rec.applied, "handshake, 3 starts, 3 finishes, archive")
	assert.Equal(t, 3*time.Second, rec.lead)
}

func TestLine_MissingMachineProvisionedOnStart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Remove(ctx, model.MachinePath(model.MachineRobotArm)))

	_, err := f.line.Enqueue(ctx, scenarioA())
	require.NoError(t, err)
	f.settle(t)
	f.drain(t)
	f.settle(t)

	m, ok, err := machine.NewAccumulator(f.store, f.clock.Now).Get(ctx, model.MachineRobotArm)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, m.IsOn())
}

func TestView_BufferWithHoles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Set(ctx, model.SlotPath(2), model.BufferSlot{ItemID: "3", Quantity: 4}))

	v := f.view(t)
	require.Len(t, v.Buffer, 4)
	assert.Equal(t, "1", v.Buffer[0].ItemID)
	assert.Equal(t, 4, v.Buffer[2].Quantity)
	assert.Equal(t, []int{2}, v.Buffer.Pending())
}

func TestView_MalformedOrderSkipped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Set(ctx, model.OrderPath("bad"), map[string]any{"status": "lost"}))

	v := f.view(t)
	assert.Empty(t, v.Orders)
	assert.Equal(t, []string{"orders/bad"}, v.Malformed)
}

func TestView_BadTrackingIsInconsistent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Set(ctx, model.StagePath(model.StagePicking), "Paused"))

	_, err := f.line.View(ctx)
	assert.True(t, IsInconsistentState(err))
}

func TestStageDeadline_SignalOnlyHasNone(t *testing.T) {
	p := DefaultPolicy()
	p.Picking.Mode = ModeSignal
	f := newFixture(t, WithPolicy(p))

	_, err := f.line.Enqueue(context.Background(), scenarioA())
	require.NoError(t, err)
	f.settle(t)
	f.drain(t)
	f.settle(t)

	_, ok, err := f.line.NextDeadline(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	f.clock.Advance(time.Hour)
	assert.Empty(t, f.settle(t), "signal-only stage never completes by time")
}

var _ Store = (*store.Store)(nil)
