package fulfillment

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/MiraeNK/mesline/internal/machine"
	"github.com/MiraeNK/mesline/internal/model"
	"github.com/MiraeNK/mesline/internal/store"
	"github.com/MiraeNK/mesline/internal/testutil"
)

var t0 = time.UnixMilli(1_700_000_000_000)

type fixture struct {
	store *store.Store
	line  *Line
	clock *testutil.ManualClock
	path  string
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	path := filepath.Join(t.TempDir(), "line.db")
	s, err := store.Open(path, store.WithKeyGenerator(testutil.NewSequentialKeys("order")))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	clock := testutil.NewManualClock(t0)
	opts = append([]Option{WithClock(clock)}, opts...)
	line, err := New(s, opts...)
	require.NoError(t, err)

	_, err = machine.NewAccumulator(s, clock.Now).Provision(context.Background(), []model.Machine{
		{ID: model.MachineRobotArm, Name: "Robot Arm"},
		{ID: model.MachineConveyor, Name: "Conveyor"},
	})
	require.NoError(t, err)

	return &fixture{store: s, line: line, clock: clock, path: path}
}

// scenarioA is the two-line cart from the acceptance scenario.
func scenarioA() []model.CartLine {
	return []model.CartLine{
		{ProductID: "1", Quantity: 2, Price: 10},
		{ProductID: "2", Quantity: 1, Price: 5},
	}
}

func (f *fixture) step(t *testing.T) Result {
	t.Helper()
	res, err := f.line.Step(context.Background())
	require.NoError(t, err)
	return res
}

// settle steps until nothing more can happen at the current time.
func (f *fixture) settle(t *testing.T) []Result {
	t.Helper()
	var out []Result
	for i := 0; i < 20; i++ {
		res := f.step(t)
		if !res.Progressed() {
			return out
		}
		out = append(out, res)
	}
	t.Fatal("line did not settle")
	return nil
}

// drain plays the actuator: every non-zero slot goes back to 0.
func (f *fixture) drain(t *testing.T) {
	t.Helper()
	v := f.view(t)
	b := store.NewBatch()
	for _, slot := range v.Buffer.Pending() {
		b.Put(model.SlotQuantityPath(slot), 0)
	}
	if b.Empty() {
		return
	}
	_, err := f.store.Update(context.Background(), *b)
	require.NoError(t, err)
}

func (f *fixture) view(t *testing.T) View {
	t.Helper()
	v, err := f.line.View(context.Background())
	require.NoError(t, err)
	return v
}

func actions(results []Result) []Action {
	out := make([]Action, len(results))
	for i, r := range results {
		out[i] = r.Action
	}
	return out
}
