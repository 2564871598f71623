package actuator

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MiraeNK/mesline/internal/model"
	"github.com/MiraeNK/mesline/internal/store"
)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "line.db"), store.WithPollInterval(20*time.Millisecond))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func loadBuffer(t *testing.T, s *store.Store, slots ...model.BufferSlot) {
	t.Helper()
	require.NoError(t, s.Set(context.Background(), model.PathBuffer, model.Buffer(slots)))
}

func readBuffer(t *testing.T, s *store.Store) model.Buffer {
	t.Helper()
	snap, err := s.Read(context.Background(), model.PathBuffer)
	require.NoError(t, err)
	var b model.Buffer
	require.NoError(t, snap.Decode(&b))
	return b
}

func TestDrainOnce(t *testing.T) {
	s := openStore(t)
	loadBuffer(t, s,
		model.BufferSlot{ItemID: "1", Quantity: 2},
		model.BufferSlot{ItemID: "2", Quantity: 0},
		model.BufferSlot{ItemID: "3", Quantity: 1},
	)

	released, err := New(s).DrainOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2}, released)

	b := readBuffer(t, s)
	assert.True(t, b.IsZero())
	assert.Equal(t, "3", b[2].ItemID, "item ids are kept")
}

func TestDrainOnce_Idle(t *testing.T) {
	s := openStore(t)

	released, err := New(s).DrainOnce(context.Background())
	require.NoError(t, err)
	assert.Empty(t, released)

	loadBuffer(t, s, model.BufferSlot{ItemID: "1"})
	released, err = New(s).DrainOnce(context.Background())
	require.NoError(t, err)
	assert.Empty(t, released)
}

func TestRelease_GuardedByObservedQuantity(t *testing.T) {
	s := openStore(t)
	loadBuffer(t, s, model.BufferSlot{ItemID: "1", Quantity: 2})

	applied, err := New(s).release(context.Background(), map[int]int{0: 5})
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, 2, readBuffer(t, s)[0].Quantity)
}

func TestRun_DrainsAfterDelay(t *testing.T) {
	s := openStore(t)
	a := New(s, WithDelay(300*time.Millisecond))
	assert.Equal(t, 300*time.Millisecond, a.Delay())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	loadBuffer(t, s,
		model.BufferSlot{ItemID: "1", Quantity: 2},
		model.BufferSlot{ItemID: "2", Quantity: 1},
	)
	assert.Equal(t, 2, readBuffer(t, s)[0].Quantity, "not consumed before the delay")

	require.Eventually(t, func() bool {
		return readBuffer(t, s).IsZero()
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(5 * time.Second):
		t.Fatal("actuator did not stop")
	}
}

func TestRun_ClosedStore(t *testing.T) {
	s := openStore(t)
	require.NoError(t, s.Close())

	err := New(s).Run(context.Background())
	assert.ErrorIs(t, err, store.ErrClosed)
}

func TestWithDelay_IgnoresNegative(t *testing.T) {
	a := New(nil, WithDelay(-time.Second))
	assert.Equal(t, DefaultDelay, a.Delay())
}
