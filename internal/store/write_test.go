package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdate_MultiPathAtomic(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	applied, err := s.Update(ctx, Batch{Set: map[string]any{
		"status_mesin/robot_arm/status":        "ON",
		"status_mesin/robot_arm/lastStartTime": 1000,
		"tracking/itemPicking":                 "InProgress",
	}})
	require.NoError(t, err)
	assert.True(t, applied)

	assert.Equal(t, `{"lastStartTime":1000,"status":"ON"}`, canonicalAt(t, s, "status_mesin/robot_arm"))
	assert.Equal(t, `"InProgress"`, canonicalAt(t, s, "tracking/itemPicking"))

	rev, err := s.Revision(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rev)
}

func TestUpdate_PreconditionFailsWritesNothing(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "orders/o1/status", "queued"))

	applied, err := s.Update(ctx, Batch{
		Expect: map[string]any{"orders/o1/status": "processing"},
		Set: map[string]any{
			"orders/o1/status": "completed",
			"other":            1,
		},
	})
	require.NoError(t, err)
	assert.False(t, applied)

	assert.Equal(t, `"queued"`, canonicalAt(t, s, "orders/o1/status"))
	assert.Equal(t, "null", canonicalAt(t, s, "other"))

	rev, err := s.Revision(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rev)
}

func TestUpdate_ExpectAbsent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	b := NewBatch().Require("order_history/o1", nil).Put("order_history/o1", map[string]any{"id": "o1"})

	applied, err := s.Update(ctx, *b)
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = s.Update(ctx, *b)
	require.NoError(t, err)
	assert.False(t, applied, "second write must see the record present")
}

func TestUpdate_ExpectSubtree(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	buffer := []map[string]any{
		{"itemId": "1", "quantity": 0},
		{"itemId": "2", "quantity": 0},
	}
	require.NoError(t, s.Set(ctx, "live_order/items", buffer))

	applied, err := s.Update(ctx, Batch{
		Expect: map[string]any{"live_order/items": buffer},
		Set:    map[string]any{"live_order/items/1/quantity": 4},
	})
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = s.Update(ctx, Batch{
		Expect: map[string]any{"live_order/items": buffer},
		Set:    map[string]any{"live_order/items/0/quantity": 4},
	})
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestUpdate_CheckOnly(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "a", 1))

	applied, err := s.Update(ctx, Batch{Expect: map[string]any{"a": 1}})
	require.NoError(t, err)
	assert.True(t, applied)

	rev, err := s.Revision(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rev, "a check-only batch must not bump the revision")
}

func TestUpdate_OverlappingPathsRejected(t *testing.T) {
	s := createTestStore(t)

	_, err := s.Update(context.Background(), Batch{Set: map[string]any{
		"a":   map[string]any{"b": 1},
		"a/b": 2,
	}})
	assert.ErrorIs(t, err, ErrOverlappingPaths)
}

func TestUpdate_DeleteViaNil(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "orders/o1", map[string]any{"status": "processing"}))

	applied, err := s.Update(ctx, *NewBatch().Delete("orders/o1"))
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, "null", canonicalAt(t, s, "orders"))
}

func TestUpdate_RacingPreconditionsOnlyOneWins(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "orders/o1/status", "queued"))

	const racers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			applied, err := s.Update(ctx, Batch{
				Expect: map[string]any{"orders/o1/status": "queued"},
				Set:    map[string]any{"orders/o1/status": "processing"},
			})
			assert.NoError(t, err)
			if applied {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
}

func TestUpdate_TwoHandlesShareState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shared.db")
	a, err := Open(path)
	require.NoError(t, err)
	defer a.Close()
	b, err := Open(path)
	require.NoError(t, err)
	defer b.Close()
	ctx := context.Background()

	require.NoError(t, a.Set(ctx, "x", "from-a"))

	applied, err := b.Update(ctx, Batch{
		Expect: map[string]any{"x": "from-a"},
		Set:    map[string]any{"x": "from-b"},
	})
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, `"from-b"`, canonicalAt(t, a, "x"))
}

func TestAppend_GeneratedKeys(t *testing.T) {
	s := createTestStore(t, WithKeyGenerator(NewFixedKeys("k1", "k2")))
	ctx := context.Background()

	k1, err := s.Append(ctx, "orders", map[string]any{"n": 1})
	require.NoError(t, err)
	k2, err := s.Append(ctx, "orders", map[string]any{"n": 2})
	require.NoError(t, err)

	assert.Equal(t, "k1", k1)
	assert.Equal(t, "k2", k2)
	assert.Equal(t, `{"k1":{"n":1},"k2":{"n":2}}`, canonicalAt(t, s, "orders"))
}

func TestAppend_Collision(t *testing.T) {
	s := createTestStore(t, WithKeyGenerator(NewFixedKeys("dup", "dup")))
	ctx := context.Background()

	_, err := s.Append(ctx, "orders", map[string]any{"n": 1})
	require.NoError(t, err)
	_, err = s.Append(ctx, "orders", map[string]any{"n": 2})
	assert.ErrorIs(t, err, ErrKeyCollision)
}

func TestAppend_EmptyValue(t *testing.T) {
	s := createTestStore(t)

	_, err := s.Append(context.Background(), "orders", map[string]any{})
	assert.ErrorIs(t, err, ErrEmptyValue)
}

func TestUUIDv7Keys_SortInCreationOrder(t *testing.T) {
	g := UUIDv7Keys{}
	prev := g.NewKey()
	for i := 0; i < 50; i++ {
		next := g.NewKey()
		assert.Less(t, prev, next)
		prev = next
	}
}

func TestFixedKeys_ContinuesAfterList(t *testing.T) {
	g := NewFixedKeys("a")
	assert.Equal(t, "a", g.NewKey())
	assert.Equal(t, "key-2", g.NewKey())
}
