package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestManualClock_Frozen(t *testing.T) {
	start := time.UnixMilli(1_700_000_000_000)
	clock := NewManualClock(start)

	assert.Equal(t, start, clock.Now())
	assert.Equal(t, start, clock.Now())
	assert.Equal(t, int64(1_700_000_000_000), clock.UnixMilli())
}

func TestManualClock_AdvanceAndSet(t *testing.T) {
	clock := NewManualClock(time.UnixMilli(0))

	assert.Equal(t, time.UnixMilli(5000), clock.Advance(5*time.Second))
	clock.Set(time.UnixMilli(100))
	assert.Equal(t, int64(100), clock.UnixMilli())
}

func TestManualClock_ThreadSafe(t *testing.T) {
	clock := NewManualClock(time.UnixMilli(0))
	const numGoroutines = 50

	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			clock.Advance(time.Millisecond)
			_ = clock.Now()
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(numGoroutines), clock.UnixMilli())
}

func TestSequentialKeys(t *testing.T) {
	g := NewSequentialKeys("order")
	assert.Equal(t, "order-0001", g.NewKey())
	assert.Equal(t, "order-0002", g.NewKey())

	assert.Equal(t, "key-0001", NewSequentialKeys("").NewKey())
}
