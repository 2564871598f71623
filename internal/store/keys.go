package store

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// KeyGenerator produces child keys for Append.
// Implemented by UUIDv7Keys (production) and FixedKeys (tests).
type KeyGenerator interface {
	NewKey() string
}

// UUIDv7Keys generates time-sortable UUIDv7 keys, so appended children list
// in creation order.
//
// Thread-safety: stateless and safe for concurrent use.
type UUIDv7Keys struct{}

// NewKey creates a new UUIDv7 as a hyphenated string.
//
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Keys) NewKey() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedKeys returns predetermined keys for deterministic tests. Once the
// list is exhausted it continues with "key-N".
type FixedKeys struct {
	mu   sync.Mutex
	keys []string
	idx  int
}

// NewFixedKeys creates a generator that returns keys in order.
func NewFixedKeys(keys ...string) *FixedKeys {
	return &FixedKeys{keys: keys}
}

// NewKey returns the next predetermined key.
func (g *FixedKeys) NewKey() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.idx++
	if g.idx <= len(g.keys) {
		return g.keys[g.idx-1]
	}
	return fmt.Sprintf("key-%d", g.idx)
}
