package testutil

import (
	"fmt"
	"sync"
)

// SequentialKeys generates "prefix-0001", "prefix-0002", ... so appended
// records sort in creation order and golden files stay stable.
//
// Satisfies store.KeyGenerator.
type SequentialKeys struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialKeys creates a generator. An empty prefix defaults to "key".
func NewSequentialKeys(prefix string) *SequentialKeys {
	if prefix == "" {
		prefix = "key"
	}
	return &SequentialKeys{prefix: prefix}
}

// NewKey returns the next key.
func (g *SequentialKeys) NewKey() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%04d", g.prefix, g.n)
}
