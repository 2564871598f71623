package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// createTestStore opens a fresh store in a temp dir.
func createTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	opts = append([]Option{WithPollInterval(20 * time.Millisecond)}, opts...)
	s, err := Open(path, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// canonicalAt reads path and returns its canonical JSON.
func canonicalAt(t *testing.T, s *Store, path string) string {
	t.Helper()
	snap, err := s.Read(context.Background(), path)
	require.NoError(t, err)
	c, err := snap.Canonical()
	require.NoError(t, err)
	return c
}
