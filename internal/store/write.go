package store

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrOverlappingPaths is returned when one batch writes both a path and
	// one of its descendants.
	ErrOverlappingPaths = errors.New("batch writes overlapping paths")

	// ErrKeyCollision is returned when Append's generated key already exists.
	ErrKeyCollision = errors.New("generated key already exists")

	// ErrEmptyValue is returned when Append is given nothing to store.
	ErrEmptyValue = errors.New("empty value")
)

// Batch is an atomic multi-path write.
//
// Expect maps paths to the value each must currently hold; nil means the
// path must be absent. Set maps paths to their new value; nil deletes. Every
// Set path replaces its whole subtree.
type Batch struct {
	Expect map[string]any
	Set    map[string]any
}

// NewBatch returns an empty batch.
func NewBatch() *Batch {
	return &Batch{
		Expect: make(map[string]any),
		Set:    make(map[string]any),
	}
}

// Require adds a precondition.
func (b *Batch) Require(path string, v any) *Batch {
	if b.Expect == nil {
		b.Expect = make(map[string]any)
	}
	b.Expect[path] = v
	return b
}

// Put adds a write.
func (b *Batch) Put(path string, v any) *Batch {
	if b.Set == nil {
		b.Set = make(map[string]any)
	}
	b.Set[path] = v
	return b
}

// Delete adds a removal.
func (b *Batch) Delete(path string) *Batch {
	return b.Put(path, nil)
}

// Empty reports whether the batch writes nothing.
func (b *Batch) Empty() bool {
	return len(b.Set) == 0
}

type preparedSet struct {
	path   string
	leaves map[string]string
}

type preparedExpect struct {
	path  string
	value []byte
}

// Update applies the batch atomically. It returns false, with no error and
// nothing written, when any precondition does not hold.
//
// A batch with preconditions and no writes is a consistent multi-path check.
func (s *Store) Update(ctx context.Context, b Batch) (bool, error) {
	sets, err := prepareSets(b.Set)
	if err != nil {
		return false, fmt.Errorf("update: %w", err)
	}
	expects, err := prepareExpects(b.Expect)
	if err != nil {
		return false, fmt.Errorf("update: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("update: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	for _, e := range expects {
		current, err := readTree(ctx, tx, e.path)
		if err != nil {
			return false, fmt.Errorf("update: %w", err)
		}
		got, err := marshalCanonical(current)
		if err != nil {
			return false, fmt.Errorf("update: %w", err)
		}
		if !bytes.Equal(got, e.value) {
			return false, nil
		}
	}

	if len(sets) == 0 {
		return true, nil
	}

	rev, err := readRevision(ctx, tx)
	if err != nil {
		return false, fmt.Errorf("update: %w", err)
	}
	rev++

	for _, set := range sets {
		if err := clearPath(ctx, tx, set.path); err != nil {
			return false, fmt.Errorf("update %q: %w", set.path, err)
		}
		if err := insertLeaves(ctx, tx, set.leaves, rev); err != nil {
			return false, fmt.Errorf("update %q: %w", set.path, err)
		}
	}

	if _, err := tx.ExecContext(ctx, "UPDATE revision SET rev = ? WHERE id = 1", rev); err != nil {
		return false, fmt.Errorf("update: bump revision: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("update: commit: %w", err)
	}

	s.signal()
	return true, nil
}

// Set replaces the subtree at path unconditionally.
func (s *Store) Set(ctx context.Context, path string, v any) error {
	_, err := s.Update(ctx, Batch{Set: map[string]any{path: v}})
	return err
}

// Remove deletes the subtree at path.
func (s *Store) Remove(ctx context.Context, path string) error {
	return s.Set(ctx, path, nil)
}

// Append stores v under parent with a freshly generated key and returns the
// key. Generated keys sort in creation order.
func (s *Store) Append(ctx context.Context, parent string, v any) (string, error) {
	norm, err := normalize(v)
	if err != nil {
		return "", fmt.Errorf("append: %w", err)
	}
	if norm == nil {
		return "", fmt.Errorf("append under %q: %w", parent, ErrEmptyValue)
	}

	key := s.keys.NewKey()
	if err := checkSegment(key); err != nil {
		return "", fmt.Errorf("append: generated key %q: %w", key, err)
	}
	path := Join(parent, key)

	applied, err := s.Update(ctx, Batch{
		Expect: map[string]any{path: nil},
		Set:    map[string]any{path: v},
	})
	if err != nil {
		return "", fmt.Errorf("append: %w", err)
	}
	if !applied {
		return "", fmt.Errorf("append %q: %w", path, ErrKeyCollision)
	}
	return key, nil
}

// NewKey returns a key from the store's generator without writing anything.
// Callers use it to place a generated child inside a larger batch.
func (s *Store) NewKey() string {
	return s.keys.NewKey()
}

func prepareSets(in map[string]any) ([]preparedSet, error) {
	out := make([]preparedSet, 0, len(in))
	for p, v := range in {
		clean, err := CleanPath(p)
		if err != nil {
			return nil, err
		}
		norm, err := normalize(v)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", p, err)
		}
		leaves := make(map[string]string)
		if err := flatten(clean, norm, leaves); err != nil {
			return nil, err
		}
		out = append(out, preparedSet{path: clean, leaves: leaves})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].path < out[j].path })

	for i := range out {
		for j := range out {
			if i != j && isWithin(out[j].path, out[i].path) {
				return nil, fmt.Errorf("%w: %q and %q", ErrOverlappingPaths, out[i].path, out[j].path)
			}
		}
	}
	return out, nil
}

func prepareExpects(in map[string]any) ([]preparedExpect, error) {
	out := make([]preparedExpect, 0, len(in))
	for p, v := range in {
		clean, err := CleanPath(p)
		if err != nil {
			return nil, err
		}
		norm, err := normalize(v)
		if err != nil {
			return nil, fmt.Errorf("expect %q: %w", p, err)
		}
		data, err := marshalCanonical(arrayify(norm))
		if err != nil {
			return nil, fmt.Errorf("expect %q: %w", p, err)
		}
		out = append(out, preparedExpect{path: clean, value: data})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].path < out[j].path })
	return out, nil
}

// clearPath removes path, its descendants, and any ancestor that is currently
// a leaf, so the new value can take its place in the tree.
func clearPath(ctx context.Context, tx *sql.Tx, path string) error {
	if path == "" {
		if _, err := tx.ExecContext(ctx, "DELETE FROM nodes"); err != nil {
			return fmt.Errorf("clear root: %w", err)
		}
		return nil
	}

	lo, hi := subtreeBounds(path)
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM nodes
		WHERE path = ? OR (path >= ? AND path < ?)
	`, path, lo, hi); err != nil {
		return fmt.Errorf("clear subtree: %w", err)
	}

	for _, a := range ancestors(path) {
		if _, err := tx.ExecContext(ctx, "DELETE FROM nodes WHERE path = ?", a); err != nil {
			return fmt.Errorf("clear ancestor %q: %w", a, err)
		}
	}
	return nil
}

func insertLeaves(ctx context.Context, tx *sql.Tx, leaves map[string]string, rev int64) error {
	paths := make([]string, 0, len(leaves))
	for p := range leaves {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO nodes (path, value, rev)
			VALUES (?, ?, ?)
			ON CONFLICT(path) DO UPDATE SET value = excluded.value, rev = excluded.rev
		`, p, leaves[p], rev); err != nil {
			return fmt.Errorf("insert %q: %w", p, err)
		}
	}
	return nil
}
