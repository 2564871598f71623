package store

import (
	"context"
	"database/sql"
	"fmt"
)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Read returns the subtree at path. A missing path yields a snapshot whose
// Exists reports false.
func (s *Store) Read(ctx context.Context, path string) (Snapshot, error) {
	snaps, err := s.ReadAll(ctx, path)
	if err != nil {
		return Snapshot{}, err
	}
	return snaps[0], nil
}

// ReadAll reads several subtrees from a single consistent snapshot of the
// database. The result is in argument order.
func (s *Store) ReadAll(ctx context.Context, paths ...string) ([]Snapshot, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("read: begin tx: %w", err)
	}
	defer tx.Rollback()

	rev, err := readRevision(ctx, tx)
	if err != nil {
		return nil, err
	}

	out := make([]Snapshot, len(paths))
	for i, p := range paths {
		clean, err := CleanPath(p)
		if err != nil {
			return nil, err
		}
		v, err := readTree(ctx, tx, clean)
		if err != nil {
			return nil, err
		}
		out[i] = Snapshot{Path: clean, Value: v, Rev: rev}
	}
	return out, nil
}

func readRevision(ctx context.Context, q querier) (int64, error) {
	var rev int64
	if err := q.QueryRowContext(ctx, "SELECT rev FROM revision WHERE id = 1").Scan(&rev); err != nil {
		return 0, fmt.Errorf("read revision: %w", err)
	}
	return rev, nil
}

// readTree loads and rebuilds the subtree at a clean path.
func readTree(ctx context.Context, q querier, path string) (any, error) {
	leaves, err := readLeaves(ctx, q, path)
	if err != nil {
		return nil, err
	}
	return build(path, leaves)
}

// readLeaves returns path itself and every descendant leaf, ordered by path
// for deterministic rebuilds.
func readLeaves(ctx context.Context, q querier, path string) ([]leaf, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if path == "" {
		rows, err = q.QueryContext(ctx, `
			SELECT path, value FROM nodes
			ORDER BY path ASC
		`)
	} else {
		lo, hi := subtreeBounds(path)
		rows, err = q.QueryContext(ctx, `
			SELECT path, value FROM nodes
			WHERE path = ? OR (path >= ? AND path < ?)
			ORDER BY path ASC
		`, path, lo, hi)
	}
	if err != nil {
		return nil, fmt.Errorf("read %q: %w", path, err)
	}
	defer rows.Close()

	var out []leaf
	for rows.Next() {
		var lf leaf
		if err := rows.Scan(&lf.path, &lf.value); err != nil {
			return nil, fmt.Errorf("read %q: scan: %w", path, err)
		}
		out = append(out, lf)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read %q: %w", path, err)
	}
	return out, nil
}
