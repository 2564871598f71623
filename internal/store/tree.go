package store

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// leaf is one stored row.
type leaf struct {
	path  string
	value string
}

// flatten walks a normalized value and records one canonical JSON scalar per
// leaf path.
func flatten(base string, v any, out map[string]string) error {
	switch val := v.(type) {
	case nil:
		return nil
	case map[string]any:
		for k, child := range val {
			if err := checkSegment(k); err != nil {
				return fmt.Errorf("%w: key under %q: %v", ErrInvalidPath, base, err)
			}
			if err := flatten(Join(base, k), child, out); err != nil {
				return err
			}
		}
		return nil
	case []any:
		for i, child := range val {
			if err := flatten(Join(base, strconv.Itoa(i)), child, out); err != nil {
				return err
			}
		}
		return nil
	}
	if base == "" {
		return fmt.Errorf("%w: cannot store a scalar at the root", ErrInvalidPath)
	}
	data, err := marshalCanonical(v)
	if err != nil {
		return fmt.Errorf("encode %q: %w", base, err)
	}
	out[base] = string(data)
	return nil
}

func decodeLeaf(s string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode leaf: %w", err)
	}
	return v, nil
}

// build reassembles the subtree rooted at base from its leaves. It returns
// nil when there are none.
func build(base string, leaves []leaf) (any, error) {
	var root map[string]any
	for _, lf := range leaves {
		val, err := decodeLeaf(lf.value)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", lf.path, err)
		}
		if lf.path == base {
			return val, nil
		}
		rel := lf.path
		if base != "" {
			rel = strings.TrimPrefix(lf.path, base+"/")
		}
		if root == nil {
			root = make(map[string]any)
		}
		segs := strings.Split(rel, "/")
		m := root
		for _, seg := range segs[:len(segs)-1] {
			child, ok := m[seg].(map[string]any)
			if !ok {
				child = make(map[string]any)
				m[seg] = child
			}
			m = child
		}
		m[segs[len(segs)-1]] = val
	}
	if root == nil {
		return nil, nil
	}
	return arrayify(root), nil
}

// arrayify turns maps keyed exactly "0".."n-1" into slices.
func arrayify(v any) any {
	if arr, ok := v.([]any); ok {
		for i := range arr {
			arr[i] = arrayify(arr[i])
		}
		return arr
	}
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	for k, child := range m {
		m[k] = arrayify(child)
	}
	for i := 0; i < len(m); i++ {
		if _, ok := m[strconv.Itoa(i)]; !ok {
			return m
		}
	}
	out := make([]any, len(m))
	for i := range out {
		out[i] = m[strconv.Itoa(i)]
	}
	return out
}

// Snapshot is an immutable view of one subtree at a revision.
type Snapshot struct {
	Path  string
	Value any
	Rev   int64
}

// Exists reports whether anything is stored at or beneath Path.
func (s Snapshot) Exists() bool {
	return s.Value != nil
}

// Decode unmarshals the snapshot value into v. Decoding a missing value
// leaves v untouched.
func (s Snapshot) Decode(v any) error {
	if s.Value == nil {
		return nil
	}
	data, err := json.Marshal(s.Value)
	if err != nil {
		return fmt.Errorf("decode %q: %w", s.Path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %q: %w", s.Path, err)
	}
	return nil
}

// Child returns the snapshot of the direct child key.
func (s Snapshot) Child(key string) Snapshot {
	child := Snapshot{Path: Join(s.Path, key), Rev: s.Rev}
	switch val := s.Value.(type) {
	case map[string]any:
		child.Value = val[key]
	case []any:
		if i, err := strconv.Atoi(key); err == nil && i >= 0 && i < len(val) {
			child.Value = val[i]
		}
	}
	return child
}

// Keys returns the child keys in ascending order. Array children are keyed by
// index.
func (s Snapshot) Keys() []string {
	switch val := s.Value.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return keys
	case []any:
		keys := make([]string, len(val))
		for i := range val {
			keys[i] = strconv.Itoa(i)
		}
		return keys
	}
	return nil
}

// Canonical returns the canonical JSON of the value.
func (s Snapshot) Canonical() (string, error) {
	data, err := marshalCanonical(s.Value)
	if err != nil {
		return "", fmt.Errorf("canonical %q: %w", s.Path, err)
	}
	return string(data), nil
}
