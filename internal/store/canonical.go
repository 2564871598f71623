package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"

	"golang.org/x/text/unicode/norm"
)

// normalize converts an arbitrary Go value into the generic JSON form the
// store works with: map[string]any, []any, json.Number, string, bool or nil.
// Null entries and empty containers are pruned, since the tree cannot hold
// them.
func normalize(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("normalize: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("normalize: %w", err)
	}
	return prune(out), nil
}

func prune(v any) any {
	switch val := v.(type) {
	case map[string]any:
		for k, child := range val {
			if p := prune(child); p == nil {
				delete(val, k)
			} else {
				val[k] = p
			}
		}
		if len(val) == 0 {
			return nil
		}
		return val
	case []any:
		// Arrays are stored as index-keyed maps; a null element leaves a hole.
		m := make(map[string]any, len(val))
		for i, child := range val {
			if p := prune(child); p != nil {
				m[strconv.Itoa(i)] = p
			}
		}
		if len(m) == 0 {
			return nil
		}
		if len(m) == len(val) {
			out := make([]any, len(val))
			for i := range val {
				out[i] = m[strconv.Itoa(i)]
			}
			return out
		}
		return m
	}
	return v
}

// marshalCanonical produces deterministic JSON for comparisons and
// fingerprints:
//   - object keys sorted bytewise
//   - strings NFC normalized, no HTML escaping
//   - integral numbers written without exponent or fraction
func marshalCanonical(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case json.Number:
		s, err := canonicalNumber(val)
		if err != nil {
			return err
		}
		buf.WriteString(s)
	case string:
		b, err := marshalCanonicalString(val)
		if err != nil {
			return err
		}
		buf.Write(b)
	case []any:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, elem); err != nil {
				return fmt.Errorf("array[%d]: %w", i, err)
			}
		}
		buf.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := marshalCanonicalString(k)
			if err != nil {
				return err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := writeCanonical(buf, val[k]); err != nil {
				return fmt.Errorf("object[%q]: %w", k, err)
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("unsupported type for canonical JSON: %T", v)
	}
	return nil
}

func canonicalNumber(n json.Number) (string, error) {
	if i, err := n.Int64(); err == nil {
		return strconv.FormatInt(i, 10), nil
	}
	f, err := n.Float64()
	if err != nil {
		return "", fmt.Errorf("invalid number %q: %w", n, err)
	}
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return "", fmt.Errorf("invalid number %q", n)
	}
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return strconv.FormatInt(int64(f), 10), nil
	}
	return strconv.FormatFloat(f, 'g', -1, 64), nil
}

// marshalCanonicalString encodes s as a JSON string after NFC normalization,
// with <, > and & left unescaped.
func marshalCanonicalString(s string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(norm.NFC.String(s)); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
}

// Equal reports whether a and b encode to the same canonical JSON after
// normalization. Absent, null and empty containers are all equal.
func Equal(a, b any) (bool, error) {
	na, err := normalize(a)
	if err != nil {
		return false, err
	}
	nb, err := normalize(b)
	if err != nil {
		return false, err
	}
	ca, err := marshalCanonical(na)
	if err != nil {
		return false, err
	}
	cb, err := marshalCanonical(nb)
	if err != nil {
		return false, err
	}
	return bytes.Equal(ca, cb), nil
}
