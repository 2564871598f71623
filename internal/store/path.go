package store

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidPath is returned for paths with empty segments or forbidden
// characters.
var ErrInvalidPath = errors.New("invalid path")

// CleanPath normalizes p by trimming surrounding slashes. The empty string
// is the root. Segments must be non-empty and may not contain '.', '#', '$',
// '[' or ']'.
func CleanPath(p string) (string, error) {
	p = strings.Trim(p, "/")
	if p == "" {
		return "", nil
	}
	for _, seg := range strings.Split(p, "/") {
		if err := checkSegment(seg); err != nil {
			return "", fmt.Errorf("%w %q: %v", ErrInvalidPath, p, err)
		}
	}
	return p, nil
}

func checkSegment(seg string) error {
	if seg == "" {
		return errors.New("empty segment")
	}
	if strings.ContainsAny(seg, ".#$[]") {
		return fmt.Errorf("segment %q has a forbidden character", seg)
	}
	return nil
}

// Join joins path segments with '/'.
func Join(parts ...string) string {
	var nonEmpty []string
	for _, p := range parts {
		if p = strings.Trim(p, "/"); p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, "/")
}

// isWithin reports whether p equals base or lies beneath it.
func isWithin(p, base string) bool {
	if base == "" || p == base {
		return true
	}
	return strings.HasPrefix(p, base+"/")
}

// ancestors returns every proper ancestor of p, shallowest first. The root
// is not included.
func ancestors(p string) []string {
	var out []string
	for i := 0; i < len(p); i++ {
		if p[i] == '/' {
			out = append(out, p[:i])
		}
	}
	return out
}

// subtreeBounds returns the exclusive range that holds every strict
// descendant of p. '0' is the byte after '/', so [p+"/", p+"0") covers
// exactly the paths prefixed by p+"/".
func subtreeBounds(p string) (lo, hi string) {
	return p + "/", p + "0"
}
