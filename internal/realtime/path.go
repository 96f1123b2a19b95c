package realtime

import (
	"fmt"
	"strings"
)

// Join builds a slash separated path from its parts, skipping empty parts
func Join(parts ...string) string {
	segs := make([]string, 0, len(parts))
	for _, p := range parts {
		for _, s := range strings.Split(p, "/") {
			if s != "" {
				segs = append(segs, s)
			}
		}
	}
	return strings.Join(segs, "/")
}

// Split returns the segments of a path. The root path has no segments.
func Split(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

// validatePath rejects empty segments and characters the tree reserves
func validatePath(path string) ([]string, error) {
	segs := Split(path)
	for _, s := range segs {
		if s == "" || strings.ContainsAny(s, ".#$[]") {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
		}
	}
	return segs, nil
}

// overlaps reports whether a change at one path is visible at the other
func overlaps(a, b []string) bool {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func lastSegment(path string) string {
	segs := Split(path)
	if len(segs) == 0 {
		return ""
	}
	return segs[len(segs)-1]
}
