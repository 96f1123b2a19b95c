package realtime

import "sort"

// Snapshot is an immutable view of the value stored at a path
type Snapshot struct {
	Path  string
	value any
}

// NewSnapshot wraps a tree value read at path
func NewSnapshot(path string, value any) Snapshot {
	return Snapshot{Path: Join(path), value: value}
}

// Key is the last segment of the snapshot path
func (s Snapshot) Key() string {
	return lastSegment(s.Path)
}

// Exists reports whether a value is stored at the path
func (s Snapshot) Exists() bool {
	return s.value != nil
}

// Value returns a copy of the stored tree value
func (s Snapshot) Value() any {
	return cloneValue(s.value)
}

// Decode copies the stored value into out
func (s Snapshot) Decode(out any) error {
	if s.value == nil {
		return nil
	}
	return Decode(s.value, out)
}

// NumChildren is the number of direct children of an object value
func (s Snapshot) NumChildren() int {
	m, _ := s.value.(map[string]any)
	return len(m)
}

// Children returns the direct children ordered by key. Generated keys sort by creation order.
func (s Snapshot) Children() []Snapshot {
	m, ok := s.value.(map[string]any)
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]Snapshot, 0, len(keys))
	for _, k := range keys {
		out = append(out, Snapshot{Path: Join(s.Path, k), value: m[k]})
	}
	return out
}

// Child returns the snapshot of a descendant path
func (s Snapshot) Child(path string) Snapshot {
	return Snapshot{Path: Join(s.Path, path), value: getAt(s.value, Split(path))}
}
