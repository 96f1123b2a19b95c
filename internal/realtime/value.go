package realtime

import (
	"fmt"

	json "github.com/goccy/go-json"
)

const serverValueKey = ".sv"

type serverTimestamp struct{}

func (serverTimestamp) MarshalJSON() ([]byte, error) {
	return []byte(`{".sv":"timestamp"}`), nil
}

type increment float64

func (i increment) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{serverValueKey: map[string]any{"increment": float64(i)}})
}

// ServerTimestamp is replaced by the store's clock (epoch milliseconds) when the write commits
var ServerTimestamp any = serverTimestamp{}

// Increment adds delta to the numeric value found at the target when the write commits.
// A missing or non-numeric target counts as zero.
func Increment(delta float64) any {
	return increment(delta)
}

// Normalize converts any JSON encodable value into the tree representation:
// map[string]any, float64, string, bool. Empty objects and null fields are dropped.
func Normalize(value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	switch v := value.(type) {
	case string, bool, float64:
		return v, nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("normalize value: %w", err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("normalize value: %w", err)
	}
	return prune(out), nil
}

// Decode copies a tree value into out, which must be a pointer
func Decode(value any, out any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("decode value: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode value: %w", err)
	}
	return nil
}

func prune(v any) any {
	switch t := v.(type) {
	case map[string]any:
		if isServerValue(t) {
			return t
		}
		out := make(map[string]any, len(t))
		for k, c := range t {
			if pc := prune(c); pc != nil {
				out[k] = pc
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	case []any:
		// arrays are stored as objects keyed by index
		out := make(map[string]any, len(t))
		for i, c := range t {
			if pc := prune(c); pc != nil {
				out[fmt.Sprintf("%d", i)] = pc
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	default:
		return v
	}
}

func isServerValue(m map[string]any) bool {
	_, ok := m[serverValueKey]
	return ok && len(m) == 1
}

// resolve replaces server values in v. old is the value currently stored at the same location.
func resolve(v, old any, now int64) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	if isServerValue(m) {
		switch sv := m[serverValueKey].(type) {
		case string:
			if sv == "timestamp" {
				return float64(now)
			}
		case map[string]any:
			if delta, ok := sv["increment"].(float64); ok {
				base, _ := old.(float64)
				return base + delta
			}
		}
		return nil
	}
	oldMap, _ := old.(map[string]any)
	out := make(map[string]any, len(m))
	for k, c := range m {
		if rc := resolve(c, oldMap[k], now); rc != nil {
			out[k] = rc
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// getAt returns the value stored at segs below root, nil when absent
func getAt(root any, segs []string) any {
	cur := root
	for _, s := range segs {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[s]
	}
	return cur
}

// setAt returns a copy of root with v stored at segs. Maps along the path are copied,
// untouched subtrees are shared. Storing nil removes the node and prunes empty parents.
func setAt(root any, segs []string, v any) any {
	if len(segs) == 0 {
		return v
	}
	src, _ := root.(map[string]any)
	out := make(map[string]any, len(src)+1)
	for k, c := range src {
		out[k] = c
	}
	child := setAt(src[segs[0]], segs[1:], v)
	if child == nil {
		delete(out, segs[0])
	} else {
		out[segs[0]] = child
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func cloneValue(v any) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	out := make(map[string]any, len(m))
	for k, c := range m {
		out[k] = cloneValue(c)
	}
	return out
}
