package realtime

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
)

// MemoryStore is a concurrency-safe in-process implementation of Store
type MemoryStore struct {
	mu         sync.Mutex
	root       any
	closed     bool
	clock      *serverClock
	keys       *KeyGenerator
	maxRetries int
	listeners  *listenerSet
}

// NewMemoryStore creates an empty in-memory tree
func NewMemoryStore(opts ...Option) *MemoryStore {
	o := buildOptions(opts)
	return &MemoryStore{
		clock:      &serverClock{now: o.clock},
		keys:       o.keys,
		maxRetries: o.maxRetries,
		listeners:  newListenerSet(),
	}
}

// Get reads the value at path
func (s *MemoryStore) Get(ctx context.Context, path string) (Snapshot, error) {
	segs, err := validatePath(path)
	if err != nil {
		return Snapshot{}, err
	}
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Snapshot{}, ErrClosed
	}
	return NewSnapshot(path, getAt(s.root, segs)), nil
}

// Set overwrites the value at path
func (s *MemoryStore) Set(ctx context.Context, path string, value any) error {
	return s.Update(ctx, "", map[string]any{path: value})
}

// Update writes every field relative to path in a single atomic step
func (s *MemoryStore) Update(ctx context.Context, path string, fields map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	type write struct {
		path  string
		segs  []string
		value any
	}
	writes := make([]write, 0, len(fields))
	for field, value := range fields {
		full := Join(path, field)
		segs, err := validatePath(full)
		if err != nil {
			return err
		}
		v, err := Normalize(value)
		if err != nil {
			return fmt.Errorf("update %s: %w", full, err)
		}
		writes = append(writes, write{path: full, segs: segs, value: v})
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	ts := s.clock.next()
	for _, w := range writes {
		old := getAt(s.root, w.segs)
		s.root = setAt(s.root, w.segs, resolve(w.value, old, ts))
	}
	s.mu.Unlock()

	for _, w := range writes {
		s.listeners.notify(w.path)
	}
	return nil
}

// Push appends value under a generated key and returns the key
func (s *MemoryStore) Push(ctx context.Context, path string, value any) (string, error) {
	return pushUnique(ctx, s, s.keys, s.maxRetries, path, value)
}

// Transaction runs fn against the current value and commits only if the value
// did not change while fn was running; otherwise fn is retried with the new value.
func (s *MemoryStore) Transaction(ctx context.Context, path string, fn TransactionFunc) (TxResult, error) {
	segs, err := validatePath(path)
	if err != nil {
		return TxResult{}, err
	}

	for attempt := 0; attempt < s.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return TxResult{}, err
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return TxResult{}, ErrClosed
		}
		current := getAt(s.root, segs)
		s.mu.Unlock()

		next, err := fn(cloneValue(current))
		if errors.Is(err, ErrAbort) {
			return TxResult{Committed: false, Snapshot: NewSnapshot(path, current)}, nil
		}
		if err != nil {
			return TxResult{}, err
		}
		normalized, err := Normalize(next)
		if err != nil {
			return TxResult{}, fmt.Errorf("transaction %s: %w", path, err)
		}

		s.mu.Lock()
		if !reflect.DeepEqual(getAt(s.root, segs), current) {
			s.mu.Unlock()
			continue
		}
		resolved := resolve(normalized, current, s.clock.next())
		s.root = setAt(s.root, segs, resolved)
		s.mu.Unlock()

		s.listeners.notify(path)
		return TxResult{Committed: true, Snapshot: NewSnapshot(path, resolved)}, nil
	}
	return TxResult{}, fmt.Errorf("transaction %s: %w", path, ErrTooManyRetries)
}

// Subscribe delivers the value at path now and after every overlapping change
func (s *MemoryStore) Subscribe(path string, fn func(Snapshot)) (Unsubscribe, error) {
	segs, err := validatePath(path)
	if err != nil {
		return nil, err
	}
	return s.listeners.add(Join(path), segs, fn, s.Get)
}

// Close stops every subscription
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.listeners.closeAll()
	return nil
}
