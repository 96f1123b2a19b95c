package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"aarath-auction/utils"
)

type disconnectKind int

const (
	disconnectSet disconnectKind = iota
	disconnectUpdate
	disconnectFunc
)

// DisconnectFunc is a conditional fallback write, typically a Transaction
type DisconnectFunc func(ctx context.Context) error

type disconnectOp struct {
	path   string
	kind   disconnectKind
	value  any
	fields map[string]any
	fn     DisconnectFunc
}

// Session is one client connection. Writes registered with OnDisconnect are kept on
// the server and run when the connection drops, so they fire even if the client crashes.
type Session struct {
	ID string

	store    Store
	mu       sync.Mutex
	ops      []disconnectOp
	closed   bool
	lastSeen time.Time
}

// NewSession opens a session against store
func NewSession(store Store) *Session {
	return &Session{
		ID:       utils.PrefixedID("sess"),
		store:    store,
		lastSeen: time.Now(),
	}
}

// DisconnectRef registers fallback writes for one path
type DisconnectRef struct {
	session *Session
	path    string
}

// OnDisconnect returns the disconnect hook handle for path
func (s *Session) OnDisconnect(path string) *DisconnectRef {
	return &DisconnectRef{session: s, path: Join(path)}
}

// Set writes value at the path when the session drops
func (r *DisconnectRef) Set(value any) error {
	v, err := Normalize(value)
	if err != nil {
		return err
	}
	return r.session.register(disconnectOp{path: r.path, kind: disconnectSet, value: v})
}

// Update merges fields at the path when the session drops
func (r *DisconnectRef) Update(fields map[string]any) error {
	copied := make(map[string]any, len(fields))
	for k, v := range fields {
		nv, err := Normalize(v)
		if err != nil {
			return err
		}
		copied[k] = nv
	}
	return r.session.register(disconnectOp{path: r.path, kind: disconnectUpdate, fields: copied})
}

// Do runs fn when the session drops. fn owns the writes under the path and should
// check the current value before changing it.
func (r *DisconnectRef) Do(fn DisconnectFunc) error {
	if fn == nil {
		return fmt.Errorf("register disconnect hook %s: nil func", r.path)
	}
	return r.session.register(disconnectOp{path: r.path, kind: disconnectFunc, fn: fn})
}

// Remove deletes the path when the session drops
func (r *DisconnectRef) Remove() error {
	return r.Set(nil)
}

// Cancel drops the hook registered for the path
func (r *DisconnectRef) Cancel() {
	r.session.mu.Lock()
	defer r.session.mu.Unlock()
	r.session.removeLocked(r.path)
}

func (s *Session) register(op disconnectOp) error {
	if _, err := validatePath(op.path); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("register disconnect hook %s: %w", op.path, ErrClosed)
	}
	// a later registration for the same path replaces the earlier one
	s.removeLocked(op.path)
	s.ops = append(s.ops, op)
	return nil
}

func (s *Session) removeLocked(path string) {
	for i, op := range s.ops {
		if op.path == path {
			s.ops = append(s.ops[:i], s.ops[i+1:]...)
			return
		}
	}
}

// HasDisconnectHook reports whether a hook is registered for path
func (s *Session) HasDisconnectHook(path string) bool {
	path = Join(path)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, op := range s.ops {
		if op.path == path {
			return true
		}
	}
	return false
}

// Pending returns the number of registered hooks
func (s *Session) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ops)
}

// Touch records client liveness
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

// LastSeen is the time of the last Touch
func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// Closed reports whether the session has been disconnected
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// detach marks the session closed and hands back its pending hooks. The second
// return is false when the session was already closed.
func (s *Session) detach() ([]disconnectOp, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, false
	}
	s.closed = true
	ops := s.ops
	s.ops = nil
	return ops, true
}

// Disconnect ends the session and runs the pending hooks in registration order.
// Calling it again is a no-op.
func (s *Session) Disconnect(ctx context.Context) error {
	ops, ok := s.detach()
	if !ok {
		return nil
	}

	var errs []error
	for _, op := range ops {
		var err error
		switch op.kind {
		case disconnectSet:
			err = s.store.Set(ctx, op.path, op.value)
		case disconnectUpdate:
			err = s.store.Update(ctx, op.path, op.fields)
		case disconnectFunc:
			err = op.fn(ctx)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("disconnect hook %s: %w", op.path, err))
		}
	}
	return errors.Join(errs...)
}
