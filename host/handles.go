// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package host

import (
	"sync"
)

// Handle identifies a protected script-engine value. The zero value is never
// a valid handle.
type Handle uint64

// NilHandle is the invalid handle.
const NilHandle Handle = 0

// Table is the protect/release registry over script-engine values. A
// protected value is kept reachable until released, exactly once; a second
// release of the same handle returns ErrHandleReleased.
//
// The loop goroutine is the only permitted user once the host is running
// (single-writer rule); the mutex exists for the window before Run and for
// tests.
type Table struct {
	mu     sync.Mutex
	values map[Handle]any
	next   uint64
}

// NewTable creates an empty handle table.
func NewTable() *Table {
	return &Table{values: make(map[Handle]any)}
}

// Protect registers a value and returns its handle. The value stays
// reachable until Release.
func (t *Table) Protect(v any) Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next++
	h := Handle(t.next)
	t.values[h] = v
	return h
}

// Value returns the protected value for h.
func (t *Table) Value(h Handle) (any, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.values[h]
	return v, ok
}

// Release drops the value for h. Exactly-once: releasing an unknown or
// already released handle returns ErrHandleReleased.
func (t *Table) Release(h Handle) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.values[h]; !ok {
		return ErrHandleReleased
	}
	delete(t.values, h)
	return nil
}

// Len returns the number of live handles.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.values)
}

// ReleaseAll drops every handle. Used by reload and shutdown teardown, where
// wholesale release is the specified behavior.
func (t *Table) ReleaseAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	clear(t.values)
}

// Scope is a frame-scope guard: values tracked in a scope are released
// together when the scope ends, unless explicitly escaped. This turns the
// manual protect/release pairing invariant into a structural one — a tracked
// handle cannot leak past the tick that created it.
type Scope struct {
	t       *Table
	handles []Handle
	escaped map[Handle]struct{}
}

// NewScope opens a scope over the table.
func (t *Table) NewScope() *Scope {
	return &Scope{t: t}
}

// Track protects a value for the duration of the scope.
func (s *Scope) Track(v any) Handle {
	h := s.t.Protect(v)
	s.handles = append(s.handles, h)
	return h
}

// Escape promotes a tracked handle to an ordinary protected handle that
// survives the scope; the caller takes over the release obligation.
func (s *Scope) Escape(h Handle) {
	if s.escaped == nil {
		s.escaped = make(map[Handle]struct{})
	}
	s.escaped[h] = struct{}{}
}

// Len returns the number of handles tracked by the scope, escaped included.
func (s *Scope) Len() int {
	return len(s.handles)
}

// ReleaseAll releases every tracked, non-escaped handle. Idempotent: a
// second call is a no-op.
func (s *Scope) ReleaseAll() {
	for _, h := range s.handles {
		if _, ok := s.escaped[h]; ok {
			continue
		}
		// Already-released handles (e.g. table-wide teardown ran first) are
		// not an error from the scope's perspective.
		_ = s.t.Release(h)
	}
	s.handles = nil
	s.escaped = nil
}
