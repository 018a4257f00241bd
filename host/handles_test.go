// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package host

import (
	"errors"
	"testing"
)

func TestTableProtectRelease(t *testing.T) {
	tb := NewTable()

	h1 := tb.Protect("one")
	h2 := tb.Protect("two")
	if h1 == h2 || h1 == NilHandle || h2 == NilHandle {
		t.Fatalf("handles = %v, %v", h1, h2)
	}

	v, ok := tb.Value(h1)
	if !ok || v != "one" {
		t.Errorf("Value(h1) = %v, %v", v, ok)
	}

	if err := tb.Release(h1); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, ok := tb.Value(h1); ok {
		t.Error("released handle still resolves")
	}
	if tb.Len() != 1 {
		t.Errorf("Len = %d", tb.Len())
	}
}

func TestTableDoubleReleaseIsError(t *testing.T) {
	tb := NewTable()
	h := tb.Protect(42)

	if err := tb.Release(h); err != nil {
		t.Fatal(err)
	}
	if err := tb.Release(h); !errors.Is(err, ErrHandleReleased) {
		t.Errorf("second release err = %v", err)
	}
	if err := tb.Release(Handle(9999)); !errors.Is(err, ErrHandleReleased) {
		t.Errorf("unknown release err = %v", err)
	}
}

func TestSameValueTwoHandles(t *testing.T) {
	// Protecting the same value twice yields independent handles with
	// independent release obligations.
	tb := NewTable()
	v := "shared"
	h1 := tb.Protect(v)
	h2 := tb.Protect(v)

	if err := tb.Release(h1); err != nil {
		t.Fatal(err)
	}
	got, ok := tb.Value(h2)
	if !ok || got != "shared" {
		t.Errorf("Value(h2) = %v, %v after releasing h1", got, ok)
	}
}

func TestScopeReleasesTracked(t *testing.T) {
	tb := NewTable()
	s := tb.NewScope()

	s.Track("a")
	s.Track("b")
	kept := s.Track("c")
	s.Escape(kept)

	if s.Len() != 3 {
		t.Errorf("scope Len = %d", s.Len())
	}

	s.ReleaseAll()
	if tb.Len() != 1 {
		t.Errorf("table Len = %d after scope release, want escaped survivor only", tb.Len())
	}
	if _, ok := tb.Value(kept); !ok {
		t.Error("escaped handle was released")
	}

	// Idempotent; the escaped handle is the caller's to release.
	s.ReleaseAll()
	if err := tb.Release(kept); err != nil {
		t.Errorf("Release(escaped): %v", err)
	}
}

func TestScopeToleratesTableTeardown(t *testing.T) {
	tb := NewTable()
	s := tb.NewScope()
	s.Track("a")

	tb.ReleaseAll()
	s.ReleaseAll() // must not panic or error on already-released handles
	if tb.Len() != 0 {
		t.Errorf("Len = %d", tb.Len())
	}
}
