// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package bundle

import (
	"os"
)

// VFS answers path-to-bytes lookups bundle-first, falling through to the real
// filesystem on miss. Every runtime file-facing read goes through a VFS, so
// the embedded container shadows on-disk files of the same normalized path.
//
// A VFS is immutable and safe for concurrent use, including from background
// worker goroutines.
type VFS struct {
	bundle *Bundle
}

// NewVFS creates a VFS over the given bundle. A nil bundle yields a VFS that
// reads the real filesystem only.
func NewVFS(b *Bundle) *VFS {
	return &VFS{bundle: b}
}

// Bundle returns the backing bundle, or nil.
func (v *VFS) Bundle() *Bundle {
	return v.bundle
}

// ReadFile returns the contents of path, consulting the bundle first.
func (v *VFS) ReadFile(p string) ([]byte, error) {
	if v.bundle != nil {
		if data, ok := v.bundle.Find(p); ok {
			return data, nil
		}
	}
	return os.ReadFile(fsPath(p))
}

// Contains reports whether the path resolves inside the bundle (as opposed
// to falling through to the filesystem).
func (v *VFS) Contains(p string) bool {
	return v.bundle != nil && v.bundle.Contains(p)
}

// DiskPath returns the real-filesystem spelling of a lookup path: the
// file:// prefix stripped, everything else preserved. It does not consult
// the bundle.
func (v *VFS) DiskPath(p string) string {
	return fsPath(p)
}

// Entry returns the bundle's declared entry path, or "".
func (v *VFS) Entry() string {
	if v.bundle == nil {
		return ""
	}
	return v.bundle.Entry()
}

// fsPath adapts a lookup path for the real filesystem: the file:// prefix is
// stripped but the path is otherwise passed through, preserving absolute and
// relative spellings.
func fsPath(p string) string {
	if len(p) >= 7 && p[:7] == "file://" {
		return p[7:]
	}
	return p
}
