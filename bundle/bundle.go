// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package bundle implements the embedded application container: a
// trailer-indexed binary format that lets a packaged executable carry its own
// script and asset filesystem.
//
// # On-disk layout
//
//	[data region]               concatenated file payloads, byte-exact
//	[index region]
//	  u32 indexVersion, u32 fileCount, u32 entryPathLen, u32 reserved
//	  bytes entryPathBytes
//	  repeat fileCount times:
//	    u32 pathLen, u32 reserved, u64 offset, u64 length, bytes pathBytes
//	[footer, fixed 24 bytes]
//	  8-byte magic, u32 version, u32 reserved, u64 indexRegionLength
//
// All integers are little-endian. The container is read from the tail of a
// file, so it may be appended to an arbitrary host binary (the self-extracting
// form); the data region's start is computed as indexRegionStart minus the
// maximum entry extent, and need not coincide with file offset 0.
//
// Malformed input of any sort is reported as [ErrNoBundle], never a panic or
// a partial read: a broken container degrades to "no bundle" and callers fall
// through to the real filesystem.
package bundle

import (
	"errors"
	"path"
	"strings"
)

const (
	// Version is the container format version written and accepted.
	Version uint32 = 1

	// IndexVersion is the index region format version.
	IndexVersion uint32 = 1

	footerSize = 24

	// maxFileCount bounds index parsing against absurd declared counts.
	maxFileCount = 1 << 20
)

// magic identifies the container footer.
var magic = [8]byte{'A', 'P', 'B', 'N', 'D', 'L', 0x1a, 0x01}

// ErrNoBundle indicates the input does not contain a (valid) bundle. It
// covers every malformed-container case: short files, magic or version
// mismatches, truncated or inconsistent index data, and out-of-range entries.
var ErrNoBundle = errors.New("bundle: no bundle present")

// Entry describes one file in the container. Offset is relative to the start
// of the data region.
type Entry struct {
	Path   string
	Offset uint64
	Length uint64
}

// NormalizePath canonicalizes a lookup path: strips a file:// prefix,
// converts backslashes to forward slashes, collapses ./ and resolves relative
// segments lexically, and strips one leading slash. The result is the unique
// key form used by the index.
func NormalizePath(p string) string {
	p = strings.TrimPrefix(p, "file://")
	p = strings.ReplaceAll(p, "\\", "/")
	p = path.Clean(p)
	for strings.HasPrefix(p, "../") {
		p = p[3:]
	}
	p = strings.TrimPrefix(p, "/")
	if p == "." || p == ".." {
		return ""
	}
	return p
}
