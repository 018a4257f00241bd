// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package bundle

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// Bundle is a loaded container. Lookup is exact-match over normalized paths;
// there is no directory listing. A Bundle is immutable after load and safe
// for concurrent use.
type Bundle struct {
	ra        io.ReaderAt
	closer    io.Closer
	entries   map[string]Entry
	entryPath string
	dataStart int64
	origin    string
}

// Open loads a bundle from the tail of the named file. The file is kept open
// for the life of the bundle; callers own the eventual Close.
func Open(name string) (*Bundle, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("bundle: open %s: %w", name, ErrNoBundle)
	}

	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("bundle: stat %s: %w", name, ErrNoBundle)
	}

	b, err := Read(f, fi.Size())
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	b.closer = f
	b.origin = name
	return b, nil
}

// Read loads a bundle from the tail of an arbitrary reader of known size,
// running the footer-first load algorithm: read and verify the fixed footer,
// read the index region immediately before it, parse entry records, and
// derive the data region's start from the maximum entry extent.
func Read(ra io.ReaderAt, size int64) (*Bundle, error) {
	if size < footerSize {
		return nil, ErrNoBundle
	}

	var footer [footerSize]byte
	if _, err := ra.ReadAt(footer[:], size-footerSize); err != nil {
		return nil, ErrNoBundle
	}

	if [8]byte(footer[:8]) != magic {
		return nil, ErrNoBundle
	}
	if binary.LittleEndian.Uint32(footer[8:12]) != Version {
		return nil, ErrNoBundle
	}

	indexLen := binary.LittleEndian.Uint64(footer[16:24])
	if indexLen == 0 || indexLen > uint64(size-footerSize) {
		return nil, ErrNoBundle
	}

	indexStart := size - footerSize - int64(indexLen)
	index := make([]byte, indexLen)
	if _, err := ra.ReadAt(index, indexStart); err != nil {
		return nil, ErrNoBundle
	}

	entryPath, entries, err := parseIndex(index)
	if err != nil {
		return nil, err
	}

	// The data region ends where the index begins; its start is derived from
	// the furthest entry extent, so a container appended to a host binary
	// resolves correctly without knowing the host's length.
	var maxExtent uint64
	for _, e := range entries {
		end := e.Offset + e.Length
		if end < e.Offset { // overflow
			return nil, ErrNoBundle
		}
		if end > maxExtent {
			maxExtent = end
		}
	}
	if maxExtent > uint64(indexStart) {
		return nil, ErrNoBundle
	}
	dataStart := indexStart - int64(maxExtent)

	m := make(map[string]Entry, len(entries))
	for _, e := range entries {
		m[e.Path] = e
	}

	return &Bundle{
		ra:        ra,
		entries:   m,
		entryPath: entryPath,
		dataStart: dataStart,
	}, nil
}

// parseIndex decodes the index region into the declared entry path and the
// entry records. Any truncation or inconsistency yields ErrNoBundle.
func parseIndex(index []byte) (string, []Entry, error) {
	if len(index) < 16 {
		return "", nil, ErrNoBundle
	}

	if binary.LittleEndian.Uint32(index[0:4]) != IndexVersion {
		return "", nil, ErrNoBundle
	}
	fileCount := binary.LittleEndian.Uint32(index[4:8])
	entryPathLen := binary.LittleEndian.Uint32(index[8:12])

	if fileCount > maxFileCount {
		return "", nil, ErrNoBundle
	}

	off := uint64(16)
	if uint64(entryPathLen) > uint64(len(index))-off {
		return "", nil, ErrNoBundle
	}
	entryPath := NormalizePath(string(index[off : off+uint64(entryPathLen)]))
	off += uint64(entryPathLen)

	entries := make([]Entry, 0, fileCount)
	for i := uint32(0); i < fileCount; i++ {
		if uint64(len(index))-off < 24 {
			return "", nil, ErrNoBundle
		}
		pathLen := binary.LittleEndian.Uint32(index[off : off+4])
		offset := binary.LittleEndian.Uint64(index[off+8 : off+16])
		length := binary.LittleEndian.Uint64(index[off+16 : off+24])
		off += 24

		if uint64(pathLen) > uint64(len(index))-off {
			return "", nil, ErrNoBundle
		}
		p := NormalizePath(string(index[off : off+uint64(pathLen)]))
		off += uint64(pathLen)

		if p == "" {
			return "", nil, ErrNoBundle
		}

		entries = append(entries, Entry{Path: p, Offset: offset, Length: length})
	}

	return entryPath, entries, nil
}

// Find returns the exact bytes of the file at path, after normalization.
// The second return is false when the path is not present.
func (b *Bundle) Find(p string) ([]byte, bool) {
	e, ok := b.entries[NormalizePath(p)]
	if !ok {
		return nil, false
	}

	buf := make([]byte, e.Length)
	if _, err := b.ra.ReadAt(buf, b.dataStart+int64(e.Offset)); err != nil {
		return nil, false
	}
	return buf, true
}

// EntryFor returns the index record for the normalized path.
func (b *Bundle) EntryFor(p string) (Entry, bool) {
	e, ok := b.entries[NormalizePath(p)]
	return e, ok
}

// Contains reports whether the normalized path is present.
func (b *Bundle) Contains(p string) bool {
	_, ok := b.entries[NormalizePath(p)]
	return ok
}

// Entry returns the declared entry script path, or "" if none was recorded.
func (b *Bundle) Entry() string {
	return b.entryPath
}

// Len returns the number of files in the container.
func (b *Bundle) Len() int {
	return len(b.entries)
}

// Paths returns the normalized paths of every file in the container, in
// unspecified order.
func (b *Bundle) Paths() []string {
	out := make([]string, 0, len(b.entries))
	for p := range b.entries {
		out = append(out, p)
	}
	return out
}

// Origin returns the file the bundle was discovered in, if it was opened by
// path.
func (b *Bundle) Origin() string {
	return b.origin
}

// Close releases the underlying file, if the bundle owns one.
func (b *Bundle) Close() error {
	if b.closer != nil {
		return b.closer.Close()
	}
	return nil
}
