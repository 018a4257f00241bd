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

// Writer builds a container from an in-memory file set. The zero value is not
// usable; call NewWriter.
type Writer struct {
	files []writerFile
	index map[string]int
	entry string
}

type writerFile struct {
	path string
	data []byte
}

// NewWriter creates an empty container builder.
func NewWriter() *Writer {
	return &Writer{index: make(map[string]int)}
}

// SetEntry records the entry script path, stored normalized in the index
// region. It does not need to name an added file, though loaders typically
// expect it to.
func (w *Writer) SetEntry(p string) {
	w.entry = NormalizePath(p)
}

// Add stages a file under the given path. The path is normalized; an empty
// normalized path or a duplicate is an error.
func (w *Writer) Add(p string, data []byte) error {
	n := NormalizePath(p)
	if n == "" {
		return fmt.Errorf("bundle: empty normalized path %q", p)
	}
	if _, ok := w.index[n]; ok {
		return fmt.Errorf("bundle: duplicate path %q", n)
	}
	w.index[n] = len(w.files)
	w.files = append(w.files, writerFile{path: n, data: data})
	return nil
}

// Len returns the number of staged files.
func (w *Writer) Len() int {
	return len(w.files)
}

// WriteTo writes the complete container: data region, index region, footer.
// Offsets are assigned in Add order from the start of the data region.
func (w *Writer) WriteTo(out io.Writer) (int64, error) {
	var written int64

	// Data region.
	offsets := make([]uint64, len(w.files))
	var cursor uint64
	for i, f := range w.files {
		offsets[i] = cursor
		n, err := out.Write(f.data)
		written += int64(n)
		if err != nil {
			return written, err
		}
		cursor += uint64(len(f.data))
	}

	// Index region.
	var index []byte
	index = appendU32(index, IndexVersion)
	index = appendU32(index, uint32(len(w.files)))
	index = appendU32(index, uint32(len(w.entry)))
	index = appendU32(index, 0)
	index = append(index, w.entry...)
	for i, f := range w.files {
		index = appendU32(index, uint32(len(f.path)))
		index = appendU32(index, 0)
		index = appendU64(index, offsets[i])
		index = appendU64(index, uint64(len(f.data)))
		index = append(index, f.path...)
	}
	n, err := out.Write(index)
	written += int64(n)
	if err != nil {
		return written, err
	}

	// Footer.
	var footer []byte
	footer = append(footer, magic[:]...)
	footer = appendU32(footer, Version)
	footer = appendU32(footer, 0)
	footer = appendU64(footer, uint64(len(index)))
	n, err = out.Write(footer)
	written += int64(n)
	return written, err
}

// WriteFile writes the container to a standalone bundle file.
func (w *Writer) WriteFile(name string) error {
	f, err := os.Create(name)
	if err != nil {
		return err
	}
	if _, err := w.WriteTo(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// AppendTo appends the container to an existing file, producing the
// self-extracting form: the loader's footer-first algorithm finds the bundle
// at the file's tail regardless of what precedes the data region.
func (w *Writer) AppendTo(name string) error {
	f, err := os.OpenFile(name, os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		return err
	}
	if _, err := w.WriteTo(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func appendU32(b []byte, v uint32) []byte {
	return binary.LittleEndian.AppendUint32(b, v)
}

func appendU64(b []byte, v uint64) []byte {
	return binary.LittleEndian.AppendUint64(b, v)
}
