// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package bundle

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func buildBundle(t *testing.T, entry string, files map[string][]byte) []byte {
	t.Helper()
	w := NewWriter()
	if entry != "" {
		w.SetEntry(entry)
	}
	for p, data := range files {
		if err := w.Add(p, data); err != nil {
			t.Fatalf("Add(%q): %v", p, err)
		}
	}
	var buf bytes.Buffer
	if _, err := w.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	return buf.Bytes()
}

func TestRoundTrip(t *testing.T) {
	files := map[string][]byte{
		"main.js":        []byte("console.log('hi')"),
		"lib/util.js":    []byte("module.exports = 1"),
		"assets/img.bin": {0x00, 0xff, 0x1a, 0x01},
		"empty.txt":      {},
	}
	data := buildBundle(t, "main.js", files)

	b, err := Read(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	if got := b.Entry(); got != "main.js" {
		t.Errorf("Entry() = %q, want %q", got, "main.js")
	}
	if got := b.Len(); got != len(files) {
		t.Errorf("Len() = %d, want %d", got, len(files))
	}

	for p, want := range files {
		got, ok := b.Find(p)
		if !ok {
			t.Fatalf("Find(%q) not found", p)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("Find(%q) = %q, want %q", p, got, want)
		}
	}

	if _, ok := b.Find("missing.js"); ok {
		t.Error("Find(missing.js) reported present")
	}
}

func TestFindNormalizesSpellings(t *testing.T) {
	data := buildBundle(t, "", map[string][]byte{
		"lib/util.js": []byte("x"),
	})
	b, err := Read(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	// Every spelling of the same file resolves to the same entry.
	for _, p := range []string{
		"lib/util.js",
		"./lib/util.js",
		"lib//util.js",
		`lib\util.js`,
		"/lib/util.js",
		"file:///lib/util.js",
		"lib/sub/../util.js",
	} {
		if !b.Contains(p) {
			t.Errorf("Contains(%q) = false", p)
		}
	}
}

func TestNormalizePath(t *testing.T) {
	for _, tc := range []struct {
		in, want string
	}{
		{"main.js", "main.js"},
		{"./main.js", "main.js"},
		{"/main.js", "main.js"},
		{"a/b/../c.js", "a/c.js"},
		{"../../escape.js", "escape.js"},
		{`a\b\c.js`, "a/b/c.js"},
		{"file://x/y.js", "x/y.js"},
		{".", ""},
		{"..", ""},
		{"", ""},
	} {
		if got := NormalizePath(tc.in); got != tc.want {
			t.Errorf("NormalizePath(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestReadRejectsMalformed(t *testing.T) {
	valid := buildBundle(t, "main.js", map[string][]byte{"main.js": []byte("x")})

	corrupt := func(mutate func([]byte)) []byte {
		data := bytes.Clone(valid)
		mutate(data)
		return data
	}

	for name, data := range map[string][]byte{
		"empty":     {},
		"too short": valid[:footerSize-1],
		"bad magic": corrupt(func(d []byte) {
			d[len(d)-footerSize] ^= 0xff
		}),
		"bad version": corrupt(func(d []byte) {
			d[len(d)-16] = 99
		}),
		"index len past file": corrupt(func(d []byte) {
			d[len(d)-8] = 0xff
			d[len(d)-7] = 0xff
		}),
		"zero index len": corrupt(func(d []byte) {
			for i := len(d) - 8; i < len(d); i++ {
				d[i] = 0
			}
		}),
	} {
		if _, err := Read(bytes.NewReader(data), int64(len(data))); !errors.Is(err, ErrNoBundle) {
			t.Errorf("%s: err = %v, want ErrNoBundle", name, err)
		}
	}
}

func TestReadRejectsOutOfRangeEntry(t *testing.T) {
	valid := buildBundle(t, "main.js", map[string][]byte{"main.js": []byte("x")})

	// Locate the sole entry record's offset field: the index region sits
	// immediately before the footer, and the record follows the 16-byte index
	// header plus the entry path.
	indexLen := binary.LittleEndian.Uint64(valid[len(valid)-8:])
	indexStart := len(valid) - footerSize - int(indexLen)
	entryPathLen := binary.LittleEndian.Uint32(valid[indexStart+8 : indexStart+12])
	record := indexStart + 16 + int(entryPathLen)

	for name, offset := range map[string]uint64{
		"offset past data region": 1 << 40,
		"offset+length wraps":     ^uint64(0),
	} {
		data := bytes.Clone(valid)
		binary.LittleEndian.PutUint64(data[record+8:record+16], offset)
		if _, err := Read(bytes.NewReader(data), int64(len(data))); !errors.Is(err, ErrNoBundle) {
			t.Errorf("%s: err = %v, want ErrNoBundle", name, err)
		}
	}
}

func TestWriterRejectsDuplicatesAndEmpty(t *testing.T) {
	w := NewWriter()
	if err := w.Add("a.js", []byte("1")); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := w.Add("./a.js", []byte("2")); err == nil {
		t.Error("duplicate (normalized) path accepted")
	}
	if err := w.Add("..", nil); err == nil {
		t.Error("empty normalized path accepted")
	}
}

func TestSelfExtracting(t *testing.T) {
	// A bundle appended to an arbitrary binary prefix must load identically.
	name := filepath.Join(t.TempDir(), "app")
	prefix := bytes.Repeat([]byte{0x7f, 'E', 'L', 'F', 0}, 1000)
	if err := os.WriteFile(name, prefix, 0o755); err != nil {
		t.Fatal(err)
	}

	w := NewWriter()
	w.SetEntry("main.js")
	if err := w.Add("main.js", []byte("payload")); err != nil {
		t.Fatal(err)
	}
	if err := w.AppendTo(name); err != nil {
		t.Fatalf("AppendTo: %v", err)
	}

	b, err := Open(name)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer b.Close()

	data, ok := b.Find("main.js")
	if !ok || string(data) != "payload" {
		t.Errorf("Find(main.js) = %q, %v", data, ok)
	}
	if b.Entry() != "main.js" {
		t.Errorf("Entry() = %q", b.Entry())
	}
}

func TestOpenPlainFileIsErrNoBundle(t *testing.T) {
	name := filepath.Join(t.TempDir(), "plain")
	if err := os.WriteFile(name, []byte("just some bytes, no container here"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(name); !errors.Is(err, ErrNoBundle) {
		t.Errorf("err = %v, want ErrNoBundle", err)
	}
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	exe := filepath.Join(dir, "app")
	if err := os.WriteFile(exe, []byte("binary"), 0o755); err != nil {
		t.Fatal(err)
	}

	t.Run("nothing found", func(t *testing.T) {
		b, err := Discover(exe)
		if err != nil || b != nil {
			t.Errorf("Discover = %v, %v; want nil, nil", b, err)
		}
	})

	bundlePath := filepath.Join(dir, "extra.bundle")
	w := NewWriter()
	if err := w.Add("main.js", []byte("x")); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteFile(bundlePath); err != nil {
		t.Fatal(err)
	}

	t.Run("env override", func(t *testing.T) {
		t.Setenv(EnvBundleOverride, bundlePath)
		b, err := Discover(exe)
		if err != nil {
			t.Fatalf("Discover: %v", err)
		}
		defer b.Close()
		if !b.Contains("main.js") {
			t.Error("override bundle not loaded")
		}
	})

	t.Run("sidecar", func(t *testing.T) {
		sidecar := filepath.Join(dir, "app"+SidecarSuffix)
		if err := w.WriteFile(sidecar); err != nil {
			t.Fatal(err)
		}
		b, err := Discover(exe)
		if err != nil {
			t.Fatalf("Discover: %v", err)
		}
		defer b.Close()
		if !b.Contains("main.js") {
			t.Error("sidecar bundle not loaded")
		}
	})

	t.Run("embedded wins over nothing", func(t *testing.T) {
		embedded := filepath.Join(dir, "embedded")
		if err := os.WriteFile(embedded, []byte("binary"), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := w.AppendTo(embedded); err != nil {
			t.Fatal(err)
		}
		b, err := Discover(embedded)
		if err != nil {
			t.Fatalf("Discover: %v", err)
		}
		defer b.Close()
		if !b.Contains("main.js") {
			t.Error("embedded bundle not loaded")
		}
	})
}

func TestVFSBundleFirst(t *testing.T) {
	dir := t.TempDir()
	onDisk := filepath.Join(dir, "shadowed.js")
	if err := os.WriteFile(onDisk, []byte("disk"), 0o644); err != nil {
		t.Fatal(err)
	}

	data := buildBundle(t, "", map[string][]byte{
		NormalizePath(onDisk): []byte("bundled"),
	})
	b, err := Read(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatal(err)
	}
	v := NewVFS(b)

	got, err := v.ReadFile(onDisk)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "bundled" {
		t.Errorf("ReadFile = %q, want bundle to shadow disk", got)
	}

	// Paths outside the bundle fall through to the real filesystem.
	other := filepath.Join(dir, "other.js")
	if err := os.WriteFile(other, []byte("disk only"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err = v.ReadFile(other)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "disk only" {
		t.Errorf("ReadFile = %q", got)
	}
}

func TestVFSNilBundle(t *testing.T) {
	v := NewVFS(nil)
	if v.Contains("anything") {
		t.Error("Contains on nil bundle")
	}
	if _, err := v.ReadFile(filepath.Join(t.TempDir(), "missing.js")); err == nil {
		t.Error("expected error for missing file")
	}
}
