// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package bundle

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// EnvBundleOverride names the environment variable that, when set, points at
// an external bundle file checked first during discovery.
const EnvBundleOverride = "APPHOST_BUNDLE"

// SidecarSuffix is the extension of sidecar bundle files.
const SidecarSuffix = ".bundle"

// Discover locates the active bundle for the given executable, trying in
// order:
//
//  1. the APPHOST_BUNDLE environment variable, naming an external file;
//  2. a same-named sidecar file next to the executable;
//  3. the platform application-bundle resources sidecar (darwin only);
//  4. data appended directly to the executable (self-extracting form).
//
// A candidate that exists but fails to parse degrades to "no candidate" and
// discovery continues. Discover returns (nil, nil) when nothing is found;
// it never returns ErrNoBundle.
func Discover(exePath string) (*Bundle, error) {
	for _, candidate := range candidates(exePath) {
		if candidate == "" {
			continue
		}
		b, err := Open(candidate)
		if err == nil {
			return b, nil
		}
	}
	return nil, nil
}

// candidates returns the discovery paths in priority order.
func candidates(exePath string) []string {
	out := []string{os.Getenv(EnvBundleOverride)}

	if exePath != "" {
		base := strings.TrimSuffix(filepath.Base(exePath), filepath.Ext(filepath.Base(exePath)))
		dir := filepath.Dir(exePath)

		out = append(out, filepath.Join(dir, base+SidecarSuffix))

		if runtime.GOOS == "darwin" {
			out = append(out, filepath.Join(dir, "..", "Resources", base+SidecarSuffix))
		}

		// Self-extracting form: re-run the footer algorithm against the
		// executable itself.
		out = append(out, exePath)
	}

	return out
}
