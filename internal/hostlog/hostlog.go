// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package hostlog builds the process-wide structured logger: stumpy-encoded
// JSON lines behind the logiface facade.
package hostlog

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
	"github.com/mattn/go-isatty"
)

// New builds a logger writing JSON lines to w at the given level. When w is
// a terminal the time field is dropped, since the terminal session already
// conveys recency.
func New(w io.Writer, level logiface.Level) *logiface.Logger[logiface.Event] {
	stumpyOpts := []stumpy.Option{stumpy.WithWriter(w)}
	if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		stumpyOpts = append(stumpyOpts, stumpy.WithTimeField(``))
	}
	return stumpy.L.New(
		stumpy.L.WithStumpy(stumpyOpts...),
		logiface.WithLevel[*stumpy.Event](level),
	).Logger()
}

// Default returns a stderr logger at informational level.
func Default() *logiface.Logger[logiface.Event] {
	return New(os.Stderr, logiface.LevelInformational)
}

// ParseLevel maps a configuration string to a logiface level.
func ParseLevel(s string) (logiface.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return logiface.LevelTrace, nil
	case "debug":
		return logiface.LevelDebug, nil
	case "", "info", "informational":
		return logiface.LevelInformational, nil
	case "notice":
		return logiface.LevelNotice, nil
	case "warn", "warning":
		return logiface.LevelWarning, nil
	case "err", "error":
		return logiface.LevelError, nil
	case "crit", "critical":
		return logiface.LevelCritical, nil
	default:
		return logiface.LevelDisabled, fmt.Errorf("hostlog: unknown log level %q", s)
	}
}
