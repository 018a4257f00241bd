// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package crash installs a last-resort termination signal reporter. It
// writes a short diagnostic to stderr using a raw fd write, which stays safe
// even when the process's buffered output paths are suspect, then re-raises
// the default disposition so the exit status is conventional.
package crash

import (
	"os"
	"os/signal"
	"syscall"
)

// EnvNativeCrash, when set to a non-empty value, disables the reporter so
// native debuggers see the original signal undisturbed.
const EnvNativeCrash = "APPHOST_NATIVE_CRASH"

// Install starts the reporter goroutine. Safe to call once per process.
func Install() {
	if os.Getenv(EnvNativeCrash) != "" {
		return
	}

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		sig := <-ch
		writeDiag("apphost: caught signal " + sig.String() + ", shutting down\n")
		signal.Stop(ch)
		// Re-raise so the process exits with the conventional status.
		p, err := os.FindProcess(os.Getpid())
		if err == nil {
			_ = p.Signal(sig)
		}
	}()
}

// Notify forwards termination signals to ch, respecting the native-crash
// escape hatch (in which case ch never receives).
func Notify(ch chan<- os.Signal) {
	if os.Getenv(EnvNativeCrash) != "" {
		return
	}
	signal.Notify(ch, syscall.SIGTERM, syscall.SIGINT)
}
