// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package host

import (
	"time"

	"github.com/joeycumines/go-apphost/bundle"
	"github.com/joeycumines/logiface"
)

// Option configures a Host instance. Options are applied in order during
// New.
type Option func(*options)

type options struct {
	log           *logiface.Logger[logiface.Event]
	platform      Platform
	vfs           *bundle.VFS
	now           func() time.Time
	workers       int
	frameInterval time.Duration
	hotReload     bool
}

func resolveOptions(opts []Option) *options {
	o := &options{
		workers:       4,
		frameInterval: 16 * time.Millisecond,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(o)
	}
	if o.vfs == nil {
		o.vfs = bundle.NewVFS(nil)
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o
}

// WithLogger sets the structured logger. A nil logger disables logging.
func WithLogger(log *logiface.Logger[logiface.Event]) Option {
	return func(o *options) {
		o.log = log
	}
}

// WithWorkers sets the background worker pool size (minimum 1).
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

// WithPlatform attaches a windowing/event source, pumped at the start of
// every tick. Without one the host runs headless and terminates by
// idle-drain.
func WithPlatform(p Platform) Option {
	return func(o *options) {
		o.platform = p
	}
}

// WithVFS sets the virtual filesystem consulted by every file-facing read.
func WithVFS(v *bundle.VFS) Option {
	return func(o *options) {
		o.vfs = v
	}
}

// WithBundle is shorthand for WithVFS(bundle.NewVFS(b)).
func WithBundle(b *bundle.Bundle) Option {
	return func(o *options) {
		o.vfs = bundle.NewVFS(b)
	}
}

// WithFrameInterval caps the inter-tick sleep while animation callbacks are
// pending. Default 16ms.
func WithFrameInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.frameInterval = d
		}
	}
}

// WithHotReload enables watching the entry script and reloading on change.
func WithHotReload(enabled bool) Option {
	return func(o *options) {
		o.hotReload = enabled
	}
}

// WithNowFunc overrides the clock (for testing only).
func WithNowFunc(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}
