// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package host

import (
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/joeycumines/logiface"
)

// ReloadState is the hot-reload controller's lifecycle state.
type ReloadState uint32

const (
	// ReloadIdle indicates no watch is installed.
	ReloadIdle ReloadState = iota
	// ReloadWatching indicates the entry script is being watched.
	ReloadWatching
	// ReloadPending indicates a change was observed and a reload will run at
	// the next tick boundary. Further changes collapse into the same pending
	// reload.
	ReloadPending
	// ReloadReloading indicates the reload is executing on the loop thread.
	ReloadReloading
)

// String returns a human-readable representation of the state.
func (s ReloadState) String() string {
	switch s {
	case ReloadIdle:
		return "Idle"
	case ReloadWatching:
		return "Watching"
	case ReloadPending:
		return "Pending"
	case ReloadReloading:
		return "Reloading"
	default:
		return "Unknown"
	}
}

// reloadController watches the entry script on disk and raises a pending
// flag when it changes. Reload execution itself happens on the loop thread,
// at a tick boundary; the controller only signals.
//
// The watch is installed on the script's directory rather than the file,
// because editors commonly save by rename-replace, which would silently
// detach a file-level watch.
type reloadController struct {
	log  *logiface.Logger[logiface.Event]
	wake chan<- struct{}

	state   atomic.Uint32
	pending atomic.Bool

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	dir     string
	target  string // absolute path of the watched script

	stopOnce sync.Once
}

func newReloadController(log *logiface.Logger[logiface.Event], wake chan<- struct{}) *reloadController {
	return &reloadController{log: log, wake: wake}
}

// State reports the controller's current state.
func (r *reloadController) State() ReloadState {
	return ReloadState(r.state.Load())
}

// watch installs a watch on path, replacing any previous subscription
// wholesale. The first call starts the watcher goroutine.
func (r *reloadController) watch(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	dir := filepath.Dir(abs)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.watcher == nil {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			return err
		}
		r.watcher = w
		go r.run(w)
	}

	if r.dir != dir {
		if r.dir != "" {
			_ = r.watcher.Remove(r.dir)
		}
		if err := r.watcher.Add(dir); err != nil {
			return err
		}
		r.dir = dir
	}
	r.target = abs

	r.state.Store(uint32(ReloadWatching))
	return nil
}

// run consumes watcher events until the watcher closes. Changes to anything
// other than the watched script are ignored.
func (r *reloadController) run(w *fsnotify.Watcher) {
	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			r.mu.Lock()
			target := r.target
			r.mu.Unlock()
			if target == "" || ev.Name != target {
				continue
			}
			r.signal(target)
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			r.log.Warning().
				Err(err).
				Log("hot reload watcher error")
		}
	}
}

// signal raises the pending flag and wakes the loop. Repeated changes before
// the loop consumes the flag collapse into one reload.
func (r *reloadController) signal(target string) {
	if r.pending.CompareAndSwap(false, true) {
		r.state.Store(uint32(ReloadPending))
		r.log.Info().
			Str("path", target).
			Log("script change detected")
	}
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// consumePending atomically claims a pending reload. Called by the loop at
// tick boundaries; returns true at most once per raised flag.
func (r *reloadController) consumePending() bool {
	if !r.pending.CompareAndSwap(true, false) {
		return false
	}
	r.state.Store(uint32(ReloadReloading))
	return true
}

// markWatching returns the state to Watching after a reload attempt, if a
// watch is still installed.
func (r *reloadController) markWatching() {
	r.mu.Lock()
	installed := r.dir != ""
	r.mu.Unlock()
	if installed {
		r.state.CompareAndSwap(uint32(ReloadReloading), uint32(ReloadWatching))
	}
}

// stop tears the watcher down. Idempotent.
func (r *reloadController) stop() {
	r.stopOnce.Do(func() {
		r.mu.Lock()
		w := r.watcher
		r.watcher = nil
		r.dir = ""
		r.target = ""
		r.mu.Unlock()
		if w != nil {
			_ = w.Close()
		}
		r.state.Store(uint32(ReloadIdle))
	})
}
