// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package host implements a cooperative, single-threaded frame scheduler for
// embedded script engines. All script execution happens on the goroutine that
// called [Host.Run]; background work runs on a pool and crosses back only
// through a completion queue drained once per tick.
//
// Each tick executes a fixed sequence: platform pump, substrate poll, due
// timers, background completions, microtask drain, animation batch, then
// frame-scope release. Work enqueued during a tick is never visible before
// the following tick.
package host

import (
	"bytes"
	"context"
	"runtime"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/go-apphost/bundle"
	"github.com/joeycumines/go-apphost/internal/asyncio"
	"github.com/joeycumines/logiface"
)

// idleDrainTicks is the number of consecutive idle ticks after which a
// headless host terminates on its own.
const idleDrainTicks = 3

// substrateDrainTimeout bounds the wait for in-flight background work during
// shutdown.
const substrateDrainTimeout = time.Second

// timerReg is the loop-side record of a scheduled timer.
type timerReg struct {
	cb        Handle
	repeating bool
}

// animReg is a registered animation-frame callback. Cancellation is a flag
// rather than removal so a callback cancelled mid-batch is skipped without
// disturbing the snapshot.
type animReg struct {
	id        uint64
	cb        Handle
	cancelled bool
}

// Host drives a script engine from a single loop goroutine. Construct with
// [New], start with [Run], stop with [Shutdown] (or, headless, let the
// idle-drain finish it).
//
// Methods that touch script state (timers, animation frames, microtasks,
// script loading) must be called from the loop goroutine, which in practice
// means from inside a script callback. Shutdown and State are safe from any
// goroutine.
type Host struct {
	// Prevent copying
	_ [0]func()

	log      *logiface.Logger[logiface.Event]
	engine   Engine
	sub      *asyncio.Substrate
	handles  *Table
	vfs      *bundle.VFS
	platform Platform
	reload   *reloadController

	now           func() time.Time
	frameInterval time.Duration

	state           hostState
	quit            atomic.Bool
	loopGoroutineID atomic.Uint64

	anchor    time.Time
	tickCount uint64

	// Loop-owned bookkeeping. Single-writer: only the loop goroutine touches
	// these once Run has started.
	timers    map[uint64]*timerReg
	anim      []*animReg
	animByID  map[uint64]*animReg
	nextAnim  uint64
	work      map[uint64]Handle
	nextToken uint64
	frame     *Scope
	entryPath string

	microMu sync.Mutex
	micro   []func()

	// extWake interrupts the inter-tick sleep for off-loop events (Shutdown).
	extWake chan struct{}

	shutdownOnce sync.Once
	done         chan struct{}
}

// New creates a host around the given engine. The engine must not be shared
// with another host.
func New(engine Engine, opts ...Option) *Host {
	o := resolveOptions(opts)

	h := &Host{
		log:           o.log,
		engine:        engine,
		handles:       NewTable(),
		vfs:           o.vfs,
		platform:      o.platform,
		now:           o.now,
		frameInterval: o.frameInterval,
		timers:        make(map[uint64]*timerReg),
		animByID:      make(map[uint64]*animReg),
		work:          make(map[uint64]Handle),
		extWake:       make(chan struct{}, 1),
		done:          make(chan struct{}),
	}

	// Anchored at construction so manually driven ticks have timestamps;
	// Run re-anchors so scripted time starts at the loop start.
	h.anchor = o.now()

	h.sub = asyncio.New(o.workers, o.log)
	h.sub.SetNowFunc(o.now)

	if o.hotReload {
		h.reload = newReloadController(o.log, h.extWake)
	}

	return h
}

// State reports the host's lifecycle state.
func (h *Host) State() State {
	return h.state.Load()
}

// VFS returns the host's virtual filesystem.
func (h *Host) VFS() *bundle.VFS {
	return h.vfs
}

// Handles returns the handle table. Exposed for engine bindings.
func (h *Host) Handles() *Table {
	return h.handles
}

// Frame returns the current tick's frame scope, or nil between ticks. Values
// tracked in it are released at the end of the tick unless escaped. Engines
// whose values are GC-managed on the Go heap (goja) never need it; it exists
// for bindings to engines with explicit protect/unprotect reference counting,
// where every value surfaced to Go during a tick must be scoped or escaped.
func (h *Host) Frame() *Scope {
	return h.frame
}

// Done is closed once the shutdown sequence completes.
func (h *Host) Done() <-chan struct{} {
	return h.done
}

// ReloadState reports the hot-reload controller's state, or ReloadIdle when
// hot reload is disabled.
func (h *Host) ReloadState() ReloadState {
	if h.reload == nil {
		return ReloadIdle
	}
	return h.reload.State()
}

// Run executes the loop on the calling goroutine until shutdown is requested,
// ctx is cancelled, the platform requests quit, or (headless) the loop
// idle-drains. It performs the full shutdown sequence before returning.
func (h *Host) Run(ctx context.Context) error {
	if gid := h.loopGoroutineID.Load(); gid != 0 && gid == getGoroutineID() {
		return ErrReentrantRun
	}
	if !h.state.TryTransition(StateCreated, StateRunning) {
		if h.state.Load() == StateRunning {
			return ErrHostRunning
		}
		return ErrHostTerminated
	}
	if ctx == nil {
		ctx = context.Background()
	}

	h.loopGoroutineID.Store(getGoroutineID())
	h.anchor = h.now()

	idle := 0
	for {
		select {
		case <-ctx.Done():
			h.quit.Store(true)
		default:
		}
		if h.quit.Load() {
			break
		}

		if h.reload != nil && h.reload.consumePending() {
			if err := h.doReload(); err != nil {
				h.log.Err().
					Str("path", h.entryPath).
					Err(err).
					Log("script reload failed, keeping previous program")
			}
		}

		h.Tick()

		// A quit raised during the tick (platform pump, script callback)
		// still let the tick run to completion.
		if h.quit.Load() {
			break
		}

		if h.platform == nil {
			if h.idle() {
				idle++
				if idle >= idleDrainTicks {
					h.log.Debug().
						Uint64("ticks", h.tickCount).
						Log("idle drain complete")
					break
				}
				continue // no sleep while counting down the drain
			}
			idle = 0
		}

		h.sleep(ctx)
	}

	h.state.TryTransition(StateRunning, StateTerminating)
	h.runShutdown()
	return nil
}

// Tick runs one full scheduler tick. Exposed so tests and bespoke embedders
// can drive the loop manually; Run calls it in a loop. It must only be called
// from one goroutine, and never reentrantly.
func (h *Host) Tick() {
	h.tickCount++
	now := h.now()

	// 1. Platform pump.
	if h.platform != nil && h.platform.Pump() {
		h.quit.Store(true)
	}

	h.frame = h.handles.NewScope()

	// 2. One non-blocking poll. Completions that land after this point wait
	// for the next tick.
	completions := h.sub.Poll()

	// 3. Due timers, in deadline order.
	for _, id := range h.sub.DueTimers(now) {
		reg, ok := h.timers[id]
		if !ok {
			continue // cleared synchronously before it could fire
		}
		if !reg.repeating {
			delete(h.timers, id)
		}
		cb, _ := h.handles.Value(reg.cb)
		h.safeCall("timer", cb)
		if !reg.repeating {
			_ = h.handles.Release(reg.cb)
		}
	}

	// 4. Background completions, submission order within each kind.
	if len(completions) > 0 {
		sort.SliceStable(completions, func(i, j int) bool {
			if completions[i].Kind != completions[j].Kind {
				return completions[i].Kind < completions[j].Kind
			}
			return completions[i].Seq < completions[j].Seq
		})
		for _, c := range completions {
			cbHandle, ok := h.work[c.Token]
			if !ok {
				continue // dropped by reload or shutdown teardown
			}
			delete(h.work, c.Token)
			cb, _ := h.handles.Value(cbHandle)
			h.safeCall(c.Kind.String(), cb, c.Payload, c.Err)
			_ = h.handles.Release(cbHandle)
		}
	}

	// 5. Microtask drain, to quiescence: microtasks queued by microtasks run
	// in the same tick.
	for {
		h.microMu.Lock()
		q := h.micro
		h.micro = nil
		h.microMu.Unlock()
		if len(q) == 0 {
			break
		}
		for _, fn := range q {
			h.safeRun("microtask", fn)
		}
	}
	if err := h.engine.DrainMicrotasks(); err != nil {
		h.log.Err().
			Err(err).
			Log("engine microtask drain failed")
	}

	// 6. Animation batch: the pending set is snapshotted up front and every
	// callback in it observes the same timestamp. Frames requested during the
	// batch land in the next tick.
	if len(h.anim) > 0 {
		batch := h.anim
		h.anim = nil
		ts := h.timestamp(now)
		for _, reg := range batch {
			if reg.cancelled {
				continue
			}
			delete(h.animByID, reg.id)
			cb, _ := h.handles.Value(reg.cb)
			h.safeCall("animation", cb, ts)
			_ = h.handles.Release(reg.cb)
		}
	}

	// 7. Release frame-scoped handles.
	h.frame.ReleaseAll()
	h.frame = nil
}

// idle reports whether the host has no pending or in-flight work of any kind.
func (h *Host) idle() bool {
	if len(h.timers) > 0 || len(h.anim) > 0 || len(h.work) > 0 {
		return false
	}
	if h.sub.InFlight() != 0 || h.sub.Buffered() != 0 {
		return false
	}
	h.microMu.Lock()
	n := len(h.micro)
	h.microMu.Unlock()
	return n == 0
}

// sleep blocks between ticks until the next deadline, a completion wake, an
// external wake, or ctx cancellation.
func (h *Host) sleep(ctx context.Context) {
	d := h.frameInterval
	if h.platform == nil && len(h.anim) == 0 {
		if next, ok := h.sub.NextDeadline(); ok {
			d = next.Sub(h.now())
		}
	}
	if d <= 0 {
		return
	}

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-h.sub.Wake():
	case <-h.extWake:
	case <-ctx.Done():
	}
}

// timestamp converts an absolute time to milliseconds since loop start. The
// value is monotonic across the life of the host, reload included.
func (h *Host) timestamp(now time.Time) float64 {
	return float64(now.Sub(h.anchor)) / float64(time.Millisecond)
}

// QueueMicrotask schedules fn to run in the current or next tick's microtask
// drain, after timers and completions.
func (h *Host) QueueMicrotask(fn func()) {
	if fn == nil {
		return
	}
	h.microMu.Lock()
	h.micro = append(h.micro, fn)
	h.microMu.Unlock()
}

// RequestAnimationFrame registers cb for the next animation batch and returns
// its cancellation id. Callbacks receive a single float64 argument: the batch
// timestamp in milliseconds since loop start.
func (h *Host) RequestAnimationFrame(cb any) uint64 {
	h.nextAnim++
	reg := &animReg{id: h.nextAnim, cb: h.handles.Protect(cb)}
	h.anim = append(h.anim, reg)
	h.animByID[reg.id] = reg
	return reg.id
}

// CancelAnimationFrame cancels a pending animation callback. It is effective
// even from within the same batch, for callbacks that have not yet run.
// Returns false if the id is unknown or the callback already ran.
func (h *Host) CancelAnimationFrame(id uint64) bool {
	reg, ok := h.animByID[id]
	if !ok {
		return false
	}
	reg.cancelled = true
	delete(h.animByID, id)
	_ = h.handles.Release(reg.cb)
	return true
}

// LoadScript reads path through the VFS, evaluates it as the entry script,
// and (when hot reload is enabled and the script came from disk) installs a
// file watch on it, replacing any previous watch.
func (h *Host) LoadScript(path string) (any, error) {
	src, err := h.vfs.ReadFile(path)
	if err != nil {
		return nil, err
	}
	v, err := h.engine.Eval(string(src), path)
	if err != nil {
		return nil, err
	}
	h.entryPath = path

	if h.reload != nil && !h.vfs.Contains(path) {
		if err := h.reload.watch(h.vfs.DiskPath(path)); err != nil {
			h.log.Warning().
				Str("path", path).
				Err(err).
				Log("hot reload watch failed")
		}
	}
	return v, nil
}

// EvalScript evaluates source directly, without touching the VFS or the
// reload watch.
func (h *Host) EvalScript(source, name string) (any, error) {
	return h.engine.Eval(source, name)
}

// ReloadScript tears down all scheduled work and re-evaluates the entry
// script. Timer ids and handles issued before the reload are invalid after
// it. Returns ErrNoScript when nothing has been loaded.
func (h *Host) ReloadScript() error {
	if h.entryPath == "" {
		return ErrNoScript
	}
	return h.doReload()
}

// doReload is the reload teardown + re-evaluation. On failure the previous
// watch stays installed so a subsequent save retries.
func (h *Host) doReload() error {
	if h.reload != nil {
		defer h.reload.markWatching()
	}

	h.log.Info().
		Str("path", h.entryPath).
		Log("reloading script")

	h.teardownScheduledWork()
	h.handles.ReleaseAll()
	h.engine.ClearModuleCache()

	src, err := h.vfs.ReadFile(h.entryPath)
	if err != nil {
		return err
	}
	if _, err := h.engine.Eval(string(src), h.entryPath); err != nil {
		return err
	}

	if h.reload != nil && !h.vfs.Contains(h.entryPath) {
		if err := h.reload.watch(h.vfs.DiskPath(h.entryPath)); err != nil {
			h.log.Warning().
				Str("path", h.entryPath).
				Err(err).
				Log("hot reload watch failed")
		}
	}
	return nil
}

// teardownScheduledWork cancels every timer, drops every animation and
// background callback, and clears the microtask queue. Completions for
// dropped work tokens are discarded when they surface.
func (h *Host) teardownScheduledWork() {
	for id, reg := range h.timers {
		_ = h.sub.CancelTimer(id)
		_ = h.handles.Release(reg.cb)
		delete(h.timers, id)
	}
	for _, reg := range h.anim {
		if !reg.cancelled {
			_ = h.handles.Release(reg.cb)
		}
	}
	h.anim = nil
	clear(h.animByID)
	for token, cbHandle := range h.work {
		_ = h.handles.Release(cbHandle)
		delete(h.work, token)
	}
	h.microMu.Lock()
	h.micro = nil
	h.microMu.Unlock()
}

// Shutdown requests termination and waits for the shutdown sequence to
// complete, bounded by ctx. Idempotent; safe from any goroutine. When called
// before Run, the sequence executes on the calling goroutine.
func (h *Host) Shutdown(ctx context.Context) error {
	if h.state.TryTransition(StateCreated, StateTerminating) {
		h.runShutdown()
		return nil
	}

	h.quit.Store(true)
	select {
	case h.extWake <- struct{}{}:
	default:
	}

	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runShutdown executes the shutdown sequence exactly once: stop new work,
// cancel timers and watches, drain background work, release all handles, two
// garbage-collection passes, then release the engine.
func (h *Host) runShutdown() {
	h.shutdownOnce.Do(func() {
		h.state.Store(StateTerminating)

		if h.reload != nil {
			h.reload.stop()
		}

		h.teardownScheduledWork()

		ctx, cancel := context.WithTimeout(context.Background(), substrateDrainTimeout)
		if err := h.sub.Close(ctx); err != nil {
			h.log.Warning().
				Err(err).
				Log("background work did not drain before deadline")
		}
		cancel()

		h.handles.ReleaseAll()

		// Two passes: the first collects script values whose only reference
		// was a handle, the second collects anything their finalizers freed.
		runtime.GC()
		runtime.GC()

		h.engine.Release()

		h.state.Store(StateTerminated)
		close(h.done)

		h.log.Info().
			Uint64("ticks", h.tickCount).
			Log("host terminated")
	})
}

// safeCall invokes a script callback with panic recovery. Faults are logged
// and contained; they never unwind the loop.
func (h *Host) safeCall(origin string, fn any, args ...any) {
	if fn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			h.log.Err().
				Str("origin", origin).
				Interface("panic", r).
				Log("script callback panicked")
		}
	}()
	if _, err := h.engine.Call(fn, args...); err != nil {
		h.log.Err().
			Str("origin", origin).
			Err(err).
			Log("script callback failed")
	}
}

// safeRun invokes a host-side microtask with panic recovery.
func (h *Host) safeRun(origin string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Err().
				Str("origin", origin).
				Interface("panic", r).
				Log("microtask panicked")
		}
	}()
	fn()
}

var goroutinePrefix = []byte("goroutine ")

// getGoroutineID parses the current goroutine's id from a stack trace. Used
// only to reject reentrant Run calls.
func getGoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := buf[:n]
	if !bytes.HasPrefix(b, goroutinePrefix) {
		return 0
	}
	b = b[len(goroutinePrefix):]
	if i := bytes.IndexByte(b, ' '); i >= 0 {
		b = b[:i]
	}
	id, err := strconv.ParseUint(string(b), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
