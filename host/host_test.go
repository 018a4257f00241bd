// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package host

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"
)

// fakeEngine treats Go funcs as script functions: func(args ...any) values
// are callable, everything else is not. Counters are atomic so tests can
// observe them across goroutines.
type fakeEngine struct {
	evals       atomic.Int64
	cacheClears atomic.Int64
	released    atomic.Bool
	evalErr     error
	lastSource  atomic.Value
}

func (e *fakeEngine) Eval(src, name string) (any, error) {
	e.evals.Add(1)
	e.lastSource.Store(src)
	if e.evalErr != nil {
		return nil, e.evalErr
	}
	return src, nil
}

func (e *fakeEngine) Call(fn any, args ...any) (any, error) {
	switch f := fn.(type) {
	case func(args ...any):
		f(args...)
		return nil, nil
	case func():
		f()
		return nil, nil
	default:
		return nil, fmt.Errorf("fake engine: not callable: %T", fn)
	}
}

func (e *fakeEngine) DrainMicrotasks() error { return nil }
func (e *fakeEngine) ClearModuleCache()      { e.cacheClears.Add(1) }
func (e *fakeEngine) Release()               { e.released.Store(true) }

// fakeClock is a manually advanced clock shared between host and substrate.
type fakeClock struct {
	offset atomic.Int64 // nanoseconds since base
	base   time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{base: time.Unix(1000, 0)}
}

func (c *fakeClock) Now() time.Time {
	return c.base.Add(time.Duration(c.offset.Load()))
}

func (c *fakeClock) Advance(d time.Duration) {
	c.offset.Add(int64(d))
}

func newTestHost(t *testing.T, opts ...Option) (*Host, *fakeEngine, *fakeClock) {
	t.Helper()
	engine := &fakeEngine{}
	clock := newFakeClock()
	h := New(engine, append([]Option{
		WithNowFunc(clock.Now),
		WithWorkers(2),
	}, opts...)...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = h.Shutdown(ctx)
	})
	return h, engine, clock
}

// tickUntil drives manual ticks until cond holds, failing at the deadline.
func tickUntil(t *testing.T, h *Host, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not reached")
		}
		h.Tick()
		time.Sleep(time.Millisecond)
	}
}

func TestTickOrdering(t *testing.T) {
	h, _, clock := newTestHost(t)

	var order []string
	record := func(name string) func(args ...any) {
		return func(args ...any) { order = append(order, name) }
	}

	if _, err := h.SetTimer(record("timer"), 0, false); err != nil {
		t.Fatal(err)
	}
	done := make(chan struct{})
	if err := h.SubmitWork(WorkCompute, func() (any, error) {
		defer close(done)
		return "payload", nil
	}, record("work")); err != nil {
		t.Fatal(err)
	}
	<-done
	time.Sleep(50 * time.Millisecond) // let the completion reach the queue
	h.QueueMicrotask(func() { order = append(order, "micro") })
	h.RequestAnimationFrame(record("anim"))

	clock.Advance(time.Millisecond)
	h.Tick()

	want := []string{"timer", "work", "micro", "anim"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestCompletionNeverVisibleInSubmissionTick(t *testing.T) {
	h, _, clock := newTestHost(t)

	var submittedAtTick, deliveredAtTick int
	tick := 0
	delivered := false

	if _, err := h.SetTimer(func(args ...any) {
		submittedAtTick = tick
		if err := h.SubmitWork(WorkCompute, func() (any, error) {
			return nil, nil
		}, func(args ...any) {
			deliveredAtTick = tick
			delivered = true
		}); err != nil {
			t.Error(err)
		}
	}, 0, false); err != nil {
		t.Fatal(err)
	}

	clock.Advance(time.Millisecond)
	deadline := time.Now().Add(5 * time.Second)
	for !delivered {
		if time.Now().After(deadline) {
			t.Fatal("completion never delivered")
		}
		tick++
		h.Tick()
		time.Sleep(time.Millisecond)
	}

	if deliveredAtTick <= submittedAtTick {
		t.Errorf("delivered at tick %d, submitted at tick %d", deliveredAtTick, submittedAtTick)
	}
}

func TestWorkOrderedWithinKind(t *testing.T) {
	h, _, _ := newTestHost(t)

	var got []int
	const n = 20
	gate := make(chan struct{})
	var remaining atomic.Int64
	remaining.Store(n)
	for i := 0; i < n; i++ {
		i := i
		if err := h.SubmitWork(WorkCompute, func() (any, error) {
			<-gate // hold all jobs so pool order scrambles
			remaining.Add(-1)
			return i, nil
		}, func(args ...any) {
			got = append(got, args[0].(int))
		}); err != nil {
			t.Fatal(err)
		}
	}
	close(gate)
	// Wait for every completion to be queued before the single poll.
	deadline := time.Now().Add(5 * time.Second)
	for remaining.Load() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("jobs did not finish")
		}
		time.Sleep(time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)

	tickUntil(t, h, func() bool { return len(got) == n })
	for i := 0; i < n; i++ {
		if got[i] != i {
			t.Fatalf("got = %v, want submission order", got)
		}
	}
}

func TestMicrotaskQuiescence(t *testing.T) {
	h, _, _ := newTestHost(t)

	var order []string
	h.QueueMicrotask(func() {
		order = append(order, "first")
		h.QueueMicrotask(func() {
			order = append(order, "nested")
		})
	})

	h.Tick()
	if len(order) != 2 || order[1] != "nested" {
		t.Errorf("order = %v, want nested microtask in same tick", order)
	}
}

func TestAnimationBatchSnapshotAndTimestamp(t *testing.T) {
	h, _, clock := newTestHost(t)

	var stamps []float64
	var nextRan bool
	h.RequestAnimationFrame(func(args ...any) {
		stamps = append(stamps, args[0].(float64))
		h.RequestAnimationFrame(func(args ...any) { nextRan = true })
	})
	h.RequestAnimationFrame(func(args ...any) {
		stamps = append(stamps, args[0].(float64))
	})

	clock.Advance(100 * time.Millisecond)
	h.Tick()

	if len(stamps) != 2 {
		t.Fatalf("ran %d callbacks, want 2", len(stamps))
	}
	if stamps[0] != stamps[1] {
		t.Errorf("timestamps differ within batch: %v vs %v", stamps[0], stamps[1])
	}
	if nextRan {
		t.Error("frame requested during batch ran in the same tick")
	}

	clock.Advance(16 * time.Millisecond)
	h.Tick()
	if !nextRan {
		t.Error("frame requested during batch did not run next tick")
	}
}

func TestCancelAnimationFrameMidBatch(t *testing.T) {
	h, _, _ := newTestHost(t)

	var secondRan bool
	var secondID uint64
	h.RequestAnimationFrame(func(args ...any) {
		if !h.CancelAnimationFrame(secondID) {
			t.Error("cancel of pending frame failed")
		}
	})
	secondID = h.RequestAnimationFrame(func(args ...any) { secondRan = true })

	h.Tick()
	if secondRan {
		t.Error("cancelled frame ran")
	}
	if h.CancelAnimationFrame(secondID) {
		t.Error("second cancel succeeded")
	}
}

func TestIdleDrainTerminatesHeadless(t *testing.T) {
	h, engine, _ := newTestHost(t)

	done := make(chan error, 1)
	go func() { done <- h.Run(context.Background()) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("headless host did not idle-drain")
	}

	if got := h.State(); got != StateTerminated {
		t.Errorf("State = %v", got)
	}
	if !engine.released.Load() {
		t.Error("engine not released")
	}
}

type quitPump struct {
	pumps atomic.Int64
}

func (p *quitPump) Pump() bool {
	return p.pumps.Add(1) == 1
}

func TestQuitStillFinishesTick(t *testing.T) {
	pump := &quitPump{}
	engine := &fakeEngine{}
	clock := newFakeClock()

	var timerRan bool
	h := New(engine,
		WithNowFunc(clock.Now),
		WithPlatform(pump),
	)
	if _, err := h.SetTimer(func(args ...any) { timerRan = true }, 0, false); err != nil {
		t.Fatal(err)
	}
	clock.Advance(time.Millisecond)

	if err := h.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !timerRan {
		t.Error("tick was abandoned on quit")
	}
	if pump.pumps.Load() != 1 {
		t.Errorf("pumped %d times, want 1", pump.pumps.Load())
	}
	if h.State() != StateTerminated {
		t.Errorf("State = %v", h.State())
	}
}

func TestRunStateErrors(t *testing.T) {
	h, _, _ := newTestHost(t)

	var reentrant error
	if _, err := h.SetTimer(func(args ...any) {
		reentrant = h.Run(context.Background())
	}, 0, false); err != nil {
		t.Fatal(err)
	}
	if err := h.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if reentrant != ErrReentrantRun {
		t.Errorf("reentrant Run err = %v", reentrant)
	}
	if err := h.Run(context.Background()); err != ErrHostTerminated {
		t.Errorf("Run after termination err = %v", err)
	}
}

func TestShutdownIdempotent(t *testing.T) {
	h, engine, _ := newTestHost(t)

	ctx := context.Background()
	if err := h.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := h.Shutdown(ctx); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
	if h.State() != StateTerminated {
		t.Errorf("State = %v", h.State())
	}
	if !engine.released.Load() {
		t.Error("engine not released")
	}

	// Everything is refused after termination.
	if _, err := h.SetTimer(func(args ...any) {}, 0, false); err != ErrHostTerminated {
		t.Errorf("SetTimer err = %v", err)
	}
	if err := h.SubmitWork(WorkCompute, func() (any, error) { return nil, nil }, nil); err != ErrHostTerminated {
		t.Errorf("SubmitWork err = %v", err)
	}
}

func TestShutdownCancelsScheduledWork(t *testing.T) {
	h, _, _ := newTestHost(t)

	if _, err := h.SetTimer(func(args ...any) {}, time.Hour, false); err != nil {
		t.Fatal(err)
	}
	h.RequestAnimationFrame(func(args ...any) {})
	h.QueueMicrotask(func() {})

	if err := h.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
	if n := h.Handles().Len(); n != 0 {
		t.Errorf("%d handles leaked through shutdown", n)
	}
}

func TestContextCancelStopsRun(t *testing.T) {
	h, _, _ := newTestHost(t)

	// A repeating timer keeps the host from idle-draining.
	if _, err := h.SetTimer(func(args ...any) {}, 10*time.Millisecond, true); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop on context cancellation")
	}
}
