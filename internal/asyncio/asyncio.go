// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package asyncio implements the native async I/O substrate backing the host
// event loop: one-shot and repeating timers, a bounded background worker pool,
// and a thread-safe completion queue.
//
// The substrate never calls into script-engine state. Work closures run on
// pool goroutines and communicate results exclusively through the completion
// queue, which the loop thread drains with a single non-blocking [Substrate.Poll]
// pass per tick. A completion enqueued during a tick is therefore never visible
// before the tick that follows it.
package asyncio

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/logiface"
)

// Standard errors.
var (
	// ErrSubstrateClosed is returned when work is submitted after Close.
	ErrSubstrateClosed = errors.New("asyncio: substrate is closed")

	// ErrSubstrateOverloaded is returned when the work queue is full.
	ErrSubstrateOverloaded = errors.New("asyncio: work queue is full")

	// ErrTimerNotFound is returned when cancelling an unknown or already
	// completed timer.
	ErrTimerNotFound = errors.New("asyncio: timer not found")
)

// minRepeatPeriod is the floor applied to repeating timer periods.
const minRepeatPeriod = time.Millisecond

// Kind classifies a completion by the subsystem that produced it.
type Kind uint8

const (
	KindTimer Kind = iota
	KindFile
	KindNetwork
	KindCompute
	kindCount
)

// String returns a human-readable representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindTimer:
		return "timer"
	case KindFile:
		return "file"
	case KindNetwork:
		return "network"
	case KindCompute:
		return "compute"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Completion is a result delivered from background work to the loop thread.
// It carries either a payload or an error, never both, and is consumed
// exactly once.
type Completion struct {
	Payload any
	Err     error
	Token   uint64
	Seq     uint64
	Kind    Kind
}

// job is a unit of background work queued for the pool.
type job struct {
	work  func() (any, error)
	token uint64
	seq   uint64
	kind  Kind
}

// timerEntry is a scheduled timer in the min-heap.
type timerEntry struct {
	when      time.Time
	period    time.Duration
	id        uint64
	repeating bool
}

// timerHeap is a min-heap of timer entries ordered by deadline.
type timerHeap []*timerEntry

func (h timerHeap) Len() int           { return len(h) }
func (h timerHeap) Less(i, j int) bool { return h[i].when.Before(h[j].when) }
func (h timerHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *timerHeap) Push(x any) {
	*h = append(*h, x.(*timerEntry))
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return x
}

// Substrate combines timers, a bounded worker pool, and a mutex-guarded
// completion queue behind a non-blocking polling interface.
//
// All methods are safe for concurrent use. The loop thread is expected to be
// the sole consumer of Poll and DueTimers.
type Substrate struct {
	// Prevent copying
	_ [0]func()

	log *logiface.Logger[logiface.Event]
	now func() time.Time

	// Completion queue. ready is swapped wholesale by Poll; completions
	// pushed after the swap wait for the next poll pass.
	mu        sync.Mutex
	ready     []Completion
	seqByKind [kindCount]uint64

	// Timer state. cancelled resolves the fire-vs-cancel race: ids land in
	// the set synchronously on CancelTimer and are checked at dequeue time.
	timersMu  sync.Mutex
	timers    timerHeap
	live      map[uint64]*timerEntry
	cancelled map[uint64]struct{}

	nextTimerID atomic.Uint64
	inflight    atomic.Int64
	closed      atomic.Bool

	jobs      chan job
	wg        sync.WaitGroup
	closeOnce sync.Once

	// wake is signalled (best-effort, capacity 1) whenever a completion
	// lands, so a sleeping loop can cut its nap short.
	wake chan struct{}
}

// New creates a substrate with the given number of pool workers (minimum 1).
// A nil logger disables logging.
func New(workers int, log *logiface.Logger[logiface.Event]) *Substrate {
	if workers < 1 {
		workers = 1
	}

	s := &Substrate{
		log:       log,
		now:       time.Now,
		live:      make(map[uint64]*timerEntry),
		cancelled: make(map[uint64]struct{}),
		jobs:      make(chan job, 1024),
		wake:      make(chan struct{}, 1),
	}

	s.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go s.worker()
	}

	return s
}

// SetNowFunc overrides the clock (for testing only).
func (s *Substrate) SetNowFunc(now func() time.Time) {
	s.now = now
}

// Wake returns a channel that receives a signal when a completion is
// enqueued. Used by the loop to interrupt its inter-tick sleep.
func (s *Substrate) Wake() <-chan struct{} {
	return s.wake
}

func (s *Substrate) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// worker executes queued jobs until the job channel closes.
func (s *Substrate) worker() {
	defer s.wg.Done()
	for j := range s.jobs {
		s.execute(j)
	}
}

// execute runs a single job with panic recovery and enqueues its completion.
func (s *Substrate) execute(j job) {
	defer s.inflight.Add(-1)

	var payload any
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("asyncio: background work panicked: %v", r)
				s.log.Err().
					Str("kind", j.kind.String()).
					Uint64("token", j.token).
					Log(err.Error())
			}
		}()
		payload, err = j.work()
	}()

	if err != nil {
		payload = nil
	}

	s.mu.Lock()
	if !s.closed.Load() {
		s.ready = append(s.ready, Completion{
			Kind:    j.kind,
			Seq:     j.seq,
			Token:   j.token,
			Payload: payload,
			Err:     err,
		})
	}
	s.mu.Unlock()
	s.notify()
}

// Submit queues background work for execution on the pool. The closure must
// not touch script-engine state; its result crosses back to the loop thread
// only through the completion queue. The token identifies the target callback
// on the host side.
func (s *Substrate) Submit(kind Kind, work func() (any, error), token uint64) error {
	if work == nil {
		return nil
	}
	if s.closed.Load() {
		return ErrSubstrateClosed
	}

	s.mu.Lock()
	seq := s.seqByKind[kind]
	s.seqByKind[kind]++
	s.mu.Unlock()

	s.inflight.Add(1)
	select {
	case s.jobs <- job{work: work, kind: kind, token: token, seq: seq}:
		return nil
	default:
		s.inflight.Add(-1)
		return ErrSubstrateOverloaded
	}
}

// Poll performs one non-blocking pass over the completion queue, returning
// every completion enqueued before the call. Completions arriving afterwards
// are buffered for the next pass.
func (s *Substrate) Poll() []Completion {
	s.mu.Lock()
	out := s.ready
	s.ready = nil
	s.mu.Unlock()
	return out
}

// Buffered returns the number of completions waiting for the next poll pass.
func (s *Substrate) Buffered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ready)
}

// InFlight returns the number of submitted jobs that have not yet enqueued
// their completion.
func (s *Substrate) InFlight() int64 {
	return s.inflight.Load()
}

// StartTimer schedules a timer and returns its id. Repeating timers fire
// every period, clamped to a 1ms minimum; one-shot timers fire once after
// delay.
func (s *Substrate) StartTimer(delay time.Duration, repeating bool) uint64 {
	if delay < 0 {
		delay = 0
	}
	period := delay
	if repeating && period < minRepeatPeriod {
		period = minRepeatPeriod
	}

	id := s.nextTimerID.Add(1)
	e := &timerEntry{
		id:        id,
		when:      s.now().Add(delay),
		period:    period,
		repeating: repeating,
	}

	s.timersMu.Lock()
	s.live[id] = e
	heap.Push(&s.timers, e)
	s.timersMu.Unlock()

	return id
}

// CancelTimer cancels a timer. Synchronous from the caller's view: the id is
// invalid on return. The heap entry is discarded lazily when it is next
// dequeued, which also performs the final bookkeeping on the cancelled set;
// both no-op once shutdown has begun.
func (s *Substrate) CancelTimer(id uint64) error {
	if s.closed.Load() {
		return nil
	}

	s.timersMu.Lock()
	defer s.timersMu.Unlock()

	if _, ok := s.live[id]; !ok {
		return ErrTimerNotFound
	}
	delete(s.live, id)
	s.cancelled[id] = struct{}{}
	return nil
}

// DueTimers pops every timer due at now, in deadline order. Cancelled ids are
// skipped (and their bookkeeping cleared) at dequeue time. Repeating timers
// are re-armed before their id is returned, so a timer fires at most once per
// call even when badly behind schedule.
func (s *Substrate) DueTimers(now time.Time) []uint64 {
	s.timersMu.Lock()
	defer s.timersMu.Unlock()

	var due []uint64
	for len(s.timers) > 0 {
		if s.timers[0].when.After(now) {
			break
		}
		e := heap.Pop(&s.timers).(*timerEntry)

		if _, ok := s.cancelled[e.id]; ok {
			delete(s.cancelled, e.id)
			continue
		}

		if e.repeating {
			e.when = e.when.Add(e.period)
			if !e.when.After(now) {
				e.when = now.Add(e.period)
			}
			heap.Push(&s.timers, e)
		} else {
			delete(s.live, e.id)
		}

		due = append(due, e.id)
	}
	return due
}

// PendingTimers returns the number of live (uncancelled) timers.
func (s *Substrate) PendingTimers() int {
	s.timersMu.Lock()
	defer s.timersMu.Unlock()
	return len(s.live)
}

// NextDeadline reports the earliest timer deadline, if any. Cancelled entries
// still in the heap may cause an early deadline; that only results in an
// early wake-up, never a missed one.
func (s *Substrate) NextDeadline() (time.Time, bool) {
	s.timersMu.Lock()
	defer s.timersMu.Unlock()
	if len(s.timers) == 0 {
		return time.Time{}, false
	}
	return s.timers[0].when, true
}

// Close stops accepting work, waits for in-flight jobs to finish (bounded by
// ctx), and discards any undelivered completions. Idempotent.
func (s *Substrate) Close(ctx context.Context) error {
	s.closed.Store(true)

	var err error
	s.closeOnce.Do(func() {
		close(s.jobs)

		done := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-ctx.Done():
			err = ctx.Err()
		}

		s.mu.Lock()
		s.ready = nil
		s.mu.Unlock()

		s.timersMu.Lock()
		s.timers = nil
		s.live = map[uint64]*timerEntry{}
		s.cancelled = map[uint64]struct{}{}
		s.timersMu.Unlock()
	})
	return err
}
