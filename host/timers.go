// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package host

import (
	"time"
)

// SetTimer schedules cb to run after delay, on the loop thread. Repeating
// timers fire every delay until cleared, with the period clamped to a 1ms
// minimum; one-shot timers fire once and release their callback themselves.
// The returned id is valid until the timer fires (one-shot) or is cleared.
func (h *Host) SetTimer(cb any, delay time.Duration, repeating bool) (uint64, error) {
	if h.state.Load() >= StateTerminating {
		return 0, ErrHostTerminated
	}
	id := h.sub.StartTimer(delay, repeating)
	h.timers[id] = &timerReg{cb: h.handles.Protect(cb), repeating: repeating}
	return id, nil
}

// ClearTimer cancels a timer. Invalidation is synchronous: once ClearTimer
// returns, the callback will not fire, even if the timer was already due in
// the current tick. Clearing from inside the timer's own callback works.
// Returns ErrTimerNotFound for unknown, already fired, or already cleared
// ids.
func (h *Host) ClearTimer(id uint64) error {
	reg, ok := h.timers[id]
	if !ok {
		return ErrTimerNotFound
	}
	delete(h.timers, id)
	_ = h.sub.CancelTimer(id)
	_ = h.handles.Release(reg.cb)
	return nil
}

// PendingTimers returns the number of scheduled, uncleared timers.
func (h *Host) PendingTimers() int {
	return len(h.timers)
}
