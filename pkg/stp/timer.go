package stp

import (
	"sync"
	"time"
)

// SingleTimer is the one-shot, arm/cancel/rearm timer spec.md §4 attaches
// to the oldest unacknowledged segment. It mirrors the original Python
// source's threading.Timer usage, but replaces the race-prone
// "cancel() may or may not stop an in-flight fire" semantics with an
// epoch counter: each arm/rearm bumps the epoch, and a fired callback that
// no longer matches the current epoch is a no-op, satisfying spec.md §5's
// "the callback returns without effect" cancellation requirement.
type SingleTimer struct {
	mu     sync.Mutex
	epoch  uint64
	timer  *time.Timer
	armed  bool
}

// Arm schedules fn to run after d, unless cancelled or superseded first.
func (t *SingleTimer) Arm(d time.Duration, fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.epoch++
	epoch := t.epoch
	t.armed = true
	t.timer = time.AfterFunc(d, func() {
		t.mu.Lock()
		stale := epoch != t.epoch || !t.armed
		if !stale {
			t.armed = false
		}
		t.mu.Unlock()
		if stale {
			return
		}
		fn()
	})
}

// Cancel disarms the timer. A callback already in flight when Cancel runs
// will still observe the epoch mismatch and no-op.
func (t *SingleTimer) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
	}
	t.epoch++
	t.armed = false
}

// Rearm is Cancel followed by Arm, as a single operation.
func (t *SingleTimer) Rearm(d time.Duration, fn func()) {
	t.mu.Lock()
	if t.timer != nil {
		t.timer.Stop()
	}
	t.epoch++
	t.armed = false
	t.mu.Unlock()
	t.Arm(d, fn)
}

// Armed reports whether the timer is currently armed.
func (t *SingleTimer) Armed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.armed
}
