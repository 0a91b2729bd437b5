// Package timer implements the one-second timing wheel of spec.md §4.7:
// JIFFIES_PER_SECOND buckets, a hardware-clock tick that advances jiffies
// and queues bottom-half work, and a bottom half that expires timers in
// increasing absolute-expiry order within a bucket. Grounded on
// original_source/kernel/arm/interrupt.c's InterruptTopHalf (the
// TimerTopHalf call site) and original_source/kernel/boards/raspberry_pi_4/timer.c.
package timer

import (
	"sort"
	"sync"
)

// JiffiesPerSecond is the wheel's bucket count and tick rate, matching the
// original kernel's JIFFIES_PER_SECOND constant.
const JiffiesPerSecond = 100

// MicrosecondsPerJiffy is the hardware timer's reload interval.
const MicrosecondsPerJiffy = 1_000_000 / JiffiesPerSecond

// Timer is one entry in the wheel. A Timer fires by flagging Owner as
// expired, if set, and then invoking Callback, if set, per spec.md's "invokes its
// callback or wakes its rendez" wording — the callback is where
// kernel/proc wires the full rendez-drain-and-reready sequence, since
// timer has no knowledge of the scheduler.
type Timer struct {
	Expiry   uint64 // absolute jiffies
	Callback func()
	Owner    Expirable

	bucket  int
	pending bool
}

// Expirable is the minimal process-side hook the bottom half uses to flag
// an owning process's timer as having fired. kernel/proc.Process
// implements it; kept as an interface to avoid an import cycle.
type Expirable interface {
	SetExpired()
}

// Wheel is the timing wheel plus the hardware-clock counters.
type Wheel struct {
	mu sync.Mutex

	buckets [JiffiesPerSecond][]*Timer

	jiffies uint64
	seconds uint64
}

// New returns an empty wheel with jiffies/seconds at zero.
func New() *Wheel { return &Wheel{} }

func bucketOf(expiry uint64) int { return int(expiry % JiffiesPerSecond) }

// Jiffies returns the current absolute jiffy count.
func (w *Wheel) Jiffies() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.jiffies
}

// Seconds returns the current uptime in whole seconds.
func (w *Wheel) Seconds() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.seconds
}

// Hardclock is the top half: called from the timer IRQ, it advances
// jiffies/seconds by one tick. The caller is responsible for invoking
// BottomHalf afterward (spec.md keeps top and bottom half separate so the
// bottom half can run with interrupts enabled).
func (w *Wheel) Hardclock() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.jiffies++
	if w.jiffies%JiffiesPerSecond == 0 {
		w.seconds++
	}
}

// SetTimeout arms t to fire at expiry jiffies, linking it into the
// appropriate bucket. An expiry of 0 is rejected by the caller (set_timeout
// with 0 cancels, per spec.md); use Cancel for that.
func (w *Wheel) SetTimeout(t *Timer) {
	w.mu.Lock()
	defer w.mu.Unlock()
	t.bucket = bucketOf(t.Expiry)
	t.pending = true
	w.buckets[t.bucket] = append(w.buckets[t.bucket], t)
}

// Cancel removes t from its bucket if still pending, implementing
// set_timeout's "0 cancels" behavior.
func (w *Wheel) Cancel(t *Timer) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !t.pending {
		return false
	}
	q := w.buckets[t.bucket]
	for i, x := range q {
		if x == t {
			w.buckets[t.bucket] = append(q[:i], q[i+1:]...)
			t.pending = false
			return true
		}
	}
	return false
}

// BottomHalf scans the bucket for the current jiffy, expiring every timer
// whose absolute expiry is at most now, in increasing-expiry order within
// the bucket per spec.md's ordering guarantee. Timers whose expiry is in a
// future wheel revolution but happen to share this bucket are left alone.
func (w *Wheel) BottomHalf() {
	w.mu.Lock()
	now := w.jiffies
	b := bucketOf(now)
	q := w.buckets[b]

	var fire []*Timer
	var keep []*Timer
	for _, t := range q {
		if t.Expiry <= now {
			fire = append(fire, t)
		} else {
			keep = append(keep, t)
		}
	}
	w.buckets[b] = keep
	sort.Slice(fire, func(i, j int) bool { return fire[i].Expiry < fire[j].Expiry })
	for _, t := range fire {
		t.pending = false
	}
	w.mu.Unlock()

	for _, t := range fire {
		fireOne(t)
	}
}

func fireOne(t *Timer) {
	if t.Owner != nil {
		t.Owner.SetExpired()
	}
	if t.Callback != nil {
		t.Callback()
	}
}
