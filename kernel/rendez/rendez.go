// Package rendez implements the sleep/wakeup condition variable used
// throughout the kernel. A Rendez carries no lock of its own — callers
// hold the kernel-wide big lock (kernel/kstate) the way the original
// kernel relies on inkernel_lock. Grounded on
// original_source/kernel/proc/rendez.c.
package rendez

// Sleeper is the minimal process-side state rendez manipulates. Kept as an
// interface to avoid a cycle with kernel/proc.
type Sleeper interface {
	SetSleepingOn(r *Rendez)
	SleepingOn() *Rendez
}

// Rendez is a wait queue of sleeping processes. No other state, per
// spec.md's data model.
type Rendez struct {
	waiters []Sleeper
}

// New returns an empty Rendez.
func New() *Rendez { return &Rendez{} }

// Add appends p to the queue and records r as what p sleeps on. The caller
// is responsible for moving p out of its ready queue (kernel/sched's
// Scheduler.Unready);
// rendez itself only owns the wait-queue linkage, matching the original's
// split between rendez.c (list) and sched.c (SchedUnready).
func (r *Rendez) Add(p Sleeper) {
	p.SetSleepingOn(r)
	r.waiters = append(r.waiters, p)
}

// DrainAll empties the queue and returns every waiter, clearing their
// sleeping-on pointer, for Wakeup to re-ready.
func (r *Rendez) DrainAll() []Sleeper {
	out := r.waiters
	r.waiters = nil
	for _, p := range out {
		p.SetSleepingOn(nil)
	}
	return out
}

// Remove removes exactly p from the queue (WakeupProcess), clearing its
// sleeping-on pointer. Reports whether p was found.
func (r *Rendez) Remove(p Sleeper) bool {
	for i, w := range r.waiters {
		if w == p {
			r.waiters = append(r.waiters[:i], r.waiters[i+1:]...)
			p.SetSleepingOn(nil)
			return true
		}
	}
	return false
}

// Len reports the number of processes currently waiting, for tests.
func (r *Rendez) Len() int { return len(r.waiters) }
