// Package event implements the handle-wait facility of spec.md §4.9: each
// handle carries one pending bit, raising it enqueues the handle on its
// owner's pending list and wakes the owner's wait rendez, and
// wait_event/check_event consume the bit on read. Grounded on
// original_source/kernel/proc/event.c.
package event

import (
	"rpikernel/kernel/handle"
	"rpikernel/kernel/rendez"
)

// AnyHandle is the wildcard passed to Wait/Check to mean "any pending
// handle", matching the original's wait_event(-1) convention.
const AnyHandle = -1

// Source owns one process's pending-handle queue and wait rendez. A
// kernel/proc.Process embeds or composes one Source per process.
type Source struct {
	Table   *handle.Table
	Waiting *rendez.Rendez

	pendingList []int
}

// NewSource wires a Source to the process's handle table and wait rendez.
func NewSource(t *handle.Table, r *rendez.Rendez) *Source {
	return &Source{Table: t, Waiting: r}
}

// Raise sets h's pending bit, enqueues it on the pending list if not
// already present, and drains the wait rendez so the scheduler can
// re-ready the owner. Returns the drained waiters for the caller
// (kernel/proc) to re-ready, since event has no notion of the scheduler.
func (s *Source) Raise(h int) []rendez.Sleeper {
	if s.Table.Pending(h) {
		return nil
	}
	s.Table.SetPending(h, true)
	s.pendingList = append(s.pendingList, h)
	return s.Waiting.DrainAll()
}

// Clear lowers h's pending bit and removes it from the pending list
// without consuming a wait, used when a handle owning a pending event is
// closed (spec.md: "clearing on close is automatic").
func (s *Source) Clear(h int) {
	s.Table.SetPending(h, false)
	s.removeFromList(h)
}

func (s *Source) removeFromList(h int) {
	for i, x := range s.pendingList {
		if x == h {
			s.pendingList = append(s.pendingList[:i], s.pendingList[i+1:]...)
			return
		}
	}
}

// Check is the non-blocking form of wait: if h == AnyHandle, returns the
// first pending handle in FIFO order; otherwise reports whether h itself
// is pending. Either way it consumes the bit and dequeues, per spec.md.
func (s *Source) Check(h int) (int, bool) {
	if h == AnyHandle {
		if len(s.pendingList) == 0 {
			return 0, false
		}
		first := s.pendingList[0]
		s.pendingList = s.pendingList[1:]
		s.Table.SetPending(first, false)
		return first, true
	}
	if !s.Table.Pending(h) {
		return 0, false
	}
	s.Table.SetPending(h, false)
	s.removeFromList(h)
	return h, true
}

// HasPending reports whether h (or, for AnyHandle, anything) is currently
// pending, without consuming it.
func (s *Source) HasPending(h int) bool {
	if h == AnyHandle {
		return len(s.pendingList) > 0
	}
	return s.Table.Pending(h)
}
