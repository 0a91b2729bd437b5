// Package handle implements the per-process handle table: a small
// non-negative integer private to the owning process, naming any kernel
// object. Grounded on original_source/kernel/proc/handle.c
// (AllocHandle/FreeHandle/PeekHandle/GetObject/SetObject) and biscuit's
// fd.Fd_t per-resource-table idiom.
package handle

import (
	"sync"

	"rpikernel/kernel/errs"
)

// Type tags the kind of kernel object a handle refers to.
type Type int

const (
	Free Type = iota
	Process
	ISR
	Channel
	Timer
	Notification
)

// Owner is the minimal interface a handle's owning process must satisfy;
// kernel/proc.Process implements it. Kept as an interface here to avoid an
// import cycle between handle and proc.
type Owner interface {
	HandleOwnerID() int
}

// Entry is one slot of the table.
type Entry struct {
	Type    Type
	Owner   Owner
	Object  any
	Pending bool
}

// Table is a process-scoped handle table. Callers serialize access the
// same way biscuit serializes Fd_t access: via the owning process's lock;
// Table additionally holds its own mutex so it can be unit-tested in
// isolation.
type Table struct {
	mu      sync.Mutex
	entries []Entry
	free    []int
}

// NewTable creates a table with n pre-allocated free slots.
func NewTable(n int) *Table {
	t := &Table{entries: make([]Entry, n)}
	for i := n - 1; i >= 0; i-- {
		t.free = append(t.free, i)
	}
	return t
}

// Peek inspects the handle that would be returned by the index-th
// subsequent Alloc call, without removing it from the free list. Used by
// syscalls that must commit multiple handles atomically after a
// successful user-space copy-out of handle numbers (CreateChannel,
// CreateNotification).
func (t *Table) Peek(index int) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if index < 0 || index >= len(t.free) {
		return 0, false
	}
	return t.free[len(t.free)-1-index], true
}

// Alloc pops the head of the free list.
func (t *Table) Alloc() (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.free) == 0 {
		return 0, false
	}
	h := t.free[len(t.free)-1]
	t.free = t.free[:len(t.free)-1]
	return h, true
}

// Set initializes the entry for a just-allocated handle.
func (t *Table) Set(h int, typ Type, owner Owner, object any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[h] = Entry{Type: typ, Owner: owner, Object: object}
}

// Free clears an entry's pending bit and returns it to the free list.
func (t *Table) Free(h int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[h] = Entry{}
	t.free = append(t.free, h)
}

// Lookup returns the object stored at h if it belongs to owner and matches
// typ. An out-of-range h yields ParamErr; a free slot, another owner or
// another type yields HandleErr. Grounded on GetObject's exact checks.
func (t *Table) Lookup(owner Owner, h int, typ Type) (any, errs.Err_t) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if h < 0 || h >= len(t.entries) {
		return nil, errs.ParamErr
	}
	e := t.entries[h]
	if e.Type == Free || e.Owner == nil || e.Owner.HandleOwnerID() != owner.HandleOwnerID() || e.Type != typ {
		return nil, errs.HandleErr
	}
	return e.Object, errs.OK
}

// Find returns a copy of the raw entry for h if owned by owner, regardless
// of type — used by CloseHandle which dispatches on the stored type.
func (t *Table) Find(owner Owner, h int) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if h < 0 || h >= len(t.entries) {
		return Entry{}, false
	}
	e := t.entries[h]
	if e.Owner == nil || e.Owner.HandleOwnerID() != owner.HandleOwnerID() {
		return Entry{}, false
	}
	return e, true
}

// SetPending sets or clears the pending-event bit for h, without an owner
// check (used internally by kernel/event once a lookup has already
// validated ownership).
func (t *Table) SetPending(h int, pending bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if h >= 0 && h < len(t.entries) {
		t.entries[h].Pending = pending
	}
}

// Pending reports the pending bit for h.
func (t *Table) Pending(h int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if h < 0 || h >= len(t.entries) {
		return false
	}
	return t.entries[h].Pending
}

// FreeCount returns the number of unallocated slots, used by the
// exit-reaps-handles scenario in §8.
func (t *Table) FreeCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.free)
}

// Len returns the table's fixed slot count.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// TypeAt reports the type stored at h without an ownership check, used by
// DoExit's "close every handle" sweep which must skip already-free slots.
func (t *Table) TypeAt(h int) Type {
	t.mu.Lock()
	defer t.mu.Unlock()
	if h < 0 || h >= len(t.entries) {
		return Free
	}
	return t.entries[h].Type
}
