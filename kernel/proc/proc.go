// Package proc implements the Process type and its lifecycle: fork,
// exit, join, and orphan re-parenting. Grounded on
// original_source/kernel/h/kernel/proc.h (struct Process's field layout),
// original_source/kernel/proc/exit.c (DoExit) and
// original_source/kernel/proc/join.c (WaitPid, DoCloseProcess).
package proc

import (
	"sync"

	"rpikernel/kernel/errs"
	"rpikernel/kernel/event"
	"rpikernel/kernel/handle"
	"rpikernel/kernel/ipc"
	"rpikernel/kernel/mem"
	"rpikernel/kernel/rendez"
	"rpikernel/kernel/sched"
	"rpikernel/kernel/timer"
	"rpikernel/kernel/vm"
)

// NSysPort is the number of inherited system ports a process carries at
// spawn time (root, exception, stdin, stdout, stderr, ...), per proc.h's
// NSYSPORT.
const NSysPort = 8

// State is a process's lifecycle stage, numbered to match
// PROC_STATE_* ordering (not the literal values, which are an
// implementation accident of the original's allocator).
type State int

const (
	StateUnalloc State = iota
	StateInit
	StateReady
	StateRunning
	StateSleep
	StateZombie
)

// Flags are per-process spawn/privilege bits, per PROCF_*.
type Flags uint32

const (
	FlagExecutive Flags = 1 << iota
	FlagAllowIO
)

// Process is the scheduled entity. It embeds sched.Client directly the
// way the original embeds tickets/stride/pass/quanta_used fields inline,
// and composes the handle table, address space, and event/wait state
// rather than reaching into kernel-global arrays.
type Process struct {
	mu sync.Mutex

	sched.Client

	Pid    int
	Handle int // this process's own handle, in the parent's table
	State  State
	Flags  Flags
	UID    int
	GID    int
	PGRP   int

	ExitStatus errs.ExitStatus
	Expired    bool // set by a fired watchdog timer

	Handles *handle.Table
	Events  *event.Source
	AS      *vm.AS

	SleepingOnPtr *rendez.Rendez
	WaitFor       *rendez.Rendez
	WaitingFor    int

	CloseHandleList []ipc.Parcel // drained-in parcels awaiting KernelExit reclaim

	Watchdog *timer.Timer

	Parent   *Process
	Children []*Process

	SystemPorts [NSysPort]int

	Continuation func()
}

// New allocates a process in StateInit, wiring a handle table of size
// nHandles and a fresh address space over alloc. Grounded on AllocProcess.
func New(pid int, nHandles int, alloc *mem.Allocator) *Process {
	p := &Process{
		Pid:     pid,
		State:   StateInit,
		Handles: handle.NewTable(nHandles),
		AS:      vm.New(alloc),
		WaitFor: rendez.New(),
	}
	p.Events = event.NewSource(p.Handles, p.WaitFor)
	return p
}

// HandleOwnerID satisfies handle.Owner.
func (p *Process) HandleOwnerID() int { return p.Pid }

// SetSleepingOn and SleepingOn satisfy rendez.Sleeper.
func (p *Process) SetSleepingOn(r *rendez.Rendez) { p.SleepingOnPtr = r }
func (p *Process) SleepingOn() *rendez.Rendez     { return p.SleepingOnPtr }

// SetExpired satisfies timer.Expirable.
func (p *Process) SetExpired() { p.Expired = true }

// RaiseOwnedEvent satisfies ipc.EventRaiser: raising an event on one of
// this process's own handles.
func (p *Process) RaiseOwnedEvent(h int) []rendez.Sleeper {
	return p.Events.Raise(h)
}

// IsAllowed is a supplemented permission check: the original always
// returned 0 (disabled; see SPEC_FULL.md's Open Question decisions). Here
// an executive process or uid 0 is always allowed, and otherwise the two
// uids must match. gid and the allow-io flag are not consulted.
func (p *Process) IsAllowed(target *Process) bool {
	if p.Flags&FlagExecutive != 0 {
		return true
	}
	if p.UID == 0 {
		return true
	}
	return p.UID == target.UID
}

// RequireAllowIO reports whether p may call allow-io-gated operations
// (mask_interrupt, create_interrupt, virtualallocphys, RR/FIFO scheduling).
func (p *Process) RequireAllowIO() errs.Err_t {
	if p.Flags&FlagAllowIO == 0 {
		return errs.PrivilegeErr
	}
	return errs.OK
}

// Fork creates a child process sharing nothing but copy-on-write memory,
// per §4.2's fork_address_space algorithm (kernel/vm.Fork).
func Fork(alloc *mem.Allocator, childPid int, nHandles int, parent *Process) (*Process, errs.Err_t) {
	child := New(childPid, nHandles, alloc)
	if err := vm.Fork(alloc, parent.AS, child.AS); err != errs.OK {
		return nil, err
	}
	child.UID, child.GID, child.PGRP = parent.UID, parent.GID, parent.PGRP
	child.Flags = parent.Flags &^ FlagExecutive
	child.SystemPorts = parent.SystemPorts
	child.Parent = parent
	parent.Children = append(parent.Children, child)

	h, ok := parent.Handles.Alloc()
	if !ok {
		return nil, errs.ResourceErr
	}
	parent.Handles.Set(h, handle.Process, parent, child)
	child.Handle = h
	return child, errs.OK
}

// Exit sets the exit status and marks the process for termination; the
// actual work happens in DoExit, called from the KernelExit pathway once
// the exit flag is observed (spec.md §4.11/§4.12 split).
func (p *Process) Exit(status errs.ExitStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ExitStatus = status
}

// DoExit performs the actual termination: close every handle, free the
// address space, drain the pending-close list, raise an event on the
// process's own handle, and mark it ZOMBIE. Returns the waiters woken by
// raising that event, for the caller to re-ready via the scheduler.
func DoExit(s *sched.Scheduler, alloc *mem.Allocator, p *Process, raiseOnOwnHandle func() []rendez.Sleeper) []rendez.Sleeper {
	p.mu.Lock()
	defer p.mu.Unlock()

	for h := 0; h < p.Handles.Len(); h++ {
		if p.Handles.TypeAt(h) != handle.Free {
			p.Handles.Free(h)
		}
	}
	p.AS.Cleanup(alloc)

	p.CloseHandleList = nil

	p.State = StateZombie
	s.Unready(&p.Client)

	var woken []rendez.Sleeper
	if raiseOnOwnHandle != nil {
		woken = raiseOnOwnHandle()
	}
	reparentOrphans(p)
	return woken
}

// reparentOrphans migrates a dying process's still-alive children to its
// own parent (conventionally the root process), per §4.11's orphan
// policy, read the other direction: a process's children become orphans
// of *its* parent when it exits mid-flight.
func reparentOrphans(p *Process) {
	newParent := p.Parent
	for _, c := range p.Children {
		c.Parent = newParent
		if newParent != nil {
			newParent.Children = append(newParent.Children, c)
			if rh, ok := newParent.Handles.Alloc(); ok {
				newParent.Handles.Set(rh, handle.Process, newParent, c)
				c.Handle = rh
			}
		}
	}
	p.Children = nil
}

// Join reaps a ZOMBIE child identified by handle h in parent's table,
// per WaitPid: self-join is rejected, and a non-ZOMBIE child is paramErr.
func Join(parent *Process, h int) (errs.ExitStatus, errs.Err_t) {
	obj, err := parent.Handles.Lookup(parent, h, handle.Process)
	if err != errs.OK {
		return 0, err
	}
	child, ok := obj.(*Process)
	if !ok {
		return 0, errs.ParamErr
	}
	if child == parent {
		return 0, errs.ParamErr
	}
	if child.State != StateZombie {
		return 0, errs.ParamErr
	}
	status := child.ExitStatus
	parent.Handles.Free(h)
	removeChild(parent, child)
	return status, errs.OK
}

// CloseHandle implements DoCloseProcess: closing a process handle while
// the child is alive re-parents it to root without blocking; if the
// child is already ZOMBIE, it is reaped immediately.
func CloseHandle(parent *Process, root *Process, h int) errs.Err_t {
	obj, err := parent.Handles.Lookup(parent, h, handle.Process)
	if err != errs.OK {
		return err
	}
	child, ok := obj.(*Process)
	if !ok {
		return errs.ParamErr
	}
	if child.State == StateZombie {
		parent.Handles.Free(h)
		removeChild(parent, child)
		return errs.OK
	}
	removeChild(parent, child)
	child.Parent = root
	parent.Handles.Free(h)

	if root != nil {
		root.Children = append(root.Children, child)
		rh, ok := root.Handles.Alloc()
		if !ok {
			return errs.ResourceErr
		}
		root.Handles.Set(rh, handle.Process, root, child)
		child.Handle = rh
	}
	return errs.OK
}

func removeChild(parent *Process, child *Process) {
	for i, c := range parent.Children {
		if c == child {
			parent.Children = append(parent.Children[:i], parent.Children[i+1:]...)
			return
		}
	}
}
