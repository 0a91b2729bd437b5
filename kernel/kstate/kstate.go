// Package kstate composes every kernel subsystem into a single value,
// replacing the teacher's (and the original kernel's) file-scope global
// variables, per spec.md §9's "Global mutable state — encapsulate as a
// single kernel-state value passed by reference" design note. Grounded on
// biscuit's per-object (non-global) composition style (kernel/vm.AS,
// kernel/mem.Allocator).
package kstate

import (
	"sync"

	"rpikernel/kernel/boot"
	"rpikernel/kernel/errs"
	"rpikernel/kernel/handle"
	"rpikernel/kernel/interrupt"
	"rpikernel/kernel/klog"
	"rpikernel/kernel/mem"
	"rpikernel/kernel/proc"
	"rpikernel/kernel/sched"
	"rpikernel/kernel/stats"
	"rpikernel/kernel/timer"
)

// Kernel is the single big-kernel-lock-protected value threading through
// every syscall, interrupt, and exception handler. Its BigLock models the
// original's inkernel_lock / disable_preemption discipline: any code
// manipulating Kernel's fields must hold BigLock.
type Kernel struct {
	BigLock sync.Mutex

	Boot boot.Info

	Mem       *mem.Allocator
	Sched     *sched.Scheduler
	Timer     *timer.Wheel
	Interrupt *interrupt.Dispatcher
	Stats     *stats.Registry
	Log       *klog.Ring

	Idle *proc.Process
	Root *proc.Process

	procsByPid map[int]*proc.Process
	nextPid    int

	Current *proc.Process
}

// New wires every subsystem together from a validated BootInfo, the way
// the original kernel's init path populates its globals before entering
// the scheduler for the first time.
func New(info boot.Info) *Kernel {
	k := &Kernel{
		Boot:       info,
		Mem:        mem.NewAllocator(info.RAMBase, info.RAMSize),
		Timer:      timer.New(),
		Interrupt:  interrupt.New(),
		Stats:      stats.NewRegistry(),
		Log:        klog.NewRing(4096),
		procsByPid: make(map[int]*proc.Process),
	}

	idleClient := &sched.Client{Policy: sched.Idle}
	k.Sched = sched.New(idleClient)

	k.Root = k.spawnLocked(handle.NewTable(256))
	k.Root.Flags |= proc.FlagExecutive | proc.FlagAllowIO
	k.Root.Parent = nil
	k.Current = k.Root

	return k
}

// spawnLocked allocates a fresh process and registers it in the pid
// table. Callers must already hold BigLock (New does, via direct field
// access before any other goroutine can observe k).
func (k *Kernel) spawnLocked(handles *handle.Table) *proc.Process {
	pid := k.nextPid
	k.nextPid++
	p := proc.New(pid, handles.Len(), k.Mem)
	p.Handles = handles
	p.Events.Table = handles
	k.procsByPid[pid] = p
	return p
}

// Spawn creates a new top-level process (not forked from an existing
// one), used for the first user process named by BootInfo.EntryPoint.
func (k *Kernel) Spawn(nHandles int) *proc.Process {
	k.BigLock.Lock()
	defer k.BigLock.Unlock()
	p := k.spawnLocked(handle.NewTable(nHandles))
	p.Parent = k.Root
	k.Root.Children = append(k.Root.Children, p)
	return p
}

// Fork forks parent, registering the child under its own pid, per
// spec.md §4.2's copy-on-write fork.
func (k *Kernel) Fork(parent *proc.Process) (*proc.Process, errs.Err_t) {
	k.BigLock.Lock()
	defer k.BigLock.Unlock()
	pid := k.nextPid
	k.nextPid++
	child, err := proc.Fork(k.Mem, pid, parent.Handles.Len(), parent)
	if err == errs.OK {
		k.procsByPid[pid] = child
	}
	return child, err
}

// ByPid looks up a live process by pid.
func (k *Kernel) ByPid(pid int) (*proc.Process, bool) {
	k.BigLock.Lock()
	defer k.BigLock.Unlock()
	p, ok := k.procsByPid[pid]
	return p, ok
}

// Reap removes pid's process record entirely, called once Join has
// finished destroying its address space and handle.
func (k *Kernel) Reap(pid int) {
	k.BigLock.Lock()
	defer k.BigLock.Unlock()
	delete(k.procsByPid, pid)
	k.Stats.Forget(pid)
}

// ProcessCount reports the number of live processes, used by tests and
// the stats CLI.
func (k *Kernel) ProcessCount() int {
	k.BigLock.Lock()
	defer k.BigLock.Unlock()
	return len(k.procsByPid)
}
