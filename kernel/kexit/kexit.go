// Package kexit implements the single KernelExit return pathway shared by
// every syscall, interrupt, and exception, per spec.md §4.12. Grounded on
// original_source/kernel/arm/kernelexit.c's KernelExit/__KernelExit loop.
package kexit

import (
	"rpikernel/kernel/errs"
	"rpikernel/kernel/interrupt"
	"rpikernel/kernel/proc"
	"rpikernel/kernel/sched"
	"rpikernel/kernel/timer"
)

// TaskFlag mirrors the TSF_* bits on a process's task state.
type TaskFlag uint32

const (
	TSFExit TaskFlag = 1 << iota
	TSFKill
	TSFException
)

// Hooks bundles what KernelExit drives: the timer wheel and interrupt
// dispatcher directly, and the process-level steps (reschedule, switch,
// exit, close-list drain) as closures so tests can substitute fakes.
type Hooks struct {
	Timer       *timer.Wheel
	Interrupt   *interrupt.Dispatcher
	Sched       *sched.Scheduler
	Reschedule  func(outgoing *proc.Process) *proc.Process
	SwitchTo    func(next *proc.Process)
	DoExit      func(p *proc.Process, status errs.ExitStatus)
	DrainClosed func(p *proc.Process)
}

// Run executes one pass of the KernelExit pathway for current, returning
// the process whose user context should actually be restored (it may
// differ from current if a reschedule switched to a different process;
// Run recurses internally exactly once per reschedule, matching
// __KernelExit's tail-recursive re-entry).
func Run(h Hooks, current *proc.Process, flags TaskFlag) *proc.Process {
	h.Timer.BottomHalf()

	h.Interrupt.BottomHalf()

	if h.Interrupt.RescheduleRequested {
		h.Interrupt.RescheduleRequested = false
		next := h.Reschedule(current)
		if next != current && h.SwitchTo != nil {
			h.SwitchTo(next)
		}
		return Run(h, next, flags)
	}

	if flags != 0 {
		switch {
		case flags&TSFExit != 0:
			h.DoExit(current, current.ExitStatus)
		case flags&TSFKill != 0:
			h.DoExit(current, errs.ExitKilled)
		case flags&TSFException != 0:
			h.DoExit(current, errs.ExitFatal)
		}
	}

	if h.DrainClosed != nil {
		h.DrainClosed(current)
	}

	for current.Continuation != nil {
		current.Continuation()
	}

	return current
}
