package kexit

import (
	"testing"

	"github.com/stretchr/testify/require"

	"rpikernel/kernel/errs"
	"rpikernel/kernel/interrupt"
	"rpikernel/kernel/mem"
	"rpikernel/kernel/proc"
	"rpikernel/kernel/sched"
	"rpikernel/kernel/timer"
)

func newProcess() *proc.Process {
	alloc := mem.NewAllocator(0, mem.Size64K)
	return proc.New(1, 8, alloc)
}

func TestRunDrivesBottomHalvesAndContinuation(t *testing.T) {
	p := newProcess()
	ran := 0
	p.Continuation = func() {
		ran++
		p.Continuation = nil
	}

	h := Hooks{
		Timer:     timer.New(),
		Interrupt: interrupt.New(),
		Sched:     sched.New(&sched.Client{}),
		Reschedule: func(outgoing *proc.Process) *proc.Process {
			return outgoing
		},
	}

	out := Run(h, p, 0)
	require.Same(t, p, out)
	require.Equal(t, 1, ran)
}

func TestRunSynthesizesExitOnTSFExit(t *testing.T) {
	p := newProcess()
	p.ExitStatus = errs.ExitSuccess
	var exitedWith errs.ExitStatus
	var exited bool

	h := Hooks{
		Timer:     timer.New(),
		Interrupt: interrupt.New(),
		Sched:     sched.New(&sched.Client{}),
		Reschedule: func(outgoing *proc.Process) *proc.Process {
			return outgoing
		},
		DoExit: func(p *proc.Process, status errs.ExitStatus) {
			exited = true
			exitedWith = status
		},
	}

	Run(h, p, TSFExit)
	require.True(t, exited)
	require.Equal(t, errs.ExitSuccess, exitedWith)
}

func TestRunRecursesOnReschedule(t *testing.T) {
	p := newProcess()
	other := newProcess()
	rescheduled := false
	switched := false

	h := Hooks{
		Timer:     timer.New(),
		Interrupt: interrupt.New(),
		Sched:     sched.New(&sched.Client{}),
		Reschedule: func(outgoing *proc.Process) *proc.Process {
			rescheduled = true
			return other
		},
		SwitchTo: func(next *proc.Process) { switched = true },
	}
	h.Interrupt.RescheduleRequested = true

	out := Run(h, p, 0)
	require.True(t, rescheduled)
	require.True(t, switched)
	require.Same(t, other, out)
}
