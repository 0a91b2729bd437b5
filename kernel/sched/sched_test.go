package sched

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRTPriorityOrdering(t *testing.T) {
	s := New(&Client{})
	low := &Client{Policy: RR, Priority: 3}
	high := &Client{Policy: FIFO, Priority: 9}
	s.Ready(low)
	s.Ready(high)

	require.Same(t, high, s.Pick())
}

func TestRRRotatesOnReschedule(t *testing.T) {
	s := New(&Client{})
	a := &Client{Policy: RR, Priority: 5}
	b := &Client{Policy: RR, Priority: 5}
	s.Ready(a)
	s.Ready(b)

	require.Same(t, a, s.Pick())
	next := s.Reschedule(a)
	require.Same(t, b, next)
	next = s.Reschedule(b)
	require.Same(t, a, next)
}

func TestStrideRatioApproximatesTickets(t *testing.T) {
	s := New(&Client{})
	heavy := &Client{Policy: Other, Tickets: 200}
	light := &Client{Policy: Other, Tickets: 100}
	s.Ready(heavy)
	s.Ready(light)

	counts := map[*Client]int{}
	running := s.Pick()
	for i := 0; i < 300; i++ {
		counts[running]++
		running = s.Reschedule(running)
	}

	ratio := float64(counts[heavy]) / float64(counts[light])
	require.InDelta(t, 2.0, ratio, 0.3)
}

func TestSetParamsValidation(t *testing.T) {
	s := New(&Client{})
	c := &Client{Policy: Other, Tickets: 10}
	s.Ready(c)

	require.False(t, s.SetParams(c, RR, 0))
	require.False(t, s.SetParams(c, RR, MaxRTPriority))
	require.False(t, s.SetParams(c, Other, 0))
	require.False(t, s.SetParams(c, Other, MaxStrideTickets+1))
	require.True(t, s.SetParams(c, RR, 7))
	require.Equal(t, RR, c.Policy)
	require.Equal(t, 7, c.Priority)
}

func TestIdleReturnedWhenNothingReady(t *testing.T) {
	idle := &Client{}
	s := New(idle)
	require.Same(t, idle, s.Pick())
}

func TestFIFONeverPreemptedByQuantum(t *testing.T) {
	s := New(&Client{})
	c := &Client{Policy: FIFO, Priority: 1}
	s.Ready(c)
	for i := 0; i < 10; i++ {
		require.False(t, s.Tick(c))
	}
}
