package event

import (
	"testing"

	"github.com/stretchr/testify/require"

	"rpikernel/kernel/handle"
	"rpikernel/kernel/rendez"
)

type fakeSleeper struct{ on *rendez.Rendez }

func (f *fakeSleeper) SetSleepingOn(r *rendez.Rendez) { f.on = r }
func (f *fakeSleeper) SleepingOn() *rendez.Rendez     { return f.on }

func TestRaiseThenCheckSpecificHandle(t *testing.T) {
	s := NewSource(handle.NewTable(8), rendez.New())
	require.False(t, s.HasPending(3))

	woken := s.Raise(3)
	require.Empty(t, woken)
	require.True(t, s.HasPending(3))

	h, ok := s.Check(3)
	require.True(t, ok)
	require.Equal(t, 3, h)
	require.False(t, s.HasPending(3))
}

func TestWildcardReturnsFIFOOrder(t *testing.T) {
	s := NewSource(handle.NewTable(8), rendez.New())
	s.Raise(5)
	s.Raise(2)

	h, ok := s.Check(AnyHandle)
	require.True(t, ok)
	require.Equal(t, 5, h)

	h, ok = s.Check(AnyHandle)
	require.True(t, ok)
	require.Equal(t, 2, h)

	_, ok = s.Check(AnyHandle)
	require.False(t, ok)
}

func TestRaiseWakesWaiters(t *testing.T) {
	s := NewSource(handle.NewTable(8), rendez.New())
	w := &fakeSleeper{}
	s.Waiting.Add(w)
	require.Equal(t, 1, s.Waiting.Len())

	woken := s.Raise(1)
	require.Len(t, woken, 1)
	require.Equal(t, 0, s.Waiting.Len())
}

func TestClearOnCloseRemovesPending(t *testing.T) {
	s := NewSource(handle.NewTable(8), rendez.New())
	s.Raise(4)
	s.Clear(4)
	require.False(t, s.HasPending(4))
	_, ok := s.Check(AnyHandle)
	require.False(t, ok)
}
