package rendez

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeSleeper struct {
	on *Rendez
}

func (f *fakeSleeper) SetSleepingOn(r *Rendez) { f.on = r }
func (f *fakeSleeper) SleepingOn() *Rendez     { return f.on }

func TestAddRecordsSleepingOn(t *testing.T) {
	r := New()
	s := &fakeSleeper{}
	r.Add(s)
	require.Same(t, r, s.SleepingOn())
	require.Equal(t, 1, r.Len())
}

func TestDrainAllClearsQueueAndSleepingOn(t *testing.T) {
	r := New()
	s1, s2 := &fakeSleeper{}, &fakeSleeper{}
	r.Add(s1)
	r.Add(s2)

	woken := r.DrainAll()
	require.ElementsMatch(t, []Sleeper{s1, s2}, woken)
	require.Equal(t, 0, r.Len())
	require.Nil(t, s1.SleepingOn())
	require.Nil(t, s2.SleepingOn())
}

func TestRemoveTakesOnlyNamedWaiter(t *testing.T) {
	r := New()
	s1, s2 := &fakeSleeper{}, &fakeSleeper{}
	r.Add(s1)
	r.Add(s2)

	require.True(t, r.Remove(s1))
	require.Equal(t, 1, r.Len())
	require.Nil(t, s1.SleepingOn())
	require.Same(t, r, s2.SleepingOn())

	require.False(t, r.Remove(s1))
}
