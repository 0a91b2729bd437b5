package timer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFiresOnceAtExpiry(t *testing.T) {
	w := New()
	fired := 0
	timer := &Timer{Expiry: 5, Callback: func() { fired++ }}
	w.SetTimeout(timer)

	for i := 0; i < 4; i++ {
		w.Hardclock()
		w.BottomHalf()
	}
	require.Equal(t, 0, fired)

	w.Hardclock()
	w.BottomHalf()
	require.Equal(t, 1, fired)

	for i := 0; i < 200; i++ {
		w.Hardclock()
		w.BottomHalf()
	}
	require.Equal(t, 1, fired, "a one-shot timer must not refire on wheel wraparound")
}

func TestCancelPreventsFire(t *testing.T) {
	w := New()
	fired := false
	timer := &Timer{Expiry: 3, Callback: func() { fired = true }}
	w.SetTimeout(timer)
	require.True(t, w.Cancel(timer))

	for i := 0; i < 10; i++ {
		w.Hardclock()
		w.BottomHalf()
	}
	require.False(t, fired)
}

func TestExpiryOrderWithinBucket(t *testing.T) {
	w := New()
	var order []int
	mk := func(n int, expiry uint64) *Timer {
		return &Timer{Expiry: expiry, Callback: func() { order = append(order, n) }}
	}
	w.SetTimeout(mk(1, JiffiesPerSecond+2))
	w.SetTimeout(mk(2, 2))
	w.SetTimeout(mk(3, JiffiesPerSecond*2+2))

	for i := 0; i < JiffiesPerSecond*2+3; i++ {
		w.Hardclock()
		w.BottomHalf()
	}
	require.Equal(t, []int{2, 1, 3}, order)
}

func TestSecondsAdvanceOnWheelWrap(t *testing.T) {
	w := New()
	for i := 0; i < JiffiesPerSecond; i++ {
		w.Hardclock()
	}
	require.Equal(t, uint64(1), w.Seconds())
	require.Equal(t, uint64(JiffiesPerSecond), w.Jiffies())
}
