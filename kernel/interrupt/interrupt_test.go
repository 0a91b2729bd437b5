package interrupt

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeOwner struct{ notified []int }

func (f *fakeOwner) NotifyFromISR(handle int) { f.notified = append(f.notified, handle) }

func TestBottomHalfNotifiesAndMasks(t *testing.T) {
	d := New()
	owner := &fakeOwner{}
	h := &Handler{IRQ: 5, Handle: 42, Owner: owner}

	masked := false
	d.AddHandler(h, func(irq int) {})
	var pending [NumIRQ]bool
	pending[5] = true
	d.TopHalf(pending, func(irq int) { masked = true })
	require.True(t, masked)

	d.BottomHalf()
	require.Equal(t, []int{42}, owner.notified)
	require.EqualValues(t, 1, d.MaskCount(5))
}

func TestIRQMaskNestingThreeDeep(t *testing.T) {
	d := New()
	maskCalls, unmaskCalls := 0, 0
	mask := func(irq int) { maskCalls++ }
	unmask := func(irq int) { unmaskCalls++ }

	d.MaskInterrupt(7, mask)
	d.MaskInterrupt(7, mask)
	d.MaskInterrupt(7, mask)
	require.Equal(t, 1, maskCalls, "mask function fires only on the 0->1 transition")
	require.EqualValues(t, 3, d.MaskCount(7))

	d.UnmaskInterrupt(7, unmask)
	d.UnmaskInterrupt(7, unmask)
	require.Equal(t, 0, unmaskCalls)
	d.UnmaskInterrupt(7, unmask)
	require.Equal(t, 1, unmaskCalls, "unmask function fires only when the count reaches zero")
	require.EqualValues(t, 0, d.MaskCount(7))
}

func TestRemoveHandlerMasksWhenListEmpty(t *testing.T) {
	d := New()
	h := &Handler{IRQ: 3, Handle: 1, Owner: &fakeOwner{}}
	unmasked := false
	masked := false
	d.AddHandler(h, func(irq int) { unmasked = true })
	require.True(t, unmasked)

	d.RemoveHandler(h, func(irq int) { masked = true })
	require.True(t, masked)
}
