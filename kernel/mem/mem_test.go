package mem

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAllocFreeBasic(t *testing.T) {
	a := NewAllocator(0x10000000, Size64K*4)

	pf, ok := a.Alloc(Size4K)
	require.True(t, ok)
	require.True(t, pf.InUse)
	require.Equal(t, Size4K, pf.Size)

	a.Free(pf)
	require.False(t, pf.InUse)
}

func TestSplitAndCoalesce(t *testing.T) {
	a := NewAllocator(0, Size64K)

	var frames []*Pageframe
	for i := 0; i < 16; i++ {
		pf, ok := a.Alloc(Size4K)
		require.True(t, ok, "alloc %d", i)
		frames = append(frames, pf)
	}
	// slab exhausted at 4K granularity
	_, ok := a.Alloc(Size4K)
	require.False(t, ok)

	for _, pf := range frames {
		a.Free(pf)
	}

	// coalesced back into one 64K frame
	f4, f16, f64, inUse := a.Conservation()
	require.Equal(t, 0, f4)
	require.Equal(t, 0, f16)
	require.Equal(t, 1, f64)
	require.Equal(t, 0, inUse)
}

func TestConservationUnderRandomSequence(t *testing.T) {
	a := NewAllocator(0, Size64K*8)
	total := a.Total4KEquiv()

	rng := rand.New(rand.NewSource(1))
	sizes := []int{Size4K, Size16K, Size64K}
	var live []*Pageframe

	for i := 0; i < 2000; i++ {
		if len(live) > 0 && rng.Intn(2) == 0 {
			idx := rng.Intn(len(live))
			a.Free(live[idx])
			live = append(live[:idx], live[idx+1:]...)
			continue
		}
		size := sizes[rng.Intn(len(sizes))]
		if pf, ok := a.Alloc(size); ok {
			live = append(live, pf)
		}

		f4, f16, f64, inUse := a.Conservation()
		require.Equal(t, total, f4+4*f16+16*f64+inUse)
	}
}

func TestRefcounting(t *testing.T) {
	a := NewAllocator(0, Size64K)
	pf, ok := a.Alloc(Size4K)
	require.True(t, ok)

	a.Refup(pf)
	a.Refup(pf)
	require.False(t, a.Refdown(pf))
	require.True(t, pf.InUse)
	require.True(t, a.Refdown(pf))
	require.False(t, pf.InUse)
}
