package pmap

import (
	"testing"

	"github.com/stretchr/testify/require"

	"rpikernel/kernel/mem"
)

func TestEnterExtractRoundTrip(t *testing.T) {
	p := New()
	p.Enter(0x1000, mem.Pa_t(0x2000), ProtRead|ProtWrite|MemAlloc)

	pa, flags, ok := p.Extract(0x1000)
	require.True(t, ok)
	require.Equal(t, mem.Pa_t(0x2000), pa)
	require.Equal(t, ProtRead|ProtWrite|MemAlloc, flags)
}

func TestExtractMissingMapping(t *testing.T) {
	p := New()
	_, _, ok := p.Extract(0x9000)
	require.False(t, ok)
}

func TestRemoveClearsMapping(t *testing.T) {
	p := New()
	p.Enter(0x1000, mem.Pa_t(0x2000), ProtRead)
	require.True(t, p.Remove(0x1000))
	_, _, ok := p.Extract(0x1000)
	require.False(t, ok)
	require.False(t, p.Remove(0x1000))
}

func TestProtectChangesFlagsNotPA(t *testing.T) {
	p := New()
	p.Enter(0x1000, mem.Pa_t(0x2000), ProtRead|MemAlloc)
	require.True(t, p.Protect(0x1000, ProtRead|ProtWrite))

	pa, flags, ok := p.Extract(0x1000)
	require.True(t, ok)
	require.Equal(t, mem.Pa_t(0x2000), pa)
	require.Equal(t, ProtRead|ProtWrite, flags&ProtAll)

	require.False(t, p.Protect(0x9000, ProtRead))
}

func TestWalkVisitsEveryPresentMapping(t *testing.T) {
	p := New()
	p.Enter(0x1000, mem.Pa_t(0x10000), ProtRead)
	p.Enter(0x2000, mem.Pa_t(0x20000), ProtWrite)

	seen := map[uintptr]mem.Pa_t{}
	p.Walk(func(va uintptr, pte PTE) { seen[va] = pte.PA })

	require.Equal(t, mem.Pa_t(0x10000), seen[0x1000])
	require.Equal(t, mem.Pa_t(0x20000), seen[0x2000])
	require.Len(t, seen, 2)
}
