package klog

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRingEvictsOldestOnOverflow(t *testing.T) {
	r := NewRing(3)
	r.Printf("one")
	r.Printf("two")
	r.Printf("three")
	r.Printf("four")

	require.Equal(t, []string{"two", "three", "four"}, r.Lines())
	require.Equal(t, 3, r.Used())
}

func TestPanicDumpCapturesTail(t *testing.T) {
	r := NewRing(8)
	r.Printf("booting")
	r.Printf("fault at %#x", 0x1000)

	dump := r.Dump("page fault in kernel mode")
	require.Equal(t, "page fault in kernel mode", dump.Reason)
	require.Len(t, dump.Tail, 2)
}
