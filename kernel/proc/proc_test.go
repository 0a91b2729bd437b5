package proc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"rpikernel/kernel/errs"
	"rpikernel/kernel/handle"
	"rpikernel/kernel/mem"
	"rpikernel/kernel/sched"
)

func newAlloc() *mem.Allocator { return mem.NewAllocator(0, 4*mem.Size64K) }

func TestForkSharesMappingsCOW(t *testing.T) {
	alloc := newAlloc()
	parent := New(1, 16, alloc)

	child, err := Fork(alloc, 2, 16, parent)
	require.Equal(t, errs.OK, err)
	require.Same(t, parent, child.Parent)
	require.Contains(t, parent.Children, child)

	obj, lookupErr := parent.Handles.Lookup(parent, child.Handle, handle.Process)
	require.Equal(t, errs.OK, lookupErr)
	require.Same(t, child, obj)
}

func TestExitReapsHandles(t *testing.T) {
	alloc := newAlloc()
	parent := New(1, 8, alloc)
	child, err := Fork(alloc, 2, 8, parent)
	require.Equal(t, errs.OK, err)

	s := sched.New(&sched.Client{})
	s.Ready(&child.Client)

	full := child.Handles.Len()
	h1, _ := child.Handles.Alloc()
	child.Handles.Set(h1, handle.Channel, child, nil)
	h2, _ := child.Handles.Alloc()
	child.Handles.Set(h2, handle.Notification, child, nil)
	require.Less(t, child.Handles.FreeCount(), full)

	DoExit(s, alloc, child, nil)
	require.Equal(t, full, child.Handles.FreeCount(), "every non-free handle is closed on exit")
	require.Equal(t, StateZombie, child.State)
}

func TestJoinRejectsSelfJoin(t *testing.T) {
	alloc := newAlloc()
	parent := New(1, 8, alloc)
	selfHandle, ok := parent.Handles.Alloc()
	require.True(t, ok)
	parent.Handles.Set(selfHandle, handle.Process, parent, parent)

	_, err := Join(parent, selfHandle)
	require.Equal(t, errs.ParamErr, err)
}

func TestOrphanReparentingOnParentExit(t *testing.T) {
	alloc := newAlloc()
	grandparent := New(1, 16, alloc)
	parent, err := Fork(alloc, 2, 16, grandparent)
	require.Equal(t, errs.OK, err)
	child, err := Fork(alloc, 3, 16, parent)
	require.Equal(t, errs.OK, err)

	s := sched.New(&sched.Client{})
	s.Ready(&parent.Client)

	DoExit(s, alloc, parent, nil)

	require.Same(t, grandparent, child.Parent)
	require.Contains(t, grandparent.Children, child)
}
