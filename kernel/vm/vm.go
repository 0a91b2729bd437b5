// Package vm implements the CPU-independent address-space description: a
// sorted segment list per process, fork (copy-on-write), and teardown.
// Grounded on biscuit/src/vm/as.go's Vm_t/Vmregion_t and the original
// kernel's vm/vm.c (ForkAddressSpace/FreeAddressSpace).
package vm

import (
	"sort"
	"sync"

	"rpikernel/kernel/errs"
	"rpikernel/kernel/mem"
	"rpikernel/kernel/pmap"
)

// SegType classifies one entry of the address-space segment list.
type SegType int

const (
	SegFree SegType = iota
	SegAllocated
	SegPhysical
	SegCeiling
)

// Seg is one entry of the sorted, gap-free segment list covering
// [VMUserBase, VMUserCeiling).
type Seg struct {
	Base    uintptr
	Ceiling uintptr
	Type    SegType
}

const (
	VMUserBase    uintptr = 0x00100000
	VMUserCeiling uintptr = 0xB0000000
)

// AS is one process's virtual address space: the segment list plus its
// backing Pmap. The mutex protects both, matching Vm_t's single lock over
// vmregion/pmap in the teacher.
type AS struct {
	mu   sync.Mutex
	segs []Seg
	Pmap *pmap.Pmap

	alloc *mem.Allocator
}

// New creates an address space with the full user range marked free, plus
// the terminating ceiling entry spec.md requires.
func New(alloc *mem.Allocator) *AS {
	return &AS{
		segs:  []Seg{{Base: VMUserBase, Ceiling: VMUserCeiling, Type: SegFree}, {Base: VMUserCeiling, Ceiling: VMUserCeiling, Type: SegCeiling}},
		Pmap:  pmap.New(),
		alloc: alloc,
	}
}

// Lock/Unlock expose the address-space mutex the way Vm_t.Lock_pmap does,
// for callers (fault handler) that must hold it across a multi-step pmap
// manipulation.
func (as *AS) Lock()   { as.mu.Lock() }
func (as *AS) Unlock() { as.mu.Unlock() }

// markRangeLocked splits/merges the segment list so [base,ceiling) becomes
// typ, keeping the list sorted and gap-free. Must be called with as locked.
func (as *AS) markRangeLocked(base, ceiling uintptr, typ SegType) {
	var out []Seg
	for _, s := range as.segs {
		if ceiling <= s.Base || base >= s.Ceiling || s.Type == SegCeiling {
			out = append(out, s)
			continue
		}
		if s.Base < base {
			out = append(out, Seg{Base: s.Base, Ceiling: base, Type: s.Type})
		}
		out = append(out, Seg{Base: max(base, s.Base), Ceiling: min(ceiling, s.Ceiling), Type: typ})
		if s.Ceiling > ceiling {
			out = append(out, Seg{Base: ceiling, Ceiling: s.Ceiling, Type: s.Type})
		}
	}
	// re-append ceiling sentinel if it fell out of the merge above.
	out = append(out, Seg{Base: VMUserCeiling, Ceiling: VMUserCeiling, Type: SegCeiling})
	sort.Slice(out, func(i, j int) bool { return out[i].Base < out[j].Base })
	as.segs = coalesce(out)
}

func coalesce(segs []Seg) []Seg {
	var out []Seg
	for _, s := range segs {
		if s.Base == s.Ceiling && s.Type != SegCeiling {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Type == s.Type && out[n-1].Ceiling == s.Base {
			out[n-1].Ceiling = s.Ceiling
			continue
		}
		out = append(out, s)
	}
	return out
}

func max(a, b uintptr) uintptr {
	if a > b {
		return a
	}
	return b
}
func min(a, b uintptr) uintptr {
	if a < b {
		return a
	}
	return b
}

// Alloc maps nbytes at addr (page-aligned by the caller), backing each page
// with a fresh pageframe from alloc. Returns bytes actually mapped, per the
// virtualalloc syscall's byte-count-return convention.
func (as *AS) Alloc(addr uintptr, nbytes int, flags pmap.Flags) int {
	as.mu.Lock()
	defer as.mu.Unlock()

	mapped := 0
	for off := 0; off < nbytes; off += mem.PGSIZE {
		pf, ok := as.alloc.Alloc(mem.PGSIZE)
		if !ok {
			break
		}
		as.alloc.Refup(pf)
		as.Pmap.Enter(addr+uintptr(off), pf.PA, flags|pmap.MemAlloc)
		mapped += mem.PGSIZE
	}
	as.markRangeLocked(addr, addr+uintptr(mapped), SegAllocated)
	return mapped
}

// AllocPhys maps a physical range without refcounting, for allow-io
// processes mapping device memory (virtualallocphys).
func (as *AS) AllocPhys(addr uintptr, nbytes int, flags pmap.Flags, paddr mem.Pa_t) int {
	as.mu.Lock()
	defer as.mu.Unlock()

	mapped := 0
	for off := 0; off < nbytes; off += mem.PGSIZE {
		as.Pmap.Enter(addr+uintptr(off), paddr+mem.Pa_t(off), flags|pmap.MemPhys)
		mapped += mem.PGSIZE
	}
	as.markRangeLocked(addr, addr+uintptr(mapped), SegPhysical)
	return mapped
}

// Free unmaps [addr,addr+size), dropping pageframe references for
// MemAlloc pages.
func (as *AS) Free(addr uintptr, size int) int {
	as.mu.Lock()
	defer as.mu.Unlock()

	freed := 0
	for off := 0; off < size; off += mem.PGSIZE {
		va := addr + uintptr(off)
		pa, flags, ok := as.Pmap.Extract(va)
		if !ok {
			continue
		}
		as.Pmap.Remove(va)
		if flags&pmap.MemMask == pmap.MemAlloc {
			if frame, ok := as.alloc.FrameAt(pa); ok {
				as.alloc.Refdown(frame)
			}
		}
		freed += mem.PGSIZE
	}
	as.markRangeLocked(addr, addr+uintptr(freed), SegFree)
	return freed
}

// Protect sets the permission bits and the MapCOW bit of each mapped page
// in the range to those in prot, as pmap.Protect does.
func (as *AS) Protect(addr uintptr, size int, prot pmap.Flags) int {
	as.mu.Lock()
	defer as.mu.Unlock()
	n := 0
	for off := 0; off < size; off += mem.PGSIZE {
		if as.Pmap.Protect(addr+uintptr(off), prot) {
			n += mem.PGSIZE
		}
	}
	return n
}

// Fork walks every present page of old and builds new: writable MemAlloc
// pages become COW+read-only in both parent and child with a refcount
// bump; read-only MemAlloc pages are shared with a refcount bump but no
// COW bit; MemPhys pages are duplicated without accounting. On a partial
// failure the child address space is torn down; parent pages already
// marked COW stay COW.
func Fork(pf *mem.Allocator, old, nw *AS) errs.Err_t {
	old.mu.Lock()
	defer old.mu.Unlock()
	nw.mu.Lock()
	defer nw.mu.Unlock()

	nw.segs = append([]Seg(nil), old.segs...)

	// Walk only snapshots entries; it must return before we mutate old's
	// pmap (Protect below), since Walk holds Pmap.mu for its callback and
	// that mutex is not reentrant.
	type entry struct {
		va  uintptr
		pte pmap.PTE
	}
	var entries []entry
	old.Pmap.Walk(func(va uintptr, pte pmap.PTE) {
		entries = append(entries, entry{va, pte})
	})

	failed := false
	for _, e := range entries {
		if failed {
			break
		}
		switch e.pte.Flags & pmap.MemMask {
		case pmap.MemPhys:
			nw.Pmap.Enter(e.va, e.pte.PA, e.pte.Flags)
		case pmap.MemAlloc:
			frame, ok := pf.FrameAt(e.pte.PA)
			if !ok {
				failed = true
				break
			}
			pf.Refup(frame)
			if e.pte.Flags&pmap.ProtWrite != 0 {
				cowFlags := (e.pte.Flags &^ pmap.ProtWrite) | pmap.MapCOW
				old.Pmap.Protect(e.va, cowFlags)
				nw.Pmap.Enter(e.va, e.pte.PA, cowFlags)
			} else {
				nw.Pmap.Enter(e.va, e.pte.PA, e.pte.Flags)
			}
		}
	}

	if failed {
		cleanupLocked(pf, nw)
		return errs.MemoryErr
	}
	old.Pmap.FlushTLBs()
	nw.Pmap.FlushTLBs()
	return errs.OK
}

// Cleanup iterates every present user page, removing it and decrementing
// MemAlloc pageframe refcounts (returning to zero frees the frame); MemPhys
// pages are unmapped without accounting.
func (as *AS) Cleanup(pf *mem.Allocator) {
	as.mu.Lock()
	defer as.mu.Unlock()
	cleanupLocked(pf, as)
}

func cleanupLocked(pf *mem.Allocator, as *AS) {
	var toRemove []uintptr
	as.Pmap.Walk(func(va uintptr, pte pmap.PTE) {
		toRemove = append(toRemove, va)
		if pte.Flags&pmap.MemMask == pmap.MemAlloc {
			if frame, ok := pf.FrameAt(pte.PA); ok {
				pf.Refdown(frame)
			}
		}
	})
	for _, va := range toRemove {
		as.Pmap.Remove(va)
	}
	as.segs = []Seg{{Base: VMUserBase, Ceiling: VMUserCeiling, Type: SegFree}, {Base: VMUserCeiling, Ceiling: VMUserCeiling, Type: SegCeiling}}
}

// Segments returns a snapshot of the segment list, for tests asserting the
// no-gaps/no-overlap invariant.
func (as *AS) Segments() []Seg {
	as.mu.Lock()
	defer as.mu.Unlock()
	return append([]Seg(nil), as.segs...)
}
