// Package mem implements the pageframe allocator: a buddy-like 4K/16K/64K
// slab manager over physical RAM, grounded on biscuit's Physmem_t and the
// original kernel's AllocPageframe/FreePageframe.
package mem

import (
	"sync"
	"sync/atomic"
)

// PGSHIFT and PGSIZE describe the base page granularity. Larger classes are
// exact multiples: 16K = 4*PGSIZE, 64K = 16*PGSIZE.
const (
	PGSHIFT = 12
	PGSIZE  = 1 << PGSHIFT // 4096

	Size4K  = 4 * 1024
	Size16K = 16 * 1024
	Size64K = 64 * 1024
)

// Pa_t is a physical address, kept as its own type the way biscuit keeps
// Pa_t distinct from a bare uintptr.
type Pa_t uintptr

// classOf rounds a requested size up to the smallest page class that fits.
func classOf(size int) (int, bool) {
	switch {
	case size <= Size4K:
		return Size4K, true
	case size <= Size16K:
		return Size16K, true
	case size <= Size64K:
		return Size64K, true
	default:
		return 0, false
	}
}

// Pageframe describes one physical page. Alloc hands out an in-use frame
// with RefCnt 0; callers take references with Refup, and the Refdown that
// brings RefCnt back to zero frees the frame.
type Pageframe struct {
	PA       Pa_t
	Size     int
	InUse    bool
	RefCnt   int32
	Bytes    [PGSIZE]byte // backing storage for the leaf 4K page's content
	next     *Pageframe   // free-list linkage for its size class
	slabBase *Pageframe   // first frame of the enclosing 64K slab
}

// Allocator owns the three free lists and the full pageframe table, indexed
// contiguously by physical page number the way biscuit's Physmem_t.Pgs is.
type Allocator struct {
	mu sync.Mutex

	table   []*Pageframe // indexed by 4K page number from base
	base    Pa_t
	free4k  *Pageframe
	free16k *Pageframe
	free64k *Pageframe

	total4kEquiv int
}

// NewAllocator carves nbytes of physical RAM starting at base into 64K
// slabs, all initially free, matching the original's boot-time population
// of pageframe_table for "every page in the kernel-managed range".
func NewAllocator(base Pa_t, nbytes int) *Allocator {
	if nbytes%Size64K != 0 {
		nbytes -= nbytes % Size64K
	}
	n4k := nbytes / Size4K
	a := &Allocator{
		base:         base,
		table:        make([]*Pageframe, n4k),
		total4kEquiv: n4k,
	}
	for off := 0; off < nbytes; off += Size64K {
		slab := &Pageframe{PA: base + Pa_t(off), Size: Size64K}
		slab.slabBase = slab
		idx := off / PGSIZE
		a.table[idx] = slab
		a.pushFree(&a.free64k, slab)
		// Fill in the per-4K descriptors of the slab so later splits can
		// find them without allocating; they stay untracked (not on any
		// free list) until a split pushes them there.
		for i := 1; i < Size64K/PGSIZE; i++ {
			pf := &Pageframe{PA: base + Pa_t(off) + Pa_t(i*PGSIZE), Size: PGSIZE, slabBase: slab}
			a.table[idx+i] = pf
		}
	}
	return a
}

func (a *Allocator) pushFree(head **Pageframe, pf *Pageframe) {
	pf.next = *head
	*head = pf
}

func (a *Allocator) popFree(head **Pageframe) *Pageframe {
	pf := *head
	if pf == nil {
		return nil
	}
	*head = pf.next
	pf.next = nil
	return pf
}

func (a *Allocator) listFor(size int) **Pageframe {
	switch size {
	case Size4K:
		return &a.free4k
	case Size16K:
		return &a.free16k
	default:
		return &a.free64k
	}
}

func (a *Allocator) idxOf(pf *Pageframe) int {
	return int((pf.PA - a.base) / PGSIZE)
}

// Alloc allocates one pageframe of at least size bytes, rounding up to the
// nearest class and promoting from the next-larger class by splitting when
// the requested class's free list is empty, per spec.md §4.1.
func (a *Allocator) Alloc(size int) (*Pageframe, bool) {
	class, ok := classOf(size)
	if !ok {
		return nil, false
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	pf := a.allocClassLocked(class)
	if pf == nil {
		return nil, false
	}
	pf.InUse = true
	pf.RefCnt = 0
	return pf, true
}

func (a *Allocator) allocClassLocked(class int) *Pageframe {
	if pf := a.popFree(a.listFor(class)); pf != nil {
		return pf
	}
	switch class {
	case Size4K:
		slab := a.popFree(&a.free16k)
		if slab == nil {
			slab = a.allocClassLocked(Size64K)
			if slab == nil {
				return nil
			}
			return a.split64to4(slab)
		}
		return a.split16to4(slab)
	case Size16K:
		slab := a.popFree(&a.free64k)
		if slab == nil {
			return nil
		}
		return a.split64to16(slab)
	default: // Size64K
		return nil
	}
}

// split64to4 carves a 64K slab into sixteen 4K frames, pushes 15 onto the
// 4K free list and returns the 16th, exactly as the original's
// AllocPageframe loop (t=15..1).
func (a *Allocator) split64to4(slab *Pageframe) *Pageframe {
	base := a.idxOf(slab)
	slab.Size = Size4K
	for i := 15; i >= 1; i-- {
		pf := a.table[base+i]
		pf.Size = Size4K
		a.pushFree(&a.free4k, pf)
	}
	return slab
}

// split64to16 carves a 64K slab into four 16K frames, keeping 3 free.
func (a *Allocator) split64to16(slab *Pageframe) *Pageframe {
	base := a.idxOf(slab)
	slab.Size = Size16K
	for i := 3; i >= 1; i-- {
		pf := a.table[base+i*4]
		pf.Size = Size16K
		a.pushFree(&a.free16k, pf)
	}
	return slab
}

// split16to4 carves a 16K frame (already split from a 64K slab, or a bare
// 16K slab) into four 4K frames.
func (a *Allocator) split16to4(slab *Pageframe) *Pageframe {
	base := a.idxOf(slab)
	slab.Size = Size4K
	for i := 3; i >= 1; i-- {
		pf := a.table[base+i]
		pf.Size = Size4K
		a.pushFree(&a.free4k, pf)
	}
	return slab
}

// Free returns pf to its size class, coalescing four 16K frames (or sixteen
// 4K frames) back into one 64K frame once every constituent is free.
func (a *Allocator) Free(pf *Pageframe) {
	a.mu.Lock()
	defer a.mu.Unlock()

	pf.InUse = false
	pf.RefCnt = 0

	if pf.Size == Size64K {
		a.pushFree(&a.free64k, pf)
		return
	}

	a.pushFree(a.listFor(pf.Size), pf)
	a.maybeCoalesce(pf)
}

// maybeCoalesce checks the enclosing 64K slab of pf: if every constituent
// frame is free, pulls them off the small-class list and reassembles one
// 64K frame. O(16) and bounded, per spec.md.
func (a *Allocator) maybeCoalesce(pf *Pageframe) {
	slab := pf.slabBase
	slabIdx := a.idxOf(slab)
	stride := pf.Size / PGSIZE
	count := Size64K / pf.Size

	for i := 0; i < count; i++ {
		cand := a.table[slabIdx+i*stride]
		if cand.InUse || cand.Size != pf.Size {
			return
		}
	}

	list := a.listFor(pf.Size)
	for i := 0; i < count; i++ {
		cand := a.table[slabIdx+i*stride]
		a.removeFree(list, cand)
	}
	slab.Size = Size64K
	a.pushFree(&a.free64k, slab)
}

func (a *Allocator) removeFree(head **Pageframe, target *Pageframe) {
	cur := *head
	var prev *Pageframe
	for cur != nil {
		if cur == target {
			if prev == nil {
				*head = cur.next
			} else {
				prev.next = cur.next
			}
			cur.next = nil
			return
		}
		prev = cur
		cur = cur.next
	}
}

// Refup increments the reference count of an in-use frame (shared COW
// pages, per §4.2's fork_address_space).
func (a *Allocator) Refup(pf *Pageframe) {
	atomic.AddInt32(&pf.RefCnt, 1)
}

// Refdown decrements the reference count and frees the frame to the
// allocator when it reaches zero, returning true if freed.
func (a *Allocator) Refdown(pf *Pageframe) bool {
	if atomic.AddInt32(&pf.RefCnt, -1) <= 0 {
		a.Free(pf)
		return true
	}
	return false
}

// Conservation reports (free4k, free16k, free64k, inUse) counts expressed
// in 4K-equivalent units, used by the pageframe-conservation property test
// in §8: free4k + 4*free16k + 16*free64k + inUse must equal Total4KEquiv.
func (a *Allocator) Conservation() (free4k, free16k, free64k, inUse int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for p := a.free4k; p != nil; p = p.next {
		free4k++
	}
	for p := a.free16k; p != nil; p = p.next {
		free16k++
	}
	for p := a.free64k; p != nil; p = p.next {
		free64k++
	}
	for _, p := range a.table {
		if p.InUse {
			inUse += p.Size / PGSIZE
		}
	}
	return
}

// Total4KEquiv returns the allocator's total capacity in 4K-page units.
func (a *Allocator) Total4KEquiv() int { return a.total4kEquiv }

// FrameAt returns the Pageframe descriptor whose base physical address is
// pa, used by kernel/vm to turn a bare PA recorded in a PTE back into the
// refcounted object (the pmap itself only ever stores the PA, mirroring the
// original kernel's PmapPaToPf). Every 4K slot keeps one fixed descriptor
// for the lifetime of the allocator, so indexing by page number always
// finds the live descriptor regardless of its current split class.
func (a *Allocator) FrameAt(pa Pa_t) (*Pageframe, bool) {
	if pa < a.base {
		return nil, false
	}
	idx := int((pa - a.base) / PGSIZE)
	if idx < 0 || idx >= len(a.table) {
		return nil, false
	}
	pf := a.table[idx]
	if pf == nil || pf.PA != pa {
		return nil, false
	}
	return pf, true
}
