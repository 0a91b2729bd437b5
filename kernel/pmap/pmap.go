// Package pmap implements the CPU-dependent page-table map: lazily
// allocated leaf mappings keyed by virtual page number. See
// SPEC_FULL.md's Open Question entry on the backing-store substitution:
// the exported surface (Enter/Remove/Extract/Protect) matches spec.md §4.2
// exactly; only the leaf storage is a Go map rather than literal ARM
// short-descriptor page-table bytes.
package pmap

import (
	"sync"

	"rpikernel/kernel/mem"
)

// Mapping flag bits, named after the original kernel's vm.h PROT_*/MEM_*/
// MAP_COW constants.
type Flags uint32

const (
	ProtRead  Flags = 1 << 0
	ProtWrite Flags = 1 << 1
	ProtExec  Flags = 1 << 2
	ProtAll   Flags = ProtRead | ProtWrite | ProtExec

	MemAlloc Flags = 1 << 8 // backed by a refcounted pageframe
	MemPhys  Flags = 1 << 9 // raw physical mapping, never refcounted
	MemMask  Flags = MemAlloc | MemPhys

	MapCOW Flags = 1 << 16
)

// Vpn is a virtual page number (VA >> PGSHIFT).
type Vpn uintptr

func VpnOf(va uintptr) Vpn { return Vpn(va >> mem.PGSHIFT) }

// PTE is one leaf page-table entry.
type PTE struct {
	PA    mem.Pa_t
	Flags Flags
}

func (p PTE) Present() bool { return p.Flags != 0 }

// Pmap owns the leaf mappings for one address space. Every present entry
// corresponds to exactly one pageframe (MemAlloc) or one MMIO physical
// address (MemPhys), per spec.md's pmap invariant. The L2-span map models
// "lazily allocated second-level page tables": a span is created the first
// time any page within its 1MiB range is entered.
type Pmap struct {
	mu    sync.Mutex
	leafs map[Vpn]PTE
	spans map[uintptr]bool // 1MiB span id -> allocated
}

const spanShift = 20 // 1 MiB

func spanOf(va uintptr) uintptr { return va >> spanShift }

func New() *Pmap {
	return &Pmap{
		leafs: make(map[Vpn]PTE),
		spans: make(map[uintptr]bool),
	}
}

// Enter inserts a leaf mapping, lazily materializing the L2 span on first
// use within it.
func (p *Pmap) Enter(va uintptr, pa mem.Pa_t, flags Flags) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.spans[spanOf(va)] = true
	p.leafs[VpnOf(va)] = PTE{PA: pa, Flags: flags}
}

// Remove clears a leaf mapping. Returns false if none was present.
func (p *Pmap) Remove(va uintptr) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	vpn := VpnOf(va)
	if _, ok := p.leafs[vpn]; !ok {
		return false
	}
	delete(p.leafs, vpn)
	return true
}

// Extract returns the (pa, flags) of the mapping at va, or ok=false if not
// present.
func (p *Pmap) Extract(va uintptr) (mem.Pa_t, Flags, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pte, ok := p.leafs[VpnOf(va)]
	if !ok {
		return 0, 0, false
	}
	return pte.PA, pte.Flags, true
}

// Protect replaces the permission bits and the MapCOW bit of an existing
// mapping with those in prot, leaving its physical address and MemMask
// bits untouched.
func (p *Pmap) Protect(va uintptr, prot Flags) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	vpn := VpnOf(va)
	pte, ok := p.leafs[vpn]
	if !ok {
		return false
	}
	pte.Flags = (pte.Flags &^ ProtAll &^ MapCOW) | (prot & (ProtAll | MapCOW))
	p.leafs[vpn] = pte
	return true
}

// Walk calls fn for every present mapping, in unspecified order. Used by
// fork/cleanup which must visit every present user page (spec.md §4.2).
func (p *Pmap) Walk(fn func(va uintptr, pte PTE)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for vpn, pte := range p.leafs {
		fn(uintptr(vpn)<<mem.PGSHIFT, pte)
	}
}

// FlushTLBs is a no-op placeholder for the hardware TLB invalidation that a
// real ARM pmap performs; kept as an explicit call site so callers match
// spec.md's "After a successful walk the TLBs are flushed" / "Flush TLBs"
// steps exactly.
func (p *Pmap) FlushTLBs() {}
