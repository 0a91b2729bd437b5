// Package fault implements the page-fault classification and
// copy-on-write service described in spec.md §4.3, grounded on
// original_source/kernel/vm/pagefault.c.
package fault

import (
	"fmt"

	"golang.org/x/arch/arm/armasm"

	"rpikernel/kernel/errs"
	"rpikernel/kernel/mem"
	"rpikernel/kernel/pmap"
	"rpikernel/kernel/vm"
)

// Access describes the kind of memory access that faulted.
type Access uint32

const (
	AccessRead Access = 1 << iota
	AccessWrite
)

// KernelFaultPanic is the panic value Handle raises for a fault taken while
// the big kernel lock was held (spec.md step 1: kernel code must never
// fault). Handle sets only Addr; it has no access to the faulting
// instruction word, so Instruction is left empty.
type KernelFaultPanic struct {
	Addr        uintptr
	Instruction string
}

func (k KernelFaultPanic) Error() string {
	return fmt.Sprintf("page fault in kernel mode at %#x (%s)", k.Addr, k.Instruction)
}

// DisassembleFaultingWord decodes an ARM instruction word at pc into its
// GNU-syntax mnemonic using golang.org/x/arch/arm/armasm, or a hex
// placeholder when the word does not decode. Handle does not call it.
func DisassembleFaultingWord(word uint32, pc uint64) string {
	var buf [4]byte
	buf[0] = byte(word)
	buf[1] = byte(word >> 8)
	buf[2] = byte(word >> 16)
	buf[3] = byte(word >> 24)
	inst, err := armasm.Decode(buf[:], armasm.ModeARM)
	if err != nil {
		return fmt.Sprintf("<undecodable opcode %#08x>", word)
	}
	return armasm.GNUSyntax(inst, pc, nil)
}

// Handle runs the page-fault algorithm of spec.md §4.3 against as at the
// faulting address, servicing copy-on-write when applicable. inKernel must
// be true if the fault occurred while executing kernel code (the caller is
// responsible for knowing this from the trap frame); Handle panics in that
// case per step 1.
func Handle(alloc *mem.Allocator, as *vm.AS, addr uintptr, access Access, inKernel bool) errs.Err_t {
	if inKernel {
		panic(KernelFaultPanic{Addr: addr})
	}

	va := addr &^ (mem.PGSIZE - 1)

	as.Lock()
	defer as.Unlock()

	pa, flags, ok := as.Pmap.Extract(va)
	if !ok {
		return errs.MemoryErr
	}
	if flags&pmap.MemMask == pmap.MemPhys {
		return errs.MemoryErr
	}
	if access&AccessWrite == 0 {
		return errs.MemoryErr
	}
	writable := flags&pmap.ProtWrite != 0
	cow := flags&pmap.MapCOW != 0
	if writable && !cow {
		// Spurious: already writable and not COW.
		return errs.MemoryErr
	}
	if !cow {
		return errs.MemoryErr
	}

	frame, ok := alloc.FrameAt(pa)
	if !ok {
		return errs.MemoryErr
	}

	newFlags := (flags &^ pmap.MapCOW) | pmap.ProtWrite

	if frame.RefCnt > 1 {
		newFrame, ok := alloc.Alloc(mem.PGSIZE)
		if !ok {
			return errs.MemoryErr
		}
		copyPage(newFrame, frame)
		as.Pmap.Remove(va)
		as.Pmap.Enter(va, newFrame.PA, newFlags)
		alloc.Refdown(frame)
		alloc.Refup(newFrame)
	} else {
		as.Pmap.Remove(va)
		as.Pmap.Enter(va, pa, newFlags)
	}

	as.Pmap.FlushTLBs()
	return errs.OK
}

// copyPage models the physical-memory copy the original performs via
// PmapPaToVa+MemCpy; in this host-simulated kernel the page bytes live in
// the Pageframe descriptor's Bytes field.
func copyPage(dst, src *mem.Pageframe) {
	copy(dst.Bytes[:], src.Bytes[:])
}
