package vmm

import (
	"github.com/IAmTheNerdNextDoor/arikoto/kernel/mem/pmm"
)

// PageTableEntryFlag describes a flag that can be applied to a page table
// entry. Bit positions match the x86_64 PTE encoding.
type PageTableEntryFlag uintptr

const (
	// FlagPresent marks the entry as present in the page table.
	FlagPresent PageTableEntryFlag = 1 << 0
	// FlagRW marks the mapped page as writable.
	FlagRW PageTableEntryFlag = 1 << 1
	// FlagUser marks the mapped page as accessible from user mode.
	FlagUser PageTableEntryFlag = 1 << 2
	// FlagPWT enables write-through caching for the mapped page.
	FlagPWT PageTableEntryFlag = 1 << 3
	// FlagPCD disables caching for the mapped page.
	FlagPCD PageTableEntryFlag = 1 << 4
	// FlagAccessed is set by the CPU the first time the page is accessed.
	FlagAccessed PageTableEntryFlag = 1 << 5
	// FlagDirty is set by the CPU the first time the page is written to.
	FlagDirty PageTableEntryFlag = 1 << 6
	// FlagPAT selects the page attribute table entry for the mapping.
	FlagPAT PageTableEntryFlag = 1 << 7
	// FlagGlobal prevents the TLB entry from being flushed on a CR3 reload.
	FlagGlobal PageTableEntryFlag = 1 << 8
	// FlagNX marks the page as non-executable; an instruction fetch from
	// a page with this flag set raises a page fault.
	FlagNX PageTableEntryFlag = 1 << 63

	// ptePhysPageMask isolates bits 12..51, the physical frame address
	// carried by a page table entry.
	ptePhysPageMask = uintptr(0x000ffffffffff000)
)

// pageTableEntry describes a single 64-bit page table entry.
type pageTableEntry uintptr

// HasFlags returns true if this entry has all the input flags set.
func (pte pageTableEntry) HasFlags(flags PageTableEntryFlag) bool {
	return (uintptr(pte) & uintptr(flags)) == uintptr(flags)
}

// SetFlags sets the input list of flags on the page table entry.
func (pte *pageTableEntry) SetFlags(flags PageTableEntryFlag) {
	*pte = pageTableEntry(uintptr(*pte) | uintptr(flags))
}

// ClearFlags unsets the input list of flags from the page table entry.
func (pte *pageTableEntry) ClearFlags(flags PageTableEntryFlag) {
	*pte = pageTableEntry(uintptr(*pte) &^ uintptr(flags))
}

// Frame returns the physical page frame that this page table entry points to.
func (pte pageTableEntry) Frame() pmm.Frame {
	return pmm.FrameFromAddress((uintptr(pte) & ptePhysPageMask))
}

// SetFrame updates the page table entry to point at the given physical frame.
func (pte *pageTableEntry) SetFrame(frame pmm.Frame) {
	*pte = pageTableEntry((uintptr(*pte) &^ ptePhysPageMask) | frame.Address())
}

// pageLevels is the number of levels in the x86_64 paging hierarchy that
// this walker traverses (PML4, PDPT, PD, PT).
const pageLevels = 4

// pageLevelShifts holds the bit offset of the index for each of the four
// paging levels (PML4, PDPT, PD, PT) within a virtual address.
var pageLevelShifts = [pageLevels]uint{39, 30, 21, 12}

// pageLevelMask isolates the 9-bit index carried at each paging level
// (512 entries per table).
const pageLevelMask = uintptr(1<<9) - 1

func levelIndex(virtAddr uintptr, level uint) uintptr {
	return (virtAddr >> pageLevelShifts[level]) & pageLevelMask
}
