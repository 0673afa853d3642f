package vmm

import (
	"unsafe"

	"github.com/IAmTheNerdNextDoor/arikoto/kernel/mem"
	"github.com/IAmTheNerdNextDoor/arikoto/kernel/mem/pmm"
)

var (
	// allocateFrameFn is swapped out in tests so the walker can be
	// exercised without a real PMM backing it.
	allocateFrameFn = pmm.AllocatePage
)

// entryAt returns a pointer to the page table entry at index within the
// table whose HHDM virtual address is tableAddr.
func entryAt(tableAddr, index uintptr) *pageTableEntry {
	return (*pageTableEntry)(unsafe.Pointer(tableAddr + (index << mem.PointerShift)))
}

// nextLevel descends one paging level: if the entry at index is present,
// it returns the HHDM address of the table (or, at the leaf level, the
// frame) it refers to. Otherwise, when allocate is false it reports
// failure; when allocate is true it reserves a fresh physical frame from
// the PMM, zeroes it and installs it into the parent with
// Present|Writable, then returns its HHDM address.
//
// PMM exhaustion while allocate is true is fatal: it is only ever reached
// while building or extending the paging structures, and a half-installed
// page table is an unrecoverable state.
func nextLevel(tableAddr, index uintptr, allocate bool) (uintptr, bool) {
	pte := entryAt(tableAddr, index)

	if pte.HasFlags(FlagPresent) {
		return mem.PhysToHHDM(pte.Frame().Address()), true
	}

	if !allocate {
		return 0, false
	}

	frame := allocateFrameFn()
	if !frame.Valid() {
		panicFn(errOutOfMemory)
		return 0, false
	}

	hhdmAddr := mem.PhysToHHDM(frame.Address())
	mem.Memset(hhdmAddr, 0, mem.PageSize)

	*pte = 0
	pte.SetFrame(frame)
	pte.SetFlags(FlagPresent | FlagRW)

	return hhdmAddr, true
}

// walkToPTE walks the four paging levels for virtAddr, allocating missing
// intermediate tables when allocate is true, and returns a pointer to the
// leaf (PT-level) entry. It returns nil if an intermediate table is missing
// and allocate is false.
func walkToPTE(pm *Pagemap, virtAddr uintptr, allocate bool) *pageTableEntry {
	table := pm.TopLevel
	for level := uint(0); level < pageLevels-1; level++ {
		next, ok := nextLevel(table, levelIndex(virtAddr, level), allocate)
		if !ok {
			return nil
		}
		table = next
	}

	return entryAt(table, levelIndex(virtAddr, pageLevels-1))
}
