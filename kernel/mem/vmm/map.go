package vmm

import (
	"github.com/IAmTheNerdNextDoor/arikoto/kernel/mem"
)

const pageAddrMask = uintptr(mem.PageSize) - 1

var (
	// flushTLBEntryFn and switchPDTFn are swapped out in tests, which
	// cannot execute privileged instructions.
	flushTLBEntryFn = flushTLBEntry
	switchPDTFn     = switchPDT

	// InvalidAddr is the all-ones sentinel returned by VirtToPhys when
	// virtAddr has no mapping.
	InvalidAddr = ^uintptr(0)
)

// MapPage establishes a mapping from the page containing virtAddr to the
// page-aligned physical address physAddr using the supplied flags (which
// must include FlagPresent for the mapping to take effect). It allocates
// any missing intermediate page tables along the way. It returns false if
// an intermediate table could not be allocated.
func MapPage(pm *Pagemap, virtAddr, physAddr uintptr, flags PageTableEntryFlag) bool {
	pm.lock.Acquire()
	defer pm.lock.Release()

	pte := walkToPTE(pm, virtAddr, true)
	if pte == nil {
		return false
	}

	*pte = pageTableEntry(physAddr &^ pageAddrMask)
	pte.SetFlags(flags)
	flushTLBEntryFn(virtAddr)
	return true
}

// UnmapPage removes any mapping previously installed by MapPage for the
// page containing virtAddr. Unaligned addresses are rejected. A missing
// intermediate table is treated as success, since there was nothing
// mapped to begin with.
func UnmapPage(pm *Pagemap, virtAddr uintptr) bool {
	if virtAddr&pageAddrMask != 0 {
		return false
	}

	pm.lock.Acquire()
	defer pm.lock.Release()

	pte := walkToPTE(pm, virtAddr, false)
	if pte == nil {
		return true
	}

	*pte = 0
	flushTLBEntryFn(virtAddr)
	return true
}

// VirtToPhys translates virtAddr to its mapped physical address, or returns
// InvalidAddr if the page is not present.
func VirtToPhys(pm *Pagemap, virtAddr uintptr) uintptr {
	pm.lock.Acquire()
	defer pm.lock.Release()

	pte := walkToPTE(pm, virtAddr, false)
	if pte == nil || !pte.HasFlags(FlagPresent) {
		return InvalidAddr
	}

	return pte.Frame().Address() + (virtAddr & pageAddrMask)
}

// SwitchTo activates pm by loading its PML4's physical address into CR3.
func SwitchTo(pm *Pagemap) {
	switchPDTFn(pm.TopLevel - mem.HHDMOffset())
}
