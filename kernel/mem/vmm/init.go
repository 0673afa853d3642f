package vmm

import (
	"github.com/IAmTheNerdNextDoor/arikoto/kernel/boot"
	"github.com/IAmTheNerdNextDoor/arikoto/kernel/mem"
)

// sectionFlags returns the flags vmm.Init applies to a kernel page at
// virtAddr, enforcing W^X across the image: .text is the sole executable
// (and hence non-writable) range; .rodata is read-only and NX; .data/.bss
// are writable and NX; anything else in the kernel range is NX.
func sectionFlags(virtAddr uintptr) PageTableEntryFlag {
	layout := mem.Layout()
	switch {
	case virtAddr >= layout.TextStart && virtAddr < layout.TextEnd:
		return FlagPresent
	case virtAddr >= layout.RodataStart && virtAddr < layout.RodataEnd:
		return FlagPresent | FlagNX
	case virtAddr >= layout.DataStart && virtAddr < layout.DataEnd:
		return FlagPresent | FlagRW | FlagNX
	default:
		return FlagPresent | FlagNX
	}
}

// buildKernelPagemap allocates a fresh PML4, maps the kernel image
// section-by-section with the W^X policy above, maps every reported memory
// region into the HHDM window, identity-maps low memory below 4 GiB, and
// finally switches CR3 to the new pagemap.
func buildKernelPagemap() {
	kernelPagemap = *NewPagemap()

	layout := mem.Layout()
	kernelSpan := alignUp(layout.BSSEnd)
	for v := layout.VirtBase; v < kernelSpan; v += uintptr(mem.PageSize) {
		phys := (v - layout.VirtBase) + layout.PhysBase
		if !MapPage(&kernelPagemap, v, phys, sectionFlags(v)) {
			panicFn(errOutOfMemory)
			return
		}
	}

	boot.VisitMemRegions(func(entry *boot.MemmapEntry) bool {
		base := entry.Base &^ (uint64(mem.PageSize) - 1)
		top := (entry.Base + entry.Length + uint64(mem.PageSize) - 1) &^ (uint64(mem.PageSize) - 1)
		for p := base; p < top; p += uint64(mem.PageSize) {
			hhdmAddr := mem.PhysToHHDM(uintptr(p))
			if !MapPage(&kernelPagemap, hhdmAddr, uintptr(p), FlagPresent|FlagRW) {
				panicFn(errOutOfMemory)
				return false
			}
		}
		return true
	})

	// Identity-map each reported region up to 4 GiB so early-boot physical
	// pointers stay valid until every subsystem has moved to HHDM
	// addresses. The zero page is left unmapped to keep nil dereferences
	// faulting.
	const fourGiB = uint64(4) << 30
	boot.VisitMemRegions(func(entry *boot.MemmapEntry) bool {
		base := entry.Base &^ (uint64(mem.PageSize) - 1)
		top := entry.Base + entry.Length
		if top > fourGiB {
			top = fourGiB
		}
		for p := base; p < top; p += uint64(mem.PageSize) {
			if p == 0 {
				continue
			}
			if !MapPage(&kernelPagemap, uintptr(p), uintptr(p), FlagPresent|FlagRW) {
				panicFn(errOutOfMemory)
				return false
			}
		}
		return true
	})

	SwitchTo(&kernelPagemap)
}
