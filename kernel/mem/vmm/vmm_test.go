package vmm

import (
	"testing"
	"unsafe"

	"github.com/IAmTheNerdNextDoor/arikoto/kernel/irq"
	"github.com/IAmTheNerdNextDoor/arikoto/kernel/mem"
	"github.com/IAmTheNerdNextDoor/arikoto/kernel/mem/pmm"
)

// withTestPagemap installs a fresh Pagemap whose page tables are carved out
// of a plain Go byte slice rather than real PMM frames, following the same
// convention as heap.withTestHeap: swap the hardware-facing function
// variables, set the HHDM offset to 0 so PhysToHHDM is the identity
// function, and serve frames from a backing arena sized generously enough
// for a handful of page table levels plus mapped "physical" test pages.
func withTestPagemap(t *testing.T, frames int) (*Pagemap, func()) {
	t.Helper()

	buf := make([]byte, uintptr(frames+1)*uintptr(mem.PageSize))
	base := uintptr(unsafe.Pointer(&buf[0]))
	aligned := (base + uintptr(mem.PageSize) - 1) &^ (uintptr(mem.PageSize) - 1)

	origAlloc := allocateFrameFn
	origFlush := flushTLBEntryFn
	origSwitch := switchPDTFn
	origPanic := panicFn
	origOffset := mem.HHDMOffset()

	served := 0
	allocateFrameFn = func() pmm.Frame {
		if served >= frames {
			return pmm.InvalidFrame
		}
		f := pmm.FrameFromAddress(aligned + uintptr(served)*uintptr(mem.PageSize))
		served++
		return f
	}
	flushTLBEntryFn = func(uintptr) {}
	switchPDTFn = func(uintptr) {}
	panicked := false
	panicFn = func(interface{}) { panicked = true }
	mem.SetHHDMOffset(0)

	pm := NewPagemap()
	if panicked {
		t.Fatalf("ran out of backing frames while allocating the PML4 itself; increase frames")
	}

	restore := func() {
		allocateFrameFn = origAlloc
		flushTLBEntryFn = origFlush
		switchPDTFn = origSwitch
		panicFn = origPanic
		mem.SetHHDMOffset(origOffset)
	}
	return pm, restore
}

func TestMapPageRoundTrip(t *testing.T) {
	pm, done := withTestPagemap(t, 8)
	defer done()

	const virt = uintptr(0x0000_4000_0000)
	phys := uintptr(0x0030_0000)

	if !MapPage(pm, virt, phys, FlagPresent|FlagRW) {
		t.Fatal("MapPage failed")
	}

	got := VirtToPhys(pm, virt)
	if got != phys {
		t.Errorf("VirtToPhys(0x%x) = 0x%x, want 0x%x", virt, got, phys)
	}
}

func TestMapPagePreservesOffsetWithinPage(t *testing.T) {
	pm, done := withTestPagemap(t, 8)
	defer done()

	const virt = uintptr(0x0000_4000_1000)
	phys := uintptr(0x0050_0000)

	if !MapPage(pm, virt, phys, FlagPresent|FlagRW) {
		t.Fatal("MapPage failed")
	}

	offset := uintptr(0x123)
	got := VirtToPhys(pm, virt+offset)
	if got != phys+offset {
		t.Errorf("VirtToPhys(virt+0x%x) = 0x%x, want 0x%x", offset, got, phys+offset)
	}
}

func TestVirtToPhysUnmappedReturnsInvalidAddr(t *testing.T) {
	pm, done := withTestPagemap(t, 8)
	defer done()

	if got := VirtToPhys(pm, 0x0000_8000_0000); got != InvalidAddr {
		t.Errorf("expected InvalidAddr for an unmapped address, got 0x%x", got)
	}
}

func TestUnmapPageRemovesMapping(t *testing.T) {
	pm, done := withTestPagemap(t, 8)
	defer done()

	const virt = uintptr(0x0000_4000_0000)
	phys := uintptr(0x0030_0000)

	MapPage(pm, virt, phys, FlagPresent|FlagRW)
	if !UnmapPage(pm, virt) {
		t.Fatal("UnmapPage reported failure")
	}

	if got := VirtToPhys(pm, virt); got != InvalidAddr {
		t.Errorf("expected InvalidAddr after unmap, got 0x%x", got)
	}
}

func TestUnmapPageOfNeverMappedAddressIsNoop(t *testing.T) {
	pm, done := withTestPagemap(t, 8)
	defer done()

	if !UnmapPage(pm, 0x0000_4000_0000) {
		t.Error("expected unmap of a never-mapped page to report success")
	}
}

func TestUnmapPageRejectsUnalignedAddress(t *testing.T) {
	pm, done := withTestPagemap(t, 8)
	defer done()

	if UnmapPage(pm, 0x0000_4000_0001) {
		t.Error("expected unmap of an unaligned address to fail")
	}
}

func TestMapPageFlagsAreObservedThroughWalk(t *testing.T) {
	pm, done := withTestPagemap(t, 8)
	defer done()

	const virt = uintptr(0x0000_4000_0000)
	phys := uintptr(0x0030_0000)
	MapPage(pm, virt, phys, FlagPresent|FlagRW|FlagNX)

	pte := walkToPTE(pm, virt, false)
	if pte == nil {
		t.Fatal("expected a resolvable PTE after mapping")
	}
	if !pte.HasFlags(FlagPresent | FlagRW | FlagNX) {
		t.Errorf("expected Present|RW|NX to be set on the installed PTE")
	}
}

func TestMapPageExhaustionFailsCleanly(t *testing.T) {
	// Only the PML4 frame itself is available (consumed by withTestPagemap
	// building the Pagemap); every walk needs at least three more frames
	// (PDPT, PD, PT) to resolve a never-before-touched virtual address, so
	// the first MapPage call must fail. The panicFn mock below is a no-op;
	// it must not abort the test.
	pm, done := withTestPagemap(t, 1)
	defer done()
	panicFn = func(interface{}) {}

	if MapPage(pm, 0x0000_4000_0000, 0x1000, FlagPresent|FlagRW) {
		t.Error("expected MapPage to fail when the frame allocator is exhausted")
	}
}

func TestTwoMappingsInSamePTDoNotClobberEachOther(t *testing.T) {
	pm, done := withTestPagemap(t, 8)
	defer done()

	const virtA = uintptr(0x0000_4000_0000)
	const virtB = uintptr(0x0000_4000_1000)

	MapPage(pm, virtA, 0x0010_0000, FlagPresent|FlagRW)
	MapPage(pm, virtB, 0x0020_0000, FlagPresent|FlagRW)

	if got := VirtToPhys(pm, virtA); got != 0x0010_0000 {
		t.Errorf("virtA: got 0x%x, want 0x10_0000", got)
	}
	if got := VirtToPhys(pm, virtB); got != 0x0020_0000 {
		t.Errorf("virtB: got 0x%x, want 0x20_0000", got)
	}
}

// withTestKernelLayout points the demand-paging range checks at a synthetic
// kernel image layout and routes readCR2Fn/panicFn through test doubles.
func withTestKernelLayout(t *testing.T, virtBase, bssEnd uintptr) (panicked *bool, restore func()) {
	t.Helper()

	origLayout := mem.Layout()
	origReadCR2 := readCR2Fn
	origPanic := panicFn

	mem.SetKernelLayout(mem.KernelLayout{VirtBase: virtBase, BSSEnd: bssEnd})

	fired := false
	panicFn = func(interface{}) { fired = true }

	return &fired, func() {
		mem.SetKernelLayout(origLayout)
		readCR2Fn = origReadCR2
		panicFn = origPanic
	}
}

func TestPageFaultInKernelRangeIsDemandMapped(t *testing.T) {
	pm, done := withTestPagemap(t, 8)
	defer done()

	const virtBase = uintptr(0x0000_4000_0000)
	panicked, restoreLayout := withTestKernelLayout(t, virtBase, virtBase+0x10000)
	defer restoreLayout()

	kernelPagemap = *pm
	defer func() { kernelPagemap = Pagemap{} }()

	faultAddr := virtBase + 0x2123
	readCR2Fn = func() uintptr { return faultAddr }

	pageFaultHandler(2, &irq.Frame{}, &irq.Regs{})

	if *panicked {
		t.Fatal("expected an in-range fault to be recovered, not escalated")
	}

	page := faultAddr &^ (uintptr(mem.PageSize) - 1)
	if got := VirtToPhys(&kernelPagemap, page); got == InvalidAddr {
		t.Fatal("expected the faulting page to be mapped after the handler ran")
	}

	pte := walkToPTE(&kernelPagemap, page, false)
	if pte == nil || !pte.HasFlags(FlagPresent|FlagRW) {
		t.Error("expected the demand-mapped page to be Present|Writable")
	}
}

func TestPageFaultOutsideKernelRangeIsFatal(t *testing.T) {
	pm, done := withTestPagemap(t, 8)
	defer done()

	const virtBase = uintptr(0x0000_4000_0000)
	panicked, restoreLayout := withTestKernelLayout(t, virtBase, virtBase+0x10000)
	defer restoreLayout()

	kernelPagemap = *pm
	defer func() { kernelPagemap = Pagemap{} }()

	readCR2Fn = func() uintptr { return 0xdead_0000 }

	pageFaultHandler(0, &irq.Frame{}, &irq.Regs{})

	if !*panicked {
		t.Fatal("expected an out-of-range fault to escalate to a panic")
	}
}
