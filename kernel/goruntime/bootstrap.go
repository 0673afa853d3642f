// Package goruntime contains code for bootstrapping Go runtime features such
// as the memory allocator.
package goruntime

import (
	"sync/atomic"
	"unsafe"

	"github.com/IAmTheNerdNextDoor/arikoto/kernel"
	"github.com/IAmTheNerdNextDoor/arikoto/kernel/mem"
	"github.com/IAmTheNerdNextDoor/arikoto/kernel/mem/pmm"
	"github.com/IAmTheNerdNextDoor/arikoto/kernel/mem/vmm"
)

var (
	reserveRegionFn = vmm.ReserveGoRuntimeRegion
	mapPageFn       = vmm.MapPage
	allocatePageFn  = pmm.AllocatePage

	errOutOfMemory = &kernel.Error{Module: "goruntime", Message: "out of physical memory"}
)

// mSysStatInc accumulates size into the runtime memory statistic at stat,
// the bookkeeping the runtime expects its sys* hooks to perform after a
// successful reservation.
func mSysStatInc(stat *uint64, size uintptr) {
	if stat == nil {
		return
	}
	atomic.AddUint64(stat, uint64(size))
}

// sysReserve reserves address space without allocating any memory or
// establishing any page mappings.
//
// This function replaces runtime.sysReserve and is required for initializing
// the Go allocator.
//
//go:redirect-from runtime.sysReserve
//go:nosplit
func sysReserve(_ unsafe.Pointer, size uintptr, reserved *bool) unsafe.Pointer {
	*reserved = true
	return unsafe.Pointer(reserveRegionFn(mem.Size(size)))
}

// mapRange backs every page in [addr, addr+size) with a freshly allocated
// physical frame and maps it RW|NX into the kernel pagemap. It returns false
// on the first allocation or mapping failure.
func mapRange(addr, size uintptr, flags vmm.PageTableEntryFlag) bool {
	pageSize := uintptr(mem.PageSize)
	start := addr &^ (pageSize - 1)
	end := (addr + size + pageSize - 1) &^ (pageSize - 1)

	for page := start; page < end; page += pageSize {
		frame := allocatePageFn()
		if !frame.Valid() {
			return false
		}
		if !mapPageFn(vmm.KernelPagemap(), page, frame.Address(), flags) {
			return false
		}
	}
	return true
}

// sysMap establishes a mapping for a memory region that has been reserved
// previously via a call to sysReserve.
//
// This function replaces runtime.sysMap and is required for initializing the
// Go allocator.
//
//go:redirect-from runtime.sysMap
//go:nosplit
func sysMap(virtAddr unsafe.Pointer, size uintptr, reserved bool, sysStat *uint64) unsafe.Pointer {
	if !reserved {
		panic("sysMap should only be called with reserved=true")
	}

	if !mapRange(uintptr(virtAddr), size, vmm.FlagPresent|vmm.FlagRW|vmm.FlagNX) {
		return unsafe.Pointer(uintptr(0))
	}

	mSysStatInc(sysStat, uintptr(size))
	return virtAddr
}

// sysAlloc reserves enough physical frames to satisfy the allocation request
// and establishes a contiguous virtual page mapping for them, returning a
// pointer to the start of the virtual region.
//
// This function replaces runtime.sysAlloc and is required for initializing
// the Go allocator.
//
//go:redirect-from runtime.sysAlloc
//go:nosplit
func sysAlloc(size uintptr, sysStat *uint64) unsafe.Pointer {
	start := reserveRegionFn(mem.Size(size))

	if !mapRange(start, size, vmm.FlagPresent|vmm.FlagRW|vmm.FlagNX) {
		return unsafe.Pointer(uintptr(0))
	}

	mSysStatInc(sysStat, uintptr(size))
	return unsafe.Pointer(start)
}

func init() {
	// Dummy calls so the compiler does not optimize away the functions in
	// this file.
	var (
		reserved bool
		stat     uint64
		zeroPtr  = unsafe.Pointer(uintptr(0))
	)

	sysReserve(zeroPtr, 0, &reserved)
	sysMap(zeroPtr, 0, reserved, &stat)
	sysAlloc(0, &stat)
}
