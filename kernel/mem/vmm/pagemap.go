package vmm

import (
	"github.com/IAmTheNerdNextDoor/arikoto/kernel/mem"
	"github.com/IAmTheNerdNextDoor/arikoto/kernel/sync"
)

// Pagemap owns one top-level page table (PML4) and the lock that serializes
// edits to it. Lower-level tables are reached (and, when missing, created)
// transitively through walk; they are never shared between pagemaps.
//
// Unlike designs that address inactive tables through a recursive PML4
// slot, TopLevel is always stored as an HHDM virtual address: the boot
// protocol hands over an HHDM offset instead of a spare self-mapping slot,
// so every table in the hierarchy is reached by adding that offset to its
// physical frame address (see DESIGN.md).
type Pagemap struct {
	// TopLevel is the HHDM virtual address of the PML4 table.
	TopLevel uintptr

	lock sync.Spinlock
}

// kernelPagemap is the pagemap built by vmm.Init and activated for the
// lifetime of the kernel.
var kernelPagemap Pagemap

// KernelPagemap returns the kernel's pagemap.
func KernelPagemap() *Pagemap {
	return &kernelPagemap
}

// NewPagemap allocates and zeroes a fresh PML4 using the registered frame
// allocator, returning a Pagemap that owns it. It panics if no frame is
// available (see nextLevel for the same escalation policy used mid-walk).
func NewPagemap() *Pagemap {
	frame := allocateFrameFn()
	if !frame.Valid() {
		panicFn(errOutOfMemory)
		return &Pagemap{}
	}

	hhdmAddr := mem.PhysToHHDM(frame.Address())
	mem.Memset(hhdmAddr, 0, mem.PageSize)
	return &Pagemap{TopLevel: hhdmAddr}
}
