package vmm

import "github.com/IAmTheNerdNextDoor/arikoto/kernel/mem"

// goRuntimeRegionBase is the start of a reserved virtual address range set
// aside for the Go runtime's own allocator (goroutine stacks, GC metadata).
// It is kept well away from both the kernel image range and the kernel
// heap's HHDM-backed region so the three can never alias.
const goRuntimeRegionBase = uintptr(0xffffa00000000000)

var nextGoRuntimeAddr = goRuntimeRegionBase

// ReserveGoRuntimeRegion bump-allocates size bytes (rounded up to a page) of
// virtual address space for the Go runtime's allocator. It never fails: the
// address space handed out here carries no physical backing until MapPage
// is called for a page within it.
func ReserveGoRuntimeRegion(size mem.Size) uintptr {
	aligned := (uintptr(size) + uintptr(mem.PageSize) - 1) &^ (uintptr(mem.PageSize) - 1)
	start := nextGoRuntimeAddr
	nextGoRuntimeAddr += aligned
	return start
}
