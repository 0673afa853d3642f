// Package heap implements the kernel's general-purpose allocator: a
// first-fit, address-sorted, coalescing free list layered on top of a
// contiguous region of pages acquired from the PMM and addressed through
// the HHDM. It is the kernel-facing counterpart to the goruntime
// bootstrap: that package feeds Go's own collector, while this one backs
// Kmalloc/Kfree/Kcalloc/Krealloc calls made directly by the rest of the
// kernel (task control blocks, kernel stacks, ...).
package heap

import (
	"unsafe"

	"github.com/IAmTheNerdNextDoor/arikoto/kernel"
	"github.com/IAmTheNerdNextDoor/arikoto/kernel/kfmt/early"
	"github.com/IAmTheNerdNextDoor/arikoto/kernel/mem"
	"github.com/IAmTheNerdNextDoor/arikoto/kernel/mem/pmm"
	"github.com/IAmTheNerdNextDoor/arikoto/kernel/sync"
)

const (
	// initialHeapPages is the number of page frames InitHeap tries to
	// acquire from the PMM for the heap's backing region.
	initialHeapPages = 1024

	// alignment is the minimum alignment (in bytes) of every pointer
	// returned by Kmalloc.
	alignment = 16

	// cookieSize is the number of bytes reserved ahead of every
	// allocation's user bytes: one alignment unit, so the user pointer
	// keeps the block's 16-byte alignment. The size_t cookie occupies the
	// last 8 of them, the word right below the user pointer.
	cookieSize = uint64(alignment)

	// headerSize is the minimum granule for a free block: a size/next
	// pair, embedded in the block's own first bytes.
	headerSize = uint64(unsafe.Sizeof(freeBlock{}))
)

// freeBlock is the header embedded in the first bytes of every block
// currently on the free list. size is the total size of the block
// (including this header); next is the HHDM virtual address of the next
// free block in address order, or 0 for the list tail.
type freeBlock struct {
	size uint64
	next uintptr
}

var (
	lock sync.Spinlock

	heapStart uintptr
	heapSize  uint64
	freeHead  uintptr // 0 means the free list is empty

	// the following are swapped out by tests and automatically inlined by
	// the compiler when building the kernel.
	allocatePageFn = pmm.AllocatePage
	panicFn        = kernel.Panic

	errHeapExhausted  = &kernel.Error{Module: "heap", Message: "out of heap memory"}
	errHeapCorruption = &kernel.Error{Module: "heap", Message: "heap corruption detected"}
)

func blockAt(addr uintptr) *freeBlock {
	return (*freeBlock)(unsafe.Pointer(addr))
}

// cookieAt returns the size cookie of the allocated block starting at
// blockAddr.
func cookieAt(blockAddr uintptr) *uint64 {
	return (*uint64)(unsafe.Pointer(blockAddr + uintptr(cookieSize) - unsafe.Sizeof(uint64(0))))
}

func alignUp16(n uint64) uint64 {
	return (n + alignment - 1) &^ (alignment - 1)
}

// InitHeap acquires up to initialHeapPages contiguous page frames from the
// PMM and installs a single free block spanning the whole region. Frames
// are requested one at a time; the region stops growing at the first frame
// that is not immediately adjacent to the previous one, since the free
// list this package maintains assumes one contiguous HHDM-addressed
// region (see DESIGN.md for the discontiguous-backing limitation this
// mirrors from the source).
func InitHeap() *kernel.Error {
	first := allocatePageFn()
	if !first.Valid() {
		return errHeapExhausted
	}

	heapStart = mem.PhysToHHDM(first.Address())
	heapSize = uint64(mem.PageSize)

	prevFrame := first
	for i := 1; i < initialHeapPages; i++ {
		next := allocatePageFn()
		if !next.Valid() {
			early.Printf("[heap] could not allocate all %d initial heap pages; got %d\n", initialHeapPages, i)
			break
		}
		if next.Address() != prevFrame.Address()+uintptr(mem.PageSize) {
			pmm.FreePage(next.Address())
			early.Printf("[heap] backing pages are not contiguous; heap capped at %d pages\n", i)
			break
		}
		heapSize += uint64(mem.PageSize)
		prevFrame = next
	}

	freeHead = heapStart
	head := blockAt(freeHead)
	head.size = heapSize
	head.next = 0

	early.Printf("[heap] initialized %d bytes at 0x%x\n", heapSize, heapStart)
	return nil
}

// Kmalloc reserves n bytes and returns the HHDM virtual address of the
// first user byte, 16-byte aligned. It returns 0 when the free list cannot
// satisfy the request.
func Kmalloc(n mem.Size) uintptr {
	if n == 0 {
		return 0
	}

	total := alignUp16(uint64(n) + cookieSize)
	if total < headerSize {
		total = headerSize
	}

	lock.Acquire()
	defer lock.Release()

	var prevAddr uintptr
	curAddr := freeHead
	for curAddr != 0 {
		cur := blockAt(curAddr)
		if cur.size >= total {
			if cur.size-total >= headerSize {
				tailAddr := curAddr + uintptr(total)
				tail := blockAt(tailAddr)
				tail.size = cur.size - total
				tail.next = cur.next

				if prevAddr == 0 {
					freeHead = tailAddr
				} else {
					blockAt(prevAddr).next = tailAddr
				}
				cur.size = total
			} else {
				if prevAddr == 0 {
					freeHead = cur.next
				} else {
					blockAt(prevAddr).next = cur.next
				}
			}

			*cookieAt(curAddr) = cur.size
			return curAddr + uintptr(cookieSize)
		}

		prevAddr = curAddr
		curAddr = cur.next
	}

	early.Printf("[heap] kmalloc: out of heap memory (requested %d bytes)\n", uint64(n))
	return 0
}

// Kfree releases a block previously returned by Kmalloc, Kcalloc or
// Krealloc back to the free list, coalescing it with its immediate
// address-order neighbours if they are physically adjacent.
func Kfree(ptr uintptr) {
	if ptr == 0 {
		return
	}

	blockAddr := ptr - uintptr(cookieSize)
	total := *cookieAt(blockAddr)

	if blockAddr < heapStart || blockAddr+uintptr(total) > heapStart+uintptr(heapSize) ||
		total < headerSize || blockAddr%alignment != 0 {
		panicFn(errHeapCorruption)
		return
	}

	lock.Acquire()
	defer lock.Release()

	freed := blockAt(blockAddr)
	freed.size = total

	var prevAddr uintptr
	curAddr := freeHead
	for curAddr != 0 && curAddr < blockAddr {
		prevAddr = curAddr
		curAddr = blockAt(curAddr).next
	}

	if prevAddr == 0 {
		freed.next = freeHead
		freeHead = blockAddr
	} else {
		freed.next = curAddr
		blockAt(prevAddr).next = blockAddr
	}

	if freed.next != 0 && blockAddr+uintptr(freed.size) == freed.next {
		next := blockAt(freed.next)
		freed.size += next.size
		freed.next = next.next
	}

	if prevAddr != 0 {
		prev := blockAt(prevAddr)
		if prevAddr+uintptr(prev.size) == blockAddr {
			prev.size += freed.size
			prev.next = freed.next
		}
	}
}

// Kcalloc reserves space for num elements of size sz each and zeroes it.
func Kcalloc(num, sz mem.Size) uintptr {
	ptr := Kmalloc(num * sz)
	if ptr != 0 {
		mem.Memset(ptr, 0, num*sz)
	}
	return ptr
}

// Krealloc resizes the block at ptr to sz bytes, preserving its contents up
// to min(old size, sz). A nil ptr behaves like Kmalloc; a zero sz behaves
// like Kfree and returns 0.
func Krealloc(ptr uintptr, sz mem.Size) uintptr {
	if ptr == 0 {
		return Kmalloc(sz)
	}
	if sz == 0 {
		Kfree(ptr)
		return 0
	}

	oldTotal := *cookieAt(ptr - uintptr(cookieSize))
	oldUserSize := oldTotal - cookieSize
	if uint64(sz) <= oldUserSize {
		return ptr
	}

	newPtr := Kmalloc(sz)
	if newPtr != 0 {
		mem.Memcopy(ptr, newPtr, mem.Size(oldUserSize))
		Kfree(ptr)
	}
	return newPtr
}
