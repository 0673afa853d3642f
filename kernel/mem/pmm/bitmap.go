// Package pmm contains code that manages physical memory frame allocations.
//
// The allocator keeps a single flat bitmap covering every physical page
// frame in [0, highestManagedPage): bit value 1 means the frame is reserved
// or in use, 0 means it is free. A single fixed-capacity bitmap suffices
// because the boot protocol (Limine-class, see kernel/boot) hands over a
// complete memory map up front, so no bootstrap allocator is needed to
// carve out space for per-region pool metadata first.
package pmm

import (
	"github.com/IAmTheNerdNextDoor/arikoto/kernel/boot"
	"github.com/IAmTheNerdNextDoor/arikoto/kernel/kfmt/early"
	"github.com/IAmTheNerdNextDoor/arikoto/kernel/mem"
	"github.com/IAmTheNerdNextDoor/arikoto/kernel/sync"
)

const (
	// maxManagedPages bounds the number of physical page frames the bitmap
	// can track: 4 GiB worth of 4K pages. Memory above this range is left
	// unmanaged; InitPMM logs a warning if the boot memory map reports more.
	maxManagedPages = (4 * uint64(mem.Gb)) / uint64(mem.PageSize)

	bitsPerWord = 64
)

var (
	lock sync.Spinlock

	bitmap [maxManagedPages / bitsPerWord]uint64

	highestPage uint64

	totalPages uint64
	usedPages  uint64
	freePages  uint64
)

func wordAndBit(frame uint64) (uint64, uint64) {
	return frame / bitsPerWord, frame % bitsPerWord
}

func testBit(frame uint64) bool {
	word, bit := wordAndBit(frame)
	return bitmap[word]&(uint64(1)<<bit) != 0
}

func setBit(frame uint64) {
	word, bit := wordAndBit(frame)
	bitmap[word] |= uint64(1) << bit
}

func clearBit(frame uint64) {
	word, bit := wordAndBit(frame)
	bitmap[word] &^= uint64(1) << bit
}

func ceilDiv(v, d uint64) uint64 {
	return (v + d - 1) / d
}

// InitPMM consumes the boot memory map and initializes the frame bitmap.
// Every frame starts out reserved; USABLE and BOOTLOADER_RECLAIMABLE
// regions are cleared, and the kernel image plus the sub-1MiB range are
// then re-reserved on top.
func InitPMM(kernelPhysBase, kernelPhysEnd uintptr) {
	lock.Acquire()
	defer lock.Release()

	var highestTop uint64
	boot.VisitMemRegions(func(entry *boot.MemmapEntry) bool {
		if top := entry.Base + entry.Length; top > highestTop {
			highestTop = top
		}
		return true
	})

	highestPage = ceilDiv(highestTop, uint64(mem.PageSize))
	if highestPage > maxManagedPages {
		early.Printf("[pmm] memory map reports %d pages; capping managed range to %d\n", highestPage, uint64(maxManagedPages))
		highestPage = maxManagedPages
	}

	// Initialize everything to reserved.
	for i := range bitmap {
		bitmap[i] = ^uint64(0)
	}
	totalPages = highestPage
	usedPages = highestPage
	freePages = 0

	boot.VisitMemRegions(func(entry *boot.MemmapEntry) bool {
		if entry.Type != boot.MemUsable && entry.Type != boot.MemBootloaderReclaimable {
			return true
		}

		startFrame := ceilDiv(entry.Base, uint64(mem.PageSize))
		endFrame := (entry.Base + entry.Length) / uint64(mem.PageSize)
		for frame := startFrame; frame < endFrame && frame < highestPage; frame++ {
			if testBit(frame) {
				clearBit(frame)
				usedPages--
				freePages++
			}
		}
		return true
	})

	reserveRange(uint64(kernelPhysBase), uint64(kernelPhysEnd))
	reserveRange(0, 0x100000)

	early.Printf("[pmm] %d pages total, %d free, %d used\n", totalPages, freePages, usedPages)
}

// reserveRange marks every page overlapping [from, to) as reserved,
// regardless of its current state. Must be called with lock held.
func reserveRange(from, to uint64) {
	startFrame := from / uint64(mem.PageSize)
	endFrame := ceilDiv(to, uint64(mem.PageSize))
	for frame := startFrame; frame < endFrame && frame < highestPage; frame++ {
		if !testBit(frame) {
			setBit(frame)
			freePages--
			usedPages++
		}
	}
}

// AllocatePage performs a first-fit linear scan for a free frame, marks it
// reserved and returns its physical address. It returns InvalidFrame when
// the managed range is exhausted.
func AllocatePage() Frame {
	lock.Acquire()
	defer lock.Release()

	for frame := uint64(0); frame < highestPage; frame++ {
		if !testBit(frame) {
			setBit(frame)
			usedPages++
			freePages--
			return Frame(frame)
		}
	}

	return InvalidFrame
}

// FreePage releases a previously allocated frame back to the pool. Freeing
// an address outside the managed range, a misaligned address, or an
// already-free frame is a non-fatal no-op.
func FreePage(physAddr uintptr) {
	if uintptr(physAddr)%uintptr(mem.PageSize) != 0 {
		early.Printf("[pmm] ignoring free of misaligned address 0x%x\n", physAddr)
		return
	}

	frame := uint64(FrameFromAddress(physAddr))

	lock.Acquire()
	defer lock.Release()

	if frame >= highestPage {
		early.Printf("[pmm] ignoring free of out-of-range frame %d\n", frame)
		return
	}

	if !testBit(frame) {
		early.Printf("[pmm] ignoring double free of frame %d\n", frame)
		return
	}

	clearBit(frame)
	usedPages--
	freePages++
}

// TotalPages returns the number of frames tracked by the bitmap.
func TotalPages() uint64 { return totalPages }

// UsedPages returns the number of currently reserved/in-use frames.
func UsedPages() uint64 { return usedPages }

// FreePages returns the number of currently free frames.
func FreePages() uint64 { return freePages }
