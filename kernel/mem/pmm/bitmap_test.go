package pmm

import (
	"testing"

	"github.com/IAmTheNerdNextDoor/arikoto/kernel/mem"
)

// withManagedPages installs a bitmap with n pages, all initially free, and
// restores the package's global state afterwards. Tests exercise the
// allocator directly rather than through InitPMM so they do not depend on
// a populated boot memory map.
func withManagedPages(t *testing.T, n uint64) func() {
	t.Helper()

	for i := range bitmap {
		bitmap[i] = 0
	}
	highestPage = n
	totalPages = n
	usedPages = 0
	freePages = n

	return func() {
		for i := range bitmap {
			bitmap[i] = 0
		}
		highestPage, totalPages, usedPages, freePages = 0, 0, 0, 0
	}
}

func TestAllocatePageFirstFit(t *testing.T) {
	defer withManagedPages(t, 8)()

	f0 := AllocatePage()
	if !f0.Valid() || f0 != 0 {
		t.Fatalf("expected first allocation to be frame 0, got %v", f0)
	}

	f1 := AllocatePage()
	if f1 != 1 {
		t.Fatalf("expected second allocation to be frame 1, got %v", f1)
	}

	FreePage(f0.Address())

	f2 := AllocatePage()
	if f2 != f0 {
		t.Fatalf("expected first-fit to reuse freed frame %v, got %v", f0, f2)
	}
}

func TestAllocatePageExhaustion(t *testing.T) {
	defer withManagedPages(t, 2)()

	AllocatePage()
	AllocatePage()

	if got := AllocatePage(); got.Valid() {
		t.Errorf("expected exhaustion to return InvalidFrame, got %v", got)
	}
}

func TestUsedFreeTotalInvariant(t *testing.T) {
	defer withManagedPages(t, 16)()

	allocated := make([]Frame, 0, 5)
	for i := 0; i < 5; i++ {
		allocated = append(allocated, AllocatePage())
	}

	if UsedPages()+FreePages() != TotalPages() {
		t.Fatalf("used+free != total: %d+%d != %d", UsedPages(), FreePages(), TotalPages())
	}
	if UsedPages() != 5 {
		t.Errorf("expected 5 used pages, got %d", UsedPages())
	}

	for _, f := range allocated {
		FreePage(f.Address())
	}

	if UsedPages()+FreePages() != TotalPages() {
		t.Fatalf("used+free != total after freeing: %d+%d != %d", UsedPages(), FreePages(), TotalPages())
	}
	if UsedPages() != 0 {
		t.Errorf("expected 0 used pages after freeing everything, got %d", UsedPages())
	}
}

func TestFreePageRejectsMisaligned(t *testing.T) {
	defer withManagedPages(t, 4)()

	f := AllocatePage()
	before := UsedPages()

	FreePage(f.Address() + 1)

	if UsedPages() != before {
		t.Errorf("expected a misaligned free to be ignored, used pages changed from %d to %d", before, UsedPages())
	}
}

func TestFreePageRejectsDoubleFree(t *testing.T) {
	defer withManagedPages(t, 4)()

	f := AllocatePage()
	FreePage(f.Address())
	before := UsedPages()

	FreePage(f.Address())

	if UsedPages() != before {
		t.Errorf("expected a double free to be ignored, used pages changed from %d to %d", before, UsedPages())
	}
}

func TestFreePageRejectsOutOfRange(t *testing.T) {
	defer withManagedPages(t, 4)()

	before := UsedPages()
	FreePage(uintptr(100) * uintptr(mem.PageSize))

	if UsedPages() != before {
		t.Errorf("expected an out-of-range free to be ignored, used pages changed from %d to %d", before, UsedPages())
	}
}

func TestReserveRangeMarksOverlappingFrames(t *testing.T) {
	defer withManagedPages(t, 8)()

	reserveRange(uint64(mem.PageSize), 3*uint64(mem.PageSize))

	if testBit(0) {
		t.Errorf("expected frame 0 to remain free")
	}
	if !testBit(1) || !testBit(2) {
		t.Errorf("expected frames 1 and 2 to be reserved")
	}
	if testBit(3) {
		t.Errorf("expected frame 3 to remain free")
	}
}
