// Package boot exposes the Limine-class boot protocol hand-off that the
// kernel receives from its bootloader: a linear framebuffer, the physical
// memory map, the higher-half direct map (HHDM) offset, the kernel's
// load addresses and any boot modules. It plays the same role that
// hal/multiboot played for a multiboot2 bootloader, retargeted at the
// request/response style used by Limine.
package boot

import "unsafe"

// Each request below is a fixed-layout struct the linker places in the
// .limine_requests section; the bootloader walks that section before
// jumping to the kernel entry point and fills in the Response pointer of
// every request whose id it recognizes. The first two id words are a magic
// value shared by every request; the last two identify the request kind.
const (
	commonMagic0 = 0xc7b1dd30df4c8b88
	commonMagic1 = 0x0a82e883a194f07b
)

type requestHeader struct {
	id       [4]uint64
	revision uint64
}

// FramebufferRequest asks the bootloader for a linear, pre-initialized
// framebuffer.
type FramebufferRequest struct {
	requestHeader
	Response *FramebufferResponse
}

// FramebufferResponse describes the framebuffers handed off by the
// bootloader. Framebuffers points at the first element of a
// bootloader-allocated array of FramebufferCount pointers.
type FramebufferResponse struct {
	Revision         uint64
	FramebufferCount uint64
	Framebuffers     **Framebuffer
}

// Framebuffer describes a single linear framebuffer.
type Framebuffer struct {
	Address        uintptr
	Width, Height  uint64
	Pitch          uint64
	Bpp            uint16
	MemoryModel    uint8
	RedMaskSize    uint8
	RedMaskShift   uint8
	GreenMaskSize  uint8
	GreenMaskShift uint8
	BlueMaskSize   uint8
	BlueMaskShift  uint8
}

// MemmapRequest asks the bootloader for the physical memory map.
type MemmapRequest struct {
	requestHeader
	Response *MemmapResponse
}

// MemmapResponse carries the physical memory map reported by the firmware,
// as interpreted by the bootloader. Entries points at the first element of
// a bootloader-allocated array of EntryCount pointers.
type MemmapResponse struct {
	Revision   uint64
	EntryCount uint64
	Entries    **MemmapEntry
}

// MemoryEntryType classifies a MemmapEntry.
type MemoryEntryType uint64

const (
	// MemUsable marks RAM that is free for the kernel to use.
	MemUsable MemoryEntryType = iota
	// MemReserved marks RAM that must never be touched by the kernel.
	MemReserved
	// MemACPIReclaimable marks RAM holding ACPI tables that becomes usable
	// once the kernel is done with them.
	MemACPIReclaimable
	// MemACPINVS marks RAM that firmware needs preserved across sleep states.
	MemACPINVS
	// MemBadMemory marks RAM the firmware has flagged as faulty.
	MemBadMemory
	// MemBootloaderReclaimable marks RAM used by the bootloader itself that
	// becomes usable once the kernel no longer needs bootloader structures.
	MemBootloaderReclaimable
	// MemKernelAndModules marks the RAM occupied by the kernel image and any
	// modules loaded alongside it.
	MemKernelAndModules
	// MemFramebuffer marks RAM backing the linear framebuffer.
	MemFramebuffer
)

// MemmapEntry describes a single physical memory region.
type MemmapEntry struct {
	Base   uint64
	Length uint64
	Type   MemoryEntryType
}

// HHDMRequest asks the bootloader for the offset of the higher-half direct
// map: a virtual window, `HHDMRequest.Response.Offset` bytes above zero,
// where every byte of physical memory is already mapped RW.
type HHDMRequest struct {
	requestHeader
	Response *HHDMResponse
}

// HHDMResponse carries the HHDM offset.
type HHDMResponse struct {
	Revision uint64
	Offset   uint64
}

// ExecutableAddressRequest asks the bootloader for the kernel's physical and
// virtual load addresses.
type ExecutableAddressRequest struct {
	requestHeader
	Response *ExecutableAddressResponse
}

// ExecutableAddressResponse carries the kernel's load addresses.
type ExecutableAddressResponse struct {
	Revision     uint64
	PhysicalBase uint64
	VirtualBase  uint64
}

// ModuleRequest asks the bootloader to hand back any modules (e.g. an
// initramfs image) that were configured in the bootloader's config file.
type ModuleRequest struct {
	requestHeader
	Response *ModuleResponse
}

// ModuleResponse carries the list of modules loaded by the bootloader.
// Modules points at the first element of a bootloader-allocated array of
// ModuleCount pointers.
type ModuleResponse struct {
	Revision    uint64
	ModuleCount uint64
	Modules     **File
}

// File describes a single bootloader-provided file (a module). The path is
// stored the way the bootloader left it, as a pointer to a NUL-terminated
// byte sequence; Path converts it on demand.
type File struct {
	Revision uint64
	Address  uintptr
	Size     uint64
	pathPtr  uintptr
}

// Path returns the bootloader-reported path of this module.
func (f *File) Path() string {
	return cString(f.pathPtr)
}

// cString copies the NUL-terminated byte sequence at addr into a Go string.
func cString(addr uintptr) string {
	if addr == 0 {
		return ""
	}

	n := 0
	for *(*byte)(unsafe.Pointer(addr + uintptr(n))) != 0 {
		n++
	}

	return string(unsafe.Slice((*byte)(unsafe.Pointer(addr)), n))
}

// The request instances themselves. The go:used-equivalent here is the
// linker script, which places the boot.*Req symbols inside the
// .limine_requests section so the bootloader's request scanner finds them.
var (
	framebufferReq = FramebufferRequest{
		requestHeader: requestHeader{id: [4]uint64{commonMagic0, commonMagic1, 0x9d5827dcd881dd75, 0xa3148604f6fab11b}},
	}
	memmapReq = MemmapRequest{
		requestHeader: requestHeader{id: [4]uint64{commonMagic0, commonMagic1, 0x67cf3d9d378a806f, 0xe304acdfc50c3c62}},
	}
	hhdmReq = HHDMRequest{
		requestHeader: requestHeader{id: [4]uint64{commonMagic0, commonMagic1, 0x48dcf1cb8ad2b852, 0x63984e959a98244b}},
	}
	kernelAddrReq = ExecutableAddressRequest{
		requestHeader: requestHeader{id: [4]uint64{commonMagic0, commonMagic1, 0x71ba76863cc55f63, 0xb2644a48c516a487}},
	}
	moduleReq = ModuleRequest{
		requestHeader: requestHeader{id: [4]uint64{commonMagic0, commonMagic1, 0x3e7e279702be32af, 0xca1c4f3bd1280cee}},
	}
)

// MemRegionVisitor is invoked once per physical memory region discovered via
// VisitMemRegions. Returning false aborts the scan.
type MemRegionVisitor func(entry *MemmapEntry) bool

// VisitMemRegions invokes visitor for every region in the memory map handed
// off by the bootloader.
func VisitMemRegions(visitor MemRegionVisitor) {
	resp := memmapReq.Response
	if resp == nil || resp.EntryCount == 0 {
		return
	}

	for _, entry := range unsafe.Slice(resp.Entries, resp.EntryCount) {
		if !visitor(entry) {
			return
		}
	}
}

// Framebuffers returns the list of framebuffers reported by the bootloader,
// or nil if none were provided.
func Framebuffers() []*Framebuffer {
	resp := framebufferReq.Response
	if resp == nil || resp.FramebufferCount == 0 {
		return nil
	}

	return unsafe.Slice(resp.Framebuffers, resp.FramebufferCount)
}

// HHDMOffset returns the higher-half direct map offset reported by the
// bootloader. Callers must check that it is non-zero before trusting it
// (revision 0 responses always carry a non-zero offset; a zero value means
// the request was never answered).
func HHDMOffset() uintptr {
	if hhdmReq.Response == nil {
		return 0
	}
	return uintptr(hhdmReq.Response.Offset)
}

// KernelAddresses returns the kernel's physical and virtual load addresses
// as reported by the bootloader.
func KernelAddresses() (physBase, virtBase uintptr, ok bool) {
	if kernelAddrReq.Response == nil {
		return 0, 0, false
	}
	return uintptr(kernelAddrReq.Response.PhysicalBase), uintptr(kernelAddrReq.Response.VirtualBase), true
}

// Modules returns the list of boot modules (e.g. an initramfs image) handed
// off by the bootloader.
func Modules() []*File {
	resp := moduleReq.Response
	if resp == nil || resp.ModuleCount == 0 {
		return nil
	}
	return unsafe.Slice(resp.Modules, resp.ModuleCount)
}
