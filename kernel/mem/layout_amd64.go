// +build amd64

package mem

// KernelLayout describes the linker-provided section boundaries for the
// running kernel image ("_text_start/_end", "_rodata_start/_end",
// "_data_start/_end", "_bss_start/_bss_end"), plus the physical/virtual
// load addresses reported by the boot protocol. SetKernelLayout is called
// once, early in Kmain, with values sourced from the linker script and the
// boot.KernelAddresses() response.
type KernelLayout struct {
	PhysBase, VirtBase     uintptr
	TextStart, TextEnd     uintptr
	RodataStart, RodataEnd uintptr
	DataStart, DataEnd     uintptr
	BSSStart, BSSEnd       uintptr
}

var kernelLayout KernelLayout

// SetKernelLayout records the kernel image layout. Must be called before
// vmm.Init or pmm.InitPMM.
func SetKernelLayout(l KernelLayout) {
	kernelLayout = l
}

// BuildKernelLayout assembles a KernelLayout from the boot protocol's
// reported load addresses and the linker-provided section symbols, and
// records it via SetKernelLayout. Kmain calls this once, immediately after
// the boot protocol's ExecutableAddressResponse is available.
func BuildKernelLayout(physBase, virtBase uintptr) KernelLayout {
	l := KernelLayout{
		PhysBase:    physBase,
		VirtBase:    virtBase,
		TextStart:   textStart(),
		TextEnd:     textEnd(),
		RodataStart: rodataStart(),
		RodataEnd:   rodataEnd(),
		DataStart:   dataStart(),
		DataEnd:     dataEnd(),
		BSSStart:    bssStart(),
		BSSEnd:      bssEnd(),
	}
	SetKernelLayout(l)
	return l
}

// Layout returns the kernel image layout recorded via SetKernelLayout.
func Layout() KernelLayout {
	return kernelLayout
}
