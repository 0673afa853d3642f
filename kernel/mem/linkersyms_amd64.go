// +build amd64

package mem

// The following return the addresses of the linker-defined symbols marking
// the kernel image's section boundaries. Their values come from the linker
// at image-layout time, not from any Go expression, so the accessors are
// implemented in linkersyms_amd64.s against the linker's own marker
// symbols; Kmain reads them once at boot to populate SetKernelLayout.

func textStart() uintptr
func textEnd() uintptr
func rodataStart() uintptr
func rodataEnd() uintptr
func dataStart() uintptr
func dataEnd() uintptr
func bssStart() uintptr
func bssEnd() uintptr
