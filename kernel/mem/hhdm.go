package mem

// hhdmOffset is the higher-half direct map offset H reported by the boot
// protocol: phys_to_hhdm(p) = p + H for the lifetime of the kernel. It is
// set once, early in boot, by SetHHDMOffset.
var hhdmOffset uintptr

// SetHHDMOffset records the HHDM offset handed off by the bootloader. It
// must be called exactly once, before any call to PhysToHHDM.
func SetHHDMOffset(offset uintptr) {
	hhdmOffset = offset
}

// HHDMOffset returns the HHDM offset recorded via SetHHDMOffset.
func HHDMOffset() uintptr {
	return hhdmOffset
}

// PhysToHHDM converts a physical address to its corresponding virtual
// address inside the higher-half direct map.
func PhysToHHDM(phys uintptr) uintptr {
	return phys + hhdmOffset
}
