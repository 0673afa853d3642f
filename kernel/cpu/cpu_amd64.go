// Package cpu exposes the privileged x86-64 instructions the kernel needs
// as plain Go functions. Every declaration below is implemented in
// cpu_amd64.s.
package cpu

// EnableInterrupts enables interrupt handling.
func EnableInterrupts()

// DisableInterrupts disables interrupt handling.
func DisableInterrupts()

// Halt stops instruction execution.
func Halt()

// FlushTLBEntry flushes a TLB entry for a particular virtual address.
func FlushTLBEntry(virtAddr uintptr)

// SwitchPDT sets the root page table directory to point to the specified
// physical address and flushes the TLB.
func SwitchPDT(pdtPhysAddr uintptr)

// ActivePDT returns the physical address of the currently active page table.
func ActivePDT() uintptr

// ReadCR2 returns the faulting address recorded in CR2 by the CPU the last
// time a page fault occurred.
func ReadCR2() uintptr

// Outb writes val to the given I/O port.
func Outb(port uint16, val uint8)

// Inb reads and returns a byte from the given I/O port.
func Inb(port uint16) uint8

// IOWait gives the PIC/PS2 controllers time to process the last port write
// by performing a throwaway write to an unused port (0x80), the standard
// trick for inserting a small delay on real hardware.
func IOWait()
