package vmm

import (
	"github.com/IAmTheNerdNextDoor/arikoto/kernel"
	"github.com/IAmTheNerdNextDoor/arikoto/kernel/cpu"
	"github.com/IAmTheNerdNextDoor/arikoto/kernel/irq"
	"github.com/IAmTheNerdNextDoor/arikoto/kernel/kfmt/early"
	"github.com/IAmTheNerdNextDoor/arikoto/kernel/mem"
)

var (
	// the following functions are mocked by tests and are automatically
	// inlined by the compiler.
	panicFn                   = kernel.Panic
	handleExceptionWithCodeFn = irq.HandleExceptionWithCode
	readCR2Fn                 = cpu.ReadCR2

	errOutOfMemory = &kernel.Error{Module: "vmm", Message: "out of memory while allocating page table"}
)

// alignUp rounds addr up to the next multiple of mem.PageSize.
func alignUp(addr uintptr) uintptr {
	mask := uintptr(mem.PageSize) - 1
	return (addr + mask) &^ mask
}

// inKernelRange reports whether virtAddr falls within the linker-reported
// kernel image range [kernel_virt_base, ALIGN_UP(bss_end, PAGE_SIZE)), the
// only range eligible for demand-paging.
func inKernelRange(virtAddr uintptr) bool {
	layout := mem.Layout()
	return virtAddr >= layout.VirtBase && virtAddr < alignUp(layout.BSSEnd)
}

// pageFaultHandler demand-maps any fault whose address falls inside the
// kernel's declared virtual range through the PMM and retries the faulting
// instruction; anything else is fatal.
func pageFaultHandler(errorCode uint64, frame *irq.Frame, regs *irq.Regs) {
	faultAddress := uintptr(readCR2Fn())

	if inKernelRange(faultAddress) {
		page := faultAddress &^ (uintptr(mem.PageSize) - 1)

		phys := allocateFrameFn()
		if !phys.Valid() {
			nonRecoverablePageFault(faultAddress, errorCode, frame, regs, errOutOfMemory)
			return
		}

		if !MapPage(&kernelPagemap, page, phys.Address(), FlagPresent|FlagRW) {
			nonRecoverablePageFault(faultAddress, errorCode, frame, regs, errOutOfMemory)
			return
		}

		// Fault recovered; retry the instruction that caused the fault.
		return
	}

	nonRecoverablePageFault(faultAddress, errorCode, frame, regs, nil)
}

func nonRecoverablePageFault(faultAddress uintptr, errorCode uint64, frame *irq.Frame, regs *irq.Regs, err *kernel.Error) {
	early.Printf("\nPage fault while accessing address: 0x%16x\nReason: ", faultAddress)
	switch {
	case errorCode == 0:
		early.Printf("read from non-present page")
	case errorCode == 1:
		early.Printf("page protection violation (read)")
	case errorCode == 2:
		early.Printf("write to non-present page")
	case errorCode == 3:
		early.Printf("page protection violation (write)")
	case errorCode == 4:
		early.Printf("page-fault in user-mode")
	case errorCode == 8:
		early.Printf("page table has reserved bit set")
	case errorCode == 16:
		early.Printf("instruction fetch")
	default:
		early.Printf("unknown")
	}

	early.Printf("\n\nRegisters:\n")
	regs.Print()
	frame.Print()

	panicFn(err)
}

func generalProtectionFaultHandler(_ uint64, frame *irq.Frame, regs *irq.Regs) {
	early.Printf("\nGeneral protection fault while accessing address: 0x%x\n", readCR2Fn())
	early.Printf("Registers:\n")
	regs.Print()
	frame.Print()

	panicFn(nil)
}

// Init builds the kernel pagemap (mapping the kernel image, the HHDM
// window and low memory), activates it and installs the page-fault and
// general-protection-fault handlers.
func Init() *kernel.Error {
	buildKernelPagemap()

	handleExceptionWithCodeFn(irq.PageFaultException, pageFaultHandler)
	handleExceptionWithCodeFn(irq.GPFException, generalProtectionFaultHandler)
	return nil
}
