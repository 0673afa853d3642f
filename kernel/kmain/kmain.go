// Package kmain brings up every kernel subsystem in order and hands the CPU
// to the scheduler. It is a separate package from the root kernel package
// (which holds only the allocation-free Error/Panic primitives) because
// subsystems like sched, vmm and heap need to call back into kernel.Panic;
// keeping that bring-up logic in the root package itself would close an
// import cycle back on those same subsystems.
package kmain

import (
	"io"

	_ "github.com/IAmTheNerdNextDoor/arikoto/kernel/goruntime"

	"github.com/IAmTheNerdNextDoor/arikoto/kernel"
	"github.com/IAmTheNerdNextDoor/arikoto/kernel/boot"
	"github.com/IAmTheNerdNextDoor/arikoto/kernel/cpu"
	"github.com/IAmTheNerdNextDoor/arikoto/kernel/driver/input/ps2"
	"github.com/IAmTheNerdNextDoor/arikoto/kernel/driver/serial"
	"github.com/IAmTheNerdNextDoor/arikoto/kernel/fs"
	"github.com/IAmTheNerdNextDoor/arikoto/kernel/hal"
	"github.com/IAmTheNerdNextDoor/arikoto/kernel/irq"
	"github.com/IAmTheNerdNextDoor/arikoto/kernel/kfmt"
	"github.com/IAmTheNerdNextDoor/arikoto/kernel/kfmt/early"
	"github.com/IAmTheNerdNextDoor/arikoto/kernel/mem"
	"github.com/IAmTheNerdNextDoor/arikoto/kernel/mem/heap"
	"github.com/IAmTheNerdNextDoor/arikoto/kernel/mem/pmm"
	"github.com/IAmTheNerdNextDoor/arikoto/kernel/mem/vmm"
	"github.com/IAmTheNerdNextDoor/arikoto/kernel/pit"
	"github.com/IAmTheNerdNextDoor/arikoto/kernel/sched"
	"github.com/IAmTheNerdNextDoor/arikoto/kernel/shell"
)

var errNoKernelAddrs = &kernel.Error{Module: "kmain", Message: "bootloader did not report kernel load addresses"}

// Kmain is invoked by boot.go's main once the bootloader has jumped to the
// kernel image and filled in every boot.*Request the linker placed in the
// .limine_requests section.
//
// Kmain never returns: once every subsystem is up it becomes the bootstrap
// task's body, an infinite loop that only ever calls Schedule, yielding the
// CPU to the shell task and anything else later created by sched.TaskCreate.
//
//go:noinline
func Kmain() {
	hal.InitTerminal()
	hal.ActiveTerminal.Clear()
	early.Printf("Starting arikoto\n")

	physBase, virtBase, ok := boot.KernelAddresses()
	if !ok {
		kernel.Panic(errNoKernelAddrs)
		return
	}
	mem.SetHHDMOffset(boot.HHDMOffset())
	layout := mem.BuildKernelLayout(physBase, virtBase)

	pmm.InitPMM(layout.PhysBase, layout.PhysBase+(layout.BSSEnd-layout.VirtBase))

	if err := vmm.Init(); err != nil {
		kernel.Panic(err)
		return
	}

	if err := heap.InitHeap(); err != nil {
		kernel.Panic(err)
		return
	}

	serial.Init()
	kfmt.SetOutputSink(io.MultiWriter(hal.ActiveTerminal, serial.Port{}))

	sched.InitMultitasking()

	pit.Init()
	irq.HandleIRQ(irq.TimerIRQ, timerTick)

	ps2.Init(busyWaitMs)
	irq.HandleIRQ(irq.KeyboardIRQ, ps2.HandleIRQ)

	if modules := boot.Modules(); len(modules) > 0 {
		fs.Mount(modules[0].Address, mem.Size(modules[0].Size))
		kfmt.Printf("[kmain] mounted initramfs module %s (%d bytes)\n", modules[0].Path(), modules[0].Size)
	}

	sched.TaskCreate(shell.Run, 0, "shell", 0)

	cpu.EnableInterrupts()

	kfmt.Printf("arikoto is up\n")

	for {
		sched.Schedule()
	}
}

// timerTick is the IRQ0 handler: advance the PIT's millisecond clock, then
// charge the running task's quantum.
func timerTick() {
	pit.Tick()
	sched.TaskTimerTick()
}

// busyWaitMs blocks the caller for roughly ms milliseconds. It exists only
// for ps2.Init, which runs with interrupts still masked — the PIT's
// IRQ-driven tick counter cannot advance yet, so the delay is derived from
// port 0x80 writes (about a microsecond each) instead.
func busyWaitMs(ms uint64) {
	for i := uint64(0); i < ms*1000; i++ {
		cpu.IOWait()
	}
}
