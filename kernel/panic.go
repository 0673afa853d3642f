package kernel

import (
	"github.com/IAmTheNerdNextDoor/arikoto/kernel/cpu"
	"github.com/IAmTheNerdNextDoor/arikoto/kernel/hal"
	"github.com/IAmTheNerdNextDoor/arikoto/kernel/kfmt/early"
	"github.com/IAmTheNerdNextDoor/arikoto/kernel/pit"
)

var (
	// the following are mocked by tests and are automatically inlined by
	// the compiler.
	cpuHaltFn       = cpu.Halt
	disableIntsFn   = cpu.DisableInterrupts
	uptimeMsFn      = pit.ElapsedMs
	clearTerminalFn = clearTerminal

	errRuntimePanic = &Error{Module: "rt", Message: "unknown cause"}
)

func clearTerminal() {
	hal.ActiveTerminal.Clear()
}

// Panic masks interrupts, clears the screen, outputs the supplied error (if
// not nil) plus the system uptime to the console, and halts the CPU. Calls
// to Panic never return. Panic also works as a redirection target for calls
// to panic() (resolved via runtime.gopanic)
//go:redirect-from runtime.gopanic
func Panic(e interface{}) {
	disableIntsFn()
	clearTerminalFn()

	var err *Error

	switch t := e.(type) {
	case *Error:
		err = t
	case string:
		errRuntimePanic.Message = t
		err = errRuntimePanic
	case error:
		errRuntimePanic.Message = t.Error()
		err = errRuntimePanic
	}

	early.Printf("\n-----------------------------------\n")
	if err != nil {
		early.Printf("[%s] unrecoverable error: %s\n", err.Module, err.Message)
	}
	early.Printf("*** kernel panic: system halted ***\n")
	early.Printf("uptime: %d ms", uptimeMsFn())
	early.Printf("\n-----------------------------------\n")

	cpuHaltFn()
}
