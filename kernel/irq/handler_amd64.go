package irq

import (
	"github.com/IAmTheNerdNextDoor/arikoto/kernel"
	"github.com/IAmTheNerdNextDoor/arikoto/kernel/kfmt"
)

// numExceptionVectors is the number of CPU exception vectors (0-31).
const numExceptionVectors = 32

// ExceptionNum defines an exception number that can be
// passed to the HandleException and HandleExceptionWithCode
// functions.
type ExceptionNum uint8

const (
	// DoubleFault occurs when an exception is unhandled
	// or when an exception occurs while the CPU is
	// trying to call an exception handler.
	DoubleFault = ExceptionNum(8)

	// GPFException is raised when a general protection fault occurs.
	GPFException = ExceptionNum(13)

	// PageFaultException is raised when a PDT or
	// PDT-entry is not present or when a privilege
	// and/or RW protection check fails.
	PageFaultException = ExceptionNum(14)
)

// ExceptionHandler is a function that handles an exception that does not push
// an error code to the stack. If the handler returns, any modifications to the
// supplied Frame and/or Regs pointers will be propagated back to the location
// where the exception occurred.
type ExceptionHandler func(*Frame, *Regs)

// ExceptionHandlerWithCode is a function that handles an exception that pushes
// an error code to the stack. If the handler returns, any modifications to the
// supplied Frame and/or Regs pointers will be propagated back to the location
// where the exception occurred.
type ExceptionHandlerWithCode func(uint64, *Frame, *Regs)

var (
	exceptionHandlers         [numExceptionVectors]ExceptionHandler
	exceptionHandlersWithCode [numExceptionVectors]ExceptionHandlerWithCode

	// panicFn is mocked by tests.
	panicFn = kernel.Panic

	errUnhandledException = &kernel.Error{Module: "irq", Message: "unhandled CPU exception"}
)

// HandleException registers an exception handler (without an error code) for
// the given interrupt number.
func HandleException(exceptionNum ExceptionNum, handler ExceptionHandler) {
	if exceptionNum >= numExceptionVectors {
		return
	}
	exceptionHandlers[exceptionNum] = handler
}

// HandleExceptionWithCode registers an exception handler (with an error code)
// for the given interrupt number.
func HandleExceptionWithCode(exceptionNum ExceptionNum, handler ExceptionHandlerWithCode) {
	if exceptionNum >= numExceptionVectors {
		return
	}
	exceptionHandlersWithCode[exceptionNum] = handler
}

// DispatchException is invoked by the interrupt gate stubs for exception
// vectors that push no error code. An exception with no registered handler
// is fatal.
func DispatchException(exceptionNum ExceptionNum, frame *Frame, regs *Regs) {
	if exceptionNum < numExceptionVectors {
		if handler := exceptionHandlers[exceptionNum]; handler != nil {
			handler(frame, regs)
			return
		}
	}
	unhandledException(exceptionNum, frame, regs)
}

// DispatchExceptionWithCode is invoked by the interrupt gate stubs for
// exception vectors that push an error code. An exception with no registered
// handler is fatal.
func DispatchExceptionWithCode(exceptionNum ExceptionNum, errorCode uint64, frame *Frame, regs *Regs) {
	if exceptionNum < numExceptionVectors {
		if handler := exceptionHandlersWithCode[exceptionNum]; handler != nil {
			handler(errorCode, frame, regs)
			return
		}
	}
	unhandledException(exceptionNum, frame, regs)
}

func unhandledException(exceptionNum ExceptionNum, frame *Frame, regs *Regs) {
	kfmt.Printf("\nUnhandled exception, vector %d\n\nRegisters:\n", uint8(exceptionNum))
	regs.Print()
	frame.Print()

	panicFn(errUnhandledException)
}
