package irq

import "github.com/IAmTheNerdNextDoor/arikoto/kernel/cpu"

// Command ports of the two remapped 8259 PICs and the end-of-interrupt
// command both accept.
const (
	picMasterCmdPort = 0x20
	picSlaveCmdPort  = 0xA0
	picEOI           = 0x20
)

const (
	// irqBaseVector is the vector the PIC remap places IRQ0 at; hardware
	// interrupts occupy [irqBaseVector, irqBaseVector+numIRQVectors).
	irqBaseVector = IRQNum(0x20)
	numIRQVectors = 16
)

// IRQNum identifies a hardware interrupt vector routed through the PIC,
// as opposed to a CPU-raised exception (see ExceptionNum).
type IRQNum uint8

const (
	// TimerIRQ is the vector the PIT's channel 0 output is wired to once
	// the PIC has been remapped; the scheduler's TaskTimerTick is hooked
	// here.
	TimerIRQ = IRQNum(0x20)

	// KeyboardIRQ is the vector the PS/2 controller raises on scan code
	// availability.
	KeyboardIRQ = IRQNum(0x21)
)

// IRQHandler is a function invoked when the given hardware interrupt fires.
// It runs with IRQs masked by the CPU and must not block; the PIC
// end-of-interrupt acknowledgement happens before the handler runs.
type IRQHandler func()

var (
	irqHandlers [numIRQVectors]IRQHandler

	// outbFn is mocked by tests.
	outbFn = cpu.Outb
)

// HandleIRQ registers handler to run whenever irqNum fires.
func HandleIRQ(irqNum IRQNum, handler IRQHandler) {
	if irqNum < irqBaseVector || irqNum >= irqBaseVector+numIRQVectors {
		return
	}
	irqHandlers[irqNum-irqBaseVector] = handler
}

// DispatchIRQ is invoked by the interrupt gate stubs for remapped PIC
// vectors: it acknowledges the PIC(s) first, then runs the registered
// handler, so every handler observes the post-EOI state IRQHandler
// documents. A vector with no registered handler is acknowledged and
// otherwise ignored (spurious or not-yet-wired device).
func DispatchIRQ(irqNum IRQNum) {
	if irqNum < irqBaseVector || irqNum >= irqBaseVector+numIRQVectors {
		return
	}

	// IRQs 8-15 arrive through the slave PIC, which needs its own EOI
	// before the master's.
	if irqNum >= irqBaseVector+8 {
		outbFn(picSlaveCmdPort, picEOI)
	}
	outbFn(picMasterCmdPort, picEOI)

	if handler := irqHandlers[irqNum-irqBaseVector]; handler != nil {
		handler()
	}
}
