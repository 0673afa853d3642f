// Package serial drives the 16550 UART at COM1, mirroring every byte the
// kernel prints to the framebuffer console onto a serial line so that
// panics and boot diagnostics stay visible even with a dead or absent
// display. It exposes a small io.Writer plus a non-blocking reader the
// shell's readline loop can poll alongside the keyboard buffer.
package serial

import "github.com/IAmTheNerdNextDoor/arikoto/kernel/cpu"

// com1Port is the base I/O port of the first serial controller.
const com1Port = 0x3F8

var initialized bool

// the following are swapped out by tests, following the package's
// established convention for hardware-facing code.
var (
	outbFn = cpu.Outb
	inbFn  = cpu.Inb
	waitFn = cpu.IOWait
)

// Init programs COM1 for 38400 baud, 8 data bits, no parity, one stop bit,
// with FIFOs enabled.
func Init() {
	outbFn(com1Port+1, 0x00) // disable all interrupts
	waitFn()
	outbFn(com1Port+3, 0x80) // enable DLAB to set the baud rate divisor
	waitFn()
	outbFn(com1Port+0, 0x03) // divisor low byte (38400 baud)
	waitFn()
	outbFn(com1Port+1, 0x00) // divisor high byte
	waitFn()
	outbFn(com1Port+3, 0x03) // 8 bits, no parity, one stop bit
	waitFn()
	outbFn(com1Port+2, 0xC7) // enable FIFO, clear, 14-byte threshold
	waitFn()
	outbFn(com1Port+4, 0x0B) // DTR, RTS and OUT2 set
	waitFn()

	initialized = true
}

// Initialized reports whether Init has run.
func Initialized() bool {
	return initialized
}

func transmitEmpty() bool {
	return inbFn(com1Port+5)&0x20 != 0
}

// Write implements io.Writer, blocking until the UART's transmit holding
// register is empty before each byte. A Write before Init is a silent
// no-op rather than a panic on a missing driver.
func (Port) Write(p []byte) (int, error) {
	if !initialized {
		return len(p), nil
	}

	for _, b := range p {
		for !transmitEmpty() {
			waitFn()
		}
		outbFn(com1Port, b)
	}

	return len(p), nil
}

// Port is the zero-size handle implementing io.Writer (and, via
// TryReadByte, a non-blocking reader) over the COM1 UART.
type Port struct{}

func received() bool {
	return inbFn(com1Port+5)&0x01 != 0
}

// TryReadByte returns the next received byte and true, or (0, false) if
// nothing has arrived or the port was never initialized. Never blocks.
func (Port) TryReadByte() (byte, bool) {
	if !initialized || !received() {
		return 0, false
	}
	return inbFn(com1Port), true
}
