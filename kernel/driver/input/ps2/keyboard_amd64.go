// Package ps2 drives a PS/2 keyboard attached to the 8042 controller: IRQ1
// delivers a scan code, which this package turns into an ASCII byte and
// appends to a small ring buffer that a consumer task (the shell's
// readline loop) polls and drains.
package ps2

import "github.com/IAmTheNerdNextDoor/arikoto/kernel/cpu"

const (
	dataPort    = 0x60
	statusPort  = 0x64
	commandPort = 0x64
)

const (
	keyExtended = 0xE0
	keyRelease  = 0x80
	keyLShift   = 0x2A
	keyRShift   = 0x36
	keyLCtrl    = 0x1D
	keyLAlt     = 0x38
	keyCapsLock = 0x3A
)

// scanCodeASCII and scanCodeShiftASCII map a set-1 scan code to the ASCII
// byte it produces unshifted/shifted.
var scanCodeASCII = [...]byte{
	0, 0, '1', '2', '3', '4', '5', '6', '7', '8', '9', '0', '-', '=', '\b',
	'\t', 'q', 'w', 'e', 'r', 't', 'y', 'u', 'i', 'o', 'p', '[', ']', '\n',
	0, 'a', 's', 'd', 'f', 'g', 'h', 'j', 'k', 'l', ';', '\'', '`',
	0, '\\', 'z', 'x', 'c', 'v', 'b', 'n', 'm', ',', '.', '/', 0,
	'*', 0, ' ',
}

var scanCodeShiftASCII = [...]byte{
	0, 0, '!', '@', '#', '$', '%', '^', '&', '*', '(', ')', '_', '+', '\b',
	'\t', 'Q', 'W', 'E', 'R', 'T', 'Y', 'U', 'I', 'O', 'P', '{', '}', '\n',
	0, 'A', 'S', 'D', 'F', 'G', 'H', 'J', 'K', 'L', ':', '"', '~',
	0, '|', 'Z', 'X', 'C', 'V', 'B', 'N', 'M', '<', '>', '?', 0,
	'*', 0, ' ',
}

// bufSize is the capacity of the ASCII ring buffer; must be a power of 2
// so index wraparound is a simple mask.
const bufSize = 256

var (
	shiftPressed bool
	ctrlPressed  bool
	altPressed   bool
	capsLock     bool
	extendedKey  bool

	buf              [bufSize]byte
	bufStart, bufEnd int

	// swapped out by tests, following the package convention established
	// by kernel/driver/serial.
	outbFn        = cpu.Outb
	inbFn         = cpu.Inb
	waitFn        = cpu.IOWait
	disableIRQsFn = cpu.DisableInterrupts
	enableIRQsFn  = cpu.EnableInterrupts
	sleepMsFn     func(uint64)
)

// Init resets the 8042 controller and the attached keyboard into scan code
// set 2, enabling IRQ1 delivery. sleepMs is used to poll for the device's
// reset acknowledgement without busy-looping indefinitely; Init runs with
// interrupts still masked, so the caller passes whatever delay primitive
// is usable that early (kmain's port-I/O busy wait) rather than this
// package importing the scheduler's TaskSleep.
func Init(sleepMs func(uint64)) {
	sleepMsFn = sleepMs

	outbFn(commandPort, 0xAD) // disable port 1
	waitFn()
	outbFn(commandPort, 0xA7) // disable port 2
	waitFn()

	inbFn(dataPort) // flush any stale output byte
	waitFn()

	outbFn(commandPort, 0x20) // read controller configuration byte
	waitFn()
	cfg := inbFn(dataPort)
	waitFn()
	cfg |= 1          // enable port 1 IRQ (IRQ1)
	cfg &^= (1 << 1) // ensure port 2 clock stays disabled
	outbFn(commandPort, 0x60)
	waitFn()
	outbFn(dataPort, cfg)
	waitFn()

	outbFn(commandPort, 0xAE) // enable port 1
	waitFn()

	outbFn(dataPort, 0xFF) // reset the keyboard
	waitFn()

	for timeout := 1000; timeout > 0; timeout-- {
		if inbFn(statusPort)&1 != 0 {
			if inbFn(dataPort) == 0xFA {
				break
			}
		}
		if sleepMsFn != nil {
			sleepMsFn(1)
		}
	}

	outbFn(dataPort, 0xF0) // select scan code set
	waitFn()
	outbFn(dataPort, 0x02) // scan code set 2
	waitFn()

	for inbFn(statusPort)&1 != 0 {
		inbFn(dataPort)
	}
}

func bufferAdd(c byte) {
	disableIRQsFn()
	if (bufEnd+1)%bufSize != bufStart {
		buf[bufEnd] = c
		bufEnd = (bufEnd + 1) % bufSize
	}
	enableIRQsFn()
}

// HandleIRQ is the IRQ1 handler: it reads one scan code from the data port,
// updates modifier state, and appends any resulting printable ASCII byte
// to the ring buffer. Registered by callers via irq.HandleIRQ(irq.KeyboardIRQ, ...).
func HandleIRQ() {
	scanCode := inbFn(dataPort)

	if scanCode == keyExtended {
		extendedKey = true
		return
	}

	if scanCode&keyRelease != 0 {
		scanCode &^= keyRelease
		switch scanCode {
		case keyLShift, keyRShift:
			shiftPressed = false
		case keyLCtrl:
			ctrlPressed = false
		case keyLAlt:
			altPressed = false
		}
		extendedKey = false
		return
	}

	if extendedKey {
		extendedKey = false
		return
	}

	switch scanCode {
	case keyLShift, keyRShift:
		shiftPressed = true
		return
	case keyLCtrl:
		ctrlPressed = true
		return
	case keyLAlt:
		altPressed = true
		return
	case keyCapsLock:
		capsLock = !capsLock
		return
	}

	if int(scanCode) >= len(scanCodeASCII) {
		return
	}

	var ascii byte
	if shiftPressed {
		ascii = scanCodeShiftASCII[scanCode]
	} else {
		ascii = scanCodeASCII[scanCode]
	}

	if capsLock {
		switch {
		case ascii >= 'a' && ascii <= 'z':
			ascii = ascii - 'a' + 'A'
		case ascii >= 'A' && ascii <= 'Z':
			ascii = ascii - 'A' + 'a'
		}
	}

	if ctrlPressed && ascii >= 'a' && ascii <= 'z' {
		ascii = ascii - 'a' + 1
	}

	if ascii != 0 {
		bufferAdd(ascii)
	}
}

// ReadByte pops the oldest buffered byte, returning (0, false) if the
// buffer is empty.
func ReadByte() (byte, bool) {
	if bufStart == bufEnd {
		return 0, false
	}
	c := buf[bufStart]
	bufStart = (bufStart + 1) % bufSize
	return c, true
}

// HasKey reports whether at least one byte is waiting to be read.
func HasKey() bool {
	return bufStart != bufEnd
}

// ClearBuffer discards any buffered, unread bytes.
func ClearBuffer() {
	bufStart, bufEnd = 0, 0
}
