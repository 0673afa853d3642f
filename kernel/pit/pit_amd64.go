// Package pit drives the 8253/8254 programmable interval timer that backs
// the scheduler's millisecond clock and timer_tick IRQ.
package pit

import (
	"sync/atomic"

	"github.com/IAmTheNerdNextDoor/arikoto/kernel/cpu"
)

// frequencyHz is the rate, in Hz, at which Init programs the PIT to fire
// channel 0. 1000 Hz gives the scheduler one tick per millisecond.
const frequencyHz = 1000

// baseFrequencyHz is the PIT's fixed input oscillator frequency; the
// programmed divisor scales it down to frequencyHz.
const baseFrequencyHz = 1193182

const (
	channel0DataPort = 0x40
	commandPort      = 0x43

	// channel 0, lobyte/hibyte access, mode 2 (rate generator).
	commandRateGenerator = 0x36
)

var (
	ticks uint64

	// outbFn is mocked by tests.
	outbFn = cpu.Outb
)

// Init programs PIT channel 0 for periodic mode at frequencyHz; once the
// PIC is unmasked, each firing arrives on the IRQ0 vector the scheduler's
// timer tick is routed to.
func Init() {
	divisor := uint16(baseFrequencyHz / frequencyHz)

	outbFn(commandPort, commandRateGenerator)
	outbFn(channel0DataPort, uint8(divisor&0xFF))
	outbFn(channel0DataPort, uint8(divisor>>8))
}

// Tick records one delivered timer interrupt. It must be called from the
// IRQ0 vector's handler, once per firing.
func Tick() {
	atomic.AddUint64(&ticks, 1)
}

// ElapsedMs returns the number of milliseconds that have elapsed since Init,
// counted from the IRQ0 ticks the PIT has delivered.
func ElapsedMs() uint64 {
	return atomic.LoadUint64(&ticks) * 1000 / frequencyHz
}
