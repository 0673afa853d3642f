package hal

import (
	"github.com/IAmTheNerdNextDoor/arikoto/kernel/boot"
	"github.com/IAmTheNerdNextDoor/arikoto/kernel/driver/tty"
	"github.com/IAmTheNerdNextDoor/arikoto/kernel/driver/video/console"
)

var (
	fbConsole = &console.Framebuffer{}

	// ActiveTerminal points to the currently active terminal.
	ActiveTerminal = &tty.Vt{}
)

// InitTerminal attaches ActiveTerminal to the framebuffer the boot protocol
// handed off, so the kernel has console output before any other subsystem
// is ready. It is a no-op (leaving ActiveTerminal unattached) if the
// bootloader reported no framebuffer.
func InitTerminal() {
	fbs := boot.Framebuffers()
	if len(fbs) == 0 {
		return
	}

	fb := fbs[0]
	fbConsole.Init(fb.Width, fb.Height, fb.Pitch, fb.Address)
	ActiveTerminal.AttachTo(fbConsole)
}
