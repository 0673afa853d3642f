// Package shell implements the kernel's interactive command loop: a tiny
// readline plus a fixed command table (help, ls, cat, meminfo, ps, uptime,
// panic), run as an ordinary scheduler task.
package shell

import (
	"strings"

	"github.com/IAmTheNerdNextDoor/arikoto/kernel"
	"github.com/IAmTheNerdNextDoor/arikoto/kernel/driver/input/ps2"
	"github.com/IAmTheNerdNextDoor/arikoto/kernel/driver/serial"
	"github.com/IAmTheNerdNextDoor/arikoto/kernel/fs"
	"github.com/IAmTheNerdNextDoor/arikoto/kernel/kfmt"
	"github.com/IAmTheNerdNextDoor/arikoto/kernel/mem/pmm"
	"github.com/IAmTheNerdNextDoor/arikoto/kernel/pit"
	"github.com/IAmTheNerdNextDoor/arikoto/kernel/sched"
)

const prompt = "arikoto> "

const lineBufSize = 256

var serialIn serial.Port

// the following are swapped out by tests, following the project's
// established mocking convention for code that drives real hardware and
// the scheduler.
var (
	readByteFn      = ps2.ReadByte
	serialTryReadFn = serialIn.TryReadByte
	scheduleFn      = sched.Schedule
)

type command struct {
	name string
	help string
	run  func(args []string)
}

var commands []command

func init() {
	commands = []command{
		{"help", "list available commands", cmdHelp},
		{"ls", "list files in the initramfs", cmdLs},
		{"cat", "print the contents of a file", cmdCat},
		{"meminfo", "show physical page allocator stats", cmdMeminfo},
		{"ps", "list scheduler tasks", cmdPs},
		{"uptime", "show milliseconds since boot", cmdUptime},
		{"panic", "trigger a kernel panic", cmdPanic},
	}
}

// Run is the shell's task entry point: print a banner, then loop reading
// and dispatching commands forever. It matches the sched.TaskEntry
// signature so it can be handed directly to sched.TaskCreate.
func Run(_ uintptr) {
	kfmt.Printf("arikoto shell -- type 'help' for a command list\n")

	for {
		line := readLine(prompt)
		dispatch(line)
	}
}

// readLine polls the keyboard and serial input buffers, yielding the CPU
// via Schedule whenever neither has a byte ready so an idle shell never
// spins the CPU.
func readLine(p string) string {
	kfmt.Printf("%s", p)

	var buf [lineBufSize]byte
	pos := 0

	for {
		c, ok := readByteFn()
		if !ok {
			c, ok = serialTryReadFn()
		}

		if !ok {
			scheduleFn()
			continue
		}

		switch {
		case c == '\n' || c == '\r':
			kfmt.Printf("\n")
			return string(buf[:pos])
		case c == '\b' || c == 127:
			if pos > 0 {
				pos--
				kfmt.Printf("\b \b")
			}
		case c >= ' ' && c <= '~':
			if pos < lineBufSize-1 {
				buf[pos] = c
				pos++
				kfmt.Printf("%s", string(c))
			}
		}
	}
}

func dispatch(line string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return
	}

	name, args := fields[0], fields[1:]
	for _, cmd := range commands {
		if cmd.name == name {
			cmd.run(args)
			return
		}
	}

	kfmt.Printf("unknown command: %s\n", name)
}

func cmdHelp(_ []string) {
	for _, cmd := range commands {
		kfmt.Printf("  %s - %s\n", cmd.name, cmd.help)
	}
}

func cmdLs(args []string) {
	dir := ""
	if len(args) > 0 {
		dir = args[0]
	}

	names, err := fs.List(dir)
	if err != nil {
		kfmt.Printf("ls: %s\n", err.Error())
		return
	}
	for _, name := range names {
		kfmt.Printf("%s\n", name)
	}
}

func cmdCat(args []string) {
	if len(args) != 1 {
		kfmt.Printf("usage: cat <path>\n")
		return
	}

	data, err := fs.Read(args[0])
	if err != nil {
		kfmt.Printf("cat: %s\n", err.Error())
		return
	}
	kfmt.Printf("%s", data)
}

func cmdMeminfo(_ []string) {
	kfmt.Printf("pages: total=%d used=%d free=%d\n", pmm.TotalPages(), pmm.UsedPages(), pmm.FreePages())
}

func cmdPs(_ []string) {
	for _, t := range sched.Snapshot() {
		kfmt.Printf("%d\t%s\t%s\n", t.ID, t.State.String(), t.Name)
	}
}

func cmdUptime(_ []string) {
	kfmt.Printf("%d ms\n", pit.ElapsedMs())
}

func cmdPanic(_ []string) {
	kernel.Panic("shell: panic requested by user")
}
