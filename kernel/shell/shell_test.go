package shell

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/IAmTheNerdNextDoor/arikoto/kernel/kfmt"
	"github.com/IAmTheNerdNextDoor/arikoto/kernel/sched"
)

// withScriptedInput feeds the readline loop from an in-memory byte queue
// and captures everything the shell prints. An exhausted queue reports "no
// byte ready", which exercises the yield path.
func withScriptedInput(t *testing.T, input string) (out *bytes.Buffer, yields *int, restore func()) {
	t.Helper()

	origRead, origSerialRead := readByteFn, serialTryReadFn
	origSchedule := scheduleFn

	queue := []byte(input)
	readByteFn = func() (byte, bool) {
		if len(queue) == 0 {
			return 0, false
		}
		b := queue[0]
		queue = queue[1:]
		return b, true
	}
	serialTryReadFn = func() (byte, bool) { return 0, false }

	yieldCount := 0
	scheduleFn = func() {
		yieldCount++
		if len(queue) == 0 {
			// Nothing further is coming; feed a newline so readLine
			// terminates instead of yielding forever.
			queue = []byte{'\n'}
		}
	}

	var buf bytes.Buffer
	kfmt.SetOutputSink(io.Discard)
	kfmt.SetOutputSink(&buf)

	return &buf, &yieldCount, func() {
		readByteFn, serialTryReadFn = origRead, origSerialRead
		scheduleFn = origSchedule
		kfmt.SetOutputSink(nil)
	}
}

func TestReadLineEchoesAndTerminates(t *testing.T) {
	out, _, restore := withScriptedInput(t, "help\n")
	defer restore()

	line := readLine(prompt)
	if line != "help" {
		t.Errorf("readLine returned %q, want %q", line, "help")
	}
	if !strings.HasPrefix(out.String(), prompt) {
		t.Errorf("expected the prompt to be printed first, got %q", out.String())
	}
	if !strings.Contains(out.String(), "help") {
		t.Errorf("expected typed characters to be echoed, got %q", out.String())
	}
}

func TestReadLineHandlesBackspace(t *testing.T) {
	_, _, restore := withScriptedInput(t, "lx\bs\n")
	defer restore()

	if line := readLine(prompt); line != "ls" {
		t.Errorf("readLine returned %q, want %q", line, "ls")
	}
}

func TestReadLineYieldsWhenNoInputPending(t *testing.T) {
	_, yields, restore := withScriptedInput(t, "")
	defer restore()

	readLine(prompt)

	if *yields == 0 {
		t.Error("expected readLine to yield via Schedule while no byte was ready")
	}
}

func TestDispatchUnknownCommand(t *testing.T) {
	out, _, restore := withScriptedInput(t, "")
	defer restore()

	dispatch("frobnicate now")

	if !strings.Contains(out.String(), "unknown command: frobnicate") {
		t.Errorf("expected an unknown-command report, got %q", out.String())
	}
}

func TestDispatchEmptyLineIsSilent(t *testing.T) {
	out, _, restore := withScriptedInput(t, "")
	defer restore()

	dispatch("   ")

	if out.Len() != 0 {
		t.Errorf("expected no output for a blank line, got %q", out.String())
	}
}

func TestHelpListsEveryCommand(t *testing.T) {
	out, _, restore := withScriptedInput(t, "")
	defer restore()

	dispatch("help")

	for _, cmd := range commands {
		if !strings.Contains(out.String(), cmd.name) {
			t.Errorf("expected help output to mention %q", cmd.name)
		}
	}
}

func TestPsListsSchedulerTasks(t *testing.T) {
	out, _, restore := withScriptedInput(t, "")
	defer restore()

	sched.InitMultitasking()
	dispatch("ps")

	// The bootstrap task is always present in a snapshot.
	if !strings.Contains(out.String(), "kernel_main") {
		t.Errorf("expected ps to list the bootstrap task, got %q", out.String())
	}
}
