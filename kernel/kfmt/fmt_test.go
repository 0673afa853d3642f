package kfmt

import (
	"bytes"
	"testing"
)

func TestPrintf(t *testing.T) {
	var buf bytes.Buffer

	defer func() {
		sink = nil
	}()
	SetOutputSink(&buf)

	// mute vet warnings about malformed printf formatting strings
	printfn := Printf

	specs := []struct {
		fn        func()
		expOutput string
	}{
		{
			func() { printfn("no args") },
			"no args",
		},
		// bool values
		{
			func() { printfn("%t", true) },
			"true",
		},
		// strings and byte slices
		{
			func() { printfn("%s arg", "STRING") },
			"STRING arg",
		},
		{
			func() { printfn("%s arg", []byte("BYTE SLICE")) },
			"BYTE SLICE arg",
		},
		{
			func() { printfn("'%4s' arg with padding", "ABC") },
			"' ABC' arg with padding",
		},
		// ints
		{
			func() { printfn("int arg: %d", -10) },
			"int arg: -10",
		},
		{
			func() { printfn("uint arg: %o", uint16(0777)) },
			"uint arg: 777",
		},
		{
			func() { printfn("uint arg: 0x%x", uint32(0xbadf00d)) },
			"uint arg: 0xbadf00d",
		},
		{
			func() { printfn("uint arg with padding: '%10d'", uint64(123)) },
			"uint arg with padding: '       123'",
		},
		{
			func() { printfn("uint arg with padding: '0x%10x'", uint64(0xbadf00d)) },
			"uint arg with padding: '0x000badf00d'",
		},
		// multiple verbs and literal %
		{
			func() { printfn("%d%% of %s", 99, "cases") },
			"99% of cases",
		},
		// error handling
		{
			func() { printfn("more verbs than args: %d %d", 1) },
			"more verbs than args: 1 (MISSING)",
		},
		{
			func() { printfn("%t", "not a bool") },
			"%!(WRONGTYPE)",
		},
		{
			func() { printfn("no verb", 1) },
			"no verb%!(EXTRA)",
		},
	}

	for specIndex, spec := range specs {
		buf.Reset()
		spec.fn()

		if got := buf.String(); got != spec.expOutput {
			t.Errorf("[spec %d] expected to get %q; got %q", specIndex, spec.expOutput, got)
		}
	}
}

func TestPrintfBuffersUntilSinkIsSet(t *testing.T) {
	var buf bytes.Buffer

	defer func() {
		sink = nil
	}()

	sink = nil
	Printf("buffered %d\n", 1)
	Printf("buffered %d\n", 2)

	SetOutputSink(&buf)

	exp := "buffered 1\nbuffered 2\n"
	if got := buf.String(); got != exp {
		t.Errorf("expected SetOutputSink to drain buffered output %q; got %q", exp, got)
	}

	if GetOutputSink() != &buf {
		t.Error("expected GetOutputSink to return the installed writer")
	}
}
