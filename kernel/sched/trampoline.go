package sched

import (
	"reflect"
	"unsafe"
)

// switchFrameWords is the number of 8-byte slots switchStacks pushes and
// pops on every crossing: rbx, rbp, r12, r13, r14, r15, in that order.
const switchFrameWords = 6

// buildInitialStack lays out t.kernelStackTop as though switchStacks had
// already pushed a zeroed callee-saved frame for it, with the trampoline's
// entry point sitting where switchStacks' RET will find its return address.
// The result is the value switchStacksFn should load into SP the first time
// t is switched in.
func buildInitialStack(t *Task) uintptr {
	top := t.kernelStackTop
	frame := (*[switchFrameWords + 1]uintptr)(unsafe.Pointer(top - uintptr(switchFrameWords+1)*unsafe.Sizeof(uintptr(0))))

	for i := 0; i < switchFrameWords; i++ {
		frame[i] = 0
	}
	frame[switchFrameWords] = trampolineEntryPoint()

	return top - uintptr(switchFrameWords+1)*unsafe.Sizeof(uintptr(0))
}

// trampolineEntryPoint returns the machine address of taskTrampoline so it
// can be planted as a return address on a freshly created task's stack.
func trampolineEntryPoint() uintptr {
	return reflect.ValueOf(taskTrampoline).Pointer()
}

// taskTrampoline is where every task's very first switch-in returns to. It
// runs entry(arg) for the now-current task to completion and then retires
// it via TaskExit, so a task whose entry point returns falls through into
// an orderly exit instead of returning into garbage.
//
// Landing here via a bare RET rather than a CALL means the Go runtime's own
// bookkeeping for this goroutine's stack bounds was never updated to match
// the kmalloc'd kernel stack switchStacks just moved SP onto; go:nosplit
// keeps this particular function from tripping the morestack prologue, but
// entry and anything it calls are ordinary Go code and must themselves stay
// within the space TaskCreate reserved. See DESIGN.md for the full caveat.
//go:nosplit
func taskTrampoline() {
	t := (*Task)(TaskGetCurrent())
	entry, arg := t.entry, t.arg

	entry(arg)

	TaskExit()
}
