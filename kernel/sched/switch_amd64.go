package sched

// switchStacks saves the outgoing task's callee-saved registers onto its
// own stack, writes the resulting stack pointer into *oldSPSlot, then loads
// newSP and returns onto the incoming task's stack. It is the only routine
// that crosses stacks; every caller must release its locks before invoking
// it. Implemented in switch_amd64.s.
func switchStacks(oldSPSlot *uintptr, newSP uintptr)
