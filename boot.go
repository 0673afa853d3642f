package main

import "github.com/IAmTheNerdNextDoor/arikoto/kernel/kmain"

// main is the only Go symbol exported to the Limine entry stub. It exists as
// a trampoline for kmain.Kmain so the Go compiler cannot see straight
// through to an empty program and optimize the kernel away entirely.
//
// main is not expected to return. If it does, the entry stub halts the CPU.
func main() {
	kmain.Kmain()
}
