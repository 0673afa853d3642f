// Package sync provides the kernel's spinlock synchronization primitive.
package sync

import "sync/atomic"

var (
	// yieldFn, when non-nil, is invoked between spin rounds so other
	// runnable contexts can make progress while the lock is contended.
	// The kernel leaves it nil (single CPU, busy-wait until the holder
	// releases); hosted tests point it at runtime.Gosched so spinning
	// goroutines cannot starve the holder.
	yieldFn func()
)

// attemptsPerSpinRound is the number of exchange attempts archAcquireSpinlock
// makes before Acquire gives yieldFn a chance to run.
const attemptsPerSpinRound = 64

// Spinlock implements a lock where each task trying to acquire it busy-waits
// till the lock becomes available.
type Spinlock struct {
	state uint32
}

// Acquire blocks until the lock can be acquired by the currently active task.
// Any attempt to re-acquire a lock already held by the current task will cause
// a deadlock.
func (l *Spinlock) Acquire() {
	for !archAcquireSpinlock(&l.state, attemptsPerSpinRound) {
		if yieldFn != nil {
			yieldFn()
		}
	}
}

// TryToAcquire attempts to acquire the lock and returns true if the lock could
// be acquired or false otherwise.
func (l *Spinlock) TryToAcquire() bool {
	return atomic.SwapUint32(&l.state, 1) == 0
}

// Release relinquishes a held lock allowing other tasks to acquire it. Calling
// Release while the lock is free has no effect.
func (l *Spinlock) Release() {
	atomic.StoreUint32(&l.state, 0)
}

// archAcquireSpinlock makes up to attempts atomic-exchange attempts to
// capture the lock, pausing the CPU while the lock word reads non-zero
// between attempts. It reports whether the lock was captured. Implemented
// in spinlock_amd64.s.
func archAcquireSpinlock(state *uint32, attempts uint32) bool
