package sync

import (
	"runtime"
	"sync"
	"testing"
	"time"
)

func TestSpinlock(t *testing.T) {
	// Substitute the yieldFn with runtime.Gosched to avoid deadlocks while testing
	defer func(origYieldFn func()) { yieldFn = origYieldFn }(yieldFn)
	yieldFn = runtime.Gosched

	var (
		sl         Spinlock
		wg         sync.WaitGroup
		numWorkers = 10
	)

	sl.Acquire()

	if sl.TryToAcquire() != false {
		t.Error("expected TryToAcquire to return false when lock is held")
	}

	wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go func(worker int) {
			sl.Acquire()
			sl.Release()
			wg.Done()
		}(i)
	}

	<-time.After(100 * time.Millisecond)
	sl.Release()
	wg.Wait()
}

func TestArchAcquireSpinlockBoundedAttempts(t *testing.T) {
	state := uint32(1)
	if archAcquireSpinlock(&state, 8) {
		t.Error("expected acquisition to fail while the lock word stays held")
	}
	if state != 1 {
		t.Error("expected a failed acquire to leave the lock word held")
	}

	state = 0
	if !archAcquireSpinlock(&state, 8) {
		t.Error("expected acquisition of a free lock to succeed")
	}
	if state != 1 {
		t.Error("expected the lock word to read 1 after a successful acquire")
	}
}
