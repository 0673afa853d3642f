package sched

import (
	"github.com/IAmTheNerdNextDoor/arikoto/kernel"
	"github.com/IAmTheNerdNextDoor/arikoto/kernel/kfmt/early"
	"github.com/IAmTheNerdNextDoor/arikoto/kernel/mem"
	"github.com/IAmTheNerdNextDoor/arikoto/kernel/mem/heap"
	"github.com/IAmTheNerdNextDoor/arikoto/kernel/pit"
	"github.com/IAmTheNerdNextDoor/arikoto/kernel/sync"
)

var (
	lock sync.Spinlock

	kernelTask  Task
	currentTask *Task
	nextTaskID  uint32 = 1

	readyHead, readyTail *Task
	sleepingHead         *Task
	blockedHead          *Task
	zombieHead           *Task

	// the following are swapped out by tests, following the package's
	// established convention for arch/hardware-facing code.
	nowMsFn        = pit.ElapsedMs
	switchStacksFn = switchStacks
	kmallocFn      = heap.Kmalloc
	kfreeFn        = heap.Kfree
	panicFn        = kernel.Panic

	errOutOfMemory = &kernel.Error{Module: "sched", Message: "out of heap memory"}
)

// InitMultitasking installs a bootstrap Task representing the code path
// that is already running (the kernel's main goroutine-equivalent) as task
// id 0, Active, with no backing kernel_stack of its own since it is already
// running on one.
func InitMultitasking() {
	kernelTask = Task{
		id:        0,
		name:      "kernel_main",
		state:     StateActive,
		priority:  0,
		timeSlice: defaultTimeSlice,
		ticksLeft: defaultTimeSlice,
	}

	currentTask = &kernelTask
	readyHead, readyTail = nil, nil
	sleepingHead = nil
	blockedHead = nil
	zombieHead = nil
	nextTaskID = 1

	early.Printf("[sched] preemptive multitasking installed\n")
}

// TaskCreate allocates a Task control block and its 64 KiB kernel stack,
// prepares an initial stack frame that returns into entry(arg) on first
// switch-in, and enqueues the new task on the ready queue. The TCB itself
// is a regular Go allocation, since it holds GC-tracked fields (name,
// entry, next) that a raw kmalloc'd block would hide from the collector;
// only the kernel stack, which holds nothing but raw register words, comes
// from the kernel heap. If the kernel heap cannot satisfy the stack
// allocation, TaskCreate escalates to panicFn (kernel.Panic, which halts)
// and returns nil only if that call returns.
func TaskCreate(entry TaskEntry, arg uintptr, name string, priority uint8) TaskHandle {
	lock.Acquire()
	defer lock.Release()

	t := &Task{}

	stack := kmallocFn(mem.Size(kernelStackSize))
	if stack == 0 {
		panicFn(errOutOfMemory)
		return nil
	}

	t.kernelStack = stack
	t.kernelStackTop = stack + uintptr(kernelStackSize)
	t.id = nextTaskID
	nextTaskID++
	t.name = truncateName(name)
	t.state = StateReady
	t.priority = priority
	t.timeSlice = defaultTimeSlice
	t.ticksLeft = defaultTimeSlice
	t.entry = entry
	t.arg = arg

	t.sp = buildInitialStack(t)

	enqueueReady(t)

	early.Printf("[sched] task created: %s\n", t.name)
	return TaskHandle(t)
}

func enqueueReady(t *Task) {
	t.state = StateReady
	t.next = nil

	if readyTail == nil {
		readyHead, readyTail = t, t
		return
	}
	readyTail.next = t
	readyTail = t
}

func dequeueReady() *Task {
	if readyHead == nil {
		return nil
	}
	t := readyHead
	readyHead = t.next
	if readyHead == nil {
		readyTail = nil
	}
	t.next = nil
	return t
}

// TaskGetCurrent returns the task currently occupying the CPU.
func TaskGetCurrent() TaskHandle {
	return TaskHandle(currentTask)
}

// wakeDueSleepers walks the sleep queue from the head, which is kept sorted
// by ascending wake_up_time, detaching and re-enqueuing every task whose
// wake time has arrived. It stops at the first task not yet due.
func wakeDueSleepers(nowMs uint64) {
	for sleepingHead != nil && sleepingHead.wakeUpTimeMs <= nowMs {
		woken := sleepingHead
		sleepingHead = woken.next
		woken.next = nil
		enqueueReady(woken)
	}
}

// reapZombies frees the kernel stack of every exited task that is no
// longer running. A task that called TaskExit is still executing on its own
// stack until the context switch out of it completes, so TaskExit cannot
// reclaim it synchronously; the next scheduler pass, running on some other
// task's stack, is the earliest point the memory can safely go back to the
// heap. Must be called with lock held.
func reapZombies() {
	var prev *Task
	cur := zombieHead
	for cur != nil {
		next := cur.next
		if cur == currentTask {
			prev = cur
			cur = next
			continue
		}

		if cur.kernelStack != 0 {
			kfreeFn(cur.kernelStack)
			cur.kernelStack = 0
		}

		if prev == nil {
			zombieHead = next
		} else {
			prev.next = next
		}
		cur = next
	}
}

// Schedule implements the core round-robin decision: reap any tasks that
// exited since the last pass, wake any sleepers that are due, then hand the
// CPU to the next ready task. If the ready queue is empty the current task
// simply keeps running (idle-by-continuation).
func Schedule() {
	lock.Acquire()

	reapZombies()
	wakeDueSleepers(nowMsFn())

	if readyHead == nil {
		if currentTask != nil && currentTask.state == StateActive {
			currentTask.ticksLeft = currentTask.timeSlice
		}
		lock.Release()
		return
	}

	next := dequeueReady()

	if currentTask != nil && currentTask.state == StateActive {
		enqueueReady(currentTask)
	}

	next.state = StateActive
	next.ticksLeft = next.timeSlice

	if next == currentTask {
		lock.Release()
		return
	}

	prev := currentTask
	currentTask = next

	lock.Release()

	switchStacksFn(&prev.sp, next.sp)
}

// TaskSleep parks the current task in the sleep queue, sorted by ascending
// wake_up_time, until at least ms milliseconds have elapsed, then yields the
// CPU via Schedule. A zero duration returns immediately without yielding.
func TaskSleep(ms uint64) {
	if ms == 0 {
		return
	}

	lock.Acquire()

	wake := nowMsFn() + ms
	currentTask.wakeUpTimeMs = wake
	currentTask.state = StateSleeping

	insertSleeping(currentTask, wake)

	lock.Release()

	Schedule()
}

func insertSleeping(t *Task, wake uint64) {
	if sleepingHead == nil || wake <= sleepingHead.wakeUpTimeMs {
		t.next = sleepingHead
		sleepingHead = t
		return
	}

	cur := sleepingHead
	for cur.next != nil && cur.next.wakeUpTimeMs <= wake {
		cur = cur.next
	}
	t.next = cur.next
	cur.next = t
}

// TaskBlock parks the current task on the blocked queue (order is
// irrelevant there) and yields the CPU via Schedule. The task runs again
// only once another task calls TaskUnblock for it.
func TaskBlock() {
	lock.Acquire()

	currentTask.state = StateBlocked
	currentTask.next = blockedHead
	blockedHead = currentTask

	lock.Release()

	Schedule()
}

// TaskUnblock removes handle from the blocked queue and appends it to the
// ready queue. It is a no-op if handle is nil or not currently blocked.
func TaskUnblock(handle TaskHandle) {
	t := (*Task)(handle)
	if t == nil || t.state != StateBlocked {
		return
	}

	lock.Acquire()
	defer lock.Release()

	var prev *Task
	cur := blockedHead
	for cur != nil && cur != t {
		prev = cur
		cur = cur.next
	}
	if cur == nil {
		return
	}

	if prev == nil {
		blockedHead = cur.next
	} else {
		prev.next = cur.next
	}

	enqueueReady(t)
}

// TaskExit marks the current task Zombie, parks it on the zombie list, and
// yields the CPU via Schedule. The task is still executing on its own
// kernel stack at that point, so the stack is not freed here; reapZombies
// reclaims it on the next scheduler pass, after the context switch out has
// completed. Schedule never returns to a Zombie task, so the panic below is
// a safety net in case it somehow does.
func TaskExit() {
	lock.Acquire()

	currentTask.state = StateZombie
	currentTask.next = zombieHead
	zombieHead = currentTask

	lock.Release()

	Schedule()

	panicFn(&kernel.Error{Module: "sched", Message: "schedule returned to a zombie task"})
}

// TaskTimerTick decrements the current task's remaining quantum and calls
// Schedule once it reaches zero. It must be invoked from the timer IRQ
// handler after the PIC end-of-interrupt acknowledgement.
func TaskTimerTick() {
	if currentTask == nil {
		return
	}

	if currentTask.ticksLeft > 0 {
		currentTask.ticksLeft--
		if currentTask.ticksLeft == 0 {
			Schedule()
		}
	}
}

// TaskInfo is a point-in-time, read-only snapshot of one task's scheduler
// bookkeeping, returned by Snapshot for diagnostic consumers like the
// shell's "ps" command.
type TaskInfo struct {
	ID    uint32
	Name  string
	State State
}

// Snapshot returns a TaskInfo for the currently active task followed by
// every task in the ready, sleeping and blocked queues, in that order. It
// takes the scheduler lock for the duration of the walk, the same section
// every queue mutation is serialized under.
func Snapshot() []TaskInfo {
	lock.Acquire()
	defer lock.Release()

	infos := make([]TaskInfo, 0, 4)
	if currentTask != nil {
		infos = append(infos, TaskInfo{ID: currentTask.id, Name: currentTask.name, State: currentTask.state})
	}
	for t := readyHead; t != nil; t = t.next {
		infos = append(infos, TaskInfo{ID: t.id, Name: t.name, State: t.state})
	}
	for t := sleepingHead; t != nil; t = t.next {
		infos = append(infos, TaskInfo{ID: t.id, Name: t.name, State: t.state})
	}
	for t := blockedHead; t != nil; t = t.next {
		infos = append(infos, TaskInfo{ID: t.id, Name: t.name, State: t.state})
	}
	return infos
}
