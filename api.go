package uthreads

import (
	"os"

	"github.com/vcorelib/uthreads/internal/task"
)

func defaultOSExit(code int) { os.Exit(code) }

// running returns the initialized Core or a SYSTEM error if Init hasn't
// been called yet. Every public operation below starts with this check.
func running() (*Core, error) {
	coreMu.Lock()
	c := core
	coreMu.Unlock()
	if c == nil {
		return nil, systemErr("uthreads", "library not initialized")
	}
	return c, nil
}

// Spawn allocates a TCB and a stack region, marks the new thread READY, and
// enqueues it. entry runs on its own goroutine once the scheduler switches
// to it. A nil entry, or no free TCB slot/stack region, fails without
// mutating state; on failure the returned TID is -1.
func Spawn(entry func()) (int, error) {
	c, err := running()
	if err != nil {
		return -1, err
	}
	if entry == nil {
		e := badArg("Spawn", "entry must not be nil")
		report(e)
		return -1, e
	}

	c.mu.Lock()
	tid := -1
	for i := 1; i < len(c.tasks); i++ {
		if c.tasks[i] == nil || c.tasks[i].State == task.Unused {
			tid = i
			break
		}
	}
	if tid == -1 {
		c.mu.Unlock()
		e := exhausted("Spawn", "no free thread slot")
		report(e)
		return -1, e
	}
	stack, err := c.stacks.Acquire()
	if err != nil {
		c.mu.Unlock()
		e := err.(*Error)
		report(e)
		return -1, e
	}

	t := task.New(tid, stack)
	t.State = task.Ready
	c.tasks[tid] = t
	c.ready.Push(tid)
	c.mu.Unlock()

	t.Spawn(entry, func() { _ = Terminate(tid) })
	return tid, nil
}

// Terminate ends tid. Terminating the host thread (TID 0) ends the process,
// matching uthreads.c's treatment of the main thread as the program itself.
// Terminating the calling thread marks it TERMINATED and enters the
// scheduler, which returns its TCB to UNUSED (invariant 6) and its stack to
// the pool in the same pass that hands the CPU on. Terminating any other thread
// frees its TCB and stack immediately; a stale ready-queue entry for it is
// tolerated and discarded the next time the scheduler scans past it.
func Terminate(tid int) error {
	c, err := running()
	if err != nil {
		return err
	}

	c.mu.Lock()
	if tid < 0 || tid >= len(c.tasks) || c.tasks[tid] == nil || c.tasks[tid].State == task.Unused {
		c.mu.Unlock()
		e := badArg("Terminate", "invalid or unused tid")
		report(e)
		return e
	}

	if tid == host {
		c.mu.Unlock()
		osExit(0)
		return nil
	}

	t := c.tasks[tid]
	if tid == c.current {
		t.State = task.Terminated
		c.enterScheduler() // unlocks c.mu; never returns for a self-terminating thread
		return nil
	}

	c.retireLocked(t)
	c.mu.Unlock()
	return nil
}

// Block suspends tid until a matching Resume. Blocking the host thread is
// refused (there is no other way to keep the process progressing). Blocking
// the calling thread yields the CPU through the scheduler; blocking another
// thread just flips its state, leaving any stale ready-queue entry for the
// scheduler to discard later.
func Block(tid int) error {
	c, err := running()
	if err != nil {
		return err
	}

	c.mu.Lock()
	if tid <= host || tid >= len(c.tasks) || c.tasks[tid] == nil || c.tasks[tid].State == task.Unused {
		c.mu.Unlock()
		e := badArg("Block", "invalid tid, or tid is the host thread")
		report(e)
		return e
	}

	t := c.tasks[tid]
	if t.State == task.Terminated {
		c.mu.Unlock()
		return nil
	}

	t.State = task.Blocked
	if tid == c.current {
		c.enterScheduler() // unlocks c.mu
		return nil
	}
	c.mu.Unlock()
	return nil
}

// Resume moves a BLOCKED thread back to READY. Per design policy, Resume
// never cancels a pending Sleep: calling it on a thread that is sleeping has
// no effect until the sleep deadline itself wakes it. Resuming a thread that
// is already READY, RUNNING, or TERMINATED is a no-op.
func Resume(tid int) error {
	c, err := running()
	if err != nil {
		return err
	}

	c.mu.Lock()
	if tid < 0 || tid >= len(c.tasks) || c.tasks[tid] == nil || c.tasks[tid].State == task.Unused {
		c.mu.Unlock()
		e := badArg("Resume", "invalid or unused tid")
		report(e)
		return e
	}

	t := c.tasks[tid]
	if t.State == task.Blocked && t.SleepUntil == 0 {
		t.State = task.Ready
		c.ready.Push(tid)
	}
	c.mu.Unlock()
	return nil
}

// Sleep blocks the calling thread for numQuantums full quantums, after which
// the scheduler's sleep-wake sweep makes it READY again on its own. Per
// spec.md §4.5, numQuantums == 0 is valid: the thread gives up the rest of
// the current quantum, and the sweep in that same scheduler pass puts it
// back at the tail of the ready queue, so it runs again after every thread
// already queued (or at once, if none is). A negative count is rejected. The host thread may not sleep: nothing would
// drive the timer tick's call site forward while it did.
func Sleep(numQuantums int) error {
	c, err := running()
	if err != nil {
		return err
	}
	if numQuantums < 0 {
		e := badArg("Sleep", "num_quantums must be >= 0")
		report(e)
		return e
	}

	c.mu.Lock()
	if c.current == host {
		c.mu.Unlock()
		e := badArg("Sleep", "the host thread may not sleep")
		report(e)
		return e
	}
	t := c.tasks[c.current]
	t.State = task.Blocked
	t.SleepUntil = c.totalQuantums + uint64(numQuantums)
	c.enterScheduler() // unlocks c.mu
	return nil
}

// GetTid returns the calling thread's TID.
func GetTid() (int, error) {
	c, err := running()
	if err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current, nil
}

// GetTotalQuantums returns the number of quantums elapsed since Init,
// counting the first quantum the host thread starts in.
func GetTotalQuantums() (uint64, error) {
	c, err := running()
	if err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalQuantums, nil
}

// GetQuantums returns tid's quantum count: the number of timer ticks that
// fired while tid was the current thread, plus one for the host thread's
// initial quantum. A spawned thread's count stays 0 until the first tick
// that arrives while it holds the CPU.
func GetQuantums(tid int) (uint64, error) {
	c, err := running()
	if err != nil {
		return 0, err
	}
	c.mu.Lock()
	if tid < 0 || tid >= len(c.tasks) || c.tasks[tid] == nil || c.tasks[tid].State == task.Unused {
		c.mu.Unlock()
		e := badArg("GetQuantums", "invalid or unused tid")
		report(e)
		return 0, e
	}
	q := c.tasks[tid].Quantums
	c.mu.Unlock()
	return q, nil
}

// Checkpoint is the realization of the timer-tick preemption point inside a
// running thread: it returns immediately unless a tick has arrived since the
// last checkpoint, in which case it enters the scheduler exactly as a
// voluntary suspension would. A CPU-bound thread body must call this
// periodically (e.g. once per loop iteration) for preemption to actually
// take effect — see SPEC_FULL.md's preemption-granularity note for why a
// goroutine cannot be halted from the outside the way a signal handler
// halts a native thread.
func Checkpoint() error {
	c, err := running()
	if err != nil {
		return err
	}
	c.mu.Lock()
	if !c.preemptPending {
		c.mu.Unlock()
		return nil
	}
	c.preemptPending = false
	c.enterScheduler() // unlocks c.mu
	return nil
}

// osExit is a var so tests can intercept process-ending behavior instead of
// actually exiting the test binary.
var osExit = defaultOSExit
