package uthreads

import "github.com/vcorelib/uthreads/internal/task"

// enterScheduler runs one pass of the scheduling algorithm (spec.md §4.4):
// sleep-wake sweep in ascending TID order, selection with stale-entry
// filtering, the previous-thread re-enqueue policy, and finally the context
// switch itself.
//
// Callers must hold c.mu and must already have applied any state change of
// their own to c.tasks[c.current] (TERMINATED for self-termination, BLOCKED
// for a voluntary block or sleep, or left RUNNING for a checkpoint-driven
// preemption). enterScheduler releases c.mu before returning; by the time it
// returns, the calling goroutine has been resumed as the RUNNING occupant of
// the same TID again — which may be much later. A self-terminating caller
// that hands the CPU to another thread is never resumed: its goroutine stays
// parked on its retired task's channel.
func (c *Core) enterScheduler() {
	prevTID := c.current
	prev := c.tasks[prevTID]

	c.sweepSleepersLocked()

	selTID, ok := c.selectNextLocked()
	if !ok {
		// No other thread is ready. A still-RUNNING prev simply keeps the
		// CPU; anything else (BLOCKED, TERMINATED, with nothing left to
		// run) is a deadlocked program, which spec.md §6 leaves undefined.
		if prev.State == task.Terminated {
			c.retireLocked(prev)
		}
		c.mu.Unlock()
		return
	}

	if selTID == prevTID {
		// Sleep(0): the sweep above just woke prev's own tid (its deadline
		// was already the current quantum) and selection popped that same
		// tid right back off the queue, so nothing else was ready to run.
		// prev simply keeps the CPU — task.Switch(prev, prev) would hand
		// off to itself, and internal/task.Switch's handshake only ever has
		// one goroutine parked per Task, so sending on prev.run with no one
		// else left to receive it deadlocks permanently.
		prev.State = task.Running
		c.mu.Unlock()
		return
	}
	sel := c.tasks[selTID]

	if prev.State == task.Running {
		prev.State = task.Ready
		c.ready.Push(prevTID)
	} else if prev.State == task.Terminated {
		// Invariant: TERMINATED is transient and must become UNUSED before
		// any public operation returns. prev's own goroutine is the only
		// one that will ever run this code for it (nothing resumes a
		// terminated TCB), so the cleanup has to happen right here, before
		// the switch below abandons this stack for good.
		c.retireLocked(prev)
	}

	sel.State = task.Running
	c.current = selTID
	c.mu.Unlock()

	task.Switch(prev, sel)
}

// sweepSleepersLocked wakes every BLOCKED thread whose sleep deadline has
// arrived, in ascending TID order, so sleepers woken in the same pass join
// the ready queue in a deterministic order (lowest TID first).
func (c *Core) sweepSleepersLocked() {
	for tid := 1; tid < len(c.tasks); tid++ {
		t := c.tasks[tid]
		if t == nil || t.State != task.Blocked || t.SleepUntil == 0 {
			continue
		}
		if t.SleepUntil <= c.totalQuantums {
			t.SleepUntil = 0
			t.State = task.Ready
			c.ready.Push(tid)
		}
	}
}

// selectNextLocked dequeues the next runnable thread, silently discarding
// stale entries left behind by a thread that was blocked or terminated
// after being enqueued (spec.md §4.3's tolerance for stale ready-queue
// entries).
func (c *Core) selectNextLocked() (int, bool) {
	for {
		tid, ok := c.ready.Pop()
		if !ok {
			return 0, false
		}
		t := c.tasks[tid]
		if t != nil && t.State == task.Ready {
			return tid, true
		}
	}
}

// retireLocked completes a TERMINATED TCB's transition to UNUSED and
// returns its stack to the pool.
func (c *Core) retireLocked(t *task.Task) {
	c.stacks.Release(t.Stack)
	t.State = task.Unused
	t.Stack = nil
}
