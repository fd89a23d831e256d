// Package uthreads implements a cooperative-preemptive user-space thread
// library: a periodic virtual-time tick drives a round-robin scheduler over
// a fixed table of thread control blocks, on top of which threads may also
// voluntarily block, sleep for whole quanta, or terminate one another.
//
// At most one thread's code is ever actually executing library or user logic
// at a time — see internal/task for how that's realized without cgo or
// assembly. The timer, the stack pool, and the host program are external
// collaborators behind small interfaces (TimerSource, StackProvider); the
// scheduler treats them as opaque.
package uthreads

import (
	"sync"

	"github.com/vcorelib/uthreads/internal/readyqueue"
	"github.com/vcorelib/uthreads/internal/task"
)

// host is the reserved TID of the thread that calls Init.
const host = 0

// Core is the library's entire mutable state: the TCB table, the ready
// queue, and the quantum counters. Design Notes §9 calls for encapsulating
// what the original C implementation keeps as process globals into one
// library-owned object; Core is that object. The package keeps a single
// instance behind the public functions, matching spec.md's API shape (and
// the teacher's own habit of package-level scheduler state in
// src/runtime/scheduler_cores.go).
type Core struct {
	mu sync.Mutex

	cfg    Config
	tasks  []*task.Task // index 0..MaxThreads-1; nil until allocated
	ready  *readyqueue.Queue
	stacks StackProvider
	timer  TimerSource

	current        int
	totalQuantums  uint64
	preemptPending bool
}

var (
	coreMu sync.Mutex
	core   *Core
)

// Init initializes the library per spec.md §4.5: zeroes the TCB table, sets
// up TID 0 as RUNNING with quantums=1, starts total_quantums at 1, and arms
// the timer. Calling Init twice is a SYSTEM error: a second call would
// discard a live thread table out from under running goroutines, which this
// module chooses never to do silently (see DESIGN.md).
func Init(cfg Config) error {
	coreMu.Lock()
	defer coreMu.Unlock()
	if core != nil {
		err := systemErr("Init", "already initialized")
		fatal(err)
		return err
	}
	if err := cfg.Verify(); err != nil {
		report(err.(*Error))
		return err
	}

	stacks := newArena(cfg.MaxThreads, int(cfg.StackSize))
	hostStack, err := stacks.Acquire()
	if err != nil {
		se := systemErr("Init", "failed to reserve the host stack region: "+err.Error())
		fatal(se)
		return se
	}

	c := &Core{
		cfg:    cfg,
		tasks:  make([]*task.Task, cfg.MaxThreads),
		ready:  readyqueue.New(cfg.MaxThreads),
		stacks: stacks,
		timer:  newTickerTimer(),
	}

	hostTask := task.New(host, hostStack)
	hostTask.Bind()
	hostTask.State = task.Running
	hostTask.Quantums = 1
	c.tasks[host] = hostTask
	c.current = host
	c.totalQuantums = 1

	if err := c.timer.Arm(cfg.Quantum(), func() { c.onTick() }); err != nil {
		se := err.(*Error)
		fatal(se)
		return se
	}

	core = c
	return nil
}

// SetTimerSource replaces the armed TimerSource with an alternative (e.g. a
// serialTimer from NewSerialTimerSource), re-arming it with the configured
// quantum. Must be called after Init.
func SetTimerSource(ts TimerSource) error {
	coreMu.Lock()
	c := core
	coreMu.Unlock()
	if c == nil {
		return systemErr("SetTimerSource", "library not initialized")
	}
	c.mu.Lock()
	old := c.timer
	c.timer = ts
	quantum := c.cfg.Quantum()
	c.mu.Unlock()

	old.Stop()
	if err := ts.Arm(quantum, func() { c.onTick() }); err != nil {
		se, ok := err.(*Error)
		if !ok {
			se = systemErr("SetTimerSource", err.Error())
		}
		fatal(se)
		return se
	}
	return nil
}

// onTick is the timer-tick entry point (spec.md §4.6), invoked from the
// TimerSource's dedicated goroutine. It increments the counters and flags a
// pending preemption; the actual scheduler re-entry and context switch are
// performed by whichever task is current, the next time it calls Checkpoint;
// no other public operation acts on the flag — see SPEC_FULL.md's
// "Preemption granularity" note for why that split is necessary in portable
// Go.
func (c *Core) onTick() {
	c.mu.Lock()
	c.totalQuantums++
	cur := c.tasks[c.current]
	cur.Quantums++
	c.preemptPending = true
	c.mu.Unlock()
}
