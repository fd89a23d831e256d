// Package task implements the thread control block and the context-switch
// primitive the scheduler treats as an opaque capability.
//
// There is no cgo or assembly here: save_context/restore_context is realized
// as a handshake between two goroutines over an unbuffered channel. Switching
// from prev to next parks prev's goroutine (its Go call stack is the saved
// context) and wakes next's, which was parked the same way the last time it
// was switched away from. Exactly one goroutine is ever unparked at a time,
// so "at most one user thread is on-CPU" holds without any extra locking
// here (the caller still serializes access to shared TCB state separately).
package task

// RunState is the lifecycle state of a thread control block.
type RunState int

const (
	Unused RunState = iota
	Ready
	Running
	Blocked
	Terminated
)

func (s RunState) String() string {
	switch s {
	case Unused:
		return "UNUSED"
	case Ready:
		return "READY"
	case Running:
		return "RUNNING"
	case Blocked:
		return "BLOCKED"
	case Terminated:
		return "TERMINATED"
	default:
		return "INVALID"
	}
}

// Task is one thread control block slot. TID equals the slot index.
type Task struct {
	TID        int
	State      RunState
	Quantums   uint64
	SleepUntil uint64
	Stack      []byte

	run chan struct{}
}

// New allocates a fresh, unstarted task bound to the given stack region.
func New(tid int, stack []byte) *Task {
	return &Task{
		TID:   tid,
		State: Unused,
		Stack: stack,
		run:   make(chan struct{}),
	}
}

// Spawn starts the goroutine backing a non-host task. The goroutine parks
// immediately, waiting for its first Switch-in; this is the Go analogue of
// synthesizing a context that resumes at entry with the stack pointer set to
// the top of the assigned stack region. onExit runs after entry returns
// normally (not if entry panics), realizing entry-point-return policy (a): a
// thread whose body returns is terminated on its own behalf.
func (t *Task) Spawn(entry func(), onExit func()) {
	go func() {
		<-t.run
		entry()
		onExit()
	}()
}

// Bind turns the calling goroutine itself into tid's backing goroutine,
// without starting a new one. Used exactly once, for the host thread (TID 0):
// the real caller of Init is already "running" and has no synthesized entry
// point to jump to.
func (t *Task) Bind() {
	// Nothing to do: the host goroutine simply continues past Init() without
	// ever waiting on t.run. The first time it is preempted away as prev, it
	// parks in Switch on t.run like any other task and later resumes the same
	// way.
}

// Switch parks the calling goroutine (which must be running as prev) and
// wakes next's goroutine. It returns once some later Switch call names prev
// as next again. This is save_context(prev); restore_context(next) performed
// as a single indivisible handshake.
func Switch(prev, next *Task) {
	next.run <- struct{}{}
	<-prev.run
}
