package uthreads

import (
	"sync"
	"unsafe"

	"github.com/sigurn/crc16"

	"github.com/vcorelib/uthreads/internal/task"
)

// StackProvider hands out fixed-size byte regions for use as thread stacks
// and takes them back on release. spec.md §1 treats this as an external
// collaborator; §4.1/§9 require exclusive ownership for a TCB's lifetime,
// first-fit allocation, and no zeroing on release (stale data is not a
// confidentiality guarantee).
type StackProvider interface {
	Acquire() ([]byte, error)
	Release(stack []byte)
}

// arena is the default StackProvider: one contiguous backing array sliced
// into MaxThreads regions of StackSize bytes each, with a free list for
// first-fit reuse. Grounded on uthreads.c's static
// g_stacks[MAX_THREAD_NUM][STACK_SIZE].
type arena struct {
	mu        sync.Mutex
	backing   []byte
	stackSize int
	free      []int // indices into backing, in ascending order (first-fit)
}

// newArena allocates the backing store for n stacks of size bytes each.
func newArena(n, size int) *arena {
	a := &arena{
		backing:   make([]byte, n*size),
		stackSize: size,
		free:      make([]int, n),
	}
	for i := range a.free {
		a.free[i] = i
	}
	return a
}

func (a *arena) Acquire() ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.free) == 0 {
		return nil, exhausted("StackProvider.Acquire", "no free stack regions")
	}
	idx := a.free[0]
	a.free = a.free[1:]
	start := idx * a.stackSize
	return a.backing[start : start+a.stackSize : start+a.stackSize], nil
}

// Release returns stack to the pool. It is not zeroed: spec.md §5 says
// stale stack data carries no confidentiality guarantee, and zeroing
// MaxThreads*StackSize bytes on every release would be pure overhead no
// operation requires.
func (a *arena) Release(stack []byte) {
	if len(stack) != a.stackSize {
		panic("uthreads: released stack region has the wrong size")
	}
	// cap(stack) == a.stackSize by construction of Acquire, so the region's
	// index within backing is recoverable from pointer arithmetic against
	// the backing slice's base address.
	base := uintptr(unsafe.Pointer(&a.backing[0]))
	off := uintptr(unsafe.Pointer(&stack[0])) - base
	idx := int(off) / a.stackSize

	a.mu.Lock()
	defer a.mu.Unlock()
	// Insert in ascending order so Acquire's free[0] pick stays true
	// first-fit (lowest free index), not just "most recently freed".
	pos := 0
	for pos < len(a.free) && a.free[pos] < idx {
		pos++
	}
	a.free = append(a.free, 0)
	copy(a.free[pos+1:], a.free[pos:])
	a.free[pos] = idx
}

// StackChecksum computes a CRC16 (CCITT) checksum over a stack region. It is
// not consulted anywhere in the scheduler — stack overflow detection is an
// explicit Non-goal (spec.md §1) — but is exposed for the demo's diagnostic
// command as a coarse "did this region change since I last looked" aid.
func StackChecksum(stack []byte) uint16 {
	table := crc16.MakeTable(crc16.CRC16_CCITT_FALSE)
	return crc16.Checksum(stack, table)
}

// Checksum returns tid's current stack-region CRC16, for the demo's
// diagnostic command. It takes the scheduler lock just long enough to read
// the stack slice header; the checksum itself runs outside the lock.
func Checksum(tid int) (uint16, error) {
	c, err := running()
	if err != nil {
		return 0, err
	}
	c.mu.Lock()
	if tid < 0 || tid >= len(c.tasks) || c.tasks[tid] == nil || c.tasks[tid].State == task.Unused {
		c.mu.Unlock()
		e := badArg("Checksum", "invalid or unused tid")
		report(e)
		return 0, e
	}
	stack := c.tasks[tid].Stack
	c.mu.Unlock()
	return StackChecksum(stack), nil
}
