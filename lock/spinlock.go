/*
Two classes of lock are used by the allocator and the buffer cache.

Spinlock is the short-hold lock. It protects metadata only (free lists, the
hash index, the free-slot bitmap, reference counts) and is never held across
anything slow. Acquire busy-waits on a CAS of the state word; after a few
failed rounds it yields the processor with runtime.Gosched() because the
holder may have been descheduled.

SleepLock is the long-hold lock. It protects buffer content across disk I/O
and suspends the waiter instead of spinning.

Rules:
  - a context holds at most one spinlock at a time
  - spinlocks are released before a sleeplock is acquired
*/
package lock

import (
	"runtime"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/HayatoShiba/ppkernel/common"
)

var (
	// ErrNotHeld is wrapped in the panic raised when a lock is released by a context not holding it
	ErrNotHeld = errors.New("lock: release of a lock which is not held")
)

const (
	unlocked uint32 = 0
	locked   uint32 = 1

	// how many times acquire spins before yielding
	spinsBeforeYield = 64
)

// Spinlock is short-hold mutual exclusion lock
type Spinlock struct {
	name  string
	state uint32
}

// NewSpinlock initializes spinlock
// name is used only in panic messages
func NewSpinlock(name string) *Spinlock {
	return &Spinlock{name: name}
}

// Init names the lock. this is for spinlocks embedded by value
func (l *Spinlock) Init(name string) {
	l.name = name
	atomic.StoreUint32(&l.state, unlocked)
}

// Name returns lock name
func (l *Spinlock) Name() string {
	return l.name
}

// Acquire spins until the lock is acquired
func (l *Spinlock) Acquire() {
	spins := 0
	for {
		if atomic.LoadUint32(&l.state) == unlocked &&
			atomic.CompareAndSwapUint32(&l.state, unlocked, locked) {
			return
		}
		spins++
		if spins >= spinsBeforeYield {
			runtime.Gosched()
			spins = 0
		}
	}
}

// TryAcquire acquires the lock only when it is free now
func (l *Spinlock) TryAcquire() bool {
	return atomic.CompareAndSwapUint32(&l.state, unlocked, locked)
}

// Release releases the lock. releasing a free lock is fatal
func (l *Spinlock) Release() {
	if !atomic.CompareAndSwapUint32(&l.state, locked, unlocked) {
		common.Panic(errors.Wrapf(ErrNotHeld, "release %s", l.name))
	}
}

// Holding reports whether the lock is held
// go has no goroutine identity, so this does not tell who holds it
func (l *Spinlock) Holding() bool {
	return atomic.LoadUint32(&l.state) == locked
}
