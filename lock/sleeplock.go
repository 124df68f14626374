package lock

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/HayatoShiba/ppkernel/common"
)

// SleepLock is long-hold exclusive lock
// waiters are suspended on a condition variable instead of spinning,
// so this can be held across disk io
type SleepLock struct {
	name   string
	mu     sync.Mutex
	cond   *sync.Cond
	locked bool
}

// NewSleepLock initializes sleep lock
func NewSleepLock(name string) *SleepLock {
	l := &SleepLock{name: name}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// Acquire blocks until the lock is acquired
func (l *SleepLock) Acquire() {
	l.mu.Lock()
	for l.locked {
		l.cond.Wait()
	}
	l.locked = true
	l.mu.Unlock()
}

// Release releases the lock and wakes up waiters
func (l *SleepLock) Release() {
	l.mu.Lock()
	if !l.locked {
		l.mu.Unlock()
		common.Panic(errors.Wrapf(ErrNotHeld, "releasesleep %s", l.name))
	}
	l.locked = false
	l.cond.Broadcast()
	l.mu.Unlock()
}

// Holding reports whether the lock is held by some context
func (l *SleepLock) Holding() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.locked
}

// Name returns lock name
func (l *SleepLock) Name() string {
	return l.name
}
