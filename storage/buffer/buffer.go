package buffer

import (
	"fmt"

	"github.com/HayatoShiba/ppkernel/common"
	"github.com/HayatoShiba/ppkernel/lock"
)

// Buffer is one cached copy of one disk block
//
// states of a buffer:
//   - unbound: the slot is clear in the free-slot bitmap
//   - bound/invalid: bound to (dev, blockno) on claim or eviction, content not read yet
//   - bound/valid: content reflects the disk after the first successful read
//
// a buffer goes back to bound/invalid only when it is evicted for another block,
// and it is evicted only while nobody references it.
type Buffer struct {
	// slot is the index in the pool. fixed
	slot int

	// dev, blockno and refcnt are protected by the cache lock.
	// dev and blockno change only while refcnt is zero, so a referencing context can read them without the lock
	dev     common.Device
	blockno uint32
	refcnt  int

	// contentLock is the exclusive content lock. it may be held across disk I/O
	contentLock *lock.SleepLock
	// valid and data are protected by contentLock.
	// valid is reset under the cache lock on rebinding, when nobody holds contentLock
	valid bool
	data  []byte
}

// newBuffer initializes the buffer of slot
func newBuffer(slot, size int) *Buffer {
	return &Buffer{
		slot:        slot,
		contentLock: lock.NewSleepLock(fmt.Sprintf("bcache%d", slot)),
		data:        make([]byte, size),
	}
}

// Data returns the block content. the caller has to hold the content lock
func (b *Buffer) Data() []byte {
	return b.data
}

// Device returns the device of the cached block
func (b *Buffer) Device() common.Device {
	return b.dev
}

// BlockNo returns the block number of the cached block
func (b *Buffer) BlockNo() uint32 {
	return b.blockno
}

// Slot returns the index of the buffer in the pool
func (b *Buffer) Slot() int {
	return b.slot
}

// Locked checks whether the content lock is held
func (b *Buffer) Locked() bool {
	return b.contentLock.Holding()
}

// tag returns the identity the buffer is bound to
func (b *Buffer) tag() tag {
	return tag{dev: b.dev, blockno: b.blockno}
}
