/*
Buffer cache keeps a small fixed pool of in-memory copies of disk blocks.
Caching disk blocks reduces disk reads, and the cache is also the synchronization point
for a block used by multiple contexts: only one context at a time can use a buffer's content.

the methods as main entry point are described below
- GetForRead: returns a locked buffer holding valid content of the block
- Write: writes the content of a locked buffer to disk
- Release: releases the lock and drops the reference. do not use the buffer afterward
- Pin/Unpin: keep a buffer resident across multiple GetForRead/Release pairs (e.g. logging)

----

# The list of locks used for the buffer cache

- cache lock (spinlock, short hold):
  - this protects the buffer table, the free-slot bitmap, index node slabs and
    the tag and reference count of every buffer
  - it is never held across disk I/O or while acquiring a content lock

- buffer content lock (sleep lock, long hold):
  - this protects the validity flag and the content of each buffer
  - disk I/O of a buffer happens only while its content lock is held, so the transfers and
    content accesses of one block are totally ordered

The page allocator's shard locks are also short hold locks. The cache never calls the
allocator while holding the cache lock, so at most one short hold lock is held at a time.

----

buffer lookup
The flow of GetForRead is described below
- acquire cache lock and look up (device, block) in the buffer table
  - if found, increment reference count, release cache lock and acquire the content lock
- if not found, take the lowest never-bound slot from the free-slot bitmap
- if every slot has been bound, take the first slot whose reference count is 0, scanning from slot 0
  - remove the old tag of the slot from the buffer table
  - if there is no such slot, the caller leaked references and this is fatal
- insert the new tag, mark the buffer invalid with reference count 1, release cache lock and
  acquire the content lock
- read the block from disk only when the buffer is invalid

Eviction does not write anything back. A caller which modifies a buffer writes it with Write
before releasing it.
*/
package buffer

import (
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/HayatoShiba/ppkernel/common"
	"github.com/HayatoShiba/ppkernel/lock"
	"github.com/HayatoShiba/ppkernel/memory/page"
	"github.com/HayatoShiba/ppkernel/storage/bitmap"
)

// PageAllocator provides pages for index nodes. kalloc.Allocator satisfies it
type PageAllocator interface {
	Alloc(cpu common.CPUID) (page.Address, error)
	Free(cpu common.CPUID, addr page.Address)
	Bytes(addr page.Address) []byte
}

// cpuCounter is implemented by allocators with per-cpu shards, such as kalloc.Pool
type cpuCounter interface {
	NumCPU() int
}

// Device transfers whole blocks synchronously. disk.Manager satisfies it
type Device interface {
	ReadBlock(dev common.Device, blockno uint32, p []byte) error
	WriteBlock(dev common.Device, blockno uint32, p []byte) error
}

// Stats is buffer cache counters
type Stats struct {
	Hits       uint64
	Misses     uint64
	Evictions  uint64
	DiskReads  uint64
	DiskWrites uint64
	// Bound is the number of slots which have been bound to some block
	Bound int
	// IndexNodes is the number of nodes in the buffer table
	IndexNodes int
	// IndexPages is the number of pages holding index nodes
	IndexPages int
}

// Cache is the buffer cache
type Cache struct {
	cfg   Config
	dev   Device
	alloc PageAllocator

	// lock is cache lock. see the head comment for what it protects
	lock   lock.Spinlock
	bufs   []*Buffer
	used   bitmap.Bitmap
	nodes  *nodePool
	table  *bufferTable
	closed bool

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
	reads     atomic.Uint64
	writes    atomic.Uint64
}

// NewCache initializes the buffer cache over dev. index node pages come from alloc
func NewCache(cfg Config, dev Device, alloc PageAllocator) (*Cache, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, errors.Wrap(err, "cfg.validate failed")
	}
	if dev == nil || alloc == nil {
		return nil, errors.Wrap(ErrInvalidConfig, "device and page allocator are required")
	}
	// an unknown cpu would only be caught as a fatal error by the first Alloc
	if cc, ok := alloc.(cpuCounter); ok && int(cfg.CPU) >= cc.NumCPU() {
		return nil, errors.Wrapf(ErrInvalidConfig, "cpu %d of %d", cfg.CPU, cc.NumCPU())
	}
	nodes := &nodePool{}
	c := &Cache{
		cfg:   cfg,
		dev:   dev,
		alloc: alloc,
		bufs:  make([]*Buffer, cfg.NBuf),
		used:  bitmap.New(cfg.NBuf),
		nodes: nodes,
		table: newBufferTable(cfg.NBuckets, nodes),
	}
	c.lock.Init("bcache")
	for i := range c.bufs {
		c.bufs[i] = newBuffer(i, cfg.BlockSize)
	}
	common.L.Info("bcache: initialized",
		"nbuf", cfg.NBuf, "nbuckets", cfg.NBuckets, "block_size", cfg.BlockSize)
	return c, nil
}

// GetForRead returns a locked buffer with the contents of the block.
// it blocks while another context holds the buffer's content lock.
// the disk is read only when the buffer does not hold valid content yet.
// when the read fails, the buffer is released and the error is returned
func (c *Cache) GetForRead(dev common.Device, blockno uint32) (*Buffer, error) {
	b, err := c.get(dev, blockno)
	if err != nil {
		return nil, err
	}
	if !b.valid {
		if err := c.dev.ReadBlock(dev, blockno, b.data); err != nil {
			c.Release(b)
			return nil, errors.Wrapf(err, "read dev %d block %d failed", dev, blockno)
		}
		b.valid = true
		c.reads.Add(1)
	}
	return b, nil
}

// get looks up the block and returns its buffer referenced and locked.
// when the buffer table needs a new node page, the cache lock is released, a page is
// allocated and the lookup starts over, because another context may bind the block meanwhile
func (c *Cache) get(dev common.Device, blockno uint32) (*Buffer, error) {
	t := tag{dev: dev, blockno: blockno}
	var spare page.Address
	var spareData []byte
	for {
		c.lock.Acquire()
		if c.closed {
			c.lock.Release()
			c.freeSpare(spareData, spare)
			return nil, ErrClosed
		}

		// is the block already cached?
		if slot, ok := c.table.find(t); ok {
			b := c.bufs[slot]
			b.refcnt++
			c.lock.Release()
			c.hits.Add(1)
			c.freeSpare(spareData, spare)
			b.contentLock.Acquire()
			return b, nil
		}

		if !c.nodes.hasRoom() {
			if spareData == nil {
				c.lock.Release()
				addr, err := c.alloc.Alloc(c.cfg.CPU)
				if err != nil {
					return nil, errors.Wrap(err, "allocate index node page failed")
				}
				spare, spareData = addr, c.alloc.Bytes(addr)
				continue
			}
			c.nodes.addSlab(spare, spareData)
			spareData = nil
		}

		b, emptied, hasEmptied := c.bind(t)
		c.lock.Release()
		c.misses.Add(1)
		if hasEmptied {
			c.alloc.Free(c.cfg.CPU, emptied)
		}
		c.freeSpare(spareData, spare)
		b.contentLock.Acquire()
		return b, nil
	}
}

// freeSpare returns a node page which was allocated but turned out to be unneeded
func (c *Cache) freeSpare(data []byte, addr page.Address) {
	if data != nil {
		c.alloc.Free(c.cfg.CPU, addr)
	}
}

// bind binds a slot to t with reference count 1 and inserts t into the buffer table.
// the caller holds the cache lock and has made sure a node record is available.
// it returns the address of a node page which became empty and has to be freed after
// the cache lock is released
func (c *Cache) bind(t tag) (*Buffer, page.Address, bool) {
	slot, ok := c.freeSlot()
	evict := false
	if !ok {
		// not free buffer, find one to evict
		if slot, ok = c.findVictim(); !ok {
			c.lock.Release()
			common.Panic(errors.Wrapf(ErrNoBuffers, "bget: dev %d block %d", t.dev, t.blockno))
		}
		evict = true
	}
	b := c.bufs[slot]

	// insert before erasing the old tag so that erasing cannot detach the slab with room
	if !c.table.insert(t, slot) {
		c.lock.Release()
		common.Panic(errors.Wrap(ErrCorrupted, "bget: no node record although a slab has room"))
	}
	var emptied page.Address
	var hasEmptied bool
	if evict {
		old := b.tag()
		var found bool
		found, emptied, hasEmptied = c.table.erase(old)
		if !found {
			c.lock.Release()
			common.Panic(errors.Wrapf(ErrCorrupted, "bget: slot %d bound to dev %d block %d is not indexed",
				slot, old.dev, old.blockno))
		}
		c.evictions.Add(1)
		common.L.Debug("bcache: evicting buffer", "slot", slot,
			"old_dev", old.dev, "old_blockno", old.blockno, "dev", t.dev, "blockno", t.blockno)
	} else {
		c.used.Set(slot)
	}

	b.dev = t.dev
	b.blockno = t.blockno
	// nobody holds the content lock of an unreferenced buffer
	b.valid = false
	b.refcnt = 1
	return b, emptied, hasEmptied
}

// Write writes the buffer's content to disk. the caller must hold the content lock
func (c *Cache) Write(b *Buffer) error {
	if !b.contentLock.Holding() {
		common.Panic(errors.Wrapf(ErrNotLocked, "bwrite: slot %d", b.slot))
	}
	if err := c.dev.WriteBlock(b.dev, b.blockno, b.data); err != nil {
		return errors.Wrapf(err, "write dev %d block %d failed", b.dev, b.blockno)
	}
	c.writes.Add(1)
	return nil
}

// Release releases the content lock and drops the reference.
// the caller must hold the content lock and must not use the buffer afterward
func (c *Cache) Release(b *Buffer) {
	if !b.contentLock.Holding() {
		common.Panic(errors.Wrapf(ErrNotLocked, "brelse: slot %d", b.slot))
	}
	b.contentLock.Release()

	c.lock.Acquire()
	if b.refcnt == 0 {
		c.lock.Release()
		common.Panic(errors.Wrapf(ErrUnderflow, "brelse: slot %d", b.slot))
	}
	b.refcnt--
	c.lock.Release()
}

// Pin adds a reference without touching the content lock
func (c *Cache) Pin(b *Buffer) {
	c.lock.Acquire()
	b.refcnt++
	c.lock.Release()
}

// Unpin drops a reference added by Pin
func (c *Cache) Unpin(b *Buffer) {
	c.lock.Acquire()
	if b.refcnt == 0 {
		c.lock.Release()
		common.Panic(errors.Wrapf(ErrUnderflow, "bunpin: slot %d", b.slot))
	}
	b.refcnt--
	c.lock.Release()
}

// RefCount returns the reference count of the buffer
func (c *Cache) RefCount(b *Buffer) int {
	c.lock.Acquire()
	defer c.lock.Release()
	return b.refcnt
}

// Stats returns counters
func (c *Cache) Stats() Stats {
	st := Stats{
		Hits:       c.hits.Load(),
		Misses:     c.misses.Load(),
		Evictions:  c.evictions.Load(),
		DiskReads:  c.reads.Load(),
		DiskWrites: c.writes.Load(),
	}
	c.lock.Acquire()
	st.Bound = c.used.Count(c.cfg.NBuf)
	st.IndexNodes = c.table.len()
	st.IndexPages = len(c.nodes.pages())
	c.lock.Release()
	return st
}

// Close empties the cache and frees every index node page.
// every buffer must be released beforehand
func (c *Cache) Close() error {
	c.lock.Acquire()
	if c.closed {
		c.lock.Release()
		return nil
	}
	for _, b := range c.bufs {
		if b.refcnt != 0 {
			slot, refcnt := b.slot, b.refcnt
			c.lock.Release()
			return errors.Wrapf(ErrBusy, "slot %d has %d references", slot, refcnt)
		}
	}
	pages := c.nodes.pages()
	c.nodes.reset()
	c.table.reset()
	c.used.Reset()
	c.closed = true
	c.lock.Release()

	for _, addr := range pages {
		c.alloc.Free(c.cfg.CPU, addr)
	}
	common.L.Info("bcache: closed", "index_pages", len(pages))
	return nil
}
