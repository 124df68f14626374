/*
Package kalloc is the physical page allocator.

It owns every page of [kernel end, physical top) and hands out whole pages.
The allocator is built from layers which can be enabled independently:

  - Pool: one free list per cpu (shard), each protected by its own spinlock.
    Alloc pops from the caller's shard. When the shard is empty, Steal moves a
    small batch of pages from the other shards in round robin order starting
    just after the caller, holding only one shard lock at a time.
    With NCPU=1 this is a plain global free list.

  - superpages (attached to Pool): aligned runs of N pages are kept as one
    Whole unit while none of their pages is used. When no individual page is
    left anywhere, one Whole superpage is demoted (Split) and its N pages are
    pushed onto the caller's shard. Every free increments the superpage's
    free counter, and when the counter reaches N the pages are pulled back
    off the shard lists and the superpage becomes Whole again.

  - RefCounted: decorator over any Allocator. Alloc sets the count to 1, Ref
    increments it, and Free decrements it and recycles the page only at zero.

Alloc fills pages with page.JunkByte and Free fills them with page.PoisonByte
so that use of uninitialized or freed memory shows up in tests.

Running out of pages is an ordinary error (ErrExhausted). Broken bookkeeping
(bad address, double free, count underflow) aborts through common.Panic.
*/
package kalloc

import (
	"github.com/pkg/errors"

	"github.com/HayatoShiba/ppkernel/common"
	"github.com/HayatoShiba/ppkernel/memory/page"
	"github.com/HayatoShiba/ppkernel/memory/phys"
)

// Allocator is the interface consumed by process creation, page table code and the buffer cache
type Allocator interface {
	// Alloc returns one page. content is page.JunkByte
	Alloc(cpu common.CPUID) (page.Address, error)
	// Free returns the page. the caller must not touch the page afterward
	Free(cpu common.CPUID, addr page.Address)
	// Bytes returns the content of an allocated page
	Bytes(addr page.Address) []byte
	// Stats returns counters
	Stats() Stats
}

// Stats is allocator counters
type Stats struct {
	// Total is the number of managed pages
	Total int
	// Free is the number of free pages, including pages of whole superpages
	Free int
	// Allocated is the number of pages handed out
	Allocated int
	// ShardFree is the length of each shard's free list
	ShardFree []int
	// WholeSuperpages is the number of free whole superpages
	WholeSuperpages int
	// Stolen is the number of pages moved by steal so far
	Stolen uint64
	// Demotions is the number of whole -> split transitions
	Demotions uint64
	// Promotions is the number of split -> whole transitions
	Promotions uint64
}

// New builds the allocator layers enabled in cfg on top of mem
func New(cfg Config, mem *phys.Memory) (Allocator, error) {
	p, err := NewPool(cfg, mem)
	if err != nil {
		return nil, errors.Wrap(err, "NewPool failed")
	}
	if cfg.RefCount {
		return NewRefCounted(p), nil
	}
	return p, nil
}
