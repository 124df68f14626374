package kalloc

import (
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/HayatoShiba/ppkernel/common"
	"github.com/HayatoShiba/ppkernel/memory/page"
)

// layouter is implemented by allocators which know their physical range
type layouter interface {
	Layout() page.Layout
}

// RefCounted adds a reference count to every page of the inner allocator.
// a page is recycled through the inner allocator only when its count drops to zero
type RefCounted struct {
	inner  Allocator
	layout page.Layout
	// refs is accessed atomically
	refs []int32
}

// NewRefCounted wraps inner. inner is usually *Pool
func NewRefCounted(inner interface {
	Allocator
	layouter
}) *RefCounted {
	layout := inner.Layout()
	return &RefCounted{
		inner:  inner,
		layout: layout,
		refs:   make([]int32, layout.NumFrames()),
	}
}

// frame converts addr. an address outside the managed range is fatal
func (r *RefCounted) frame(op string, addr page.Address) page.Frame {
	if !r.layout.Contains(addr) {
		common.Panic(errors.Wrapf(ErrBadAddress, "%s: %s", op, addr))
	}
	return r.layout.Frame(addr)
}

// Alloc allocates one page with reference count 1
func (r *RefCounted) Alloc(cpu common.CPUID) (page.Address, error) {
	addr, err := r.inner.Alloc(cpu)
	if err != nil {
		return 0, err
	}
	f := r.layout.Frame(addr)
	if !atomic.CompareAndSwapInt32(&r.refs[f], 0, 1) {
		common.Panic(errors.Wrapf(ErrCorrupted, "kalloc: fresh page %s has count %d", addr, atomic.LoadInt32(&r.refs[f])))
	}
	return addr, nil
}

// Ref increments the reference count of an allocated page (pin).
// referencing a free page is fatal
func (r *RefCounted) Ref(addr page.Address) {
	f := r.frame("kref", addr)
	for {
		c := atomic.LoadInt32(&r.refs[f])
		if c <= 0 {
			common.Panic(errors.Wrapf(ErrRefUnderflow, "kref: %s is free", addr))
		}
		if atomic.CompareAndSwapInt32(&r.refs[f], c, c+1) {
			return
		}
	}
}

// Free drops one reference. the page is recycled when the count reaches zero.
// dropping a reference of a page whose count is already zero is fatal
func (r *RefCounted) Free(cpu common.CPUID, addr page.Address) {
	f := r.frame("kfree", addr)
	for {
		c := atomic.LoadInt32(&r.refs[f])
		if c <= 0 {
			common.Panic(errors.Wrapf(ErrRefUnderflow, "kfree: %s has count %d", addr, c))
		}
		if !atomic.CompareAndSwapInt32(&r.refs[f], c, c-1) {
			continue
		}
		if c == 1 {
			r.inner.Free(cpu, addr)
		}
		return
	}
}

// Count returns the reference count of the page
func (r *RefCounted) Count(addr page.Address) int {
	f := r.frame("kcount", addr)
	return int(atomic.LoadInt32(&r.refs[f]))
}

// Bytes returns the content of an allocated page
func (r *RefCounted) Bytes(addr page.Address) []byte {
	return r.inner.Bytes(addr)
}

// Stats returns the inner allocator's counters
func (r *RefCounted) Stats() Stats {
	return r.inner.Stats()
}

// Layout returns the managed physical range
func (r *RefCounted) Layout() page.Layout {
	return r.layout
}

// NumCPU returns the number of shards of the inner allocator
func (r *RefCounted) NumCPU() int {
	return len(r.inner.Stats().ShardFree)
}

// Unwrap returns the inner allocator
func (r *RefCounted) Unwrap() Allocator {
	return r.inner
}
