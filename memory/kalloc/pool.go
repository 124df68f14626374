package kalloc

import (
	"runtime"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/HayatoShiba/ppkernel/common"
	"github.com/HayatoShiba/ppkernel/lock"
	"github.com/HayatoShiba/ppkernel/memory/page"
	"github.com/HayatoShiba/ppkernel/memory/phys"
)

// owner word of each frame. a value >= 0 is the shard whose list holds the frame
const (
	// ownerAllocated means the frame is handed out individually
	ownerAllocated int32 = -1
	// ownerTransit means the frame is off every list while being moved between lists
	ownerTransit int32 = -2
	// ownerSuper means the frame belongs to a whole (or whole-allocated) superpage
	ownerSuper int32 = -3
)

// shard is per-cpu free list
type shard struct {
	lock lock.Spinlock
	free list
}

// Pool is sharded page allocator
type Pool struct {
	cfg    Config
	layout page.Layout
	mem    *phys.Memory
	shards []*shard
	// owner is accessed atomically. see the const block above
	owner []int32
	// super is nil when superpages are disabled
	super *superpages

	// moving is the number of batches of free frames which are off every list
	// (steal, demotion, promotion). moved counts the batches which were relinked.
	// Alloc uses both to tell a real exhaustion from a race with such a batch
	moving atomic.Int64
	moved  atomic.Uint64

	allocated atomic.Int64
	stolen    atomic.Uint64
}

// NewPool carves the physical range of mem into pages
func NewPool(cfg Config, mem *phys.Memory) (*Pool, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, errors.Wrap(err, "cfg.validate failed")
	}
	if mem == nil {
		return nil, errors.Wrap(ErrInvalidConfig, "physical memory is nil")
	}
	layout := mem.Layout()
	n := layout.NumFrames()
	lk := newLinks(n)

	p := &Pool{
		cfg:    cfg,
		layout: layout,
		mem:    mem,
		shards: make([]*shard, cfg.NCPU),
		owner:  make([]int32, n),
	}
	for i := range p.shards {
		s := &shard{free: newList(lk)}
		s.lock.Init("kmem")
		p.shards[i] = s
	}
	if cfg.Superpages {
		p.super = newSuperpages(layout, cfg.SuperpagePages)
	}
	p.freeRange()
	return p, nil
}

// freeRange hands every frame over to the boot shard or to its whole superpage
func (p *Pool) freeRange() {
	if p.super != nil {
		p.super.initWhole(p)
	}
	boot := p.shards[p.cfg.BootCPU]
	boot.lock.Acquire()
	// push from the top so that the list head is the lowest address
	for f := p.layout.NumFrames() - 1; f >= 0; f-- {
		frame := page.Frame(f)
		if p.super != nil {
			if _, ok := p.super.index(frame); ok {
				continue
			}
		}
		page.Fill(p.bytes(frame), page.PoisonByte)
		boot.free.push(frame)
		p.owner[frame] = int32(p.cfg.BootCPU)
	}
	boot.lock.Release()
	common.L.Info("kalloc: initialized",
		"start", p.layout.Start(), "end", p.layout.End(),
		"pages", p.layout.NumFrames(), "ncpu", p.cfg.NCPU, "superpages", p.cfg.Superpages)
}

// shard returns the shard of cpu. an invalid cpu is fatal
func (p *Pool) shard(cpu common.CPUID) *shard {
	if cpu < 0 || int(cpu) >= len(p.shards) {
		common.Panic(errors.Wrapf(ErrInvalidCPU, "cpu %d of %d", cpu, len(p.shards)))
	}
	return p.shards[cpu]
}

// frame converts addr into frame. an address outside the managed range is fatal
func (p *Pool) frame(op string, addr page.Address) page.Frame {
	if !page.IsAligned(addr) || !p.layout.Contains(addr) {
		common.Panic(errors.Wrapf(ErrBadAddress, "%s: %s outside [%s, %s) or misaligned",
			op, addr, p.layout.Start(), p.layout.End()))
	}
	return p.layout.Frame(addr)
}

// bytes returns the content of the frame
func (p *Pool) bytes(f page.Frame) []byte {
	b, err := p.mem.Page(p.layout.Address(f))
	if err != nil {
		common.Panic(errors.Wrapf(ErrCorrupted, "frame %d: %v", f, err))
	}
	return b
}

// Layout returns the managed physical range
func (p *Pool) Layout() page.Layout {
	return p.layout
}

// NumCPU returns the number of shards
func (p *Pool) NumCPU() int {
	return len(p.shards)
}

// popFrom pops one frame from the shard of cpu
func (p *Pool) popFrom(cpu common.CPUID) (page.Frame, bool) {
	s := p.shards[cpu]
	s.lock.Acquire()
	f, ok := s.free.pop()
	if ok {
		atomic.StoreInt32(&p.owner[f], ownerAllocated)
	}
	s.lock.Release()
	return f, ok
}

// beginMove is called when a batch of free frames leaves the lists.
// the caller holds the lock the frames were taken under
func (p *Pool) beginMove() {
	p.moving.Add(1)
}

// endMove is called after the batch has been relinked somewhere
func (p *Pool) endMove() {
	// moved first: Alloc loads moving and then moved
	p.moved.Add(1)
	p.moving.Add(-1)
}

// Alloc allocates one page for cpu.
// the order is: own shard -> steal from other shards -> demote a whole superpage.
// ErrExhausted is returned only when none of them found a page and no free frame
// was moving between lists during the attempt
func (p *Pool) Alloc(cpu common.CPUID) (page.Address, error) {
	p.shard(cpu)
	for {
		moved := p.moved.Load()
		if f, ok := p.popFrom(cpu); ok {
			p.allocated.Add(1)
			if p.super != nil {
				p.super.onAlloc(f)
			}
			page.Fill(p.bytes(f), page.JunkByte)
			return p.layout.Address(f), nil
		}
		// other contexts may take the refilled pages before we retry, so loop
		if p.Steal(cpu) > 0 {
			continue
		}
		if p.super != nil && p.super.demote(p, cpu) {
			continue
		}
		if p.moving.Load() == 0 && p.moved.Load() == moved {
			return 0, ErrExhausted
		}
		// free frames were in flight while we looked, wait for them to land
		runtime.Gosched()
	}
}

// Free frees the page onto the shard of cpu
func (p *Pool) Free(cpu common.CPUID, addr page.Address) {
	s := p.shard(cpu)
	f := p.frame("kfree", addr)

	if !atomic.CompareAndSwapInt32(&p.owner[f], ownerAllocated, ownerTransit) {
		if atomic.LoadInt32(&p.owner[f]) == ownerSuper {
			common.Panic(errors.Wrapf(ErrDoubleFree, "kfree: %s belongs to a whole superpage", addr))
		}
		common.Panic(errors.Wrapf(ErrDoubleFree, "kfree: %s", addr))
	}
	// fill with junk to catch dangling refs
	page.Fill(p.bytes(f), page.PoisonByte)

	s.lock.Acquire()
	s.free.push(f)
	atomic.StoreInt32(&p.owner[f], int32(cpu))
	s.lock.Release()
	p.allocated.Add(-1)

	if p.super != nil {
		p.super.onFree(p, f)
	}
}

// Steal moves up to StealBatch pages from the other shards onto the shard of cpu.
// shards are visited round robin starting just after cpu.
// the victim's lock is released before the stealer's lock is acquired, so
// two shard locks are never held at once.
// it returns the number of pages moved
func (p *Pool) Steal(cpu common.CPUID) int {
	p.shard(cpu)
	n := len(p.shards)
	total := 0
	batch := make([]page.Frame, 0, p.cfg.StealBatch)
	for victim := (int(cpu) + 1) % n; victim != int(cpu); victim = (victim + 1) % n {
		vs := p.shards[victim]
		batch = batch[:0]

		vs.lock.Acquire()
		for total+len(batch) < p.cfg.StealBatch {
			f, ok := vs.free.pop()
			if !ok {
				break
			}
			atomic.StoreInt32(&p.owner[f], ownerTransit)
			batch = append(batch, f)
		}
		if len(batch) > 0 {
			p.beginMove()
		}
		vs.lock.Release()
		if len(batch) == 0 {
			// no pages to steal from this cpu
			continue
		}

		// splice in reverse so that the stolen run keeps its order at our head
		s := p.shards[cpu]
		s.lock.Acquire()
		for i := len(batch) - 1; i >= 0; i-- {
			s.free.push(batch[i])
			atomic.StoreInt32(&p.owner[batch[i]], int32(cpu))
		}
		s.lock.Release()
		p.endMove()

		total += len(batch)
		common.L.Debug("kalloc: steal", "cpu", cpu, "victim", victim, "pages", len(batch))
		if total >= p.cfg.StealBatch {
			break
		}
	}
	p.stolen.Add(uint64(total))
	return total
}

// Bytes returns the content of an allocated page
func (p *Pool) Bytes(addr page.Address) []byte {
	return p.bytes(p.frame("bytes", addr))
}

// ShardFree returns the free list length of cpu's shard
func (p *Pool) ShardFree(cpu common.CPUID) int {
	s := p.shard(cpu)
	s.lock.Acquire()
	defer s.lock.Release()
	return s.free.len()
}

// Stats returns counters. shards are inspected one by one, so the numbers
// are exact only while no other context is allocating or freeing
func (p *Pool) Stats() Stats {
	st := Stats{
		Total:     p.layout.NumFrames(),
		Allocated: int(p.allocated.Load()),
		ShardFree: make([]int, len(p.shards)),
		Stolen:    p.stolen.Load(),
	}
	for i := range p.shards {
		st.ShardFree[i] = p.ShardFree(common.CPUID(i))
		st.Free += st.ShardFree[i]
	}
	if p.super != nil {
		whole, taken := p.super.counts()
		st.WholeSuperpages = whole
		st.Free += whole * p.super.n
		st.Allocated += taken * p.super.n
		st.Demotions = p.super.demotions.Load()
		st.Promotions = p.super.promotions.Load()
	}
	return st
}
