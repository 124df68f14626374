package kalloc

import (
	"runtime"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/HayatoShiba/ppkernel/common"
	"github.com/HayatoShiba/ppkernel/lock"
	"github.com/HayatoShiba/ppkernel/memory/page"
)

// superpage states
const (
	// spWhole is free and counted as one unit. its frames are on no list
	spWhole int32 = iota
	// spSplit means every frame is tracked individually
	spSplit
	// spPromoting means a context is pulling the frames back off the shard lists
	spPromoting
	// spTaken is handed out whole by AllocSuperpage
	spTaken
)

// superpages is the aggregation policy attached to Pool.
// only runs aligned to n*PageSize which fit entirely in the managed range are superpages;
// the frames before the first and after the last one are plain pages
type superpages struct {
	// n is pages per superpage
	n int
	// first is the first frame of superpage 0
	first page.Frame
	// count is the number of superpages
	count int

	// state and free are accessed atomically.
	// free is the number of frames of a split superpage which are not allocated
	state []int32
	free  []int32

	// lock protects whole
	lock  lock.Spinlock
	whole []int

	demotions  atomic.Uint64
	promotions atomic.Uint64
}

// newSuperpages computes which frames of layout form superpages
func newSuperpages(layout page.Layout, n int) *superpages {
	size := page.Address(n) * page.PageSize
	start := (layout.Start() + size - 1) / size * size
	end := layout.End() / size * size
	count := 0
	if end > start {
		count = int((end - start) / size)
	}
	sp := &superpages{
		n:     n,
		count: count,
		state: make([]int32, count),
		free:  make([]int32, count),
	}
	if count > 0 {
		sp.first = layout.Frame(start)
	}
	sp.lock.Init("superpages")
	return sp
}

// index returns the superpage which contains f
func (sp *superpages) index(f page.Frame) (int, bool) {
	if sp.count == 0 || f < sp.first {
		return 0, false
	}
	i := int(f-sp.first) / sp.n
	if i >= sp.count {
		return 0, false
	}
	return i, true
}

// base returns the first frame of superpage i
func (sp *superpages) base(i int) page.Frame {
	return sp.first + page.Frame(i*sp.n)
}

// initWhole marks every superpage whole during boot
func (sp *superpages) initWhole(p *Pool) {
	sp.lock.Acquire()
	defer sp.lock.Release()
	for i := sp.count - 1; i >= 0; i-- {
		b := sp.base(i)
		for f := b; f < b+page.Frame(sp.n); f++ {
			p.owner[f] = ownerSuper
		}
		page.Fill(sp.bytes(p, i), page.PoisonByte)
		sp.state[i] = spWhole
		sp.free[i] = int32(sp.n)
		// lowest address on top of the stack
		sp.whole = append(sp.whole, i)
	}
}

// bytes returns the content of the whole superpage i
func (sp *superpages) bytes(p *Pool, i int) []byte {
	b, err := p.mem.Range(p.layout.Address(sp.base(i)), sp.n*page.PageSize)
	if err != nil {
		common.Panic(errors.Wrapf(ErrCorrupted, "superpage %d: %v", i, err))
	}
	return b
}

// popWhole takes one whole superpage off the stack
func (sp *superpages) popWhole() (int, bool) {
	sp.lock.Acquire()
	defer sp.lock.Release()
	if len(sp.whole) == 0 {
		return 0, false
	}
	i := sp.whole[len(sp.whole)-1]
	sp.whole = sp.whole[:len(sp.whole)-1]
	return i, true
}

// pushWhole puts superpage i on the stack
func (sp *superpages) pushWhole(i int) {
	sp.lock.Acquire()
	sp.whole = append(sp.whole, i)
	sp.lock.Release()
}

// counts returns the number of whole and taken superpages
func (sp *superpages) counts() (whole, taken int) {
	for i := 0; i < sp.count; i++ {
		switch atomic.LoadInt32(&sp.state[i]) {
		case spWhole:
			whole++
		case spTaken:
			taken++
		}
	}
	return whole, taken
}

// demote splits one whole superpage and pushes its frames onto cpu's shard.
// it returns false when no whole superpage is left
func (sp *superpages) demote(p *Pool, cpu common.CPUID) bool {
	sp.lock.Acquire()
	if len(sp.whole) == 0 {
		sp.lock.Release()
		return false
	}
	i := sp.whole[len(sp.whole)-1]
	sp.whole = sp.whole[:len(sp.whole)-1]
	p.beginMove()
	sp.lock.Release()

	atomic.StoreInt32(&sp.free[i], int32(sp.n))
	atomic.StoreInt32(&sp.state[i], spSplit)

	b := sp.base(i)
	s := p.shards[cpu]
	s.lock.Acquire()
	for f := b + page.Frame(sp.n) - 1; ; f-- {
		s.free.push(f)
		atomic.StoreInt32(&p.owner[f], int32(cpu))
		if f == b {
			break
		}
	}
	s.lock.Release()
	p.endMove()

	sp.demotions.Add(1)
	common.L.Debug("kalloc: superpage demoted", "superpage", p.layout.Address(b), "cpu", cpu)
	return true
}

// onAlloc is called after f was popped for an individual allocation
func (sp *superpages) onAlloc(f page.Frame) {
	if i, ok := sp.index(f); ok {
		atomic.AddInt32(&sp.free[i], -1)
	}
}

// onFree is called after f was pushed onto a shard list
func (sp *superpages) onFree(p *Pool, f page.Frame) {
	i, ok := sp.index(f)
	if !ok {
		return
	}
	if atomic.AddInt32(&sp.free[i], 1) == int32(sp.n) {
		sp.promote(p, i)
	}
}

// promote pulls every frame of superpage i off the shard lists and makes it whole.
// shards are locked one at a time. if some frame is not on any list by the time its
// shard is visited (allocated or being moved), the pulled frames are pushed back and
// the superpage stays split
func (sp *superpages) promote(p *Pool, i int) {
	b := sp.base(i)
	end := b + page.Frame(sp.n)
	for {
		if !atomic.CompareAndSwapInt32(&sp.state[i], spSplit, spPromoting) {
			// another context is promoting it
			return
		}
		p.beginMove()

		pulled := make([][]page.Frame, len(p.shards))
		got := 0
		for si, s := range p.shards {
			s.lock.Acquire()
			for f := b; f < end; f++ {
				if atomic.LoadInt32(&p.owner[f]) != int32(si) {
					continue
				}
				s.free.remove(f)
				atomic.StoreInt32(&p.owner[f], ownerTransit)
				pulled[si] = append(pulled[si], f)
				got++
			}
			s.lock.Release()
		}

		if got == sp.n {
			for f := b; f < end; f++ {
				atomic.StoreInt32(&p.owner[f], ownerSuper)
			}
			atomic.StoreInt32(&sp.state[i], spWhole)
			sp.pushWhole(i)
			p.endMove()
			sp.promotions.Add(1)
			common.L.Debug("kalloc: superpage promoted", "superpage", p.layout.Address(b))
			return
		}

		// roll back
		for si, fs := range pulled {
			if len(fs) == 0 {
				continue
			}
			s := p.shards[si]
			s.lock.Acquire()
			for _, f := range fs {
				s.free.push(f)
				atomic.StoreInt32(&p.owner[f], int32(si))
			}
			s.lock.Release()
		}
		atomic.StoreInt32(&sp.state[i], spSplit)
		p.endMove()

		// a free which completed the counter while we were promoting could not start
		// its own promotion, so check again
		if atomic.LoadInt32(&sp.free[i]) != int32(sp.n) {
			return
		}
		runtime.Gosched()
	}
}

// AllocSuperpage hands out one whole superpage (SuperpagePages contiguous pages).
// no attempt is made to assemble a superpage from split ones
func (p *Pool) AllocSuperpage(cpu common.CPUID) (page.Address, error) {
	p.shard(cpu)
	if p.super == nil {
		return 0, errors.Wrap(ErrExhausted, "superpages are disabled")
	}
	i, ok := p.super.popWhole()
	if !ok {
		return 0, ErrExhausted
	}
	atomic.StoreInt32(&p.super.free[i], 0)
	atomic.StoreInt32(&p.super.state[i], spTaken)
	page.Fill(p.super.bytes(p, i), page.JunkByte)
	return p.layout.Address(p.super.base(i)), nil
}

// FreeSuperpage returns a superpage handed out by AllocSuperpage
func (p *Pool) FreeSuperpage(cpu common.CPUID, addr page.Address) {
	p.shard(cpu)
	f := p.frame("kfree superpage", addr)
	if p.super == nil {
		common.Panic(errors.Wrapf(ErrBadAddress, "kfree superpage: %s with superpages disabled", addr))
	}
	i, ok := p.super.index(f)
	if !ok || p.super.base(i) != f {
		common.Panic(errors.Wrapf(ErrBadAddress, "kfree superpage: %s is not superpage aligned", addr))
	}
	if !atomic.CompareAndSwapInt32(&p.super.state[i], spTaken, spWhole) {
		common.Panic(errors.Wrapf(ErrDoubleFree, "kfree superpage: %s was not allocated whole", addr))
	}
	page.Fill(p.super.bytes(p, i), page.PoisonByte)
	atomic.StoreInt32(&p.super.free[i], int32(p.super.n))
	p.super.pushWhole(i)
}

// SuperpagePages returns pages per superpage, or 0 when superpages are disabled
func (p *Pool) SuperpagePages() int {
	if p.super == nil {
		return 0
	}
	return p.super.n
}
