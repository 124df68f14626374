package kalloc

import (
	"math/rand"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HayatoShiba/ppkernel/common"
	"github.com/HayatoShiba/ppkernel/memory/page"
)

func TestNewPool(t *testing.T) {
	p := TestingNewPool(t, Config{NCPU: 4}, TestingLayout(10))
	st := p.Stats()
	assert.Equal(t, 10, st.Total)
	assert.Equal(t, 10, st.Free)
	assert.Equal(t, 0, st.Allocated)
	// every page is carved onto the boot cpu's list
	assert.Equal(t, []int{10, 0, 0, 0}, st.ShardFree)
}

func TestNewPoolInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "negative ncpu", cfg: Config{NCPU: -1}},
		{name: "boot cpu out of range", cfg: Config{NCPU: 2, BootCPU: 2}},
		{name: "negative steal batch", cfg: Config{NCPU: 2, StealBatch: -1}},
		{name: "superpage of one page", cfg: Config{NCPU: 1, Superpages: true, SuperpagePages: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPool(tt.cfg, nil)
			assert.True(t, errors.Is(err, ErrInvalidConfig))
		})
	}
}

func TestAllocFree(t *testing.T) {
	layout := TestingLayout(4)
	p := TestingNewPool(t, Config{NCPU: 1}, layout)

	addr, err := p.Alloc(0)
	require.Nil(t, err)
	assert.True(t, layout.Contains(addr))
	// the lowest page is handed out first
	assert.Equal(t, layout.Start(), addr)
	assert.True(t, page.IsFilled(p.Bytes(addr), page.JunkByte))
	assert.Equal(t, 1, p.Stats().Allocated)

	copy(p.Bytes(addr), "hello")
	p.Free(0, addr)
	assert.True(t, page.IsFilled(p.Bytes(addr), page.PoisonByte))
	st := p.Stats()
	assert.Equal(t, 0, st.Allocated)
	assert.Equal(t, 4, st.Free)
}

func TestAllocExhausted(t *testing.T) {
	p := TestingNewPool(t, Config{NCPU: 1}, TestingLayout(4))
	seen := map[page.Address]bool{}
	for i := 0; i < 4; i++ {
		addr, err := p.Alloc(0)
		require.Nil(t, err)
		assert.False(t, seen[addr], "page %s handed out twice", addr)
		seen[addr] = true
	}
	_, err := p.Alloc(0)
	assert.Equal(t, ErrExhausted, err)

	// exhaustion is recoverable
	for addr := range seen {
		copy(p.Bytes(addr), "dirty")
		p.Free(0, addr)
	}
	addr, err := p.Alloc(0)
	require.Nil(t, err)
	// a freed then reallocated page shows the fill pattern, not the old content
	assert.True(t, page.IsFilled(p.Bytes(addr), page.JunkByte))
}

func TestFreeBadAddress(t *testing.T) {
	layout := TestingLayout(4)
	p := TestingNewPool(t, Config{NCPU: 1}, layout)
	tests := []struct {
		name string
		addr page.Address
	}{
		{name: "misaligned", addr: layout.Start() + 8},
		{name: "kernel image", addr: page.KernBase},
		{name: "phys top", addr: layout.End()},
		{name: "zero", addr: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Panics(t, func() { p.Free(0, tt.addr) })
		})
	}
}

func TestDoubleFree(t *testing.T) {
	p := TestingNewPool(t, Config{NCPU: 2}, TestingLayout(4))
	addr, err := p.Alloc(0)
	require.Nil(t, err)
	p.Free(1, addr)
	require.Panics(t, func() { p.Free(0, addr) })
	// a page which was never allocated
	require.Panics(t, func() { p.Free(0, p.Layout().Start()+page.PageSize) })
}

func TestInvalidCPU(t *testing.T) {
	p := TestingNewPool(t, Config{NCPU: 2}, TestingLayout(4))
	require.Panics(t, func() { p.Alloc(2) })
	require.Panics(t, func() { p.Alloc(-1) })
	require.Panics(t, func() { p.Steal(5) })
}

func TestFreeGoesToFreeingCPU(t *testing.T) {
	p := TestingNewPool(t, Config{NCPU: 2}, TestingLayout(4))
	addr, err := p.Alloc(0)
	require.Nil(t, err)
	p.Free(1, addr)
	assert.Equal(t, []int{3, 1}, p.Stats().ShardFree)
}

func TestSteal(t *testing.T) {
	t.Run("takes a batch from the next cpu", func(t *testing.T) {
		p := TestingNewPool(t, Config{NCPU: 3}, TestingLayout(10))
		assert.Equal(t, 4, p.Steal(2))
		assert.Equal(t, []int{6, 0, 4}, p.Stats().ShardFree)
		// cpu 1 visits cpu 2 before cpu 0
		assert.Equal(t, 4, p.Steal(1))
		assert.Equal(t, []int{6, 4, 0}, p.Stats().ShardFree)
	})
	t.Run("continues with the following cpu until the batch is full", func(t *testing.T) {
		p := TestingNewPool(t, Config{NCPU: 3}, TestingLayout(6))
		// cpu 1 steals 4 from cpu 0 and takes one of them
		_, err := p.Alloc(1)
		require.Nil(t, err)
		assert.Equal(t, []int{2, 3, 0}, p.Stats().ShardFree)

		assert.Equal(t, 4, p.Steal(2))
		assert.Equal(t, []int{0, 1, 4}, p.Stats().ShardFree)
	})
	t.Run("returns 0 when every other cpu is empty", func(t *testing.T) {
		p := TestingNewPool(t, Config{NCPU: 2}, TestingLayout(3))
		assert.Equal(t, 0, p.Steal(0))
		assert.Equal(t, 3, p.Steal(1))
		assert.Equal(t, 0, p.Steal(1))
		assert.Equal(t, []int{0, 3}, p.Stats().ShardFree)
	})
	t.Run("single cpu never steals", func(t *testing.T) {
		p := TestingNewPool(t, Config{NCPU: 1}, TestingLayout(3))
		assert.Equal(t, 0, p.Steal(0))
	})
	t.Run("custom batch", func(t *testing.T) {
		p := TestingNewPool(t, Config{NCPU: 2, StealBatch: 2}, TestingLayout(8))
		assert.Equal(t, 2, p.Steal(1))
		assert.Equal(t, uint64(2), p.Stats().Stolen)
	})
}

func TestAllocSteals(t *testing.T) {
	p := TestingNewPool(t, Config{NCPU: 2}, TestingLayout(8))
	addr, err := p.Alloc(1)
	require.Nil(t, err)
	assert.True(t, p.Layout().Contains(addr))
	st := p.Stats()
	assert.Equal(t, uint64(DefaultStealBatch), st.Stolen)
	assert.Equal(t, []int{4, 3}, st.ShardFree)
}

// TestRandomOperations checks that free + allocated stays equal to total and
// that no page is handed out twice for a random sequence of operations
func TestRandomOperations(t *testing.T) {
	const ncpu = 4
	p := TestingNewPool(t, Config{NCPU: ncpu}, TestingLayout(64))
	rnd := rand.New(rand.NewSource(1))
	held := map[page.Address]bool{}
	var order []page.Address

	for i := 0; i < 5000; i++ {
		cpu := common.CPUID(rnd.Intn(ncpu))
		switch op := rnd.Intn(10); {
		case op < 5:
			addr, err := p.Alloc(cpu)
			if err != nil {
				require.Equal(t, ErrExhausted, err)
				require.Equal(t, 64, len(held))
				continue
			}
			require.False(t, held[addr])
			require.True(t, page.IsFilled(p.Bytes(addr), page.JunkByte))
			held[addr] = true
			order = append(order, addr)
		case op < 9:
			if len(order) == 0 {
				continue
			}
			j := rnd.Intn(len(order))
			addr := order[j]
			order = append(order[:j], order[j+1:]...)
			delete(held, addr)
			p.Free(cpu, addr)
		default:
			p.Steal(cpu)
		}
		st := p.Stats()
		require.Equal(t, st.Total, st.Free+st.Allocated)
		require.Equal(t, len(held), st.Allocated)
	}
}

func TestConcurrentAllocFree(t *testing.T) {
	const ncpu = 8
	p := TestingNewPool(t, Config{NCPU: ncpu}, TestingLayout(128))
	var held sync.Map
	var wg sync.WaitGroup
	for c := 0; c < ncpu; c++ {
		wg.Add(1)
		go func(cpu common.CPUID) {
			defer wg.Done()
			var mine []page.Address
			for i := 0; i < 2000; i++ {
				if len(mine) < 16 {
					addr, err := p.Alloc(cpu)
					if err == nil {
						if _, dup := held.LoadOrStore(addr, cpu); dup {
							t.Errorf("page %s handed out twice", addr)
							return
						}
						mine = append(mine, addr)
						continue
					}
				}
				if len(mine) > 0 {
					addr := mine[len(mine)-1]
					mine = mine[:len(mine)-1]
					held.Delete(addr)
					p.Free(cpu, addr)
				}
			}
			for _, addr := range mine {
				held.Delete(addr)
				p.Free(cpu, addr)
			}
		}(common.CPUID(c))
	}
	wg.Wait()

	st := p.Stats()
	assert.Equal(t, 0, st.Allocated)
	assert.Equal(t, 128, st.Free)
}
