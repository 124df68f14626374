package kalloc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HayatoShiba/ppkernel/memory/page"
	"github.com/HayatoShiba/ppkernel/memory/phys"
)

func TestRefCounted(t *testing.T) {
	r := NewRefCounted(TestingNewPool(t, Config{NCPU: 2}, TestingLayout(4)))

	addr, err := r.Alloc(0)
	require.Nil(t, err)
	assert.Equal(t, 1, r.Count(addr))

	r.Ref(addr)
	r.Ref(addr)
	assert.Equal(t, 3, r.Count(addr))
	copy(r.Bytes(addr), "shared")

	r.Free(0, addr)
	r.Free(1, addr)
	// still referenced, so the page must not be recycled
	assert.Equal(t, 1, r.Count(addr))
	assert.Equal(t, 1, r.Stats().Allocated)
	assert.Equal(t, "shared", string(r.Bytes(addr)[:6]))

	r.Free(1, addr)
	assert.Equal(t, 0, r.Count(addr))
	assert.Equal(t, 0, r.Stats().Allocated)
	assert.True(t, page.IsFilled(r.Bytes(addr), page.PoisonByte))
}

func TestRefCountedUnderflow(t *testing.T) {
	r := NewRefCounted(TestingNewPool(t, Config{NCPU: 1}, TestingLayout(4)))
	addr, err := r.Alloc(0)
	require.Nil(t, err)
	r.Free(0, addr)

	require.Panics(t, func() { r.Free(0, addr) })
	require.Panics(t, func() { r.Ref(addr) })
	require.Panics(t, func() { r.Free(0, addr+1) })
}

func TestRefCountedReuse(t *testing.T) {
	r := NewRefCounted(TestingNewPool(t, Config{NCPU: 1}, TestingLayout(1)))
	addr, err := r.Alloc(0)
	require.Nil(t, err)
	r.Ref(addr)
	r.Free(0, addr)

	// the only page is still referenced
	_, err = r.Alloc(0)
	assert.Equal(t, ErrExhausted, err)

	r.Free(0, addr)
	again, err := r.Alloc(0)
	require.Nil(t, err)
	assert.Equal(t, addr, again)
	assert.Equal(t, 1, r.Count(again))
}

func TestNewComposesLayers(t *testing.T) {
	mem, err := phys.New(TestingLayout(8))
	require.Nil(t, err)
	defer mem.Close()

	a, err := New(Config{NCPU: 2, RefCount: true}, mem)
	require.Nil(t, err)
	r, ok := a.(*RefCounted)
	require.True(t, ok)
	_, ok = r.Unwrap().(*Pool)
	assert.True(t, ok)

	mem2, err := phys.New(TestingLayout(8))
	require.Nil(t, err)
	defer mem2.Close()
	a, err = New(Config{NCPU: 2}, mem2)
	require.Nil(t, err)
	_, ok = a.(*Pool)
	assert.True(t, ok)

	mem3, err := phys.New(alignedLayout(2))
	require.Nil(t, err)
	defer mem3.Close()
	a, err = New(Config{NCPU: 2, Superpages: true, SuperpagePages: 4, RefCount: true}, mem3)
	require.Nil(t, err)
	r, ok = a.(*RefCounted)
	require.True(t, ok)
	pool, ok := r.Unwrap().(*Pool)
	require.True(t, ok)
	assert.Equal(t, 4, pool.SuperpagePages())

	// the first page demotes a superpage, the shared page keeps it split
	addr, err := r.Alloc(0)
	require.Nil(t, err)
	r.Ref(addr)
	st := r.Stats()
	assert.Equal(t, uint64(1), st.Demotions)
	assert.Equal(t, 1, st.WholeSuperpages)

	r.Free(1, addr)
	assert.Equal(t, 1, r.Stats().WholeSuperpages)
	// the last reference recycles the page and the superpage is whole again
	r.Free(1, addr)
	st = r.Stats()
	assert.Equal(t, uint64(1), st.Promotions)
	assert.Equal(t, 2, st.WholeSuperpages)
	assert.Equal(t, 0, st.Allocated)
}
