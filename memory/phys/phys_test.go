package phys

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HayatoShiba/ppkernel/memory/page"
)

func testingLayout() page.Layout {
	return page.Layout{KernelEnd: page.KernBase + 0x800, PhysTop: page.KernBase + 0x9000}
}

func TestNew(t *testing.T) {
	m, err := New(testingLayout())
	require.Nil(t, err)
	defer m.Close()

	// 8 pages from KernBase+0x1000
	first, err := m.Page(page.KernBase + 0x1000)
	require.Nil(t, err)
	assert.Len(t, first, page.PageSize)

	last, err := m.Page(page.KernBase + 0x8000)
	require.Nil(t, err)
	page.Fill(last, page.PoisonByte)
	// the slice aliases the mapping
	again, err := m.Page(page.KernBase + 0x8000)
	require.Nil(t, err)
	assert.True(t, page.IsFilled(again, page.PoisonByte))
	// neighbour is untouched
	assert.True(t, page.IsFilled(first, 0))
}

func TestPageOutOfRange(t *testing.T) {
	m, err := New(testingLayout())
	require.Nil(t, err)
	defer m.Close()

	tests := []struct {
		name string
		addr page.Address
	}{
		{name: "kernel image", addr: page.KernBase},
		{name: "phys top", addr: page.KernBase + 0x9000},
		{name: "misaligned", addr: page.KernBase + 0x1010},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Page(tt.addr)
			assert.True(t, errors.Is(err, ErrOutOfRange))
		})
	}
}

func TestRange(t *testing.T) {
	m, err := New(testingLayout())
	require.Nil(t, err)
	defer m.Close()

	b, err := m.Range(page.KernBase+0x1010, 16)
	require.Nil(t, err)
	assert.Len(t, b, 16)

	_, err = m.Range(page.KernBase+0x8ff8, 16)
	assert.True(t, errors.Is(err, ErrOutOfRange))
}

func TestNewInvalidLayout(t *testing.T) {
	_, err := New(page.Layout{KernelEnd: page.KernBase + 0x5000, PhysTop: page.KernBase})
	assert.True(t, errors.Is(err, page.ErrInvalidLayout))
}

func TestCloseTwice(t *testing.T) {
	m, err := New(testingLayout())
	require.Nil(t, err)
	assert.Nil(t, m.Close())
	assert.Nil(t, m.Close())
}
