// Package phys provides the backing store of the managed physical range.
//
// The kernel does not own real physical memory here, so the range
// [layout.Start(), layout.End()) is backed by one anonymous mapping
// (or a heap slice where mmap is not available). Physical address a maps
// to byte offset a - layout.Start() of that mapping.
package phys

import (
	"github.com/pkg/errors"

	"github.com/HayatoShiba/ppkernel/memory/page"
)

var (
	// ErrOutOfRange is returned when an address is outside the managed range
	ErrOutOfRange = errors.New("phys: address out of managed range")
)

// Memory is the backing store of physical memory
type Memory struct {
	layout page.Layout
	data   []byte
	unmap  func() error
}

// New maps memory for the whole managed range of layout
func New(layout page.Layout) (*Memory, error) {
	if err := layout.Validate(); err != nil {
		return nil, errors.Wrap(err, "layout.Validate failed")
	}
	data, unmap, err := mapAnonymous(layout.Size())
	if err != nil {
		return nil, errors.Wrap(err, "mapAnonymous failed")
	}
	return &Memory{
		layout: layout,
		data:   data,
		unmap:  unmap,
	}, nil
}

// Layout returns the layout this memory was created with
func (m *Memory) Layout() page.Layout {
	return m.layout
}

// Page returns the content of the page at addr.
// the returned slice aliases physical memory, it is not a copy
func (m *Memory) Page(addr page.Address) ([]byte, error) {
	if !m.layout.Contains(addr) {
		return nil, errors.Wrapf(ErrOutOfRange, "page %s", addr)
	}
	off := m.layout.Offset(addr)
	return m.data[off : off+page.PageSize : off+page.PageSize], nil
}

// Range returns n contiguous bytes starting at addr
func (m *Memory) Range(addr page.Address, n int) ([]byte, error) {
	if !m.layout.Contains(page.RoundDown(addr)) || addr < m.layout.Start() {
		return nil, errors.Wrapf(ErrOutOfRange, "range %s+%d", addr, n)
	}
	off := m.layout.Offset(addr)
	if off+n > len(m.data) {
		return nil, errors.Wrapf(ErrOutOfRange, "range %s+%d", addr, n)
	}
	return m.data[off : off+n : off+n], nil
}

// Close releases the mapping. the memory must not be used afterward
func (m *Memory) Close() error {
	if m.unmap == nil {
		return nil
	}
	err := m.unmap()
	m.unmap = nil
	m.data = nil
	return err
}
