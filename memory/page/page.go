/*
Page is the unit of physical memory allocation.
A page is identified by its physical address, which is always a multiple of PageSize.

The allocator manages the physical range [kernel end, physical top) handed over
by the boot layer (see Layout). The range is carved into frames once at boot.
Frame is the index of a page within the range, and the allocator's free lists are
built from frame indices instead of pointers stored inside the free pages.
*/
package page

import (
	"fmt"

	"github.com/pkg/errors"
)

const (
	// PageShift is log2(PageSize)
	PageShift = 12
	// PageSize is the byte size of page
	PageSize = 1 << PageShift

	// DefaultSuperpagePages is how many pages make one superpage (2MB with 4KB pages)
	DefaultSuperpagePages = 512
)

// fill patterns. pages never contain zero after alloc/free so that
// reading uninitialized or freed memory is visible in tests
const (
	// JunkByte fills a page when it is handed out
	JunkByte byte = 0x05
	// PoisonByte fills a page when it is freed
	PoisonByte byte = 0x01
)

// Address is physical address
type Address uint64

// Frame is page index within the managed range. frame 0 is the first page at or above kernel end
type Frame uint32

// InvalidFrame indicates no frame (end of list)
const InvalidFrame Frame = ^Frame(0)

// String formats the address in hex
func (a Address) String() string {
	return fmt.Sprintf("%#x", uint64(a))
}

// RoundUp rounds the address up to a page boundary
func RoundUp(a Address) Address {
	return (a + PageSize - 1) &^ (PageSize - 1)
}

// RoundDown rounds the address down to a page boundary
func RoundDown(a Address) Address {
	return a &^ (PageSize - 1)
}

// IsAligned checks whether the address is a multiple of PageSize
func IsAligned(a Address) bool {
	return a%PageSize == 0
}

// Fill overwrites the whole page content with b
func Fill(p []byte, b byte) {
	if len(p) == 0 {
		return
	}
	p[0] = b
	// doubling copy is much faster than a byte loop for 4KB
	for filled := 1; filled < len(p); filled *= 2 {
		copy(p[filled:], p[:filled])
	}
}

// IsFilled checks whether all bytes of p equal b
func IsFilled(p []byte, b byte) bool {
	for _, c := range p {
		if c != b {
			return false
		}
	}
	return true
}

var (
	// ErrInvalidLayout is returned when the physical range is empty or malformed
	ErrInvalidLayout = errors.New("page: invalid physical layout")
)
