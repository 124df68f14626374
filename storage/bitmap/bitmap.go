/*
Bitmap tracks used/unused state of a fixed number of slots with one bit per slot.

The bitmap is a plain byte slice so that it can live in a heap slice (the free-slot map
of the buffer cache) or inside an allocated page (the header of an index node slab).
Slot i is located by its byte offset i/8 and its bit offset i%8 within the byte,
counted from the highest bit, so slot 0 is the most significant bit of byte 0.

The bitmap itself is not synchronized. The caller has to hold the lock which
protects the structure the bitmap belongs to.
*/
package bitmap

import (
	"math/bits"
)

// Bitmap is a bitmap over a byte slice
type Bitmap []byte

// Size returns how many bytes are needed for n slots
func Size(n int) int {
	return (n + 7) / 8
}

// New initializes a bitmap for n slots. every slot is unused
func New(n int) Bitmap {
	return make(Bitmap, Size(n))
}

// address is the location of a slot's bit
type address struct {
	// byteOffset is byte offset within the bitmap
	byteOffset int
	// bitOffset is bit offset within the byte, counted from the highest bit. this value can be 0-7
	bitOffset uint
}

// getAddress returns the address of the slot
func getAddress(i int) address {
	return address{
		byteOffset: i / 8,
		bitOffset:  uint(i % 8),
	}
}

// mask returns the mask of the bit within its byte
func (a address) mask() byte {
	return 0x80 >> a.bitOffset
}

// Set marks the slot used
func (b Bitmap) Set(i int) {
	a := getAddress(i)
	b[a.byteOffset] |= a.mask()
}

// Clear marks the slot unused
func (b Bitmap) Clear(i int) {
	a := getAddress(i)
	b[a.byteOffset] &^= a.mask()
}

// IsSet checks whether the slot is used
func (b Bitmap) IsSet(i int) bool {
	a := getAddress(i)
	return b[a.byteOffset]&a.mask() != 0
}

// FindClear returns the lowest unused slot below n
func (b Bitmap) FindClear(n int) (int, bool) {
	for off := 0; off < Size(n); off++ {
		if b[off] == 0xff {
			continue
		}
		// the number of leading ones is the bit offset of the first zero
		i := off*8 + bits.LeadingZeros8(^b[off])
		if i >= n {
			break
		}
		return i, true
	}
	return 0, false
}

// Count returns the number of used slots below n
func (b Bitmap) Count(n int) int {
	c := 0
	full := n / 8
	for off := 0; off < full; off++ {
		c += bits.OnesCount8(b[off])
	}
	if rem := n % 8; rem != 0 {
		// only the highest rem bits of the last byte are slots
		c += bits.OnesCount8(b[full] & ^byte(0xff>>rem))
	}
	return c
}

// Reset marks every slot unused
func (b Bitmap) Reset() {
	clear(b)
}
