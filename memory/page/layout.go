package page

import (
	"github.com/pkg/errors"
)

// default layout follows the usual qemu riscv board: ram starts at 0x80000000
// and the kernel image occupies the first part of it
const (
	// KernBase is where ram (and the kernel image) starts
	KernBase Address = 0x80000000
	// DefaultKernelEnd is the first address after the kernel image
	DefaultKernelEnd Address = KernBase + 0x22000
	// DefaultPhysTop is the top of ram (128MB)
	DefaultPhysTop Address = KernBase + 128*1024*1024
)

// Layout is the physical address range given to the allocator by the boot layer
type Layout struct {
	// KernelEnd is the first address after the kernel image. need not be aligned
	KernelEnd Address `yaml:"kernel_end"`
	// PhysTop is the end of physical memory (exclusive)
	PhysTop Address `yaml:"phys_top"`
}

// DefaultLayout returns the default physical layout
func DefaultLayout() Layout {
	return Layout{
		KernelEnd: DefaultKernelEnd,
		PhysTop:   DefaultPhysTop,
	}
}

// Validate checks that at least one page fits into the range
func (l Layout) Validate() error {
	if l.PhysTop <= l.KernelEnd {
		return errors.Wrapf(ErrInvalidLayout, "phys top %s must be above kernel end %s", l.PhysTop, l.KernelEnd)
	}
	if l.End() <= l.Start() {
		return errors.Wrapf(ErrInvalidLayout, "no whole page in [%s, %s)", l.KernelEnd, l.PhysTop)
	}
	return nil
}

// Start returns the first managed page address
func (l Layout) Start() Address {
	return RoundUp(l.KernelEnd)
}

// End returns the end of the last managed page (exclusive)
func (l Layout) End() Address {
	return RoundDown(l.PhysTop)
}

// NumFrames returns how many pages are managed
func (l Layout) NumFrames() int {
	if l.End() <= l.Start() {
		return 0
	}
	return int((l.End() - l.Start()) / PageSize)
}

// Size returns the byte size of the managed range
func (l Layout) Size() int {
	return l.NumFrames() * PageSize
}

// Contains checks whether the address is a page-aligned address inside the managed range
func (l Layout) Contains(a Address) bool {
	return IsAligned(a) && a >= l.Start() && a < l.End()
}

// Frame converts a managed address into frame index
// the caller must check Contains() beforehand
func (l Layout) Frame(a Address) Frame {
	return Frame((a - l.Start()) >> PageShift)
}

// Address converts frame index into physical address
func (l Layout) Address(f Frame) Address {
	return l.Start() + Address(f)<<PageShift
}

// Offset returns the byte offset of the address from the start of the managed range
func (l Layout) Offset(a Address) int {
	return int(a - l.Start())
}
