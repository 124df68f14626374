package kalloc

import (
	"testing"

	"github.com/HayatoShiba/ppkernel/memory/page"
	"github.com/HayatoShiba/ppkernel/memory/phys"
)

// TestingLayout returns a layout of n pages starting at page.KernBase + 0x1000.
// the kernel image ends in the middle of the first page so that rounding is exercised
func TestingLayout(n int) page.Layout {
	start := page.KernBase + page.PageSize
	return page.Layout{
		KernelEnd: start - 0x800,
		PhysTop:   start + page.Address(n)*page.PageSize,
	}
}

// TestingNewPool initializes a pool over a fresh memory of layout.
// the memory is released when the test finishes
func TestingNewPool(t testing.TB, cfg Config, layout page.Layout) *Pool {
	t.Helper()
	mem, err := phys.New(layout)
	if err != nil {
		t.Fatalf("phys.New failed: %v", err)
	}
	t.Cleanup(func() { mem.Close() })
	p, err := NewPool(cfg, mem)
	if err != nil {
		t.Fatalf("NewPool failed: %v", err)
	}
	return p
}
