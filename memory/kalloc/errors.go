package kalloc

import "github.com/pkg/errors"

var (
	// ErrExhausted is returned when no free page exists after stealing and demoting superpages.
	// this is the only error the allocator returns to callers
	ErrExhausted = errors.New("kalloc: out of memory")

	// ErrInvalidConfig is returned by constructors
	ErrInvalidConfig = errors.New("kalloc: invalid config")
)

// the errors below are never returned. they are wrapped into the panic raised by common.Panic
var (
	// ErrBadAddress means a misaligned or out of range address was passed in
	ErrBadAddress = errors.New("kalloc: bad page address")
	// ErrDoubleFree means a page which is already free was freed again
	ErrDoubleFree = errors.New("kalloc: page is already free")
	// ErrRefUnderflow means a reference count would go below zero
	ErrRefUnderflow = errors.New("kalloc: reference count underflow")
	// ErrCorrupted means the free list links point outside the managed range
	ErrCorrupted = errors.New("kalloc: free list corrupted")
	// ErrInvalidCPU means the cpu id has no shard
	ErrInvalidCPU = errors.New("kalloc: invalid cpu id")
)
