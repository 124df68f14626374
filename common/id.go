package common

// CPUID identifies the execution context (processor) a request comes from.
// the page allocator keeps one free list shard per cpu and uses this id
// to choose the shard to pop from and to push freed pages onto.
type CPUID int

// BootCPU is the cpu which carves the physical memory during initialization
const BootCPU CPUID = 0

// Device is block device number
// buffer cache identifies a block with (device, block number)
type Device uint32
