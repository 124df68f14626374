package kalloc

import (
	"github.com/pkg/errors"

	"github.com/HayatoShiba/ppkernel/common"
	"github.com/HayatoShiba/ppkernel/memory/page"
)

const (
	// DefaultNCPU is the number of shards when Config.NCPU is 0
	DefaultNCPU = 8
	// DefaultStealBatch is how many pages one steal moves at most
	DefaultStealBatch = 4
)

// Config configures the allocator layers.
// the managed physical range comes from the phys.Memory passed to the constructor
type Config struct {
	// NCPU is the number of free list shards. 1 means one global free list
	NCPU int `yaml:"ncpu"`
	// BootCPU receives every individually free page at boot
	BootCPU common.CPUID `yaml:"boot_cpu"`
	// StealBatch is the maximum number of pages moved by one steal
	StealBatch int `yaml:"steal_batch"`
	// Superpages enables aggregation of aligned page runs
	Superpages bool `yaml:"superpages"`
	// SuperpagePages is how many pages make one superpage
	SuperpagePages int `yaml:"superpage_pages"`
	// RefCount enables per-page reference counts
	RefCount bool `yaml:"refcount"`
}

// DefaultConfig returns sharded config without superpages and reference counts
func DefaultConfig() Config {
	return Config{
		NCPU:           DefaultNCPU,
		BootCPU:        common.BootCPU,
		StealBatch:     DefaultStealBatch,
		SuperpagePages: page.DefaultSuperpagePages,
	}
}

// withDefaults fills zero fields
func (c Config) withDefaults() Config {
	if c.NCPU == 0 {
		c.NCPU = DefaultNCPU
	}
	if c.StealBatch == 0 {
		c.StealBatch = DefaultStealBatch
	}
	if c.SuperpagePages == 0 {
		c.SuperpagePages = page.DefaultSuperpagePages
	}
	return c
}

// validate checks the config after defaults are applied
func (c Config) validate() error {
	if c.NCPU < 1 {
		return errors.Wrapf(ErrInvalidConfig, "ncpu %d", c.NCPU)
	}
	if c.BootCPU < 0 || int(c.BootCPU) >= c.NCPU {
		return errors.Wrapf(ErrInvalidConfig, "boot cpu %d with %d cpus", c.BootCPU, c.NCPU)
	}
	if c.StealBatch < 1 {
		return errors.Wrapf(ErrInvalidConfig, "steal batch %d", c.StealBatch)
	}
	if c.Superpages && c.SuperpagePages < 2 {
		return errors.Wrapf(ErrInvalidConfig, "superpage of %d pages", c.SuperpagePages)
	}
	return nil
}
